package pdf

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"sort"
	"strconv"
)

// WriteOptions controls serialization.
type WriteOptions struct {
	// ObjectStreams packs non-stream objects into compressed object streams
	// and writes a cross-reference stream instead of a table.
	ObjectStreams bool
	// CompressStreams flate-encodes streams that carry no filter.
	CompressStreams bool
}

const objStmCapacity = 100

// Producer is written into /Info when the document has none.
const Producer = "pdfsuite"

var binaryMarker = []byte{'%', 0xE2, 0xE3, 0xCF, 0xD3, '\n'}

type serializer struct {
	opts    WriteOptions
	objects map[int]Object
	next    int
	root    int
	info    int
	encrypt int
	id      Array
}

// Serialize writes doc as a complete PDF file. The page tree is rebuilt as a
// single flat /Pages node; every pooled object is written. doc is not
// modified.
func Serialize(doc *Document, opts WriteOptions) ([]byte, error) {
	if len(doc.Pages) == 0 {
		return nil, Validationf("document has no pages")
	}
	s := &serializer{opts: opts, objects: make(map[int]Object, len(doc.objects)+len(doc.Pages)+4), next: doc.nextNum}
	if doc.Undecrypted {
		// Data still carries the source encryption keyed by object number;
		// re-filtering or repacking would make it unreadable.
		s.opts.ObjectStreams = false
		s.opts.CompressStreams = false
	}
	for n, o := range doc.objects {
		s.objects[n] = o
	}

	pagesNum := s.alloc()
	kids := make(Array, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		if _, taken := s.objects[p.num]; taken || p.num <= 0 {
			return nil, fmt.Errorf("page object number %d collides with a pooled object", p.num)
		}
		s.objects[p.num] = pageDict(p, pagesNum)
		kids = append(kids, Ref{Num: p.num})
	}
	s.objects[pagesNum] = Dict{"Type": Name("Pages"), "Kids": kids, "Count": Int(len(kids))}

	catalog := Dict{}
	for k, v := range doc.catalog {
		catalog[k] = v
	}
	catalog["Type"] = Name("Catalog")
	catalog["Pages"] = Ref{Num: pagesNum}
	s.root = s.alloc()
	s.objects[s.root] = catalog

	info := doc.Info.Clone()
	if _, ok := info["Producer"]; !ok {
		info["Producer"] = NewText(Producer)
	}
	s.info = s.alloc()
	s.objects[s.info] = info

	if doc.Undecrypted && doc.encrypt != nil {
		s.encrypt = s.alloc()
		s.objects[s.encrypt] = doc.encrypt
		s.id = doc.fileID
	}

	if s.opts.CompressStreams {
		for n, o := range s.objects {
			if st, ok := o.(*Stream); ok {
				s.objects[n] = compressStream(st)
			}
		}
	}

	version := doc.Version
	if s.opts.ObjectStreams && versionLess(version, "1.5") {
		version = "1.5"
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-" + version + "\n")
	buf.Write(binaryMarker)

	if s.opts.ObjectStreams {
		return s.writeWithObjectStreams(&buf)
	}
	return s.writeClassic(&buf)
}

func (s *serializer) alloc() int {
	n := s.next
	s.next++
	return n
}

func pageDict(p *Page, parent int) Dict {
	d := Dict{}
	for k, v := range p.Extra {
		d[k] = v
	}
	d["Type"] = Name("Page")
	d["Parent"] = Ref{Num: parent}
	d["MediaBox"] = p.MediaBox.array()
	if p.CropBox != p.MediaBox {
		d["CropBox"] = p.CropBox.array()
	}
	if p.Rotate != 0 {
		d["Rotate"] = Int(p.Rotate)
	}
	d["Resources"] = p.Resources
	if d["Resources"] == nil {
		d["Resources"] = Dict{}
	}
	switch len(p.Contents) {
	case 0:
	case 1:
		d["Contents"] = p.Contents[0]
	default:
		arr := make(Array, len(p.Contents))
		for i, r := range p.Contents {
			arr[i] = r
		}
		d["Contents"] = arr
	}
	return d
}

func compressStream(st *Stream) *Stream {
	if _, filtered := st.Dict["Filter"]; filtered || len(st.Data) == 0 {
		return st
	}
	data, err := deflate(st.Data, 9)
	if err != nil || len(data) >= len(st.Data) {
		return st
	}
	d := st.Dict.Clone()
	d["Filter"] = Name(filterFlate)
	delete(d, "DecodeParms")
	return &Stream{Dict: d, Data: data}
}

func (s *serializer) sortedNums() []int {
	nums := make([]int, 0, len(s.objects))
	for n := range s.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func (s *serializer) writeIndirect(buf *bytes.Buffer, num int, o Object) {
	buf.WriteString(strconv.Itoa(num))
	buf.WriteString(" 0 obj\n")
	if st, ok := o.(*Stream); ok {
		d := st.Dict.Clone()
		d["Length"] = Int(len(st.Data))
		buf.Write(appendObject(nil, d))
		buf.WriteString("\nstream\n")
		buf.Write(st.Data)
		buf.WriteString("\nendstream")
	} else {
		buf.Write(appendObject(nil, o))
	}
	buf.WriteString("\nendobj\n")
}

func (s *serializer) trailerDict(size int, body []byte) Dict {
	t := Dict{
		"Size": Int(size),
		"Root": Ref{Num: s.root},
		"Info": Ref{Num: s.info},
	}
	if len(s.id) == 2 {
		t["ID"] = s.id
	} else {
		sum := md5.Sum(body)
		id := String{Value: sum[:], Hex: true}
		t["ID"] = Array{id, id}
	}
	if s.encrypt != 0 {
		t["Encrypt"] = Ref{Num: s.encrypt}
	}
	return t
}

func (s *serializer) writeClassic(buf *bytes.Buffer) ([]byte, error) {
	nums := s.sortedNums()
	offsets := make(map[int]int, len(nums))
	for _, n := range nums {
		offsets[n] = buf.Len()
		s.writeIndirect(buf, n, s.objects[n])
	}

	body := bytes.Clone(buf.Bytes())
	xrefOff := buf.Len()
	buf.WriteString("xref\n0 1\n0000000000 65535 f \n")
	for i := 0; i < len(nums); {
		j := i
		for j+1 < len(nums) && nums[j+1] == nums[j]+1 {
			j++
		}
		fmt.Fprintf(buf, "%d %d\n", nums[i], j-i+1)
		for k := i; k <= j; k++ {
			fmt.Fprintf(buf, "%010d 00000 n \n", offsets[nums[k]])
		}
		i = j + 1
	}
	size := nums[len(nums)-1] + 1
	buf.WriteString("trailer\n")
	buf.Write(appendObject(nil, s.trailerDict(size, body)))
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes(), nil
}

type stmLoc struct {
	stm, index int
}

func (s *serializer) writeWithObjectStreams(buf *bytes.Buffer) ([]byte, error) {
	nums := s.sortedNums()
	var packed []int
	offsets := map[int]int{}
	for _, n := range nums {
		if _, isStream := s.objects[n].(*Stream); isStream {
			offsets[n] = buf.Len()
			s.writeIndirect(buf, n, s.objects[n])
			continue
		}
		packed = append(packed, n)
	}

	locs := map[int]stmLoc{}
	for start := 0; start < len(packed); start += objStmCapacity {
		end := start + objStmCapacity
		if end > len(packed) {
			end = len(packed)
		}
		group := packed[start:end]
		stmNum := s.alloc()
		var header, body bytes.Buffer
		for i, n := range group {
			fmt.Fprintf(&header, "%d %d ", n, body.Len())
			body.Write(appendObject(nil, s.objects[n]))
			body.WriteByte('\n')
			locs[n] = stmLoc{stm: stmNum, index: i}
		}
		raw := append(header.Bytes(), body.Bytes()...)
		data, err := deflate(raw, 9)
		if err != nil {
			return nil, fmt.Errorf("object stream: %w", err)
		}
		offsets[stmNum] = buf.Len()
		s.writeIndirect(buf, stmNum, &Stream{Dict: Dict{
			"Type":   Name("ObjStm"),
			"N":      Int(len(group)),
			"First":  Int(header.Len()),
			"Filter": Name(filterFlate),
		}, Data: data})
	}

	xrefNum := s.alloc()
	size := xrefNum + 1
	xrefOff := buf.Len()
	offsets[xrefNum] = xrefOff
	w2 := bytesNeeded(xrefOff)
	if w := bytesNeeded(size); w > w2 {
		w2 = w
	}
	rows := make([]byte, 0, size*(1+w2+2))
	for n := 0; n < size; n++ {
		switch {
		case n == 0:
			rows = appendRow(rows, 0, 0, 0xffff, w2)
		case offsets[n] > 0:
			rows = appendRow(rows, 1, offsets[n], 0, w2)
		default:
			if l, ok := locs[n]; ok {
				rows = appendRow(rows, 2, l.stm, l.index, w2)
			} else {
				rows = appendRow(rows, 0, 0, 0, w2)
			}
		}
	}
	data, err := deflate(rows, 9)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	d := s.trailerDict(size, buf.Bytes())
	d["Type"] = Name("XRef")
	d["W"] = Array{Int(1), Int(w2), Int(2)}
	d["Filter"] = Name(filterFlate)
	s.writeIndirect(buf, xrefNum, &Stream{Dict: d, Data: data})
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes(), nil
}

func bytesNeeded(v int) int {
	n := 1
	for v > 0xff {
		v >>= 8
		n++
	}
	return n
}

func appendRow(b []byte, typ, f2, f3, w2 int) []byte {
	b = append(b, byte(typ))
	for i := w2 - 1; i >= 0; i-- {
		b = append(b, byte(f2>>(8*i)))
	}
	return append(b, byte(f3>>8), byte(f3))
}

// appendObject writes o in PDF syntax. Every object is written at
// generation 0, so references are too.
func appendObject(b []byte, o Object) []byte {
	switch v := o.(type) {
	case nil, Null:
		return append(b, "null"...)
	case Ref:
		b = strconv.AppendInt(b, int64(v.Num), 10)
		return append(b, " 0 R"...)
	case Array:
		b = append(b, '[')
		for i, e := range v {
			if i > 0 {
				b = append(b, ' ')
			}
			b = appendObject(b, e)
		}
		return append(b, ']')
	case Dict:
		b = append(b, "<<"...)
		for _, k := range v.Keys() {
			b = append(b, Name(k).String()...)
			b = append(b, ' ')
			b = appendObject(b, v[k])
		}
		return append(b, ">>"...)
	case *Stream:
		return append(b, "null"...)
	}
	return append(b, o.String()...)
}

func versionLess(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return fa < fb
}
