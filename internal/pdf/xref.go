package pdf

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
)

type xrefEntry struct {
	typ    int // 0 free, 1 in file, 2 in object stream
	offset int // byte offset, or object stream number when typ == 2
	gen    int // generation, or index within the object stream when typ == 2
}

type xrefTable struct {
	entries map[int]xrefEntry
	trailer Dict
}

// findStartXRef locates the offset recorded after the last startxref keyword.
func findStartXRef(buf []byte) (int, error) {
	tail := 2048
	if tail > len(buf) {
		tail = len(buf)
	}
	idx := bytes.LastIndex(buf[len(buf)-tail:], []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("startxref not found")
	}
	lx := newLexer(buf, len(buf)-tail+idx+len("startxref"))
	t, err := lx.next()
	if err != nil || t.typ != tokInt {
		return 0, fmt.Errorf("startxref has no offset")
	}
	off, err := strconv.Atoi(string(t.val))
	if err != nil || off < 0 || off >= len(buf) {
		return 0, fmt.Errorf("startxref offset %s outside file", t.val)
	}
	return off, nil
}

// readXRef reads the xref chain starting at off. Newer sections win.
func readXRef(buf []byte, off int) (*xrefTable, error) {
	xt := &xrefTable{entries: map[int]xrefEntry{}}
	seen := map[int]bool{}
	for off > 0 || len(seen) == 0 {
		if seen[off] {
			return nil, fmt.Errorf("xref chain loops at offset %d", off)
		}
		seen[off] = true
		pos := off
		for pos < len(buf) && isWhitespace(buf[pos]) {
			pos++
		}
		var trailer Dict
		var err error
		if hasKeywordAt(buf, pos, "xref") {
			trailer, err = readXRefTable(buf, pos+len("xref"), xt.entries)
			if err != nil {
				return nil, err
			}
			if stm, ok := trailer.Int("XRefStm"); ok && !seen[stm] {
				seen[stm] = true
				if _, err := readXRefStreamAt(buf, stm, xt.entries); err != nil {
					return nil, err
				}
			}
		} else {
			trailer, err = readXRefStreamAt(buf, pos, xt.entries)
			if err != nil {
				return nil, err
			}
		}
		if xt.trailer == nil {
			xt.trailer = trailer.Clone()
		} else {
			for k, v := range trailer {
				if _, ok := xt.trailer[k]; !ok {
					xt.trailer[k] = v
				}
			}
		}
		prev, ok := trailer.Int("Prev")
		if !ok {
			break
		}
		off = prev
	}
	delete(xt.trailer, "Prev")
	delete(xt.trailer, "XRefStm")
	return xt, nil
}

func readXRefTable(buf []byte, pos int, entries map[int]xrefEntry) (Dict, error) {
	p := newParser(buf, pos)
	for {
		t, err := p.nextToken()
		if err != nil {
			return nil, err
		}
		if t.typ == tokKeyword && string(t.val) == "trailer" {
			o, err := p.parseObject()
			if err != nil {
				return nil, fmt.Errorf("trailer: %w", err)
			}
			d, ok := o.(Dict)
			if !ok {
				return nil, fmt.Errorf("trailer is not a dictionary")
			}
			return d, nil
		}
		if t.typ != tokInt {
			return nil, fmt.Errorf("malformed xref table at offset %d", t.pos)
		}
		ct, err := p.nextToken()
		if err != nil || ct.typ != tokInt {
			return nil, fmt.Errorf("malformed xref subsection at offset %d", t.pos)
		}
		start, _ := strconv.Atoi(string(t.val))
		count, _ := strconv.Atoi(string(ct.val))
		for i := 0; i < count; i++ {
			ot, _ := p.nextToken()
			gt, _ := p.nextToken()
			kt, err := p.nextToken()
			if err != nil || ot.typ != tokInt || gt.typ != tokInt || kt.typ != tokKeyword {
				return nil, fmt.Errorf("malformed xref entry %d", start+i)
			}
			num := start + i
			if _, exists := entries[num]; exists {
				continue
			}
			off, _ := strconv.Atoi(string(ot.val))
			gen, _ := strconv.Atoi(string(gt.val))
			e := xrefEntry{typ: 0, offset: off, gen: gen}
			if string(kt.val) == "n" {
				e.typ = 1
			}
			entries[num] = e
		}
	}
}

func readXRefStreamAt(buf []byte, off int, entries map[int]xrefEntry) (Dict, error) {
	_, obj, err := parseIndirectAt(buf, off, nil)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	s, ok := obj.(*Stream)
	if !ok || s.Dict.Name("Type") != "XRef" {
		return nil, fmt.Errorf("no xref at offset %d", off)
	}
	if err := decodeXRefStream(s, entries); err != nil {
		return nil, err
	}
	return s.Dict, nil
}

func decodeXRefStream(s *Stream, entries map[int]xrefEntry) error {
	data, err := DecodeStream(s)
	if err != nil {
		return fmt.Errorf("xref stream: %w", err)
	}
	wa, _ := s.Dict["W"].(Array)
	if len(wa) != 3 {
		return fmt.Errorf("xref stream /W must have 3 entries")
	}
	var w [3]int
	for i := range w {
		w[i], _ = toInt(wa[i])
		if w[i] < 0 || w[i] > 8 {
			return fmt.Errorf("xref stream /W entry %d out of range", w[i])
		}
	}
	size, _ := s.Dict.Int("Size")
	index := []int{0, size}
	if ia, ok := s.Dict["Index"].(Array); ok && len(ia)%2 == 0 {
		index = index[:0]
		for _, e := range ia {
			n, _ := toInt(e)
			index = append(index, n)
		}
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return fmt.Errorf("xref stream has zero-width rows")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowLen > len(data) {
				return fmt.Errorf("xref stream truncated")
			}
			f1 := readField(data[pos:], w[0], 1)
			f2 := readField(data[pos+w[0]:], w[1], 0)
			f3 := readField(data[pos+w[0]+w[1]:], w[2], 0)
			pos += rowLen
			num := start + j
			if _, exists := entries[num]; exists {
				continue
			}
			entries[num] = xrefEntry{typ: f1, offset: f2, gen: f3}
		}
	}
	return nil
}

func readField(b []byte, width, def int) int {
	if width == 0 {
		return def
	}
	v := 0
	for i := 0; i < width; i++ {
		v = v<<8 | int(b[i])
	}
	return v
}

var objHeader = regexp.MustCompile(`(\d+)[ \t\r\n\f\x00]+(\d+)[ \t\r\n\f\x00]+obj\b`)

// scanObjects rebuilds an xref table by scanning the whole file for object
// headers. The last definition of an object number wins, as in an
// incrementally updated file.
func scanObjects(ctx context.Context, buf []byte) (*xrefTable, error) {
	xt := &xrefTable{entries: map[int]xrefEntry{}}
	for _, m := range objHeader.FindAllSubmatchIndex(buf, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if m[0] > 0 && !isWhitespace(buf[m[0]-1]) && isRegular(buf[m[0]-1]) {
			continue
		}
		num, err1 := strconv.Atoi(string(buf[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(buf[m[4]:m[5]]))
		if err1 != nil || err2 != nil || num <= 0 {
			continue
		}
		xt.entries[num] = xrefEntry{typ: 1, offset: m[0], gen: gen}
	}
	if len(xt.entries) == 0 {
		return nil, fmt.Errorf("no objects found")
	}
	if idx := bytes.LastIndex(buf, []byte("trailer")); idx >= 0 {
		p := newParser(buf, idx+len("trailer"))
		if o, err := p.parseObject(); err == nil {
			if d, ok := o.(Dict); ok {
				xt.trailer = d
			}
		}
	}
	if xt.trailer == nil {
		xt.trailer = Dict{}
	}
	delete(xt.trailer, "Prev")
	delete(xt.trailer, "XRefStm")
	return xt, nil
}
