package pdf

import (
	"fmt"
	"math"
	"sort"
)

// Rect is a PDF rectangle in default user space units.
type Rect struct {
	LLX, LLY, URX, URY float64
}

// NewRect builds a rectangle from its origin and size.
func NewRect(x, y, w, h float64) Rect { return Rect{x, y, x + w, y + h} }

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }

func (r Rect) array() Array {
	return Array{Real(r.LLX), Real(r.LLY), Real(r.URX), Real(r.URY)}
}

// Common page sizes.
var (
	Letter = Rect{0, 0, 612, 792}
	A4     = Rect{0, 0, 595.28, 841.89}
)

// Page is one page of a Document. Resource and content references point into
// the owning Document's pool only.
type Page struct {
	MediaBox  Rect
	CropBox   Rect
	Rotate    int
	Resources Dict
	Contents  []Ref
	// Extra carries the remaining page dictionary entries (Annots, Group, ...).
	Extra Dict

	num int
}

// Size returns the width and height of the visible area.
func (p *Page) Size() (float64, float64) {
	return p.CropBox.Width(), p.CropBox.Height()
}

// Document is the in-memory object graph of one PDF file.
type Document struct {
	Version string
	Info    Dict
	Pages   []*Page

	// SourceSize is the byte length the document was loaded from.
	SourceSize int64
	// Encrypted is set when the source carried an /Encrypt dictionary.
	Encrypted bool
	// Undecrypted is set when the source was encrypted and loaded without a key.
	Undecrypted bool

	objects map[int]Object
	nextNum int
	catalog Dict
	encrypt Dict
	fileID  Array

	// imports maps source document object numbers to numbers in this pool,
	// per source document, so shared resources are copied once.
	imports map[*Document]map[int]int
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		Version: "1.7",
		Info:    Dict{},
		objects: map[int]Object{},
		nextNum: 1,
	}
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.Pages) }

// Page returns the page at a zero-based index.
func (d *Document) Page(i int) (*Page, error) {
	if i < 0 || i >= len(d.Pages) {
		return nil, Validationf("page index %d out of range [0,%d)", i, len(d.Pages))
	}
	return d.Pages[i], nil
}

func (d *Document) alloc() int {
	n := d.nextNum
	d.nextNum++
	return n
}

// Add stores o as a new indirect object and returns its reference.
func (d *Document) Add(o Object) Ref {
	n := d.alloc()
	d.objects[n] = o
	return Ref{Num: n}
}

// Object returns the pooled object for r, or nil.
func (d *Document) Object(r Ref) Object { return d.objects[r.Num] }

// Resolve follows references until a direct object is reached.
func (d *Document) Resolve(o Object) Object {
	for i := 0; i < 32; i++ {
		r, ok := o.(Ref)
		if !ok {
			return o
		}
		o = d.objects[r.Num]
	}
	return nil
}

// ObjectCount returns the number of pooled objects.
func (d *Document) ObjectCount() int { return len(d.objects) }

// AddBlankPage appends an empty page.
func (d *Document) AddBlankPage(box Rect) *Page {
	p := &Page{MediaBox: box, CropBox: box, Resources: Dict{}, Extra: Dict{}, num: d.alloc()}
	d.Pages = append(d.Pages, p)
	return p
}

// RefCounts counts how many times each pooled object is referenced from the
// pages and from other pooled objects.
func (d *Document) RefCounts() map[int]int {
	counts := map[int]int{}
	var walk func(Object)
	walk = func(o Object) {
		switch v := o.(type) {
		case Ref:
			counts[v.Num]++
		case Array:
			for _, e := range v {
				walk(e)
			}
		case Dict:
			for _, e := range v {
				walk(e)
			}
		case *Stream:
			walk(v.Dict)
		}
	}
	for _, p := range d.Pages {
		walk(p.Resources)
		walk(p.Extra)
		for _, c := range p.Contents {
			walk(c)
		}
	}
	for _, o := range d.objects {
		walk(o)
	}
	walk(d.catalog)
	return counts
}

// ContentBytes returns the decoded, concatenated content of a page.
func (d *Document) ContentBytes(p *Page) ([]byte, error) {
	var out []byte
	for _, r := range p.Contents {
		s, ok := d.objects[r.Num].(*Stream)
		if !ok {
			continue
		}
		b, err := DecodeStream(s)
		if err != nil {
			return nil, fmt.Errorf("content stream %d: %w", r.Num, err)
		}
		out = append(out, b...)
		out = append(out, '\n')
	}
	return out, nil
}

// AppendContent draws data above the existing page content. The first call
// isolates the existing content in a q/Q pair so its graphics state cannot
// leak into the appended drawing.
func (d *Document) AppendContent(p *Page, data []byte) {
	if len(p.Contents) > 0 {
		pre := d.Add(&Stream{Dict: Dict{}, Data: []byte("q\n")})
		post := d.Add(&Stream{Dict: Dict{}, Data: []byte("\nQ\n")})
		contents := make([]Ref, 0, len(p.Contents)+3)
		contents = append(contents, pre)
		contents = append(contents, p.Contents...)
		p.Contents = append(contents, post)
	}
	p.Contents = append(p.Contents, d.Add(&Stream{Dict: Dict{}, Data: data}))
}

// subDict returns a page resource category as a direct, page-owned dictionary.
func (d *Document) subDict(p *Page, category string) Dict {
	if p.Resources == nil {
		p.Resources = Dict{}
	}
	var sub Dict
	switch v := d.Resolve(p.Resources[category]).(type) {
	case Dict:
		sub = v.Clone()
	default:
		sub = Dict{}
	}
	p.Resources[category] = sub
	return sub
}

func uniqueKey(sub Dict, prefix string) string {
	for i := 1; ; i++ {
		k := fmt.Sprintf("%s%d", prefix, i)
		if _, ok := sub[k]; !ok {
			return k
		}
	}
}

// AddStandardFont registers one of the standard 14 fonts on the page and
// returns its resource name. Fonts are pooled once per document.
func (d *Document) AddStandardFont(p *Page, base StandardFont) Name {
	fonts := d.subDict(p, "Font")
	for k, v := range fonts {
		if fd, ok := d.Resolve(v).(Dict); ok && fd.Name("BaseFont") == Name(base) && fd.Name("Subtype") == "Type1" {
			return Name(k)
		}
	}
	ref := d.fontRef(base)
	key := uniqueKey(fonts, "SF")
	fonts[key] = ref
	return Name(key)
}

func (d *Document) fontRef(base StandardFont) Ref {
	for num, o := range d.objects {
		if fd, ok := o.(Dict); ok && fd.Name("Type") == "Font" && fd.Name("BaseFont") == Name(base) && fd.Name("Encoding") == "WinAnsiEncoding" {
			return Ref{Num: num}
		}
	}
	return d.Add(Dict{
		"Type":     Name("Font"),
		"Subtype":  Name("Type1"),
		"BaseFont": Name(base),
		"Encoding": Name("WinAnsiEncoding"),
	})
}

// AddOpacity registers an ExtGState with the given fill and stroke alpha.
func (d *Document) AddOpacity(p *Page, alpha float64) Name {
	alpha = math.Max(0, math.Min(1, alpha))
	states := d.subDict(p, "ExtGState")
	key := uniqueKey(states, "GS")
	states[key] = d.Add(Dict{"Type": Name("ExtGState"), "ca": Real(alpha), "CA": Real(alpha)})
	return Name(key)
}

// AddXObject registers an image or form XObject on the page.
func (d *Document) AddXObject(p *Page, ref Ref) Name {
	xs := d.subDict(p, "XObject")
	key := uniqueKey(xs, "Im")
	xs[key] = ref
	return Name(key)
}

// Catalog returns the document-level catalog entries other than the page tree.
func (d *Document) Catalog() Dict { return d.catalog }

// sortedNums returns the pool's object numbers in ascending order.
func (d *Document) sortedNums() []int {
	nums := make([]int, 0, len(d.objects))
	for n := range d.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// NormalizeRotation maps any multiple of 90 into {0, 90, 180, 270}.
func NormalizeRotation(r int) int {
	r = ((r % 360) + 360) % 360
	return (r + 45) / 90 * 90 % 360
}
