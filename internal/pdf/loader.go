package pdf

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// LoadOptions controls how a byte buffer is turned into a Document.
type LoadOptions struct {
	// Password is tried as user password, then as owner password.
	Password string
	// TolerateEncryption loads an encrypted document without decrypting it
	// when no usable key is available, instead of failing.
	TolerateEncryption bool
	// Repair rebuilds a broken cross-reference table by scanning the file
	// and skips objects that cannot be read.
	Repair bool
}

// Load parses data into a Document.
func Load(data []byte, opts LoadOptions) (*Document, error) {
	return LoadContext(context.Background(), data, opts)
}

var headerRe = regexp.MustCompile(`%PDF-(\d\.\d)`)

// LoadContext is Load with cancellation, checked between objects.
func LoadContext(ctx context.Context, data []byte, opts LoadOptions) (*Document, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	version := "1.7"
	if m := headerRe.FindSubmatch(head); m != nil {
		version = string(m[1])
	} else if !opts.Repair {
		return nil, Parsef("not a PDF: missing %%PDF header")
	}

	l := &loader{buf: data, opts: opts, cache: map[int]Object{}, busy: map[int]bool{}, stms: map[int]*objStream{}, pageSeen: map[int]bool{}}
	xt, err := l.readTable(ctx)
	if err != nil {
		return nil, err
	}
	l.xref = xt

	doc := NewDocument()
	doc.Version = version
	doc.SourceSize = int64(len(data))

	if encObj, ok := xt.trailer["Encrypt"]; ok {
		if err := l.setupDecryption(doc, encObj); err != nil {
			return nil, err
		}
	}

	if err := l.loadAll(ctx, doc); err != nil {
		return nil, err
	}
	if err := l.buildPages(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type objStream struct {
	data    []byte
	offsets map[int]int
	first   int
	nums    []int
}

type loader struct {
	buf      []byte
	opts     LoadOptions
	xref     *xrefTable
	sec      *securityHandler
	encNum   int
	cache    map[int]Object
	busy     map[int]bool
	stms     map[int]*objStream
	pageSeen map[int]bool
}

func (l *loader) readTable(ctx context.Context) (*xrefTable, error) {
	off, err := findStartXRef(l.buf)
	var xt *xrefTable
	if err == nil {
		xt, err = readXRef(l.buf, off)
	}
	if err == nil && xt.trailer["Root"] == nil {
		err = errors.New("trailer has no /Root")
	}
	if err == nil {
		return xt, nil
	}
	if !l.opts.Repair {
		return nil, wrapParse(err, "cross-reference table")
	}
	xt, serr := scanObjects(ctx, l.buf)
	if serr != nil {
		return nil, wrapParse(serr, "file may be severely corrupted")
	}
	l.xref = xt
	l.recoverTrailer(xt)
	return xt, nil
}

// recoverTrailer fills /Root and friends from xref streams or the catalog
// object when the scanned file has no usable trailer dictionary.
func (l *loader) recoverTrailer(xt *xrefTable) {
	nums := make([]int, 0, len(xt.entries))
	for n := range xt.entries {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		_, o, err := parseIndirectAt(l.buf, xt.entries[n].offset, nil)
		if err != nil {
			continue
		}
		s, ok := o.(*Stream)
		if !ok {
			if d, ok := o.(Dict); ok && d.Name("Type") == "Catalog" && xt.trailer["Root"] == nil {
				xt.trailer["Root"] = Ref{Num: n}
			}
			continue
		}
		switch s.Dict.Name("Type") {
		case "XRef":
			for _, k := range []string{"Root", "Info", "Encrypt", "ID"} {
				if _, has := xt.trailer[k]; !has && s.Dict[k] != nil {
					xt.trailer[k] = s.Dict[k]
				}
			}
		case "ObjStm":
			st, err := l.objectStream(n, s)
			if err != nil {
				continue
			}
			for i, m := range st.nums {
				if _, has := xt.entries[m]; !has {
					xt.entries[m] = xrefEntry{typ: 2, offset: n, gen: i}
				}
			}
		}
	}
}

func (l *loader) setupDecryption(doc *Document, encObj Object) error {
	if r, ok := encObj.(Ref); ok {
		l.encNum = r.Num
	}
	enc, ok := l.resolveRaw(encObj).(Dict)
	if !ok {
		return Parsef("/Encrypt is not a dictionary")
	}
	doc.Encrypted = true
	var id0 []byte
	if ids, ok := l.resolveRaw(l.xref.trailer["ID"]).(Array); ok && len(ids) > 0 {
		id0 = stringBytes(ids[0])
		doc.fileID = ids
	}
	sec, err := newSecurityHandler(enc, id0, l.opts.Password)
	if err == nil {
		l.sec = sec
		return nil
	}
	if l.opts.TolerateEncryption && IsKind(err, KindCapability) {
		doc.Undecrypted = true
		doc.encrypt = enc.Clone()
		return nil
	}
	return err
}

// resolveRaw resolves without decryption. Used for the Encrypt dictionary
// and the file ID, which are never encrypted.
func (l *loader) resolveRaw(o Object) Object {
	r, ok := o.(Ref)
	if !ok {
		return o
	}
	e, ok := l.xref.entries[r.Num]
	if !ok || e.typ != 1 {
		return nil
	}
	_, obj, err := parseIndirectAt(l.buf, e.offset, l.lengthOf)
	if err != nil {
		return nil
	}
	return obj
}

func (l *loader) lengthOf(r Ref) (int, bool) {
	if o, ok := l.cache[r.Num]; ok {
		return toInt(o)
	}
	e, ok := l.xref.entries[r.Num]
	if !ok {
		return 0, false
	}
	if e.typ == 2 {
		o, err := l.resolve(r.Num)
		if err != nil {
			return 0, false
		}
		return toInt(o)
	}
	if e.typ != 1 {
		return 0, false
	}
	_, o, err := parseIndirectAt(l.buf, e.offset, nil)
	if err != nil {
		return 0, false
	}
	return toInt(o)
}

// resolve loads and decrypts object num.
func (l *loader) resolve(num int) (Object, error) {
	if o, ok := l.cache[num]; ok {
		return o, nil
	}
	e, ok := l.xref.entries[num]
	if !ok || e.typ == 0 {
		return Null{}, nil
	}
	if l.busy[num] {
		return nil, fmt.Errorf("object %d refers to itself while loading", num)
	}
	l.busy[num] = true
	defer delete(l.busy, num)

	var obj Object
	switch e.typ {
	case 1:
		ref, o, err := parseIndirectAt(l.buf, e.offset, l.lengthOf)
		if err != nil {
			return nil, err
		}
		if ref.Num != num {
			return nil, fmt.Errorf("xref entry for object %d points at object %d", num, ref.Num)
		}
		if l.sec != nil && num != l.encNum {
			o, err = l.sec.decryptObject(o, num, ref.Gen)
			if err != nil {
				return nil, fmt.Errorf("decrypt object %d: %w", num, err)
			}
		}
		obj = o
	case 2:
		container, err := l.resolve(e.offset)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", e.offset, err)
		}
		s, ok := container.(*Stream)
		if !ok {
			return nil, fmt.Errorf("object stream %d is not a stream", e.offset)
		}
		st, err := l.objectStream(e.offset, s)
		if err != nil {
			return nil, err
		}
		off, ok := st.offsets[num]
		if !ok {
			return nil, fmt.Errorf("object %d missing from object stream %d", num, e.offset)
		}
		p := newParser(st.data, st.first+off)
		o, err := p.parseObject()
		if err != nil {
			return nil, fmt.Errorf("object %d in stream %d: %w", num, e.offset, err)
		}
		obj = o
	default:
		return Null{}, nil
	}
	l.cache[num] = obj
	return obj, nil
}

func (l *loader) objectStream(num int, s *Stream) (*objStream, error) {
	if st, ok := l.stms[num]; ok {
		return st, nil
	}
	data, err := DecodeStream(s)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", num, err)
	}
	n, _ := s.Dict.Int("N")
	first, _ := s.Dict.Int("First")
	if n < 0 || first < 0 || first > len(data) {
		return nil, fmt.Errorf("object stream %d has a bad header", num)
	}
	st := &objStream{data: data, first: first, offsets: make(map[int]int, n)}
	lx := newLexer(data[:first], 0)
	for i := 0; i < n; i++ {
		a, err1 := lx.next()
		b, err2 := lx.next()
		if err1 != nil || err2 != nil || a.typ != tokInt || b.typ != tokInt {
			return nil, fmt.Errorf("object stream %d: bad offset table", num)
		}
		objNum, _ := strconv.Atoi(string(a.val))
		off, _ := strconv.Atoi(string(b.val))
		st.offsets[objNum] = off
		st.nums = append(st.nums, objNum)
	}
	l.stms[num] = st
	return st, nil
}

// loadAll reads every in-use object into the document pool. In strict mode a
// single unreadable object fails the load.
func (l *loader) loadAll(ctx context.Context, doc *Document) error {
	nums := make([]int, 0, len(l.xref.entries))
	for n, e := range l.xref.entries {
		if e.typ != 0 && n > 0 {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	for _, n := range nums {
		if err := ctx.Err(); err != nil {
			return err
		}
		o, err := l.resolve(n)
		if err != nil {
			if l.opts.Repair {
				continue
			}
			return wrapParse(err, "object %d is unreadable", n)
		}
		if n >= doc.nextNum {
			doc.nextNum = n + 1
		}
		if n == l.encNum && l.encNum != 0 {
			continue
		}
		if s, ok := o.(*Stream); ok {
			if t := s.Dict.Name("Type"); t == "XRef" || t == "ObjStm" {
				continue
			}
		}
		if _, isNull := o.(Null); isNull {
			continue
		}
		doc.objects[n] = o
	}
	return nil
}

type inherited struct {
	mediaBox  Object
	cropBox   Object
	rotate    Object
	resources Object
}

func (l *loader) buildPages(doc *Document) error {
	root := l.xref.trailer["Root"]
	catalog, _ := doc.Resolve(root).(Dict)
	if info, ok := doc.Resolve(l.xref.trailer["Info"]).(Dict); ok {
		doc.Info = deepCopy(info).(Dict)
		if r, ok := l.xref.trailer["Info"].(Ref); ok {
			delete(doc.objects, r.Num)
		}
	}

	var pagesRoot Object
	if catalog != nil {
		pagesRoot = catalog["Pages"]
	}
	if _, ok := doc.Resolve(pagesRoot).(Dict); !ok {
		if !l.opts.Repair {
			return Parsef("document has no page tree")
		}
		return l.collectLoosePages(doc)
	}

	seen := map[int]bool{}
	var treeNodes []int
	var walk func(node Object, inh inherited, depth int) error
	walk = func(node Object, inh inherited, depth int) error {
		if depth > 64 {
			return Parsef("page tree nested too deeply")
		}
		num := 0
		if r, ok := node.(Ref); ok {
			num = r.Num
			if seen[num] {
				return Parsef("page tree visits object %d twice", num)
			}
			seen[num] = true
		}
		d, ok := doc.Resolve(node).(Dict)
		if !ok {
			if l.opts.Repair {
				return nil
			}
			return Parsef("page tree node %d is missing or not a dictionary", num)
		}
		if v, ok := d["MediaBox"]; ok {
			inh.mediaBox = v
		}
		if v, ok := d["CropBox"]; ok {
			inh.cropBox = v
		}
		if v, ok := d["Rotate"]; ok {
			inh.rotate = v
		}
		if v, ok := d["Resources"]; ok {
			inh.resources = v
		}
		kids, isTree := doc.Resolve(d["Kids"]).(Array)
		if d.Name("Type") == "Page" || !isTree {
			p, err := l.makePage(doc, d, num, inh)
			if err != nil {
				return err
			}
			doc.Pages = append(doc.Pages, p)
			return nil
		}
		if num > 0 {
			treeNodes = append(treeNodes, num)
		}
		for _, k := range kids {
			if err := walk(k, inh, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(pagesRoot, inherited{}, 0); err != nil {
		return err
	}
	for _, n := range treeNodes {
		delete(doc.objects, n)
	}
	if r, ok := root.(Ref); ok {
		delete(doc.objects, r.Num)
	}
	doc.catalog = Dict{}
	for k, v := range catalog {
		if k != "Type" && k != "Pages" {
			doc.catalog[k] = v
		}
	}
	return nil
}

// collectLoosePages recovers pages from a file whose page tree is gone by
// taking every /Type /Page dictionary in object order.
func (l *loader) collectLoosePages(doc *Document) error {
	for _, n := range doc.sortedNums() {
		d, ok := doc.objects[n].(Dict)
		if !ok || d.Name("Type") != "Page" {
			continue
		}
		inh := inherited{mediaBox: d["MediaBox"], cropBox: d["CropBox"], rotate: d["Rotate"], resources: d["Resources"]}
		if parent, ok := doc.Resolve(d["Parent"]).(Dict); ok {
			if inh.mediaBox == nil {
				inh.mediaBox = parent["MediaBox"]
			}
			if inh.resources == nil {
				inh.resources = parent["Resources"]
			}
		}
		p, err := l.makePage(doc, d, n, inh)
		if err != nil {
			return err
		}
		doc.Pages = append(doc.Pages, p)
	}
	if len(doc.Pages) == 0 {
		return Parsef("file may be severely corrupted: no pages found")
	}
	return nil
}

var pageKeys = map[string]bool{
	"Type": true, "Parent": true, "MediaBox": true, "CropBox": true,
	"Rotate": true, "Resources": true, "Contents": true,
}

// makePage builds a page from its dictionary. In strict mode a /Contents
// entry that does not lead to streams fails the load; with Repair the
// unreadable parts are dropped.
func (l *loader) makePage(doc *Document, d Dict, num int, inh inherited) (*Page, error) {
	p := &Page{Extra: Dict{}, Resources: Dict{}}
	if num > 0 && l.pageSeen[num] {
		num = 0
	}
	if num > 0 {
		l.pageSeen[num] = true
		p.num = num
		delete(doc.objects, num)
	} else {
		p.num = doc.alloc()
	}

	p.MediaBox = Letter
	if r, ok := rectOf(doc, inh.mediaBox); ok {
		p.MediaBox = r
	}
	p.CropBox = p.MediaBox
	if r, ok := rectOf(doc, inh.cropBox); ok {
		p.CropBox = r
	}
	if v, ok := toInt(doc.Resolve(inh.rotate)); ok {
		p.Rotate = NormalizeRotation(v)
	}
	if res, ok := doc.Resolve(inh.resources).(Dict); ok {
		p.Resources = res.Clone()
	}
	bad := func(what string) error {
		if l.opts.Repair {
			return nil
		}
		return Parsef("page %d: /Contents %s", len(doc.Pages)+1, what)
	}
	switch c := doc.Resolve(d["Contents"]).(type) {
	case nil, Null:
		if _, isRef := d["Contents"].(Ref); isRef {
			if err := bad("points at a missing object"); err != nil {
				return nil, err
			}
		}
	case *Stream:
		if r, ok := d["Contents"].(Ref); ok {
			p.Contents = []Ref{r}
		}
	case Array:
		for _, e := range c {
			r, ok := e.(Ref)
			if ok {
				_, ok = doc.objects[r.Num].(*Stream)
			}
			if !ok {
				if err := bad(fmt.Sprintf("entry %v is not a stream", e)); err != nil {
					return nil, err
				}
				continue
			}
			p.Contents = append(p.Contents, r)
		}
	default:
		if err := bad(fmt.Sprintf("is a %T, not a stream", c)); err != nil {
			return nil, err
		}
	}
	for k, v := range d {
		if !pageKeys[k] {
			p.Extra[k] = v
		}
	}
	return p, nil
}

func rectOf(doc *Document, o Object) (Rect, bool) {
	a, ok := doc.Resolve(o).(Array)
	if !ok || len(a) != 4 {
		return Rect{}, false
	}
	var v [4]float64
	for i, e := range a {
		f, ok := toFloat(doc.Resolve(e))
		if !ok {
			return Rect{}, false
		}
		v[i] = f
	}
	r := Rect{LLX: min(v[0], v[2]), LLY: min(v[1], v[3]), URX: max(v[0], v[2]), URY: max(v[1], v[3])}
	if r.Width() <= 0 || r.Height() <= 0 {
		return Rect{}, false
	}
	return r, true
}
