package pdf

// ClonePage deep-copies page index of src into dst and appends it to dst's
// page list. Every object the page reaches is duplicated into dst's pool with
// renumbered references, so mutating dst afterwards can never affect src.
// Objects shared by several pages of src are copied once per dst.
//
// References to other pages of src resolve to their copies when those pages
// were cloned into dst earlier, and to null otherwise.
func ClonePage(src *Document, index int, dst *Document) (*Page, error) {
	sp, err := src.Page(index)
	if err != nil {
		return nil, err
	}
	if src == dst {
		np := &Page{
			MediaBox:  sp.MediaBox,
			CropBox:   sp.CropBox,
			Rotate:    sp.Rotate,
			Resources: deepCopy(sp.Resources).(Dict),
			Contents:  append([]Ref(nil), sp.Contents...),
			Extra:     deepCopy(sp.Extra).(Dict),
			num:       dst.alloc(),
		}
		dst.Pages = append(dst.Pages, np)
		return np, nil
	}

	if dst.imports == nil {
		dst.imports = map[*Document]map[int]int{}
	}
	m := dst.imports[src]
	if m == nil {
		m = map[int]int{}
		dst.imports[src] = m
	}
	c := &copier{src: src, dst: dst, nums: m}

	np := &Page{
		MediaBox: sp.MediaBox,
		CropBox:  sp.CropBox,
		Rotate:   sp.Rotate,
		num:      dst.alloc(),
	}
	m[sp.num] = np.num
	np.Resources, _ = c.copy(sp.Resources).(Dict)
	if np.Resources == nil {
		np.Resources = Dict{}
	}
	np.Extra, _ = c.copy(sp.Extra).(Dict)
	if np.Extra == nil {
		np.Extra = Dict{}
	}
	for _, r := range sp.Contents {
		if nr, ok := c.copy(r).(Ref); ok {
			np.Contents = append(np.Contents, nr)
		}
	}
	dst.Pages = append(dst.Pages, np)
	return np, nil
}

type copier struct {
	src, dst *Document
	nums     map[int]int
}

func (c *copier) copy(o Object) Object {
	switch v := o.(type) {
	case Ref:
		if n, ok := c.nums[v.Num]; ok {
			return Ref{Num: n}
		}
		obj, ok := c.src.objects[v.Num]
		if !ok {
			return Null{}
		}
		n := c.dst.alloc()
		c.nums[v.Num] = n
		// Reserve before recursing so cycles terminate.
		c.dst.objects[n] = Null{}
		c.dst.objects[n] = c.copy(obj)
		return Ref{Num: n}
	case Array:
		out := make(Array, len(v))
		for i, e := range v {
			out[i] = c.copy(e)
		}
		return out
	case Dict:
		out := make(Dict, len(v))
		for k, e := range v {
			out[k] = c.copy(e)
		}
		return out
	case *Stream:
		d, _ := c.copy(v.Dict).(Dict)
		return &Stream{Dict: d, Data: append([]byte(nil), v.Data...)}
	}
	return deepCopy(o)
}

// CopyInfo copies the document information dictionary of src into dst,
// duplicating any indirect values it points to.
func CopyInfo(src, dst *Document) {
	if len(src.Info) == 0 || src == dst {
		return
	}
	if dst.imports == nil {
		dst.imports = map[*Document]map[int]int{}
	}
	m := dst.imports[src]
	if m == nil {
		m = map[int]int{}
		dst.imports[src] = m
	}
	c := &copier{src: src, dst: dst, nums: m}
	info, _ := c.copy(src.Info).(Dict)
	for k, v := range info {
		dst.Info[k] = v
	}
}
