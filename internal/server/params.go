package server

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/local/pdfsuite/internal/jobs"
	"github.com/local/pdfsuite/internal/ops"
	"github.com/local/pdfsuite/internal/pdf"
)

// formReader reads typed form fields, keeping the first error.
type formReader struct {
	v   url.Values
	err error
}

func (f *formReader) str(key string) string { return strings.TrimSpace(f.v.Get(key)) }

func (f *formReader) fail(key, want string) {
	if f.err == nil {
		f.err = pdf.Validationf("field %s: expected %s, got %q", key, want, f.v.Get(key))
	}
}

func (f *formReader) number(key string) float64 {
	s := f.str(key)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.fail(key, "a number")
	}
	return v
}

func (f *formReader) integer(key string, def int) int {
	s := f.str(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f.fail(key, "an integer")
	}
	return v
}

func (f *formReader) boolean(key string) bool {
	s := f.str(key)
	if s == "" {
		return false
	}
	if s == "on" {
		return true
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		f.fail(key, "a boolean")
	}
	return v
}

// page reads a 1-based page number and returns it zero-based.
func (f *formReader) page(key string) int {
	n := f.integer(key, 1)
	if n < 1 {
		f.fail(key, "a page number of 1 or more")
		return 0
	}
	return n - 1
}

// color accepts #rrggbb.
func (f *formReader) color(key string) *ops.RGB {
	s := strings.TrimPrefix(f.str(key), "#")
	if s == "" {
		return nil
	}
	if len(s) != 6 {
		f.fail(key, "a #rrggbb color")
		return nil
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		f.fail(key, "a #rrggbb color")
		return nil
	}
	return &ops.RGB{
		R: float64(v>>16&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v&0xff) / 255,
	}
}

func (f *formReader) list(key string) []string {
	var out []string
	for _, s := range strings.Split(f.str(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// order reads a 1-based page order such as "3,1,2".
func (f *formReader) order(key string) []int {
	items := f.list(key)
	out := make([]int, 0, len(items))
	for _, s := range items {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			f.fail(key, "a comma separated list of page numbers")
			return nil
		}
		out = append(out, n-1)
	}
	return out
}

// parseParams builds the options for typ from form fields. image is the
// optional uploaded image for watermark and sign.
func parseParams(typ jobs.Type, v url.Values, image []byte) (ops.Params, error) {
	f := &formReader{v: v}
	var p ops.Params

	switch typ {
	case jobs.TypeMerge:
		p = ops.MergeOptions{}
	case jobs.TypeCompare:
		p = ops.CompareOptions{}
	case jobs.TypeRepair:
		p = ops.RepairOptions{}
	case jobs.TypeSplit:
		p = ops.SplitOptions{Pages: f.str("pages")}
	case jobs.TypeDeletePages:
		p = ops.DeletePagesOptions{Pages: f.str("pages")}
	case jobs.TypeReorder:
		p = ops.ReorderOptions{Order: f.order("order")}
	case jobs.TypeRotate:
		p = ops.RotateOptions{Degrees: f.integer("degrees", 0), Pages: f.str("pages")}
	case jobs.TypeCrop:
		p = ops.CropOptions{Top: f.number("top"), Right: f.number("right"), Bottom: f.number("bottom"), Left: f.number("left")}
	case jobs.TypeWatermark:
		o := ops.WatermarkOptions{
			Text:       f.str("text"),
			Image:      image,
			ImageScale: f.number("image_scale"),
			FontSize:   f.number("font_size"),
			Opacity:    f.number("opacity"),
			Rotation:   f.number("rotation"),
			Color:      f.color("color"),
		}
		if s := f.str("position"); s != "" {
			pos, err := ops.ParseWatermarkPosition(s)
			if err != nil {
				return nil, err
			}
			o.Position = pos
		}
		p = o
	case jobs.TypePageNumbers:
		o := ops.PageNumberOptions{
			FontSize: f.number("font_size"),
			Format:   f.v.Get("format"),
			Margin:   f.number("margin"),
			Color:    f.color("color"),
		}
		if f.str("start") != "" {
			n := f.integer("start", 1)
			o.Start = &n
		}
		if s := f.str("position"); s != "" {
			pos, err := ops.ParseNumberPosition(s)
			if err != nil {
				return nil, err
			}
			o.Position = pos
		}
		p = o
	case jobs.TypeSign:
		p = ops.SignOptions{
			Text:      f.str("text"),
			Image:     image,
			PageIndex: f.page("page"),
			X:         f.number("x"),
			Y:         f.number("y"),
			Width:     f.number("width"),
			Height:    f.number("height"),
			FontSize:  f.number("font_size"),
			Color:     f.color("color"),
		}
	case jobs.TypeEditText:
		p = ops.EditTextOptions{
			Text:        f.v.Get("text"),
			PageIndex:   f.page("page"),
			X:           f.number("x"),
			Y:           f.number("y"),
			FontSize:    f.number("font_size"),
			Color:       f.color("color"),
			Cover:       f.boolean("cover"),
			CoverWidth:  f.number("cover_width"),
			CoverHeight: f.number("cover_height"),
		}
	case jobs.TypeCompress:
		p = ops.CompressOptions{Level: f.integer("level", 0)}
	case jobs.TypeSetMetadata:
		p = ops.MetadataOptions{
			Title:    f.str("title"),
			Author:   f.str("author"),
			Subject:  f.str("subject"),
			Keywords: f.list("keywords"),
			Creator:  f.str("creator"),
			Producer: f.str("producer"),
			Clear:    f.boolean("clear"),
		}
	default:
		return nil, pdf.Validationf("unknown operation %q", typ)
	}
	if f.err != nil {
		return nil, f.err
	}
	return p, nil
}
