package ops

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/progress"
)

// RGB is a colour with components in [0,1].
type RGB struct {
	R, G, B float64
}

var (
	Black = RGB{}
	White = RGB{1, 1, 1}
	Gray  = RGB{0.5, 0.5, 0.5}
)

func colorOr(c *RGB, def RGB) RGB {
	if c == nil {
		return def
	}
	return *c
}

func (c RGB) valid() bool {
	in := func(v float64) bool { return v >= 0 && v <= 1 }
	return in(c.R) && in(c.G) && in(c.B)
}

// WatermarkPosition places a watermark on the page.
type WatermarkPosition int

const (
	WatermarkCenter WatermarkPosition = iota
	WatermarkDiagonal
	WatermarkTop
	WatermarkBottom
)

var watermarkPositions = map[WatermarkPosition]string{
	WatermarkCenter:   "center",
	WatermarkDiagonal: "diagonal",
	WatermarkTop:      "top",
	WatermarkBottom:   "bottom",
}

func (p WatermarkPosition) String() string {
	if s, ok := watermarkPositions[p]; ok {
		return s
	}
	return "watermark_position(" + strconv.Itoa(int(p)) + ")"
}

// ParseWatermarkPosition accepts center, diagonal, top or bottom.
func ParseWatermarkPosition(s string) (WatermarkPosition, error) {
	for p, name := range watermarkPositions {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, pdf.Validationf("unknown watermark position %q", s)
}

const (
	defaultWatermarkSize    = 48
	defaultWatermarkOpacity = 0.3
	defaultImageScale       = 0.5
	watermarkMargin         = 40
	diagonalAngle           = -45
)

// WatermarkOptions describes a text or image watermark drawn on every page.
type WatermarkOptions struct {
	Text string
	// Image, when set, is drawn instead of Text.
	Image []byte
	// ImageScale is the image width as a fraction of the page width.
	ImageScale float64
	Position   WatermarkPosition
	FontSize   float64
	// Opacity in (0,1]; zero selects the default.
	Opacity float64
	// Rotation in degrees, counter-clockwise. Zero keeps the position's
	// default: -45 for diagonal, none otherwise.
	Rotation float64
	Color    *RGB
}

func (WatermarkOptions) Operation() Operation { return OpWatermark }

func (o WatermarkOptions) validate() error {
	if strings.TrimSpace(o.Text) == "" && len(o.Image) == 0 {
		return pdf.Validationf("watermark needs text or an image")
	}
	if _, ok := watermarkPositions[o.Position]; !ok {
		return pdf.Validationf("unknown watermark position %d", int(o.Position))
	}
	if o.Opacity < 0 || o.Opacity > 1 {
		return pdf.Validationf("opacity must be in [0,1], got %v", o.Opacity)
	}
	if o.FontSize < 0 || o.ImageScale < 0 || o.ImageScale > 1 {
		return pdf.Validationf("font size and image scale must be positive")
	}
	if o.Color != nil && !o.Color.valid() {
		return pdf.Validationf("colour components must be in [0,1]")
	}
	return nil
}

func (o WatermarkOptions) angle() float64 {
	if o.Rotation != 0 {
		return o.Rotation
	}
	if o.Position == WatermarkDiagonal {
		return diagonalAngle
	}
	return 0
}

// anchor returns the point the watermark is centred on.
func (o WatermarkOptions) anchor(box pdf.Rect, height float64) (float64, float64) {
	cx := box.LLX + box.Width()/2
	switch o.Position {
	case WatermarkTop:
		return cx, box.URY - watermarkMargin - height/2
	case WatermarkBottom:
		return cx, box.LLY + watermarkMargin + height/2
	}
	return cx, box.LLY + box.Height()/2
}

// Watermark draws the watermark above the content of every page.
func Watermark(ctx context.Context, doc *pdf.Document, o WatermarkOptions, rep progress.Reporter) error {
	if err := o.validate(); err != nil {
		return err
	}
	t := progress.Track(rep)
	size := o.FontSize
	if size == 0 {
		size = defaultWatermarkSize
	}
	opacity := o.Opacity
	if opacity == 0 {
		opacity = defaultWatermarkOpacity
	}
	col := colorOr(o.Color, Gray)

	var img *pdf.ImageXObject
	if len(o.Image) > 0 {
		x, err := doc.EmbedImage(o.Image)
		if err != nil {
			return err
		}
		img = &x
	}
	scale := o.ImageScale
	if scale == 0 {
		scale = defaultImageScale
	}

	for i, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		var c pdf.Content
		c.Save().GState(doc.AddOpacity(p, opacity))
		box := p.CropBox
		if img != nil {
			w := box.Width() * scale
			h := w * float64(img.Height) / float64(img.Width)
			ax, ay := o.anchor(box, h)
			name := doc.AddXObject(p, img.Ref)
			if a := o.angle(); a != 0 {
				c.Rotated(a, ax, ay).Image(name, -w/2, -h/2, w, h)
			} else {
				c.Image(name, ax-w/2, ay-h/2, w, h)
			}
		} else {
			font := doc.AddStandardFont(p, pdf.HelveticaBold)
			w := pdf.MeasureText(pdf.HelveticaBold, o.Text, size)
			ax, ay := o.anchor(box, size)
			c.FillRGB(col.R, col.G, col.B)
			if a := o.angle(); a != 0 {
				c.Rotated(a, ax, ay).Text(font, size, -w/2, -size/3, o.Text)
			} else {
				c.Text(font, size, ax-w/2, ay-size/3, o.Text)
			}
		}
		c.Restore()
		doc.AppendContent(p, c.Bytes())
		t.Step(i+1, doc.PageCount(), bandLoad, bandTransform)
	}
	return nil
}

// NumberPosition places page numbers.
type NumberPosition int

const (
	BottomCenter NumberPosition = iota
	BottomLeft
	BottomRight
	TopCenter
	TopLeft
	TopRight
)

var numberPositions = map[NumberPosition]string{
	BottomCenter: "bottom-center",
	BottomLeft:   "bottom-left",
	BottomRight:  "bottom-right",
	TopCenter:    "top-center",
	TopLeft:      "top-left",
	TopRight:     "top-right",
}

func (p NumberPosition) String() string {
	if s, ok := numberPositions[p]; ok {
		return s
	}
	return "number_position(" + strconv.Itoa(int(p)) + ")"
}

// ParseNumberPosition accepts "bottom-center", "top_left" and the like.
func ParseNumberPosition(s string) (NumberPosition, error) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for p, name := range numberPositions {
		if s == name {
			return p, nil
		}
	}
	return 0, pdf.Validationf("unknown page number position %q", s)
}

func (p NumberPosition) top() bool { return p == TopCenter || p == TopLeft || p == TopRight }

const (
	defaultNumberSize   = 12
	defaultNumberMargin = 30
)

// PageNumberOptions labels every page with Start + its zero-based index.
type PageNumberOptions struct {
	Position NumberPosition
	// Start is the label of the first page; nil means 1. Zero is allowed.
	Start    *int
	FontSize float64
	// Format may contain {n} and {total}; empty means "{n}".
	Format string
	Margin float64
	Color  *RGB
}

func (PageNumberOptions) Operation() Operation { return OpPageNumbers }

func (o PageNumberOptions) validate() error {
	if _, ok := numberPositions[o.Position]; !ok {
		return pdf.Validationf("unknown page number position %d", int(o.Position))
	}
	if o.Start != nil && *o.Start < 0 {
		return pdf.Validationf("start number must not be negative")
	}
	if o.FontSize < 0 || o.Margin < 0 {
		return pdf.Validationf("font size and margin must not be negative")
	}
	if o.Color != nil && !o.Color.valid() {
		return pdf.Validationf("colour components must be in [0,1]")
	}
	return nil
}

func (o PageNumberOptions) start() int {
	if o.Start == nil {
		return 1
	}
	return *o.Start
}

// Label returns the text drawn on the page at index of a total-page document.
func (o PageNumberOptions) Label(index, total int) string {
	n := o.start() + index
	if o.Format == "" {
		return strconv.Itoa(n)
	}
	r := strings.NewReplacer("{n}", strconv.Itoa(n), "{total}", strconv.Itoa(o.start()+total-1))
	return r.Replace(o.Format)
}

// AddPageNumbers draws a label on every page.
func AddPageNumbers(ctx context.Context, doc *pdf.Document, o PageNumberOptions, rep progress.Reporter) error {
	if err := o.validate(); err != nil {
		return err
	}
	t := progress.Track(rep)
	size := o.FontSize
	if size == 0 {
		size = defaultNumberSize
	}
	margin := o.Margin
	if margin == 0 {
		margin = defaultNumberMargin
	}
	col := colorOr(o.Color, Black)
	total := doc.PageCount()

	for i, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		label := o.Label(i, total)
		w := pdf.MeasureText(pdf.Helvetica, label, size)
		box := p.CropBox

		var x float64
		switch o.Position {
		case BottomLeft, TopLeft:
			x = box.LLX + margin
		case BottomRight, TopRight:
			x = box.URX - margin - w
		default:
			x = box.LLX + (box.Width()-w)/2
		}
		y := box.LLY + margin
		if o.Position.top() {
			y = box.URY - margin - size
		}

		font := doc.AddStandardFont(p, pdf.Helvetica)
		var c pdf.Content
		c.Save().FillRGB(col.R, col.G, col.B).Text(font, size, x, y, label).Restore()
		doc.AppendContent(p, c.Bytes())
		t.Step(i+1, total, bandLoad, bandTransform)
	}
	return nil
}

const (
	defaultSignSize   = 24
	defaultSignWidth  = 150
	signFallbackLabel = "Signed"
)

// SignOptions places a typed or image signature on one page.
type SignOptions struct {
	// Text is drawn in an oblique face when Image is empty.
	Text string
	// Image is a PNG, JPEG, GIF, BMP or WebP signature.
	Image []byte
	// PageIndex is zero-based; the first page by default.
	PageIndex int
	X, Y      float64
	// Width and Height size the image; a zero Height keeps the aspect ratio.
	Width, Height float64
	FontSize      float64
	Color         *RGB
}

func (SignOptions) Operation() Operation { return OpSign }

func (o SignOptions) validate() error {
	if strings.TrimSpace(o.Text) == "" && len(o.Image) == 0 {
		return pdf.Validationf("signature needs text or an image")
	}
	if o.PageIndex < 0 {
		return pdf.Validationf("page index must not be negative")
	}
	if o.Width < 0 || o.Height < 0 || o.FontSize < 0 {
		return pdf.Validationf("signature size must not be negative")
	}
	if o.Color != nil && !o.Color.valid() {
		return pdf.Validationf("colour components must be in [0,1]")
	}
	return nil
}

// SignResult reports how the signature was drawn.
type SignResult struct {
	// Fallback is set when the image could not be embedded and the word
	// "Signed" was drawn in its place.
	Fallback bool
}

// Sign draws the signature on o.PageIndex. An image that cannot be embedded
// degrades to a text label rather than failing the operation.
func Sign(ctx context.Context, doc *pdf.Document, o SignOptions, rep progress.Reporter) (SignResult, error) {
	if err := o.validate(); err != nil {
		return SignResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return SignResult{}, err
	}
	t := progress.Track(rep)
	p, err := doc.Page(o.PageIndex)
	if err != nil {
		return SignResult{}, err
	}
	size := o.FontSize
	if size == 0 {
		size = defaultSignSize
	}
	col := colorOr(o.Color, Black)
	x, y := p.CropBox.LLX+o.X, p.CropBox.LLY+o.Y

	var res SignResult
	var c pdf.Content
	c.Save()
	text := o.Text
	if len(o.Image) > 0 {
		img, err := doc.EmbedImage(o.Image)
		if err == nil {
			w, h := o.Width, o.Height
			if w == 0 {
				w = defaultSignWidth
			}
			if h == 0 {
				h = w * float64(img.Height) / float64(img.Width)
			}
			c.Image(doc.AddXObject(p, img.Ref), x, y, w, h)
			text = ""
		} else {
			res.Fallback = true
			text = signFallbackLabel
		}
	}
	if text != "" {
		font := doc.AddStandardFont(p, pdf.HelveticaOblique)
		c.FillRGB(col.R, col.G, col.B).Text(font, size, x, y, text)
	}
	c.Restore()
	doc.AppendContent(p, c.Bytes())
	t.Progress(bandTransform)
	return res, nil
}

// EditTextOptions overlays replacement text on one page. Existing content is
// not removed; Cover paints a white box underneath to hide it.
type EditTextOptions struct {
	Text      string
	PageIndex int
	X, Y      float64
	FontSize  float64
	Color     *RGB
	Cover     bool
	// CoverWidth and CoverHeight enlarge the cover box beyond the text.
	CoverWidth, CoverHeight float64
}

func (EditTextOptions) Operation() Operation { return OpEditText }

func (o EditTextOptions) validate() error {
	if o.Text == "" {
		return pdf.Validationf("replacement text is empty")
	}
	if o.PageIndex < 0 || o.FontSize < 0 || o.CoverWidth < 0 || o.CoverHeight < 0 {
		return pdf.Validationf("page index and sizes must not be negative")
	}
	if o.Color != nil && !o.Color.valid() {
		return pdf.Validationf("colour components must be in [0,1]")
	}
	return nil
}

// EditText draws o.Text at (X, Y) relative to the visible area of the page.
func EditText(ctx context.Context, doc *pdf.Document, o EditTextOptions, rep progress.Reporter) error {
	if err := o.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t := progress.Track(rep)
	p, err := doc.Page(o.PageIndex)
	if err != nil {
		return err
	}
	size := o.FontSize
	if size == 0 {
		size = defaultNumberSize
	}
	col := colorOr(o.Color, Black)
	x, y := p.CropBox.LLX+o.X, p.CropBox.LLY+o.Y
	font := doc.AddStandardFont(p, pdf.Helvetica)

	var c pdf.Content
	c.Save()
	if o.Cover {
		w := math.Max(o.CoverWidth, pdf.MeasureText(pdf.Helvetica, o.Text, size)+4)
		h := math.Max(o.CoverHeight, size*1.2)
		c.FillRGB(White.R, White.G, White.B).FillRect(x-2, y-size*0.25, w, h)
	}
	c.FillRGB(col.R, col.G, col.B).Text(font, size, x, y, o.Text).Restore()
	doc.AppendContent(p, c.Bytes())
	t.Progress(bandTransform)
	return nil
}
