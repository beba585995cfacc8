package ops

import (
	"context"

	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/progress"
)

// RotateOptions rotates pages clockwise by Degrees. Pages is an optional
// selection ("1,3-4"); empty means every page.
type RotateOptions struct {
	Degrees int
	Pages   string
}

func (RotateOptions) Operation() Operation { return OpRotate }

func (o RotateOptions) validate() error { return checkRotation(o.Degrees) }

func checkRotation(deg int) error {
	switch deg {
	case 90, 180, 270:
		return nil
	}
	return pdf.Validationf("rotation must be 90, 180 or 270, got %d", deg)
}

// Rotate adds deg to the rotation of the given 1-based pages, or of every
// page when pages is empty. The document is modified in place.
func Rotate(ctx context.Context, doc *pdf.Document, deg int, pages []int, rep progress.Reporter) error {
	if err := checkRotation(deg); err != nil {
		return err
	}
	t := progress.Track(rep)
	targets := pages
	if len(targets) == 0 {
		targets = make([]int, doc.PageCount())
		for i := range targets {
			targets[i] = i + 1
		}
	}
	for _, n := range targets {
		if n < 1 || n > doc.PageCount() {
			return pdf.Validationf("page %d outside 1-%d", n, doc.PageCount())
		}
	}
	for i, n := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := doc.Pages[n-1]
		p.Rotate = pdf.NormalizeRotation(p.Rotate + deg)
		t.Step(i+1, len(targets), bandLoad, bandTransform)
	}
	return nil
}

// CropOptions are margins, in points, trimmed from each side of the visible
// area of every page.
type CropOptions struct {
	Top, Right, Bottom, Left float64
}

func (CropOptions) Operation() Operation { return OpCrop }

func (o CropOptions) validate() error {
	if o.Top < 0 || o.Right < 0 || o.Bottom < 0 || o.Left < 0 {
		return pdf.Validationf("crop margins must not be negative")
	}
	return nil
}

// cropped returns the box narrowed by o, or false when nothing would remain.
func (o CropOptions) cropped(box pdf.Rect) (pdf.Rect, bool) {
	w := box.Width() - o.Left - o.Right
	h := box.Height() - o.Top - o.Bottom
	if w <= 0 || h <= 0 {
		return pdf.Rect{}, false
	}
	return pdf.NewRect(box.LLX+o.Left, box.LLY+o.Bottom, w, h), true
}

// Crop narrows the crop box of every page. All pages are checked before any
// is changed, so a margin set that would empty one page leaves the document
// untouched.
func Crop(ctx context.Context, doc *pdf.Document, o CropOptions, rep progress.Reporter) error {
	if err := o.validate(); err != nil {
		return err
	}
	t := progress.Track(rep)
	boxes := make([]pdf.Rect, doc.PageCount())
	for i, p := range doc.Pages {
		box, ok := o.cropped(p.CropBox)
		if !ok {
			w, h := p.Size()
			return pdf.Validationf("margins leave nothing of page %d (%.0fx%.0f)", i+1, w, h)
		}
		boxes[i] = box
	}
	for i, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.CropBox = boxes[i]
		t.Step(i+1, len(boxes), bandLoad, bandTransform)
	}
	return nil
}
