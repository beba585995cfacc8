// Package preview renders page thumbnails through MuPDF (go-fitz).
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfsuite/internal/pdf"
)

// Format of the rendered image.
type Format int

const (
	PNG Format = iota
	JPEG
)

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Options for Render. Page is 1-based.
type Options struct {
	Page    int
	DPI     int
	MaxDPI  int
	Gray    bool
	Format  Format
	Quality int
}

func (o Options) validate() error {
	if o.Page < 1 {
		return pdf.Validationf("page must be 1 or greater, got %d", o.Page)
	}
	maxDPI := o.MaxDPI
	if maxDPI <= 0 {
		maxDPI = 300
	}
	if o.DPI < 18 || o.DPI > maxDPI {
		return pdf.Validationf("dpi must be between 18 and %d, got %d", maxDPI, o.DPI)
	}
	if o.Format == JPEG && (o.Quality < 0 || o.Quality > 100) {
		return pdf.Validationf("jpeg quality must be between 0 and 100")
	}
	return nil
}

// Render rasterizes one page of data.
func Render(data []byte, o Options) ([]byte, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, pdf.Parsef("failed to open PDF for preview: %v", err)
	}
	defer doc.Close()

	if o.Page > doc.NumPage() {
		return nil, pdf.Validationf("page %d out of range (document has %d)", o.Page, doc.NumPage())
	}
	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(o.Page-1, float64(o.DPI))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", o.Page, err)
	}

	var final image.Image = img
	if o.Gray {
		gray := image.NewGray(img.Bounds())
		draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
		final = gray
	}

	var buf bytes.Buffer
	switch o.Format {
	case JPEG:
		q := o.Quality
		if q == 0 {
			q = 85
		}
		err = jpeg.Encode(&buf, final, &jpeg.Options{Quality: q})
	default:
		err = png.Encode(&buf, final)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	log.Debug().
		Int("page", o.Page).
		Int("dpi", o.DPI).
		Int("width", final.Bounds().Dx()).
		Int("height", final.Bounds().Dy()).
		Int("bytes", buf.Len()).
		Msg("rendered preview")
	return buf.Bytes(), nil
}
