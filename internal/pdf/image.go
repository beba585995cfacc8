package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// MaxImagePixels bounds width*height of an embedded image. Decoding
// allocates per pixel, so a small compressed file can otherwise expand to
// gigabytes.
const MaxImagePixels = 40_000_000

// ImageXObject is an image stored in a document pool.
type ImageXObject struct {
	Ref    Ref
	Width  int
	Height int
}

// EmbedImage decodes data (JPEG, PNG, GIF, BMP or WebP) and stores it as an
// image XObject. JPEG bytes are embedded as-is with DCTDecode; everything
// else is flattened to 8-bit RGB with an optional soft mask.
func (d *Document) EmbedImage(data []byte) (ImageXObject, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageXObject{}, Validationf("unreadable image: %v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageXObject{}, Validationf("image has no pixels")
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return ImageXObject{}, Validationf("image is %dx%d, above the %d pixel limit", cfg.Width, cfg.Height, MaxImagePixels)
	}
	if format == "jpeg" {
		return d.embedJPEG(data, cfg)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ImageXObject{}, Validationf("unreadable %s image: %v", format, err)
	}
	return d.embedRaster(img)
}

func (d *Document) embedJPEG(data []byte, cfg image.Config) (ImageXObject, error) {
	cs := Name("DeviceRGB")
	dict := Dict{
		"Type":             Name("XObject"),
		"Subtype":          Name("Image"),
		"Width":            Int(cfg.Width),
		"Height":           Int(cfg.Height),
		"BitsPerComponent": Int(8),
		"Filter":           Name("DCTDecode"),
	}
	switch cfg.ColorModel {
	case color.GrayModel:
		cs = "DeviceGray"
	case color.CMYKModel:
		cs = "DeviceCMYK"
		// Adobe-style CMYK JPEGs are stored inverted.
		dict["Decode"] = Array{Int(1), Int(0), Int(1), Int(0), Int(1), Int(0), Int(1), Int(0)}
	}
	dict["ColorSpace"] = cs
	ref := d.Add(&Stream{Dict: dict, Data: bytes.Clone(data)})
	return ImageXObject{Ref: ref, Width: cfg.Width, Height: cfg.Height}, nil
}

func (d *Document) embedRaster(img image.Image) (ImageXObject, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rgb := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	opaque := true
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rgb = append(rgb, c.R, c.G, c.B)
			alpha = append(alpha, c.A)
			if c.A != 0xff {
				opaque = false
			}
		}
	}
	data, err := deflate(rgb, 6)
	if err != nil {
		return ImageXObject{}, fmt.Errorf("compress image: %w", err)
	}
	dict := Dict{
		"Type":             Name("XObject"),
		"Subtype":          Name("Image"),
		"Width":            Int(w),
		"Height":           Int(h),
		"ColorSpace":       Name("DeviceRGB"),
		"BitsPerComponent": Int(8),
		"Filter":           Name(filterFlate),
	}
	if !opaque {
		mask, err := deflate(alpha, 6)
		if err != nil {
			return ImageXObject{}, fmt.Errorf("compress mask: %w", err)
		}
		dict["SMask"] = d.Add(&Stream{Dict: Dict{
			"Type":             Name("XObject"),
			"Subtype":          Name("Image"),
			"Width":            Int(w),
			"Height":           Int(h),
			"ColorSpace":       Name("DeviceGray"),
			"BitsPerComponent": Int(8),
			"Filter":           Name(filterFlate),
		}, Data: mask})
	}
	ref := d.Add(&Stream{Dict: dict, Data: data})
	return ImageXObject{Ref: ref, Width: w, Height: h}, nil
}
