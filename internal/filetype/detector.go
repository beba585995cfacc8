package filetype

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfsuite/internal/pdf"
)

// Kind is the coarse class of an upload.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPDF
	KindImage
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

// Supported image formats for watermark and signature payloads. These are
// the formats the document image embedder can decode.
var imageTypes = map[string]string{
	"image/jpeg": "JPEG image",
	"image/png":  "PNG image",
	"image/gif":  "GIF image",
	"image/bmp":  "BMP image",
	"image/webp": "WebP image",
}

// Detector sniffs uploads by magic bytes, never by filename.
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect classifies data.
func (d *Detector) Detect(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	// mimetype appends parameters such as "; charset=utf-8" to some types
	base := info.MIMEType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	switch {
	case mtype.Is("application/pdf"):
		info.Kind = KindPDF
		info.Description = "PDF document"
	case imageTypes[base] != "":
		info.Kind = KindImage
		info.Description = imageTypes[base]
	default:
		info.Description = "Unsupported file type: " + base
	}
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Msg("detected file type")
	return info
}

// RequirePDF returns a validation error naming name unless data is a PDF.
func (d *Detector) RequirePDF(name string, data []byte) error {
	if len(data) == 0 {
		return pdf.Validationf("%s is empty", name)
	}
	info := d.Detect(data)
	if info.Kind != KindPDF {
		return pdf.Validationf("%s is not a PDF (detected %s)", name, info.MIMEType)
	}
	return nil
}

// RequireImage returns a validation error unless data is an embeddable image.
func (d *Detector) RequireImage(name string, data []byte) error {
	info := d.Detect(data)
	if info.Kind != KindImage {
		return pdf.Validationf("%s is not a supported image (detected %s)", name, info.MIMEType)
	}
	return nil
}
