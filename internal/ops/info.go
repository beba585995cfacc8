package ops

import (
	"strings"

	"github.com/local/pdfsuite/internal/pdf"
)

// PageInfo is the geometry of one page.
type PageInfo struct {
	Number   int       `json:"number"`
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	Rotate   int       `json:"rotate"`
	MediaBox [4]float64 `json:"media_box"`
	CropBox  [4]float64 `json:"crop_box"`
}

// DocumentInfo summarises a loaded document.
type DocumentInfo struct {
	Version     string            `json:"version"`
	PageCount   int               `json:"page_count"`
	SizeBytes   int64             `json:"size_bytes"`
	Objects     int               `json:"objects"`
	Encrypted   bool              `json:"encrypted"`
	Undecrypted bool              `json:"undecrypted,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Pages       []PageInfo        `json:"pages"`
}

func box(r pdf.Rect) [4]float64 { return [4]float64{r.LLX, r.LLY, r.URX, r.URY} }

// Info describes doc without modifying it.
func Info(doc *pdf.Document) DocumentInfo {
	di := DocumentInfo{
		Version:     doc.Version,
		PageCount:   doc.PageCount(),
		SizeBytes:   doc.SourceSize,
		Objects:     doc.ObjectCount(),
		Encrypted:   doc.Encrypted,
		Undecrypted: doc.Undecrypted,
		Metadata:    map[string]string{},
		Pages:       make([]PageInfo, 0, doc.PageCount()),
	}
	if !doc.Undecrypted {
		for _, k := range doc.Info.Keys() {
			if s, ok := doc.Resolve(doc.Info[k]).(pdf.String); ok {
				di.Metadata[k] = s.Text()
			}
		}
	}
	for i, p := range doc.Pages {
		w, h := p.Size()
		di.Pages = append(di.Pages, PageInfo{
			Number:   i + 1,
			Width:    w,
			Height:   h,
			Rotate:   p.Rotate,
			MediaBox: box(p.MediaBox),
			CropBox:  box(p.CropBox),
		})
	}
	return di
}

// MetadataOptions sets document information entries. Empty fields are left
// as they are; Clear removes every existing entry first.
type MetadataOptions struct {
	Title    string
	Author   string
	Subject  string
	Keywords []string
	Creator  string
	Producer string
	Clear    bool
}

func (MetadataOptions) Operation() Operation { return OpSetMetadata }

func (o MetadataOptions) validate() error {
	if !o.Clear && len(o.fields()) == 0 {
		return pdf.Validationf("no metadata to set")
	}
	return nil
}

func (o MetadataOptions) fields() map[string]string {
	f := map[string]string{}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			f[k] = v
		}
	}
	set("Title", o.Title)
	set("Author", o.Author)
	set("Subject", o.Subject)
	set("Keywords", strings.Join(o.Keywords, ", "))
	set("Creator", o.Creator)
	set("Producer", o.Producer)
	return f
}

// SetMetadata writes o into the document information dictionary.
func SetMetadata(doc *pdf.Document, o MetadataOptions) {
	if o.Clear {
		doc.Info = pdf.Dict{}
	}
	if doc.Info == nil {
		doc.Info = pdf.Dict{}
	}
	for k, v := range o.fields() {
		doc.Info[k] = pdf.NewText(v)
	}
}
