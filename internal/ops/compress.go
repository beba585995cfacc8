package ops

import (
	"context"

	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/progress"
)

// objectStreamThreshold is the level above which object streams are used.
const objectStreamThreshold = 30

// CompressOptions selects a compression level in [1,100]. Embedded images
// are never re-encoded: a fresh copy of the page graph drops unreferenced
// objects, and levels above 30 additionally pack objects into object
// streams. Those are the only two effects of the level.
type CompressOptions struct {
	Level int
}

func (CompressOptions) Operation() Operation { return OpCompress }

func (o CompressOptions) validate() error { return checkLevel(o.Level) }

func checkLevel(level int) error {
	if level < 1 || level > 100 {
		return pdf.Validationf("compression level must be in [1,100], got %d", level)
	}
	return nil
}

// Compress copies every page of doc into a new document, which leaves behind
// any object no page reaches, and returns it with the write options the
// level selects.
func Compress(ctx context.Context, doc *pdf.Document, level int, rep progress.Reporter) (*pdf.Document, pdf.WriteOptions, error) {
	if err := checkLevel(level); err != nil {
		return nil, pdf.WriteOptions{}, err
	}
	t := progress.Track(rep)
	out := pdf.NewDocument()
	out.Version = doc.Version
	pdf.CopyInfo(doc, out)
	for i := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, pdf.WriteOptions{}, err
		}
		if _, err := pdf.ClonePage(doc, i, out); err != nil {
			return nil, pdf.WriteOptions{}, err
		}
		t.Step(i+1, doc.PageCount(), bandLoad, bandTransform)
	}
	return out, pdf.WriteOptions{
		ObjectStreams:   level > objectStreamThreshold,
		CompressStreams: true,
	}, nil
}
