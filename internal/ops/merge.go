package ops

import (
	"context"

	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/progress"
)

// MergeOptions has no parameters; the input order is the page order.
type MergeOptions struct{}

func (MergeOptions) Operation() Operation { return OpMerge }
func (MergeOptions) validate() error      { return nil }

// Merge concatenates deep copies of every page of docs, in order, into a new
// document. The inputs are not modified. The first document's metadata is
// carried over.
func Merge(ctx context.Context, docs []*pdf.Document, rep progress.Reporter) (*pdf.Document, error) {
	if len(docs) < 2 {
		return nil, pdf.MinimumInputf("merge needs at least 2 documents, got %d", len(docs))
	}
	t := progress.Track(rep)
	total := 0
	for _, d := range docs {
		total += d.PageCount()
	}

	out := pdf.NewDocument()
	pdf.CopyInfo(docs[0], out)
	done := 0
	for _, d := range docs {
		for i := 0; i < d.PageCount(); i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if _, err := pdf.ClonePage(d, i, out); err != nil {
				return nil, err
			}
			done++
			t.Step(done, total, bandLoad, bandTransform)
		}
	}
	return out, nil
}
