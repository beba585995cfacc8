package ops

import (
	"fmt"
	"math"

	"github.com/local/pdfsuite/internal/pdf"
)

// NoDifferences is the single entry Compare returns for structurally equal
// documents.
const NoDifferences = "No structural differences found between the PDFs"

// CompareOptions has no parameters.
type CompareOptions struct{}

func (CompareOptions) Operation() Operation { return OpCompare }
func (CompareOptions) validate() error      { return nil }

// Compare lists structural differences between a and b: page count, source
// byte size, and the visible width and height of each page both documents
// have. It does not look at page content, so documents that differ only in
// what is drawn compare equal.
func Compare(a, b *pdf.Document) []string {
	var diffs []string
	if a.PageCount() != b.PageCount() {
		diffs = append(diffs, fmt.Sprintf("Page count differs: %d vs %d", a.PageCount(), b.PageCount()))
	}
	if a.SourceSize != b.SourceSize {
		diffs = append(diffs, fmt.Sprintf("File size differs: %d bytes vs %d bytes", a.SourceSize, b.SourceSize))
	}
	n := a.PageCount()
	if b.PageCount() < n {
		n = b.PageCount()
	}
	for i := 0; i < n; i++ {
		aw, ah := a.Pages[i].Size()
		bw, bh := b.Pages[i].Size()
		if !sameDim(aw, bw) || !sameDim(ah, bh) {
			diffs = append(diffs, fmt.Sprintf("Page %d dimensions differ: %s x %s vs %s x %s",
				i+1, dim(aw), dim(ah), dim(bw), dim(bh)))
		}
	}
	if len(diffs) == 0 {
		return []string{NoDifferences}
	}
	return diffs
}

func sameDim(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func dim(v float64) string { return fmt.Sprintf("%.2f", v) }

// Equal reports whether Compare found nothing.
func Equal(diffs []string) bool { return len(diffs) == 1 && diffs[0] == NoDifferences }
