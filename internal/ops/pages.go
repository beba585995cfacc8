package ops

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/progress"
)

// SplitOptions selects the pages to extract, e.g. "1-3,5".
type SplitOptions struct {
	Pages string
}

func (SplitOptions) Operation() Operation { return OpSplit }

func (o SplitOptions) validate() error {
	if strings.TrimSpace(o.Pages) == "" {
		return pdf.Validationf("select at least one page")
	}
	return nil
}

// DeletePagesOptions selects the pages to remove.
type DeletePagesOptions struct {
	Pages string
}

func (DeletePagesOptions) Operation() Operation { return OpDeletePages }

func (o DeletePagesOptions) validate() error {
	if strings.TrimSpace(o.Pages) == "" {
		return pdf.Validationf("select at least one page")
	}
	return nil
}

// ReorderOptions gives the new page order as zero-based source indices:
// page i of the output is page Order[i] of the input.
type ReorderOptions struct {
	Order []int
}

func (ReorderOptions) Operation() Operation { return OpReorder }

func (o ReorderOptions) validate() error {
	if len(o.Order) == 0 {
		return pdf.Validationf("page order is empty")
	}
	return nil
}

// ParsePageSelection parses a selection such as "1-3,5" against a document of
// total pages. Numbers are 1-based and ranges inclusive. The result is
// ascending and free of duplicates. Numbers outside [1, total] are dropped;
// a selection that ends up empty is a validation error.
func ParsePageSelection(sel string, total int) ([]int, error) {
	seen := map[int]bool{}
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if lo < 1 {
			lo = 1
		}
		if hi > total {
			hi = total
		}
		for n := lo; n <= hi; n++ {
			seen[n] = true
		}
	}
	pages := make([]int, 0, len(seen))
	for n := range seen {
		pages = append(pages, n)
	}
	sort.Ints(pages)
	if len(pages) == 0 {
		return nil, pdf.Validationf("select at least one page")
	}
	return pages, nil
}

func parseRange(part string) (int, int, error) {
	a, b, isRange := strings.Cut(part, "-")
	lo, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, pdf.Validationf("bad page number %q", part)
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, pdf.Validationf("bad page range %q", part)
	}
	if hi < lo {
		return 0, 0, pdf.Validationf("page range %q runs backwards", part)
	}
	return lo, hi, nil
}

// Split returns a new document holding deep copies of the given 1-based
// pages in ascending order. The source is not modified.
func Split(ctx context.Context, doc *pdf.Document, pages []int, rep progress.Reporter) (*pdf.Document, error) {
	t := progress.Track(rep)
	pages = normalizeSelection(pages)
	if len(pages) == 0 {
		return nil, pdf.Validationf("select at least one page")
	}
	for _, n := range pages {
		if n < 1 || n > doc.PageCount() {
			return nil, pdf.Validationf("page %d outside 1-%d", n, doc.PageCount())
		}
	}
	out := pdf.NewDocument()
	pdf.CopyInfo(doc, out)
	for i, n := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := pdf.ClonePage(doc, n-1, out); err != nil {
			return nil, err
		}
		t.Step(i+1, len(pages), bandLoad, bandTransform)
	}
	return out, nil
}

// DeletePages returns a new document without the given 1-based pages.
func DeletePages(ctx context.Context, doc *pdf.Document, pages []int, rep progress.Reporter) (*pdf.Document, error) {
	drop := map[int]bool{}
	for _, n := range pages {
		drop[n] = true
	}
	var keep []int
	for n := 1; n <= doc.PageCount(); n++ {
		if !drop[n] {
			keep = append(keep, n)
		}
	}
	if len(keep) == 0 {
		return nil, pdf.Validationf("cannot delete every page")
	}
	return Split(ctx, doc, keep, rep)
}

func normalizeSelection(pages []int) []int {
	out := append([]int(nil), pages...)
	sort.Ints(out)
	n := 0
	for i, p := range out {
		if i > 0 && p == out[n-1] {
			continue
		}
		out[n] = p
		n++
	}
	return out[:n]
}

// Reorder returns a new document whose page i is the source page perm[i].
// perm must be a permutation of [0, n).
func Reorder(ctx context.Context, doc *pdf.Document, perm []int, rep progress.Reporter) (*pdf.Document, error) {
	t := progress.Track(rep)
	n := doc.PageCount()
	if len(perm) != n {
		return nil, pdf.Validationf("order lists %d pages, document has %d", len(perm), n)
	}
	seen := make([]bool, n)
	for _, p := range perm {
		if p < 0 || p >= n {
			return nil, pdf.Validationf("page index %d outside [0,%d)", p, n)
		}
		if seen[p] {
			return nil, pdf.Validationf("page index %d appears twice", p)
		}
		seen[p] = true
	}
	out := pdf.NewDocument()
	pdf.CopyInfo(doc, out)
	for i, p := range perm {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := pdf.ClonePage(doc, p, out); err != nil {
			return nil, err
		}
		t.Step(i+1, n, bandLoad, bandTransform)
	}
	return out, nil
}
