package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfsuite/internal/pdf"
	"github.com/local/pdfsuite/internal/progress"
)

func TestParsePageSelection(t *testing.T) {
	cases := []struct {
		sel   string
		total int
		want  []int
	}{
		{"1-3,5", 10, []int{1, 2, 3, 5}},
		{" 5 , 1-2 ", 10, []int{1, 2, 5}},
		{"3,3,2-4", 10, []int{2, 3, 4}},
		{"8-12", 10, []int{8, 9, 10}},
		{"0,1,11", 10, []int{1}},
	}
	for _, tc := range cases {
		got, err := ParsePageSelection(tc.sel, tc.total)
		require.NoError(t, err, tc.sel)
		assert.Equal(t, tc.want, got, tc.sel)
	}
}

func TestParsePageSelectionErrors(t *testing.T) {
	for _, sel := range []string{"", " , ", "20-30", "a", "1-b", "5-2"} {
		_, err := ParsePageSelection(sel, 10)
		require.Error(t, err, sel)
		assert.True(t, pdf.IsKind(err, pdf.KindValidation), sel)
	}
}

func TestSplit(t *testing.T) {
	src := makeDoc(t, "p", 10, pdf.Letter)
	src.Pages[4].MediaBox = pdf.A4
	src.Pages[4].CropBox = pdf.A4
	pages, err := ParsePageSelection("1-3,5", src.PageCount())
	require.NoError(t, err)

	rec := &progress.Recorder{}
	out, err := Split(context.Background(), src, pages, rec)
	require.NoError(t, err)
	require.Equal(t, 4, out.PageCount())
	for i, n := range []int{1, 2, 3, 5} {
		assert.Contains(t, content(t, out, i), label("p", n))
		assert.Equal(t, src.Pages[n-1].MediaBox, out.Pages[i].MediaBox)
	}
	assert.Equal(t, 10, src.PageCount(), "source is untouched")
	assert.Equal(t, 90, rec.Percents()[len(rec.Percents())-1])
}

func TestSplitNormalizesOrder(t *testing.T) {
	src := makeDoc(t, "p", 5, pdf.Letter)
	out, err := Split(context.Background(), src, []int{4, 2, 4}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.PageCount())
	assert.Contains(t, content(t, out, 0), label("p", 2))
	assert.Contains(t, content(t, out, 1), label("p", 4))

	_, err = Split(context.Background(), src, []int{6}, nil)
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))
	_, err = Split(context.Background(), src, nil, nil)
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))
}

func TestDeletePages(t *testing.T) {
	src := makeDoc(t, "p", 4, pdf.Letter)
	out, err := DeletePages(context.Background(), src, []int{2, 3}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.PageCount())
	assert.Contains(t, content(t, out, 1), label("p", 4))

	_, err = DeletePages(context.Background(), src, []int{1, 2, 3, 4}, nil)
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))
}

func TestReorder(t *testing.T) {
	src := makeDoc(t, "p", 4, pdf.Letter)
	out, err := Reorder(context.Background(), src, []int{3, 0, 2, 1}, nil)
	require.NoError(t, err)
	require.Equal(t, 4, out.PageCount())
	for i, n := range []int{4, 1, 3, 2} {
		assert.Contains(t, content(t, out, i), label("p", n))
	}
}

func TestReorderRejectsNonPermutation(t *testing.T) {
	src := makeDoc(t, "p", 3, pdf.Letter)
	for _, perm := range [][]int{{0, 1}, {0, 1, 1}, {0, 1, 3}, {-1, 0, 1}, {0, 1, 2, 3}} {
		_, err := Reorder(context.Background(), src, perm, nil)
		require.Error(t, err, "%v", perm)
		assert.True(t, pdf.IsKind(err, pdf.KindValidation), "%v", perm)
	}
}

func TestMerge(t *testing.T) {
	a := makeDoc(t, "a", 3, pdf.Letter)
	b := makeDoc(t, "b", 2, pdf.A4)
	aObjects, bObjects := a.ObjectCount(), b.ObjectCount()

	out, err := Merge(context.Background(), []*pdf.Document{a, b}, nil)
	require.NoError(t, err)
	require.Equal(t, 5, out.PageCount())
	for i := 0; i < 3; i++ {
		assert.Contains(t, content(t, out, i), label("a", i+1))
		assert.Equal(t, pdf.Letter, out.Pages[i].MediaBox)
	}
	for i := 0; i < 2; i++ {
		assert.Contains(t, content(t, out, 3+i), label("b", i+1))
		assert.Equal(t, pdf.A4, out.Pages[3+i].MediaBox)
	}

	// Inputs are not modified, and the output owns its objects.
	assert.Equal(t, 3, a.PageCount())
	assert.Equal(t, aObjects, a.ObjectCount())
	assert.Equal(t, bObjects, b.ObjectCount())
	require.NoError(t, Rotate(context.Background(), out, 90, nil, nil))
	assert.Equal(t, 0, a.Pages[0].Rotate)

	got := reload(t, mustSerialize(t, out))
	assert.Equal(t, 5, got.PageCount())
}

func TestMergeNeedsTwoDocuments(t *testing.T) {
	_, err := Merge(context.Background(), []*pdf.Document{makeDoc(t, "a", 1, pdf.Letter)}, nil)
	require.Error(t, err)
	assert.True(t, pdf.IsKind(err, pdf.KindMinimumInput))
}

func TestMergeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Merge(ctx, []*pdf.Document{makeDoc(t, "a", 2, pdf.Letter), makeDoc(t, "b", 2, pdf.Letter)}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func mustSerialize(t *testing.T, doc *pdf.Document) []byte {
	t.Helper()
	b, err := pdf.Serialize(doc, DefaultWrite)
	require.NoError(t, err)
	return b
}
