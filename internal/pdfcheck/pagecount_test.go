package pdfcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfsuite/internal/pdf"
)

func build(t *testing.T, pages int, write pdf.WriteOptions) []byte {
	t.Helper()
	doc := pdf.NewDocument()
	for i := 0; i < pages; i++ {
		p := doc.AddBlankPage(pdf.Letter)
		font := doc.AddStandardFont(p, pdf.Helvetica)
		var c pdf.Content
		c.Text(font, 12, 72, 720, "hello")
		doc.AppendContent(p, c.Bytes())
	}
	b, err := pdf.Serialize(doc, write)
	require.NoError(t, err)
	return b
}

func TestCheckAcceptsSerializedOutput(t *testing.T) {
	c := New()
	for _, w := range []pdf.WriteOptions{{}, {CompressStreams: true}, {CompressStreams: true, ObjectStreams: true}} {
		data := build(t, 3, w)
		n, err := c.PageCount(data)
		require.NoError(t, err, "%+v", w)
		assert.Equal(t, 3, n)
		assert.NoError(t, c.Check(data, 3), "%+v", w)
	}
}

func TestCheckPageMismatch(t *testing.T) {
	err := New().Check(build(t, 2, pdf.WriteOptions{}), 5)
	require.Error(t, err)
	assert.True(t, pdf.IsKind(err, pdf.KindParse))
	assert.Contains(t, err.Error(), "output has 2 pages, expected 5")
}

func TestCheckRejectsGarbage(t *testing.T) {
	err := New().Check([]byte("%PDF-1.4\nnot really\n%%EOF"), 0)
	require.Error(t, err)
	assert.True(t, pdf.IsKind(err, pdf.KindParse))
}
