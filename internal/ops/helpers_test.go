package ops

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/local/pdfsuite/internal/pdf"
)

// makeDoc builds a document whose page i draws "<tag> i" (1-based).
func makeDoc(t *testing.T, tag string, n int, box pdf.Rect) *pdf.Document {
	t.Helper()
	doc := pdf.NewDocument()
	for i := 0; i < n; i++ {
		p := doc.AddBlankPage(box)
		font := doc.AddStandardFont(p, pdf.Helvetica)
		var c pdf.Content
		c.Text(font, 12, 72, 72, fmt.Sprintf("%s %d", tag, i+1))
		doc.AppendContent(p, c.Bytes())
	}
	return doc
}

func makePDF(t *testing.T, tag string, n int, box pdf.Rect) []byte {
	t.Helper()
	b, err := pdf.Serialize(makeDoc(t, tag, n, box), pdf.WriteOptions{})
	require.NoError(t, err)
	return b
}

func content(t *testing.T, doc *pdf.Document, i int) string {
	t.Helper()
	b, err := doc.ContentBytes(doc.Pages[i])
	require.NoError(t, err)
	return string(b)
}

func label(tag string, n int) string { return fmt.Sprintf("(%s %d) Tj", tag, n) }

func reload(t *testing.T, b []byte) *pdf.Document {
	t.Helper()
	doc, err := pdf.Load(b, pdf.LoadOptions{})
	require.NoError(t, err)
	return doc
}
