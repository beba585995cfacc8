package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestDoc builds a document of n pages, each drawing "page N" in
// Helvetica. All pages share one font object.
func newTestDoc(t *testing.T, n int, box Rect) *Document {
	t.Helper()
	doc := NewDocument()
	for i := 0; i < n; i++ {
		p := doc.AddBlankPage(box)
		font := doc.AddStandardFont(p, Helvetica)
		var c Content
		c.Text(font, 12, 72, 72, fmt.Sprintf("page %d", i+1))
		doc.AppendContent(p, c.Bytes())
	}
	return doc
}

func serialize(t *testing.T, doc *Document, opts WriteOptions) []byte {
	t.Helper()
	b, err := Serialize(doc, opts)
	require.NoError(t, err)
	return b
}

// buildPDF assembles a classic PDF from object bodies; objs[i] becomes
// object i+1. The trailer gets /Size added.
func buildPDF(objs []string, trailer string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	trailer = strings.TrimSuffix(strings.TrimSpace(trailer), ">>")
	fmt.Fprintf(&buf, "trailer\n%s /Size %d>>\nstartxref\n%d\n%%%%EOF\n", trailer, len(objs)+1, xref)
	return buf.Bytes()
}

func pageText(t *testing.T, doc *Document, i int) string {
	t.Helper()
	p, err := doc.Page(i)
	require.NoError(t, err)
	b, err := doc.ContentBytes(p)
	require.NoError(t, err)
	return string(b)
}
