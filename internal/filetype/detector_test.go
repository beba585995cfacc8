package filetype

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfsuite/internal/pdf"
)

func samplePDF(t *testing.T) []byte {
	t.Helper()
	doc := pdf.NewDocument()
	doc.AddBlankPage(pdf.Letter)
	b, err := pdf.Serialize(doc, pdf.WriteOptions{})
	require.NoError(t, err)
	return b
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	d := New()

	info := d.Detect(samplePDF(t))
	assert.Equal(t, KindPDF, info.Kind)
	assert.Equal(t, "application/pdf", info.MIMEType)
	assert.Equal(t, ".pdf", info.Extension)

	info = d.Detect(samplePNG(t))
	assert.Equal(t, KindImage, info.Kind)
	assert.Equal(t, "PNG image", info.Description)

	info = d.Detect([]byte("just some words"))
	assert.Equal(t, KindUnsupported, info.Kind)
	assert.Contains(t, info.Description, "text/plain")
}

func TestRequirePDF(t *testing.T) {
	d := New()
	assert.NoError(t, d.RequirePDF("a.pdf", samplePDF(t)))

	err := d.RequirePDF("notes.pdf", []byte("hello"))
	require.Error(t, err)
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))
	assert.Contains(t, err.Error(), "notes.pdf is not a PDF")

	assert.Error(t, d.RequirePDF("empty.pdf", nil))
}

func TestRequireImage(t *testing.T) {
	d := New()
	assert.NoError(t, d.RequireImage("sig.png", samplePNG(t)))
	err := d.RequireImage("sig.png", samplePDF(t))
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))
}
