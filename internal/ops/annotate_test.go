package ops

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfsuite/internal/pdf"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for x := 0; x < 20; x++ {
		img.Set(x, 5, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPageNumbersFromFive(t *testing.T) {
	doc := makeDoc(t, "p", 3, pdf.Letter)
	err := AddPageNumbers(context.Background(), doc, PageNumberOptions{Position: BottomCenter, Start: startAt(5)}, nil)
	require.NoError(t, err)

	got := reload(t, mustSerialize(t, doc))
	for i, want := range []string{"(5) Tj", "(6) Tj", "(7) Tj"} {
		c := content(t, got, i)
		assert.Contains(t, c, want, "page %d", i+1)
		assert.Contains(t, c, label("p", i+1), "original content kept")
	}
}

func TestPageNumberPlacement(t *testing.T) {
	box := pdf.Letter
	w := pdf.MeasureText(pdf.Helvetica, "1", 12)
	cases := []struct {
		pos  NumberPosition
		x, y float64
	}{
		{BottomCenter, (612 - w) / 2, 30},
		{BottomLeft, 30, 30},
		{BottomRight, 612 - 30 - w, 30},
		{TopCenter, (612 - w) / 2, 792 - 30 - 12},
		{TopLeft, 30, 792 - 30 - 12},
		{TopRight, 612 - 30 - w, 792 - 30 - 12},
	}
	for _, tc := range cases {
		t.Run(tc.pos.String(), func(t *testing.T) {
			doc := makeDoc(t, "p", 1, box)
			require.NoError(t, AddPageNumbers(context.Background(), doc, PageNumberOptions{Position: tc.pos}, nil))
			var want pdf.Content
			want.Text("SF1", 12, tc.x, tc.y, "1")
			assert.Contains(t, content(t, doc, 0), string(want.Bytes()))
		})
	}
}

func TestPageNumberFormat(t *testing.T) {
	o := PageNumberOptions{Start: startAt(1), Format: "Page {n} of {total}"}
	assert.Equal(t, "Page 2 of 4", o.Label(1, 4))
	assert.Equal(t, "3", PageNumberOptions{Start: startAt(3)}.Label(0, 4))
	assert.Equal(t, "1", PageNumberOptions{}.Label(0, 1))
}

func TestPageNumbersFromZero(t *testing.T) {
	o := PageNumberOptions{Start: startAt(0), Format: "{n}/{total}"}
	require.NoError(t, o.validate())
	assert.Equal(t, "0/2", o.Label(0, 3))
	assert.Equal(t, "2/2", o.Label(2, 3))

	doc := makeDoc(t, "p", 2, pdf.Letter)
	require.NoError(t, AddPageNumbers(context.Background(), doc, PageNumberOptions{Start: startAt(0)}, nil))
	assert.Contains(t, content(t, doc, 0), "(0) Tj")
	assert.Contains(t, content(t, doc, 1), "(1) Tj")

	assert.True(t, pdf.IsKind(PageNumberOptions{Start: startAt(-1)}.validate(), pdf.KindValidation))
}

func startAt(n int) *int { return &n }

func TestParsePositions(t *testing.T) {
	p, err := ParseNumberPosition("top_left")
	require.NoError(t, err)
	assert.Equal(t, TopLeft, p)
	_, err = ParseNumberPosition("middle")
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))

	w, err := ParseWatermarkPosition("Diagonal")
	require.NoError(t, err)
	assert.Equal(t, WatermarkDiagonal, w)
	_, err = ParseWatermarkPosition("left")
	assert.Error(t, err)
}

func TestWatermarkText(t *testing.T) {
	doc := makeDoc(t, "p", 2, pdf.Letter)
	err := Watermark(context.Background(), doc, WatermarkOptions{Text: "DRAFT", Position: WatermarkDiagonal}, nil)
	require.NoError(t, err)

	for i := range doc.Pages {
		c := content(t, doc, i)
		assert.Contains(t, c, "(DRAFT) Tj")
		assert.Contains(t, c, " gs")
		// -45 degrees about the page centre.
		assert.Contains(t, c, "0.7071 -0.7071 0.7071 0.7071 306 396 cm")
		ext := doc.Pages[i].Resources["ExtGState"].(pdf.Dict)
		assert.Len(t, ext, 1)
	}
}

func TestWatermarkCenterIsHorizontal(t *testing.T) {
	doc := makeDoc(t, "p", 1, pdf.Letter)
	require.NoError(t, Watermark(context.Background(), doc, WatermarkOptions{Text: "X", FontSize: 10}, nil))
	c := content(t, doc, 0)
	assert.NotContains(t, c, " cm")
	w := pdf.MeasureText(pdf.HelveticaBold, "X", 10)
	var want pdf.Content
	want.Text("SF2", 10, 306-w/2, 396-10.0/3, "X")
	assert.Contains(t, c, string(want.Bytes()))
}

func TestWatermarkImage(t *testing.T) {
	doc := makeDoc(t, "p", 2, pdf.Letter)
	err := Watermark(context.Background(), doc, WatermarkOptions{Image: pngBytes(t), Position: WatermarkTop}, nil)
	require.NoError(t, err)
	for i := range doc.Pages {
		assert.Contains(t, content(t, doc, i), "/Im1 Do")
	}
	// One image object shared by both pages.
	x0 := doc.Pages[0].Resources["XObject"].(pdf.Dict)["Im1"]
	x1 := doc.Pages[1].Resources["XObject"].(pdf.Dict)["Im1"]
	assert.Equal(t, x0, x1)

	err = Watermark(context.Background(), doc, WatermarkOptions{Image: []byte("junk")}, nil)
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))
}

func TestWatermarkValidation(t *testing.T) {
	doc := makeDoc(t, "p", 1, pdf.Letter)
	for _, o := range []WatermarkOptions{
		{},
		{Text: "x", Opacity: 1.5},
		{Text: "x", Position: WatermarkPosition(42)},
		{Text: "x", Color: &RGB{R: 2}},
	} {
		err := Watermark(context.Background(), doc, o, nil)
		assert.True(t, pdf.IsKind(err, pdf.KindValidation), "%+v", o)
	}
}

func TestSignText(t *testing.T) {
	doc := makeDoc(t, "p", 2, pdf.Letter)
	res, err := Sign(context.Background(), doc, SignOptions{Text: "Ada Lovelace", X: 100, Y: 80}, nil)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	c := content(t, doc, 0)
	assert.Contains(t, c, "(Ada Lovelace) Tj")
	assert.Contains(t, c, "100 80 Td")
	assert.NotContains(t, content(t, doc, 1), "Ada Lovelace")

	font := doc.Resolve(doc.Pages[0].Resources["Font"].(pdf.Dict)["SF2"]).(pdf.Dict)
	assert.Equal(t, pdf.Name(pdf.HelveticaOblique), font.Name("BaseFont"))
}

func TestSignImage(t *testing.T) {
	doc := makeDoc(t, "p", 2, pdf.Letter)
	res, err := Sign(context.Background(), doc, SignOptions{Image: pngBytes(t), PageIndex: 1, X: 10, Y: 20, Width: 100}, nil)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Contains(t, content(t, doc, 1), "100 0 0 50 10 20 cm")
}

func TestSignFallsBackToLabel(t *testing.T) {
	doc := makeDoc(t, "p", 1, pdf.Letter)
	res, err := Sign(context.Background(), doc, SignOptions{Image: []byte("not a picture"), X: 10, Y: 10}, nil)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Contains(t, content(t, doc, 0), "(Signed) Tj")
}

func TestSignFallsBackOnOversizedImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	b := buf.Bytes()
	// claim 8000x8000 in the header and fix its checksum
	binary.BigEndian.PutUint32(b[16:], 8000)
	binary.BigEndian.PutUint32(b[20:], 8000)
	binary.BigEndian.PutUint32(b[29:], crc32.ChecksumIEEE(b[12:29]))

	doc := makeDoc(t, "p", 1, pdf.Letter)
	res, err := Sign(context.Background(), doc, SignOptions{Image: b, X: 10, Y: 10}, nil)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Contains(t, content(t, doc, 0), "(Signed) Tj")

	err = Watermark(context.Background(), doc, WatermarkOptions{Image: b}, nil)
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))
}

func TestSignPageOutOfRange(t *testing.T) {
	doc := makeDoc(t, "p", 1, pdf.Letter)
	_, err := Sign(context.Background(), doc, SignOptions{Text: "x", PageIndex: 3}, nil)
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))
}

func TestEditText(t *testing.T) {
	doc := makeDoc(t, "p", 1, pdf.Letter)
	err := EditText(context.Background(), doc, EditTextOptions{Text: "Revised", X: 72, Y: 72, Cover: true}, nil)
	require.NoError(t, err)
	c := content(t, doc, 0)
	cover := strings.Index(c, "1 1 1 rg")
	text := strings.Index(c, "(Revised) Tj")
	require.Positive(t, cover)
	assert.Greater(t, text, cover, "cover box is painted before the text")

	err = EditText(context.Background(), doc, EditTextOptions{}, nil)
	assert.True(t, pdf.IsKind(err, pdf.KindValidation))
}

func TestAnnotationsIsolateExistingContent(t *testing.T) {
	doc := makeDoc(t, "p", 1, pdf.Letter)
	require.NoError(t, AddPageNumbers(context.Background(), doc, PageNumberOptions{}, nil))
	c := content(t, doc, 0)
	assert.True(t, strings.HasPrefix(c, "q\n"), "existing content is wrapped in q/Q")
	assert.Len(t, doc.Pages[0].Contents, 4)
}
