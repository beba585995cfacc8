package pdf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		opts WriteOptions
	}{
		{"classic", WriteOptions{}},
		{"compressed streams", WriteOptions{CompressStreams: true}},
		{"object streams", WriteOptions{ObjectStreams: true, CompressStreams: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := newTestDoc(t, 3, Letter)
			doc.Pages[1].Rotate = 90
			doc.Pages[2].MediaBox = A4
			doc.Pages[2].CropBox = NewRect(10, 20, 300, 400)
			doc.Info["Title"] = NewText("Quarterly report")

			b := serialize(t, doc, tc.opts)
			got, err := Load(b, LoadOptions{})
			require.NoError(t, err)

			require.Equal(t, 3, got.PageCount())
			for i, p := range doc.Pages {
				assert.Equal(t, p.MediaBox, got.Pages[i].MediaBox, "page %d media box", i+1)
				assert.Equal(t, p.CropBox, got.Pages[i].CropBox, "page %d crop box", i+1)
				assert.Equal(t, p.Rotate, got.Pages[i].Rotate, "page %d rotation", i+1)
			}
			assert.Contains(t, pageText(t, got, 1), "(page 2) Tj")
			assert.Equal(t, "Quarterly report", got.Info["Title"].(String).Text())
			assert.Equal(t, int64(len(b)), got.SourceSize)
		})
	}
}

func TestSerializeObjectStreamsBumpsVersion(t *testing.T) {
	doc := newTestDoc(t, 1, Letter)
	doc.Version = "1.4"
	b := serialize(t, doc, WriteOptions{ObjectStreams: true})
	assert.True(t, bytes.HasPrefix(b, []byte("%PDF-1.5\n")))
	assert.Contains(t, string(b), "/Type /ObjStm")
	assert.Contains(t, string(b), "/Type /XRef")
	assert.NotContains(t, string(b), "\nxref\n")
}

func TestSerializeRejectsEmptyDocument(t *testing.T) {
	_, err := Serialize(NewDocument(), WriteOptions{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
}

func TestSerializeKeepsOrphans(t *testing.T) {
	doc := newTestDoc(t, 1, Letter)
	orphan := doc.Add(Dict{"Note": NewText("unreferenced")})
	got, err := Load(serialize(t, doc, WriteOptions{}), LoadOptions{})
	require.NoError(t, err)
	d, ok := got.Object(orphan).(Dict)
	require.True(t, ok)
	assert.Equal(t, "unreferenced", d["Note"].(String).Text())
}

func TestSerializeDoesNotModifyDocument(t *testing.T) {
	doc := newTestDoc(t, 2, Letter)
	before := doc.ObjectCount()
	serialize(t, doc, WriteOptions{ObjectStreams: true, CompressStreams: true})
	assert.Equal(t, before, doc.ObjectCount())
	s := doc.Object(doc.Pages[0].Contents[0]).(*Stream)
	assert.Nil(t, s.Dict["Filter"])
}

func TestCompressStreamsFlatesContent(t *testing.T) {
	doc := NewDocument()
	p := doc.AddBlankPage(Letter)
	doc.AppendContent(p, bytes.Repeat([]byte("0 0 m 100 100 l S\n"), 50))
	b := serialize(t, doc, WriteOptions{CompressStreams: true})
	assert.Contains(t, string(b), "/Filter /FlateDecode")

	got, err := Load(b, LoadOptions{})
	require.NoError(t, err)
	assert.Contains(t, pageText(t, got, 0), "100 100 l S")
}

func TestNonASCIIMetadataSurvives(t *testing.T) {
	doc := newTestDoc(t, 1, Letter)
	doc.Info["Author"] = NewText("Zoë Ångström")
	got, err := Load(serialize(t, doc, WriteOptions{ObjectStreams: true}), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Zoë Ångström", got.Info["Author"].(String).Text())
}
