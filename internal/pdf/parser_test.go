package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, src string) Object {
	t.Helper()
	o, err := newParser([]byte(src), 0).parseObject()
	require.NoError(t, err)
	return o
}

func TestParseObject(t *testing.T) {
	assert.Equal(t, Int(-17), parseOne(t, "-17"))
	assert.Equal(t, Real(3.5), parseOne(t, "+3.5"))
	assert.Equal(t, Real(-0.25), parseOne(t, "-.25"))
	assert.Equal(t, Bool(true), parseOne(t, "true"))
	assert.Equal(t, Null{}, parseOne(t, "null"))
	assert.Equal(t, Name("A B"), parseOne(t, "/A#20B"))
	assert.Equal(t, Ref{Num: 12, Gen: 0}, parseOne(t, "12 0 R"))
	assert.Equal(t, Array{Int(1), Int(2), Ref{Num: 3}}, parseOne(t, "[1 2 3 0 R]"))

	s := parseOne(t, `(a\(b\)\n\101(nested))`).(String)
	assert.Equal(t, "a(b)\nA(nested)", string(s.Value))
	h := parseOne(t, "<48 69>").(String)
	assert.True(t, h.Hex)
	assert.Equal(t, "Hi", string(h.Value))
}

func TestParseDictDropsNullValues(t *testing.T) {
	d := parseOne(t, "<< /A 1 /B null /C << /D [/E] >> >>").(Dict)
	assert.Equal(t, Int(1), d["A"])
	assert.NotContains(t, d, "B")
	assert.Equal(t, Array{Name("E")}, d["C"].(Dict)["D"])
}

func TestParseRejectsDeepNesting(t *testing.T) {
	src := ""
	for i := 0; i < maxDepth+10; i++ {
		src += "["
	}
	_, err := newParser([]byte(src), 0).parseObject()
	assert.Error(t, err)
}

func TestParseIndirectStream(t *testing.T) {
	buf := []byte("7 0 obj\n<< /Length 5 >>\nstream\nhello\nendstream\nendobj\n")
	ref, o, err := parseIndirectAt(buf, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, Ref{Num: 7}, ref)
	st := o.(*Stream)
	assert.Equal(t, "hello", string(st.Data))
}

func TestParseIndirectStreamWithWrongLength(t *testing.T) {
	buf := []byte("7 0 obj\n<< /Length 500 >>\nstream\nhello\nendstream\nendobj\n")
	_, o, err := parseIndirectAt(buf, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(o.(*Stream).Data))
}
