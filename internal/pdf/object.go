package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Object is any PDF value. String returns the value in PDF syntax.
type Object interface {
	String() string
}

// Null is the PDF null object.
type Null struct{}

// Bool is a PDF boolean.
type Bool bool

// Int is a PDF integer.
type Int int64

// Real is a PDF real number.
type Real float64

// String is a PDF string. Hex only affects how it is written.
type String struct {
	Value []byte
	Hex   bool
}

// Name is a PDF name without the leading slash.
type Name string

// Array is a PDF array.
type Array []Object

// Dict is a PDF dictionary keyed by name without the leading slash.
type Dict map[string]Object

// Stream is a dictionary plus raw (still encoded) data.
type Stream struct {
	Dict Dict
	Data []byte
}

// Ref is an indirect reference.
type Ref struct {
	Num int
	Gen int
}

func (Null) String() string { return "null" }

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

func (r Real) String() string { return formatReal(float64(r)) }

func (s String) String() string {
	if s.Hex {
		return fmt.Sprintf("<%X>", s.Value)
	}
	var b strings.Builder
	b.WriteByte('(')
	for _, c := range s.Value {
		switch c {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(')')
	return b.String()
}

func (n Name) String() string {
	var b strings.Builder
	b.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter(c) {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (a Array) String() string {
	parts := make([]string, len(a))
	for i, o := range a {
		parts[i] = objString(o)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (d Dict) String() string {
	var b strings.Builder
	b.WriteString("<<")
	for _, k := range d.Keys() {
		b.WriteString(Name(k).String())
		b.WriteByte(' ')
		b.WriteString(objString(d[k]))
	}
	b.WriteString(">>")
	return b.String()
}

func (s *Stream) String() string {
	return fmt.Sprintf("%s stream(%d bytes)", s.Dict.String(), len(s.Data))
}

func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

func objString(o Object) string {
	if o == nil {
		return "null"
	}
	return o.String()
}

func formatReal(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Keys returns the dictionary keys in sorted order.
func (d Dict) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Name returns the name stored at key, or "".
func (d Dict) Name(key string) Name {
	if n, ok := d[key].(Name); ok {
		return n
	}
	return ""
}

// Int returns the integer stored at key.
func (d Dict) Int(key string) (int, bool) {
	return toInt(d[key])
}

// Clone returns a shallow copy.
func (d Dict) Clone() Dict {
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// NewText builds a text string, UTF-16BE encoded when s is not plain ASCII.
func NewText(s string) String {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			u := utf16.Encode([]rune(s))
			b := make([]byte, 2, 2+2*len(u))
			b[0], b[1] = 0xfe, 0xff
			for _, c := range u {
				b = append(b, byte(c>>8), byte(c))
			}
			return String{Value: b}
		}
	}
	return String{Value: []byte(s)}
}

// Text returns the string value, decoding UTF-16BE when a BOM is present.
func (s String) Text() string {
	v := s.Value
	if len(v) >= 2 && v[0] == 0xfe && v[1] == 0xff {
		u := make([]uint16, 0, len(v)/2)
		for i := 2; i+1 < len(v); i += 2 {
			u = append(u, uint16(v[i])<<8|uint16(v[i+1]))
		}
		return string(utf16.Decode(u))
	}
	return string(v)
}

func toInt(o Object) (int, bool) {
	switch v := o.(type) {
	case Int:
		return int(v), true
	case Real:
		return int(v), true
	}
	return 0, false
}

func toFloat(o Object) (float64, bool) {
	switch v := o.(type) {
	case Int:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}

// deepCopy copies containers so the result shares no mutable state with o.
// Stream data is copied as well.
func deepCopy(o Object) Object {
	switch v := o.(type) {
	case Array:
		out := make(Array, len(v))
		for i, e := range v {
			out[i] = deepCopy(e)
		}
		return out
	case Dict:
		out := make(Dict, len(v))
		for k, e := range v {
			out[k] = deepCopy(e)
		}
		return out
	case *Stream:
		return &Stream{Dict: deepCopy(v.Dict).(Dict), Data: bytes.Clone(v.Data)}
	case String:
		return String{Value: bytes.Clone(v.Value), Hex: v.Hex}
	}
	return o
}
