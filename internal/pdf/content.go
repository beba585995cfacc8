package pdf

import (
	"bytes"
	"fmt"
	"math"
)

// Content accumulates content stream operators.
type Content struct {
	buf bytes.Buffer
}

func (c *Content) op(format string, args ...interface{}) *Content {
	fmt.Fprintf(&c.buf, format, args...)
	c.buf.WriteByte('\n')
	return c
}

func num(f float64) string { return formatReal(f) }

// Save pushes the graphics state (q).
func (c *Content) Save() *Content { return c.op("q") }

// Restore pops the graphics state (Q).
func (c *Content) Restore() *Content { return c.op("Q") }

// Transform concatenates a matrix to the CTM (cm).
func (c *Content) Transform(a, b, cc, d, e, f float64) *Content {
	return c.op("%s %s %s %s %s %s cm", num(a), num(b), num(cc), num(d), num(e), num(f))
}

// Rotated concatenates a rotation by deg degrees about (x, y).
func (c *Content) Rotated(deg, x, y float64) *Content {
	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return c.Transform(cos, sin, -sin, cos, x, y)
}

// GState selects a named ExtGState (gs).
func (c *Content) GState(name Name) *Content { return c.op("%s gs", name.String()) }

// FillRGB sets the non-stroking colour (rg). Components are in [0,1].
func (c *Content) FillRGB(r, g, b float64) *Content {
	return c.op("%s %s %s rg", num(r), num(g), num(b))
}

// Rect appends a rectangle path and fills it.
func (c *Content) FillRect(x, y, w, h float64) *Content {
	return c.op("%s %s %s %s re f", num(x), num(y), num(w), num(h))
}

// Text draws s in font at size with its baseline origin at (x, y).
func (c *Content) Text(font Name, size, x, y float64, s string) *Content {
	c.op("BT")
	c.op("%s %s Tf", font.String(), num(size))
	c.op("%s %s Td", num(x), num(y))
	c.op("%s Tj", String{Value: EncodeWinAnsi(s)}.String())
	return c.op("ET")
}

// Image paints an XObject scaled to w x h at (x, y).
func (c *Content) Image(name Name, x, y, w, h float64) *Content {
	c.Save()
	c.Transform(w, 0, 0, h, x, y)
	c.op("%s Do", name.String())
	return c.Restore()
}

// Bytes returns the accumulated stream.
func (c *Content) Bytes() []byte { return c.buf.Bytes() }
