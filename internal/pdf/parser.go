package pdf

import (
	"bytes"
	"fmt"
	"strconv"
)

// maxDepth bounds array/dict nesting so hostile input cannot exhaust the stack.
const maxDepth = 256

// parser builds objects from lexer tokens with a two-token lookahead, which is
// enough to recognise "N G R" references.
type parser struct {
	lx     *lexer
	peeked []token
}

func newParser(buf []byte, pos int) *parser {
	return &parser{lx: newLexer(buf, pos)}
}

func (p *parser) peek(i int) (token, error) {
	for len(p.peeked) <= i {
		t, err := p.lx.next()
		if err != nil {
			return token{}, err
		}
		p.peeked = append(p.peeked, t)
	}
	return p.peeked[i], nil
}

func (p *parser) nextToken() (token, error) {
	if len(p.peeked) > 0 {
		t := p.peeked[0]
		p.peeked = p.peeked[1:]
		return t, nil
	}
	return p.lx.next()
}

func (p *parser) parseObject() (Object, error) {
	return p.parseDepth(0)
}

func (p *parser) parseDepth(depth int) (Object, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("nesting deeper than %d", maxDepth)
	}
	t, err := p.nextToken()
	if err != nil {
		return nil, err
	}
	switch t.typ {
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of data")
	case tokInt:
		n, err := strconv.ParseInt(string(t.val), 10, 64)
		if err != nil {
			// Out-of-range integers are read as reals, as viewers do.
			f, ferr := strconv.ParseFloat(string(t.val), 64)
			if ferr != nil {
				return nil, fmt.Errorf("bad number %q at offset %d", t.val, t.pos)
			}
			return Real(f), nil
		}
		if t1, err := p.peek(0); err == nil && t1.typ == tokInt {
			if t2, err := p.peek(1); err == nil && t2.typ == tokKeyword && string(t2.val) == "R" {
				gen, _ := strconv.Atoi(string(t1.val))
				p.peeked = p.peeked[2:]
				return Ref{Num: int(n), Gen: gen}, nil
			}
		}
		return Int(n), nil
	case tokReal:
		f, err := parseReal(t.val)
		if err != nil {
			return nil, fmt.Errorf("bad number %q at offset %d", t.val, t.pos)
		}
		return Real(f), nil
	case tokString:
		return String{Value: t.val}, nil
	case tokHexString:
		return String{Value: t.val, Hex: true}, nil
	case tokName:
		return Name(t.val), nil
	case tokArrayStart:
		arr := Array{}
		for {
			nt, err := p.peek(0)
			if err != nil {
				return nil, err
			}
			if nt.typ == tokArrayEnd {
				p.nextToken()
				return arr, nil
			}
			if nt.typ == tokEOF {
				return nil, fmt.Errorf("unterminated array at offset %d", t.pos)
			}
			o, err := p.parseDepth(depth + 1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, o)
		}
	case tokDictStart:
		d := Dict{}
		for {
			kt, err := p.nextToken()
			if err != nil {
				return nil, err
			}
			if kt.typ == tokDictEnd {
				return d, nil
			}
			if kt.typ != tokName {
				return nil, fmt.Errorf("dictionary key is not a name at offset %d", kt.pos)
			}
			vt, err := p.peek(0)
			if err != nil {
				return nil, err
			}
			if vt.typ == tokDictEnd {
				// Key with no value: treat as null and stop.
				continue
			}
			v, err := p.parseDepth(depth + 1)
			if err != nil {
				return nil, err
			}
			if _, isNull := v.(Null); !isNull {
				d[string(kt.val)] = v
			}
		}
	case tokKeyword:
		switch string(t.val) {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return Null{}, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at offset %d", t.val, t.pos)
	}
	return nil, fmt.Errorf("unexpected token at offset %d", t.pos)
}

func parseReal(b []byte) (float64, error) {
	s := string(b)
	// Tolerate "--5" and "5-" style garbage seen in the wild.
	for len(s) > 1 && (s[0] == '-' || s[0] == '+') && (s[1] == '-' || s[1] == '+') {
		s = s[1:]
	}
	if s == "-" || s == "+" || s == "." || s == "-." {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// lengthResolver resolves an indirect /Length value.
type lengthResolver func(Ref) (int, bool)

// parseIndirectAt parses "N G obj ... endobj" starting at off.
func parseIndirectAt(buf []byte, off int, resolveLen lengthResolver) (Ref, Object, error) {
	if off < 0 || off >= len(buf) {
		return Ref{}, nil, fmt.Errorf("object offset %d outside file", off)
	}
	p := newParser(buf, off)
	nt, err := p.nextToken()
	if err != nil {
		return Ref{}, nil, err
	}
	gt, err := p.nextToken()
	if err != nil {
		return Ref{}, nil, err
	}
	kt, err := p.nextToken()
	if err != nil {
		return Ref{}, nil, err
	}
	if nt.typ != tokInt || gt.typ != tokInt || kt.typ != tokKeyword || string(kt.val) != "obj" {
		return Ref{}, nil, fmt.Errorf("no object header at offset %d", off)
	}
	num, _ := strconv.Atoi(string(nt.val))
	gen, _ := strconv.Atoi(string(gt.val))
	ref := Ref{Num: num, Gen: gen}

	obj, err := p.parseObject()
	if err != nil {
		return ref, nil, fmt.Errorf("object %d: %w", num, err)
	}
	d, isDict := obj.(Dict)
	if !isDict {
		return ref, obj, nil
	}
	st, err := p.peek(0)
	if err != nil || st.typ != tokKeyword || string(st.val) != "stream" {
		return ref, obj, nil
	}
	p.peeked = nil
	data, err := readStreamData(buf, p.lx.pos, d, resolveLen)
	if err != nil {
		return ref, nil, fmt.Errorf("object %d: %w", num, err)
	}
	return ref, &Stream{Dict: d, Data: data}, nil
}

// readStreamData reads the bytes between "stream" and "endstream". A wrong
// /Length is recovered by searching for the endstream keyword.
func readStreamData(buf []byte, pos int, d Dict, resolveLen lengthResolver) ([]byte, error) {
	if pos < len(buf) && buf[pos] == '\r' {
		pos++
	}
	if pos < len(buf) && buf[pos] == '\n' {
		pos++
	}
	length := -1
	switch v := d["Length"].(type) {
	case Int:
		length = int(v)
	case Ref:
		if resolveLen != nil {
			if n, ok := resolveLen(v); ok {
				length = n
			}
		}
	}
	if length >= 0 && pos+length <= len(buf) {
		end := pos + length
		q := end
		for q < len(buf) && isWhitespace(buf[q]) {
			q++
		}
		if hasKeywordAt(buf, q, "endstream") {
			return buf[pos:end], nil
		}
	}
	idx := bytes.Index(buf[pos:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("stream at offset %d has no endstream", pos)
	}
	end := pos + idx
	if end > pos && buf[end-1] == '\n' {
		end--
	}
	if end > pos && buf[end-1] == '\r' {
		end--
	}
	return buf[pos:end], nil
}
