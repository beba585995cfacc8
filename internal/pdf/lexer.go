package pdf

import (
	"bytes"
	"fmt"
	"strconv"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokInt
	tokReal
	tokString
	tokHexString
	tokName
	tokKeyword
	tokArrayStart
	tokArrayEnd
	tokDictStart
	tokDictEnd
)

type token struct {
	typ tokenType
	val []byte
	pos int
}

// lexer tokenizes a byte slice. Positions are absolute offsets into buf so the
// parser can seek to xref offsets directly.
type lexer struct {
	buf []byte
	pos int
}

func newLexer(buf []byte, pos int) *lexer {
	return &lexer{buf: buf, pos: pos}
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !isWhitespace(c) && !isDelimiter(c) }

// skipSpace skips whitespace and comments.
func (l *lexer) skipSpace() {
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		if isWhitespace(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.buf) && l.buf[l.pos] != '\n' && l.buf[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.buf) {
		return token{typ: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	c := l.buf[l.pos]
	switch c {
	case '[':
		l.pos++
		return token{typ: tokArrayStart, pos: start}, nil
	case ']':
		l.pos++
		return token{typ: tokArrayEnd, pos: start}, nil
	case '<':
		if l.pos+1 < len(l.buf) && l.buf[l.pos+1] == '<' {
			l.pos += 2
			return token{typ: tokDictStart, pos: start}, nil
		}
		return l.readHex()
	case '>':
		if l.pos+1 < len(l.buf) && l.buf[l.pos+1] == '>' {
			l.pos += 2
			return token{typ: tokDictEnd, pos: start}, nil
		}
		return token{}, fmt.Errorf("unexpected '>' at offset %d", start)
	case '(':
		return l.readLiteral()
	case '/':
		return l.readName()
	}
	if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
		return l.readNumber()
	}
	for l.pos < len(l.buf) && isRegular(l.buf[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		l.pos++
		return token{}, fmt.Errorf("unexpected character %q at offset %d", c, start)
	}
	return token{typ: tokKeyword, val: l.buf[start:l.pos], pos: start}, nil
}

func (l *lexer) readNumber() (token, error) {
	start := l.pos
	isReal := false
	l.pos++
	if l.buf[start] == '.' {
		isReal = true
	}
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		if c == '.' {
			isReal = true
		} else if c < '0' || c > '9' {
			break
		}
		l.pos++
	}
	typ := tokInt
	if isReal {
		typ = tokReal
	}
	return token{typ: typ, val: l.buf[start:l.pos], pos: start}, nil
}

func (l *lexer) readName() (token, error) {
	start := l.pos
	l.pos++
	var out []byte
	for l.pos < len(l.buf) && isRegular(l.buf[l.pos]) {
		c := l.buf[l.pos]
		if c == '#' && l.pos+2 < len(l.buf) {
			if v, err := strconv.ParseUint(string(l.buf[l.pos+1:l.pos+3]), 16, 8); err == nil {
				out = append(out, byte(v))
				l.pos += 3
				continue
			}
		}
		out = append(out, c)
		l.pos++
	}
	return token{typ: tokName, val: out, pos: start}, nil
}

func (l *lexer) readHex() (token, error) {
	start := l.pos
	l.pos++
	var digits []byte
	for l.pos < len(l.buf) && l.buf[l.pos] != '>' {
		c := l.buf[l.pos]
		if !isWhitespace(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	if l.pos >= len(l.buf) {
		return token{}, fmt.Errorf("unterminated hex string at offset %d", start)
	}
	l.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		v, err := strconv.ParseUint(string(digits[2*i:2*i+2]), 16, 8)
		if err != nil {
			return token{}, fmt.Errorf("bad hex string at offset %d", start)
		}
		out[i] = byte(v)
	}
	return token{typ: tokHexString, val: out, pos: start}, nil
}

func (l *lexer) readLiteral() (token, error) {
	start := l.pos
	l.pos++
	depth := 1
	var out []byte
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return token{typ: tokString, val: out, pos: start}, nil
			}
		case '\\':
			if l.pos >= len(l.buf) {
				continue
			}
			e := l.buf[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.buf) && l.buf[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.buf) && l.buf[l.pos] >= '0' && l.buf[l.pos] <= '7'; i++ {
						v = v*8 + int(l.buf[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
			continue
		}
		out = append(out, c)
	}
	return token{}, fmt.Errorf("unterminated string at offset %d", start)
}

// hasKeywordAt reports whether kw starts at pos and is followed by a delimiter.
func hasKeywordAt(buf []byte, pos int, kw string) bool {
	if pos < 0 || pos+len(kw) > len(buf) || !bytes.Equal(buf[pos:pos+len(kw)], []byte(kw)) {
		return false
	}
	end := pos + len(kw)
	return end == len(buf) || !isRegular(buf[end])
}
