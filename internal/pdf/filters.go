package pdf

import (
	"bytes"
	"encoding/ascii85"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"
	"github.com/klauspost/compress/zlib"
)

// Filters the core can decode. Image codecs (DCT, JPX, CCITT, JBIG2) are
// not: image streams are copied and written back as they are.
const (
	filterFlate     = "FlateDecode"
	filterLZW       = "LZWDecode"
	filterASCIIHex  = "ASCIIHexDecode"
	filterASCII85   = "ASCII85Decode"
	filterRunLength = "RunLengthDecode"
)

// maxDecoded caps the size of a single decoded stream.
const maxDecoded = 256 << 20

// DecodeStream returns the decoded bytes of s.
func DecodeStream(s *Stream) ([]byte, error) {
	filters, params := streamFilters(s.Dict)
	data := s.Data
	for i, f := range filters {
		var p Dict
		if i < len(params) {
			p = params[i]
		}
		var err error
		data, err = decodeFilter(f, data, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
	}
	return data, nil
}

func streamFilters(d Dict) ([]Name, []Dict) {
	var filters []Name
	var params []Dict
	switch f := d["Filter"].(type) {
	case Name:
		filters = []Name{f}
	case Array:
		for _, e := range f {
			if n, ok := e.(Name); ok {
				filters = append(filters, n)
			}
		}
	}
	switch p := d["DecodeParms"].(type) {
	case Dict:
		params = []Dict{p}
	case Array:
		for _, e := range p {
			pd, _ := e.(Dict)
			params = append(params, pd)
		}
	}
	return filters, params
}

func decodeFilter(f Name, data []byte, p Dict) ([]byte, error) {
	switch f {
	case filterFlate, "Fl":
		out, err := inflate(data)
		if err != nil {
			return nil, err
		}
		return applyPredictor(out, p)
	case filterLZW, "LZW":
		early := true
		if v, ok := p.Int("EarlyChange"); ok && v == 0 {
			early = false
		}
		r := lzw.NewReader(bytes.NewReader(data), early)
		defer r.Close()
		out, err := io.ReadAll(io.LimitReader(r, maxDecoded))
		if err != nil {
			return nil, err
		}
		return applyPredictor(out, p)
	case filterASCIIHex, "AHx":
		return decodeASCIIHex(data)
	case filterASCII85, "A85":
		return decodeASCII85(data)
	case filterRunLength, "RL":
		return decodeRunLength(data)
	}
	return nil, Capabilityf("unsupported filter %s", f)
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxDecoded))
	if err != nil && len(out) == 0 {
		return nil, err
	}
	// A truncated tail after valid data is common; keep what inflated.
	return out, nil
}

// deflate compresses data with zlib framing at the given level.
func deflate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func applyPredictor(data []byte, p Dict) ([]byte, error) {
	if p == nil {
		return data, nil
	}
	pred, _ := p.Int("Predictor")
	if pred <= 1 {
		return data, nil
	}
	columns := intOr(p, "Columns", 1)
	colors := intOr(p, "Colors", 1)
	bpc := intOr(p, "BitsPerComponent", 8)
	bpp := (colors*bpc + 7) / 8
	rowLen := (columns*colors*bpc + 7) / 8
	if pred == 2 {
		if bpc != 8 {
			return nil, fmt.Errorf("TIFF predictor with %d bits per component", bpc)
		}
		out := bytes.Clone(data)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[row+i] += out[row+i-bpp]
			}
		}
		return out, nil
	}
	if pred < 10 {
		return nil, fmt.Errorf("unsupported predictor %d", pred)
	}
	stride := rowLen + 1
	rows := len(data) / stride
	out := make([]byte, rows*rowLen)
	prev := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		in := data[r*stride : (r+1)*stride]
		cur := out[r*rowLen : (r+1)*rowLen]
		kind := in[0]
		copy(cur, in[1:])
		for i := 0; i < rowLen; i++ {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch kind {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("bad PNG row filter %d", kind)
			}
		}
		prev = cur
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func intOr(d Dict, key string, def int) int {
	if v, ok := d.Int(key); ok && v > 0 {
		return v
	}
	return def
}

func decodeASCIIHex(data []byte) ([]byte, error) {
	var digits []byte
	for _, c := range data {
		if c == '>' {
			break
		}
		if !isWhitespace(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	_, err := hex.Decode(out, digits)
	return out, err
}

func decodeASCII85(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	data = bytes.TrimPrefix(data, []byte("<~"))
	if i := bytes.Index(data, []byte("~>")); i >= 0 {
		data = data[:i]
	}
	// 'z' expands one byte to four.
	out := make([]byte, 4*len(data)+4)
	n, _, err := ascii85.Decode(out, data, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func decodeRunLength(data []byte) ([]byte, error) {
	var out []byte
	for i := 0; i < len(data); {
		n := int(data[i])
		i++
		switch {
		case n == 128:
			return out, nil
		case n < 128:
			if i+n+1 > len(data) {
				return nil, io.ErrUnexpectedEOF
			}
			out = append(out, data[i:i+n+1]...)
			i += n + 1
		default:
			if i >= len(data) {
				return nil, io.ErrUnexpectedEOF
			}
			out = append(out, bytes.Repeat(data[i:i+1], 257-n)...)
			i++
		}
	}
	return out, nil
}
