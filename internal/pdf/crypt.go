package pdf

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
)

var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

var errNoKey = errors.New("password does not open the document")

type cryptMethod int

const (
	cryptNone cryptMethod = iota
	cryptRC4
	cryptAESV2
	cryptAESV3
)

// securityHandler implements the standard security handler for reading.
type securityHandler struct {
	v, r            int
	key             []byte
	stmf, strf      cryptMethod
	encryptMetadata bool
}

func newSecurityHandler(enc Dict, id0 []byte, password string) (*securityHandler, error) {
	if f := enc.Name("Filter"); f != "Standard" {
		return nil, Capabilityf("unsupported security handler %q", f)
	}
	v, _ := enc.Int("V")
	r, _ := enc.Int("R")
	h := &securityHandler{v: v, r: r, encryptMetadata: true}
	if b, ok := enc["EncryptMetadata"].(Bool); ok {
		h.encryptMetadata = bool(b)
	}
	o := stringBytes(enc["O"])
	u := stringBytes(enc["U"])
	p, _ := enc.Int("P")

	switch {
	case v == 1 || v == 2:
		h.stmf, h.strf = cryptRC4, cryptRC4
	case v == 4 || v == 5:
		h.stmf = cfMethod(enc, enc.Name("StmF"))
		h.strf = cfMethod(enc, enc.Name("StrF"))
	default:
		return nil, Capabilityf("unsupported encryption version V=%d", v)
	}

	if r >= 5 {
		key, err := deriveKeyR6(enc, o, u, []byte(password))
		if err != nil {
			return nil, err
		}
		h.key = key
		return h, nil
	}

	n := 5
	if r >= 3 {
		if l, ok := enc.Int("Length"); ok && l >= 40 {
			n = l / 8
		} else {
			n = 16
		}
	}
	if n > 16 {
		n = 16
	}
	pw := []byte(password)
	if key := h.userKey(pw, o, u, int32(p), id0, n); key != nil {
		h.key = key
		return h, nil
	}
	// Try the password as the owner password: recover the user password from O.
	if up := recoverUserPassword(pw, o, r, n); up != nil {
		if key := h.userKey(up, o, u, int32(p), id0, n); key != nil {
			h.key = key
			return h, nil
		}
	}
	return nil, &Error{Kind: KindCapability, Msg: "document is encrypted", Err: errNoKey}
}

func cfMethod(enc Dict, name Name) cryptMethod {
	if name == "" || name == "Identity" {
		return cryptNone
	}
	cf, _ := enc["CF"].(Dict)
	filter, _ := cf[string(name)].(Dict)
	switch filter.Name("CFM") {
	case "V2":
		return cryptRC4
	case "AESV2":
		return cryptAESV2
	case "AESV3":
		return cryptAESV3
	}
	return cryptNone
}

func padPassword(pw []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, pw)
	copy(out[n:], passwordPad)
	return out
}

// fileKey computes the file encryption key (Algorithm 2).
func (h *securityHandler) fileKey(pw, o []byte, p int32, id0 []byte, n int) []byte {
	m := md5.New()
	m.Write(padPassword(pw))
	m.Write(o)
	var pb [4]byte
	binary.LittleEndian.PutUint32(pb[:], uint32(p))
	m.Write(pb[:])
	m.Write(id0)
	if h.r >= 4 && !h.encryptMetadata {
		m.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}
	key := m.Sum(nil)
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			s := md5.Sum(key[:n])
			key = s[:]
		}
	}
	return key[:n]
}

// userKey returns the file key when pw is the user password, else nil.
func (h *securityHandler) userKey(pw, o, u []byte, p int32, id0 []byte, n int) []byte {
	key := h.fileKey(pw, o, p, id0, n)
	if h.r == 2 {
		c, _ := rc4.NewCipher(key)
		got := make([]byte, 32)
		c.XORKeyStream(got, passwordPad)
		if len(u) >= 32 && bytes.Equal(got, u[:32]) {
			return key
		}
		return nil
	}
	m := md5.New()
	m.Write(passwordPad)
	m.Write(id0)
	got := m.Sum(nil)
	for i := 0; i < 20; i++ {
		c, _ := rc4.NewCipher(xorKey(key, byte(i)))
		c.XORKeyStream(got, got)
	}
	if len(u) >= 16 && bytes.Equal(got[:16], u[:16]) {
		return key
	}
	return nil
}

// recoverUserPassword decrypts O with a key derived from the owner password.
func recoverUserPassword(owner, o []byte, r, n int) []byte {
	if len(o) < 32 {
		return nil
	}
	s := md5.Sum(padPassword(owner))
	k := s[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			s = md5.Sum(k)
			k = s[:]
		}
	}
	k = k[:n]
	out := bytes.Clone(o[:32])
	if r == 2 {
		c, _ := rc4.NewCipher(k)
		c.XORKeyStream(out, out)
		return out
	}
	for i := 19; i >= 0; i-- {
		c, _ := rc4.NewCipher(xorKey(k, byte(i)))
		c.XORKeyStream(out, out)
	}
	return out
}

func xorKey(key []byte, b byte) []byte {
	out := make([]byte, len(key))
	for i := range key {
		out[i] = key[i] ^ b
	}
	return out
}

// deriveKeyR6 handles AES-256 documents (R5 and R6).
func deriveKeyR6(enc Dict, o, u, pw []byte) ([]byte, error) {
	if len(pw) > 127 {
		pw = pw[:127]
	}
	if len(u) < 48 || len(o) < 48 {
		return nil, Parsef("malformed /U or /O for AES-256 encryption")
	}
	r, _ := enc.Int("R")
	ue := stringBytes(enc["UE"])
	oe := stringBytes(enc["OE"])

	if bytes.Equal(hashR6(r, pw, u[32:40], nil), u[:32]) {
		return unwrapKey(hashR6(r, pw, u[40:48], nil), ue)
	}
	if bytes.Equal(hashR6(r, pw, o[32:40], u[:48]), o[:32]) {
		return unwrapKey(hashR6(r, pw, o[40:48], u[:48]), oe)
	}
	return nil, &Error{Kind: KindCapability, Msg: "document is encrypted", Err: errNoKey}
}

func unwrapKey(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 32 {
		return nil, Parsef("malformed wrapped encryption key")
	}
	b, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 32)
	cipher.NewCBCDecrypter(b, make([]byte, 16)).CryptBlocks(out, wrapped[:32])
	return out, nil
}

// hashR6 is Algorithm 2.B; R5 uses a single SHA-256.
func hashR6(r int, pw, salt, udata []byte) []byte {
	h := sha256.New()
	h.Write(pw)
	h.Write(salt)
	h.Write(udata)
	k := h.Sum(nil)
	if r < 6 {
		return k
	}
	for i := 0; ; i++ {
		seq := make([]byte, 0, len(pw)+len(k)+len(udata))
		seq = append(seq, pw...)
		seq = append(seq, k...)
		seq = append(seq, udata...)
		k1 := bytes.Repeat(seq, 64)
		b, _ := aes.NewCipher(k[:16])
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(b, k[16:32]).CryptBlocks(e, k1)
		sum := 0
		for _, c := range e[:16] {
			sum += int(c)
		}
		var hf hash.Hash
		switch sum % 3 {
		case 0:
			hf = sha256.New()
		case 1:
			hf = sha512.New384()
		default:
			hf = sha512.New()
		}
		hf.Write(e)
		k = hf.Sum(nil)
		if i >= 63 && int(e[len(e)-1]) <= i-31 {
			break
		}
	}
	return k[:32]
}

// objectKey derives the per-object key (Algorithm 1).
func (h *securityHandler) objectKey(num, gen int, m cryptMethod) []byte {
	if m == cryptAESV3 {
		return h.key
	}
	buf := make([]byte, 0, len(h.key)+9)
	buf = append(buf, h.key...)
	buf = append(buf, byte(num), byte(num>>8), byte(num>>16), byte(gen), byte(gen>>8))
	if m == cryptAESV2 {
		buf = append(buf, "sAlT"...)
	}
	s := md5.Sum(buf)
	n := len(h.key) + 5
	if n > 16 {
		n = 16
	}
	return s[:n]
}

func (h *securityHandler) decrypt(data []byte, num, gen int, m cryptMethod) ([]byte, error) {
	switch m {
	case cryptNone:
		return data, nil
	case cryptRC4:
		c, err := rc4.NewCipher(h.objectKey(num, gen, m))
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out, nil
	}
	key := h.objectKey(num, gen, m)
	if len(data) == 0 {
		return data, nil
	}
	if len(data) < 16 || len(data)%16 != 0 {
		return nil, fmt.Errorf("AES data length %d is not a multiple of the block size", len(data))
	}
	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data)-16)
	cipher.NewCBCDecrypter(b, data[:16]).CryptBlocks(out, data[16:])
	if n := len(out); n > 0 {
		pad := int(out[n-1])
		if pad >= 1 && pad <= 16 && pad <= n {
			out = out[:n-pad]
		}
	}
	return out, nil
}

// decryptObject decrypts strings and stream data of one indirect object in place.
func (h *securityHandler) decryptObject(o Object, num, gen int) (Object, error) {
	switch v := o.(type) {
	case String:
		b, err := h.decrypt(v.Value, num, gen, h.strf)
		if err != nil {
			return nil, err
		}
		return String{Value: b, Hex: v.Hex}, nil
	case Array:
		for i, e := range v {
			d, err := h.decryptObject(e, num, gen)
			if err != nil {
				return nil, err
			}
			v[i] = d
		}
		return v, nil
	case Dict:
		for k, e := range v {
			d, err := h.decryptObject(e, num, gen)
			if err != nil {
				return nil, err
			}
			v[k] = d
		}
		return v, nil
	case *Stream:
		if _, err := h.decryptObject(v.Dict, num, gen); err != nil {
			return nil, err
		}
		if v.Dict.Name("Type") == "XRef" {
			return v, nil
		}
		if v.Dict.Name("Type") == "Metadata" && !h.encryptMetadata {
			return v, nil
		}
		b, err := h.decrypt(v.Data, num, gen, h.stmf)
		if err != nil {
			return nil, err
		}
		v.Data = b
		return v, nil
	}
	return o, nil
}

func stringBytes(o Object) []byte {
	if s, ok := o.(String); ok {
		return s.Value
	}
	return nil
}
