package pdf

import (
	"crypto/md5"
	"crypto/rc4"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encryptRC4 applies 40-bit RC4 standard security (V1 R2) to every pooled
// object of doc and marks it so Serialize writes /Encrypt and /ID.
func encryptRC4(t *testing.T, doc *Document, user, owner string) {
	t.Helper()
	id0 := []byte("0123456789abcdef")
	const perms = -4

	ok := md5.Sum(padPassword([]byte(owner)))
	c, err := rc4.NewCipher(ok[:5])
	require.NoError(t, err)
	o := make([]byte, 32)
	c.XORKeyStream(o, padPassword([]byte(user)))

	h := &securityHandler{v: 1, r: 2, stmf: cryptRC4, strf: cryptRC4, encryptMetadata: true}
	h.key = h.fileKey([]byte(user), o, perms, id0, 5)
	c, err = rc4.NewCipher(h.key)
	require.NoError(t, err)
	u := make([]byte, 32)
	c.XORKeyStream(u, passwordPad)

	// RC4 is symmetric, so the decrypting walk encrypts plaintext.
	for num, obj := range doc.objects {
		enc, err := h.decryptObject(obj, num, 0)
		require.NoError(t, err)
		doc.objects[num] = enc
	}
	doc.encrypt = Dict{
		"Filter": Name("Standard"),
		"V":      Int(1),
		"R":      Int(2),
		"O":      String{Value: o, Hex: true},
		"U":      String{Value: u, Hex: true},
		"P":      Int(perms),
	}
	id := String{Value: id0, Hex: true}
	doc.fileID = Array{id, id}
	doc.Encrypted = true
	doc.Undecrypted = true
}

func encryptedFixture(t *testing.T, user, owner string) []byte {
	t.Helper()
	doc := newTestDoc(t, 2, Letter)
	doc.Add(Dict{"Secret": NewText("launch codes")})
	encryptRC4(t, doc, user, owner)
	b := serialize(t, doc, WriteOptions{ObjectStreams: true, CompressStreams: true})
	require.NotContains(t, string(b), "launch codes")
	require.NotContains(t, string(b), "/Type /ObjStm", "undecrypted documents are written without object streams")
	return b
}

func TestLoadDecryptsEmptyUserPassword(t *testing.T) {
	doc, err := Load(encryptedFixture(t, "", "owner"), LoadOptions{})
	require.NoError(t, err)
	assert.True(t, doc.Encrypted)
	assert.False(t, doc.Undecrypted)
	require.Equal(t, 2, doc.PageCount())
	assert.Contains(t, pageText(t, doc, 1), "(page 2) Tj")
}

func TestLoadPasswords(t *testing.T) {
	data := encryptedFixture(t, "secret", "owner")

	t.Run("no password", func(t *testing.T) {
		_, err := Load(data, LoadOptions{})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindCapability), "got %v", err)
	})
	t.Run("user password", func(t *testing.T) {
		doc, err := Load(data, LoadOptions{Password: "secret"})
		require.NoError(t, err)
		assert.Contains(t, pageText(t, doc, 0), "(page 1) Tj")
	})
	t.Run("owner password", func(t *testing.T) {
		doc, err := Load(data, LoadOptions{Password: "owner"})
		require.NoError(t, err)
		assert.Contains(t, pageText(t, doc, 0), "(page 1) Tj")
	})
	t.Run("tolerated", func(t *testing.T) {
		doc, err := Load(data, LoadOptions{TolerateEncryption: true})
		require.NoError(t, err)
		assert.True(t, doc.Undecrypted)
		assert.Equal(t, 2, doc.PageCount())

		// The still-encrypted graph can be written back and opened with the key.
		again, err := Load(serialize(t, doc, WriteOptions{}), LoadOptions{Password: "secret"})
		require.NoError(t, err)
		assert.Contains(t, pageText(t, again, 1), "(page 2) Tj")
	})
}

func TestUnsupportedSecurityHandler(t *testing.T) {
	_, err := newSecurityHandler(Dict{"Filter": Name("Adobe.PubSec")}, nil, "")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCapability))
}

func TestHashR5IsPlainSHA256(t *testing.T) {
	a := hashR6(5, []byte("pw"), []byte("saltsalt"), nil)
	b := hashR6(5, []byte("pw"), []byte("saltsalt"), nil)
	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, hashR6(6, []byte("pw"), []byte("saltsalt"), nil))
}
