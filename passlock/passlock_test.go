package passlock

import (
	"crypto/aes"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncrypt(t *testing.T) {
	p, err := Encrypt("secret123", "somesalt")
	require.NoError(t, err)

	assert.Equal(t, keySize, len(p.key))
	assert.Equal(t, ivSize, len(p.iv))
	assert.Equal(t, []byte("somesalt"), p.salt)
	assert.Zero(t, len(p.ciphertext)%aes.BlockSize)
	assert.Equal(t, "utf-8", p.InputEncoding())
	assert.Equal(t, "hex", p.OutputEncoding())

	got, err := p.Decrypt()
	require.NoError(t, err)
	assert.Equal(t, "secret123", got)
}

func TestEncrypt_keyDerivationIsDeterministic(t *testing.T) {
	p1, err := Encrypt("hunter2", "pepper")
	require.NoError(t, err)
	p2, err := Encrypt("hunter2", "pepper")
	require.NoError(t, err)
	p3, err := Encrypt("hunter2", "paprika")
	require.NoError(t, err)

	// same password and salt must derive the same key even though the initialization vectors differ.
	assert.Equal(t, p1.key, p2.key)
	assert.NotEqual(t, p1.key, p3.key)
}

func TestEncrypt_withEncodings(t *testing.T) {
	p, err := Encrypt("secret123", "somesalt", func(opts *Options) {
		opts.InputEncoding = "ascii"
		opts.OutputEncoding = "base64"
	})
	require.NoError(t, err)

	q, err := FromStorable(p.Storable())
	require.NoError(t, err)
	assert.Equal(t, "ascii", q.InputEncoding())
	assert.Equal(t, "base64", q.OutputEncoding())
}

func TestStorable_roundTrip(t *testing.T) {
	p, err := Encrypt("secret123", "somesalt")
	require.NoError(t, err)

	s := p.Storable()
	assert.Zero(t, len(s)%4)

	q, err := FromStorable(s)
	require.NoError(t, err)
	assert.Equal(t, p, q)

	got, err := q.Decrypt()
	require.NoError(t, err)
	assert.Equal(t, "secret123", got)
}

func TestStorable_preamble(t *testing.T) {
	p, err := Encrypt("secret123", "somesalt")
	require.NoError(t, err)

	s := p.Storable()
	require.GreaterOrEqual(t, len(s), preambleLen)

	for i, c := range s[:preambleLen] {
		require.Contains(t, []rune{'0', '1'}, c, "preamble character %d", i)
	}

	// the first 16-bit field counts the characters of the base64-encoded ciphertext.
	n, err := strconv.ParseUint(s[:wideFieldBits], 2, wideFieldBits)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(b64.EncodeToString(p.ciphertext))), n)
}

func TestFromStorable_malformed(t *testing.T) {
	truncated := fmt.Sprintf("%016b%016b%016b%016b%08b%08b", 4, 0, 0, 0, 0, 0)

	tests := []struct {
		name string
		s    string
	}{
		{name: "empty", s: ""},
		{name: "shorter than preamble", s: "010101"},
		{name: "non-binary preamble", s: strings.Repeat("2", preambleLen)},
		{name: "declared field longer than body", s: truncated},
		{name: "field is not base64", s: truncated + "!!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromStorable(tt.s)
			assert.ErrorIs(t, err, ErrMalformedStorable)
		})
	}
}

func TestDecrypt_corrupted(t *testing.T) {
	p, err := Encrypt("secret123", "somesalt")
	require.NoError(t, err)

	t.Run("truncated ciphertext", func(t *testing.T) {
		q := &Protection{ciphertext: p.ciphertext[:len(p.ciphertext)-1], iv: p.iv, salt: p.salt, key: p.key}
		_, err := q.Decrypt()
		assert.Error(t, err)
	})

	t.Run("short initialization vector", func(t *testing.T) {
		q := &Protection{ciphertext: p.ciphertext, iv: p.iv[:8], salt: p.salt, key: p.key}
		_, err := q.Decrypt()
		assert.Error(t, err)
	})

	t.Run("bad key size", func(t *testing.T) {
		q := &Protection{ciphertext: p.ciphertext, iv: p.iv, salt: p.salt, key: p.key[:31]}
		_, err := q.Decrypt()
		assert.Error(t, err)
	})
}

func TestPadUnpad(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{name: "empty", in: []byte{}},
		{name: "shorter than a block", in: []byte("abc")},
		{name: "exactly a block", in: []byte("0123456789abcdef")},
		{name: "longer than a block", in: []byte("0123456789abcdef0123")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			padded := pad(tt.in, aes.BlockSize)
			require.Zero(t, len(padded)%aes.BlockSize)
			require.Greater(t, len(padded), len(tt.in))

			got, err := unpad(padded, aes.BlockSize)
			require.NoError(t, err)
			assert.Equal(t, tt.in, got)
		})
	}
}

func TestUnpad_invalid(t *testing.T) {
	block := func(last byte) []byte {
		b := make([]byte, aes.BlockSize)
		b[len(b)-1] = last
		return b
	}

	tests := []struct {
		name string
		in   []byte
	}{
		{name: "empty", in: nil},
		{name: "not a block multiple", in: make([]byte, 15)},
		{name: "zero padding byte", in: block(0)},
		{name: "padding byte exceeds block size", in: block(17)},
		{name: "inconsistent fill", in: block(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := unpad(tt.in, aes.BlockSize)
			assert.ErrorIs(t, err, ErrInvalidPadding)
		})
	}
}
