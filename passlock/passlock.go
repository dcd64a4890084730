// Package passlock protects archive passphrases at rest.
//
// A passphrase is encrypted with AES-256-CBC under a key derived from the passphrase and a caller-provided salt via
// scrypt. The resulting Protection value never holds the plaintext; it can be packed into a single self-describing
// string (see Protection.Storable) and later reconstructed with FromStorable to recover the passphrase on demand.
package passlock

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters for key derivation. N=2^14 keeps derivation around tens of milliseconds on commodity
// hardware while staying expensive enough to frustrate brute force.
const (
	scryptN       = 1 << 14
	scryptR       = 8
	scryptP       = 1
	keySize       = 32 // AES-256
	ivSize        = aes.BlockSize
	defaultInEnc  = "utf-8"
	defaultOutEnc = "hex"
)

// ErrInvalidPadding is returned by Decrypt when the decrypted block padding is inconsistent, which almost always
// means the key material or ciphertext was corrupted.
var ErrInvalidPadding = errors.New("invalid block padding")

// Protection holds an encrypted passphrase along with the material needed to decrypt it later.
//
// Values are immutable after construction; create them with Encrypt or FromStorable only. The plaintext passphrase is
// never stored.
type Protection struct {
	ciphertext []byte
	iv         []byte
	salt       []byte
	key        []byte
	inEnc      string
	outEnc     string
}

// Options customises Encrypt.
type Options struct {
	// InputEncoding names the encoding of the plaintext passphrase. Default "utf-8".
	InputEncoding string

	// OutputEncoding names the encoding used when the ciphertext is rendered for display. Default "hex".
	OutputEncoding string
}

// Encrypt derives an AES-256 key from password and salt using scrypt, then encrypts the password with AES-256-CBC
// under a random initialization vector.
//
// The salt is not secret but must be stable: the same password+salt always derives the same key, which is what allows
// a Protection reconstructed via FromStorable to decrypt. The plaintext password is not retained.
func Encrypt(password, salt string, optFns ...func(*Options)) (*Protection, error) {
	opts := &Options{
		InputEncoding:  defaultInEnc,
		OutputEncoding: defaultOutEnc,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	key, err := scrypt.Key([]byte(password), []byte(salt), scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key error: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err = rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate initialization vector error: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher error: %w", err)
	}

	plaintext := pad([]byte(password), aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	return &Protection{
		ciphertext: ciphertext,
		iv:         iv,
		salt:       []byte(salt),
		key:        key,
		inEnc:      opts.InputEncoding,
		outEnc:     opts.OutputEncoding,
	}, nil
}

// Decrypt recovers the original passphrase.
//
// Failures (wrong key material, corrupted ciphertext) are fatal for the operation that needed the passphrase; they
// are never retried here.
func (p *Protection) Decrypt() (string, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return "", fmt.Errorf("create cipher error: %w", err)
	}

	if len(p.ciphertext) == 0 || len(p.ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("decrypt passphrase error: ciphertext length %d is not a multiple of the block size", len(p.ciphertext))
	}
	if len(p.iv) != ivSize {
		return "", fmt.Errorf("decrypt passphrase error: initialization vector length %d, expected %d", len(p.iv), ivSize)
	}

	plaintext := make([]byte, len(p.ciphertext))
	cipher.NewCBCDecrypter(block, p.iv).CryptBlocks(plaintext, p.ciphertext)

	plaintext, err = unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("decrypt passphrase error: %w", err)
	}

	return string(plaintext), nil
}

// InputEncoding returns the recorded plaintext encoding name.
func (p *Protection) InputEncoding() string {
	return p.inEnc
}

// OutputEncoding returns the recorded ciphertext display encoding name.
func (p *Protection) OutputEncoding() string {
	return p.outEnc
}

// pad applies PKCS#7 padding up to blockSize.
func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}

	return padded
}

// unpad validates and strips PKCS#7 padding.
func unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}

	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrInvalidPadding
	}

	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrInvalidPadding
		}
	}

	return b[:len(b)-n], nil
}
