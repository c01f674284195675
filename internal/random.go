package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
	"strings"
)

const (
	digitAlphabet = "0123456789"
	// Upper-case letters and digits without 0/O and 1/I, which are easy to
	// misread when typed from a text message.
	alphanumericAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewNumericCode returns a uniformly random decimal code.
func NewNumericCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid numeric code length")
	}
	return randomString(digitAlphabet, digits)
}

// NewAlphanumericCode returns a uniformly random code over an unambiguous
// upper-case alphabet.
func NewAlphanumericCode(length int) (string, error) {
	if length < 8 || length > 32 {
		return "", errors.New("invalid alphanumeric code length")
	}
	return randomString(alphanumericAlphabet, length)
}

// NormalizeCode trims whitespace and upper-cases a submitted code so it can
// be hashed the same way as the issued one.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HashCode returns the SHA-256 of a normalized code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(NormalizeCode(code)))
}

// NewSecret returns n random bytes.
func NewSecret(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func randomString(alphabet string, n int) (string, error) {
	var b strings.Builder
	b.Grow(n)

	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}
