package vault

import (
	"crypto/rand"
	"math/big"
)

const (
	DefaultCodeLength = 8
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewCode returns a random alphanumeric code of length n.
func NewCode(n int) (string, error) {
	if n <= 0 {
		n = DefaultCodeLength
	}
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[v.Int64()]
	}
	return string(buf), nil
}

// ValidCode reports whether s looks like a code produced by NewCode.
func ValidCode(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
