package security

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const (
	opaqueTokenBytes = 32
	codeDigits       = 6
)

// NewOpaqueToken returns 32 random bytes, hex-encoded. Used for email
// verification and password reset links.
func NewOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewNumericCode returns a uniformly random 6-digit code (e.g. "042917").
func NewNumericCode() (string, error) {
	s := make([]byte, codeDigits)
	ten := big.NewInt(10)
	for i := range s {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		s[i] = '0' + byte(n.Int64())
	}
	return string(s), nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
