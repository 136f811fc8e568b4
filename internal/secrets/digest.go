package secrets

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash digests a value: SHA-256 when strong, a rolling hash otherwise.
func (s *Service) Hash(value string) string {
	if !s.strong {
		return rollingHash([]byte(value))
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Sign authenticates data with the service passphrase: HMAC-SHA256
// when strong, a passphrase-mixed rolling hash otherwise. The weak
// path detects accidental corruption only.
func (s *Service) Sign(data []byte) string {
	if !s.strong {
		return rollingHash(data, s.passphrase)
	}
	mac := hmac.New(sha256.New, s.passphrase)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a Sign signature. The strong path compares in constant
// time.
func (s *Service) Verify(data []byte, sig string) bool {
	if !s.strong {
		return s.Sign(data) == sig
	}
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.passphrase)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), expected)
}

// rollingHash is the non-cryptographic fallback digest: the classic
// multiply-by-31 accumulator over every part in order.
func rollingHash(parts ...[]byte) string {
	var h uint32
	for _, part := range parts {
		for _, b := range part {
			h = h*31 + uint32(b)
		}
	}
	return fmt.Sprintf("%08x", h)
}
