package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const cidAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NormalizeUTMValue trims and case-folds one UTM field. Empty after trimming
// means absent.
func NormalizeUTMValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// NormalizeUTMPtr normalizes an optional UTM field, collapsing empty to nil
func NormalizeUTMPtr(v *string) *string {
	if v == nil {
		return nil
	}
	n := NormalizeUTMValue(*v)
	if n == "" {
		return nil
	}
	return &n
}

// NormalizeCID trims surrounding whitespace from a short code. CIDs are
// case-sensitive, so no folding.
func NormalizeCID(cid string) string {
	return strings.TrimSpace(cid)
}

// NormalizePhone strips every non-digit from a phone number for identity dedup
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// GenerateCID returns a random short code over a lowercase base36 alphabet
func GenerateCID(length int) (string, error) {
	if length <= 0 {
		length = CIDLength
	}
	var b strings.Builder
	max := big.NewInt(int64(len(cidAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(cidAlphabet[n.Int64()])
	}
	return b.String(), nil
}
