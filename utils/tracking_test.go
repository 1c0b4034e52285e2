package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUTMValue(t *testing.T) {
	assert.Equal(t, "newsletter", NormalizeUTMValue("  Newsletter "))
	assert.Equal(t, "kakao", NormalizeUTMValue("KAKAO"))
	assert.Equal(t, "", NormalizeUTMValue("   "))
	assert.Equal(t, "", NormalizeUTMValue(""))
}

func TestNormalizeUTMPtr(t *testing.T) {
	v := " Email "
	norm := NormalizeUTMPtr(&v)
	require.NotNil(t, norm)
	assert.Equal(t, "email", *norm)

	empty := "   "
	assert.Nil(t, NormalizeUTMPtr(&empty))
	assert.Nil(t, NormalizeUTMPtr(nil))
}

func TestNormalizeCID(t *testing.T) {
	// Case is preserved; cids are opaque and case-sensitive
	assert.Equal(t, "Ab3xK9", NormalizeCID("  Ab3xK9 "))
	assert.Equal(t, "", NormalizeCID("   "))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "01012345678", NormalizePhone("010-1234-5678"))
	assert.Equal(t, "821012345678", NormalizePhone("+82 10 1234 5678"))
	assert.Equal(t, "01012345678", NormalizePhone("(010) 1234.5678"))
	assert.Equal(t, "", NormalizePhone("no digits here"))
}

func TestGenerateCID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		cid, err := GenerateCID(CIDLength)
		require.NoError(t, err)
		assert.Len(t, cid, CIDLength)
		seen[cid] = struct{}{}
	}
	// Collisions over 100 draws from a 36^8 space would indicate a broken generator
	assert.Len(t, seen, 100)
}
