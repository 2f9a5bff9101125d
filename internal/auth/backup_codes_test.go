package auth

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var backupCodePattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}$`)

func TestGenerateBackupCodes_Format(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	for _, code := range codes {
		assert.Regexp(t, backupCodePattern, code)
	}
}

func TestGenerateBackupCodes_DefaultCount(t *testing.T) {
	codes, err := GenerateBackupCodes(0)
	require.NoError(t, err)
	assert.Len(t, codes, DefaultBackupCodeCount)
}

func TestGenerateBackupCodes_UniqueWithinBatch(t *testing.T) {
	codes, err := GenerateBackupCodes(200)
	require.NoError(t, err)

	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestHashBackupCode_Canonicalizes(t *testing.T) {
	want := HashBackupCode("ABCD-1234")

	assert.Equal(t, want, HashBackupCode("abcd-1234"))
	assert.Equal(t, want, HashBackupCode("ABCD1234"))
	assert.Equal(t, want, HashBackupCode(" abcd 1234 "))
	assert.NotEqual(t, want, HashBackupCode("ABCD-1235"))
	assert.Len(t, want, 64)
	assert.NotContains(t, want, "ABCD")
}

func TestVerifyBackupCode_FindsIndex(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	require.NoError(t, err)
	hashes := HashBackupCodes(codes)

	for i, code := range codes {
		assert.Equal(t, i, VerifyBackupCode(code, hashes))
	}
	assert.Equal(t, -1, VerifyBackupCode("0000-0000", hashes))
	assert.Equal(t, -1, VerifyBackupCode("", hashes))
	assert.Equal(t, -1, VerifyBackupCode(codes[0], nil))
}
