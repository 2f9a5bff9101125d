package auth

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestNewSecretBox_InvalidKeyLength(t *testing.T) {
	for _, length := range []int{16, 24, 31, 33, 64} {
		box, err := NewSecretBox(make([]byte, length))
		assert.Error(t, err)
		assert.Nil(t, box)
		assert.Contains(t, err.Error(), "must be exactly 32 bytes")
	}
}

func TestSecretBox_SealOpen(t *testing.T) {
	box, err := NewSecretBox(newTestKey(t))
	require.NoError(t, err)
	assert.True(t, box.Enabled())

	sealed, err := box.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "JBSWY3DPEHPK3PXP")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", opened)
}

func TestSecretBox_SealUsesFreshNonce(t *testing.T) {
	box, err := NewSecretBox(newTestKey(t))
	require.NoError(t, err)

	a, err := box.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	b, err := box.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSecretBox_OpenPlaintextPassthrough(t *testing.T) {
	box, err := NewSecretBox(newTestKey(t))
	require.NoError(t, err)

	opened, err := box.Open("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", opened)
}

func TestSecretBox_Disabled(t *testing.T) {
	box, err := NewSecretBox(nil)
	require.NoError(t, err)
	assert.False(t, box.Enabled())

	sealed, err := box.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", sealed)

	_, err = box.Open("v1:AAAA")
	assert.ErrorIs(t, err, ErrSealedSecret)
}

func TestSecretBox_OpenWrongKey(t *testing.T) {
	a, err := NewSecretBox(newTestKey(t))
	require.NoError(t, err)
	b, err := NewSecretBox(newTestKey(t))
	require.NoError(t, err)

	sealed, err := a.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrSealedSecret)
}

func TestSecretBox_OpenCorrupted(t *testing.T) {
	box, err := NewSecretBox(newTestKey(t))
	require.NoError(t, err)

	for _, stored := range []string{"v1:not-base64!", "v1:AAAA"} {
		_, err := box.Open(stored)
		assert.ErrorIs(t, err, ErrSealedSecret, "stored %q", stored)
	}
}
