package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSalt(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, salt, 32)

	salt2, err := GenerateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, salt, salt2)
}

func TestHMAC(t *testing.T) {
	// RFC 4231 test case 2
	sig := SignHMAC("Jefe", "what do ya want for nothing?")
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", sig)

	assert.True(t, VerifyHMAC("Jefe", "what do ya want for nothing?", sig))
	assert.False(t, VerifyHMAC("Jefe", "what do ya want for nothing!", sig))
	assert.False(t, VerifyHMAC("other", "what do ya want for nothing?", sig))
	assert.False(t, VerifyHMAC("Jefe", "what do ya want for nothing?", "not-hex"))
}

func TestMaskAccount(t *testing.T) {
	assert.Equal(t, "a***e@example.com", MaskAccount("alice@example.com"))
	assert.Equal(t, "al*****ce", MaskAccount("alicezzce"))
	assert.Equal(t, "***", MaskAccount("bob"))
}
