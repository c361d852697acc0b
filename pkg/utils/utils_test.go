package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt([]byte("refresh-token"), testKey)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "refresh-token")

	plain, err := Decrypt(sealed, testKey)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", plain)

	again, err := Encrypt([]byte("refresh-token"), testKey)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ between calls")
}

func TestDecrypt_Rejects(t *testing.T) {
	sealed, err := Encrypt([]byte("x"), testKey)
	require.NoError(t, err)

	_, err = Decrypt(sealed, []byte("fedcba9876543210fedcba9876543210"))
	assert.Error(t, err)

	_, err = Decrypt("AAAA", testKey)
	assert.Error(t, err)

	_, err = Decrypt("not base64!", testKey)
	assert.Error(t, err)

	_, err = Encrypt([]byte("x"), []byte("short"))
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	token, err := GenerateToken("secret", "user-1", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "crosspost", claims.Issuer)

	_, err = ValidateToken("other", token)
	assert.Error(t, err)

	expired, err := GenerateToken("secret", "user-1", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken("secret", expired)
	assert.Error(t, err)
}
