package utils

import (
	"testing"

	"leadmap/config"
	"leadmap/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestJWTRoundTrip(t *testing.T) {
	config.AppConfig.EncryptionKey = "0123456789abcdef0123456789abcdef"

	user := &models.User{Model: gorm.Model{ID: 42}, TokenVersion: 3}
	access, refresh, err := GenerateJWTToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	claims, err := ParseJWTToken(access)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, 3, claims.TokenVersion)
	assert.NotEmpty(t, claims.SessionID)

	// Both tokens carry the same session
	refreshClaims, err := ParseJWTToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, claims.SessionID, refreshClaims.SessionID)
}

func TestParseJWTTokenRejectsWrongKey(t *testing.T) {
	config.AppConfig.EncryptionKey = "0123456789abcdef0123456789abcdef"
	user := &models.User{Model: gorm.Model{ID: 1}}
	access, _, err := GenerateJWTToken(user)
	require.NoError(t, err)

	config.AppConfig.EncryptionKey = "ffffffffffffffffffffffffffffffff"
	_, err = ParseJWTToken(access)
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	config.AppConfig.EncryptionKey = "0123456789abcdef0123456789abcdef"

	ciphertext, err := Encrypt("hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)
	assert.NotEqual(t, "hunter2", ciphertext)

	plaintext, err := Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plaintext)
}

func TestEncryptEmptyStringIsPassthrough(t *testing.T) {
	config.AppConfig.EncryptionKey = "0123456789abcdef0123456789abcdef"

	ciphertext, err := Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, ciphertext)

	plaintext, err := Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}
