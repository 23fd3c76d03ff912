package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestTokenService creates a token service for testing with symmetric key
func createTestTokenService(t *testing.T) TokenService {
	t.Helper()
	svc, err := NewTokenService("test-issuer", "test-audience", false, "", "", "test-secret-key-for-jwt-signing-32-chars")
	require.NoError(t, err)
	return svc
}

func TestNewTokenService(t *testing.T) {
	_, privPEM, pubPEM := newTestKeyPair(t)

	tests := []struct {
		name        string
		useRSAKeys  bool
		privateKey  string
		publicKey   string
		secretKey   string
		expectError bool
	}{
		{name: "symmetric key", secretKey: "secret"},
		{name: "missing secret key", expectError: true},
		{name: "rsa keys", useRSAKeys: true, privateKey: privPEM, publicKey: pubPEM},
		{name: "rsa verify only", useRSAKeys: true, publicKey: pubPEM},
		{name: "rsa without public key", useRSAKeys: true, privateKey: privPEM, expectError: true},
		{name: "rsa garbage public key", useRSAKeys: true, publicKey: "garbage", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewTokenService("iss", "aud", tt.useRSAKeys, tt.privateKey, tt.publicKey, tt.secretKey)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestTokenService_GenerateAndValidate(t *testing.T) {
	svc := createTestTokenService(t)
	userID := uuid.New()

	token, err := svc.GenerateAccessToken(userID, RolePatient, 15*time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, RolePatient, claims.Role)
	assert.False(t, claims.IsAdmin())
	assert.NotEmpty(t, claims.TokenID)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
}

func TestTokenService_RSA(t *testing.T) {
	_, privPEM, pubPEM := newTestKeyPair(t)
	signer, err := NewTokenService("iss", "aud", true, privPEM, pubPEM, "")
	require.NoError(t, err)
	verifier, err := NewTokenService("iss", "aud", true, "", pubPEM, "")
	require.NoError(t, err)

	token, err := signer.GenerateAccessToken(uuid.New(), RoleAdmin, time.Minute)
	require.NoError(t, err)

	claims, err := verifier.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())

	_, err = verifier.GenerateAccessToken(uuid.New(), RoleAdmin, time.Minute)
	assert.Error(t, err, "a verify-only service cannot mint tokens")
}

func TestTokenService_Rejections(t *testing.T) {
	svc := createTestTokenService(t)

	expired, err := svc.GenerateAccessToken(uuid.New(), RoleDoctor, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = svc.ValidateAccessToken("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	other, err := NewTokenService("test-issuer", "test-audience", false, "", "", "another-secret")
	require.NoError(t, err)
	foreign, err := other.GenerateAccessToken(uuid.New(), RolePatient, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	wrongAudience, err := NewTokenService("test-issuer", "elsewhere", false, "", "", "test-secret-key-for-jwt-signing-32-chars")
	require.NoError(t, err)
	token, err := wrongAudience.GenerateAccessToken(uuid.New(), RolePatient, time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    uuid.NewString(),
		"role":       RolePatient,
		"token_type": "refresh",
		"exp":        time.Now().Add(time.Minute).Unix(),
		"iss":        "test-issuer",
		"aud":        "test-audience",
	})
	signed, err := refresh.SignedString([]byte("test-secret-key-for-jwt-signing-32-chars"))
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid, "refresh tokens are not access tokens")
}
