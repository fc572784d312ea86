package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/omnirag/internal/auth"
)

func TestGenerateAndValidateToken(t *testing.T) {
	manager := auth.NewJWTManager(auth.DefaultJWTConfig("secret"))
	ownerID := uuid.New()

	token, err := manager.GenerateToken(ownerID, "Ada")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, ownerID.String(), claims.OwnerID)
	assert.Equal(t, "Ada", claims.OwnerName)

	got, err := claims.GetOwnerID()
	require.NoError(t, err)
	assert.Equal(t, ownerID, got)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	manager := auth.NewJWTManager(auth.DefaultJWTConfig("secret-a"))
	token, err := manager.GenerateToken(uuid.New(), "Ada")
	require.NoError(t, err)

	other := auth.NewJWTManager(auth.DefaultJWTConfig("secret-b"))
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	manager := auth.NewJWTManager(auth.DefaultJWTConfig("secret"))
	token, err := manager.GenerateTokenWithExpiry(uuid.New(), "Ada", -time.Minute)
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestRefreshTokenReissuesFromExpiredToken(t *testing.T) {
	manager := auth.NewJWTManager(auth.DefaultJWTConfig("secret"))
	ownerID := uuid.New()
	token, err := manager.GenerateTokenWithExpiry(ownerID, "Ada", -time.Minute)
	require.NoError(t, err)

	refreshed, err := manager.RefreshToken(token)
	require.NoError(t, err)

	claims, err := manager.ValidateToken(refreshed)
	require.NoError(t, err)
	assert.Equal(t, ownerID.String(), claims.OwnerID)
}

func TestIsTokenExpired(t *testing.T) {
	manager := auth.NewJWTManager(auth.DefaultJWTConfig("secret"))
	fresh, err := manager.GenerateToken(uuid.New(), "Ada")
	require.NoError(t, err)
	assert.False(t, manager.IsTokenExpired(fresh))

	stale, err := manager.GenerateTokenWithExpiry(uuid.New(), "Ada", -time.Minute)
	require.NoError(t, err)
	assert.True(t, manager.IsTokenExpired(stale))
}
