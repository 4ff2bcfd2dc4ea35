package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService("secret", "az-publish")
	token, err := svc.GenerateToken("u1", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
}

func TestTokenService_Rejects(t *testing.T) {
	svc := NewTokenService("secret", "az-publish")

	expired, err := svc.GenerateToken("u1", -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.Error(t, err)

	foreign, err := NewTokenService("other", "az-publish").GenerateToken("u1", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.Error(t, err)

	otherIssuer, err := NewTokenService("secret", "someone-else").GenerateToken("u1", time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(otherIssuer)
	assert.Error(t, err)

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestTokenService_DisabledAcceptsNothing(t *testing.T) {
	svc := NewTokenService("", "az-publish")
	assert.False(t, svc.Enabled())
	_, err := svc.GenerateToken("u1", time.Hour)
	assert.Error(t, err)
	_, err = svc.ValidateToken("anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
