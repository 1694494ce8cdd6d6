package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/pkg/domainerrors"
)

var (
	tokenService = NewService("test-signing-key", "test-issuer")
	user         = "admin@acme.example"
	site         = "acme.example"
	expiresIn    = time.Hour
)

func Test_GenerateToken(t *testing.T) {
	token, err := tokenService.GenerateToken(user, site, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tokenService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user, claims.User)
	assert.Equal(t, site, claims.Site)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := tokenService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := tokenService.GenerateToken(user, site, -time.Hour)
	require.NoError(t, err)

	_, err = tokenService.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewService("different-key", "test-issuer")
	token, err := other.GenerateToken(user, site, expiresIn)
	require.NoError(t, err)

	_, err = tokenService.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeUnauthorized))
}

func Test_ValidateToken_MissingUserClaim(t *testing.T) {
	token, err := tokenService.GenerateToken("", site, expiresIn)
	require.NoError(t, err)

	_, err = tokenService.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeUnauthorized))
}
