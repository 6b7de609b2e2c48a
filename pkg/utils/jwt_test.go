package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken("secret", "user-1", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, tokenIssuer, claims.Issuer)
}

func TestValidateToken_Rejects(t *testing.T) {
	token, err := GenerateToken("secret", "user-1", time.Hour)
	require.NoError(t, err)

	_, err = ValidateToken("other", token)
	assert.Error(t, err)

	expired, err := GenerateToken("secret", "user-1", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken("secret", expired)
	assert.Error(t, err)

	_, err = ValidateToken("secret", "not-a-token")
	assert.Error(t, err)
}
