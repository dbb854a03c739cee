package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	token, err := GenerateToken("wp-site", "read", secret, time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, "wp-site", claims.Subject)
	require.Equal(t, "read", claims.Scope)

	_, err = ParseToken(token, []byte("other"))
	require.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	secret := []byte("s3cret")
	token, err := GenerateToken("wp-site", "", secret, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = ParseToken(token, secret)
	require.Error(t, err)
}

func TestEmptySecret(t *testing.T) {
	_, err := GenerateToken("x", "", nil, time.Hour, time.Now())
	require.Error(t, err)
}
