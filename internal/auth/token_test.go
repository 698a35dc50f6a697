package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tm, err := NewTokenManager("test-secret", time.Hour, "kereru-gateway")
	require.NoError(t, err)

	token, exp, err := tm.Issue("ops@example.co.nz")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "ops@example.co.nz", claims.Subject)
	require.Equal(t, AdminScope, claims.Scope)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	tm, err := NewTokenManager("test-secret", time.Minute, "kereru-gateway")
	require.NoError(t, err)
	token, _, err := tm.Issue("ops")
	require.NoError(t, err)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.Verify(token)
	require.True(t, errors.Is(err, ErrInvalidToken))

	other, err := NewTokenManager("other-secret", time.Minute, "kereru-gateway")
	require.NoError(t, err)
	foreign, _, err := other.Issue("ops")
	require.NoError(t, err)
	tm.now = time.Now
	_, err = tm.Verify(foreign)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRequiresAdminScope(t *testing.T) {
	tm, err := NewTokenManager("test-secret", time.Minute, "")
	require.NoError(t, err)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Scope: "reader",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = tm.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenManagerValidates(t *testing.T) {
	_, err := NewTokenManager("", time.Minute, "")
	require.Error(t, err)
	_, err = NewTokenManager("s", 0, "")
	require.Error(t, err)
}
