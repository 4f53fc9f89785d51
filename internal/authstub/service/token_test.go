package service

import (
	"context"
	"testing"
	"time"

	"github.com/scamwatch/portal/internal/authstub/store"
	"github.com/stretchr/testify/require"
)

func newTokenService() *TokenService {
	return &TokenService{
		Store:      store.New(),
		Secret:     []byte("test-secret-test-secret-test-secret!"),
		Issuer:     "scamwatch-authstub",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
	}
}

func TestMintAndVerifyAccess(t *testing.T) {
	t.Parallel()

	svc := newTokenService()

	token, err := svc.MintAccess("user-1")
	require.NoError(t, err)

	userID, err := svc.VerifyAccess(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestVerifyAccessRejections(t *testing.T) {
	t.Parallel()

	svc := newTokenService()
	token, err := svc.MintAccess("user-1")
	require.NoError(t, err)

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.VerifyAccess("not-a-jwt")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := newTokenService()
		other.Secret = []byte("a-completely-different-secret-value")

		_, err := other.VerifyAccess(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := newTokenService()
		other.Issuer = "someone-else"

		_, err := other.VerifyAccess(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		short := newTokenService()
		short.AccessTTL = -time.Minute

		expired, err := short.MintAccess("user-1")
		require.NoError(t, err)

		_, err = short.VerifyAccess(expired)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRefreshRotation(t *testing.T) {
	t.Parallel()

	svc := newTokenService()
	ctx := context.Background()

	refresh, err := svc.IssueRefresh(ctx, "user-1", true)
	require.NoError(t, err)

	userID, access, next, rememberMe, err := svc.RotateRefresh(ctx, refresh)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
	require.True(t, rememberMe, "rememberMe carries across rotations")
	require.NotEqual(t, refresh, next)

	_, err = svc.VerifyAccess(access)
	require.NoError(t, err)

	// The consumed token is single-use
	_, _, _, _, err = svc.RotateRefresh(ctx, refresh)
	require.ErrorIs(t, err, ErrInvalidToken)

	// The rotated one still works
	_, _, _, _, err = svc.RotateRefresh(ctx, next)
	require.NoError(t, err)
}

func TestRevokeAllRefresh(t *testing.T) {
	t.Parallel()

	svc := newTokenService()
	ctx := context.Background()

	first, err := svc.IssueRefresh(ctx, "user-1", false)
	require.NoError(t, err)
	second, err := svc.IssueRefresh(ctx, "user-1", false)
	require.NoError(t, err)
	other, err := svc.IssueRefresh(ctx, "user-2", false)
	require.NoError(t, err)

	svc.RevokeAllRefresh(ctx, "user-1")

	_, _, _, _, err = svc.RotateRefresh(ctx, first)
	require.ErrorIs(t, err, ErrInvalidToken)
	_, _, _, _, err = svc.RotateRefresh(ctx, second)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Other users are untouched
	_, _, _, _, err = svc.RotateRefresh(ctx, other)
	require.NoError(t, err)
}
