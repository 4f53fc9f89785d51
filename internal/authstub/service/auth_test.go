package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/scamwatch/portal/internal/authstub/domain"
	"github.com/scamwatch/portal/internal/authstub/store"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	return &AuthService{
		Store:            store.New(),
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
	}
}

func TestSignupAndAuthenticate(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	ctx := context.Background()

	created, err := svc.Signup(ctx, " Alice@Example.COM ", "correct horse battery", "Alice A")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", created.Email, "email stored normalized")
	require.Equal(t, "user", created.Role)
	require.Equal(t, []string{"read"}, created.Permissions)
	require.Zero(t, created.LoginCount)

	// Any casing of the email authenticates
	user, err := svc.Authenticate(ctx, "ALICE@example.com", "correct horse battery", "")
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)
	require.Equal(t, 1, user.LoginCount)
	require.False(t, user.LastLogin.IsZero())

	user, err = svc.Authenticate(ctx, "alice@example.com", "correct horse battery", "")
	require.NoError(t, err)
	require.Equal(t, 2, user.LoginCount, "login count accumulates")
}

func TestSignupDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "bob@example.com", "password-one", "Bob")
	require.NoError(t, err)

	_, err = svc.Signup(ctx, "BOB@example.com", "password-two", "Other Bob")
	require.ErrorIs(t, err, domain.ErrEmailTaken, "duplicate detection is case-insensitive")
}

func TestAuthenticateLockout(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "carol@example.com", "right-password", "Carol")
	require.NoError(t, err)

	// Four wrong attempts are plain rejections
	for i := range 4 {
		_, err := svc.Authenticate(ctx, "carol@example.com", "wrong", "")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials, "attempt %d", i+1)
	}

	// The fifth crosses the threshold
	_, err = svc.Authenticate(ctx, "carol@example.com", "wrong", "")
	var lockout *domain.LockoutError
	require.ErrorAs(t, err, &lockout)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), lockout.Until, time.Minute)

	// Even the right password is rejected while locked
	_, err = svc.Authenticate(ctx, "carol@example.com", "right-password", "")
	require.ErrorAs(t, err, &lockout)
}

func TestAuthenticateLockoutOnUnknownEmail(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	ctx := context.Background()

	// Unknown accounts lock out the same way, so the endpoint doesn't reveal
	// which emails exist
	for range 4 {
		_, err := svc.Authenticate(ctx, "ghost@example.com", "anything", "")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}

	_, err := svc.Authenticate(ctx, "ghost@example.com", "anything", "")
	var lockout *domain.LockoutError
	require.ErrorAs(t, err, &lockout)
}

func TestAuthenticateClearsFailuresOnSuccess(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "dave@example.com", "secret-password", "Dave")
	require.NoError(t, err)

	for range 4 {
		_, err := svc.Authenticate(ctx, "dave@example.com", "wrong", "")
		require.Error(t, err)
	}

	_, err = svc.Authenticate(ctx, "dave@example.com", "secret-password", "")
	require.NoError(t, err)

	// The counter reset: four more failures don't lock yet
	for range 4 {
		_, err := svc.Authenticate(ctx, "dave@example.com", "wrong", "")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
}

func TestAuthenticateTwoFactor(t *testing.T) {
	t.Parallel()

	svc := newAuthService(t)
	ctx := context.Background()

	created, err := svc.Signup(ctx, "eve@example.com", "password-123", "Eve")
	require.NoError(t, err)

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "scamwatch-authstub",
		AccountName: created.Email,
	})
	require.NoError(t, err)

	created.TOTPSecret = key.Secret()
	require.NoError(t, svc.Store.UpdateUser(ctx, created))

	// Correct password without a code asks for the second factor
	_, err = svc.Authenticate(ctx, "eve@example.com", "password-123", "")
	require.ErrorIs(t, err, domain.ErrTwoFactorRequired)

	// A bad code counts as a failed attempt
	_, err = svc.Authenticate(ctx, "eve@example.com", "password-123", "000000")
	require.Error(t, err)
	require.False(t, errors.Is(err, domain.ErrTwoFactorRequired))

	// A valid code completes the login
	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, "eve@example.com", "password-123", code)
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)
}
