package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/scamwatch/portal/internal/authstub/domain"
	"github.com/scamwatch/portal/internal/authstub/store"
	"github.com/scamwatch/portal/pkg/cryptox"
	"github.com/scamwatch/portal/pkg/idx"
)

// AuthService owns credential checks, the failed-attempt lockout policy and
// account creation.
type AuthService struct {
	Store            *store.Store
	LockoutThreshold int           // failures before a lockout triggers
	LockoutDuration  time.Duration // how long a lockout lasts
}

// Authenticate verifies credentials and, for two-factor accounts, the TOTP
// code. On success the user's login stats are updated and any failure count
// is cleared.
//
// Lockouts key on the submitted email so attackers cannot probe whether an
// account exists by watching for lockout responses.
func (s *AuthService) Authenticate(ctx context.Context, email, password, twoFactorCode string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if until := s.Store.LockedUntil(ctx, email); !until.IsZero() {
		return domain.User{}, &domain.LockoutError{Until: until}
	}

	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, s.recordFailure(ctx, email)
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return domain.User{}, s.recordFailure(ctx, email)
	}

	if user.TwoFactorEnabled() {
		if twoFactorCode == "" {
			// Correct password, so this is not a failed attempt
			return domain.User{}, domain.ErrTwoFactorRequired
		}
		if !totp.Validate(twoFactorCode, user.TOTPSecret) {
			if err := s.recordFailure(ctx, email); !errors.Is(err, domain.ErrInvalidCredentials) {
				return domain.User{}, err
			}
			return domain.User{}, domain.ErrInvalidTwoFactorCode
		}
	}

	s.Store.ClearLoginFailures(ctx, email)

	user.LastLogin = time.Now().UTC()
	user.LoginCount++
	if err := s.Store.UpdateUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("failed to update login stats: %w", err)
	}
	return user, nil
}

// recordFailure bumps the failure counter and converts the threshold crossing
// into a lockout.
func (s *AuthService) recordFailure(ctx context.Context, email string) error {
	failures := s.Store.RecordLoginFailure(ctx, email)
	if failures >= s.LockoutThreshold {
		until := time.Now().Add(s.LockoutDuration)
		s.Store.LockAccount(ctx, email, until)
		return &domain.LockoutError{Until: until}
	}
	return domain.ErrInvalidCredentials
}

// Signup creates a new account with the portal's default role. The caller is
// not logged in afterwards; the portal sends new users through login so the
// cookie flow stays in one place.
func (s *AuthService) Signup(ctx context.Context, email, password, fullName string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		Role:         "user",
		Permissions:  []string{"read"},
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.Store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return domain.User{}, err
		}
		return domain.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}
