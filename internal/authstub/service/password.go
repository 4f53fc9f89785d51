package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scamwatch/portal/internal/authstub/domain"
	"github.com/scamwatch/portal/internal/authstub/store"
	"github.com/scamwatch/portal/pkg/cryptox"
)

const resetTokenTTL = 30 * time.Minute

var ErrWrongPassword = errors.New("current password is incorrect")

// PasswordService handles the reset and change-password flows. The stub has
// no mailer, so reset tokens are written to the log where a developer can
// copy them.
type PasswordService struct {
	Store  *store.Store
	Logger *slog.Logger
}

// RequestReset issues a one-time reset token for the account and returns it.
// It succeeds silently for unknown emails so the endpoint cannot be used to
// enumerate accounts; the empty return is indistinguishable over the wire.
func (s *PasswordService) RequestReset(ctx context.Context, email string) string {
	user, err := s.Store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return ""
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		s.Logger.Error("failed to generate reset token", "error", err)
		return ""
	}

	s.Store.PutResetToken(ctx, cryptox.FingerprintToken(token), user.ID,
		time.Now().Add(resetTokenTTL))

	// Stand-in for the email delivery a real deployment would do
	s.Logger.Info("password reset token issued",
		"email", user.Email,
		"token", token,
		"expires_in", resetTokenTTL,
	)
	return token
}

// ConfirmReset consumes a reset token and sets the new password. All refresh
// tokens for the account are revoked so stolen sessions die with the old
// password.
func (s *PasswordService) ConfirmReset(ctx context.Context, token, newPassword string) error {
	userID, err := s.Store.TakeResetToken(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		return domain.ErrTokenNotFound
	}

	user, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash
	if err := s.Store.UpdateUser(ctx, user); err != nil {
		return err
	}

	s.Store.DeleteRefreshTokensForUser(ctx, userID)
	return nil
}

// Change verifies the current password before setting a new one for an
// authenticated user.
func (s *PasswordService) Change(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.Store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := cryptox.VerifyPassword(currentPassword, user.PasswordHash); err != nil {
		return ErrWrongPassword
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash
	return s.Store.UpdateUser(ctx, user)
}
