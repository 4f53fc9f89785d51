package domain

import (
	"errors"
	"time"
)

// User is the portal account record held by the stub auth service.
type User struct {
	ID            string
	Email         string
	FullName      string
	PasswordHash  string
	Role          string
	Permissions   []string
	LastLogin     time.Time
	LoginCount    int
	EmailVerified bool
	TOTPSecret    string // non-empty means two-factor is enabled
	Department    string
	CreatedAt     time.Time
}

// TwoFactorEnabled reports whether the account requires a TOTP code at login.
func (u User) TwoFactorEnabled() bool {
	return u.TOTPSecret != ""
}

// ActivityEvent is a single tracked user action.
type ActivityEvent struct {
	UserID     string
	Action     string
	OccurredAt time.Time
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTokenNotFound      = errors.New("token not found or expired")
)

// LockoutError reports that an account is temporarily locked after repeated
// failed login attempts.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	return "account locked until " + e.Until.Format(time.RFC3339)
}

// ErrTwoFactorRequired is returned when credentials are valid but the account
// has two-factor enabled and no code was supplied.
var ErrTwoFactorRequired = errors.New("two-factor code required")

// ErrInvalidTwoFactorCode is returned when the supplied TOTP code does not
// verify against the account secret.
var ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
