// Package store provides the in-memory backing state for the stub auth
// service. Everything lives in process memory and is lost on restart, which
// is the point: the stub exists for local development and tests, not for
// production traffic.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/scamwatch/portal/internal/authstub/domain"
)

const activityRingSize = 1000

type refreshRecord struct {
	UserID     string
	ExpiresAt  time.Time
	RememberMe bool
}

type resetRecord struct {
	UserID    string
	ExpiresAt time.Time
}

type attemptRecord struct {
	Failures    int
	LockedUntil time.Time
}

// Store is a mutex-protected in-memory database.
type Store struct {
	mu sync.RWMutex

	usersByID  map[string]domain.User
	idsByEmail map[string]string

	refreshTokens map[string]refreshRecord // keyed by token fingerprint
	resetTokens   map[string]resetRecord   // keyed by token fingerprint

	attempts map[string]attemptRecord // keyed by normalized email

	activity []domain.ActivityEvent // bounded ring, newest last
}

func New() *Store {
	return &Store{
		usersByID:     make(map[string]domain.User),
		idsByEmail:    make(map[string]string),
		refreshTokens: make(map[string]refreshRecord),
		resetTokens:   make(map[string]resetRecord),
		attempts:      make(map[string]attemptRecord),
	}
}

// ----- Users -----

// CreateUser inserts a new user. The email must be unique (case-insensitive).
func (s *Store) CreateUser(_ context.Context, u domain.User) error {
	email := normalizeEmail(u.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.idsByEmail[email]; exists {
		return domain.ErrEmailTaken
	}
	s.usersByID[u.ID] = u
	s.idsByEmail[email] = u.ID
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idsByEmail[normalizeEmail(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return s.usersByID[id], nil
}

// UpdateUser replaces an existing user record by ID.
func (s *Store) UpdateUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[u.ID]; !ok {
		return domain.ErrUserNotFound
	}
	s.usersByID[u.ID] = u
	return nil
}

// ----- Refresh tokens -----

// PutRefreshToken stores a refresh token fingerprint for a user.
func (s *Store) PutRefreshToken(_ context.Context, fingerprint, userID string, expiresAt time.Time, rememberMe bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[fingerprint] = refreshRecord{UserID: userID, ExpiresAt: expiresAt, RememberMe: rememberMe}
}

// TakeRefreshToken looks up and removes a refresh token fingerprint in one
// step, making each token single-use.
func (s *Store) TakeRefreshToken(_ context.Context, fingerprint string) (userID string, rememberMe bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.refreshTokens[fingerprint]
	if !ok || time.Now().After(rec.ExpiresAt) {
		delete(s.refreshTokens, fingerprint)
		return "", false, domain.ErrTokenNotFound
	}
	delete(s.refreshTokens, fingerprint)
	return rec.UserID, rec.RememberMe, nil
}

// DeleteRefreshTokensForUser drops every refresh token held for a user.
func (s *Store) DeleteRefreshTokensForUser(_ context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for fp, rec := range s.refreshTokens {
		if rec.UserID == userID {
			delete(s.refreshTokens, fp)
		}
	}
}

// ----- Password reset tokens -----

func (s *Store) PutResetToken(_ context.Context, fingerprint, userID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetTokens[fingerprint] = resetRecord{UserID: userID, ExpiresAt: expiresAt}
}

// TakeResetToken looks up and removes a reset token fingerprint. Tokens are
// one-time use.
func (s *Store) TakeResetToken(_ context.Context, fingerprint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.resetTokens[fingerprint]
	if !ok || time.Now().After(rec.ExpiresAt) {
		delete(s.resetTokens, fingerprint)
		return "", domain.ErrTokenNotFound
	}
	delete(s.resetTokens, fingerprint)
	return rec.UserID, nil
}

// ----- Login attempt tracking -----

// RecordLoginFailure increments the failure counter for an email and returns
// the new count.
func (s *Store) RecordLoginFailure(_ context.Context, email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.attempts[normalizeEmail(email)]
	rec.Failures++
	s.attempts[normalizeEmail(email)] = rec
	return rec.Failures
}

// LockAccount sets the lockout deadline for an email.
func (s *Store) LockAccount(_ context.Context, email string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.attempts[normalizeEmail(email)]
	rec.LockedUntil = until
	s.attempts[normalizeEmail(email)] = rec
}

// LockedUntil reports the active lockout deadline, or the zero time when the
// account is not locked.
func (s *Store) LockedUntil(_ context.Context, email string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.attempts[normalizeEmail(email)]
	if time.Now().After(rec.LockedUntil) {
		return time.Time{}
	}
	return rec.LockedUntil
}

// ClearLoginFailures resets the counter after a successful login.
func (s *Store) ClearLoginFailures(_ context.Context, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, normalizeEmail(email))
}

// ----- Activity -----

// AppendActivity records a user action in the bounded activity ring.
func (s *Store) AppendActivity(_ context.Context, ev domain.ActivityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activity = append(s.activity, ev)
	if len(s.activity) > activityRingSize {
		s.activity = s.activity[len(s.activity)-activityRingSize:]
	}
}

// RecentActivity returns up to limit most recent events, newest first.
func (s *Store) RecentActivity(_ context.Context, limit int) []domain.ActivityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(limit, len(s.activity))
	out := make([]domain.ActivityEvent, 0, n)
	for i := len(s.activity) - 1; i >= len(s.activity)-n; i-- {
		out = append(out, s.activity[i])
	}
	return out
}

// ----- Housekeeping -----

// DeleteExpiredTokens sweeps refresh and reset tokens past their deadline,
// plus lockout records that have lapsed.
func (s *Store) DeleteExpiredTokens(_ context.Context) (deleted int) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for fp, rec := range s.refreshTokens {
		if now.After(rec.ExpiresAt) {
			delete(s.refreshTokens, fp)
			deleted++
		}
	}
	for fp, rec := range s.resetTokens {
		if now.After(rec.ExpiresAt) {
			delete(s.resetTokens, fp)
			deleted++
		}
	}
	for email, rec := range s.attempts {
		if !rec.LockedUntil.IsZero() && now.After(rec.LockedUntil) {
			delete(s.attempts, email)
			deleted++
		}
	}
	return deleted
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
