package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	// refreshInterval is how often an authenticated session rotates its
	// cookie pair in the background.
	refreshInterval = time.Minute

	// validateInterval is how often the session is checked against the
	// server while authenticated.
	validateInterval = 5 * time.Minute

	// activityTimeout bounds the fire-and-forget audit calls so they can
	// never pile up behind a hung transport.
	activityTimeout = 5 * time.Second
)

// Manager owns the authoritative in-memory user for a running portal client.
// It keeps that user in sync with server-side session state through periodic
// validity checks, background token refresh and reactive refresh-on-401, and
// broadcasts every transition to registered listeners.
//
// A Manager is explicitly constructed and injectable: the application's
// composition root builds one and passes it to consumers. There is no package
// level instance.
//
// The invariant consumers rely on: User() == nil exactly when the manager
// considers itself unauthenticated. No intermediate state is observable.
type Manager struct {
	client *Client
	logger *slog.Logger
	clock  Clock

	mu             sync.RWMutex
	user           *User
	listeners      map[int]func(*User)
	nextListenerID int

	// timerStop is non-nil while the background loop runs. Closing it asks
	// the loop to exit; timerDone closes when it has.
	timerStop chan struct{}
	timerDone chan struct{}

	// refreshMu guards inflight so concurrent RefreshTokens calls collapse
	// into a single round trip sharing one outcome.
	refreshMu sync.Mutex
	inflight  *refreshCall
}

type refreshCall struct {
	done chan struct{}
	ok   bool
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithClock substitutes the time source, used by tests to fast-forward the
// background timers.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an anonymous Manager talking through client. Call
// Restore to attempt to resume an existing cookie session.
func NewManager(client *Client, opts ...Option) *Manager {
	m := &Manager{
		client:    client,
		logger:    slog.Default(),
		clock:     RealClock(),
		listeners: make(map[int]func(*User)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ============================================================================
// Session Lifecycle
// ============================================================================

// Restore attempts to resume a session from cookies the transport may already
// hold. When the server accepts the session the profile is loaded and the
// background timers start. Any failure leaves the manager anonymous; Restore
// never returns an error because there is nothing for the caller to handle.
func (m *Manager) Restore(ctx context.Context) bool {
	valid, err := m.client.Validate(ctx)
	if err != nil || !valid {
		return false
	}

	user, err := m.client.Profile(ctx)
	if err != nil {
		return false
	}

	m.setUser(user)
	m.startTimers()
	return true
}

// Login authenticates with email and password. On success the manager becomes
// authenticated, the background timers start and a login activity event is
// emitted best-effort. Failures come back as a structured result; Login never
// returns an error value.
func (m *Manager) Login(ctx context.Context, email, password string, rememberMe bool) LoginResult {
	return m.login(ctx, email, password, rememberMe, "")
}

// LoginWithTwoFactor completes a login that previously reported
// RequiresTwoFactor, supplying the second-factor code.
func (m *Manager) LoginWithTwoFactor(ctx context.Context, email, password, code string) LoginResult {
	return m.login(ctx, email, password, false, code)
}

func (m *Manager) login(ctx context.Context, email, password string, rememberMe bool, code string) LoginResult {
	user, err := m.client.Login(ctx, email, password, rememberMe, code)
	if err != nil {
		return loginFailure(err)
	}

	m.setUser(user)
	m.startTimers()
	m.trackActivity("login")

	return LoginResult{Success: true, User: user.clone()}
}

func loginFailure(err error) LoginResult {
	var twoFactorErr *TwoFactorRequiredError
	if errors.As(err, &twoFactorErr) {
		return LoginResult{RequiresTwoFactor: true, Error: "Two-factor authentication required"}
	}

	var lockoutErr *LockoutError
	if errors.As(err, &lockoutErr) {
		return LoginResult{LockoutTime: lockoutErr.RetryAfter, Error: lockoutErr.Message}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return LoginResult{Error: apiErr.Message}
	}

	return LoginResult{Error: genericFailureMessage}
}

// Signup registers a new account. It does not authenticate the session: the
// returned user comes from the signup response only and the manager stays in
// its current state.
func (m *Manager) Signup(ctx context.Context, email, password, fullName string, acceptTerms bool) SignupResult {
	user, err := m.client.Signup(ctx, email, password, fullName, acceptTerms)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return SignupResult{Error: apiErr.Message}
		}
		return SignupResult{Error: genericFailureMessage}
	}
	return SignupResult{Success: true, User: user}
}

// Logout invalidates the server session best-effort and always clears local
// state, stopping both background timers. Calling it while anonymous is a
// no-op.
func (m *Manager) Logout(ctx context.Context) {
	if m.IsAuthenticated() {
		if err := m.client.Logout(ctx); err != nil {
			m.logger.Warn("server logout failed, clearing local session anyway", "error", err)
		}
	}
	m.clearAuth()
}

// RefreshTokens rotates the session cookies and, on success, reloads the
// profile so server-side role or permission changes propagate. Concurrent
// callers collapse into a single in-flight refresh and share its outcome.
// A rejected refresh is fatal to the session: local state clears and the
// method returns false.
func (m *Manager) RefreshTokens(ctx context.Context) bool {
	m.refreshMu.Lock()
	if call := m.inflight; call != nil {
		m.refreshMu.Unlock()
		<-call.done
		return call.ok
	}
	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	m.refreshMu.Unlock()

	ok := m.doRefresh(ctx)

	m.refreshMu.Lock()
	call.ok = ok
	m.inflight = nil
	close(call.done)
	m.refreshMu.Unlock()

	return ok
}

func (m *Manager) doRefresh(ctx context.Context) bool {
	if err := m.client.Refresh(ctx); err != nil {
		m.logger.Info("token refresh rejected, clearing session", "error", err)
		m.clearAuth()
		return false
	}

	user, err := m.client.Profile(ctx)
	if err != nil {
		// The refresh itself succeeded; keep the session on the stale
		// profile rather than tearing it down.
		m.logger.Warn("profile reload after refresh failed", "error", err)
		return true
	}

	m.setUser(user)
	return true
}

// ============================================================================
// Stateless Operations
// ============================================================================

// ResetPassword requests a password reset email for the given address.
func (m *Manager) ResetPassword(ctx context.Context, email string) OpResult {
	msg, err := m.client.RequestPasswordReset(ctx, email)
	if err != nil {
		return opFailure(err)
	}
	return OpResult{Success: true, Message: msg}
}

// ConfirmPasswordReset applies a reset token and new password.
func (m *Manager) ConfirmPasswordReset(ctx context.Context, token, newPassword string) OpResult {
	msg, err := m.client.ConfirmPasswordReset(ctx, token, newPassword)
	if err != nil {
		return opFailure(err)
	}
	return OpResult{Success: true, Message: msg}
}

// ChangePassword changes the password of the authenticated session and emits
// an audit event on success only. An expired access cookie triggers a single
// refresh-and-retry before the failure is surfaced.
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) OpResult {
	var msg string
	err := m.doAuthenticated(ctx, func() error {
		var callErr error
		msg, callErr = m.client.ChangePassword(ctx, currentPassword, newPassword)
		return callErr
	})
	if err != nil {
		return opFailure(err)
	}

	m.trackActivity("password_change")
	return OpResult{Success: true, Message: msg}
}

func opFailure(err error) OpResult {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return OpResult{Error: apiErr.Message}
	}
	return OpResult{Error: genericFailureMessage}
}

// ============================================================================
// Internal Plumbing
// ============================================================================

// doAuthenticated runs fn and, when it fails with 401, performs exactly one
// token refresh and retries fn once. A failed refresh already cleared the
// session, so the original error is returned untouched. This is the only
// retry path; there is deliberately no loop.
func (m *Manager) doAuthenticated(ctx context.Context, fn func() error) error {
	err := fn()
	if !isUnauthorized(err) {
		return err
	}
	if !m.RefreshTokens(ctx) {
		return err
	}
	return fn()
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// setUser swaps the current user and notifies listeners. The swap completes
// before any listener runs, so no listener observes partial state.
func (m *Manager) setUser(u *User) {
	m.mu.Lock()
	m.user = u
	fns := m.snapshotListeners()
	m.mu.Unlock()

	for _, fn := range fns {
		fn(u.clone())
	}
}

// clearAuth stops both timers and drops the user. Idempotent: a second call
// while already anonymous does nothing, including re-notifying listeners.
func (m *Manager) clearAuth() {
	m.stopTimers()

	m.mu.Lock()
	wasAuthenticated := m.user != nil
	m.user = nil
	fns := m.snapshotListeners()
	m.mu.Unlock()

	if !wasAuthenticated {
		return
	}
	for _, fn := range fns {
		fn(nil)
	}
}

// snapshotListeners copies the listener set; callers must hold mu. Listeners
// themselves always run outside the lock.
func (m *Manager) snapshotListeners() []func(*User) {
	fns := make([]func(*User), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	return fns
}

// trackActivity emits a best-effort audit event in the background. Failures
// are logged and never influence the operation that triggered the event.
func (m *Manager) trackActivity(action string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), activityTimeout)
		defer cancel()

		if err := m.client.TrackActivity(ctx, action); err != nil {
			m.logger.Warn("activity tracking failed", "action", action, "error", err)
		}
	}()
}

// ============================================================================
// Background Timers
// ============================================================================

// startTimers launches the refresh and session-validity loops, tearing down
// any previous pair first so intervals never leak across login cycles. Both
// timers always start and stop together.
func (m *Manager) startTimers() {
	m.stopTimers()

	m.mu.Lock()
	stop := make(chan struct{})
	done := make(chan struct{})
	m.timerStop = stop
	m.timerDone = done
	m.mu.Unlock()

	// Create the tickers before the goroutine starts so a caller that
	// returns from Login/Restore can immediately drive an injected Clock.
	refresh := m.clock.NewTicker(refreshInterval)
	validate := m.clock.NewTicker(validateInterval)

	go m.run(stop, done, refresh, validate)
}

// stopTimers signals the background loop to exit. It does not wait: a failed
// refresh clears auth from inside the loop itself, and blocking here would
// deadlock that path. Use Close when shutdown needs to wait.
func (m *Manager) stopTimers() {
	m.mu.Lock()
	if m.timerStop != nil {
		close(m.timerStop)
		m.timerStop = nil
		m.timerDone = nil
	}
	m.mu.Unlock()
}

// Close stops the background loop and waits for it to finish. It touches no
// server state; it exists for application shutdown and test teardown.
func (m *Manager) Close() {
	m.mu.Lock()
	stop := m.timerStop
	done := m.timerDone
	m.timerStop = nil
	m.timerDone = nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) run(stop, done chan struct{}, refresh, validate Ticker) {
	defer close(done)

	defer refresh.Stop()
	defer validate.Stop()

	for {
		select {
		case <-refresh.Chan():
			if stopped(stop) {
				return
			}
			m.RefreshTokens(context.Background())
		case <-validate.Chan():
			if stopped(stop) {
				return
			}
			m.checkSession(context.Background())
		case <-stop:
			return
		}
	}
}

// stopped re-checks the stop channel after a tick won the select, so a tick
// racing a teardown never triggers another server call.
func stopped(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// checkSession asks the server whether the cookie session is still accepted.
// An explicit rejection is fatal; a transport error is logged and left for
// the next tick (or the refresh loop) to resolve.
func (m *Manager) checkSession(ctx context.Context) {
	valid, err := m.client.Validate(ctx)
	switch {
	case err == nil && valid:
		return
	case err == nil || isUnauthorized(err):
		m.logger.Info("session no longer valid, clearing")
		m.clearAuth()
	default:
		m.logger.Warn("session check failed", "error", err)
	}
}
