package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Fake Clock
// ============================================================================

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time, 1), interval: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward, firing every due ticker.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*fakeTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.advanceTo(now)
	}
}

type fakeTicker struct {
	mu       sync.Mutex
	c        chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) advanceTo(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.stopped && !t.next.After(now) {
		select {
		case t.c <- t.next:
		default: // slow consumer drops ticks, like time.Ticker
		}
		t.next = t.next.Add(t.interval)
	}
}

// ============================================================================
// Stub Auth Service
// ============================================================================

const stubUserJSON = `{"id":"1","email":"user@example.com","full_name":"Test User","role":"user","last_login":"2024-01-01T00:00:00Z","login_count":3}`

// stubAuth is a programmable in-process auth service for Manager tests.
type stubAuth struct {
	srv *httptest.Server

	mu             sync.Mutex
	loginCalls     int
	logoutCalls    int
	refreshCalls   int
	validateCalls  int
	profileCalls   int
	changeCalls    int
	activityCalls  int
	lastLoginBody  map[string]any
	loginStatus    int    // 0 => 200 with default user envelope
	loginBody      string // used when loginStatus != 0
	refreshStatus  int    // 0 => 204
	refreshGate    chan struct{}
	validateValid  bool
	profileJSON    string
	changeStatuses []int // consumed per call; empty => 200
}

func newStubAuth(t *testing.T) *stubAuth {
	t.Helper()

	s := &stubAuth{validateValid: true, profileJSON: stubUserJSON}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/validate", s.handleValidate)
	mux.HandleFunc("GET /auth/profile", s.handleProfile)
	mux.HandleFunc("POST /auth/change-password", s.handleChangePassword)
	mux.HandleFunc("POST /auth/activity", s.handleActivity)

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubAuth) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.loginCalls++
	_ = json.Unmarshal(body, &s.lastLoginBody)
	status, payload := s.loginStatus, s.loginBody
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
		return
	}
	_, _ = w.Write([]byte(`{"user":` + stubUserJSON + `}`))
}

func (s *stubAuth) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.logoutCalls++
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *stubAuth) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.refreshCalls++
	status := s.refreshStatus
	gate := s.refreshGate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"invalid refresh token"}`))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *stubAuth) handleValidate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.validateCalls++
	valid := s.validateValid
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(validateResponse{Valid: valid})
}

func (s *stubAuth) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.profileCalls++
	payload := s.profileJSON
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(payload))
}

func (s *stubAuth) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.changeCalls++
	status := http.StatusOK
	if len(s.changeStatuses) > 0 {
		status = s.changeStatuses[0]
		s.changeStatuses = s.changeStatuses[1:]
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusOK {
		_, _ = w.Write([]byte(`{"message":"Password updated"}`))
		return
	}
	_, _ = w.Write([]byte(`{"message":"the session has expired"}`))
}

func (s *stubAuth) handleActivity(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.activityCalls++
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *stubAuth) counts() (refresh, validate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls, s.validateCalls
}

func (s *stubAuth) set(mutate func(*stubAuth)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(s)
}

func newTestManager(t *testing.T, s *stubAuth, clock Clock) *Manager {
	t.Helper()

	opts := []Option{WithLogger(slog.New(slog.DiscardHandler))}
	if clock != nil {
		opts = append(opts, WithClock(clock))
	}
	m := NewManager(NewClient(s.srv.URL), opts...)
	t.Cleanup(m.Close)
	return m
}

func mustLogin(t *testing.T, m *Manager) {
	t.Helper()
	result := m.Login(context.Background(), "user@example.com", "pw", false)
	require.True(t, result.Success, "login failed: %s", result.Error)
}

// ============================================================================
// Tests
// ============================================================================

func TestLogoutWhenAnonymousIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	m := newTestManager(t, s, nil)

	m.Logout(context.Background())
	m.Logout(context.Background())

	require.False(t, m.IsAuthenticated())
	require.Nil(t, m.User())

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Zero(t, s.logoutCalls, "anonymous logout should not hit the server")
}

func TestListenerReplay(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	m := newTestManager(t, s, newFakeClock())
	mustLogin(t, m)

	var (
		mu    sync.Mutex
		calls []*User
	)
	unsubscribe := m.OnAuthStateChange(func(u *User) {
		mu.Lock()
		calls = append(calls, u)
		mu.Unlock()
	})

	// Exactly one immediate replay with the authenticated user.
	mu.Lock()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0])
	require.Equal(t, "user@example.com", calls[0].Email)
	mu.Unlock()

	m.Logout(context.Background())
	mu.Lock()
	require.Len(t, calls, 2)
	require.Nil(t, calls[1])
	mu.Unlock()

	unsubscribe()
	mustLogin(t, m)
	mu.Lock()
	require.Len(t, calls, 2, "unsubscribed listener must not fire")
	mu.Unlock()
}

func TestRoleChecks(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	s.set(func(s *stubAuth) {
		s.loginStatus = http.StatusOK
		s.loginBody = `{"user":{"id":"2","email":"mod@example.com","role":"moderator"}}`
	})
	m := newTestManager(t, s, newFakeClock())
	mustLogin(t, m)

	// A moderator satisfies every check at or below its rank.
	require.True(t, m.HasRole(RoleGuest))
	require.True(t, m.HasRole(RoleUser))
	require.True(t, m.HasRole(RoleModerator))
	require.False(t, m.HasRole(RoleAdmin))
	require.False(t, m.HasRole(RoleSuperAdmin))

	require.True(t, m.HasAnyRole(RoleAdmin, RoleUser))
	require.False(t, m.HasAnyRole(RoleAdmin, RoleSuperAdmin))

	m.Logout(context.Background())
	require.False(t, m.HasRole(RoleGuest), "anonymous passes no role check")
}

func TestPermissionExactness(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	s.set(func(s *stubAuth) {
		s.loginStatus = http.StatusOK
		s.loginBody = `{"user":{"id":"3","email":"admin@example.com","role":"admin"}}`
	})
	m := newTestManager(t, s, newFakeClock())
	mustLogin(t, m)

	// Admin's default set stops short of super_admin; rank does not leak
	// into permission checks.
	require.True(t, m.HasPermission(PermissionAdmin))
	require.True(t, m.HasPermission(PermissionDelete))
	require.False(t, m.HasPermission(PermissionSuperAdmin))

	require.True(t, m.HasAnyPermission(PermissionSuperAdmin, PermissionRead))
	require.False(t, m.HasAnyPermission(PermissionSuperAdmin))
}

func TestUnauthorizedTriggersSingleRefresh(t *testing.T) {
	t.Parallel()

	t.Run("refresh succeeds and the call is retried once", func(t *testing.T) {
		s := newStubAuth(t)
		m := newTestManager(t, s, newFakeClock())
		mustLogin(t, m)

		s.set(func(s *stubAuth) { s.changeStatuses = []int{http.StatusUnauthorized} })

		result := m.ChangePassword(context.Background(), "old", "new")
		require.True(t, result.Success)
		require.Equal(t, "Password updated", result.Message)

		s.mu.Lock()
		require.Equal(t, 1, s.refreshCalls)
		require.Equal(t, 2, s.changeCalls)
		s.mu.Unlock()
	})

	t.Run("refresh failure surfaces the original error without retry", func(t *testing.T) {
		s := newStubAuth(t)
		m := newTestManager(t, s, newFakeClock())
		mustLogin(t, m)

		s.set(func(s *stubAuth) {
			s.changeStatuses = []int{http.StatusUnauthorized}
			s.refreshStatus = http.StatusUnauthorized
		})

		result := m.ChangePassword(context.Background(), "old", "new")
		require.False(t, result.Success)
		require.Equal(t, "the session has expired", result.Error)

		s.mu.Lock()
		require.Equal(t, 1, s.refreshCalls, "exactly one refresh even when it 401s")
		require.Equal(t, 1, s.changeCalls, "no retry after a failed refresh")
		s.mu.Unlock()

		require.False(t, m.IsAuthenticated(), "failed refresh clears the session")
	})
}

func TestClearOnRefreshFailure(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	clock := newFakeClock()
	m := newTestManager(t, s, clock)
	mustLogin(t, m)

	s.set(func(s *stubAuth) { s.refreshStatus = http.StatusUnauthorized })

	clock.Advance(refreshInterval)
	require.Eventually(t, func() bool { return !m.IsAuthenticated() },
		time.Second, 5*time.Millisecond)

	refreshBefore, validateBefore := s.counts()
	require.Equal(t, 1, refreshBefore)

	// Both timers must be dead: advancing well past both intervals produces
	// no further traffic.
	clock.Advance(3 * validateInterval)
	time.Sleep(50 * time.Millisecond)

	refreshAfter, validateAfter := s.counts()
	require.Equal(t, refreshBefore, refreshAfter)
	require.Equal(t, validateBefore, validateAfter)
}

func TestLoginScenario(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	m := newTestManager(t, s, newFakeClock())

	result := m.Login(context.Background(), "USER@Example.com ", "pw", false)
	require.True(t, result.Success)

	s.mu.Lock()
	require.Equal(t, "user@example.com", s.lastLoginBody["email"], "email normalized before the request left")
	s.mu.Unlock()

	require.Equal(t, RoleUser, result.User.Role)
	require.Equal(t, []Permission{PermissionRead}, result.User.Permissions)
	require.Equal(t, 3, result.User.LoginCount)
	require.True(t, m.IsAuthenticated())
}

func TestLoginLockout(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	s.set(func(s *stubAuth) {
		s.loginStatus = http.StatusBadRequest
		s.loginBody = `{"lockoutTime":900000,"message":"Too many attempts"}`
	})
	m := newTestManager(t, s, newFakeClock())

	result := m.Login(context.Background(), "user@example.com", "pw", false)
	require.False(t, result.Success)
	require.Equal(t, 15*time.Minute, result.LockoutTime)
	require.Equal(t, "Too many attempts", result.Error)
	require.False(t, result.RequiresTwoFactor)
	require.False(t, m.IsAuthenticated(), "lockout leaves state untouched")
}

func TestLoginTwoFactorRequired(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	s.set(func(s *stubAuth) {
		s.loginStatus = http.StatusUnauthorized
		s.loginBody = `{"requiresTwoFactor":true,"message":"Two-factor code required"}`
	})
	m := newTestManager(t, s, newFakeClock())

	result := m.Login(context.Background(), "user@example.com", "pw", false)
	require.False(t, result.Success)
	require.True(t, result.RequiresTwoFactor)
	require.Zero(t, result.LockoutTime)
	require.False(t, m.IsAuthenticated())
}

func TestLoginNetworkFailure(t *testing.T) {
	t.Parallel()

	// Unroutable port: the transport error must become the generic message.
	m := NewManager(NewClient("http://127.0.0.1:1"), WithLogger(slog.New(slog.DiscardHandler)))
	t.Cleanup(m.Close)

	result := m.Login(context.Background(), "user@example.com", "pw", false)
	require.False(t, result.Success)
	require.Equal(t, genericFailureMessage, result.Error)
}

func TestLogoutStopsTimers(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	clock := newFakeClock()
	m := newTestManager(t, s, clock)
	mustLogin(t, m)

	m.Logout(context.Background())
	require.False(t, m.IsAuthenticated())

	clock.Advance(3 * validateInterval)
	time.Sleep(50 * time.Millisecond)

	refresh, validate := s.counts()
	require.Zero(t, refresh, "no refresh may fire after logout")
	require.Zero(t, validate, "no session check may fire after logout")
}

func TestPeriodicSessionCheckClearsOnRejection(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	clock := newFakeClock()
	m := newTestManager(t, s, clock)
	mustLogin(t, m)

	s.set(func(s *stubAuth) {
		s.validateValid = false
		s.refreshStatus = http.StatusNoContent
	})

	clock.Advance(validateInterval)
	require.Eventually(t, func() bool { return !m.IsAuthenticated() },
		time.Second, 5*time.Millisecond)
}

func TestRefreshReloadsProfile(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	m := newTestManager(t, s, newFakeClock())
	mustLogin(t, m)
	require.Equal(t, RoleUser, m.UserRole())

	// The server promotes the user; the next refresh must pick it up.
	s.set(func(s *stubAuth) {
		s.profileJSON = `{"id":"1","email":"user@example.com","role":"moderator","permissions":["read","write","moderate"]}`
	})

	require.True(t, m.RefreshTokens(context.Background()))
	require.Equal(t, RoleModerator, m.UserRole())
	require.True(t, m.HasPermission(PermissionModerate))
}

func TestConcurrentRefreshCoalesces(t *testing.T) {
	t.Parallel()

	s := newStubAuth(t)
	m := newTestManager(t, s, newFakeClock())
	mustLogin(t, m)

	gate := make(chan struct{})
	s.set(func(s *stubAuth) { s.refreshGate = gate })

	const callers = 5
	results := make(chan bool, callers)
	for range callers {
		go func() { results <- m.RefreshTokens(context.Background()) }()
	}

	// Let every caller reach the coalescing point, then release the single
	// in-flight request.
	time.Sleep(50 * time.Millisecond)
	s.set(func(s *stubAuth) { s.refreshGate = nil })
	close(gate)

	for range callers {
		require.True(t, <-results)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Equal(t, 1, s.refreshCalls, "concurrent callers share one round trip")
}

func TestRestore(t *testing.T) {
	t.Parallel()

	t.Run("valid session resumes and loads the profile", func(t *testing.T) {
		s := newStubAuth(t)
		m := newTestManager(t, s, newFakeClock())

		require.True(t, m.Restore(context.Background()))
		require.True(t, m.IsAuthenticated())
		require.Equal(t, "user@example.com", m.User().Email)
	})

	t.Run("rejected session stays anonymous", func(t *testing.T) {
		s := newStubAuth(t)
		s.set(func(s *stubAuth) { s.validateValid = false })
		m := newTestManager(t, s, newFakeClock())

		require.False(t, m.Restore(context.Background()))
		require.False(t, m.IsAuthenticated())
	})
}

func TestSignupDoesNotAuthenticate(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":"9","email":"new@example.com","role":"user"},"message":"Account created"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	m := NewManager(NewClient(srv.URL), WithLogger(slog.New(slog.DiscardHandler)))
	t.Cleanup(m.Close)

	result := m.Signup(context.Background(), "New@Example.com", "Password1!", "New Person", true)
	require.True(t, result.Success)
	require.Equal(t, "new@example.com", result.User.Email)
	require.False(t, m.IsAuthenticated(), "signup must not start a session")
}
