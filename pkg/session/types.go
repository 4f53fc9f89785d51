package session

import (
	"time"
)

// ============================================================================
// Domain Types
// ============================================================================

// User is the authenticated portal identity. The Manager owns the single
// authoritative instance and replaces it wholesale on login, refresh and
// logout; callers only ever see copies.
type User struct {
	ID               string
	Email            string
	FullName         string
	Role             Role
	Permissions      []Permission
	LastLogin        time.Time
	LoginCount       int
	EmailVerified    bool
	TwoFactorEnabled bool
	Department       string // optional, empty when not set
}

// HasPermission reports exact membership of p in the user's permission set.
func (u *User) HasPermission(p Permission) bool {
	for _, have := range u.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// clone returns a deep copy so external callers cannot mutate Manager state.
func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Permissions = append([]Permission(nil), u.Permissions...)
	return &cp
}

// ============================================================================
// Operation Results
// ============================================================================

// LoginResult is the outcome of a login attempt. When Success is false exactly
// one of the failure signals applies: RequiresTwoFactor asks the caller to
// collect a second factor, a non-zero LockoutTime asks the caller to show a
// cooldown, and otherwise Error carries a user-facing message.
type LoginResult struct {
	Success           bool
	User              *User
	RequiresTwoFactor bool
	LockoutTime       time.Duration
	Error             string
}

// SignupResult is the outcome of a registration attempt. A successful signup
// returns the created user but does not authenticate the session.
type SignupResult struct {
	Success bool
	User    *User
	Error   string
}

// OpResult is the outcome of the stateless request/response operations
// (password reset, reset confirmation, password change).
type OpResult struct {
	Success bool
	Message string
	Error   string
}

// ============================================================================
// Wire Types
// ============================================================================

// profilePayload is the snake_case user record the auth service returns from
// GET /auth/profile and inside login/signup responses.
type profilePayload struct {
	ID               string   `json:"id"`
	Email            string   `json:"email"`
	FullName         string   `json:"full_name"`
	Role             string   `json:"role"`
	Permissions      []string `json:"permissions"`
	LastLogin        string   `json:"last_login"`
	LoginCount       int      `json:"login_count"`
	EmailVerified    bool     `json:"email_verified"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
	Department       string   `json:"department"`
}

// toUser translates the wire record into the internal shape. A missing role
// defaults to user and a missing permission list defaults to the role's
// default set.
func (p *profilePayload) toUser() *User {
	role := Role(p.Role)
	if !role.Valid() {
		role = RoleUser
	}

	perms := make([]Permission, 0, len(p.Permissions))
	for _, raw := range p.Permissions {
		perms = append(perms, Permission(raw))
	}
	if len(perms) == 0 {
		perms = DefaultPermissions(role)
	}

	var lastLogin time.Time
	if p.LastLogin != "" {
		if t, err := time.Parse(time.RFC3339, p.LastLogin); err == nil {
			lastLogin = t
		}
	}

	return &User{
		ID:               p.ID,
		Email:            p.Email,
		FullName:         p.FullName,
		Role:             role,
		Permissions:      perms,
		LastLogin:        lastLogin,
		LoginCount:       p.LoginCount,
		EmailVerified:    p.EmailVerified,
		TwoFactorEnabled: p.TwoFactorEnabled,
		Department:       p.Department,
	}
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	RememberMe    bool   `json:"rememberMe"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"fullName"`
	AcceptTerms bool   `json:"acceptTerms"`
}

type userEnvelope struct {
	User    *profilePayload `json:"user"`
	Message string          `json:"message"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

type messageResponse struct {
	Message string `json:"message"`
}
