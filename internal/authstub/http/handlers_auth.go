package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/scamwatch/portal/internal/authstub/domain"
	"github.com/scamwatch/portal/internal/authstub/service"
	"github.com/scamwatch/portal/pkg/httpx"
	"github.com/scamwatch/portal/pkg/slogx"
)

// AuthHandler serves the credential and session endpoints.
type AuthHandler struct {
	AuthService     *service.AuthService
	TokenService    *service.TokenService
	ActivityService *service.ActivityService
}

// userPayload is the snake_case user record the portal client expects.
type userPayload struct {
	ID               string   `json:"id"`
	Email            string   `json:"email"`
	FullName         string   `json:"full_name,omitempty"`
	Role             string   `json:"role"`
	Permissions      []string `json:"permissions"`
	LastLogin        string   `json:"last_login,omitempty"`
	LoginCount       int      `json:"login_count"`
	EmailVerified    bool     `json:"email_verified"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
	Department       string   `json:"department,omitempty"`
}

func toUserPayload(u domain.User) userPayload {
	p := userPayload{
		ID:               u.ID,
		Email:            u.Email,
		FullName:         u.FullName,
		Role:             u.Role,
		Permissions:      u.Permissions,
		LoginCount:       u.LoginCount,
		EmailVerified:    u.EmailVerified,
		TwoFactorEnabled: u.TwoFactorEnabled(),
		Department:       u.Department,
	}
	if !u.LastLogin.IsZero() {
		p.LastLogin = u.LastLogin.Format(time.RFC3339)
	}
	return p
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	RememberMe    bool   `json:"rememberMe"`
	TwoFactorCode string `json:"twoFactorCode"`
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"fullName"`
	AcceptTerms bool   `json:"acceptTerms"`
}

// HandleLogin authenticates and sets the session cookie pair.
//
// Failure shapes match what the portal client parses: a lockout carries
// lockoutTime in milliseconds, a two-factor challenge carries
// requiresTwoFactor, everything else is a plain message.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.AuthService.Authenticate(ctx, req.Email, req.Password, req.TwoFactorCode)
	if err != nil {
		h.writeLoginFailure(w, log, err)
		return
	}

	access, err := h.TokenService.MintAccess(user.ID)
	if err != nil {
		log.Error("failed to mint access token", "error", err)
		httpx.WriteMessage(w, http.StatusInternalServerError, "Internal error")
		return
	}
	refresh, err := h.TokenService.IssueRefresh(ctx, user.ID, req.RememberMe)
	if err != nil {
		log.Error("failed to issue refresh token", "error", err)
		httpx.WriteMessage(w, http.StatusInternalServerError, "Internal error")
		return
	}

	setSessionCookies(w, access, refresh,
		h.TokenService.AccessTTL, h.TokenService.RefreshTTL, req.RememberMe)

	h.ActivityService.Track(ctx, user.ID, "login")
	log.Info("login succeeded", "user_id", user.ID)

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"user": toUserPayload(user)})
}

func (h *AuthHandler) writeLoginFailure(w http.ResponseWriter, log *slog.Logger, err error) {
	var lockout *domain.LockoutError
	switch {
	case errors.As(err, &lockout):
		log.Info("login rejected: account locked")
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"lockoutTime": time.Until(lockout.Until).Milliseconds(),
			"message":     "Too many failed attempts. Please try again later.",
		})
	case errors.Is(err, domain.ErrTwoFactorRequired):
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]any{
			"requiresTwoFactor": true,
			"message":           "Two-factor authentication code required",
		})
	case errors.Is(err, domain.ErrInvalidTwoFactorCode):
		httpx.WriteMessage(w, http.StatusUnauthorized, "Invalid two-factor code")
	default:
		// Covers unknown accounts and wrong passwords alike
		httpx.WriteMessage(w, http.StatusUnauthorized, "Invalid email or password")
	}
}

// HandleSignup registers a new account. It does not log the user in; the
// portal client follows up with a login call.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	switch {
	case req.Email == "" || req.Password == "":
		httpx.WriteMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	case !req.AcceptTerms:
		httpx.WriteMessage(w, http.StatusBadRequest, "You must accept the terms of service")
		return
	case len(req.Password) < 8:
		httpx.WriteMessage(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	user, err := h.AuthService.Signup(ctx, req.Email, req.Password, req.FullName)
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			httpx.WriteMessage(w, http.StatusConflict, "An account with this email already exists")
			return
		}
		slogx.FromContext(ctx).Error("signup failed", "error", err)
		httpx.WriteMessage(w, http.StatusInternalServerError, "Internal error")
		return
	}

	h.ActivityService.Track(ctx, user.ID, "signup")

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"user":    toUserPayload(user),
		"message": "Account created",
	})
}

// HandleLogout revokes the session's refresh tokens and clears both cookies.
// Always succeeds so a client holding stale cookies still ends up logged out.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if cookie, err := r.Cookie(accessCookieName); err == nil {
		if userID, err := h.TokenService.VerifyAccess(cookie.Value); err == nil {
			h.TokenService.RevokeAllRefresh(ctx, userID)
			h.ActivityService.Track(ctx, userID, "logout")
		}
	}

	clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleRefresh rotates the cookie pair. The refresh token is single-use, so
// a replayed token gets a 401 and the client ends its session.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		httpx.WriteMessage(w, http.StatusUnauthorized, "No session to refresh")
		return
	}

	_, access, refresh, rememberMe, err := h.TokenService.RotateRefresh(ctx, cookie.Value)
	if err != nil {
		clearSessionCookies(w)
		httpx.WriteMessage(w, http.StatusUnauthorized, "Session expired")
		return
	}

	setSessionCookies(w, access, refresh,
		h.TokenService.AccessTTL, h.TokenService.RefreshTTL, rememberMe)
	w.WriteHeader(http.StatusNoContent)
}

// HandleValidate reports whether the access cookie still verifies. It always
// answers 200; validity travels in the body.
func (h *AuthHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	valid := false
	if cookie, err := r.Cookie(accessCookieName); err == nil {
		_, verifyErr := h.TokenService.VerifyAccess(cookie.Value)
		valid = verifyErr == nil
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// HandleProfile returns the current user record. requireSession has already
// verified the cookie and put the user ID in context.
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)

	user, err := h.AuthService.Store.GetUserByID(ctx, userID)
	if err != nil {
		httpx.WriteMessage(w, http.StatusUnauthorized, "Account no longer exists")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toUserPayload(user))
}

// HandleActivity appends an audit event for the authenticated user.
func (h *AuthHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "Action is required")
		return
	}

	h.ActivityService.Track(ctx, httpx.UserIDFromCtx(ctx), req.Action)
	w.WriteHeader(http.StatusNoContent)
}
