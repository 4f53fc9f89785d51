package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scamwatch/portal/internal/authstub/domain"
	"github.com/scamwatch/portal/internal/authstub/service"
	"github.com/scamwatch/portal/pkg/httpx"
)

// PasswordHandler serves the reset and change-password endpoints.
type PasswordHandler struct {
	PasswordService *service.PasswordService
	ActivityService *service.ActivityService
}

// HandleRequestReset starts a reset flow. The response is identical whether
// or not the account exists.
func (h *PasswordHandler) HandleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "Email is required")
		return
	}

	h.PasswordService.RequestReset(r.Context(), req.Email)

	httpx.WriteMessage(w, http.StatusOK,
		"If an account exists for that email, a reset link has been sent")
}

// HandleConfirmReset applies a one-time reset token.
func (h *PasswordHandler) HandleConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "Reset token is required")
		return
	}
	if len(req.NewPassword) < 8 {
		httpx.WriteMessage(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	if err := h.PasswordService.ConfirmReset(r.Context(), req.Token, req.NewPassword); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}

	httpx.WriteMessage(w, http.StatusOK, "Password has been reset")
}

// HandleChange changes the password of the authenticated session.
func (h *PasswordHandler) HandleChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.NewPassword) < 8 {
		httpx.WriteMessage(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	err := h.PasswordService.Change(ctx, userID, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, service.ErrWrongPassword):
		httpx.WriteMessage(w, http.StatusBadRequest, "Current password is incorrect")
		return
	case errors.Is(err, domain.ErrUserNotFound):
		httpx.WriteMessage(w, http.StatusUnauthorized, "Account no longer exists")
		return
	case err != nil:
		httpx.WriteMessage(w, http.StatusInternalServerError, "Internal error")
		return
	}

	h.ActivityService.Track(ctx, userID, "password_change")
	httpx.WriteMessage(w, http.StatusOK, "Password updated")
}
