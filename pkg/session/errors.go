package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// genericFailureMessage is surfaced when the transport fails or the service
// returns something unintelligible. Raw errors never reach UI code.
const genericFailureMessage = "Something went wrong. Please try again."

// ============================================================================
// Typed Errors
// ============================================================================

// APIError is a non-2xx response from the auth service carrying the service's
// user-facing message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth service returned %d: %s", e.StatusCode, e.Message)
}

// TwoFactorRequiredError signals that the credentials were accepted but a
// second factor is required to complete the login.
type TwoFactorRequiredError struct{}

func (e *TwoFactorRequiredError) Error() string {
	return "two-factor authentication required"
}

// LockoutError signals that the account is temporarily locked after repeated
// failed attempts. RetryAfter is how long the caller should wait.
type LockoutError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked for %s: %s", e.RetryAfter, e.Message)
}

// ============================================================================
// Error Parsing
// ============================================================================

// errorPayload is the superset of fields error responses may carry. The
// service reports the lockout window in milliseconds.
type errorPayload struct {
	Message           string `json:"message"`
	Error             string `json:"error"`
	RequiresTwoFactor bool   `json:"requiresTwoFactor"`
	LockoutTime       int64  `json:"lockoutTime"`
}

// parseErrorResponse turns a non-2xx response body into a typed error. The
// two-factor and lockout variants are detected by their marker fields
// regardless of the exact status code the service chose.
func parseErrorResponse(status int, body []byte) error {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		msg := payload.Message
		if msg == "" {
			msg = payload.Error
		}

		if payload.RequiresTwoFactor {
			return &TwoFactorRequiredError{}
		}
		if payload.LockoutTime > 0 {
			return &LockoutError{
				RetryAfter: time.Duration(payload.LockoutTime) * time.Millisecond,
				Message:    msg,
			}
		}
		if msg != "" {
			return &APIError{StatusCode: status, Message: msg}
		}
	}

	return &APIError{
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
	}
}
