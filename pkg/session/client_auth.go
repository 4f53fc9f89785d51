package session

import (
	"context"
	"net/http"
)

// Login authenticates with email and password. The email is normalized before
// the request leaves the client. On success the service sets the session
// cookie pair and returns the user record; distinguished failures surface as
// *TwoFactorRequiredError or *LockoutError.
//
// twoFactorCode is only needed when a previous attempt returned
// *TwoFactorRequiredError; pass the empty string otherwise.
func (c *Client) Login(
	ctx context.Context,
	email, password string,
	rememberMe bool,
	twoFactorCode string,
) (*User, error) {
	req := loginRequest{
		Email:         normalizeEmail(email),
		Password:      password,
		RememberMe:    rememberMe,
		TwoFactorCode: twoFactorCode,
	}

	var out userEnvelope
	if err := c.postJSON(ctx, "/auth/login", req, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "login response missing user"}
	}
	return out.User.toUser(), nil
}

// Signup registers a new account. The service does not authenticate the
// session; the returned user comes from the signup response only.
func (c *Client) Signup(
	ctx context.Context,
	email, password, fullName string,
	acceptTerms bool,
) (*User, error) {
	req := signupRequest{
		Email:       normalizeEmail(email),
		Password:    password,
		FullName:    fullName,
		AcceptTerms: acceptTerms,
	}

	var out userEnvelope
	if err := c.postJSON(ctx, "/auth/signup", req, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "signup response missing user"}
	}
	return out.User.toUser(), nil
}

// Logout asks the service to invalidate the current session cookies.
func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, "/auth/logout", nil, nil)
}

// Refresh rotates the session cookie pair. The response body carries nothing
// the client needs; the new tokens arrive as cookies.
func (c *Client) Refresh(ctx context.Context) error {
	return c.postJSON(ctx, "/auth/refresh", nil, nil)
}

// Validate performs the lightweight session check. A false return with a nil
// error means the service explicitly rejected the session.
func (c *Client) Validate(ctx context.Context) (bool, error) {
	var out validateResponse
	if err := c.postJSON(ctx, "/auth/validate", nil, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// Profile fetches the current user record for the cookie session.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var payload profilePayload
	if err := c.getJSON(ctx, "/auth/profile", &payload); err != nil {
		return nil, err
	}
	return payload.toUser(), nil
}

// TrackActivity appends an audit trail event. Callers treat this as
// best-effort; the Manager never lets a failure here affect the operation
// that triggered it.
func (c *Client) TrackActivity(ctx context.Context, action string) error {
	body := map[string]string{"action": action}
	return c.postJSON(ctx, "/auth/activity", body, nil)
}
