package session

import "context"

// RequestPasswordReset asks the service to start a reset flow for email.
// The service responds identically whether or not the account exists.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	body := map[string]string{"email": normalizeEmail(email)}

	var out messageResponse
	if err := c.postJSON(ctx, "/auth/reset-password", body, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ConfirmPasswordReset applies a reset token obtained out of band.
func (c *Client) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (string, error) {
	body := map[string]string{"token": token, "newPassword": newPassword}

	var out messageResponse
	if err := c.postJSON(ctx, "/auth/reset-password/confirm", body, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ChangePassword changes the password of the authenticated session.
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) (string, error) {
	body := map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	}

	var out messageResponse
	if err := c.postJSON(ctx, "/auth/change-password", body, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}
