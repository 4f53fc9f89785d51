package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/scamwatch/portal/internal/authstub/store"
	"github.com/scamwatch/portal/pkg/cryptox"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenService mints and verifies the session tokens the stub hands out as
// HTTP-only cookies. Access tokens are HS256 JWTs; refresh tokens are opaque
// random values stored by fingerprint and rotated on every use.
type TokenService struct {
	Store      *store.Store
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// MintAccess creates a signed access token for the user.
func (s *TokenService) MintAccess(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.AccessTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates an access token and returns the subject user ID.
func (s *TokenService) VerifyAccess(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return s.Secret, nil
		},
		jwt.WithIssuer(s.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// IssueRefresh creates an opaque refresh token for the user and stores its
// fingerprint.
func (s *TokenService) IssueRefresh(ctx context.Context, userID string, rememberMe bool) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	s.Store.PutRefreshToken(ctx, cryptox.FingerprintToken(token), userID,
		time.Now().Add(s.RefreshTTL), rememberMe)
	return token, nil
}

// RotateRefresh consumes a refresh token and, when valid, issues a fresh
// access/refresh pair. The old token is invalid afterwards even if rotation
// fails partway.
func (s *TokenService) RotateRefresh(ctx context.Context, refreshToken string) (userID, access, refresh string, rememberMe bool, err error) {
	userID, rememberMe, takeErr := s.Store.TakeRefreshToken(ctx, cryptox.FingerprintToken(refreshToken))
	if takeErr != nil {
		return "", "", "", false, ErrInvalidToken
	}

	access, err = s.MintAccess(userID)
	if err != nil {
		return "", "", "", false, err
	}
	refresh, err = s.IssueRefresh(ctx, userID, rememberMe)
	if err != nil {
		return "", "", "", false, err
	}
	return userID, access, refresh, rememberMe, nil
}

// RevokeAllRefresh drops every refresh token for the user, used at logout.
func (s *TokenService) RevokeAllRefresh(ctx context.Context, userID string) {
	s.Store.DeleteRefreshTokensForUser(ctx, userID)
}
