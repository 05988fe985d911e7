package auth

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

var (
	ErrInvalidGoogleToken = errors.New("invalid google id token")
	ErrEmailNotVerified   = errors.New("google account email not verified")
)

// GoogleUserInfo holds the verified identity claims. ID is the stable
// Google subject, used directly as the user primary key.
type GoogleUserInfo struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// GoogleAuthenticator verifies Google OAuth ID tokens
type GoogleAuthenticator struct {
	clientID string
}

func NewGoogleAuthenticator(clientID string) *GoogleAuthenticator {
	return &GoogleAuthenticator{clientID: clientID}
}

// VerifyIDToken validates a Google ID token against the configured client id
// and extracts the claims the login flow needs.
func (g *GoogleAuthenticator) VerifyIDToken(ctx context.Context, idToken string) (*GoogleUserInfo, error) {
	payload, err := idtoken.Validate(ctx, idToken, g.clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGoogleToken, err)
	}

	if verified, _ := payload.Claims["email_verified"].(bool); !verified {
		return nil, ErrEmailNotVerified
	}

	info := &GoogleUserInfo{
		ID:      payload.Subject,
		Email:   stringClaim(payload.Claims, "email"),
		Name:    stringClaim(payload.Claims, "name"),
		Picture: stringClaim(payload.Claims, "picture"),
	}
	if info.Email == "" {
		return nil, ErrInvalidGoogleToken
	}
	return info, nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	val, _ := claims[key].(string)
	return val
}
