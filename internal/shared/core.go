package shared

import (
	"context"
)

// SignupCredentials is what a new account is created from. It is consumed
// once: to build the IdP user and to record the assessment.
type SignupCredentials struct {
	FirstName         string
	LastName          string
	Email             string
	Password          string
	AssessmentAnswers string
}

// LoginCredentials is an end-user email/password pair.
type LoginCredentials struct {
	Email    string
	Password string
}

// TokenResponse is a complete token grant. Either all four fields are set or
// the operation that produced it failed.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Complete reports whether every field of the grant is populated.
func (t *TokenResponse) Complete() bool {
	return t != nil &&
		t.AccessToken != "" &&
		t.RefreshToken != "" &&
		t.TokenType != "" &&
		t.ExpiresIn > 0
}

// IdentityProvider is the set of operations the application needs from an
// identity backend. Implementations do not retry.
type IdentityProvider interface {
	// RegisterUser creates the account and returns its opaque user ID.
	RegisterUser(ctx context.Context, signup SignupCredentials) (string, error)
	// UserExists reports whether a lookup by email yields at least one account.
	UserExists(ctx context.Context, email string) (bool, error)
	// Login exchanges end-user credentials for a token grant.
	Login(ctx context.Context, creds LoginCredentials) (*TokenResponse, error)
	// RefreshToken exchanges a refresh token for a new grant.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}
