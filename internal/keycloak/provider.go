// File: internal/keycloak/provider.go
package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"calma_backend/internal/shared"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	grantPassword = "password"
	grantRefresh  = "refresh_token"
)

var _ shared.IdentityProvider = (*IdentityProvider)(nil)

// IdentityProvider implements shared.IdentityProvider against Keycloak.
type IdentityProvider struct {
	client *Client
	logger *zap.Logger
}

// NewIdentityProvider wraps a Keycloak client.
func NewIdentityProvider(client *Client, logger *zap.Logger) *IdentityProvider {
	return &IdentityProvider{
		client: client,
		logger: logger.Named("KeycloakIdentityProvider"),
	}
}

// RegisterUser creates the account and resolves its ID by a follow-up email
// lookup, since Keycloak does not return the ID in the create response.
// If creation succeeds but the lookup fails, the returned error is orphaned:
// the account exists and must be reconciled later.
func (p *IdentityProvider) RegisterUser(ctx context.Context, signup shared.SignupCredentials) (string, error) {
	adminToken, err := p.client.AdminToken(ctx)
	if err != nil {
		return "", registrationError(shared.StageAdminToken, signup.Email, err)
	}

	if err := p.client.CreateUser(ctx, adminToken, newUserRepresentation(signup)); err != nil {
		p.logger.Warn("User creation rejected", zap.String("email", signup.Email), zap.Error(err))
		return "", registrationError(shared.StageCreate, signup.Email, err)
	}

	userID, err := p.LookupUserID(ctx, signup.Email)
	if err != nil {
		p.logger.Error("User created but id could not be resolved",
			zap.String("email", signup.Email),
			zap.Error(err),
		)
		regErr := registrationError(shared.StageLookup, signup.Email, fmt.Errorf("user not found after creation: %w", err))
		regErr.Orphaned = true
		return "", regErr
	}

	p.logger.Info("User registered", zap.String("user_id", userID))
	return userID, nil
}

// LookupUserID resolves an account ID by email using a fresh admin token.
// It returns shared.ErrUserNotFound when the search is empty.
func (p *IdentityProvider) LookupUserID(ctx context.Context, email string) (string, error) {
	users, err := p.findByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", shared.ErrUserNotFound
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) && u.ID != "" {
			return u.ID, nil
		}
	}
	if users[0].ID == "" {
		return "", fmt.Errorf("lookup returned a user without id: %w", shared.ErrUserNotFound)
	}
	return users[0].ID, nil
}

// UserExists reports true iff the email lookup yields at least one account.
func (p *IdentityProvider) UserExists(ctx context.Context, email string) (bool, error) {
	users, err := p.findByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return len(users) > 0, nil
}

// Login performs the resource-owner password grant for an end user.
func (p *IdentityProvider) Login(ctx context.Context, creds shared.LoginCredentials) (*shared.TokenResponse, error) {
	tok, err := p.client.PasswordGrant(ctx, creds.Email, creds.Password)
	if err != nil {
		p.logger.Info("Password grant failed", zap.String("email", creds.Email), zap.Error(err))
		return nil, authenticationError(grantPassword, err)
	}
	return p.tokenResponse(grantPassword, tok)
}

// RefreshToken exchanges a refresh token for a new grant.
func (p *IdentityProvider) RefreshToken(ctx context.Context, refreshToken string) (*shared.TokenResponse, error) {
	tok, err := p.client.RefreshGrant(ctx, refreshToken)
	if err != nil {
		p.logger.Info("Refresh grant failed", zap.Error(err))
		return nil, authenticationError(grantRefresh, err)
	}
	return p.tokenResponse(grantRefresh, tok)
}

func (p *IdentityProvider) findByEmail(ctx context.Context, email string) ([]UserRepresentation, error) {
	adminToken, err := p.client.AdminToken(ctx)
	if err != nil {
		return nil, err
	}
	users, err := p.client.FindUsersByEmail(ctx, adminToken, email)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			p.client.InvalidateAdminToken()
		}
		return nil, err
	}
	return users, nil
}

func (p *IdentityProvider) tokenResponse(grant string, tok *oauth2.Token) (*shared.TokenResponse, error) {
	resp := &shared.TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok),
	}
	// Type() defaults an empty token_type to Bearer, so check the raw field.
	if tok.TokenType != "" {
		resp.TokenType = tok.Type()
	}
	if !resp.Complete() {
		p.logger.Warn("Token response missing fields", zap.String("grant", grant))
		return nil, &shared.AuthenticationError{Grant: grant, Err: shared.ErrIncompleteToken}
	}
	return resp, nil
}

func newUserRepresentation(signup shared.SignupCredentials) UserRepresentation {
	return UserRepresentation{
		Username:      signup.Email,
		FirstName:     signup.FirstName,
		LastName:      signup.LastName,
		Email:         signup.Email,
		EmailVerified: true,
		Enabled:       true,
		Credentials: []CredentialRepresentation{{
			Type:      "password",
			Value:     signup.Password,
			Temporary: false,
		}},
	}
}

func registrationError(stage shared.RegistrationStage, email string, err error) *shared.RegistrationError {
	regErr := &shared.RegistrationError{Stage: stage, Email: email, Err: err}
	var se *StatusError
	if errors.As(err, &se) {
		regErr.StatusCode = se.StatusCode
		regErr.Body = se.Body
	}
	return regErr
}

func authenticationError(grant string, err error) *shared.AuthenticationError {
	authErr := &shared.AuthenticationError{Grant: grant, Err: err}
	var se *StatusError
	if errors.As(err, &se) {
		authErr.StatusCode = se.StatusCode
		authErr.Body = se.Body
	}
	return authErr
}
