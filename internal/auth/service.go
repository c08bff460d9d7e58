// File: internal/auth/service.go
package auth

import (
	"context"

	"calma_backend/internal/shared"

	"go.uber.org/zap"
)

// Service coordinates authentication use cases. Every call is delegated to
// the identity provider unchanged.
type Service interface {
	Register(ctx context.Context, signup shared.SignupCredentials) (string, error)
	Login(ctx context.Context, creds shared.LoginCredentials) (*shared.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*shared.TokenResponse, error)
	UserExists(ctx context.Context, email string) (bool, error)
}

type service struct {
	idp    shared.IdentityProvider
	logger *zap.Logger
}

// NewService creates a new auth service.
func NewService(idp shared.IdentityProvider, logger *zap.Logger) Service {
	return &service{
		idp:    idp,
		logger: logger.Named("AuthService"),
	}
}

func (s *service) Register(ctx context.Context, signup shared.SignupCredentials) (string, error) {
	s.logger.Debug("Registering user", zap.String("email", signup.Email))
	return s.idp.RegisterUser(ctx, signup)
}

func (s *service) Login(ctx context.Context, creds shared.LoginCredentials) (*shared.TokenResponse, error) {
	s.logger.Debug("Logging in user", zap.String("email", creds.Email))
	return s.idp.Login(ctx, creds)
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (*shared.TokenResponse, error) {
	return s.idp.RefreshToken(ctx, refreshToken)
}

func (s *service) UserExists(ctx context.Context, email string) (bool, error) {
	return s.idp.UserExists(ctx, email)
}
