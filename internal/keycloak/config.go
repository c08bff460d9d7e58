package keycloak

import (
	"fmt"
	"strings"
	"time"

	"calma_backend/internal/config"
)

// Config carries everything the client needs to reach Keycloak. The service
// account credentials are passed in explicitly so tests can point the client
// at a fake server.
type Config struct {
	BaseURL       string
	Realm         string
	ClientID      string
	ClientSecret  string
	AdminUsername string
	AdminPassword string

	HTTPTimeout     time.Duration
	CacheAdminToken bool
	Breaker         BreakerConfig
}

// BreakerConfig controls the circuit breaker around outbound calls.
type BreakerConfig struct {
	Enabled      bool
	Name         string
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// NewConfig builds the client configuration from the application config.
func NewConfig(cfg *config.Config) Config {
	return Config{
		BaseURL:         cfg.KeycloakBaseURL,
		Realm:           cfg.KeycloakRealm,
		ClientID:        cfg.KeycloakClientID,
		ClientSecret:    cfg.KeycloakClientSecret,
		AdminUsername:   cfg.KeycloakAdminUsername,
		AdminPassword:   cfg.KeycloakAdminPassword,
		HTTPTimeout:     cfg.KeycloakHTTPTimeout,
		CacheAdminToken: cfg.KeycloakAdminTokenCache,
		Breaker: BreakerConfig{
			Enabled:      cfg.KeycloakBreakerEnabled,
			Name:         "keycloak",
			Timeout:      cfg.KeycloakBreakerTimeout,
			MinRequests:  cfg.KeycloakBreakerMinRequests,
			FailureRatio: cfg.KeycloakBreakerFailureRatio,
		},
	}
}

// TokenEndpoint is the realm's OpenID Connect token endpoint.
func (c Config) TokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", strings.TrimRight(c.BaseURL, "/"), c.Realm)
}

// UsersEndpoint is the realm's admin users collection.
func (c Config) UsersEndpoint() string {
	return fmt.Sprintf("%s/admin/realms/%s/users", strings.TrimRight(c.BaseURL, "/"), c.Realm)
}
