// File: internal/keycloak/client.go
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"calma_backend/internal/platform/metrics"
	"calma_backend/internal/shared"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Operation names used for metrics and logs.
const (
	opAdminToken    = "admin_token"
	opCreateUser    = "create_user"
	opFindUsers     = "find_users"
	opPasswordGrant = "password_grant"
	opRefreshGrant  = "refresh_grant"
)

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 4 << 10

// StatusError is returned when Keycloak answers with a status the operation
// does not accept.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("keycloak %s: unexpected status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// UserRepresentation is the subset of Keycloak's user resource the
// application reads and writes.
type UserRepresentation struct {
	ID            string                     `json:"id,omitempty"`
	Username      string                     `json:"username,omitempty"`
	FirstName     string                     `json:"firstName,omitempty"`
	LastName      string                     `json:"lastName,omitempty"`
	Email         string                     `json:"email,omitempty"`
	EmailVerified bool                       `json:"emailVerified"`
	Enabled       bool                       `json:"enabled"`
	Credentials   []CredentialRepresentation `json:"credentials,omitempty"`
}

// CredentialRepresentation is a password credential attached at creation.
type CredentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// Client talks to one Keycloak realm. Token grants go through
// golang.org/x/oauth2, admin REST calls through the same *http.Client, so the
// breaker and timeout apply to both.
type Client struct {
	cfg        Config
	httpClient *http.Client
	oauth      *oauth2.Config
	tokens     *adminTokenCache
	recorder   metrics.IdPRecorder
	logger     *zap.Logger
}

// NewClient builds a client from cfg. recorder may be metrics.Nop{}.
func NewClient(cfg Config, recorder metrics.IdPRecorder, logger *zap.Logger) *Client {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	logger = logger.Named("KeycloakClient")

	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Breaker.Enabled {
		transport = newBreakerTransport(transport, cfg.Breaker, recorder, logger)
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.HTTPTimeout,
			Transport: transport,
		},
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenEndpoint(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		recorder: recorder,
		logger:   logger,
	}
	if cfg.CacheAdminToken {
		c.tokens = newAdminTokenCache()
	}
	return c
}

// AdminToken returns a bearer token for the service account. Failures are
// always *shared.AdminTokenError.
func (c *Client) AdminToken(ctx context.Context) (string, error) {
	if c.tokens != nil {
		if token, ok := c.tokens.get(c.cfg.AdminUsername); ok {
			return token, nil
		}
	}

	start := time.Now()
	tok, err := c.passwordGrant(ctx, c.cfg.AdminUsername, c.cfg.AdminPassword)
	if err != nil {
		c.observe(opAdminToken, start, err)
		c.logger.Error("Failed to obtain admin token", zap.Error(err))
		adminErr := &shared.AdminTokenError{Err: err}
		var se *StatusError
		if errors.As(err, &se) {
			adminErr.StatusCode = se.StatusCode
			adminErr.Body = se.Body
		}
		return "", adminErr
	}
	c.observe(opAdminToken, start, nil)

	if c.tokens != nil {
		c.tokens.put(c.cfg.AdminUsername, tok.AccessToken, tok.Expiry)
	}
	return tok.AccessToken, nil
}

// InvalidateAdminToken drops any cached service account token.
func (c *Client) InvalidateAdminToken() {
	if c.tokens != nil {
		c.tokens.invalidate(c.cfg.AdminUsername)
	}
}

// CreateUser posts a new user. Keycloak answers 201 with an empty body; any
// other status is a *StatusError.
func (c *Client) CreateUser(ctx context.Context, adminToken string, user UserRepresentation) error {
	start := time.Now()
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user representation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UsersEndpoint(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build create user request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(opCreateUser, start, err)
		return fmt.Errorf("keycloak %s: %w", opCreateUser, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		err := newStatusError(opCreateUser, resp)
		c.observe(opCreateUser, start, err)
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	c.observe(opCreateUser, start, nil)
	return nil
}

// FindUsersByEmail searches the realm by exact email. An empty slice means no
// match; any status other than 200 is a *StatusError.
func (c *Client) FindUsersByEmail(ctx context.Context, adminToken, email string) ([]UserRepresentation, error) {
	start := time.Now()
	query := url.Values{}
	query.Set("email", email)
	query.Set("exact", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UsersEndpoint()+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build find users request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(opFindUsers, start, err)
		return nil, fmt.Errorf("keycloak %s: %w", opFindUsers, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := newStatusError(opFindUsers, resp)
		c.observe(opFindUsers, start, err)
		return nil, err
	}

	var users []UserRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		c.observe(opFindUsers, start, err)
		return nil, fmt.Errorf("decode users response: %w", err)
	}
	c.observe(opFindUsers, start, nil)
	return users, nil
}

// PasswordGrant exchanges end-user credentials at the token endpoint.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (*oauth2.Token, error) {
	start := time.Now()
	tok, err := c.passwordGrant(ctx, username, password)
	c.observe(opPasswordGrant, start, err)
	return tok, err
}

// RefreshGrant exchanges a refresh token at the token endpoint.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	start := time.Now()
	src := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	err = translateGrantError(opRefreshGrant, err)
	c.observe(opRefreshGrant, start, err)
	return tok, err
}

func (c *Client) passwordGrant(ctx context.Context, username, password string) (*oauth2.Token, error) {
	tok, err := c.oauth.PasswordCredentialsToken(c.withHTTPClient(ctx), username, password)
	return tok, translateGrantError(opPasswordGrant, err)
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) observe(operation string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError {
			outcome = metrics.OutcomeRejected
		}
	}
	c.recorder.ObserveIdPCall(operation, outcome, time.Since(start))
}

// translateGrantError turns oauth2's RetrieveError into a *StatusError so
// callers only deal with one error shape for IdP rejections.
func translateGrantError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &StatusError{
			Operation:  operation,
			StatusCode: re.Response.StatusCode,
			Body:       truncate(string(re.Body)),
		}
	}
	// oauth2 reports a 2xx grant without access_token as a plain error.
	if strings.Contains(err.Error(), "missing access_token") {
		return fmt.Errorf("keycloak %s: %w: %v", operation, shared.ErrIncompleteToken, err)
	}
	return fmt.Errorf("keycloak %s: %w", operation, err)
}

func newStatusError(operation string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

// expiresIn reads the grant lifetime in seconds. The raw expires_in field is
// preferred; the computed expiry is the fallback.
func expiresIn(tok *oauth2.Token) int {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return int(time.Until(tok.Expiry).Round(time.Second).Seconds())
}
