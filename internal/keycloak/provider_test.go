package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"calma_backend/internal/platform/metrics"
	"calma_backend/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testRealm         = "calma"
	testAdminUser     = "svc-admin"
	testAdminPassword = "svc-secret"
	testAdminToken    = "admin-token"
)

// fakeKeycloak serves the token and admin users endpoints of one realm.
type fakeKeycloak struct {
	mu sync.Mutex

	adminStatus  int
	createStatus int
	lookupStatus int
	users        []UserRepresentation

	userGrantStatus int
	userGrantBody   map[string]any
	refreshBody     map[string]any

	calls        map[string]int
	created      []UserRepresentation
	createAuth   string
	lookupQuery  string
	refreshParam string
}

func newFakeKeycloak() *fakeKeycloak {
	return &fakeKeycloak{
		adminStatus:     http.StatusOK,
		createStatus:    http.StatusCreated,
		lookupStatus:    http.StatusOK,
		userGrantStatus: http.StatusOK,
		calls:           map[string]int{},
	}
}

func (f *fakeKeycloak) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeKeycloak) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/realms/"+testRealm+"/protocol/openid-connect/token" && r.Method == http.MethodPost:
		f.serveToken(w, r)
	case r.URL.Path == "/admin/realms/"+testRealm+"/users" && r.Method == http.MethodPost:
		f.calls["create"]++
		f.createAuth = r.Header.Get("Authorization")
		var u UserRepresentation
		_ = json.NewDecoder(r.Body).Decode(&u)
		f.created = append(f.created, u)
		w.WriteHeader(f.createStatus)
		if f.createStatus != http.StatusCreated {
			_, _ = w.Write([]byte(`{"errorMessage":"User exists with same username"}`))
		}
	case r.URL.Path == "/admin/realms/"+testRealm+"/users" && r.Method == http.MethodGet:
		f.calls["lookup"]++
		f.lookupQuery = r.URL.RawQuery
		if f.lookupStatus != http.StatusOK {
			w.WriteHeader(f.lookupStatus)
			return
		}
		writeJSON(w, http.StatusOK, f.users)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeKeycloak) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch r.PostForm.Get("grant_type") {
	case "password":
		if r.PostForm.Get("username") == testAdminUser {
			f.calls["admin"]++
			if f.adminStatus != http.StatusOK || r.PostForm.Get("password") != testAdminPassword {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_grant"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": testAdminToken,
				"token_type":   "bearer",
				"expires_in":   300,
			})
			return
		}
		f.calls["user_grant"]++
		if f.userGrantStatus != http.StatusOK {
			writeJSON(w, f.userGrantStatus, map[string]string{"error": "invalid_grant", "error_description": "Invalid user credentials"})
			return
		}
		writeJSON(w, http.StatusOK, f.userGrantBody)
	case "refresh_token":
		f.calls["refresh"]++
		f.refreshParam = r.PostForm.Get("refresh_token")
		if f.refreshBody == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Token is not active"})
			return
		}
		writeJSON(w, http.StatusOK, f.refreshBody)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		Realm:         testRealm,
		ClientID:      "admin-cli",
		AdminUsername: testAdminUser,
		AdminPassword: testAdminPassword,
		HTTPTimeout:   5 * time.Second,
	}
}

// recordingRecorder captures metrics calls for assertions.
type recordingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
	states map[string]float64
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{counts: map[string]int{}, states: map[string]float64{}}
}

func (r *recordingRecorder) ObserveIdPCall(operation, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[operation+"/"+outcome]++
}

func (r *recordingRecorder) SetBreakerState(name string, state float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[name] = state
}

func (r *recordingRecorder) calls(operation, outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[operation+"/"+outcome]
}

func (r *recordingRecorder) breakerState(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[name]
}

func newTestProvider(t *testing.T, fake *fakeKeycloak, mutate func(*Config)) (*IdentityProvider, *recordingRecorder) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	if mutate != nil {
		mutate(&cfg)
	}
	recorder := newRecordingRecorder()
	client := NewClient(cfg, recorder, zap.NewNop())
	return NewIdentityProvider(client, zap.NewNop()), recorder
}

func testSignup() shared.SignupCredentials {
	return shared.SignupCredentials{
		FirstName:         "Ada",
		LastName:          "Lovelace",
		Email:             "a@x.io",
		Password:          "p",
		AssessmentAnswers: "ABCDA",
	}
}

func TestRegisterUser_Success(t *testing.T) {
	fake := newFakeKeycloak()
	fake.users = []UserRepresentation{{ID: "user-123", Email: "a@x.io"}}
	provider, _ := newTestProvider(t, fake, nil)

	userID, err := provider.RegisterUser(context.Background(), testSignup())

	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
	assert.Equal(t, 2, fake.count("admin"), "one admin token for create, a fresh one for lookup")
	assert.Equal(t, 1, fake.count("create"))
	assert.Equal(t, 1, fake.count("lookup"))
	assert.Equal(t, "Bearer "+testAdminToken, fake.createAuth)
	assert.Contains(t, fake.lookupQuery, "email=a%40x.io")

	require.Len(t, fake.created, 1)
	created := fake.created[0]
	assert.Equal(t, "a@x.io", created.Username)
	assert.Equal(t, "a@x.io", created.Email)
	assert.Equal(t, "Ada", created.FirstName)
	assert.Equal(t, "Lovelace", created.LastName)
	assert.True(t, created.Enabled)
	assert.True(t, created.EmailVerified)
	require.Len(t, created.Credentials, 1)
	assert.Equal(t, "password", created.Credentials[0].Type)
	assert.Equal(t, "p", created.Credentials[0].Value)
	assert.False(t, created.Credentials[0].Temporary)
}

func TestRegisterUser_AdminTokenFailureStopsBeforeCreate(t *testing.T) {
	fake := newFakeKeycloak()
	fake.adminStatus = http.StatusUnauthorized
	provider, _ := newTestProvider(t, fake, nil)

	userID, err := provider.RegisterUser(context.Background(), testSignup())

	require.Error(t, err)
	assert.Empty(t, userID)

	var regErr *shared.RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, shared.StageAdminToken, regErr.Stage)
	assert.False(t, regErr.Orphaned)

	var adminErr *shared.AdminTokenError
	require.ErrorAs(t, err, &adminErr)
	assert.Equal(t, http.StatusUnauthorized, adminErr.StatusCode)

	assert.Equal(t, 0, fake.count("create"))
	assert.Equal(t, 0, fake.count("lookup"))
}

func TestRegisterUser_CreateRejected(t *testing.T) {
	fake := newFakeKeycloak()
	fake.createStatus = http.StatusConflict
	provider, _ := newTestProvider(t, fake, nil)

	_, err := provider.RegisterUser(context.Background(), testSignup())

	var regErr *shared.RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, shared.StageCreate, regErr.Stage)
	assert.Equal(t, http.StatusConflict, regErr.StatusCode)
	assert.Contains(t, regErr.Body, "User exists")
	assert.False(t, regErr.Orphaned)
	assert.Equal(t, 0, fake.count("lookup"))
}

func TestRegisterUser_EmptyLookupIsOrphaned(t *testing.T) {
	fake := newFakeKeycloak()
	provider, _ := newTestProvider(t, fake, nil)

	userID, err := provider.RegisterUser(context.Background(), testSignup())

	assert.Empty(t, userID)
	var regErr *shared.RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, shared.StageLookup, regErr.Stage)
	assert.True(t, regErr.Orphaned)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.Equal(t, 1, fake.count("create"))
}

func TestRegisterUser_LookupFailureIsOrphaned(t *testing.T) {
	fake := newFakeKeycloak()
	fake.lookupStatus = http.StatusForbidden
	provider, _ := newTestProvider(t, fake, nil)

	_, err := provider.RegisterUser(context.Background(), testSignup())

	var regErr *shared.RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.True(t, regErr.Orphaned)
	assert.Equal(t, http.StatusForbidden, regErr.StatusCode)
}

func TestLookupUserID_PrefersExactEmailMatch(t *testing.T) {
	fake := newFakeKeycloak()
	fake.users = []UserRepresentation{
		{ID: "other", Email: "aa@x.io"},
		{ID: "user-123", Email: "A@X.io"},
	}
	provider, _ := newTestProvider(t, fake, nil)

	userID, err := provider.LookupUserID(context.Background(), "a@x.io")

	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestUserExists(t *testing.T) {
	tests := []struct {
		name  string
		users []UserRepresentation
		want  bool
	}{
		{name: "account found", users: []UserRepresentation{{ID: "user-123", Email: "a@x.io"}}, want: true},
		{name: "no account", users: nil, want: false},
		{name: "empty list", users: []UserRepresentation{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeKeycloak()
			fake.users = tt.users
			provider, _ := newTestProvider(t, fake, nil)

			exists, err := provider.UserExists(context.Background(), "a@x.io")

			require.NoError(t, err)
			assert.Equal(t, tt.want, exists)
		})
	}
}

func TestUserExists_AdminTokenFailure(t *testing.T) {
	fake := newFakeKeycloak()
	fake.adminStatus = http.StatusServiceUnavailable
	provider, _ := newTestProvider(t, fake, nil)

	exists, err := provider.UserExists(context.Background(), "a@x.io")

	assert.False(t, exists)
	var adminErr *shared.AdminTokenError
	require.ErrorAs(t, err, &adminErr)
	assert.Equal(t, 0, fake.count("lookup"))
}

func TestLogin_Success(t *testing.T) {
	fake := newFakeKeycloak()
	fake.userGrantBody = map[string]any{
		"access_token":  "access-token-123",
		"refresh_token": "refresh-token-456",
		"token_type":    "Bearer",
		"expires_in":    3600,
	}
	provider, recorder := newTestProvider(t, fake, nil)

	tok, err := provider.Login(context.Background(), shared.LoginCredentials{Email: "a@x.io", Password: "p"})

	require.NoError(t, err)
	assert.Equal(t, &shared.TokenResponse{
		AccessToken:  "access-token-123",
		RefreshToken: "refresh-token-456",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}, tok)
	assert.Equal(t, 0, fake.count("admin"), "login never needs the service account")
	assert.Equal(t, 1, recorder.calls(opPasswordGrant, metrics.OutcomeSuccess))
}

func TestLogin_NormalizesTokenType(t *testing.T) {
	fake := newFakeKeycloak()
	fake.userGrantBody = map[string]any{
		"access_token":  "a",
		"refresh_token": "r",
		"token_type":    "bearer",
		"expires_in":    60,
	}
	provider, _ := newTestProvider(t, fake, nil)

	tok, err := provider.Login(context.Background(), shared.LoginCredentials{Email: "a@x.io", Password: "p"})

	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	fake := newFakeKeycloak()
	fake.userGrantStatus = http.StatusUnauthorized
	provider, _ := newTestProvider(t, fake, nil)

	tok, err := provider.Login(context.Background(), shared.LoginCredentials{Email: "a@x.io", Password: "wrong"})

	assert.Nil(t, tok)
	var authErr *shared.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.True(t, authErr.InvalidCredentials())
	assert.NotContains(t, err.Error(), "wrong")
}

func TestLogin_IncompleteResponse(t *testing.T) {
	fake := newFakeKeycloak()
	fake.userGrantBody = map[string]any{
		"access_token": "access-token-123",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	provider, _ := newTestProvider(t, fake, nil)

	tok, err := provider.Login(context.Background(), shared.LoginCredentials{Email: "a@x.io", Password: "p"})

	assert.Nil(t, tok)
	assert.ErrorIs(t, err, shared.ErrIncompleteToken)
	var authErr *shared.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, authErr.InvalidCredentials())
}

func TestLogin_MissingAccessTokenIsIncomplete(t *testing.T) {
	fake := newFakeKeycloak()
	fake.userGrantBody = map[string]any{
		"refresh_token": "refresh-token-456",
		"token_type":    "Bearer",
		"expires_in":    3600,
	}
	provider, _ := newTestProvider(t, fake, nil)

	tok, err := provider.Login(context.Background(), shared.LoginCredentials{Email: "a@x.io", Password: "p"})

	assert.Nil(t, tok)
	assert.ErrorIs(t, err, shared.ErrIncompleteToken)
	var authErr *shared.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, authErr.StatusCode)
	assert.False(t, authErr.InvalidCredentials())
}

func TestLogin_MissingTokenTypeIsIncomplete(t *testing.T) {
	fake := newFakeKeycloak()
	fake.userGrantBody = map[string]any{
		"access_token":  "access-token-123",
		"refresh_token": "refresh-token-456",
		"expires_in":    3600,
	}
	provider, _ := newTestProvider(t, fake, nil)

	tok, err := provider.Login(context.Background(), shared.LoginCredentials{Email: "a@x.io", Password: "p"})

	assert.Nil(t, tok)
	assert.ErrorIs(t, err, shared.ErrIncompleteToken)
}

func TestRefreshToken_Success(t *testing.T) {
	fake := newFakeKeycloak()
	fake.refreshBody = map[string]any{
		"access_token":  "access-token-789",
		"refresh_token": "refresh-token-999",
		"token_type":    "Bearer",
		"expires_in":    3600,
	}
	provider, _ := newTestProvider(t, fake, nil)

	tok, err := provider.RefreshToken(context.Background(), "refresh-token-456")

	require.NoError(t, err)
	assert.Equal(t, "refresh-token-456", fake.refreshParam)
	assert.Equal(t, "access-token-789", tok.AccessToken)
	assert.NotEqual(t, "access-token-123", tok.AccessToken)
	assert.Equal(t, "refresh-token-999", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, 3600, tok.ExpiresIn)
}

func TestRefreshToken_Rejected(t *testing.T) {
	fake := newFakeKeycloak()
	provider, _ := newTestProvider(t, fake, nil)

	tok, err := provider.RefreshToken(context.Background(), "stale")

	assert.Nil(t, tok)
	var authErr *shared.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
	assert.True(t, authErr.InvalidCredentials())
}

func TestRefreshToken_MissingExpiry(t *testing.T) {
	fake := newFakeKeycloak()
	fake.refreshBody = map[string]any{
		"access_token":  "access-token-789",
		"refresh_token": "refresh-token-999",
		"token_type":    "Bearer",
	}
	provider, _ := newTestProvider(t, fake, nil)

	tok, err := provider.RefreshToken(context.Background(), "refresh-token-456")

	assert.Nil(t, tok)
	assert.ErrorIs(t, err, shared.ErrIncompleteToken)
}

func TestAdminTokenCache(t *testing.T) {
	fake := newFakeKeycloak()
	fake.users = []UserRepresentation{{ID: "user-123", Email: "a@x.io"}}
	provider, _ := newTestProvider(t, fake, func(cfg *Config) {
		cfg.CacheAdminToken = true
	})

	for i := 0; i < 3; i++ {
		exists, err := provider.UserExists(context.Background(), "a@x.io")
		require.NoError(t, err)
		assert.True(t, exists)
	}

	assert.Equal(t, 1, fake.count("admin"))
	assert.Equal(t, 3, fake.count("lookup"))
}

func TestCircuitBreaker_OpensOnUpstreamFailures(t *testing.T) {
	fake := newFakeKeycloak()
	fake.userGrantStatus = http.StatusServiceUnavailable
	provider, recorder := newTestProvider(t, fake, func(cfg *Config) {
		cfg.Breaker = BreakerConfig{
			Enabled:      true,
			Name:         "keycloak",
			Timeout:      time.Minute,
			MinRequests:  2,
			FailureRatio: 0.5,
		}
	})
	creds := shared.LoginCredentials{Email: "a@x.io", Password: "p"}

	for i := 0; i < 2; i++ {
		_, err := provider.Login(context.Background(), creds)
		var authErr *shared.AuthenticationError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusServiceUnavailable, authErr.StatusCode)
		assert.False(t, authErr.InvalidCredentials())
	}

	_, err := provider.Login(context.Background(), creds)
	var authErr *shared.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, authErr.StatusCode, "open breaker rejects without reaching the server")
	assert.Equal(t, 2, fake.count("user_grant"))
	assert.Equal(t, 2.0, recorder.breakerState("keycloak"))
	// Two upstream 503s plus the rejected third call.
	assert.Equal(t, 3, recorder.calls(opPasswordGrant, metrics.OutcomeError))
	assert.Zero(t, recorder.calls(opPasswordGrant, metrics.OutcomeRejected))
}

func TestCircuitBreaker_IgnoresClientErrors(t *testing.T) {
	fake := newFakeKeycloak()
	fake.userGrantStatus = http.StatusUnauthorized
	provider, _ := newTestProvider(t, fake, func(cfg *Config) {
		cfg.Breaker = BreakerConfig{
			Enabled:      true,
			Name:         "keycloak",
			Timeout:      time.Minute,
			MinRequests:  2,
			FailureRatio: 0.5,
		}
	})

	for i := 0; i < 4; i++ {
		_, err := provider.Login(context.Background(), shared.LoginCredentials{Email: "a@x.io", Password: "bad"})
		var authErr *shared.AuthenticationError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	}
	assert.Equal(t, 4, fake.count("user_grant"))
}

func TestTranslateGrantError_PassesThroughNil(t *testing.T) {
	assert.NoError(t, translateGrantError(opPasswordGrant, nil))
	assert.True(t, errors.Is(translateGrantError(opPasswordGrant, context.Canceled), context.Canceled))
}
