package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound means an email lookup returned no accounts.
	ErrUserNotFound = errors.New("user not found")
	// ErrIncompleteToken means the IdP answered a grant without all token fields.
	ErrIncompleteToken = errors.New("incomplete token response")
)

// RegistrationStage names the step of the registration sequence that failed.
type RegistrationStage string

const (
	StageAdminToken RegistrationStage = "admin_token"
	StageCreate     RegistrationStage = "create"
	StageLookup     RegistrationStage = "lookup"
)

// RegistrationError is returned when the IdP rejects a signup or the created
// account cannot be located afterwards.
//
// Orphaned is set when creation succeeded but the ID could not be resolved:
// the account exists in the IdP and nothing was returned to the caller.
type RegistrationError struct {
	Stage      RegistrationStage
	Email      string
	StatusCode int
	Body       string
	Orphaned   bool
	Err        error
}

func (e *RegistrationError) Error() string {
	msg := fmt.Sprintf("registration failed at %s", e.Stage)
	if e.Orphaned {
		msg += " (account created, id unresolved)"
	}
	return withCause(msg, e.StatusCode, e.Body, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// AuthenticationError is returned by login and refresh. It carries the IdP's
// status and body for diagnostics and never the submitted secrets.
type AuthenticationError struct {
	Grant      string
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("%s grant failed", e.Grant)
	return withCause(msg, e.StatusCode, e.Body, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// InvalidCredentials reports whether the IdP rejected the grant itself, as
// opposed to being unreachable or failing internally.
func (e *AuthenticationError) InvalidCredentials() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// AdminTokenError means the service account token could not be obtained.
// It is fatal to the enclosing privileged operation.
type AdminTokenError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AdminTokenError) Error() string {
	msg := "admin token request failed"
	return withCause(msg, e.StatusCode, e.Body, e.Err)
}

func (e *AdminTokenError) Unwrap() error { return e.Err }

// withCause appends the wrapped error, or the raw IdP status when there is none.
func withCause(msg string, status int, body string, err error) string {
	switch {
	case err != nil:
		return msg + ": " + err.Error()
	case status != 0:
		return fmt.Sprintf("%s: status %d: %s", msg, status, body)
	default:
		return msg
	}
}
