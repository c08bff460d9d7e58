// File: internal/auth/model.go
package auth

import (
	"strings"

	"calma_backend/internal/shared"
)

// SignupRequest defines the structure for signup requests.
type SignupRequest struct {
	FirstName         string `json:"first_name" binding:"required,notblank,max=100"`
	LastName          string `json:"last_name" binding:"required,notblank,max=100"`
	Email             string `json:"email" binding:"required,email,max=255"`
	Password          string `json:"password" binding:"required,notblank"`
	AssessmentAnswers string `json:"assessment_answers" binding:"required,len=5,assessment"`
}

func (r SignupRequest) toCredentials() shared.SignupCredentials {
	return shared.SignupCredentials{
		FirstName:         strings.TrimSpace(r.FirstName),
		LastName:          strings.TrimSpace(r.LastName),
		Email:             strings.TrimSpace(r.Email),
		Password:          r.Password,
		AssessmentAnswers: r.AssessmentAnswers,
	}
}

// LoginRequest defines the structure for login requests.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest defines the structure for refresh token requests.
// The token may instead be sent as a bearer Authorization header.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserExistsQuery is the query string of the exists lookup.
type UserExistsQuery struct {
	Email string `form:"email" binding:"required,email"`
}

// SignupResponse is the data returned after a successful signup.
type SignupResponse struct {
	UserID           string `json:"user_id"`
	AssessmentStatus string `json:"assessment_status"`
}

// AssessmentStatusPending is reported when the answers were queued for a retry.
const AssessmentStatusPending = "Assessment queued for processing"
