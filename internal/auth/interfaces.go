// File: internal/auth/interfaces.go
package auth

import (
	"context"
)

// AssessmentRecorder defines the assessment operations the signup flow needs.
// It is implemented by assessment.Service.
type AssessmentRecorder interface {
	Record(ctx context.Context, answers, userID string) (string, error)
	Defer(ctx context.Context, email, answers, userID string, cause error) error
}
