// File: internal/assessment/service.go
package assessment

import (
	"context"
	"fmt"
	"time"

	"calma_backend/internal/config"

	"go.uber.org/zap"
)

const (
	// PlaceholderPersonalityType is stored until real scoring exists.
	PlaceholderPersonalityType = "AAAA"
	// AnalysisPendingMessage is returned by Record for every saved assessment.
	AnalysisPendingMessage = "Personality analysis not yet implemented"
)

// UserIDResolver finds an account ID by email. It is satisfied by the
// Keycloak identity provider.
type UserIDResolver interface {
	LookupUserID(ctx context.Context, email string) (string, error)
}

// Service defines assessment business logic.
type Service interface {
	// Record stores the answers for userID and returns the analysis result text.
	Record(ctx context.Context, answers, userID string) (string, error)
	// Defer queues answers that could not be recorded. userID may be empty.
	Defer(ctx context.Context, email, answers, userID string, cause error) error
	// ReconcilePending retries queued assessments once.
	ReconcilePending(ctx context.Context) (ReconcileResult, error)
}

// ReconcileResult summarizes one reconcile pass.
type ReconcileResult struct {
	Recorded   int
	Unresolved int
	Failed     int
}

type service struct {
	repo     Repository
	resolver UserIDResolver
	logger   *zap.Logger
	config   *config.Config
	now      func() time.Time
}

// NewService creates a new assessment service.
func NewService(repo Repository, resolver UserIDResolver, logger *zap.Logger, cfg *config.Config) Service {
	return &service{
		repo:     repo,
		resolver: resolver,
		logger:   logger.Named("AssessmentService"),
		config:   cfg,
		now:      time.Now,
	}
}

func (s *service) Record(ctx context.Context, answers, userID string) (string, error) {
	assessment := &UserAssessment{
		UserID:          userID,
		CompletedAt:     s.now().UTC(),
		Answers:         answers,
		PersonalityType: PlaceholderPersonalityType,
	}
	if err := s.repo.SaveAssessment(ctx, assessment); err != nil {
		s.logger.Error("Failed to save assessment", zap.String("user_id", userID), zap.Error(err))
		return "", fmt.Errorf("save assessment for user %s: %w", userID, err)
	}
	s.logger.Info("Assessment recorded", zap.String("user_id", userID))
	return AnalysisPendingMessage, nil
}

func (s *service) Defer(ctx context.Context, email, answers, userID string, cause error) error {
	pending := &PendingAssessment{
		Email:   email,
		Answers: answers,
	}
	if userID != "" {
		pending.UserID = &userID
	}
	if cause != nil {
		msg := cause.Error()
		pending.LastError = &msg
	}
	if err := s.repo.CreatePending(ctx, pending); err != nil {
		s.logger.Error("Failed to queue pending assessment", zap.String("email", email), zap.Error(err))
		return fmt.Errorf("queue pending assessment: %w", err)
	}
	s.logger.Warn("Assessment queued for reconciliation",
		zap.String("email", email),
		zap.Bool("user_id_known", userID != ""),
	)
	return nil
}

func (s *service) ReconcilePending(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult

	rows, err := s.repo.ListPending(ctx, s.config.AssessmentReconcileMaxAttempts, s.config.AssessmentReconcileBatchSize)
	if err != nil {
		return result, fmt.Errorf("list pending assessments: %w", err)
	}

	for i := range rows {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		pending := &rows[i]

		if pending.UserID == nil {
			userID, err := s.resolver.LookupUserID(ctx, pending.Email)
			if err != nil {
				s.markAttempt(ctx, pending, err)
				result.Unresolved++
				continue
			}
			pending.UserID = &userID
		}

		if _, err := s.Record(ctx, pending.Answers, *pending.UserID); err != nil {
			s.markAttempt(ctx, pending, err)
			result.Failed++
			continue
		}

		if err := s.repo.DeletePending(ctx, pending.ID); err != nil {
			s.logger.Error("Failed to delete reconciled assessment", zap.String("id", pending.ID.String()), zap.Error(err))
		}
		result.Recorded++
	}
	return result, nil
}

func (s *service) markAttempt(ctx context.Context, pending *PendingAssessment, cause error) {
	pending.Attempts++
	msg := cause.Error()
	pending.LastError = &msg
	if err := s.repo.UpdatePending(ctx, pending); err != nil {
		s.logger.Error("Failed to update pending assessment", zap.String("id", pending.ID.String()), zap.Error(err))
		return
	}
	if limit := s.config.AssessmentReconcileMaxAttempts; limit > 0 && pending.Attempts >= limit {
		s.logger.Warn("Pending assessment exhausted its attempts",
			zap.String("email", pending.Email),
			zap.Int("attempts", pending.Attempts),
		)
	}
}
