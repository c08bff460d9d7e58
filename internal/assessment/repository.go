// File: internal/assessment/repository.go
package assessment

import (
	"context"
	"errors"

	"calma_backend/internal/common"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the data operations for assessments.
type Repository interface {
	// SaveAssessment inserts or replaces the assessment for its user.
	SaveAssessment(ctx context.Context, assessment *UserAssessment) error
	FindAssessment(ctx context.Context, userID string) (*UserAssessment, error)

	CreatePending(ctx context.Context, pending *PendingAssessment) error
	// ListPending returns the oldest rows with fewer than maxAttempts attempts.
	ListPending(ctx context.Context, maxAttempts, limit int) ([]PendingAssessment, error)
	UpdatePending(ctx context.Context, pending *PendingAssessment) error
	DeletePending(ctx context.Context, id uuid.UUID) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewGORMRepository creates a new GORM assessment repository.
func NewGORMRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) SaveAssessment(ctx context.Context, assessment *UserAssessment) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(assessment).Error
}

func (r *gormRepository) FindAssessment(ctx context.Context, userID string) (*UserAssessment, error) {
	var assessment UserAssessment
	err := r.db.WithContext(ctx).First(&assessment, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound.WithDetails("Assessment not found.")
		}
		return nil, err
	}
	return &assessment, nil
}

func (r *gormRepository) CreatePending(ctx context.Context, pending *PendingAssessment) error {
	return r.db.WithContext(ctx).Create(pending).Error
}

func (r *gormRepository) ListPending(ctx context.Context, maxAttempts, limit int) ([]PendingAssessment, error) {
	var rows []PendingAssessment
	query := r.db.WithContext(ctx).Order("created_at ASC")
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormRepository) UpdatePending(ctx context.Context, pending *PendingAssessment) error {
	return r.db.WithContext(ctx).Save(pending).Error
}

func (r *gormRepository) DeletePending(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&PendingAssessment{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return common.ErrNotFound.WithDetails("Pending assessment not found.")
	}
	return nil
}
