// File: internal/assessment/model.go
package assessment

import (
	"time"

	"calma_backend/internal/common"
)

// UserAssessment is the personality assessment captured at signup, one per user.
type UserAssessment struct {
	UserID          string    `gorm:"column:user_id;type:varchar(255);primaryKey"`
	CompletedAt     time.Time `gorm:"column:completed_at;not null"`
	Answers         string    `gorm:"column:personality_test_answers;type:varchar(5);not null"`
	PersonalityType string    `gorm:"column:personality_type;type:varchar(4);not null"`
}

// TableName specifies the table name for the UserAssessment model.
func (UserAssessment) TableName() string {
	return "user_assessments"
}

// PendingAssessment holds answers that could not be recorded at signup,
// either because the new account's ID was not resolved or the save failed.
type PendingAssessment struct {
	common.BaseModel
	Email     string  `gorm:"type:varchar(255);not null;index:idx_pending_assessments_email"`
	Answers   string  `gorm:"column:personality_test_answers;type:varchar(5);not null"`
	UserID    *string `gorm:"column:user_id;type:varchar(255)"`
	Attempts  int     `gorm:"not null;default:0"`
	LastError *string `gorm:"type:text"`
}

// TableName specifies the table name for the PendingAssessment model.
func (PendingAssessment) TableName() string {
	return "pending_assessments"
}

// Models lists every model owned by this package, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{&UserAssessment{}, &PendingAssessment{}}
}
