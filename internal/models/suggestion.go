package models

import (
	"time"
)

// Suggestion represents a proposed task awaiting steward review.
// Suggestions are immutable once reviewed.
type Suggestion struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Description      string     `gorm:"type:text;not null" json:"description"`
	Justification    string     `gorm:"type:text" json:"justification"`
	SuggestedPoints  int        `gorm:"default:0" json:"suggested_points"`
	SuggestedDueDate *time.Time `json:"suggested_due_date"`
	SuggestedBy      string     `gorm:"size:255;not null;index" json:"suggested_by"`
	Status           string     `gorm:"size:20;not null;index" json:"status"` // 'pending', 'approved', 'rejected'
	ReviewedBy       string     `gorm:"size:255" json:"reviewed_by"`
	ReviewedAt       *time.Time `json:"reviewed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Suggestion model.
func (Suggestion) TableName() string {
	return "task_suggestions"
}

// Suggestion status constants.
const (
	SuggestionStatusPending  = "pending"
	SuggestionStatusApproved = "approved"
	SuggestionStatusRejected = "rejected"
)

// IsReviewed reports whether the suggestion reached a terminal status.
func (s *Suggestion) IsReviewed() bool {
	return s.Status != SuggestionStatusPending
}
