// Package models defines domain models for the choreboard ledger.
package models

import (
	"time"
)

// Task represents a unit of work or an issued penalty.
type Task struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Description    string     `gorm:"type:text;not null" json:"description"`
	Type           string     `gorm:"size:50;not null;index" json:"type"`   // 'regular', 'demerit', 'cost_tracker', 'spiral'
	Status         string     `gorm:"size:50;not null;index" json:"status"` // see TaskStatus* constants
	Points         int        `gorm:"default:0" json:"points"`
	PenaltyPoints  int        `gorm:"default:0" json:"penalty_points"`
	DueDate        *time.Time `json:"due_date"`
	IsRepeating    bool       `gorm:"default:false" json:"is_repeating"`
	RepeatInterval string     `gorm:"size:20" json:"repeat_interval"` // 'daily', 'weekly', 'monthly'
	IsOverdue      bool       `gorm:"default:false" json:"is_overdue"`

	// Appeal sub-record, demerit tasks only.
	AppealStatus     string     `gorm:"size:20" json:"appeal_status"` // '', 'pending', 'approved', 'denied'
	AppealText       string     `gorm:"type:text" json:"appeal_text"`
	AppealedAt       *time.Time `json:"appealed_at"`
	AppealReviewedBy string     `gorm:"size:255" json:"appeal_reviewed_by"`
	AppealReviewedAt *time.Time `json:"appeal_reviewed_at"`

	// Actor trail: who moved the task through each transition.
	CreatedBy   string     `gorm:"size:255;not null" json:"created_by"`
	AssignedTo  string     `gorm:"size:255;not null;index" json:"assigned_to"`
	CompletedBy string     `gorm:"size:255" json:"completed_by"`
	CompletedAt *time.Time `json:"completed_at"`
	ApprovedBy  string     `gorm:"size:255" json:"approved_by"`
	ApprovedAt  *time.Time `json:"approved_at"`
	RejectedBy  string     `gorm:"size:255" json:"rejected_by"`
	RejectedAt  *time.Time `json:"rejected_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Task model.
func (Task) TableName() string {
	return "tasks"
}

// Task type constants.
const (
	TaskTypeRegular     = "regular"
	TaskTypeDemerit     = "demerit"
	TaskTypeCostTracker = "cost_tracker"
	TaskTypeSpiral      = "spiral"
)

// Task status constants.
const (
	TaskStatusTodo            = "todo"
	TaskStatusPendingApproval = "pending_approval"
	TaskStatusCompleted       = "completed"
	TaskStatusFailed          = "failed"
	TaskStatusDemeritIssued   = "demerit_issued"
	TaskStatusDemeritAccepted = "demerit_accepted"
)

// Repeat interval constants.
const (
	RepeatDaily   = "daily"
	RepeatWeekly  = "weekly"
	RepeatMonthly = "monthly"
)

// Appeal status constants. An empty string means no appeal was filed.
const (
	AppealStatusPending  = "pending"
	AppealStatusApproved = "approved"
	AppealStatusDenied   = "denied"
)

// IsDemerit reports whether the task is a penalty-only demerit.
func (t *Task) IsDemerit() bool {
	return t.Type == TaskTypeDemerit
}

// IsTerminal reports whether the task can no longer move forward.
// A demerit with a pending appeal is not terminal yet.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	case TaskStatusDemeritAccepted:
		return t.AppealStatus != AppealStatusPending
	}
	return false
}

// DueBefore reports whether the task has a due date strictly before now.
func (t *Task) DueBefore(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now)
}
