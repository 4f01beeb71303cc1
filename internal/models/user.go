package models

import (
	"time"
)

// UserProfile holds a household member's persisted balance and role.
// The password is stored and compared in plaintext; redesigning the
// login mechanism is explicitly out of scope for this system.
type UserProfile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	Password  string    `gorm:"size:255" json:"-"`
	Role      string    `gorm:"size:50;not null" json:"role"`
	Points    int       `gorm:"not null;default:0" json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for UserProfile model.
func (UserProfile) TableName() string {
	return "user_profiles"
}

// ActivityEntry is an append-only record of login/logout and points
// events. Listings are capped to the most recent entries.
type ActivityEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:255;not null;index" json:"username"`
	Category  string    `gorm:"size:30;not null" json:"category"` // 'login', 'logout', 'points'
	Message   string    `gorm:"type:text" json:"message"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for ActivityEntry model.
func (ActivityEntry) TableName() string {
	return "activity_entries"
}

// Activity category constants.
const (
	ActivityLogin  = "login"
	ActivityLogout = "logout"
	ActivityPoints = "points"
)
