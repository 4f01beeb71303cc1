package models

import (
	"time"
)

// Reward represents a purchasable catalog item.
type Reward struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Cost        int       `gorm:"not null" json:"cost"`
	Type        string    `gorm:"size:20;not null" json:"type"` // 'instant', 'authorized'
	Archived    bool      `gorm:"default:false;index" json:"archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for Reward model.
func (Reward) TableName() string {
	return "rewards"
}

// Reward type constants.
const (
	RewardTypeInstant    = "instant"
	RewardTypeAuthorized = "authorized"
)

// RewardPurchase is a transaction record referencing a Reward. Cost
// and title are snapshotted at purchase time so history survives
// later reward edits or archival.
type RewardPurchase struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"size:255;not null;index" json:"username"`
	RewardID     uint       `gorm:"not null;index" json:"reward_id"`
	Reward       *Reward    `gorm:"foreignKey:RewardID" json:"reward,omitempty"`
	RewardTitle  string     `gorm:"size:255;not null" json:"reward_title"`
	PurchaseCost int        `gorm:"not null" json:"purchase_cost"`
	PurchaseDate time.Time  `gorm:"not null" json:"purchase_date"`
	Status       string     `gorm:"size:30;not null;index" json:"status"` // see PurchaseStatus* constants
	ReviewedBy   string     `gorm:"size:255" json:"reviewed_by"`
	ReviewedAt   *time.Time `json:"reviewed_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName specifies the table name for RewardPurchase model.
func (RewardPurchase) TableName() string {
	return "reward_purchases"
}

// Purchase status constants.
const (
	PurchaseStatusPurchased            = "purchased"
	PurchaseStatusPendingAuthorization = "pending_authorization"
	PurchaseStatusAuthorized           = "authorized"
	PurchaseStatusDenied               = "denied"
)

// ShopSettingsID is the fixed primary key of the singleton settings row.
const ShopSettingsID = "system_settings"

// ShopSettings is the singleton reward-shop configuration row.
type ShopSettings struct {
	ID                              string    `gorm:"primaryKey;size:50" json:"id"`
	InstantPurchaseLimit            int       `gorm:"not null" json:"instant_purchase_limit"`
	CurrentInstantSpend             int       `gorm:"not null;default:0" json:"current_instant_spend"`
	ResetDurationDays               int       `gorm:"not null" json:"reset_duration_days"`
	LastResetAt                     time.Time `gorm:"not null" json:"last_reset_at"`
	RequiresAuthorizationAfterLimit bool      `gorm:"not null;default:true" json:"requires_authorization_after_limit"`
	UpdatedAt                       time.Time `json:"updated_at"`
}

// TableName specifies the table name for ShopSettings model.
func (ShopSettings) TableName() string {
	return "shop_settings"
}

// ResetDue reports whether the automatic spend reset window has elapsed.
func (s *ShopSettings) ResetDue(now time.Time) bool {
	return !now.Before(s.LastResetAt.AddDate(0, 0, s.ResetDurationDays))
}
