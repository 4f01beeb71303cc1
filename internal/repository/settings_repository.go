package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hholt/choreboard/internal/changefeed"
	"github.com/hholt/choreboard/internal/models"
)

// SettingsRepository handles the singleton shop-settings row.
type SettingsRepository struct {
	db   *DB
	feed changefeed.Publisher
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *DB, feed changefeed.Publisher) *SettingsRepository {
	return &SettingsRepository{db: db, feed: feed}
}

// Get retrieves the settings row, creating it from the supplied
// defaults if it does not exist yet.
func (r *SettingsRepository) Get(ctx context.Context, defaults models.ShopSettings) (*models.ShopSettings, error) {
	var settings models.ShopSettings
	err := r.db.WithContext(ctx).First(&settings, "id = ?", models.ShopSettingsID).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to get shop settings: %w", err)
	}

	defaults.ID = models.ShopSettingsID
	if defaults.LastResetAt.IsZero() {
		defaults.LastResetAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(&defaults).Error; err != nil {
		return nil, fmt.Errorf("failed to create shop settings: %w", err)
	}
	publishChange(ctx, r.feed, changefeed.TableSettings, changefeed.EventInsert, nil, &defaults)
	return &defaults, nil
}

// Update persists the settings row.
func (r *SettingsRepository) Update(ctx context.Context, settings *models.ShopSettings) error {
	var old models.ShopSettings
	if err := r.db.WithContext(ctx).First(&old, "id = ?", settings.ID).Error; err != nil {
		return fmt.Errorf("failed to load shop settings for update: %w", err)
	}
	if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("failed to update shop settings: %w", err)
	}
	publishChange(ctx, r.feed, changefeed.TableSettings, changefeed.EventUpdate, &old, settings)
	return nil
}
