package repository

import (
	"context"
	"fmt"

	"github.com/hholt/choreboard/internal/models"
)

// ActivityRepository handles the append-only activity log. Activity
// rows are not carried on the change-feed; the feed mirrors only the
// collections the reconciler maintains.
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append records an activity entry.
func (r *ActivityRepository) Append(ctx context.Context, entry *models.ActivityEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append activity entry: %w", err)
	}
	return nil
}

// ListRecent retrieves the most recent entries, newest first.
func (r *ActivityRepository) ListRecent(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	var entries []models.ActivityEntry
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list activity entries: %w", err)
	}
	return entries, nil
}

// Prune deletes everything older than the most recent keep entries.
func (r *ActivityRepository) Prune(ctx context.Context, keep int) error {
	sub := r.db.WithContext(ctx).Model(&models.ActivityEntry{}).
		Select("id").
		Order("created_at DESC").
		Limit(keep)
	err := r.db.WithContext(ctx).
		Where("id NOT IN (?)", sub).
		Delete(&models.ActivityEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to prune activity entries: %w", err)
	}
	return nil
}
