package repository

import (
	"context"
	"fmt"

	"github.com/hholt/choreboard/internal/changefeed"
	"github.com/hholt/choreboard/internal/models"
)

// RewardRepository handles reward catalog database operations.
type RewardRepository struct {
	db   *DB
	feed changefeed.Publisher
}

// NewRewardRepository creates a new reward repository.
func NewRewardRepository(db *DB, feed changefeed.Publisher) *RewardRepository {
	return &RewardRepository{db: db, feed: feed}
}

// Create inserts a new reward.
func (r *RewardRepository) Create(ctx context.Context, reward *models.Reward) error {
	if err := r.db.WithContext(ctx).Create(reward).Error; err != nil {
		return fmt.Errorf("failed to create reward: %w", err)
	}
	publishChange(ctx, r.feed, changefeed.TableRewards, changefeed.EventInsert, nil, reward)
	return nil
}

// GetByID retrieves a reward by ID.
func (r *RewardRepository) GetByID(ctx context.Context, id uint) (*models.Reward, error) {
	var reward models.Reward
	if err := r.db.WithContext(ctx).First(&reward, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get reward %d: %w", id, err)
	}
	return &reward, nil
}

// Update persists the reward.
func (r *RewardRepository) Update(ctx context.Context, reward *models.Reward) error {
	var old models.Reward
	if err := r.db.WithContext(ctx).First(&old, reward.ID).Error; err != nil {
		return fmt.Errorf("failed to load reward %d for update: %w", reward.ID, err)
	}
	if err := r.db.WithContext(ctx).Save(reward).Error; err != nil {
		return fmt.Errorf("failed to update reward %d: %w", reward.ID, err)
	}
	publishChange(ctx, r.feed, changefeed.TableRewards, changefeed.EventUpdate, &old, reward)
	return nil
}

// Delete removes a reward. The shop service decides between delete
// and archive; this is the hard-delete primitive.
func (r *RewardRepository) Delete(ctx context.Context, id uint) error {
	var old models.Reward
	if err := r.db.WithContext(ctx).First(&old, id).Error; err != nil {
		return fmt.Errorf("failed to load reward %d for delete: %w", id, err)
	}
	if err := r.db.WithContext(ctx).Delete(&models.Reward{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete reward %d: %w", id, err)
	}
	publishChange(ctx, r.feed, changefeed.TableRewards, changefeed.EventDelete, &old, nil)
	return nil
}

// List retrieves rewards ordered by title. Archived rewards are
// included only when requested.
func (r *RewardRepository) List(ctx context.Context, includeArchived bool) ([]models.Reward, error) {
	query := r.db.WithContext(ctx).Model(&models.Reward{})
	if !includeArchived {
		query = query.Where("archived = ?", false)
	}

	var rewards []models.Reward
	if err := query.Order("title ASC").Find(&rewards).Error; err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	return rewards, nil
}
