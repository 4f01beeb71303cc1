package repository

import (
	"context"
	"fmt"

	"github.com/hholt/choreboard/internal/changefeed"
	"github.com/hholt/choreboard/internal/models"
)

// PurchaseRepository handles reward purchase database operations.
type PurchaseRepository struct {
	db   *DB
	feed changefeed.Publisher
}

// NewPurchaseRepository creates a new purchase repository.
func NewPurchaseRepository(db *DB, feed changefeed.Publisher) *PurchaseRepository {
	return &PurchaseRepository{db: db, feed: feed}
}

// Create inserts a new purchase record.
func (r *PurchaseRepository) Create(ctx context.Context, purchase *models.RewardPurchase) error {
	if err := r.db.WithContext(ctx).Create(purchase).Error; err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	publishChange(ctx, r.feed, changefeed.TablePurchases, changefeed.EventInsert, nil, purchase)
	return nil
}

// GetByID retrieves a purchase by ID with its reward preloaded.
func (r *PurchaseRepository) GetByID(ctx context.Context, id uint) (*models.RewardPurchase, error) {
	var purchase models.RewardPurchase
	if err := r.db.WithContext(ctx).Preload("Reward").First(&purchase, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get purchase %d: %w", id, err)
	}
	return &purchase, nil
}

// Update persists the purchase.
func (r *PurchaseRepository) Update(ctx context.Context, purchase *models.RewardPurchase) error {
	var old models.RewardPurchase
	if err := r.db.WithContext(ctx).First(&old, purchase.ID).Error; err != nil {
		return fmt.Errorf("failed to load purchase %d for update: %w", purchase.ID, err)
	}
	if err := r.db.WithContext(ctx).Save(purchase).Error; err != nil {
		return fmt.Errorf("failed to update purchase %d: %w", purchase.ID, err)
	}
	publishChange(ctx, r.feed, changefeed.TablePurchases, changefeed.EventUpdate, &old, purchase)
	return nil
}

// List retrieves purchases with rewards preloaded, newest first,
// optionally filtered by username or status.
func (r *PurchaseRepository) List(ctx context.Context, username, status string) ([]models.RewardPurchase, error) {
	query := r.db.WithContext(ctx).Model(&models.RewardPurchase{}).Preload("Reward")

	if username != "" {
		query = query.Where("username = ?", username)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var purchases []models.RewardPurchase
	if err := query.Order("purchase_date DESC").Find(&purchases).Error; err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	return purchases, nil
}

// CountByReward returns the number of purchases referencing a reward.
func (r *PurchaseRepository) CountByReward(ctx context.Context, rewardID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RewardPurchase{}).
		Where("reward_id = ?", rewardID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count purchases for reward %d: %w", rewardID, err)
	}
	return count, nil
}
