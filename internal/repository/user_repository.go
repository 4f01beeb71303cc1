package repository

import (
	"context"
	"fmt"

	"github.com/hholt/choreboard/internal/changefeed"
	"github.com/hholt/choreboard/internal/models"
)

// UserRepository handles user profile database operations.
type UserRepository struct {
	db   *DB
	feed changefeed.Publisher
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB, feed changefeed.Publisher) *UserRepository {
	return &UserRepository{db: db, feed: feed}
}

// Create creates a new user profile.
func (r *UserRepository) Create(ctx context.Context, user *models.UserProfile) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	publishChange(ctx, r.feed, changefeed.TableProfiles, changefeed.EventInsert, nil, user)
	return nil
}

// GetByUsername retrieves a user profile by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	var user models.UserProfile
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return &user, nil
}

// List retrieves all user profiles.
func (r *UserRepository) List(ctx context.Context) ([]models.UserProfile, error) {
	var users []models.UserProfile
	if err := r.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Update persists a user profile.
func (r *UserRepository) Update(ctx context.Context, user *models.UserProfile) error {
	var old models.UserProfile
	if err := r.db.WithContext(ctx).First(&old, user.ID).Error; err != nil {
		return fmt.Errorf("failed to load user %d for update: %w", user.ID, err)
	}
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user %d: %w", user.ID, err)
	}
	publishChange(ctx, r.feed, changefeed.TableProfiles, changefeed.EventUpdate, &old, user)
	return nil
}

// SetPoints writes a user's balance. This is the only code path that
// persists a balance; the accumulator owns all arithmetic above it.
func (r *UserRepository) SetPoints(ctx context.Context, username string, points int) error {
	user, err := r.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	old := *user
	user.Points = points
	if err := r.db.WithContext(ctx).Model(user).Update("points", points).Error; err != nil {
		return fmt.Errorf("failed to set points for %s: %w", username, err)
	}
	publishChange(ctx, r.feed, changefeed.TableProfiles, changefeed.EventUpdate, &old, user)
	return nil
}
