package repository

import (
	"context"
	"fmt"

	"github.com/hholt/choreboard/internal/changefeed"
	"github.com/hholt/choreboard/internal/models"
)

// SuggestionRepository handles task-suggestion database operations.
type SuggestionRepository struct {
	db   *DB
	feed changefeed.Publisher
}

// NewSuggestionRepository creates a new suggestion repository.
func NewSuggestionRepository(db *DB, feed changefeed.Publisher) *SuggestionRepository {
	return &SuggestionRepository{db: db, feed: feed}
}

// Create inserts a new suggestion.
func (r *SuggestionRepository) Create(ctx context.Context, suggestion *models.Suggestion) error {
	if err := r.db.WithContext(ctx).Create(suggestion).Error; err != nil {
		return fmt.Errorf("failed to create suggestion: %w", err)
	}
	publishChange(ctx, r.feed, changefeed.TableSuggestions, changefeed.EventInsert, nil, suggestion)
	return nil
}

// GetByID retrieves a suggestion by ID.
func (r *SuggestionRepository) GetByID(ctx context.Context, id uint) (*models.Suggestion, error) {
	var suggestion models.Suggestion
	if err := r.db.WithContext(ctx).First(&suggestion, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get suggestion %d: %w", id, err)
	}
	return &suggestion, nil
}

// Update persists the suggestion.
func (r *SuggestionRepository) Update(ctx context.Context, suggestion *models.Suggestion) error {
	var old models.Suggestion
	if err := r.db.WithContext(ctx).First(&old, suggestion.ID).Error; err != nil {
		return fmt.Errorf("failed to load suggestion %d for update: %w", suggestion.ID, err)
	}
	if err := r.db.WithContext(ctx).Save(suggestion).Error; err != nil {
		return fmt.Errorf("failed to update suggestion %d: %w", suggestion.ID, err)
	}
	publishChange(ctx, r.feed, changefeed.TableSuggestions, changefeed.EventUpdate, &old, suggestion)
	return nil
}

// List retrieves suggestions, optionally filtered by status, newest first.
func (r *SuggestionRepository) List(ctx context.Context, status string) ([]models.Suggestion, error) {
	query := r.db.WithContext(ctx).Model(&models.Suggestion{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var suggestions []models.Suggestion
	if err := query.Order("created_at DESC").Find(&suggestions).Error; err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	return suggestions, nil
}
