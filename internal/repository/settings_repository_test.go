package repository

import (
	"context"
	"testing"

	"github.com/hholt/choreboard/internal/models"
)

func TestSettingsRepository_GetCreatesFromDefaults(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSettingsRepository(db, nil)
	ctx := context.Background()

	defaults := models.ShopSettings{
		InstantPurchaseLimit:            500,
		ResetDurationDays:               30,
		RequiresAuthorizationAfterLimit: true,
	}

	settings, err := repo.Get(ctx, defaults)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if settings.ID != models.ShopSettingsID {
		t.Errorf("Expected singleton ID %q, got %q", models.ShopSettingsID, settings.ID)
	}
	if settings.InstantPurchaseLimit != 500 {
		t.Errorf("Expected limit 500, got %d", settings.InstantPurchaseLimit)
	}
	if settings.LastResetAt.IsZero() {
		t.Error("Expected LastResetAt to be initialized")
	}

	// Second call returns the stored row, not a new one.
	settings.CurrentInstantSpend = 120
	if err := repo.Update(ctx, settings); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	again, err := repo.Get(ctx, models.ShopSettings{InstantPurchaseLimit: 999})
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if again.InstantPurchaseLimit != 500 {
		t.Errorf("Expected stored limit 500, got %d", again.InstantPurchaseLimit)
	}
	if again.CurrentInstantSpend != 120 {
		t.Errorf("Expected stored spend 120, got %d", again.CurrentInstantSpend)
	}
}

func TestSettingsRepository_UpdatePublishesChange(t *testing.T) {
	db := setupTestDB(t)
	feed := &recordingFeed{}
	repo := NewSettingsRepository(db, feed)
	ctx := context.Background()

	settings, err := repo.Get(ctx, models.ShopSettings{InstantPurchaseLimit: 500, ResetDurationDays: 30})
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	created := len(feed.events)

	settings.CurrentInstantSpend = 75
	if err := repo.Update(ctx, settings); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	if len(feed.events) != created+1 {
		t.Fatalf("Expected one more feed event, got %d total", len(feed.events))
	}
	last := feed.events[len(feed.events)-1]
	if last.Table != "shop_settings" {
		t.Errorf("Expected shop_settings event, got %q", last.Table)
	}
	if last.Type != "UPDATE" {
		t.Errorf("Expected UPDATE event, got %q", last.Type)
	}
}
