package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hholt/choreboard/internal/models"
)

func createTestReward(t *testing.T, db *DB, title string, cost int) *models.Reward {
	t.Helper()

	reward := &models.Reward{Title: title, Cost: cost, Type: models.RewardTypeInstant}
	repo := NewRewardRepository(db, nil)
	if err := repo.Create(context.Background(), reward); err != nil {
		t.Fatalf("Failed to create test reward: %v", err)
	}
	return reward
}

func createTestPurchase(t *testing.T, repo *PurchaseRepository, username string, reward *models.Reward, status string) *models.RewardPurchase {
	t.Helper()

	purchase := &models.RewardPurchase{
		Username:     username,
		RewardID:     reward.ID,
		RewardTitle:  reward.Title,
		PurchaseCost: reward.Cost,
		PurchaseDate: time.Now(),
		Status:       status,
	}
	if err := repo.Create(context.Background(), purchase); err != nil {
		t.Fatalf("Failed to create test purchase: %v", err)
	}
	return purchase
}

func TestPurchaseRepository_GetByID_PreloadsReward(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPurchaseRepository(db, nil)

	reward := createTestReward(t, db, "Movie night", 100)
	created := createTestPurchase(t, repo, "kid1", reward, models.PurchaseStatusPurchased)

	retrieved, err := repo.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if retrieved.Reward == nil {
		t.Fatal("Expected joined reward to be loaded")
	}
	if retrieved.Reward.Title != "Movie night" {
		t.Errorf("Expected reward title 'Movie night', got %q", retrieved.Reward.Title)
	}
	if retrieved.PurchaseCost != 100 {
		t.Errorf("Expected snapshot cost 100, got %d", retrieved.PurchaseCost)
	}
}

func TestPurchaseRepository_SnapshotSurvivesPriceChange(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPurchaseRepository(db, nil)
	rewardRepo := NewRewardRepository(db, nil)
	ctx := context.Background()

	reward := createTestReward(t, db, "Movie night", 100)
	purchase := createTestPurchase(t, repo, "kid1", reward, models.PurchaseStatusPurchased)

	reward.Cost = 250
	reward.Title = "Premium movie night"
	if err := rewardRepo.Update(ctx, reward); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	retrieved, err := repo.GetByID(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if retrieved.PurchaseCost != 100 {
		t.Errorf("Expected snapshot cost 100 after price change, got %d", retrieved.PurchaseCost)
	}
	if retrieved.RewardTitle != "Movie night" {
		t.Errorf("Expected snapshot title 'Movie night', got %q", retrieved.RewardTitle)
	}
}

func TestPurchaseRepository_List_Filters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPurchaseRepository(db, nil)
	ctx := context.Background()

	reward := createTestReward(t, db, "Movie night", 100)
	createTestPurchase(t, repo, "kid1", reward, models.PurchaseStatusPurchased)
	createTestPurchase(t, repo, "kid1", reward, models.PurchaseStatusPendingAuthorization)
	createTestPurchase(t, repo, "kid2", reward, models.PurchaseStatusPurchased)

	all, err := repo.List(ctx, "", "")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 purchases, got %d", len(all))
	}

	kid1, _ := repo.List(ctx, "kid1", "")
	if len(kid1) != 2 {
		t.Errorf("Expected 2 purchases for kid1, got %d", len(kid1))
	}

	pending, _ := repo.List(ctx, "", models.PurchaseStatusPendingAuthorization)
	if len(pending) != 1 {
		t.Errorf("Expected 1 pending purchase, got %d", len(pending))
	}
}

func TestPurchaseRepository_CountByReward(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPurchaseRepository(db, nil)
	ctx := context.Background()

	bought := createTestReward(t, db, "Movie night", 100)
	untouched := createTestReward(t, db, "Ice cream", 50)
	createTestPurchase(t, repo, "kid1", bought, models.PurchaseStatusPurchased)
	createTestPurchase(t, repo, "kid2", bought, models.PurchaseStatusPurchased)

	count, err := repo.CountByReward(ctx, bought.ID)
	if err != nil {
		t.Fatalf("CountByReward() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}

	count, _ = repo.CountByReward(ctx, untouched.ID)
	if count != 0 {
		t.Errorf("Expected count 0, got %d", count)
	}
}
