// Package leaderboard ranks household members by chore performance.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/internal/repository"
	"github.com/hholt/choreboard/pkg/logger"
)

// TaskStore interface for task listings.
type TaskStore interface {
	List(ctx context.Context, status, taskType, assignedTo string) ([]models.Task, error)
}

// PurchaseStore interface for purchase listings.
type PurchaseStore interface {
	List(ctx context.Context, username, status string) ([]models.RewardPurchase, error)
}

// UserStore interface for profile listings.
type UserStore interface {
	List(ctx context.Context) ([]models.UserProfile, error)
}

// Entry represents a single entry in the standings.
type Entry struct {
	Username       string `json:"username"`
	Role           string `json:"role"`
	Balance        int    `json:"balance"`
	CompletedTasks int    `json:"completed_tasks"`
	PointsEarned   int    `json:"points_earned"`
	PointsSpent    int    `json:"points_spent"`
	PenaltyPoints  int    `json:"penalty_points"`
	NetPoints      int    `json:"net_points"`
	Rank           int    `json:"rank"`
}

// Service builds the household standings.
type Service struct {
	tasks     TaskStore
	purchases PurchaseStore
	users     UserStore
	log       *logger.Logger
}

// NewService creates a new leaderboard service with concrete repository types.
func NewService(
	tasks *repository.TaskRepository,
	purchases *repository.PurchaseRepository,
	users *repository.UserRepository,
	log *logger.Logger,
) *Service {
	return &Service{tasks: tasks, purchases: purchases, users: users, log: log}
}

// NewServiceWithInterfaces creates a new leaderboard service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(tasks TaskStore, purchases PurchaseStore, users UserStore, log *logger.Logger) *Service {
	return &Service{tasks: tasks, purchases: purchases, users: users, log: log}
}

// GetStandings returns the household standings for a period, sorted by
// the given metric.
func (s *Service) GetStandings(ctx context.Context, period, metric string, limit int) ([]Entry, error) {
	startDate, endDate := calculatePeriodRange(period)

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	tasks, err := s.tasks.List(ctx, "", "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	purchases, err := s.purchases.List(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}

	byUser := make(map[string]*Entry, len(users))
	for _, user := range users {
		byUser[user.Username] = &Entry{
			Username: user.Username,
			Role:     user.Role,
			Balance:  user.Points,
		}
	}

	for _, task := range tasks {
		entry, ok := byUser[task.AssignedTo]
		if !ok {
			continue
		}

		switch task.Status {
		case models.TaskStatusCompleted:
			if task.ApprovedAt == nil || !inRange(*task.ApprovedAt, startDate, endDate) {
				continue
			}
			entry.CompletedTasks++
			entry.PointsEarned += task.Points
		case models.TaskStatusFailed:
			if task.RejectedAt == nil || !inRange(*task.RejectedAt, startDate, endDate) {
				continue
			}
			entry.PenaltyPoints += task.PenaltyPoints
		case models.TaskStatusDemeritIssued, models.TaskStatusDemeritAccepted:
			if !inRange(task.CreatedAt, startDate, endDate) {
				continue
			}
			entry.PenaltyPoints += task.PenaltyPoints
		}
	}

	for _, purchase := range purchases {
		entry, ok := byUser[purchase.Username]
		if !ok {
			continue
		}
		// Denied purchases were refunded; everything else cost points.
		if purchase.Status == models.PurchaseStatusDenied {
			continue
		}
		if !inRange(purchase.PurchaseDate, startDate, endDate) {
			continue
		}
		entry.PointsSpent += purchase.PurchaseCost
	}

	entries := make([]Entry, 0, len(byUser))
	for _, entry := range byUser {
		entry.NetPoints = entry.PointsEarned - entry.PenaltyPoints - entry.PointsSpent
		entries = append(entries, *entry)
	}

	s.sortStandings(entries, metric)

	for i := range entries {
		entries[i].Rank = i + 1
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}

// GetUserRank returns a user's rank for a metric in a period.
func (s *Service) GetUserRank(ctx context.Context, username, period, metric string) (int, error) {
	standings, err := s.GetStandings(ctx, period, metric, 0)
	if err != nil {
		return 0, err
	}

	for _, entry := range standings {
		if entry.Username == username {
			return entry.Rank, nil
		}
	}

	return 0, fmt.Errorf("user %s not found in standings", username)
}

// sortStandings sorts entries by the specified metric. Ties break on
// username so ranks are stable across rebuilds.
func (s *Service) sortStandings(entries []Entry, metric string) {
	less := func(a, b Entry) bool { return a.PointsEarned > b.PointsEarned }
	switch metric {
	case "completed_tasks":
		less = func(a, b Entry) bool { return a.CompletedTasks > b.CompletedTasks }
	case "net_points":
		less = func(a, b Entry) bool { return a.NetPoints > b.NetPoints }
	case "balance":
		less = func(a, b Entry) bool { return a.Balance > b.Balance }
	case "points_spent":
		less = func(a, b Entry) bool { return a.PointsSpent > b.PointsSpent }
	}

	sort.Slice(entries, func(i, j int) bool {
		if less(entries[i], entries[j]) != less(entries[j], entries[i]) {
			return less(entries[i], entries[j])
		}
		return entries[i].Username < entries[j].Username
	})
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// calculatePeriodRange calculates the start and end dates for a period.
func calculatePeriodRange(period string) (startDate, endDate time.Time) {
	now := time.Now()
	endDate = now

	switch period {
	case "day":
		startDate = now.Add(-24 * time.Hour)
	case "week":
		startDate = now.Add(-7 * 24 * time.Hour)
	case "month":
		startDate = now.Add(-30 * 24 * time.Hour)
	case "year":
		startDate = now.Add(-365 * 24 * time.Hour)
	default:
		// All time.
		startDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	return startDate, endDate
}
