package reconcile

import (
	"github.com/hholt/choreboard/internal/metrics"
	"github.com/hholt/choreboard/internal/models"
)

// Stats is the derived dashboard view, recomputed from scratch after
// every mutation.
type Stats struct {
	OpenTasksByType    map[string]int `json:"open_tasks_by_type"`
	PendingApprovals   int            `json:"pending_approvals"`
	OverdueTasks       int            `json:"overdue_tasks"`
	OpenDemerits       int            `json:"open_demerits"`
	PendingAppeals     int            `json:"pending_appeals"`
	PendingSuggestions int            `json:"pending_suggestions"`
	PendingPurchases   int            `json:"pending_purchases"`
}

// recomputeLocked re-derives the stats view and the overdue display
// flags. Callers hold r.mu.
func (r *Reconciler) recomputeLocked() {
	now := r.now()
	stats := Stats{OpenTasksByType: make(map[string]int)}

	for i := range r.taskRows {
		task := &r.taskRows[i]

		// Display-side overdue flag: the store flag flips only when
		// the sweep applies the penalty, but the view shows the
		// crossing immediately.
		if !task.IsOverdue && !task.IsTerminal() && task.DueBefore(now) {
			task.IsOverdue = true
		}

		if task.IsTerminal() {
			continue
		}
		stats.OpenTasksByType[task.Type]++
		if task.Status == models.TaskStatusPendingApproval {
			stats.PendingApprovals++
		}
		if task.Status == models.TaskStatusDemeritIssued {
			stats.OpenDemerits++
		}
		if task.AppealStatus == models.AppealStatusPending {
			stats.PendingAppeals++
		}
		if task.IsOverdue {
			stats.OverdueTasks++
		}
	}

	for i := range r.suggRows {
		if r.suggRows[i].Status == models.SuggestionStatusPending {
			stats.PendingSuggestions++
		}
	}
	for i := range r.purchaseRows {
		if r.purchaseRows[i].Status == models.PurchaseStatusPendingAuthorization {
			stats.PendingPurchases++
		}
	}

	r.stats = stats
	for taskType, count := range stats.OpenTasksByType {
		metrics.SetOpenTasks(taskType, count)
	}
}

// Tasks returns a copy of the task collection in display order.
func (r *Reconciler) Tasks() []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Task, len(r.taskRows))
	copy(out, r.taskRows)
	return out
}

// Suggestions returns a copy of the suggestion collection.
func (r *Reconciler) Suggestions() []models.Suggestion {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Suggestion, len(r.suggRows))
	copy(out, r.suggRows)
	return out
}

// Rewards returns a copy of the visible reward catalog.
func (r *Reconciler) Rewards() []models.Reward {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Reward, len(r.rewardRows))
	copy(out, r.rewardRows)
	return out
}

// Purchases returns a copy of the purchase collection.
func (r *Reconciler) Purchases() []models.RewardPurchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.RewardPurchase, len(r.purchaseRows))
	copy(out, r.purchaseRows)
	return out
}

// Settings returns the cached settings row, or nil before the first fetch.
func (r *Reconciler) Settings() *models.ShopSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settingsRow == nil {
		return nil
	}
	row := *r.settingsRow
	return &row
}

// Stats returns the derived dashboard view.
func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats
	counts := make(map[string]int, len(stats.OpenTasksByType))
	for k, v := range stats.OpenTasksByType {
		counts[k] = v
	}
	stats.OpenTasksByType = counts
	return stats
}
