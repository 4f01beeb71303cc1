// Package reconcile keeps in-memory collections consistent with the
// store by merging bulk fetches with change-feed events. Applying the
// same event twice never duplicates a row: matching is always by
// primary key with upsert-or-replace semantics.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hholt/choreboard/internal/changefeed"
	"github.com/hholt/choreboard/internal/metrics"
	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/pkg/logger"
)

// ErrCooldown means a manual refresh was requested before the
// per-collection cooldown elapsed.
var ErrCooldown = errors.New("refresh cooldown active")

// TaskLister fetches the task collection.
type TaskLister interface {
	List(ctx context.Context, status, taskType, assignedTo string) ([]models.Task, error)
}

// SuggestionLister fetches the suggestion collection.
type SuggestionLister interface {
	List(ctx context.Context, status string) ([]models.Suggestion, error)
}

// RewardLister fetches the reward catalog.
type RewardLister interface {
	List(ctx context.Context, includeArchived bool) ([]models.Reward, error)
}

// PurchaseLister fetches the purchase collection with joined rewards.
type PurchaseLister interface {
	List(ctx context.Context, username, status string) ([]models.RewardPurchase, error)
}

// SettingsGetter fetches the settings singleton.
type SettingsGetter interface {
	Get(ctx context.Context, defaults models.ShopSettings) (*models.ShopSettings, error)
}

// Reconciler owns the in-memory mirror of the store. A single mutex
// guards the collections; the store itself carries no version tokens,
// concurrent writers follow last-write-wins.
type Reconciler struct {
	feed        changefeed.Feed
	tasks       TaskLister
	suggestions SuggestionLister
	rewards     RewardLister
	purchases   PurchaseLister
	settings    SettingsGetter
	defaults    models.ShopSettings
	cooldown    time.Duration
	log         *logger.Logger
	now         func() time.Time

	mu           sync.Mutex
	taskRows     []models.Task
	suggRows     []models.Suggestion
	rewardRows   []models.Reward
	purchaseRows []models.RewardPurchase
	settingsRow  *models.ShopSettings
	stats        Stats
	lastRefresh  map[string]time.Time
}

// NewReconciler creates a reconciler over the given stores and feed.
func NewReconciler(
	feed changefeed.Feed,
	tasks TaskLister,
	suggestions SuggestionLister,
	rewards RewardLister,
	purchases PurchaseLister,
	settings SettingsGetter,
	defaults models.ShopSettings,
	cooldown time.Duration,
	log *logger.Logger,
) *Reconciler {
	return &Reconciler{
		feed:        feed,
		tasks:       tasks,
		suggestions: suggestions,
		rewards:     rewards,
		purchases:   purchases,
		settings:    settings,
		defaults:    defaults,
		cooldown:    cooldown,
		log:         log,
		now:         time.Now,
		lastRefresh: make(map[string]time.Time),
	}
}

// Start performs the initial bulk fetch, subscribes to the feed, and
// applies events until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) error {
	for _, table := range watchedTables {
		if err := r.refresh(ctx, table); err != nil {
			return err
		}
	}

	events, err := r.feed.Subscribe(ctx, watchedTables...)
	if err != nil {
		return err
	}

	go func() {
		for event := range events {
			r.ApplyEvent(ctx, event)
		}
		r.log.Info().Msg("Change-feed stream closed")
	}()

	return nil
}

var watchedTables = []string{
	changefeed.TableTasks,
	changefeed.TableSuggestions,
	changefeed.TableRewards,
	changefeed.TablePurchases,
	changefeed.TableSettings,
}

// Refresh re-fetches one collection on request, subject to the
// per-collection cooldown.
func (r *Reconciler) Refresh(ctx context.Context, table string) error {
	r.mu.Lock()
	last, ok := r.lastRefresh[table]
	if ok && r.now().Sub(last) < r.cooldown {
		r.mu.Unlock()
		return ErrCooldown
	}
	r.mu.Unlock()

	return r.refresh(ctx, table)
}

// refresh bulk-fetches a collection, bypassing the cooldown. Internal
// callers (startup, purchase feed events) use this directly.
func (r *Reconciler) refresh(ctx context.Context, table string) error {
	switch table {
	case changefeed.TableTasks:
		rows, err := r.tasks.List(ctx, "", "", "")
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.taskRows = rows
	case changefeed.TableSuggestions:
		rows, err := r.suggestions.List(ctx, "")
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.suggRows = rows
	case changefeed.TableRewards:
		rows, err := r.rewards.List(ctx, false)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.rewardRows = rows
	case changefeed.TablePurchases:
		rows, err := r.purchases.List(ctx, "", "")
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.purchaseRows = rows
	case changefeed.TableSettings:
		row, err := r.settings.Get(ctx, r.defaults)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.settingsRow = row
	default:
		return errors.New("unknown collection: " + table)
	}

	r.lastRefresh[table] = r.now()
	r.resortLocked()
	r.recomputeLocked()
	r.mu.Unlock()
	return nil
}

// ApplyEvent merges one change-feed event into the collections.
// Purchase events always trigger a full re-fetch because the joined
// reward fields are not part of the raw payload.
func (r *Reconciler) ApplyEvent(ctx context.Context, event changefeed.Event) {
	metrics.RecordFeedEvent(event.Table, event.Type)

	switch event.Table {
	case changefeed.TablePurchases:
		if err := r.refresh(ctx, changefeed.TablePurchases); err != nil {
			r.log.Error().Err(err).Msg("Purchase re-fetch after feed event failed")
		}
		return
	case changefeed.TableSettings:
		var row models.ShopSettings
		if !r.decode(event, &row) {
			return
		}
		r.mu.Lock()
		r.settingsRow = &row
		r.mu.Unlock()
		return
	case changefeed.TableTasks:
		r.applyTask(event)
	case changefeed.TableSuggestions:
		r.applySuggestion(event)
	case changefeed.TableRewards:
		r.applyReward(event)
	default:
		r.log.Debug().Str("table", event.Table).Msg("Ignoring feed event for unwatched table")
		return
	}

	r.mu.Lock()
	r.resortLocked()
	r.recomputeLocked()
	r.mu.Unlock()
}

func (r *Reconciler) applyTask(event changefeed.Event) {
	if event.Type == changefeed.EventDelete {
		var row models.Task
		if !r.decodeOld(event, &row) {
			return
		}
		r.mu.Lock()
		r.taskRows = deleteByID(r.taskRows, row.ID, func(t models.Task) uint { return t.ID })
		r.mu.Unlock()
		return
	}

	var row models.Task
	if !r.decode(event, &row) {
		return
	}
	r.mu.Lock()
	var replaced bool
	r.taskRows, replaced = upsertByID(r.taskRows, row, func(t models.Task) uint { return t.ID })
	r.mu.Unlock()
	if replaced && event.Type == changefeed.EventInsert {
		metrics.RecordFeedDuplicate(event.Table)
	}
}

func (r *Reconciler) applySuggestion(event changefeed.Event) {
	if event.Type == changefeed.EventDelete {
		var row models.Suggestion
		if !r.decodeOld(event, &row) {
			return
		}
		r.mu.Lock()
		r.suggRows = deleteByID(r.suggRows, row.ID, func(s models.Suggestion) uint { return s.ID })
		r.mu.Unlock()
		return
	}

	var row models.Suggestion
	if !r.decode(event, &row) {
		return
	}
	r.mu.Lock()
	var replaced bool
	r.suggRows, replaced = upsertByID(r.suggRows, row, func(s models.Suggestion) uint { return s.ID })
	r.mu.Unlock()
	if replaced && event.Type == changefeed.EventInsert {
		metrics.RecordFeedDuplicate(event.Table)
	}
}

func (r *Reconciler) applyReward(event changefeed.Event) {
	if event.Type == changefeed.EventDelete {
		var row models.Reward
		if !r.decodeOld(event, &row) {
			return
		}
		r.mu.Lock()
		r.rewardRows = deleteByID(r.rewardRows, row.ID, func(w models.Reward) uint { return w.ID })
		r.mu.Unlock()
		return
	}

	var row models.Reward
	if !r.decode(event, &row) {
		return
	}
	r.mu.Lock()
	if row.Archived {
		// Archived rewards leave the visible catalog.
		r.rewardRows = deleteByID(r.rewardRows, row.ID, func(w models.Reward) uint { return w.ID })
		r.mu.Unlock()
		return
	}
	var replaced bool
	r.rewardRows, replaced = upsertByID(r.rewardRows, row, func(w models.Reward) uint { return w.ID })
	r.mu.Unlock()
	if replaced && event.Type == changefeed.EventInsert {
		metrics.RecordFeedDuplicate(event.Table)
	}
}

func (r *Reconciler) decode(event changefeed.Event, out interface{}) bool {
	if err := json.Unmarshal(event.New, out); err != nil {
		r.log.Warn().Err(err).Str("table", event.Table).Str("type", event.Type).Msg("Dropping undecodable feed payload")
		return false
	}
	return true
}

func (r *Reconciler) decodeOld(event changefeed.Event, out interface{}) bool {
	if err := json.Unmarshal(event.Old, out); err != nil {
		r.log.Warn().Err(err).Str("table", event.Table).Str("type", event.Type).Msg("Dropping undecodable feed payload")
		return false
	}
	return true
}

// resortLocked re-derives display order from scratch: creation time
// descending, titles alphabetical for rewards. Order is never assumed
// stable across incremental updates.
func (r *Reconciler) resortLocked() {
	sort.SliceStable(r.taskRows, func(i, j int) bool {
		return r.taskRows[i].CreatedAt.After(r.taskRows[j].CreatedAt)
	})
	sort.SliceStable(r.suggRows, func(i, j int) bool {
		return r.suggRows[i].CreatedAt.After(r.suggRows[j].CreatedAt)
	})
	sort.SliceStable(r.purchaseRows, func(i, j int) bool {
		return r.purchaseRows[i].PurchaseDate.After(r.purchaseRows[j].PurchaseDate)
	})
	sort.SliceStable(r.rewardRows, func(i, j int) bool {
		return r.rewardRows[i].Title < r.rewardRows[j].Title
	})
}

// upsertByID replaces the row with a matching key or appends it.
// Returns whether an existing row was replaced.
func upsertByID[T any](rows []T, row T, key func(T) uint) ([]T, bool) {
	id := key(row)
	for i := range rows {
		if key(rows[i]) == id {
			rows[i] = row
			return rows, true
		}
	}
	return append(rows, row), false
}

// deleteByID removes the row with a matching key, if present.
func deleteByID[T any](rows []T, id uint, key func(T) uint) []T {
	for i := range rows {
		if key(rows[i]) == id {
			return append(rows[:i], rows[i+1:]...)
		}
	}
	return rows
}
