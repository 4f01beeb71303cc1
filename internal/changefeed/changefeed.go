// Package changefeed carries row-level change events from the
// repository layer to connected reconcilers over Redis pub/sub.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event types mirror the store's row operations.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Table names carried on the feed.
const (
	TableTasks       = "tasks"
	TableSuggestions = "task_suggestions"
	TableRewards     = "rewards"
	TablePurchases   = "reward_purchases"
	TableSettings    = "shop_settings"
	TableProfiles    = "user_profiles"
)

// Event is one row change. Old is set for UPDATE and DELETE, New for
// INSERT and UPDATE. Payloads are the JSON encoding of the row.
type Event struct {
	Table string          `json:"table"`
	Type  string          `json:"type"`
	Old   json.RawMessage `json:"old,omitempty"`
	New   json.RawMessage `json:"new,omitempty"`
}

// NewEvent builds an event, JSON-encoding the old and new rows.
func NewEvent(table, eventType string, oldRow, newRow interface{}) (Event, error) {
	ev := Event{Table: table, Type: eventType}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		if err != nil {
			return Event{}, fmt.Errorf("failed to encode old row: %w", err)
		}
		ev.Old = raw
	}
	if newRow != nil {
		raw, err := json.Marshal(newRow)
		if err != nil {
			return Event{}, fmt.Errorf("failed to encode new row: %w", err)
		}
		ev.New = raw
	}
	return ev, nil
}

// Publisher emits row-change events after a write is durable.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Feed delivers row-change events for subscribed tables. The returned
// channel closes when the context is cancelled or the feed is closed.
type Feed interface {
	Publisher
	Subscribe(ctx context.Context, tables ...string) (<-chan Event, error)
	Health(ctx context.Context) error
	Close() error
}
