package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/hholt/choreboard/internal/metrics"
	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/pkg/logger"
)

// Operation is a points mutation kind.
type Operation string

// Accumulator operations. OpNone resyncs the display balance without
// writing anything.
const (
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
	OpSet      Operation = "set"
	OpNone     Operation = "none"
)

// UserStore is the profile persistence the accumulator needs.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*models.UserProfile, error)
	SetPoints(ctx context.Context, username string, points int) error
}

// ActivityStore records point-change events on the activity feed.
type ActivityStore interface {
	Append(ctx context.Context, entry *models.ActivityEntry) error
}

// Accumulator is the single mutable balance per user. Every balance
// change in the system funnels through Apply. Balances of users in
// the steward role are session-local: mutated in memory, never
// persisted, and reset when the process restarts.
type Accumulator struct {
	users       UserStore
	activity    ActivityStore
	stewardRole string
	log         *logger.Logger

	mu      sync.Mutex
	session map[string]int // steward-role balances, by username
}

// NewAccumulator creates the points accumulator. activity may be nil.
func NewAccumulator(users UserStore, activity ActivityStore, stewardRole string, log *logger.Logger) *Accumulator {
	return &Accumulator{
		users:       users,
		activity:    activity,
		stewardRole: stewardRole,
		log:         log,
		session:     make(map[string]int),
	}
}

// Balance returns the user's current balance without mutating it.
func (a *Accumulator) Balance(ctx context.Context, username string) (int, error) {
	return a.Apply(ctx, username, 0, OpNone)
}

// Apply mutates a user's balance and returns the resulting value.
// Subtract clamps at zero: penalties beyond the remaining balance are
// capped, not tracked as debt. OpNone performs no write.
func (a *Accumulator) Apply(ctx context.Context, username string, amount int, op Operation) (int, error) {
	switch op {
	case OpAdd, OpSubtract, OpSet, OpNone:
	default:
		return 0, fmt.Errorf("%w: unknown points operation %q", ErrValidation, op)
	}
	if amount < 0 {
		return 0, fmt.Errorf("%w: points amount must not be negative", ErrValidation)
	}

	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("failed to load profile for points update: %w", err)
	}

	sessionLocal := user.Role == a.stewardRole

	a.mu.Lock()
	current := user.Points
	if sessionLocal {
		if cached, ok := a.session[username]; ok {
			current = cached
		}
	}

	next := current
	switch op {
	case OpAdd:
		next = current + amount
	case OpSubtract:
		next = current - amount
		if next < 0 {
			next = 0
		}
	case OpSet:
		next = amount
	case OpNone:
		a.mu.Unlock()
		return current, nil
	}

	if sessionLocal {
		a.session[username] = next
		a.mu.Unlock()
	} else {
		a.mu.Unlock()
		if err := a.users.SetPoints(ctx, username, next); err != nil {
			return current, fmt.Errorf("failed to persist points for %s: %w", username, err)
		}
	}

	metrics.RecordPointsMutation(string(op), !sessionLocal, next-current)
	a.logChange(ctx, username, op, amount, current, next)
	return next, nil
}

func (a *Accumulator) logChange(ctx context.Context, username string, op Operation, amount, before, after int) {
	a.log.Debug().
		Str("username", username).
		Str("operation", string(op)).
		Int("amount", amount).
		Int("before", before).
		Int("after", after).
		Msg("Points balance changed")

	if a.activity == nil {
		return
	}
	entry := &models.ActivityEntry{
		Username: username,
		Category: models.ActivityPoints,
		Message:  fmt.Sprintf("%s %d points (%d -> %d)", op, amount, before, after),
	}
	if err := a.activity.Append(ctx, entry); err != nil {
		a.log.Warn().Err(err).Str("username", username).Msg("Failed to record points activity")
	}
}
