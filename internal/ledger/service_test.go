package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/hholt/choreboard/internal/auth"
	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/pkg/logger"
)

// Mock task store

type mockTaskStore struct {
	tasks      map[uint]*models.Task
	nextID     uint
	failUpdate bool
	failCreate bool
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{tasks: make(map[uint]*models.Task), nextID: 1}
}

func (m *mockTaskStore) Create(ctx context.Context, task *models.Task) error {
	if m.failCreate {
		return fmt.Errorf("create failed")
	}
	task.ID = m.nextID
	task.CreatedAt = time.Now()
	m.nextID++
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *mockTaskStore) GetByID(ctx context.Context, id uint) (*models.Task, error) {
	task, exists := m.tasks[id]
	if !exists {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *task
	return &copied, nil
}

func (m *mockTaskStore) Update(ctx context.Context, task *models.Task) error {
	if m.failUpdate {
		return fmt.Errorf("update failed")
	}
	if _, exists := m.tasks[task.ID]; !exists {
		return gorm.ErrRecordNotFound
	}
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *mockTaskStore) Delete(ctx context.Context, id uint) error {
	delete(m.tasks, id)
	return nil
}

func (m *mockTaskStore) List(ctx context.Context, status, taskType, assignedTo string) ([]models.Task, error) {
	var out []models.Task
	for _, task := range m.tasks {
		if status != "" && task.Status != status {
			continue
		}
		if taskType != "" && task.Type != taskType {
			continue
		}
		if assignedTo != "" && task.AssignedTo != assignedTo {
			continue
		}
		out = append(out, *task)
	}
	return out, nil
}

func (m *mockTaskStore) ListOverdueCandidates(ctx context.Context, now time.Time) ([]models.Task, error) {
	var out []models.Task
	for _, task := range m.tasks {
		open := task.Status == models.TaskStatusTodo || task.Status == models.TaskStatusPendingApproval
		if open && !task.IsOverdue && task.DueBefore(now) {
			out = append(out, *task)
		}
	}
	return out, nil
}

// Mock suggestion store

type mockSuggestionStore struct {
	suggestions map[uint]*models.Suggestion
	nextID      uint
	failUpdate  bool
}

func newMockSuggestionStore() *mockSuggestionStore {
	return &mockSuggestionStore{suggestions: make(map[uint]*models.Suggestion), nextID: 1}
}

func (m *mockSuggestionStore) Create(ctx context.Context, suggestion *models.Suggestion) error {
	suggestion.ID = m.nextID
	m.nextID++
	copied := *suggestion
	m.suggestions[suggestion.ID] = &copied
	return nil
}

func (m *mockSuggestionStore) GetByID(ctx context.Context, id uint) (*models.Suggestion, error) {
	suggestion, exists := m.suggestions[id]
	if !exists {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *suggestion
	return &copied, nil
}

func (m *mockSuggestionStore) Update(ctx context.Context, suggestion *models.Suggestion) error {
	if m.failUpdate {
		return fmt.Errorf("update failed")
	}
	copied := *suggestion
	m.suggestions[suggestion.ID] = &copied
	return nil
}

func (m *mockSuggestionStore) List(ctx context.Context, status string) ([]models.Suggestion, error) {
	var out []models.Suggestion
	for _, suggestion := range m.suggestions {
		if status != "" && suggestion.Status != status {
			continue
		}
		out = append(out, *suggestion)
	}
	return out, nil
}

// Mock points applier recording every mutation.

type pointsCall struct {
	Username string
	Amount   int
	Op       Operation
}

type mockPoints struct {
	balances map[string]int
	calls    []pointsCall
	fail     bool
}

func newMockPoints() *mockPoints {
	return &mockPoints{balances: make(map[string]int)}
}

func (m *mockPoints) Apply(ctx context.Context, username string, amount int, op Operation) (int, error) {
	if m.fail {
		return 0, fmt.Errorf("points store unavailable")
	}
	m.calls = append(m.calls, pointsCall{Username: username, Amount: amount, Op: op})
	switch op {
	case OpAdd:
		m.balances[username] += amount
	case OpSubtract:
		m.balances[username] -= amount
		if m.balances[username] < 0 {
			m.balances[username] = 0
		}
	case OpSet:
		m.balances[username] = amount
	}
	return m.balances[username], nil
}

func (m *mockPoints) Balance(ctx context.Context, username string) (int, error) {
	return m.balances[username], nil
}

// allowAll grants every capability; memberOnly mirrors the default
// member grants.

type allowAll struct{}

func (allowAll) Can(actor auth.Actor, capability string) bool { return true }

type memberOnly struct{}

func (memberOnly) Can(actor auth.Actor, capability string) bool {
	return capability == auth.CapSuggestionCreate || capability == auth.CapPurchaseBuy
}

// Test setup

func setupService(t *testing.T) (*Service, *mockTaskStore, *mockSuggestionStore, *mockPoints) {
	t.Helper()
	tasks := newMockTaskStore()
	suggestions := newMockSuggestionStore()
	points := newMockPoints()
	log := logger.New("debug", "text", "stdout")
	svc := NewServiceWithInterfaces(tasks, suggestions, points, allowAll{}, log)
	return svc, tasks, suggestions, points
}

var (
	steward = auth.Actor{Username: "mom", Role: "steward"}
	member  = auth.Actor{Username: "kid1", Role: "member"}
)

func futureDate(days int) *time.Time {
	d := time.Now().AddDate(0, 0, days)
	return &d
}

// Tests

func TestCreateTask_Validation(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateTaskInput
	}{
		{"empty description", CreateTaskInput{Type: models.TaskTypeRegular, AssignedTo: "kid1"}},
		{"demerit type", CreateTaskInput{Description: "x", Type: models.TaskTypeDemerit, AssignedTo: "kid1"}},
		{"negative points", CreateTaskInput{Description: "x", Type: models.TaskTypeRegular, Points: -1, AssignedTo: "kid1"}},
		{"missing assignee", CreateTaskInput{Description: "x", Type: models.TaskTypeRegular}},
		{"past due date", CreateTaskInput{Description: "x", Type: models.TaskTypeRegular, AssignedTo: "kid1", DueDate: futureDate(-1)}},
		{"repeating without due date", CreateTaskInput{Description: "x", Type: models.TaskTypeRegular, AssignedTo: "kid1", IsRepeating: true, RepeatInterval: models.RepeatDaily}},
		{"bad repeat interval", CreateTaskInput{Description: "x", Type: models.TaskTypeRegular, AssignedTo: "kid1", DueDate: futureDate(1), IsRepeating: true, RepeatInterval: "fortnightly"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTask(ctx, steward, tc.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateTask_PermissionDenied(t *testing.T) {
	tasks := newMockTaskStore()
	log := logger.New("debug", "text", "stdout")
	svc := NewServiceWithInterfaces(tasks, newMockSuggestionStore(), newMockPoints(), memberOnly{}, log)

	_, err := svc.CreateTask(context.Background(), member, CreateTaskInput{
		Description: "Dishes", Type: models.TaskTypeRegular, AssignedTo: "kid1",
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCheckOff_OnlyAssignee(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, steward, CreateTaskInput{
		Description: "Dishes", Type: models.TaskTypeRegular, Points: 10, AssignedTo: "kid1",
	})
	assert.NoError(t, err)

	_, err = svc.CheckOff(ctx, auth.Actor{Username: "kid2", Role: "member"}, task.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	checked, err := svc.CheckOff(ctx, member, task.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.TaskStatusPendingApproval, checked.Status)
	assert.Equal(t, "kid1", checked.CompletedBy)
	assert.NotNil(t, checked.CompletedAt)
}

func TestCheckOff_WrongStatus(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	task, _ := svc.CreateTask(ctx, steward, CreateTaskInput{
		Description: "Dishes", Type: models.TaskTypeRegular, Points: 10, AssignedTo: "kid1",
	})
	_, err := svc.CheckOff(ctx, member, task.ID)
	assert.NoError(t, err)

	// Second check-off must conflict.
	_, err = svc.CheckOff(ctx, member, task.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestApprove_AwardsPointsOnce(t *testing.T) {
	svc, _, _, points := setupService(t)
	ctx := context.Background()

	task, _ := svc.CreateTask(ctx, steward, CreateTaskInput{
		Description: "Dishes", Type: models.TaskTypeRegular, Points: 10, AssignedTo: "kid1",
	})
	_, err := svc.CheckOff(ctx, member, task.ID)
	assert.NoError(t, err)

	approved, err := svc.Approve(ctx, steward, task.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, approved.Status)
	assert.Equal(t, 10, points.balances["kid1"])
	assert.Len(t, points.calls, 1)

	// A completed task cannot be approved again.
	_, err = svc.Approve(ctx, steward, task.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 10, points.balances["kid1"])
}

func TestApprove_CostTrackerAwardsNothing(t *testing.T) {
	svc, _, _, points := setupService(t)
	ctx := context.Background()

	task, _ := svc.CreateTask(ctx, steward, CreateTaskInput{
		Description: "Groceries", Type: models.TaskTypeCostTracker, PenaltyPoints: 35, AssignedTo: "kid1",
	})
	_, _ = svc.CheckOff(ctx, member, task.ID)
	_, err := svc.Approve(ctx, steward, task.ID)
	assert.NoError(t, err)
	assert.Empty(t, points.calls)
}

func TestApprove_UpdateFailureBlocksAward(t *testing.T) {
	svc, tasks, _, points := setupService(t)
	ctx := context.Background()

	task, _ := svc.CreateTask(ctx, steward, CreateTaskInput{
		Description: "Dishes", Type: models.TaskTypeRegular, Points: 10, AssignedTo: "kid1",
	})
	_, _ = svc.CheckOff(ctx, member, task.ID)

	tasks.failUpdate = true
	_, err := svc.Approve(ctx, steward, task.ID)
	assert.Error(t, err)
	assert.Empty(t, points.calls)
}

func TestReject_DeductsPenalty(t *testing.T) {
	svc, _, _, points := setupService(t)
	ctx := context.Background()
	points.balances["kid1"] = 50

	task, _ := svc.CreateTask(ctx, steward, CreateTaskInput{
		Description: "Dishes", Type: models.TaskTypeRegular, Points: 10, PenaltyPoints: 5, AssignedTo: "kid1",
	})
	_, _ = svc.CheckOff(ctx, member, task.ID)

	rejected, err := svc.Reject(ctx, steward, task.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, rejected.Status)
	assert.Equal(t, 45, points.balances["kid1"])
}

func TestApprove_RepeatingSpawnsNext(t *testing.T) {
	svc, tasks, _, _ := setupService(t)
	ctx := context.Background()

	due := time.Now().AddDate(0, 0, 2).Truncate(time.Second)
	task, _ := svc.CreateTask(ctx, steward, CreateTaskInput{
		Description: "Take out trash", Type: models.TaskTypeRegular, Points: 5,
		DueDate: &due, IsRepeating: true, RepeatInterval: models.RepeatWeekly, AssignedTo: "kid1",
	})
	_, _ = svc.CheckOff(ctx, member, task.ID)
	_, err := svc.Approve(ctx, steward, task.ID)
	assert.NoError(t, err)

	listed, _ := svc.ListTasks(ctx, models.TaskStatusTodo, "", "kid1")
	assert.Len(t, listed, 1)
	child := listed[0]
	assert.True(t, child.IsRepeating)
	assert.Equal(t, due.AddDate(0, 0, 7), child.DueDate.Truncate(time.Second))
	assert.NotEqual(t, task.ID, child.ID)
	assert.Len(t, tasks.tasks, 2)
}

func TestAdvanceDue(t *testing.T) {
	due := time.Date(2026, 1, 31, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, due.AddDate(0, 0, 1), advanceDue(due, models.RepeatDaily))
	assert.Equal(t, due.AddDate(0, 0, 7), advanceDue(due, models.RepeatWeekly))
	assert.Equal(t, due.AddDate(0, 1, 0), advanceDue(due, models.RepeatMonthly))
}

func TestIssueDemerit_DeductsImmediately(t *testing.T) {
	svc, _, _, points := setupService(t)
	ctx := context.Background()
	points.balances["kid1"] = 30

	demerit, err := svc.IssueDemerit(ctx, steward, IssueDemeritInput{
		Description: "Left lights on", PenaltyPoints: 10, AssignedTo: "kid1",
	})
	assert.NoError(t, err)
	assert.Equal(t, models.TaskStatusDemeritIssued, demerit.Status)
	assert.Equal(t, models.TaskTypeDemerit, demerit.Type)
	assert.Equal(t, 20, points.balances["kid1"])
}

func TestIssueDemerit_Validation(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.IssueDemerit(ctx, steward, IssueDemeritInput{Description: "x", PenaltyPoints: 0, AssignedTo: "kid1"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.IssueDemerit(ctx, steward, IssueDemeritInput{Description: "", PenaltyPoints: 5, AssignedTo: "kid1"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDemerit_CannotBeCheckedOffOrApproved(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	demerit, _ := svc.IssueDemerit(ctx, steward, IssueDemeritInput{
		Description: "Left lights on", PenaltyPoints: 10, AssignedTo: "kid1",
	})

	_, err := svc.CheckOff(ctx, member, demerit.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.Approve(ctx, steward, demerit.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAcceptDemerit(t *testing.T) {
	svc, _, _, points := setupService(t)
	ctx := context.Background()
	points.balances["kid1"] = 30

	demerit, _ := svc.IssueDemerit(ctx, steward, IssueDemeritInput{
		Description: "Left lights on", PenaltyPoints: 10, AssignedTo: "kid1",
	})

	accepted, err := svc.AcceptDemerit(ctx, member, demerit.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.TaskStatusDemeritAccepted, accepted.Status)
	// Acceptance itself moves no points.
	assert.Equal(t, 20, points.balances["kid1"])

	// Acceptance closes the appeal window.
	_, err = svc.FileAppeal(ctx, member, demerit.ID, "unfair")
	assert.ErrorIs(t, err, ErrAppealWindowClosed)
}

func TestFileAppeal_BlocksAcceptWhilePending(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	demerit, _ := svc.IssueDemerit(ctx, steward, IssueDemeritInput{
		Description: "Left lights on", PenaltyPoints: 10, AssignedTo: "kid1",
	})

	appealed, err := svc.FileAppeal(ctx, member, demerit.ID, "The lights were needed")
	assert.NoError(t, err)
	assert.Equal(t, models.AppealStatusPending, appealed.AppealStatus)

	_, err = svc.AcceptDemerit(ctx, member, demerit.ID)
	assert.ErrorIs(t, err, ErrConflict)

	// Only one appeal per demerit.
	_, err = svc.FileAppeal(ctx, member, demerit.ID, "again")
	assert.ErrorIs(t, err, ErrAppealWindowClosed)
}

func TestReviewAppeal_ApproveRestoresPenalty(t *testing.T) {
	svc, _, _, points := setupService(t)
	ctx := context.Background()
	points.balances["kid1"] = 30

	demerit, _ := svc.IssueDemerit(ctx, steward, IssueDemeritInput{
		Description: "Left lights on", PenaltyPoints: 10, AssignedTo: "kid1",
	})
	_, _ = svc.FileAppeal(ctx, member, demerit.ID, "The lights were needed")

	reviewed, err := svc.ReviewAppeal(ctx, steward, demerit.ID, true)
	assert.NoError(t, err)
	assert.Equal(t, models.AppealStatusApproved, reviewed.AppealStatus)
	assert.Equal(t, 30, points.balances["kid1"])
}

func TestReviewAppeal_DenyDoublesPenalty(t *testing.T) {
	svc, _, _, points := setupService(t)
	ctx := context.Background()
	points.balances["kid1"] = 100

	demerit, _ := svc.IssueDemerit(ctx, steward, IssueDemeritInput{
		Description: "Left lights on", PenaltyPoints: 10, AssignedTo: "kid1",
	})
	// 100 - 10 at issuance.
	assert.Equal(t, 90, points.balances["kid1"])

	_, _ = svc.FileAppeal(ctx, member, demerit.ID, "The lights were needed")
	reviewed, err := svc.ReviewAppeal(ctx, steward, demerit.ID, false)
	assert.NoError(t, err)
	assert.Equal(t, models.AppealStatusDenied, reviewed.AppealStatus)
	// Denial deducts 2x on top: 90 - 20.
	assert.Equal(t, 70, points.balances["kid1"])

	// A settled appeal cannot be reviewed again.
	_, err = svc.ReviewAppeal(ctx, steward, demerit.ID, false)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSweepOverdue_Idempotent(t *testing.T) {
	svc, tasks, _, points := setupService(t)
	ctx := context.Background()
	points.balances["kid1"] = 50

	past := time.Now().Add(-time.Hour)
	overdue := &models.Task{
		Description: "Dishes", Type: models.TaskTypeRegular, Status: models.TaskStatusTodo,
		Points: 10, PenaltyPoints: 5, DueDate: &past, AssignedTo: "kid1", CreatedBy: "mom",
	}
	assert.NoError(t, tasks.Create(ctx, overdue))

	applied, err := svc.SweepOverdue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 45, points.balances["kid1"])

	flagged, _ := tasks.GetByID(ctx, overdue.ID)
	assert.True(t, flagged.IsOverdue)

	// Second sweep finds nothing new.
	applied, err = svc.SweepOverdue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, 45, points.balances["kid1"])
}

func TestSweepOverdue_SkipsTerminalAndFuture(t *testing.T) {
	svc, tasks, _, points := setupService(t)
	ctx := context.Background()
	points.balances["kid1"] = 50

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	_ = tasks.Create(ctx, &models.Task{
		Description: "done already", Type: models.TaskTypeRegular, Status: models.TaskStatusCompleted,
		PenaltyPoints: 5, DueDate: &past, AssignedTo: "kid1",
	})
	_ = tasks.Create(ctx, &models.Task{
		Description: "not due yet", Type: models.TaskTypeRegular, Status: models.TaskStatusTodo,
		PenaltyPoints: 5, DueDate: &future, AssignedTo: "kid1",
	})

	applied, err := svc.SweepOverdue(ctx, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, 50, points.balances["kid1"])
}

func TestCreateSuggestion(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	suggestion, err := svc.CreateSuggestion(ctx, member, CreateSuggestionInput{
		Description: "Wash the car", Justification: "It is filthy", SuggestedPoints: 20,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusPending, suggestion.Status)
	assert.Equal(t, "kid1", suggestion.SuggestedBy)
}

func TestReviewSuggestion_ApproveSpawnsTask(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	suggestion, _ := svc.CreateSuggestion(ctx, member, CreateSuggestionInput{
		Description: "Wash the car", SuggestedPoints: 20, SuggestedDueDate: futureDate(3),
	})

	reviewed, task, err := svc.ReviewSuggestion(ctx, steward, suggestion.ID, true)
	assert.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusApproved, reviewed.Status)
	assert.NotNil(t, task)
	assert.Equal(t, 20, task.Points)
	assert.Equal(t, 10, task.PenaltyPoints) // half the points
	assert.Equal(t, "kid1", task.AssignedTo)
	assert.Equal(t, models.TaskStatusTodo, task.Status)

	// Reviewed suggestions are immutable.
	_, _, err = svc.ReviewSuggestion(ctx, steward, suggestion.ID, false)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReviewSuggestion_RejectSpawnsNothing(t *testing.T) {
	svc, tasks, _, _ := setupService(t)
	ctx := context.Background()

	suggestion, _ := svc.CreateSuggestion(ctx, member, CreateSuggestionInput{
		Description: "Wash the car", SuggestedPoints: 20,
	})

	reviewed, task, err := svc.ReviewSuggestion(ctx, steward, suggestion.ID, false)
	assert.NoError(t, err)
	assert.Equal(t, models.SuggestionStatusRejected, reviewed.Status)
	assert.Nil(t, task)
	assert.Empty(t, tasks.tasks)
}

func TestReviewSuggestion_RollsBackTaskOnUpdateFailure(t *testing.T) {
	svc, tasks, suggestions, _ := setupService(t)
	ctx := context.Background()

	suggestion, _ := svc.CreateSuggestion(ctx, member, CreateSuggestionInput{
		Description: "Wash the car", SuggestedPoints: 20,
	})

	suggestions.failUpdate = true
	_, _, err := svc.ReviewSuggestion(ctx, steward, suggestion.ID, true)
	assert.Error(t, err)
	assert.Empty(t, tasks.tasks)
}
