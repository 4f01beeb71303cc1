package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hholt/choreboard/internal/auth"
	"github.com/hholt/choreboard/internal/metrics"
	"github.com/hholt/choreboard/internal/models"
	"github.com/hholt/choreboard/internal/repository"
	"github.com/hholt/choreboard/pkg/logger"
)

// TaskStore is the task persistence the state machine needs.
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uint) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, status, taskType, assignedTo string) ([]models.Task, error)
	ListOverdueCandidates(ctx context.Context, now time.Time) ([]models.Task, error)
}

// SuggestionStore is the suggestion persistence the state machine needs.
type SuggestionStore interface {
	Create(ctx context.Context, suggestion *models.Suggestion) error
	GetByID(ctx context.Context, id uint) (*models.Suggestion, error)
	Update(ctx context.Context, suggestion *models.Suggestion) error
	List(ctx context.Context, status string) ([]models.Suggestion, error)
}

// PointsApplier is the accumulator surface used by transitions.
type PointsApplier interface {
	Apply(ctx context.Context, username string, amount int, op Operation) (int, error)
	Balance(ctx context.Context, username string) (int, error)
}

// Authorizer answers capability checks for an actor.
type Authorizer interface {
	Can(actor auth.Actor, capability string) bool
}

// Service enforces legal status transitions per task and appeal type
// and triggers the matching points operation as a side effect. A
// persistence failure aborts the transition before any points
// mutation reaches the store.
type Service struct {
	tasks       TaskStore
	suggestions SuggestionStore
	points      PointsApplier
	authz       Authorizer
	log         *logger.Logger
}

// NewService creates a new ledger service.
func NewService(
	tasks *repository.TaskRepository,
	suggestions *repository.SuggestionRepository,
	points *Accumulator,
	authz Authorizer,
	log *logger.Logger,
) *Service {
	return &Service{tasks: tasks, suggestions: suggestions, points: points, authz: authz, log: log}
}

// NewServiceWithInterfaces creates a ledger service with interface
// dependencies (useful for testing).
func NewServiceWithInterfaces(
	tasks TaskStore,
	suggestions SuggestionStore,
	points PointsApplier,
	authz Authorizer,
	log *logger.Logger,
) *Service {
	return &Service{tasks: tasks, suggestions: suggestions, points: points, authz: authz, log: log}
}

// CreateTaskInput carries the fields a new task is created from.
type CreateTaskInput struct {
	Description    string
	Type           string
	Points         int
	PenaltyPoints  int
	DueDate        *time.Time
	IsRepeating    bool
	RepeatInterval string
	AssignedTo     string
}

func (in *CreateTaskInput) validate(now time.Time) error {
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("%w: description must not be empty", ErrValidation)
	}
	switch in.Type {
	case models.TaskTypeRegular, models.TaskTypeCostTracker, models.TaskTypeSpiral:
	default:
		return fmt.Errorf("%w: invalid task type %q", ErrValidation, in.Type)
	}
	if in.Points < 0 || in.PenaltyPoints < 0 {
		return fmt.Errorf("%w: points must not be negative", ErrValidation)
	}
	if in.AssignedTo == "" {
		return fmt.Errorf("%w: task must be assigned to a user", ErrValidation)
	}
	if in.DueDate != nil && in.DueDate.Before(now) {
		return fmt.Errorf("%w: due date must not be in the past", ErrValidation)
	}
	if in.IsRepeating {
		if in.DueDate == nil {
			return fmt.Errorf("%w: repeating tasks need a due date", ErrValidation)
		}
		switch in.RepeatInterval {
		case models.RepeatDaily, models.RepeatWeekly, models.RepeatMonthly:
		default:
			return fmt.Errorf("%w: invalid repeat interval %q", ErrValidation, in.RepeatInterval)
		}
	}
	return nil
}

// CreateTask creates a regular (or cost-tracker/spiral) task in todo.
// Demerits are issued through IssueDemerit.
func (s *Service) CreateTask(ctx context.Context, actor auth.Actor, in CreateTaskInput) (*models.Task, error) {
	if !s.authz.Can(actor, auth.CapTaskCreate) {
		return nil, fmt.Errorf("%w: %s may not create tasks", ErrPermissionDenied, actor.Role)
	}
	if err := in.validate(time.Now()); err != nil {
		return nil, err
	}

	task := &models.Task{
		Description:    in.Description,
		Type:           in.Type,
		Status:         models.TaskStatusTodo,
		Points:         in.Points,
		PenaltyPoints:  in.PenaltyPoints,
		DueDate:        in.DueDate,
		IsRepeating:    in.IsRepeating,
		RepeatInterval: in.RepeatInterval,
		CreatedBy:      actor.Username,
		AssignedTo:     in.AssignedTo,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	metrics.RecordTaskTransition(task.Type, "create", task.Status)
	s.log.Info().Uint("task_id", task.ID).Str("type", task.Type).Str("assigned_to", task.AssignedTo).Msg("Task created")
	return task, nil
}

// CheckOff moves a todo task to pending_approval. Only the assignee
// may check a task off; an overdue flag does not block it.
func (s *Service) CheckOff(ctx context.Context, actor auth.Actor, taskID uint) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.AssignedTo != actor.Username {
		return nil, fmt.Errorf("%w: only the assignee may check off a task", ErrPermissionDenied)
	}
	if task.IsDemerit() {
		return nil, fmt.Errorf("%w: demerits cannot be checked off", ErrConflict)
	}
	if task.Status != models.TaskStatusTodo {
		return nil, fmt.Errorf("%w: task %d is %s, expected todo", ErrConflict, task.ID, task.Status)
	}

	now := time.Now()
	task.Status = models.TaskStatusPendingApproval
	task.CompletedBy = actor.Username
	task.CompletedAt = &now
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	metrics.RecordTaskTransition(task.Type, "checkoff", task.Status)
	return task, nil
}

// Approve completes a pending task. Regular tasks award their points
// to the completer exactly once, here. A repeating task additionally
// spawns its next occurrence.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, taskID uint) (*models.Task, error) {
	if !s.authz.Can(actor, auth.CapTaskApprove) {
		return nil, fmt.Errorf("%w: %s may not approve tasks", ErrPermissionDenied, actor.Role)
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.IsDemerit() {
		return nil, fmt.Errorf("%w: demerits cannot be completed", ErrConflict)
	}
	if task.Status != models.TaskStatusPendingApproval {
		return nil, fmt.Errorf("%w: task %d is %s, expected pending_approval", ErrConflict, task.ID, task.Status)
	}

	now := time.Now()
	task.Status = models.TaskStatusCompleted
	task.ApprovedBy = actor.Username
	task.ApprovedAt = &now
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	if task.Type == models.TaskTypeRegular && task.Points > 0 {
		if _, err := s.points.Apply(ctx, task.CompletedBy, task.Points, OpAdd); err != nil {
			return nil, fmt.Errorf("task approved but points award failed: %w", err)
		}
	}

	if task.IsRepeating {
		if err := s.spawnRepeat(ctx, actor, task); err != nil {
			s.log.Error().Err(err).Uint("task_id", task.ID).Msg("Failed to spawn repeating task")
		}
	}

	metrics.RecordTaskTransition(task.Type, "approve", task.Status)
	s.log.Info().Uint("task_id", task.ID).Str("approved_by", actor.Username).Msg("Task approved")
	return task, nil
}

// Reject fails a pending task and deducts the penalty from the
// completer.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, taskID uint) (*models.Task, error) {
	if !s.authz.Can(actor, auth.CapTaskApprove) {
		return nil, fmt.Errorf("%w: %s may not reject tasks", ErrPermissionDenied, actor.Role)
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusPendingApproval {
		return nil, fmt.Errorf("%w: task %d is %s, expected pending_approval", ErrConflict, task.ID, task.Status)
	}

	now := time.Now()
	task.Status = models.TaskStatusFailed
	task.RejectedBy = actor.Username
	task.RejectedAt = &now
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	if task.PenaltyPoints > 0 {
		if _, err := s.points.Apply(ctx, task.CompletedBy, task.PenaltyPoints, OpSubtract); err != nil {
			return nil, fmt.Errorf("task rejected but penalty failed: %w", err)
		}
	}

	metrics.RecordTaskTransition(task.Type, "reject", task.Status)
	return task, nil
}

// DeleteTask removes a task entirely. Deletion is the only way out of
// a terminal state.
func (s *Service) DeleteTask(ctx context.Context, actor auth.Actor, taskID uint) error {
	if !s.authz.Can(actor, auth.CapTaskDelete) {
		return fmt.Errorf("%w: %s may not delete tasks", ErrPermissionDenied, actor.Role)
	}
	return s.tasks.Delete(ctx, taskID)
}

// ListTasks lists tasks with optional filters.
func (s *Service) ListTasks(ctx context.Context, status, taskType, assignedTo string) ([]models.Task, error) {
	return s.tasks.List(ctx, status, taskType, assignedTo)
}

// GetTask retrieves one task.
func (s *Service) GetTask(ctx context.Context, taskID uint) (*models.Task, error) {
	return s.tasks.GetByID(ctx, taskID)
}

// IssueDemeritInput carries the fields a demerit is issued from.
type IssueDemeritInput struct {
	Description   string
	PenaltyPoints int
	AssignedTo    string
}

// IssueDemerit creates a demerit task and immediately deducts its
// penalty from the assignee.
func (s *Service) IssueDemerit(ctx context.Context, actor auth.Actor, in IssueDemeritInput) (*models.Task, error) {
	if !s.authz.Can(actor, auth.CapDemeritIssue) {
		return nil, fmt.Errorf("%w: %s may not issue demerits", ErrPermissionDenied, actor.Role)
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("%w: description must not be empty", ErrValidation)
	}
	if in.PenaltyPoints <= 0 {
		return nil, fmt.Errorf("%w: demerit penalty must be positive", ErrValidation)
	}
	if in.AssignedTo == "" {
		return nil, fmt.Errorf("%w: demerit must be assigned to a user", ErrValidation)
	}

	task := &models.Task{
		Description:   in.Description,
		Type:          models.TaskTypeDemerit,
		Status:        models.TaskStatusDemeritIssued,
		PenaltyPoints: in.PenaltyPoints,
		CreatedBy:     actor.Username,
		AssignedTo:    in.AssignedTo,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	if _, err := s.points.Apply(ctx, in.AssignedTo, in.PenaltyPoints, OpSubtract); err != nil {
		return nil, fmt.Errorf("demerit issued but penalty failed: %w", err)
	}

	metrics.RecordTaskTransition(task.Type, "issue", task.Status)
	s.log.Info().Uint("task_id", task.ID).Str("assigned_to", task.AssignedTo).Int("penalty", in.PenaltyPoints).Msg("Demerit issued")
	return task, nil
}

// AcceptDemerit marks an issued demerit as accepted, closing the
// appeal window. No points change.
func (s *Service) AcceptDemerit(ctx context.Context, actor auth.Actor, taskID uint) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.AssignedTo != actor.Username {
		return nil, fmt.Errorf("%w: only the assignee may accept a demerit", ErrPermissionDenied)
	}
	if !task.IsDemerit() || task.Status != models.TaskStatusDemeritIssued {
		return nil, fmt.Errorf("%w: task %d is not an open demerit", ErrConflict, task.ID)
	}
	if task.AppealStatus == models.AppealStatusPending {
		return nil, fmt.Errorf("%w: an appeal is pending on task %d", ErrConflict, task.ID)
	}

	task.Status = models.TaskStatusDemeritAccepted
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	metrics.RecordTaskTransition(task.Type, "accept", task.Status)
	return task, nil
}

// FileAppeal opens an appeal on an issued demerit. Acceptance closes
// the window, and only one appeal is allowed per demerit.
func (s *Service) FileAppeal(ctx context.Context, actor auth.Actor, taskID uint, text string) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.AssignedTo != actor.Username {
		return nil, fmt.Errorf("%w: only the assignee may appeal a demerit", ErrPermissionDenied)
	}
	if !task.IsDemerit() {
		return nil, fmt.Errorf("%w: task %d is not a demerit", ErrConflict, task.ID)
	}
	if task.Status == models.TaskStatusDemeritAccepted {
		return nil, fmt.Errorf("%w: demerit %d was already accepted", ErrAppealWindowClosed, task.ID)
	}
	if task.AppealStatus != "" {
		return nil, fmt.Errorf("%w: demerit %d was already appealed", ErrAppealWindowClosed, task.ID)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: appeal text must not be empty", ErrValidation)
	}

	now := time.Now()
	task.AppealStatus = models.AppealStatusPending
	task.AppealText = text
	task.AppealedAt = &now
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	metrics.RecordTaskTransition(task.Type, "appeal", task.Status)
	return task, nil
}

// ReviewAppeal resolves a pending appeal. Approval restores the
// original penalty; denial deducts double the penalty on top of the
// amount already lost at issuance.
func (s *Service) ReviewAppeal(ctx context.Context, actor auth.Actor, taskID uint, approve bool) (*models.Task, error) {
	if !s.authz.Can(actor, auth.CapAppealReview) {
		return nil, fmt.Errorf("%w: %s may not review appeals", ErrPermissionDenied, actor.Role)
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.AppealStatus != models.AppealStatusPending {
		return nil, fmt.Errorf("%w: task %d has no pending appeal", ErrConflict, task.ID)
	}

	now := time.Now()
	event := "appeal_deny"
	if approve {
		task.AppealStatus = models.AppealStatusApproved
		event = "appeal_approve"
	} else {
		task.AppealStatus = models.AppealStatusDenied
	}
	task.AppealReviewedBy = actor.Username
	task.AppealReviewedAt = &now
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}

	if approve {
		if _, err := s.points.Apply(ctx, task.AssignedTo, task.PenaltyPoints, OpAdd); err != nil {
			return nil, fmt.Errorf("appeal approved but restore failed: %w", err)
		}
	} else {
		if _, err := s.points.Apply(ctx, task.AssignedTo, task.PenaltyPoints*2, OpSubtract); err != nil {
			return nil, fmt.Errorf("appeal denied but penalty failed: %w", err)
		}
	}

	metrics.RecordTaskTransition(task.Type, event, task.Status)
	s.log.Info().Uint("task_id", task.ID).Bool("approved", approve).Str("reviewed_by", actor.Username).Msg("Appeal reviewed")
	return task, nil
}

// SweepOverdue flags newly overdue tasks and applies each penalty at
// most once. Individual failures are logged and skipped so one bad
// row cannot stall the sweep. Returns the number of penalties applied.
func (s *Service) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.tasks.ListOverdueCandidates(ctx, now)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range candidates {
		task := &candidates[i]
		task.IsOverdue = true
		if err := s.tasks.Update(ctx, task); err != nil {
			s.log.Error().Err(err).Uint("task_id", task.ID).Msg("Failed to flag overdue task")
			continue
		}
		if task.PenaltyPoints > 0 {
			if _, err := s.points.Apply(ctx, task.AssignedTo, task.PenaltyPoints, OpSubtract); err != nil {
				s.log.Error().Err(err).Uint("task_id", task.ID).Msg("Failed to apply overdue penalty")
				continue
			}
		}
		metrics.RecordOverduePenalty()
		applied++
	}
	return applied, nil
}

// CreateSuggestionInput carries the fields a suggestion is made from.
type CreateSuggestionInput struct {
	Description      string
	Justification    string
	SuggestedPoints  int
	SuggestedDueDate *time.Time
}

// CreateSuggestion files a proposed task for steward review.
func (s *Service) CreateSuggestion(ctx context.Context, actor auth.Actor, in CreateSuggestionInput) (*models.Suggestion, error) {
	if !s.authz.Can(actor, auth.CapSuggestionCreate) {
		return nil, fmt.Errorf("%w: %s may not file suggestions", ErrPermissionDenied, actor.Role)
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("%w: description must not be empty", ErrValidation)
	}
	if in.SuggestedPoints < 0 {
		return nil, fmt.Errorf("%w: suggested points must not be negative", ErrValidation)
	}

	suggestion := &models.Suggestion{
		Description:      in.Description,
		Justification:    in.Justification,
		SuggestedPoints:  in.SuggestedPoints,
		SuggestedDueDate: in.SuggestedDueDate,
		SuggestedBy:      actor.Username,
		Status:           models.SuggestionStatusPending,
	}
	if err := s.suggestions.Create(ctx, suggestion); err != nil {
		return nil, err
	}
	return suggestion, nil
}

// ReviewSuggestion resolves a pending suggestion. Approval spawns a
// regular task copying the suggested points and due date, with a
// penalty of half the points. Suggestions are immutable once reviewed.
func (s *Service) ReviewSuggestion(ctx context.Context, actor auth.Actor, suggestionID uint, approve bool) (*models.Suggestion, *models.Task, error) {
	if !s.authz.Can(actor, auth.CapSuggestionReview) {
		return nil, nil, fmt.Errorf("%w: %s may not review suggestions", ErrPermissionDenied, actor.Role)
	}
	suggestion, err := s.suggestions.GetByID(ctx, suggestionID)
	if err != nil {
		return nil, nil, err
	}
	if suggestion.IsReviewed() {
		return nil, nil, fmt.Errorf("%w: suggestion %d was already reviewed", ErrConflict, suggestion.ID)
	}

	now := time.Now()
	var task *models.Task
	if approve {
		task = &models.Task{
			Description:   suggestion.Description,
			Type:          models.TaskTypeRegular,
			Status:        models.TaskStatusTodo,
			Points:        suggestion.SuggestedPoints,
			PenaltyPoints: suggestion.SuggestedPoints / 2,
			DueDate:       suggestion.SuggestedDueDate,
			CreatedBy:     actor.Username,
			AssignedTo:    suggestion.SuggestedBy,
		}
		if err := s.tasks.Create(ctx, task); err != nil {
			return nil, nil, err
		}
		suggestion.Status = models.SuggestionStatusApproved
	} else {
		suggestion.Status = models.SuggestionStatusRejected
	}
	suggestion.ReviewedBy = actor.Username
	suggestion.ReviewedAt = &now

	if err := s.suggestions.Update(ctx, suggestion); err != nil {
		// Roll the spawned task back so approval stays atomic.
		if task != nil {
			if delErr := s.tasks.Delete(ctx, task.ID); delErr != nil {
				s.log.Error().Err(delErr).Uint("task_id", task.ID).Msg("Failed to roll back spawned task")
			}
		}
		return nil, nil, err
	}

	s.log.Info().Uint("suggestion_id", suggestion.ID).Bool("approved", approve).Str("reviewed_by", actor.Username).Msg("Suggestion reviewed")
	return suggestion, task, nil
}

// ListSuggestions lists suggestions, optionally filtered by status.
func (s *Service) ListSuggestions(ctx context.Context, status string) ([]models.Suggestion, error) {
	return s.suggestions.List(ctx, status)
}

// spawnRepeat creates the next occurrence of a repeating task.
func (s *Service) spawnRepeat(ctx context.Context, actor auth.Actor, task *models.Task) error {
	if task.DueDate == nil {
		return fmt.Errorf("repeating task %d has no due date", task.ID)
	}
	next := advanceDue(*task.DueDate, task.RepeatInterval)
	child := &models.Task{
		Description:    task.Description,
		Type:           task.Type,
		Status:         models.TaskStatusTodo,
		Points:         task.Points,
		PenaltyPoints:  task.PenaltyPoints,
		DueDate:        &next,
		IsRepeating:    true,
		RepeatInterval: task.RepeatInterval,
		CreatedBy:      actor.Username,
		AssignedTo:     task.AssignedTo,
	}
	if err := s.tasks.Create(ctx, child); err != nil {
		return err
	}
	metrics.RecordTaskTransition(child.Type, "respawn", child.Status)
	return nil
}

// advanceDue moves a due date forward by one repeat interval.
func advanceDue(due time.Time, interval string) time.Time {
	switch interval {
	case models.RepeatDaily:
		return due.AddDate(0, 0, 1)
	case models.RepeatWeekly:
		return due.AddDate(0, 0, 7)
	case models.RepeatMonthly:
		return due.AddDate(0, 1, 0)
	}
	return due
}
