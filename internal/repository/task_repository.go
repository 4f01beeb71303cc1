package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hholt/choreboard/internal/changefeed"
	"github.com/hholt/choreboard/internal/models"
)

// TaskRepository handles task-related database operations.
type TaskRepository struct {
	db   *DB
	feed changefeed.Publisher
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *DB, feed changefeed.Publisher) *TaskRepository {
	return &TaskRepository{db: db, feed: feed}
}

// Create inserts a new task. The store assigns the primary key.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	publishChange(ctx, r.feed, changefeed.TableTasks, changefeed.EventInsert, nil, task)
	return nil
}

// GetByID retrieves a task by ID.
func (r *TaskRepository) GetByID(ctx context.Context, id uint) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return &task, nil
}

// Update persists the task and publishes the old/new pair on the feed.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	var old models.Task
	if err := r.db.WithContext(ctx).First(&old, task.ID).Error; err != nil {
		return fmt.Errorf("failed to load task %d for update: %w", task.ID, err)
	}
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("failed to update task %d: %w", task.ID, err)
	}
	publishChange(ctx, r.feed, changefeed.TableTasks, changefeed.EventUpdate, &old, task)
	return nil
}

// Delete removes a task.
func (r *TaskRepository) Delete(ctx context.Context, id uint) error {
	var old models.Task
	if err := r.db.WithContext(ctx).First(&old, id).Error; err != nil {
		return fmt.Errorf("failed to load task %d for delete: %w", id, err)
	}
	if err := r.db.WithContext(ctx).Delete(&models.Task{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	publishChange(ctx, r.feed, changefeed.TableTasks, changefeed.EventDelete, &old, nil)
	return nil
}

// List retrieves tasks with optional filters, newest first.
func (r *TaskRepository) List(ctx context.Context, status, taskType, assignedTo string) ([]models.Task, error) {
	query := r.db.WithContext(ctx).Model(&models.Task{})

	if status != "" {
		query = query.Where("status = ?", status)
	}
	if taskType != "" {
		query = query.Where("type = ?", taskType)
	}
	if assignedTo != "" {
		query = query.Where("assigned_to = ?", assignedTo)
	}

	var tasks []models.Task
	if err := query.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// ListOverdueCandidates retrieves open tasks whose due date has passed
// and whose overdue flag has not fired yet. The sweep applies at most
// one penalty per task off this set.
func (r *TaskRepository) ListOverdueCandidates(ctx context.Context, now time.Time) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.TaskStatusTodo, models.TaskStatusPendingApproval}).
		Where("is_overdue = ?", false).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Order("due_date ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue candidates: %w", err)
	}
	return tasks, nil
}

// ListInvoices retrieves cost-tracker tasks for the CSV export.
func (r *TaskRepository) ListInvoices(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Where("type = ?", models.TaskTypeCostTracker).
		Order("created_at DESC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice tasks: %w", err)
	}
	return tasks, nil
}
