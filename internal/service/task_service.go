package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"task-manager/internal/auth"
	"task-manager/internal/logging"
	"task-manager/internal/model"
	"task-manager/internal/repository"
	"task-manager/internal/validation"
)

// TaskStore is the task persistence used by the services.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	ListWithCategory(ctx context.Context, userID string) ([]model.Task, error)
	FindByID(ctx context.Context, userID, taskID string) (*model.Task, error)
	Update(ctx context.Context, userID, taskID string, changes map[string]interface{}) (*model.Task, error)
	Delete(ctx context.Context, userID, taskID string) error
}

// CategoryStore is the category persistence used by the services.
type CategoryStore interface {
	Create(ctx context.Context, category *model.Category) error
	ListByUser(ctx context.Context, userID string) ([]model.Category, error)
	FindOwned(ctx context.Context, userID, categoryID string) (*model.Category, error)
	FindByName(ctx context.Context, userID, name string) (*model.Category, error)
}

// TaskService wraps task-related business logic. Every operation reads the
// caller from ctx and touches only that caller's rows.
type TaskService struct {
	tasks      TaskStore
	categories CategoryStore
	views      Revalidator
	logger     *log.Logger
	now        func() time.Time
}

func NewTaskService(tasks TaskStore, categories CategoryStore, views Revalidator, logger *log.Logger) *TaskService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &TaskService{
		tasks:      tasks,
		categories: categories,
		views:      views,
		logger:     logger.With("component", "tasks"),
		now:        time.Now,
	}
}

func (s *TaskService) CreateTask(ctx context.Context, input validation.TaskInput) (_ *model.Task, err error) {
	op := opCreateTask
	defer recoverOp(s.logger, op, &err)

	userID, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, op.unauthorizedErr()
	}

	now := s.now()
	form, fields := validation.ValidateTask(input, now)
	if fields != nil {
		return nil, op.invalid(fields)
	}
	if err := s.checkCategory(ctx, op, userID, form.CategoryID); err != nil {
		return nil, err
	}

	// Every timestamp on a task comes from the service clock.
	task := model.Task{
		UserID:      userID,
		CategoryID:  form.CategoryID,
		Title:       form.Title,
		Description: form.Description,
		Priority:    form.Priority,
		DueDate:     form.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, s.storeFailure(op, userID, err)
	}

	s.logger.Info("task created", "user_id", userID, "task_id", task.ID)
	revalidate(ctx, s.views, s.logger, userID, PathDashboard)
	return &task, nil
}

// ListTasks returns the caller's tasks newest first with their categories.
func (s *TaskService) ListTasks(ctx context.Context) (_ []model.Task, err error) {
	op := opListTasks
	defer recoverOp(s.logger, op, &err)

	userID, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, op.unauthorizedErr()
	}
	tasks, err := s.tasks.ListWithCategory(ctx, userID)
	if err != nil {
		return nil, s.storeFailure(op, userID, err)
	}
	return tasks, nil
}

func (s *TaskService) GetTask(ctx context.Context, taskID string) (_ *model.Task, err error) {
	op := opGetTask
	defer recoverOp(s.logger, op, &err)

	userID, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, op.unauthorizedErr()
	}
	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, s.storeFailure(op, userID, err)
	}
	return task, nil
}

// UpdateTask replaces the editable fields of a task. Optional fields left
// blank are cleared.
func (s *TaskService) UpdateTask(ctx context.Context, taskID string, input validation.TaskInput) (_ *model.Task, err error) {
	op := opUpdateTask
	defer recoverOp(s.logger, op, &err)

	userID, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, op.unauthorizedErr()
	}

	now := s.now()
	form, fields := validation.ValidateTask(input, now)
	if fields != nil {
		return nil, op.invalid(fields)
	}
	if err := s.checkCategory(ctx, op, userID, form.CategoryID); err != nil {
		return nil, err
	}

	changes := map[string]interface{}{
		"title":       form.Title,
		"description": nullableString(form.Description),
		"category_id": nullableString(form.CategoryID),
		"priority":    form.Priority,
		"due_date":    nullableTime(form.DueDate),
		"updated_at":  now,
	}
	task, err := s.tasks.Update(ctx, userID, taskID, changes)
	if err != nil {
		return nil, s.storeFailure(op, userID, err)
	}

	s.logger.Info("task updated", "user_id", userID, "task_id", taskID)
	revalidate(ctx, s.views, s.logger, userID, PathDashboard, EditTaskPath(taskID))
	return task, nil
}

// UpdateTaskStatus moves a task to status. Completing a task stamps
// completed_at; any other status clears it.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, taskID, status string) (_ *model.Task, err error) {
	op := opSetStatus
	defer recoverOp(s.logger, op, &err)

	userID, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, op.unauthorizedErr()
	}

	next, fields := validation.ValidateStatus(status)
	if fields != nil {
		return nil, op.invalid(fields)
	}

	now := s.now()
	changes := map[string]interface{}{
		"status":       next,
		"completed_at": nil,
		"updated_at":   now,
	}
	if next == model.StatusCompleted {
		changes["completed_at"] = now
	}

	task, err := s.tasks.Update(ctx, userID, taskID, changes)
	if err != nil {
		return nil, s.storeFailure(op, userID, err)
	}

	s.logger.Info("task status changed", "user_id", userID, "task_id", taskID, "status", next)
	revalidate(ctx, s.views, s.logger, userID, PathDashboard, EditTaskPath(taskID))
	return task, nil
}

// DeleteTask removes a task the caller owns. Tasks of other users are
// reported as not found.
func (s *TaskService) DeleteTask(ctx context.Context, taskID string) (err error) {
	op := opDeleteTask
	defer recoverOp(s.logger, op, &err)

	userID, ok := auth.IdentityFrom(ctx)
	if !ok {
		return op.unauthorizedErr()
	}
	if err := s.tasks.Delete(ctx, userID, taskID); err != nil {
		return s.storeFailure(op, userID, err)
	}

	s.logger.Info("task deleted", "user_id", userID, "task_id", taskID)
	revalidate(ctx, s.views, s.logger, userID, PathDashboard, EditTaskPath(taskID))
	return nil
}

// checkCategory confirms categoryID, when given, belongs to userID.
func (s *TaskService) checkCategory(ctx context.Context, op operation, userID string, categoryID *string) error {
	if categoryID == nil {
		return nil
	}
	if _, err := s.categories.FindOwned(ctx, userID, *categoryID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &OpError{Op: op.name, Kind: KindInvalidCategory, Message: msgInvalidCategory, Err: err}
		}
		return s.storeFailure(op, userID, err)
	}
	return nil
}

func (s *TaskService) storeFailure(op operation, userID string, err error) *OpError {
	if errors.Is(err, repository.ErrNotFound) {
		return op.notFound(err)
	}
	s.logger.Error(op.storeFailure, "op", op.name, "user_id", userID, "err", err)
	return op.storeErr(err)
}

// recoverOp must be deferred directly; it turns a panic in the operation
// into an unexpected error.
func recoverOp(logger *log.Logger, op operation, errp *error) {
	if r := recover(); r != nil {
		logger.Error("operation panicked", "op", op.name, "panic", r)
		*errp = op.unexpected(fmt.Errorf("panic: %v", r))
	}
}

func nullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
