package service

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"

	"task-manager/internal/auth"
	"task-manager/internal/logging"
	"task-manager/internal/model"
	"task-manager/internal/repository"
	"task-manager/internal/validation"
)

const msgDuplicateCategory = "A category with this name already exists"

// CategoryService provides helpers around categories.
type CategoryService struct {
	repo   CategoryStore
	views  Revalidator
	logger *log.Logger
}

func NewCategoryService(repo CategoryStore, views Revalidator, logger *log.Logger) *CategoryService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &CategoryService{repo: repo, views: views, logger: logger.With("component", "categories")}
}

// ListCategories returns the caller's categories ordered by name.
func (s *CategoryService) ListCategories(ctx context.Context) (_ []model.Category, err error) {
	op := opListCategories
	defer recoverOp(s.logger, op, &err)

	userID, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, op.unauthorizedErr()
	}
	categories, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error(op.storeFailure, "user_id", userID, "err", err)
		return nil, op.storeErr(err)
	}
	return categories, nil
}

func (s *CategoryService) CreateCategory(ctx context.Context, input validation.CategoryInput) (_ *model.Category, err error) {
	op := opCreateCategory
	defer recoverOp(s.logger, op, &err)

	userID, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, op.unauthorizedErr()
	}
	form, fields := validation.ValidateCategory(input)
	if fields != nil {
		return nil, op.invalid(fields)
	}

	category := model.Category{
		UserID:      userID,
		Name:        form.Name,
		Color:       form.Color,
		Description: form.Description,
	}
	if err := s.repo.Create(ctx, &category); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, op.invalid(validation.FieldErrors{"name": {msgDuplicateCategory}})
		}
		s.logger.Error(op.storeFailure, "user_id", userID, "err", err)
		return nil, op.storeErr(err)
	}

	s.logger.Info("category created", "user_id", userID, "category_id", category.ID)
	revalidate(ctx, s.views, s.logger, userID, PathDashboard)
	return &category, nil
}

// EnsureCategory returns the caller's category called name, creating it
// with the default color when missing. Names match case-insensitively.
func (s *CategoryService) EnsureCategory(ctx context.Context, name string) (*model.Category, error) {
	op := opCreateCategory
	userID, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, op.unauthorizedErr()
	}

	name = strings.TrimSpace(name)
	existing, err := s.repo.FindByName(ctx, userID, name)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		s.logger.Error(op.storeFailure, "user_id", userID, "err", err)
		return nil, op.storeErr(err)
	}
	return s.CreateCategory(ctx, validation.CategoryInput{Name: name})
}
