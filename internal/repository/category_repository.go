package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"task-manager/internal/model"
)

// ErrDuplicate is returned when a unique constraint rejects a row.
var ErrDuplicate = errors.New("record already exists")

// CategoryRepository manages task categories.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) Create(ctx context.Context, category *model.Category) error {
	if err := r.db.WithContext(ctx).Create(category).Error; err != nil {
		return fmt.Errorf("create category: %w", duplicate(err))
	}
	return nil
}

func (r *CategoryRepository) ListByUser(ctx context.Context, userID string) ([]model.Category, error) {
	var categories []model.Category
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// FindOwned returns the category only if userID owns it.
func (r *CategoryRepository) FindOwned(ctx context.Context, userID, categoryID string) (*model.Category, error) {
	var category model.Category
	err := r.db.WithContext(ctx).Select("id", "user_id", "name", "color").
		Where("user_id = ? AND id = ?", userID, categoryID).
		First(&category).Error
	if err != nil {
		return nil, fmt.Errorf("find category: %w", notFound(err))
	}
	return &category, nil
}

func (r *CategoryRepository) FindByName(ctx context.Context, userID, name string) (*model.Category, error) {
	var category model.Category
	err := r.db.WithContext(ctx).Where("user_id = ? AND LOWER(name) = ?", userID, strings.ToLower(name)).First(&category).Error
	if err != nil {
		return nil, fmt.Errorf("find category: %w", notFound(err))
	}
	return &category, nil
}

func duplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
