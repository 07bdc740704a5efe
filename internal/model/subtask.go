package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subtask is a step of a parent task. The schema is migrated but no
// operation reads or writes subtasks yet.
type Subtask struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	TaskID      string     `gorm:"size:36;not null;index" json:"task_id"`
	UserID      string     `gorm:"size:36;not null;index" json:"user_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description *string    `json:"description,omitempty"`
	Status      Status     `gorm:"not null;default:'todo'" json:"status"`
	Priority    Priority   `gorm:"not null;default:'medium'" json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	OrderIndex  int        `gorm:"not null;default:0" json:"order_index"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Task        *Task      `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`
}

func (s *Subtask) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
