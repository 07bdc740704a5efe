package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"task-manager/internal/model"
)

// nearDue is how close a due date must be to get the hourglass marker.
const nearDue = 48 * time.Hour

// ReminderService builds human-readable summaries for periodic reports.
type ReminderService struct {
	tasks TaskStore
}

func NewReminderService(tasks TaskStore) *ReminderService {
	return &ReminderService{tasks: tasks}
}

// DailySummary renders the open tasks of userID and what was completed in
// the last day, as Telegram HTML.
func (s *ReminderService) DailySummary(ctx context.Context, userID string, now time.Time) (string, error) {
	tasks, err := s.tasks.ListWithCategory(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("daily summary: %w", err)
	}

	var open, done []model.Task
	for _, task := range tasks {
		switch {
		case task.Status.Open():
			open = append(open, task)
		case task.Status == model.StatusCompleted && task.CompletedAt != nil && now.Sub(*task.CompletedAt) <= 24*time.Hour:
			done = append(done, task)
		}
	}
	sortOpen(open)

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily report</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02")))

	builder.WriteString("🔥 <b>Open tasks</b>\n")
	if len(open) == 0 {
		builder.WriteString("— nothing open\n")
	} else {
		for _, task := range open {
			builder.WriteString(formatTask(task, now))
		}
	}

	builder.WriteString("\n✅ <b>Completed in the last 24h</b>\n")
	if len(done) == 0 {
		builder.WriteString("— nothing yet\n")
	} else {
		for _, task := range done {
			builder.WriteString(fmt.Sprintf("✔️ %s\n", html.EscapeString(strings.TrimSpace(task.Title))))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

// sortOpen orders tasks by due date, undated last, then by priority.
func sortOpen(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate == nil && b.DueDate != nil:
			return false
		}
		return a.Priority.Rank() > b.Priority.Rank()
	})
}

func formatTask(task model.Task, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		switch {
		case now.After(d):
			icon = "⚠️"
		case d.Sub(now) <= nearDue:
			icon = "⏳"
		}
	}

	title := html.EscapeString(strings.TrimSpace(task.Title))
	sb.WriteString(fmt.Sprintf("%s %s", icon, title))

	if task.Category != nil {
		if name := strings.TrimSpace(task.Category.Name); name != "" {
			sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(name)))
		}
	}
	if task.Priority == model.PriorityHigh || task.Priority == model.PriorityUrgent {
		sb.WriteString(fmt.Sprintf(" <b>[%s]</b>", task.Priority))
	}
	if task.Status == model.StatusInProgress {
		sb.WriteString(" · in progress")
	}

	if task.DueDate != nil {
		d := task.DueDate.In(now.Location())
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · <b>overdue</b>", d.Format("2006-01-02 15:04")))
		} else {
			daysLeft := int(d.Sub(now).Hours()/24) + 1
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · ≈%d d left", d.Format("2006-01-02 15:04"), daysLeft))
		}
	}

	if task.Description != nil && strings.TrimSpace(*task.Description) != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(*task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}
