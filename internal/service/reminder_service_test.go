package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"task-manager/internal/model"
)

type listStore struct {
	stubTasks
	tasks []model.Task
}

func (l *listStore) ListWithCategory(context.Context, string) ([]model.Task, error) {
	return l.tasks, l.err
}

func TestDailySummary(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }
	desc := "2 litres <fresh>"

	store := &listStore{tasks: []model.Task{
		{Title: "Someday", Status: model.StatusTodo, Priority: model.PriorityLow},
		{Title: "Pay rent", Status: model.StatusInProgress, Priority: model.PriorityUrgent, DueDate: at(-2 * time.Hour)},
		{Title: "Buy milk", Status: model.StatusTodo, Priority: model.PriorityHigh, DueDate: at(24 * time.Hour), Description: &desc,
			Category: &model.Category{Name: "Errands"}},
		{Title: "Plan trip", Status: model.StatusTodo, Priority: model.PriorityMedium, DueDate: at(10 * 24 * time.Hour)},
		{Title: "Filed taxes", Status: model.StatusCompleted, CompletedAt: at(-3 * time.Hour)},
		{Title: "Old news", Status: model.StatusCompleted, CompletedAt: at(-72 * time.Hour)},
		{Title: "Dropped", Status: model.StatusCancelled},
	}}

	summary, err := NewReminderService(store).DailySummary(context.Background(), "u1", now)
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}

	order := []string{"⚠️ Pay rent", "⏳ Buy milk", "🟢 Plan trip", "🟢 Someday", "✔️ Filed taxes"}
	last := -1
	for _, want := range order {
		idx := strings.Index(summary, want)
		if idx < 0 {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
		if idx < last {
			t.Errorf("%q out of order:\n%s", want, summary)
		}
		last = idx
	}
	for _, absent := range []string{"Old news", "Dropped"} {
		if strings.Contains(summary, absent) {
			t.Errorf("summary should not mention %q", absent)
		}
	}
	for _, want := range []string{"<i>(Errands)</i>", "<b>[urgent]</b>", "<b>overdue</b>", "2 litres &lt;fresh&gt;", "2026-03-10"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestDailySummaryEmptyAndFailure(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	summary, err := NewReminderService(&listStore{}).DailySummary(context.Background(), "u1", now)
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}
	if !strings.Contains(summary, "nothing open") {
		t.Errorf("summary = %q", summary)
	}

	boom := errors.New("boom")
	failing := &listStore{}
	failing.err = boom
	if _, err := NewReminderService(failing).DailySummary(context.Background(), "u1", now); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}
