package service

import (
	"context"

	"github.com/charmbracelet/log"
)

// Logical views refreshed after a mutation.
const (
	PathDashboard = "/dashboard"
	pathEditTask  = "/tasks/edit/"
)

// EditTaskPath is the single-task view of taskID.
func EditTaskPath(taskID string) string {
	return pathEditTask + taskID
}

// Revalidator marks a user's cached views stale.
type Revalidator interface {
	Revalidate(ctx context.Context, userID string, paths ...string) error
}

// revalidate never fails the caller; a stale view is only logged.
func revalidate(ctx context.Context, views Revalidator, logger *log.Logger, userID string, paths ...string) {
	if views == nil {
		return
	}
	if err := views.Revalidate(ctx, userID, paths...); err != nil {
		logger.Warn("revalidate views", "user_id", userID, "paths", paths, "err", err)
	}
}
