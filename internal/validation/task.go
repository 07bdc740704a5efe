package validation

import (
	"strings"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"task-manager/internal/model"
)

const (
	TitleMinLength       = 3
	TitleMaxLength       = 100
	DescriptionMaxLength = 500
)

var taskSchema = jsonschema.MustCompileString("task.json", `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 3, "maxLength": 100},
		"description": {"type": "string", "maxLength": 500},
		"category_id": {"type": "string", "maxLength": 64},
		"priority": {"enum": ["low", "medium", "high", "urgent"]},
		"due_date": {"type": "string"}
	},
	"required": ["title", "priority"]
}`)

var statusSchema = jsonschema.MustCompileString("status.json", `{
	"type": "object",
	"properties": {
		"status": {"enum": ["todo", "in_progress", "completed", "cancelled"]}
	},
	"required": ["status"]
}`)

var taskMessages = messages{
	"title": {
		"minLength": "Title must be at least 3 characters",
		"maxLength": "Title must be at most 100 characters",
		"*":         "Title is required",
	},
	"description": {"*": "Description must be at most 500 characters"},
	"category_id": {"*": "Invalid category"},
	"priority":    {"*": "Priority must be one of low, medium, high, urgent"},
	"due_date":    {"*": "Due date is not a valid date"},
	"status":      {"*": "Status must be one of todo, in_progress, completed, cancelled"},
}

// dueDateLayouts are tried in order when parsing a due date.
var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// TaskInput is the raw shape submitted by a task form.
type TaskInput struct {
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
	CategoryID  string `json:"category_id" form:"category_id"`
	Priority    string `json:"priority" form:"priority"`
	DueDate     string `json:"due_date" form:"due_date"`
}

// Task is a validated, normalized task form.
type Task struct {
	Title       string
	Description *string
	CategoryID  *string
	Priority    model.Priority
	DueDate     *time.Time
}

// ValidateTask checks input against the task rules. A due date must lie
// strictly after now. Blank optional fields become nil.
func ValidateTask(input TaskInput, now time.Time) (Task, FieldErrors) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	categoryID := strings.TrimSpace(input.CategoryID)
	priority := strings.TrimSpace(input.Priority)
	dueRaw := strings.TrimSpace(input.DueDate)

	doc := map[string]interface{}{
		"title":    title,
		"priority": priority,
	}
	if description != "" {
		doc["description"] = description
	}
	if categoryID != "" {
		doc["category_id"] = categoryID
	}
	if dueRaw != "" {
		doc["due_date"] = dueRaw
	}

	errs := FieldErrors{}
	check(taskSchema, doc, taskMessages, errs)
	if title == "" {
		errs["title"] = []string{"Title is required"}
	}

	var due *time.Time
	if dueRaw != "" {
		parsed, ok := ParseDueDate(dueRaw, now.Location())
		switch {
		case !ok:
			errs.Add("due_date", "Due date is not a valid date")
		case !parsed.After(now):
			errs.Add("due_date", "Due date must be in the future")
		default:
			due = &parsed
		}
	}

	if len(errs) > 0 {
		return Task{}, errs
	}

	out := Task{
		Title:    title,
		Priority: model.Priority(priority),
		DueDate:  due,
	}
	if description != "" {
		out.Description = &description
	}
	if categoryID != "" {
		out.CategoryID = &categoryID
	}
	return out, nil
}

// ValidateStatus checks that raw names a known task status.
func ValidateStatus(raw string) (model.Status, FieldErrors) {
	status := strings.TrimSpace(raw)
	errs := FieldErrors{}
	check(statusSchema, map[string]interface{}{"status": status}, taskMessages, errs)
	if len(errs) > 0 {
		return "", errs
	}
	return model.Status(status), nil
}

// ParseDueDate accepts RFC 3339 timestamps, HTML datetime-local values and
// plain dates. Values without a zone are read in loc.
func ParseDueDate(raw string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dueDateLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, raw)
		} else {
			t, err = time.ParseInLocation(layout, raw, loc)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
