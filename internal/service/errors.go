package service

import (
	"errors"
	"fmt"

	"task-manager/internal/validation"
)

// Kind classifies why an operation failed.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindUnauthorized
	KindInvalidCategory
	KindNotFound
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidCategory:
		return "invalid_category"
	case KindNotFound:
		return "not_found"
	case KindStore:
		return "store"
	default:
		return "unexpected"
	}
}

const (
	msgInvalidForm     = "Invalid form data. Please check your inputs."
	msgInvalidCategory = "Invalid category selected."
	msgTaskNotFound    = "Task not found."
	msgUnexpected      = "An unexpected error occurred. Please try again."
)

// OpError is the failure result of a service operation. Message is safe to
// show to the user; Err holds the underlying cause for logs.
type OpError struct {
	Op      string
	Kind    Kind
	Message string
	Fields  validation.FieldErrors
	Err     error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *OpError) Unwrap() error { return e.Err }

// KindOf reports the kind of err. Errors that are not an *OpError are unexpected.
func KindOf(err error) Kind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindUnexpected
}

// operation names an operation and the messages its failures carry.
type operation struct {
	name         string
	unauthorized string
	storeFailure string
}

var (
	opCreateTask = operation{"create task", "You must be logged in to create a task.", "Failed to create task. Please try again."}
	opListTasks  = operation{"list tasks", "You must be logged in to view tasks.", "Failed to fetch tasks."}
	opGetTask    = operation{"get task", "You must be logged in to view tasks.", "Failed to fetch task."}
	opUpdateTask = operation{"update task", "You must be logged in to update a task.", "Failed to update task. Please try again."}
	opSetStatus  = operation{"update task status", "You must be logged in to update tasks.", "Failed to update task status."}
	opDeleteTask = operation{"delete task", "You must be logged in to delete tasks.", "Failed to delete task."}

	opListCategories = operation{"list categories", "You must be logged in to view categories.", "Failed to fetch categories."}
	opCreateCategory = operation{"create category", "You must be logged in to create a category.", "Failed to create category. Please try again."}

	opRegister = operation{"register", "", "Failed to create account. Please try again."}
	opLogin    = operation{"login", "Invalid email or password.", "Failed to sign in. Please try again."}
)

func (op operation) unauthorizedErr() *OpError {
	return &OpError{Op: op.name, Kind: KindUnauthorized, Message: op.unauthorized}
}

func (op operation) invalid(fields validation.FieldErrors) *OpError {
	return &OpError{Op: op.name, Kind: KindValidation, Message: msgInvalidForm, Fields: fields}
}

func (op operation) storeErr(err error) *OpError {
	return &OpError{Op: op.name, Kind: KindStore, Message: op.storeFailure, Err: err}
}

func (op operation) notFound(err error) *OpError {
	return &OpError{Op: op.name, Kind: KindNotFound, Message: msgTaskNotFound, Err: err}
}

func (op operation) unexpected(err error) *OpError {
	return &OpError{Op: op.name, Kind: KindUnexpected, Message: msgUnexpected, Err: err}
}
