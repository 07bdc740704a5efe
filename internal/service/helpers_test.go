package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"task-manager/internal/auth"
	"task-manager/internal/model"
	"task-manager/internal/repository"
)

func as(userID string) context.Context {
	return auth.WithIdentity(context.Background(), userID)
}

type revalidation struct {
	userID string
	paths  []string
}

type recordingViews struct {
	mu    sync.Mutex
	calls []revalidation
	err   error
}

func (r *recordingViews) Revalidate(_ context.Context, userID string, paths ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, revalidation{userID: userID, paths: paths})
	return r.err
}

func (r *recordingViews) last() revalidation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return revalidation{}
	}
	return r.calls[len(r.calls)-1]
}

// stubTasks counts store calls and returns err, or panics with panicWith.
type stubTasks struct {
	calls     int
	err       error
	panicWith interface{}
}

func (s *stubTasks) hit() error {
	s.calls++
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return s.err
}

func (s *stubTasks) Create(context.Context, *model.Task) error { return s.hit() }
func (s *stubTasks) ListWithCategory(context.Context, string) ([]model.Task, error) {
	return nil, s.hit()
}
func (s *stubTasks) FindByID(context.Context, string, string) (*model.Task, error) {
	return nil, s.hit()
}
func (s *stubTasks) Update(context.Context, string, string, map[string]interface{}) (*model.Task, error) {
	return nil, s.hit()
}
func (s *stubTasks) Delete(context.Context, string, string) error { return s.hit() }

type stubCategories struct {
	calls int
	err   error
}

func (s *stubCategories) hit() error {
	s.calls++
	return s.err
}

func (s *stubCategories) Create(context.Context, *model.Category) error { return s.hit() }
func (s *stubCategories) ListByUser(context.Context, string) ([]model.Category, error) {
	return nil, s.hit()
}
func (s *stubCategories) FindOwned(context.Context, string, string) (*model.Category, error) {
	return nil, s.hit()
}
func (s *stubCategories) FindByName(context.Context, string, string) (*model.Category, error) {
	return nil, s.hit()
}

type fixture struct {
	db         *gorm.DB
	taskRepo   *repository.TaskRepository
	catRepo    *repository.CategoryRepository
	userRepo   *repository.UserRepository
	tasks      *TaskService
	categories *CategoryService
	views      *recordingViews
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "service.db"), nil)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		db:       db,
		taskRepo: repository.NewTaskRepository(db),
		catRepo:  repository.NewCategoryRepository(db),
		userRepo: repository.NewUserRepository(db),
		views:    &recordingViews{},
	}
	f.tasks = NewTaskService(f.taskRepo, f.catRepo, f.views, nil)
	f.categories = NewCategoryService(f.catRepo, f.views, nil)
	return f
}

// advanceClock shifts the service clock by d so timestamps written after
// the call are strictly later than those written before.
func (f *fixture) advanceClock(d time.Duration) {
	f.tasks.now = func() time.Time { return time.Now().Add(d) }
}

func (f *fixture) category(t *testing.T, userID, name string) *model.Category {
	t.Helper()
	c := model.Category{UserID: userID, Name: name}
	if err := f.catRepo.Create(context.Background(), &c); err != nil {
		t.Fatalf("create category: %v", err)
	}
	return &c
}

func requireKind(t *testing.T, err error, want Kind, msg string) *OpError {
	t.Helper()
	opErr, ok := err.(*OpError)
	if !ok {
		t.Fatalf("err = %v (%T), want *OpError", err, err)
	}
	if opErr.Kind != want {
		t.Fatalf("kind = %v, want %v (err %v)", opErr.Kind, want, err)
	}
	if msg != "" && opErr.Message != msg {
		t.Fatalf("message = %q, want %q", opErr.Message, msg)
	}
	return opErr
}
