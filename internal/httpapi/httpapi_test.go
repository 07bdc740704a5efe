package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"task-manager/internal/auth"
	"task-manager/internal/cache"
	"task-manager/internal/config"
	"task-manager/internal/model"
	"task-manager/internal/repository"
	"task-manager/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	engine *gin.Engine
	views  *cache.MemoryCache
	tokens *auth.Tokens
}

func newTestAPI(t *testing.T, limit config.RateLimit) *testAPI {
	t.Helper()
	return newTestAPIWith(t, limit, nil)
}

// newTestAPIWith lets wrap replace the task store the services use.
func newTestAPIWith(t *testing.T, limit config.RateLimit, wrap func(service.TaskStore) service.TaskStore) *testAPI {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "api.db"), nil)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	views := cache.NewMemoryCache(time.Minute, time.Hour)
	t.Cleanup(func() { views.Close() })

	tokens := auth.NewTokens("test-secret", time.Hour)
	var taskRepo service.TaskStore = repository.NewTaskRepository(db)
	if wrap != nil {
		taskRepo = wrap(taskRepo)
	}
	catRepo := repository.NewCategoryRepository(db)

	engine := New(Deps{
		Tasks:       service.NewTaskService(taskRepo, catRepo, views, nil),
		Categories:  service.NewCategoryService(catRepo, views, nil),
		Accounts:    service.NewAccountService(repository.NewUserRepository(db), tokens, nil),
		Tokens:      tokens,
		Views:       views,
		Ping:        sqlDB.PingContext,
		RateLimit:   limit,
		CORSOrigins: []string{"http://localhost:3000"},
	})
	return &testAPI{engine: engine, views: views, tokens: tokens}
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, env
}

func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": email, "password": "correct horse"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d body %s", w.Code, w.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &session); err != nil || session.Token == "" {
		t.Fatalf("session = %s, %v", env.Data, err)
	}
	return session.Token
}

type taskJSON struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	CompletedAt *string `json:"completed_at"`
	Category    *struct {
		Name string `json:"name"`
	} `json:"category"`
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, config.RateLimit{})
	w, _ := api.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"database":"up"`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestHealthDatabaseDown(t *testing.T) {
	engine := New(Deps{Ping: func(context.Context) error { return errors.New("down") }})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestTaskLifecycle(t *testing.T) {
	api := newTestAPI(t, config.RateLimit{})
	token := api.register(t, "ada@example.com")

	w, env := api.do(t, http.MethodPost, "/api/v1/categories", token, gin.H{"name": "Errands"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create category = %d %s", w.Code, w.Body.String())
	}
	category := decode[struct {
		ID    string `json:"id"`
		Color string `json:"color"`
	}](t, env.Data)
	if category.Color != "#6366f1" {
		t.Errorf("category color = %q", category.Color)
	}

	w, env = api.do(t, http.MethodPost, "/api/v1/tasks", token, gin.H{"title": "Buy milk", "priority": "low", "category_id": category.ID})
	if w.Code != http.StatusCreated || !env.Success {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	created := decode[taskJSON](t, env.Data)
	if created.ID == "" || created.Status != "todo" {
		t.Errorf("created = %+v", created)
	}

	w, env = api.do(t, http.MethodGet, "/api/v1/tasks", token, nil)
	if w.Code != http.StatusOK || w.Header().Get("X-View-Cache") != "miss" {
		t.Fatalf("list = %d cache %q", w.Code, w.Header().Get("X-View-Cache"))
	}
	list := decode[[]taskJSON](t, env.Data)
	if len(list) != 1 || list[0].Category == nil || list[0].Category.Name != "Errands" {
		t.Fatalf("list = %+v", list)
	}

	w, _ = api.do(t, http.MethodGet, "/api/v1/tasks", token, nil)
	if w.Header().Get("X-View-Cache") != "hit" {
		t.Errorf("second list cache = %q, want hit", w.Header().Get("X-View-Cache"))
	}

	w, env = api.do(t, http.MethodPatch, "/api/v1/tasks/"+created.ID+"/status", token, gin.H{"status": "completed"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	if done := decode[taskJSON](t, env.Data); done.Status != "completed" || done.CompletedAt == nil {
		t.Errorf("after status update = %+v", done)
	}

	w, env = api.do(t, http.MethodGet, "/api/v1/tasks", token, nil)
	if w.Header().Get("X-View-Cache") != "miss" {
		t.Errorf("list after mutation cache = %q, want miss", w.Header().Get("X-View-Cache"))
	}
	if list := decode[[]taskJSON](t, env.Data); list[0].Status != "completed" {
		t.Errorf("list shows stale status %q", list[0].Status)
	}

	w, env = api.do(t, http.MethodPut, "/api/v1/tasks/"+created.ID, token, gin.H{"title": "Buy oat milk", "priority": "high"})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d %s", w.Code, w.Body.String())
	}
	if updated := decode[taskJSON](t, env.Data); updated.Title != "Buy oat milk" || updated.Category != nil {
		t.Errorf("updated = %+v", updated)
	}

	w, env = api.do(t, http.MethodGet, "/api/v1/tasks/"+created.ID, token, nil)
	if w.Code != http.StatusOK || decode[taskJSON](t, env.Data).Title != "Buy oat milk" {
		t.Fatalf("get = %d %s", w.Code, w.Body.String())
	}

	w, env = api.do(t, http.MethodDelete, "/api/v1/tasks/"+created.ID, token, nil)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("delete = %d %s", w.Code, w.Body.String())
	}

	w, env = api.do(t, http.MethodGet, "/api/v1/tasks/"+created.ID, token, nil)
	if w.Code != http.StatusNotFound || env.Message != "Task not found." {
		t.Fatalf("get deleted = %d %s", w.Code, w.Body.String())
	}

	w, env = api.do(t, http.MethodGet, "/api/v1/categories", token, nil)
	if w.Code != http.StatusOK || len(decode[[]json.RawMessage](t, env.Data)) != 1 {
		t.Fatalf("categories = %d %s", w.Code, w.Body.String())
	}
}

func TestAnonymousRequestsRejected(t *testing.T) {
	api := newTestAPI(t, config.RateLimit{})
	forged, _, _ := auth.NewTokens("other-secret", time.Hour).Issue("u1")

	tests := []struct {
		method, path string
		body         interface{}
		msg          string
	}{
		{http.MethodGet, "/api/v1/tasks", nil, "You must be logged in to view tasks."},
		{http.MethodPost, "/api/v1/tasks", gin.H{"title": "Buy milk", "priority": "low"}, "You must be logged in to create a task."},
		{http.MethodGet, "/api/v1/tasks/t1", nil, "You must be logged in to view tasks."},
		{http.MethodPut, "/api/v1/tasks/t1", gin.H{"title": "Buy milk", "priority": "low"}, "You must be logged in to update a task."},
		{http.MethodPatch, "/api/v1/tasks/t1/status", gin.H{"status": "completed"}, "You must be logged in to update tasks."},
		{http.MethodDelete, "/api/v1/tasks/t1", nil, "You must be logged in to delete tasks."},
		{http.MethodGet, "/api/v1/categories", nil, "You must be logged in to view categories."},
	}
	for _, tt := range tests {
		for _, token := range []string{"", forged} {
			w, env := api.do(t, tt.method, tt.path, token, tt.body)
			if w.Code != http.StatusUnauthorized || env.Message != tt.msg || env.Success {
				t.Errorf("%s %s (token %v) = %d %s", tt.method, tt.path, token != "", w.Code, w.Body.String())
			}
		}
	}
}

func TestValidationAndOwnershipErrors(t *testing.T) {
	api := newTestAPI(t, config.RateLimit{})
	alice := api.register(t, "alice@example.com")
	bob := api.register(t, "bob@example.com")

	w, env := api.do(t, http.MethodPost, "/api/v1/tasks", alice, gin.H{"title": "ab", "priority": "whenever"})
	if w.Code != http.StatusBadRequest || env.Message != "Invalid form data. Please check your inputs." {
		t.Fatalf("invalid create = %d %s", w.Code, w.Body.String())
	}
	if len(env.Errors["title"]) == 0 || len(env.Errors["priority"]) == 0 {
		t.Errorf("errors = %v", env.Errors)
	}

	_, env = api.do(t, http.MethodPost, "/api/v1/categories", bob, gin.H{"name": "Bob's"})
	bobsCategory := decode[struct {
		ID string `json:"id"`
	}](t, env.Data)

	w, env = api.do(t, http.MethodPost, "/api/v1/tasks", alice, gin.H{"title": "Sneaky", "priority": "low", "category_id": bobsCategory.ID})
	if w.Code != http.StatusBadRequest || env.Message != "Invalid category selected." {
		t.Fatalf("foreign category = %d %s", w.Code, w.Body.String())
	}

	_, env = api.do(t, http.MethodPost, "/api/v1/tasks", alice, gin.H{"title": "Alice's task", "priority": "low"})
	task := decode[taskJSON](t, env.Data)

	w, env = api.do(t, http.MethodDelete, "/api/v1/tasks/"+task.ID, bob, nil)
	if w.Code != http.StatusNotFound || env.Message != "Task not found." {
		t.Fatalf("foreign delete = %d %s", w.Code, w.Body.String())
	}
	w, _ = api.do(t, http.MethodGet, "/api/v1/tasks/"+task.ID, alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("task missing after foreign delete: %d", w.Code)
	}

	w, env = api.do(t, http.MethodGet, "/api/v1/tasks", bob, nil)
	if list := decode[[]taskJSON](t, env.Data); w.Code != http.StatusOK || len(list) != 0 {
		t.Errorf("bob sees %d tasks", len(list))
	}

	w, env = api.do(t, http.MethodPatch, "/api/v1/tasks/"+task.ID+"/status", alice, gin.H{"status": "archived"})
	if w.Code != http.StatusBadRequest || len(env.Errors["status"]) == 0 {
		t.Errorf("bad status = %d %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+alice)
	rec := httptest.NewRecorder()
	api.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t, config.RateLimit{})
	api.register(t, "ada@example.com")

	w, env := api.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ada@example.com", "password": "correct horse"})
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("login = %d %s", w.Code, w.Body.String())
	}

	w, env = api.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong horse"})
	if w.Code != http.StatusUnauthorized || env.Message != "Invalid email or password." {
		t.Fatalf("bad login = %d %s", w.Code, w.Body.String())
	}

	w, env = api.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"email": "ada@example.com", "password": "correct horse"})
	if w.Code != http.StatusBadRequest || len(env.Errors["email"]) == 0 {
		t.Fatalf("duplicate register = %d %s", w.Code, w.Body.String())
	}
}

func TestRateLimiter(t *testing.T) {
	api := newTestAPI(t, config.RateLimit{RequestsPerMin: 1, Burst: 2})

	for i := 0; i < 2; i++ {
		if w, _ := api.do(t, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	w, env := api.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusTooManyRequests || env.Message == "" {
		t.Fatalf("third request = %d %s", w.Code, w.Body.String())
	}

	token, _, _ := api.tokens.Issue("u1")
	if w, _ := api.do(t, http.MethodGet, "/health", token, nil); w.Code != http.StatusOK {
		t.Errorf("authenticated caller shares the anonymous bucket: %d", w.Code)
	}
}

func TestRecovery(t *testing.T) {
	api := newTestAPI(t, config.RateLimit{})
	api.engine.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w, env := api.do(t, http.MethodGet, "/boom", "", nil)
	if w.Code != http.StatusInternalServerError || env.Message == "" {
		t.Fatalf("panic = %d %s", w.Code, w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t, config.RateLimit{})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin = %q", got)
	}
	if w.Code >= 300 {
		t.Errorf("preflight status = %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[service.Kind]int{
		service.KindValidation:      http.StatusBadRequest,
		service.KindInvalidCategory: http.StatusBadRequest,
		service.KindUnauthorized:    http.StatusUnauthorized,
		service.KindNotFound:        http.StatusNotFound,
		service.KindStore:           http.StatusInternalServerError,
		service.KindUnexpected:      http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%v) = %d, want %d", kind, got, want)
		}
	}
}

// pausingTasks holds the first list read after its rows are loaded until
// release is closed.
type pausingTasks struct {
	service.TaskStore
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (p *pausingTasks) ListWithCategory(ctx context.Context, userID string) ([]model.Task, error) {
	tasks, err := p.TaskStore.ListWithCategory(ctx, userID)
	p.once.Do(func() {
		close(p.loaded)
		<-p.release
	})
	return tasks, err
}

func TestListOverlappingMutationIsNotCached(t *testing.T) {
	store := &pausingTasks{loaded: make(chan struct{}), release: make(chan struct{})}
	api := newTestAPIWith(t, config.RateLimit{}, func(inner service.TaskStore) service.TaskStore {
		store.TaskStore = inner
		return store
	})
	token := api.register(t, "overlap@example.com")

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		api.engine.ServeHTTP(w, req)
		first <- w
	}()

	<-store.loaded
	if w, _ := api.do(t, http.MethodPost, "/api/v1/tasks", token, gin.H{"title": "Written meanwhile", "priority": "medium"}); w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	close(store.release)

	if w := <-first; w.Code != http.StatusOK || w.Header().Get("X-View-Cache") != "miss" {
		t.Fatalf("overlapping list = %d cache %q", w.Code, w.Header().Get("X-View-Cache"))
	}

	w, env := api.do(t, http.MethodGet, "/api/v1/tasks", token, nil)
	if got := w.Header().Get("X-View-Cache"); got != "miss" {
		t.Fatalf("list after mutation served from cache (%s): %s", got, w.Body.String())
	}
	if tasks := decode[[]taskJSON](t, env.Data); len(tasks) != 1 || tasks[0].Title != "Written meanwhile" {
		t.Fatalf("tasks = %+v", tasks)
	}

	w, env = api.do(t, http.MethodGet, "/api/v1/tasks", token, nil)
	if got := w.Header().Get("X-View-Cache"); got != "hit" {
		t.Fatalf("fresh list not cached: %s", got)
	}
	if tasks := decode[[]taskJSON](t, env.Data); len(tasks) != 1 {
		t.Fatalf("cached tasks = %+v", tasks)
	}
}

func TestVisitorSetEvictsIdleClients(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	set := newVisitorSet(rate.Limit(1), 1, time.Minute)
	set.now = func() time.Time { return now }
	set.lastSweep = now

	a := set.get("ip:a")
	set.get("ip:b")
	if set.get("ip:a") != a {
		t.Fatal("same client got a new limiter")
	}

	now = now.Add(30 * time.Second)
	set.get("ip:b")

	now = now.Add(40 * time.Second)
	set.get("ip:c")
	if set.len() != 2 {
		t.Fatalf("visitors = %d, want 2 after sweep", set.len())
	}
	if _, ok := set.visitors["ip:a"]; ok {
		t.Fatal("idle client not evicted")
	}
	if _, ok := set.visitors["ip:b"]; !ok {
		t.Fatal("active client evicted")
	}
}
