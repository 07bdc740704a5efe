// Package httpapi exposes the task operations over HTTP/JSON.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"task-manager/internal/auth"
	"task-manager/internal/cache"
	"task-manager/internal/config"
	"task-manager/internal/logging"
	"task-manager/internal/service"
)

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Tasks      *service.TaskService
	Categories *service.CategoryService
	Accounts   *service.AccountService
	Tokens     *auth.Tokens
	Views      cache.ViewCache
	Logger     *log.Logger

	// Ping reports whether the store is reachable.
	Ping func(ctx context.Context) error

	RateLimit   config.RateLimit
	CORSOrigins []string
}

// New builds the gin engine with every route and middleware installed.
func New(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "http")

	r := gin.New()

	// Global middleware stack (order matters!)
	r.Use(Recovery(logger))
	r.Use(RequestLogger(logger))
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(Authenticate(deps.Tokens))
	if deps.RateLimit.RequestsPerMin > 0 {
		limit := rate.Limit(float64(deps.RateLimit.RequestsPerMin) / 60.0)
		r.Use(RateLimiter(limit, deps.RateLimit.Burst))
	}

	r.GET("/health", healthHandler(deps.Ping))

	h := &handler{
		tasks:      deps.Tasks,
		categories: deps.Categories,
		accounts:   deps.Accounts,
		views:      deps.Views,
		logger:     logger,
	}

	v1 := r.Group("/api/v1")

	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", h.register)
		authRoutes.POST("/login", h.login)
	}

	taskRoutes := v1.Group("/tasks")
	{
		taskRoutes.GET("", h.listTasks)
		taskRoutes.POST("", h.createTask)
		taskRoutes.GET("/:id", h.getTask)
		taskRoutes.PUT("/:id", h.updateTask)
		taskRoutes.PATCH("/:id/status", h.updateTaskStatus)
		taskRoutes.DELETE("/:id", h.deleteTask)
	}

	categoryRoutes := v1.Group("/categories")
	{
		categoryRoutes.GET("", h.listCategories)
		categoryRoutes.POST("", h.createCategory)
	}

	return r
}

// NewServer wraps the engine in an http.Server with conservative timeouts.
func NewServer(addr string, engine http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func healthHandler(ping func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"database":  "up",
		}
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				health["status"] = "unhealthy"
				health["database"] = "down"
				c.JSON(http.StatusServiceUnavailable, health)
				return
			}
		}
		c.JSON(http.StatusOK, health)
	}
}
