package httpapi

import (
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"task-manager/internal/auth"
)

const (
	msgInternal    = "Internal server error."
	msgRateLimited = "Too many requests. Please slow down."
)

// Recovery turns a panicking handler into a 500 response.
func Recovery(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered", "path", c.Request.URL.Path, "panic", err, "stack", string(debug.Stack()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, actionResponse{Message: msgInternal})
			}
		}()
		c.Next()
	}
}

func RequestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// Authenticate attaches the identity of a valid bearer token to the request
// context. Requests without one pass through; each operation decides how to
// reject an anonymous caller.
func Authenticate(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.Next()
			return
		}
		userID, err := tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			c.Next()
			return
		}
		c.Set("user_id", userID)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), userID))
		c.Next()
	}
}

// visitorIdle is how long a client may stay silent before its limiter is
// forgotten. A forgotten client starts again with a full bucket.
const visitorIdle = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorSet hands out one limiter per client and evicts idle ones. Eviction
// runs inline at most once per idle period.
type visitorSet struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func newVisitorSet(r rate.Limit, b int, idle time.Duration) *visitorSet {
	return &visitorSet{
		visitors:  make(map[string]*visitor),
		limit:     r,
		burst:     b,
		idle:      idle,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

func (s *visitorSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.idle {
		for k, v := range s.visitors {
			if now.Sub(v.lastSeen) >= s.idle {
				delete(s.visitors, k)
			}
		}
		s.lastSweep = now
	}

	v, exists := s.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (s *visitorSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// RateLimiter allows r requests per second with bursts of b for each
// authenticated user, or each client IP for anonymous callers.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	visitors := newVisitorSet(r, b, visitorIdle)

	return func(c *gin.Context) {
		if !visitors.get(visitorKey(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, actionResponse{Message: msgRateLimited})
			return
		}
		c.Next()
	}
}

func visitorKey(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}
