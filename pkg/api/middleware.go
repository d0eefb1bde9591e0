package api

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"libtrack/pkg/apperr"
	"libtrack/pkg/clock"
	"libtrack/pkg/lifecycle"
)

const (
	userIDHeader = "X-User-Id"
	actorKey     = "actor"

	clientIdleTTL   = 3 * time.Minute
	cleanupInterval = time.Minute
)

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := h.logger.Debug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = h.logger.Warn
		}
		level("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}

func (h *Handler) recoverPanic() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		c.Header("Connection", "close")
		h.respondError(c, apperr.Wrap(apperr.KindInternal, fmt.Errorf("%v", recovered), "panic"))
	})
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	rps   rate.Limit
	burst int
	clock clock.Clock

	mu          sync.Mutex
	clients     map[string]*client
	lastCleanup time.Time
}

func newRateLimiter(rps float64, burst int, c clock.Clock) *rateLimiter {
	if rps <= 0 {
		rps = 2
	}
	if burst < 1 {
		burst = 4
	}
	return &rateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clock:   c,
		clients: make(map[string]*client),
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastCleanup) >= cleanupInterval {
		for key, cl := range rl.clients {
			if now.Sub(cl.lastSeen) > clientIdleTTL {
				delete(rl.clients, key)
			}
		}
		rl.lastCleanup = now
	}

	cl, ok := rl.clients[ip]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// identify resolves the caller from the X-User-Id header.
func (h *Handler) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(userIDHeader)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "UNAUTHENTICATED",
				"message": "missing " + userIDHeader + " header",
			})
			return
		}
		user, err := h.store.FindUser(c.Request.Context(), id, false)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "UNAUTHENTICATED",
					"message": "unknown user",
				})
				return
			}
			h.respondError(c, err)
			return
		}
		c.Set(actorKey, lifecycle.Actor{ID: user.ID, Role: user.Role})
		c.Next()
	}
}

func (h *Handler) requireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).Role.Elevated() {
			h.respondError(c, apperr.New(apperr.KindPermissionDenied, "this operation requires the STAFF or ADMIN role"))
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) lifecycle.Actor {
	actor, _ := c.MustGet(actorKey).(lifecycle.Actor)
	return actor
}
