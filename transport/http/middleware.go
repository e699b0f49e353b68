package http

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/tessera/core"
	"github.com/layer-3/tessera/internal/logging"
	"github.com/layer-3/tessera/internal/metrics"
	"github.com/layer-3/tessera/service"
	"golang.org/x/time/rate"
)

const claimsKey = "claims"

// AuthMiddleware validates the bearer access token and stores its claims in the context
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimSpace(auth[len("Bearer "):])
		}

		claims, err := authService.VerifyAccess(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRoles admits only principals whose role is one of roles. It must run after AuthMiddleware.
func RequireRoles(authService *service.AuthService, roles ...core.Role) gin.HandlerFunc {
	allowed := core.NewRoleSet(roles...)
	return func(c *gin.Context) {
		claims, ok := claimsFrom(c)
		if !ok {
			abortWithError(c, core.ErrUnauthenticated)
			return
		}
		if err := authService.Authorize(claims, allowed); err != nil {
			abortWithError(c, err)
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) (core.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return core.Claims{}, false
	}
	claims, ok := v.(core.Claims)
	return claims, ok
}

// RequestLogger logs every request once it completes
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			logger.Error(ctx, "request failed", append(args, "error", c.Errors.String())...)
			return
		}
		logger.Info(ctx, "request", args...)
	}
}

// MetricsMiddleware records in-flight requests and latency per route
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		done := m.RequestStarted()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		done(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

// clientLimiter is a per-client token bucket and when it was last used
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out one token bucket per client IP
type rateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientLimiter
	rps         rate.Limit
	burst       int
	idle        time.Duration
	lastCleanup time.Time
}

func (r *rateLimiter) get(ip string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastCleanup) > r.idle {
		for key, cl := range r.clients {
			if now.Sub(cl.lastSeen) > r.idle {
				delete(r.clients, key)
			}
		}
		r.lastCleanup = now
	}

	cl, ok := r.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimit rejects clients that exceed rps sustained requests with 429.
// A non-positive rps disables the limit.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}

	rl := &rateLimiter{
		clients:     make(map[string]*clientLimiter),
		rps:         rate.Limit(rps),
		burst:       burst,
		idle:        10 * time.Minute,
		lastCleanup: time.Now(),
	}

	return func(c *gin.Context) {
		limiter := rl.get(c.ClientIP(), time.Now())

		reservation := limiter.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
