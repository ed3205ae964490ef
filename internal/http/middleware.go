package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/quill/internal/auth"
	"github.com/sujalbistaa/quill/internal/repository"
	"github.com/sujalbistaa/quill/internal/session"
)

// --- Configuration Constants ---
const (
	loginRateLimitRPS   = 1.0 / 2.0 // 1 attempt every 2 seconds
	loginRateLimitBurst = 5

	// Room for the text fields sent next to an upload.
	uploadSlack = 1 << 20
)

// RequireAuth loads the signed-in user or sends the browser to the login
// page.
func (e *Env) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, ok, err := session.FromContext(c).UserID(ctx)
		if err != nil {
			e.fail(c, err)
			return
		}
		if !ok {
			c.Redirect(http.StatusSeeOther, loginRoute)
			c.Abort()
			return
		}

		user, err := e.Auth.CurrentUser(ctx, id)
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, auth.ErrInactive) {
			log.Printf("session FAIL uid=%d err=%v", id, err)
			if _, err := e.Sessions.Renew(c); err != nil {
				log.Printf("Error renewing session: %v", err)
			}
			c.Redirect(http.StatusSeeOther, loginRoute)
			c.Abort()
			return
		}
		if err != nil {
			e.fail(c, err)
			return
		}
		c.Set(currentUserKey, user)
		c.Next()
	}
}

// RequireAdministrator answers 403 unless the signed-in user holds the
// administrator role. It runs after RequireAuth.
func (e *Env) RequireAdministrator() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !user.IsAdministrator() {
			var id uint
			if user != nil {
				id = user.ID
			}
			log.Printf("Forbidden %s %s for uid=%d", c.Request.Method, c.Request.URL.Path, id)
			e.renderError(c, http.StatusForbidden)
			return
		}
		c.Next()
	}
}

// LimitBody caps request bodies at MaxUploadBytes plus uploadSlack, so an
// oversized upload is refused before any of it is parsed or spooled to disk.
func (e *Env) LimitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if e.MaxUploadBytes <= 0 {
			c.Next()
			return
		}
		limit := e.MaxUploadBytes + uploadSlack
		if c.Request.ContentLength > limit {
			log.Printf("Refusing %s %s: body of %d bytes", c.Request.Method, c.Request.URL.Path, c.Request.ContentLength)
			e.renderError(c, http.StatusRequestEntityTooLarge)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// SecurityHeadersMiddleware adds basic, sensible security headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevents clickjacking
		c.Header("X-Frame-Options", "DENY")
		// Prevents MIME-type sniffing
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "same-origin")

		csp := "default-src 'self';"
		csp += " img-src 'self' data:;"
		csp += " form-action 'self';"
		c.Header("Content-Security-Policy", csp)

		c.Next()
	}
}

// --- Rate Limiter ---
type IPRateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    b,
	}
}

// NewLoginRateLimiter returns the limiter guarding POST /login.
func NewLoginRateLimiter() *IPRateLimiter {
	return NewIPRateLimiter(rate.Limit(loginRateLimitRPS), loginRateLimitBurst)
}

func (rl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, exists := rl.visitors[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[ip] = limiter
	}
	return limiter
}

// Prune forgets visitors whose bucket has refilled completely.
func (rl *IPRateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if v.Tokens() >= float64(rl.burst) {
			delete(rl.visitors, ip)
		}
	}
}

// RunJanitor prunes every interval until ctx is done.
func (rl *IPRateLimiter) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune()
		}
	}
}

// RateLimit rejects clients that exceed the limiter with a 429 page.
func (e *Env) RateLimit(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			e.renderError(c, http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
