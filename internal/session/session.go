// Package session binds a cookie-identified, server-side key/value session
// to every request.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const contextKey = "session"

// UserIDKey holds the authenticated user id.
const UserIDKey = "user_id"

// Manager issues session cookies and attaches a Session to each request.
type Manager struct {
	Store      Store
	CookieName string
	Lifetime   time.Duration
	Secure     bool
}

// Session is the request's view of its server-side session.
type Session struct {
	ID    string
	store Store
}

// Middleware loads the session named by the cookie, or starts a new one,
// and refreshes the cookie.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(m.CookieName)
		if err != nil || uuid.Validate(sid) != nil {
			sid = uuid.NewString()
		}
		m.attach(c, sid)
		c.Next()
	}
}

// Renew replaces the request's session id, dropping the old session's data.
// Call it on login and logout.
func (m *Manager) Renew(c *gin.Context) (*Session, error) {
	if old := FromContext(c); old != nil {
		if err := m.Store.Destroy(c.Request.Context(), old.ID); err != nil {
			return nil, err
		}
	}
	return m.attach(c, uuid.NewString()), nil
}

func (m *Manager) attach(c *gin.Context, sid string) *Session {
	s := &Session{ID: sid, store: m.Store}
	c.Set(contextKey, s)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.CookieName, sid, int(m.Lifetime.Seconds()), "/", "", m.Secure, true)
	return s
}

// FromContext returns the Session attached by Middleware, or nil.
func FromContext(c *gin.Context) *Session {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil
	}
	s, _ := v.(*Session)
	return s
}

// Put stores v as JSON under key.
func (s *Session) Put(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session put %s: %w", key, err)
	}
	return s.store.Set(ctx, s.ID, key, b)
}

// Get decodes the value under key into dst and reports whether it existed.
func (s *Session) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, ok, err := s.store.Get(ctx, s.ID, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("session get %s: %w", key, err)
	}
	return true, nil
}

// Pop is Get followed by removal of key, as one store operation.
func (s *Session) Pop(ctx context.Context, key string, dst any) (bool, error) {
	b, ok, err := s.store.Pop(ctx, s.ID, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("session pop %s: %w", key, err)
	}
	return true, nil
}

// UserID returns the authenticated user id, if any.
func (s *Session) UserID(ctx context.Context) (uint, bool, error) {
	var id uint
	ok, err := s.Get(ctx, UserIDKey, &id)
	if err != nil || !ok || id == 0 {
		return 0, false, err
	}
	return id, true, nil
}
