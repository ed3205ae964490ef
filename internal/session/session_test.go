package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, time.Hour), mr
}

func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(time.Hour),
		"redis":  redisStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, ok, err := store.Get(ctx, "sid", "k"); err != nil || ok {
				t.Fatalf("Get() on empty = ok %v, err %v", ok, err)
			}
			if err := store.Set(ctx, "sid", "k", []byte("v")); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if v, ok, err := store.Get(ctx, "sid", "k"); err != nil || !ok || string(v) != "v" {
				t.Fatalf("Get() = %q, %v, %v", v, ok, err)
			}
			if _, ok, _ := store.Get(ctx, "other", "k"); ok {
				t.Fatalf("Get() leaked value across sessions")
			}

			v, ok, err := store.Pop(ctx, "sid", "k")
			if err != nil || !ok || string(v) != "v" {
				t.Fatalf("Pop() = %q, %v, %v", v, ok, err)
			}
			if _, ok, err := store.Pop(ctx, "sid", "k"); err != nil || ok {
				t.Fatalf("second Pop() = ok %v, err %v, want empty", ok, err)
			}

			if err := store.Set(ctx, "sid", "k", []byte("v")); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := store.Destroy(ctx, "sid"); err != nil {
				t.Fatalf("Destroy() error = %v", err)
			}
			if _, ok, _ := store.Get(ctx, "sid", "k"); ok {
				t.Fatalf("Get() after Destroy() found value")
			}
		})
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute)
	store.now = func() time.Time { return now }

	if err := store.Set(context.Background(), "sid", "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := store.Get(context.Background(), "sid", "k"); ok {
		t.Fatalf("Get() returned expired value")
	}
	if n := store.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	if err := store.Set(context.Background(), "sid", "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	mr.FastForward(2 * time.Hour)
	if _, ok, _ := store.Get(context.Background(), "sid", "k"); ok {
		t.Fatalf("Get() returned expired value")
	}
}

func TestMemoryStoreReadsSlideExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute)
	store.now = func() time.Time { return now }

	if err := store.Set(ctx, "sid", "user_id", []byte("7")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	// Each read lands inside the ttl of the previous one, and together
	// they run well past the ttl of the only write.
	for i := range 3 {
		now = now.Add(50 * time.Second)
		if _, ok, _ := store.Get(ctx, "sid", "user_id"); !ok {
			t.Fatalf("read %d: session expired while in use", i+1)
		}
	}
	now = now.Add(50 * time.Second)
	if _, _, err := store.Pop(ctx, "sid", "missing"); err != nil {
		t.Fatalf("Pop() error = %v", err)
	}
	now = now.Add(50 * time.Second)
	if _, ok, _ := store.Get(ctx, "sid", "user_id"); !ok {
		t.Fatalf("Pop() did not slide the expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, "sid", "user_id"); ok {
		t.Fatalf("idle session did not expire")
	}
}

func TestRedisStoreReadsSlideExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	if err := store.Set(ctx, "sid", "user_id", []byte("7")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	for i := range 3 {
		mr.FastForward(40 * time.Minute)
		if _, ok, err := store.Get(ctx, "sid", "user_id"); err != nil || !ok {
			t.Fatalf("read %d: ok %v, err %v, want the live session", i+1, ok, err)
		}
	}
	if ttl := mr.TTL(redisKey("sid")); ttl != time.Hour {
		t.Fatalf("TTL after read = %v, want %v", ttl, time.Hour)
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := store.Get(ctx, "sid", "user_id"); ok {
		t.Fatalf("idle session did not expire")
	}
	if mr.Exists(redisKey("sid")) {
		t.Fatalf("reading an expired session recreated its key")
	}
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	m := &Manager{Store: NewMemoryStore(time.Hour), CookieName: "sess", Lifetime: time.Hour}
	const sid = "6f1c1f36-3b8e-4a9b-9f55-1c2f9d7c0a11"

	var got *Session
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/", func(c *gin.Context) {
		got = FromContext(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sess", Value: sid})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if got == nil || got.ID != sid {
		t.Fatalf("session = %+v, want id %s", got, sid)
	}
	if rr.Header().Get("Set-Cookie") == "" {
		t.Fatalf("expected refreshed Set-Cookie header")
	}
}

func TestMiddlewareReplacesForgedCookie(t *testing.T) {
	m := &Manager{Store: NewMemoryStore(time.Hour), CookieName: "sess", Lifetime: time.Hour}

	var got *Session
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/", func(c *gin.Context) {
		got = FromContext(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sess", Value: "../../admin"})
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || got.ID == "../../admin" || got.ID == "" {
		t.Fatalf("session id = %+v, want freshly issued id", got)
	}
}

func TestSessionValuesAndRenew(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	m := &Manager{Store: store, CookieName: "sess", Lifetime: time.Hour}

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/", func(c *gin.Context) {
		ctx := c.Request.Context()
		s := FromContext(c)
		if err := s.Put(ctx, UserIDKey, uint(7)); err != nil {
			t.Errorf("Put() error = %v", err)
		}
		id, ok, err := s.UserID(ctx)
		if err != nil || !ok || id != 7 {
			t.Errorf("UserID() = %d, %v, %v", id, ok, err)
		}

		renewed, err := m.Renew(c)
		if err != nil {
			t.Errorf("Renew() error = %v", err)
			return
		}
		if renewed.ID == s.ID {
			t.Errorf("Renew() kept id %s", s.ID)
		}
		if _, ok, _ := store.Get(ctx, s.ID, UserIDKey); ok {
			t.Errorf("old session data survived Renew()")
		}
		if FromContext(c) != renewed {
			t.Errorf("FromContext() did not return renewed session")
		}
		c.Status(http.StatusNoContent)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
