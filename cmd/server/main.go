package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/quill/internal/auth"
	"github.com/sujalbistaa/quill/internal/config"
	"github.com/sujalbistaa/quill/internal/db"
	routes "github.com/sujalbistaa/quill/internal/http"
	"github.com/sujalbistaa/quill/internal/models"
	"github.com/sujalbistaa/quill/internal/repository"
	"github.com/sujalbistaa/quill/internal/session"
	"github.com/sujalbistaa/quill/internal/storage"
	"github.com/sujalbistaa/quill/internal/ws"
	"github.com/sujalbistaa/quill/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 1. Database
	database, err := db.Init(cfg.DatabaseURL, cfg.LogSQL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	if err := db.Seed(database, db.Admin{Name: cfg.AdminName, Email: cfg.AdminEmail, Password: cfg.AdminPassword}); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	// 2. Storage
	store := storage.NewLocal(cfg.StorageRoot, cfg.StorageURL, cfg.PruneReplaced)
	for _, p := range []string{models.DefaultPostPhoto, models.DefaultProfilePicture} {
		if err := store.Install(p, web.DefaultImage); err != nil {
			log.Fatalf("Failed to install default image: %v", err)
		}
	}

	// 3. Sessions
	var sessions session.Store
	if cfg.RedisAddr != "" {
		rdb, err := session.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, cfg.SessionLifetime)
	} else {
		log.Println("REDIS_ADDR not set, keeping sessions in memory")
		mem := session.NewMemoryStore(cfg.SessionLifetime)
		go sweepSessions(ctx, mem)
		sessions = mem
	}

	// 4. WebSocket Hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	users := repository.New[models.User](database, "")
	env := &routes.Env{
		Posts:      repository.New[models.Post](database, "user_id"),
		Categories: repository.New[models.Category](database, ""),
		Users:      users,
		Roles:      repository.New[models.Role](database, ""),
		Storage:    store,
		Sessions: &session.Manager{
			Store:      sessions,
			CookieName: cfg.SessionCookie,
			Lifetime:   cfg.SessionLifetime,
			Secure:     cfg.SecureCookies,
		},
		Auth:           &auth.Service{Users: users},
		Hub:            hub,
		Limiter:        routes.NewLoginRateLimiter(),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	go env.Limiter.RunJanitor(ctx, 10*time.Minute)

	// 5. Router
	router := gin.New()
	router.MaxMultipartMemory = cfg.MaxUploadBytes
	err = routes.SetupRoutes(router, env, routes.RouteOptions{
		CORSOrigin:  cfg.CORSOrigin,
		StorageRoot: cfg.StorageRoot,
		StorageURL:  cfg.StorageURL,
	})
	if err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

func sweepSessions(ctx context.Context, store *session.MemoryStore) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				log.Printf("Swept %d expired sessions", n)
			}
		}
	}
}
