package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/quill/internal/ws"
	"github.com/sujalbistaa/quill/web"
)

// RouteOptions carries the settings SetupRoutes needs beyond Env.
type RouteOptions struct {
	CORSOrigin  string
	StorageRoot string
	StorageURL  string
}

// SetupRoutes configures all application routes and middleware.
func SetupRoutes(router *gin.Engine, env *Env, opts RouteOptions) error {
	tmpl, err := web.Templates()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)
	if env.Limiter == nil {
		env.Limiter = NewLoginRateLimiter()
	}

	// --- Middleware ---
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := opts.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: corsOrigin != "*",
	}))

	// --- Assets ---
	router.StaticFS("/static", http.FS(web.Static()))
	if strings.HasPrefix(opts.StorageURL, "/") && opts.StorageRoot != "" {
		router.Static(opts.StorageURL, opts.StorageRoot)
	}

	// --- Pages ---
	pages := router.Group("/", env.Sessions.Middleware())
	pages.GET("/", func(c *gin.Context) { c.Redirect(http.StatusSeeOther, postsRoute) })
	pages.GET("/login", env.LoginForm)
	pages.POST("/login", env.RateLimit(env.Limiter), env.Login)
	pages.POST("/logout", env.Logout)

	admin := pages.Group("/admin", env.RequireAuth(), env.LimitBody())
	{
		admin.GET("/posts", env.ListPosts)
		admin.GET("/posts/create", env.CreatePostForm)
		admin.POST("/posts", env.StorePost)
		admin.GET("/posts/:id/edit", env.EditPostForm)
		admin.POST("/posts/:id", env.UpdatePost)
		admin.PUT("/posts/:id", env.UpdatePost)
		admin.PATCH("/posts/:id", env.UpdatePost)
		admin.DELETE("/posts/:id", env.DestroyPost)
		admin.POST("/posts/:id/delete", env.DestroyPost)
	}

	users := admin.Group("/users", env.RequireAdministrator())
	{
		users.GET("", env.ListUsers)
		users.GET("/create", env.CreateUserForm)
		users.POST("", env.StoreUser)
		users.GET("/:id/edit", env.EditUserForm)
		users.POST("/:id", env.UpdateUser)
		users.PUT("/:id", env.UpdateUser)
		users.PATCH("/:id", env.UpdateUser)
		users.DELETE("/:id", env.DestroyUser)
		users.POST("/:id/delete", env.DestroyUser)
	}

	// --- WebSocket Route ---
	pages.GET("/ws", env.RequireAuth(), func(c *gin.Context) {
		ws.ServeWs(env.Hub, c.Writer, c.Request)
	})

	router.NoRoute(env.Sessions.Middleware(), func(c *gin.Context) {
		env.renderError(c, http.StatusNotFound)
	})
	return nil
}
