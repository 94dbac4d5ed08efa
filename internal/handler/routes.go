package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/middleware"
)

// Routes wires every handler onto an app.
type Routes struct {
	Gallery    *GalleryHandler
	Assets     *AssetHandler
	Categories *CategoryHandler
	Uploads    *UploadHandler
	Tasks      *TaskHandler
	Proxy      *JobProxy
	Auth       *AuthHandler

	Authenticate fiber.Handler
	Limiter      *middleware.RateLimiter
	Limits       config.RateLimitConfig
}

func (r *Routes) Register(app *fiber.App) {
	// ForwardAuth verification endpoint (internal, called by the gateway)
	app.Get("/auth/verify", r.Auth.Verify)

	// Job API proxy; preflight is answered before authentication
	app.Options("/proxy/jobs", r.Proxy.Preflight)
	app.Options("/proxy/jobs/:id", r.Proxy.Preflight)
	jobs := app.Group("/proxy/jobs", r.Authenticate, r.Limiter.ProxyLimit(r.Limits.ProxyPerMin))
	jobs.Post("/", r.Proxy.Create)
	jobs.Get("/:id", r.Proxy.Get)
	jobs.Delete("/:id", r.Proxy.Cancel)

	// API routes
	api := app.Group("/api", r.Authenticate)
	mutate := r.Limiter.MutationLimit(r.Limits.MutationsPerMin)

	api.Get("/gallery", r.Gallery.Get)
	api.Post("/gallery/reload", r.Gallery.Reload)
	api.Delete("/session", r.Gallery.CloseSession)

	assets := api.Group("/assets", mutate)
	assets.Post("/", r.Assets.Create)
	assets.Post("/delete", r.Assets.DeleteMany)
	assets.Patch("/:id", r.Assets.Update)
	assets.Post("/:id/favorite", r.Assets.ToggleFavorite)
	assets.Delete("/:id", r.Assets.Delete)

	categories := api.Group("/categories", mutate)
	categories.Post("/", r.Categories.Create)
	categories.Patch("/:id", r.Categories.Rename)
	categories.Delete("/:id", r.Categories.Delete)

	api.Post("/uploads", r.Limiter.UploadLimit(r.Limits.UploadPerHour), r.Uploads.Ingest)

	tasks := api.Group("/tasks")
	tasks.Post("/", r.Limiter.GenerateLimit(r.Limits.GeneratePerHour), r.Tasks.Submit)
	tasks.Post("/poll", r.Tasks.Poll)
	tasks.Post("/:id/promote", mutate, r.Tasks.Promote)
	tasks.Delete("/:id", mutate, r.Tasks.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, r.Authenticate)
	app.Get("/ws/gallery", r.Gallery.Stream())
}
