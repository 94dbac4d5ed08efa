package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/motionvault/internal/auth"
	"github.com/makeasinger/motionvault/internal/client"
	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/gateway"
	"github.com/makeasinger/motionvault/internal/handler"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/media"
	"github.com/makeasinger/motionvault/internal/middleware"
	"github.com/makeasinger/motionvault/internal/repository"
	"github.com/makeasinger/motionvault/internal/session"
	"github.com/makeasinger/motionvault/internal/state"
	ws "github.com/makeasinger/motionvault/internal/websocket"
	"github.com/makeasinger/motionvault/internal/worker"
	"github.com/makeasinger/motionvault/pkg/response"
)

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	// Row store
	db, err := repository.Open(&cfg.Database, log)
	if err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			return err
		}
	}

	// Object store: R2 when configured, local disk otherwise
	var objects client.StorageClient
	var localMedia *client.LocalStorage
	r2Configured := false
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Warn("R2 client not initialized, using local storage", "error", err)
		} else {
			objects = r2Client
			r2Configured = r2Client.IsConfigured()
		}
	}
	if objects == nil {
		localMedia, err = client.NewLocalStorage(cfg.Media.LocalDir, cfg.Media.PublicURL)
		if err != nil {
			return fmt.Errorf("failed to prepare local storage: %w", err)
		}
		objects = localMedia
		log.Info("R2 storage not configured, serving media from disk", "dir", localMedia.Root())
	}

	runwayClient := client.NewRunwayClient(&cfg.Runway, log)
	gw := gateway.New(repository.NewGormStore(db), objects, runwayClient)

	// Redis backs rate limiting and the cancellation queue
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	redisUp := redisClient.Ping(pingCtx).Err() == nil
	cancelPing()

	directCanceller := worker.NewDirectCanceller(runwayClient, log)
	var canceller state.JobCanceller = directCanceller
	var limiterRedis *redis.Client
	var asynqServer *asynq.Server

	if redisUp {
		limiterRedis = redisClient
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		canceller = worker.NewAsynqCanceller(asynqClient, directCanceller, log)

		if cfg.Worker.Enabled {
			asynqServer = newWorkerServer(cfg, redisOpt)
			mux := asynq.NewServeMux()
			mux.Handle(worker.TaskTypeCancel, worker.NewCancelWorker(runwayClient, log))
			go func() {
				if err := asynqServer.Run(mux); err != nil {
					log.Error("Asynq worker error", "error", err)
				}
			}()
		}
	} else {
		log.Warn("Redis not available, rate limiting off and cancellations run inline", "addr", cfg.Redis.Addr)
	}

	// Initialize WebSocket hub
	hub := ws.NewHub(log)
	go hub.Run()

	prober := media.NewFFprobe(cfg.Media.FFprobePath)
	sessions := session.NewManager(ctx, session.Deps{
		Gateway:           gw,
		Canceller:         canceller,
		Prober:            prober,
		Hub:               hub,
		Runway:            cfg.Runway,
		PollInterval:      cfg.Poller.Interval,
		UploadConcurrency: cfg.Upload.Concurrency,
		TempDir:           cfg.Upload.TempDir,
		Log:               log,
	})
	defer sessions.Shutdown()

	// Initialize OIDC JWKS verifier (optional - falls back to legacy JWT)
	var tokenVerifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Warn("JWKS verifier not initialized", "error", err)
		} else {
			defer jwksVerifier.Close()
			tokenVerifier = jwksVerifier
		}
	}

	var authenticate fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind the gateway: auth is handled by ForwardAuth, read X-User-* headers
		log.Info("Gateway mode enabled, using header-based auth")
		authenticate = middleware.GatewayAuthMiddleware()
	} else {
		authenticate = middleware.NewAuthMiddleware(tokenVerifier, cfg.JWT.Secret).Authenticate()
	}

	validate := validator.New()
	routes := &handler.Routes{
		Gallery:      handler.NewGalleryHandler(sessions, hub, validate),
		Assets:       handler.NewAssetHandler(sessions, validate),
		Categories:   handler.NewCategoryHandler(sessions, validate),
		Uploads:      handler.NewUploadHandler(sessions, validate, prober, cfg.Upload.TempDir, cfg.Upload.MaxFileSize),
		Tasks:        handler.NewTaskHandler(sessions, validate, prober, cfg.Upload.TempDir, cfg.Upload.MaxFileSize),
		Proxy:        handler.NewJobProxy(&cfg.Runway, log),
		Auth:         handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret),
		Authenticate: authenticate,
		Limiter:      middleware.NewRateLimiter(limiterRedis),
		Limits:       cfg.RateLimit,
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    bodyLimit(cfg.Upload.MaxFileSize),
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"r2":       r2Configured,
				"runway":   runwayClient.IsConfigured() && cfg.Runway.APIKey != "",
				"redis":    redisUp,
				"auth":     tokenVerifier != nil || cfg.JWT.Secret != "",
				"sessions": sessions.Len(),
			},
		})
	})
	if localMedia != nil {
		app.Static("/media", localMedia.Root())
	}

	routes.Register(app)

	go func() {
		<-ctx.Done()
		log.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("Server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info("Server starting", "addr", addr)
	err = app.Listen(addr)

	if asynqServer != nil {
		asynqServer.Shutdown()
	}
	directCanceller.Wait()
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		asynqLogLevel = asynq.DebugLevel
	case "warn":
		asynqLogLevel = asynq.WarnLevel
	case "error":
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			worker.QueueCancel: 1,
		},
		LogLevel: asynqLogLevel,
	})
}

// bodyLimit leaves room for a batch of several videos per request.
func bodyLimit(maxFileSize int64) int {
	const files = 8
	if maxFileSize <= 0 {
		return 50 * 1024 * 1024
	}
	return int(maxFileSize * files)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
