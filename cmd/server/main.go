package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/backend"
	"github.com/maheshrc27/postflow/internal/health"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/media"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/pkg/retry"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	var db *sql.DB
	postRepo := repository.NewMemoryPostRepository()
	historyRepo := repository.NewMemoryPostingHistoryRepository()
	if cfg.PostgresURI != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("Database is unreachable: %v", err)
		}
		if err := repository.EnsureSchema(context.Background(), db); err != nil {
			log.Fatalf("Failed to prepare database schema: %v", err)
		}
		postRepo = repository.NewPostRepository(db)
		historyRepo = repository.NewPostingHistoryRepository(db)
	} else {
		slog.Warn("POSTGRES_URI not set, posts are kept in memory")
	}

	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	monitor := health.NewMonitor(backendClient, cfg.HealthTimeout, cfg.HealthTTL)

	coordinator, err := media.NewCoordinator(cfg.StagingDir, media.Limits{
		MaxImageBytes: cfg.MaxImageBytes,
		MaxVideoBytes: cfg.MaxVideoBytes,
	})
	if err != nil {
		log.Fatalf("Failed to prepare staging directory: %v", err)
	}

	var uploader service.MediaUploader = service.NewBackendUploader(backendClient)
	if cfg.R2.Enabled() {
		uploader = service.NewR2Service(cfg.R2)
	}

	var redisConn asynq.RedisConnOpt
	var asynqClient *asynq.Client
	var scheduler service.Scheduler
	if cfg.RedisURI != "" {
		redisConn, err = asynq.ParseRedisURI(cfg.RedisURI)
		if err != nil {
			log.Fatalf("Invalid REDIS_URI: %v", err)
		}
		asynqClient = asynq.NewClient(redisConn)
		defer asynqClient.Close()
		scheduler = queue.NewScheduler(asynqClient)
	} else {
		slog.Warn("REDIS_URI not set, scheduled posts rely on the due sweep")
	}

	policy := retry.Policy{
		MaxAttempts: cfg.PublishMaxAttempts,
		BaseDelay:   cfg.PublishBaseDelay,
		MaxDelay:    cfg.PublishMaxDelay,
	}
	postService := service.NewPostService(postRepo, historyRepo, backendClient, monitor, coordinator, uploader, scheduler, policy)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    int(cfg.MaxVideoBytes) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error(err.Error(), "path", c.Path())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(postService)
	platform := handlers.NewPlatformHandler(monitor, backendClient)
	handlers.RegisterRoutes(api, post, platform)

	// cron jobs
	healthJob := job.NewHealthJob(monitor)
	duePostJob := job.NewDuePostJob(postService)

	c := cron.New()
	if err := c.AddFunc(cfg.HealthRefreshSpec, healthJob.RefreshHealth); err != nil {
		log.Fatalf("Invalid HEALTH_REFRESH_SPEC: %v", err)
	}
	if err := c.AddFunc(cfg.DueSweepSpec, duePostJob.PublishDuePosts); err != nil {
		log.Fatalf("Invalid DUE_SWEEP_SPEC: %v", err)
	}
	c.Start()
	defer c.Stop()

	go healthJob.RefreshHealth()

	//queue
	var server *asynq.Server
	if redisConn != nil {
		queueW := queue.NewQueue(postService)
		server = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		go func() {
			slog.Info("Starting the Asynq server...")
			if err := server.Run(queueW.Mux()); err != nil {
				log.Fatalf("Could not start Asynq server: %v", err)
			}
		}()
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("Server is running", "port", cfg.Port, "backend", cfg.BackendURL)

	gracefulShutdown(app, server, db)
}

func closeDB(db *sql.DB) {
	if db == nil {
		return
	}
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("Shutting down server...")

	if err := app.ShutdownWithTimeout(time.Minute); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}
	if server != nil {
		server.Shutdown()
	}

	closeDB(db)
	slog.Info("Server shutdown complete.")
}
