package main

import (
	"context"
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
	"github.com/gofrs/flock"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/app"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	slog.SetDefault(app.NewLogger(os.Stdout, cfg.LogLevel))

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer closeApp(a)

	fiberApp := fiber.New(fiber.Config{
		ReadTimeout:  time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    20 * 1024 * 1024, // 20 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	fiberApp.Use(logger.New())
	fiberApp.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return cfg.FrontendURL == "" || origin == cfg.FrontendURL
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	handlers.RegisterRoutes(fiberApp,
		authMiddleware.AuthMiddleware(),
		handlers.NewScheduleHandler(a.Scheduler, a.Watermarks),
		handlers.NewReconcileHandler(a.Publisher, a.Offline),
		handlers.NewWatermarkHandler(a.Watermarks),
	)

	// cron jobs
	c := cron.New()
	c.AddFunc(every(cfg.Scheduling.DrainInterval), a.Offline.Watch)

	lock := flock.New(cfg.LockPath)
	locked, err := lock.TryLock()
	switch {
	case err != nil:
		slog.Error("could not take reconciler lock", "path", cfg.LockPath, "error", err)
	case !locked:
		slog.Warn("another reconciler holds the lock, sweeps disabled here", "path", cfg.LockPath)
	default:
		defer lock.Unlock()
		c.AddFunc(every(cfg.Scheduling.ReconcileInterval), a.Publisher.Run)
		go a.Publisher.Run()
	}
	c.Start()
	defer c.Stop()

	var worker *asynq.Server
	if cfg.RedisURI != "" {
		worker = asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisURI}, asynq.Config{
			Concurrency: 10,
		})
		go func() {
			slog.Info("starting the asynq server")
			if err := worker.Run(a.Queue.Mux()); err != nil {
				log.Fatalf("Could not start Asynq server: %v", err)
			}
		}()
	}

	go func() {
		if err := fiberApp.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	slog.Info("server is running", "addr", cfg.ListenAddr, "store", cfg.StoreDriver)

	gracefulShutdown(fiberApp, worker)
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

func closeApp(a *app.App) {
	fmt.Fprint(os.Stdout, "Closing database connections... ")
	if err := a.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close: %v\n", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(fiberApp *fiber.App, worker *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	slog.Info("shutting down server")

	if worker != nil {
		worker.Shutdown()
	}
	if err := fiberApp.Shutdown(); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	slog.Info("server shutdown complete")
}
