// Package app assembles the scheduling stack from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/postflow/configs"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/offline"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/pkg/utils"
)

type App struct {
	Config *config.Config

	DB         *repository.DB
	OfflineDB  *repository.DB
	Records    repository.ScheduledRecordRepository
	Pending    repository.PendingPublishRepository
	Graph      service.GraphService
	Sealer     *utils.TokenSealer
	Offline    *offline.WriteQueue
	Scheduler  service.SchedulerService
	Publisher  *job.PublishJob
	Watermarks service.WatermarkService
	Queue      *queue.Queue

	// AsynqClient is nil when REDIS_URI is unset.
	AsynqClient *asynq.Client
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreDSN())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &App{Config: cfg, DB: db}

	a.OfflineDB, err = repository.OpenOfflineQueue(ctx, cfg.OfflineQueuePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open offline queue: %w", err)
	}

	a.Records = repository.NewScheduledRecordRepository(db)
	a.Pending = repository.NewPendingPublishRepository(db)
	a.Sealer = utils.NewTokenSealer(cfg.SecretKey)
	a.Graph = service.NewGraphService(&http.Client{}, cfg.GraphAPIBaseURL, cfg.Scheduling.PublishTimeout)
	a.Queue = queue.NewQueue(a.Graph, a.Sealer)

	a.Offline = offline.NewWriteQueue(db,
		repository.NewDocumentWriter(db, a.Records, a.Pending),
		repository.NewOfflineWriteRepository(a.OfflineDB))

	var canceler service.ArtifactCanceler
	if cfg.RedisURI != "" {
		a.AsynqClient = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisURI})
		canceler = queue.NewAsynqCanceler(a.AsynqClient, a.Sealer)
	} else {
		canceler = service.NewInlineCanceler(a.Graph)
	}

	a.Scheduler = service.NewSchedulerService(db, a.Records, a.Pending, a.Graph, canceler, a.Sealer, a.Offline,
		service.SchedulerOptionsFromConfig(cfg.Scheduling))
	a.Publisher = job.NewPublishJob(db, a.Records, a.Pending, a.Graph, a.Sealer,
		job.PublishJobOptionsFromConfig(cfg.Scheduling))

	a.Watermarks, err = newWatermarks(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newWatermarks(ctx context.Context, cfg *config.Config) (service.WatermarkService, error) {
	if !cfg.R2.Configured() {
		slog.Info("R2 not configured, watermarks disabled")
		return service.NewNoopWatermarkService(), nil
	}
	client, err := service.R2Client(ctx, cfg.R2)
	if err != nil {
		return nil, fmt.Errorf("r2 client: %w", err)
	}
	return service.NewWatermarkService(client, cfg.R2.BucketName, cfg.R2.PublicURL)
}

func (a *App) Close() error {
	var errs []error
	if a.AsynqClient != nil {
		errs = append(errs, a.AsynqClient.Close())
	}
	if a.OfflineDB != nil {
		errs = append(errs, a.OfflineDB.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// NewLogger builds the JSON logger used by every entrypoint.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
