// Package server assembles the application from its configured providers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gcpstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/pixelforge/imagesvc/internal/api"
	"github.com/pixelforge/imagesvc/internal/clock/system"
	"github.com/pixelforge/imagesvc/internal/config"
	"github.com/pixelforge/imagesvc/internal/generation"
	"github.com/pixelforge/imagesvc/internal/inference"
	"github.com/pixelforge/imagesvc/internal/logging"
	"github.com/pixelforge/imagesvc/internal/metrics"
	"github.com/pixelforge/imagesvc/internal/pdf"
	memorypublisher "github.com/pixelforge/imagesvc/internal/publisher/memory"
	gcppublisher "github.com/pixelforge/imagesvc/internal/publisher/pubsub"
	gcsstorage "github.com/pixelforge/imagesvc/internal/storage/gcs"
	localstorage "github.com/pixelforge/imagesvc/internal/storage/local"
	memorystorage "github.com/pixelforge/imagesvc/internal/storage/memory"
	memorystore "github.com/pixelforge/imagesvc/internal/store/memory"
	pgstore "github.com/pixelforge/imagesvc/internal/store/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	apiServer     *api.Server
	storageClient *gcpstorage.Client
	pubsubClient  *gcppublisher.Publisher
	recordStore   *pgstore.RecordStore
	renderer      *pdf.ChromeRenderer
}

// NewApp builds the application graph from configuration.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger.Info("creating application", zap.Int("server_port", cfg.Server.Port))
	metrics.Init()

	a := &App{
		cfg:    cfg,
		logger: logger,
	}
	clk := system.New()
	stats := metrics.NewStats()

	blobs, err := a.buildBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	records, err := a.buildRecordStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	var generator api.Generator
	if cfg.InferenceConfigured() {
		client, err := inference.New(inference.Config{
			BaseURL: cfg.Inference.BaseURL,
			APIKey:  cfg.Inference.APIKey,
			Timeout: cfg.HTTPTimeout(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create inference client: %w", err)
		}
		poller := generation.NewPoller(client, clk, generation.PollerConfig{
			Interval: cfg.PollInterval(),
			Timeout:  cfg.PollTimeout(),
		}, logger)
		resolver, err := generation.NewResolver(cfg.Images.OutputDir, nil, cfg.Images.MaxBytes, logger)
		if err != nil {
			return nil, fmt.Errorf("create resolver: %w", err)
		}
		generator = generation.NewPipeline(poller, resolver, blobs, records, publisher, clk, generation.PipelineConfig{
			BlobPrefix:    cfg.Storage.Prefix,
			ContentType:   cfg.Storage.ContentType,
			PublicBaseURL: cfg.Images.PublicBaseURL,
			Topic:         cfg.PubSub.Topic,
		}, logger)
	} else {
		logger.Warn("inference api not configured, generation endpoint disabled",
			zap.Strings("missing", cfg.MissingInferenceConfig()),
		)
	}

	var renderer pdf.Renderer
	if cfg.PDF.Enabled {
		chrome, err := pdf.NewChromeRenderer(ctx, pdf.Config{
			MaxParallel:   cfg.PDF.MaxParallel,
			RenderTimeout: cfg.RenderTimeout(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("start pdf renderer: %w", err)
		}
		a.renderer = chrome
		renderer = chrome
	}

	a.apiServer = api.New(api.Options{
		Config:    cfg,
		Generator: generator,
		Renderer:  renderer,
		Blobs:     blobs,
		Stats:     stats,
		Clock:     clk,
		Logger:    logger,
	})
	return a, nil
}

func (a *App) buildBlobStore(ctx context.Context) (generation.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		client, err := gcpstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.storageClient = client
		return gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
	case "local":
		return localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
	case "memory":
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Info("blob storage disabled")
		return nil, nil
	}
}

func (a *App) buildRecordStore(ctx context.Context) (generation.RecordStore, error) {
	switch a.cfg.DB.Provider {
	case "postgres":
		store, err := pgstore.NewRecordStore(ctx, pgstore.RecordStoreConfig{
			DSN:   a.cfg.DB.DSN,
			Table: a.cfg.DB.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("create record store: %w", err)
		}
		a.recordStore = store
		return store, nil
	case "memory":
		return memorystore.NewRecordStore(), nil
	default:
		a.logger.Info("record persistence disabled")
		return nil, nil
	}
}

func (a *App) buildPublisher(ctx context.Context) (generation.Publisher, error) {
	if a.cfg.PubSub.Topic == "" {
		a.logger.Info("event publishing disabled")
		return nil, nil
	}
	if a.cfg.PubSub.ProjectID == "memory" {
		return memorypublisher.NewPublisher(), nil
	}
	pub, err := gcppublisher.New(ctx, gcppublisher.Config{ProjectID: a.cfg.PubSub.ProjectID}, a.logger)
	if err != nil {
		return nil, err
	}
	a.pubsubClient = pub
	return pub, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// Close releases all infrastructure clients.
func (a *App) Close(context.Context) error {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.recordStore != nil {
		a.recordStore.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Error("pubsub close error", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Error("storage close error", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	return nil
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging.Development)
}
