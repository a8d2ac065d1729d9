package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	sessionapi "github.com/aliskhannn/image-compressor/internal/api/handlers/session"
	"github.com/aliskhannn/image-compressor/internal/api/router"
	"github.com/aliskhannn/image-compressor/internal/api/server"
	"github.com/aliskhannn/image-compressor/internal/cache"
	"github.com/aliskhannn/image-compressor/internal/codec"
	"github.com/aliskhannn/image-compressor/internal/compress"
	"github.com/aliskhannn/image-compressor/internal/config"
	"github.com/aliskhannn/image-compressor/internal/infra/kafka/consumer"
	"github.com/aliskhannn/image-compressor/internal/infra/kafka/producer"
	"github.com/aliskhannn/image-compressor/internal/kafka/handlers/settings"
	"github.com/aliskhannn/image-compressor/internal/model"
	artifactrepo "github.com/aliskhannn/image-compressor/internal/repository/artifact"
	sessionsvc "github.com/aliskhannn/image-compressor/internal/service/session"
	"github.com/aliskhannn/image-compressor/internal/storage/file"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Retry strategy for Kafka.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	storage, err := file.NewStorage(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.BucketName, cfg.Storage.UseSSL)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	// Codec collaborators share one bounded worker pool.
	pool := codec.NewPool(cfg.Pipeline.Workers)
	encoders := codec.DefaultRegistry(pool)

	p := producer.New(&cfg.Kafka, strategy)

	ctrl := compress.New(ctx, compress.Collaborators{
		Decoder:      codec.NewDecoder(pool),
		Rasterizer:   codec.NewRasterizer(pool),
		Preprocessor: codec.NewPreprocessor(pool),
		Processor:    codec.New(pool),
		Encoders:     encoders,
	}, cache.New(cfg.Pipeline.CacheMaxImages, cfg.Pipeline.CacheMaxEntries), defaultSettings(encoders), compress.Options{
		StageTimeout: cfg.Pipeline.StageTimeout,
		OnSideDone:   p.Notify,
	})

	repo := artifactrepo.NewRepository(db)
	service := sessionsvc.NewService(ctrl, encoders, storage, repo, cfg.Pipeline.Debounce)
	defer service.Close()

	c := consumer.New(&cfg.Kafka, strategy, settings.NewHandler(service))

	var wg sync.WaitGroup
	wg.Add(2)
	go c.Consume(ctx, &wg)
	go p.Run(ctx, &wg)

	r := router.Setup(sessionapi.NewHandler(service))
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("image compressor started")

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	wg.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	if err := db.Master.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close master DB")
	}
	for i, s := range db.Slaves {
		if err := s.Close(); err != nil {
			zlog.Logger.Error().Err(err).Int("slave", i).Msg("failed to close slave DB")
		}
	}

	if err = p.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
	}
	if err = c.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
	}
}

// defaultSettings starts side A as the unmodified original and side B as
// a default JPEG.
func defaultSettings(encoders *codec.Registry) compress.Defaults {
	jpeg, err := encoders.Defaults(model.EncoderJPEG)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("jpeg encoder not registered")
	}

	return compress.Defaults{
		Encoder: [2]*model.EncoderSettings{nil, jpeg},
	}
}
