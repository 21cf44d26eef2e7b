// Command etl turns the latest ICON-D2 forecast files into delta grids.
// It runs once and exits unless a schedule is configured, in which case it
// keeps running and serves health, readiness and metrics endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/grid-delta-etl/internal/adapter/grib"
	httpadapter "github.com/couchcryptid/grid-delta-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/grid-delta-etl/internal/adapter/kafka"
	"github.com/couchcryptid/grid-delta-etl/internal/adapter/opendata"
	"github.com/couchcryptid/grid-delta-etl/internal/adapter/wgf4"
	"github.com/couchcryptid/grid-delta-etl/internal/config"
	"github.com/couchcryptid/grid-delta-etl/internal/domain"
	"github.com/couchcryptid/grid-delta-etl/internal/observability"
	"github.com/couchcryptid/grid-delta-etl/internal/pipeline"
	"github.com/couchcryptid/grid-delta-etl/internal/scheduler"
	"github.com/couchcryptid/grid-delta-etl/internal/workpool"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	source := opendata.NewClient(cfg, metrics, logger)
	decoder := grib.NewDecoder(grib.Selector{
		Discipline: cfg.GribDiscipline,
		Category:   cfg.GribCategory,
		Parameter:  cfg.GribParameter,
	})
	extractor := pipeline.NewExtractor(decoder, cfg.Multiplier, cfg.Sentinel, metrics)
	writer := wgf4.NewWriter(cfg.OutputDir, logger)
	pool := workpool.New(
		workpool.WithWorkers(cfg.Workers),
		workpool.WithName("extract"),
		workpool.WithLogger(logger),
	)

	var opts []pipeline.Option
	if cfg.KafkaEnabled() {
		publisher := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithPublisher(publisher))
		logger.Info("frame notifications enabled", "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(source, extractor, writer, pool, pipeline.Options{
		DownloadDir:  cfg.DownloadDir,
		FetchTimeout: cfg.FetchTimeout,
		Order:        domain.OrderPolicy(cfg.Order),
		DiffPolicy:   domain.DiffPolicy(cfg.DiffPolicy),
	}, logger, metrics, opts...)

	if cfg.Schedule == 0 {
		if _, err := p.Run(ctx); err != nil {
			return 1
		}
		return 0
	}

	return daemon(ctx, cfg, p, logger)
}

func daemon(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) int {
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	sched := scheduler.New(cfg.Schedule, p, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler start failed", "error", err)
		return 1
	}

	<-ctx.Done()
	logger.Info("shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return 0
}
