package server

import (
	"context"
	"errors"
	"time"

	"FinPolicy/internal/middleware"
	"FinPolicy/internal/registry"
	"FinPolicy/internal/scheduler"
	"FinPolicy/internal/stream"
	pkgch "FinPolicy/pkg/clickhouse"
	"FinPolicy/pkg/cache"
	"FinPolicy/pkg/config"
	xhttp "FinPolicy/pkg/http"
	pkgkafka "FinPolicy/pkg/kafka"
	applogger "FinPolicy/pkg/logger"

	"github.com/jmoiron/sqlx"
)

// Resources are the optional infrastructure clients. Nil fields are disabled.
type Resources struct {
	ClickHouse *pkgch.Client
	Redis      *cache.RedisCache
	Postgres   *sqlx.DB
}

// Close releases every open client.
func (r *Resources) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.ClickHouse != nil {
		errs = append(errs, r.ClickHouse.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.Postgres != nil {
		errs = append(errs, r.Postgres.Close())
	}
	return errors.Join(errs...)
}

// App encapsulates the service lifecycle.
type App struct {
	cfg        *config.Config
	root       *applogger.Logger
	l          *applogger.Logger
	httpServer *xhttp.Server
	registry   *registry.Registry
	scheduler  *scheduler.Scheduler
	consumer   *pkgkafka.Consumer
	producer   *pkgkafka.Producer
	pipeline   *middleware.PredictionPipeline
	hub        *stream.Hub
	res        *Resources

	runScheduler bool
}

// New creates an App. consumer, producer, pipeline and res may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	reg *registry.Registry,
	sched *scheduler.Scheduler,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	pipeline *middleware.PredictionPipeline,
	hub *stream.Hub,
	res *Resources,
) *App {
	return &App{
		cfg:          cfg,
		root:         l,
		l:            l.Component("app"),
		httpServer:   httpServer,
		registry:     reg,
		scheduler:    sched,
		consumer:     consumer,
		producer:     producer,
		pipeline:     pipeline,
		hub:          hub,
		res:          res,
		runScheduler: true,
	}
}

// DisableScheduler keeps the retrain loop off; manual runs over HTTP still work.
func (a *App) DisableScheduler() { a.runScheduler = false }

func (a *App) Registry() *registry.Registry    { return a.registry }
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Run starts every component and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if !a.cfg.Registry.SkipPreload {
		names := []string{a.cfg.Inference.ModelName}
		if fb := a.cfg.Inference.FallbackName; fb != "" && fb != a.cfg.Inference.ModelName {
			names = append(names, fb)
		}
		n := a.registry.Preload(ctx, names...)
		a.l.Info("registry preloaded", applogger.Int("loaded", n), applogger.Strings("models", names))
	}

	if _, err := a.scheduler.RestoreWindow(ctx); err != nil {
		a.l.Warn("sample window not restored, next cycle collects from the start", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.Topics.Outcomes))
	}

	if a.pipeline != nil {
		a.pipeline.Start(ctx)
	}

	if a.runScheduler {
		a.scheduler.Start(ctx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.Shutdown()
}

// Shutdown stops components in reverse dependency order.
func (a *App) Shutdown() error {
	timeout := a.httpServer.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	a.hub.Close()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	a.scheduler.Stop()
	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	// flush shipped logs before the producer goes away
	a.root.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if err := a.registry.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.res.Close(); err != nil {
		a.l.Warn("resource close error", applogger.Error(err))
		errs = append(errs, err)
	}
	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}
