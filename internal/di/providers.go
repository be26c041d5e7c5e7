package di

import (
	"context"
	"fmt"
	"time"

	"FinPolicy/internal/domain/repository"
	"FinPolicy/internal/handler/api"
	"FinPolicy/internal/inference"
	"FinPolicy/internal/middleware"
	"FinPolicy/internal/registry"
	internalrepo "FinPolicy/internal/repository"
	"FinPolicy/internal/risk"
	"FinPolicy/internal/scheduler"
	"FinPolicy/internal/stream"
	"FinPolicy/internal/training"
	"FinPolicy/internal/usecase"
	"FinPolicy/pkg/cache"
	pkgch "FinPolicy/pkg/clickhouse"
	"FinPolicy/pkg/config"
	xhttp "FinPolicy/pkg/http"
	pkgkafka "FinPolicy/pkg/kafka"
	applogger "FinPolicy/pkg/logger"
	"FinPolicy/pkg/metrics"
	"FinPolicy/pkg/server"
	"FinPolicy/pkg/storage"

	"github.com/jmoiron/sqlx"
)

const initTimeout = 10 * time.Second

// ProvideKafkaProducer creates the producer, or nil when no brokers are set.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled() {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(cfg.Kafka.ProducerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the root logger. Error entries are shipped to Kafka
// when log shipping is on, so the collector is attached before any child
// logger is derived.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.LogShipping.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.LogShipping.TimeInterval,
			CountThreshold: cfg.LogShipping.CountThreshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics registers the Prometheus recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideStore opens the configured object store behind the circuit breaker.
func ProvideStore(cfg *config.Config, l *applogger.Logger) (storage.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	store, err := storage.New(ctx, cfg.Storage, l)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return store, nil
}

// ProvideRedis connects when an address is configured.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvidePostgres connects when a DSN is configured.
func ProvidePostgres(cfg *config.Config) (*sqlx.DB, error) {
	if cfg.Postgres.DSN == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	return internalrepo.OpenPostgres(ctx, cfg.Postgres.DSN)
}

// ProvideModelIndex creates the promotion ledger table, or returns nil so
// the registry keeps its pointer in object storage.
func ProvideModelIndex(db *sqlx.DB) (*internalrepo.PGModelIndex, error) {
	if db == nil {
		return nil, nil
	}
	idx := internalrepo.NewPGModelIndex(db)
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := idx.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return idx, nil
}

// ProvideClickHouse connects and creates tables when a host is configured.
func ProvideClickHouse(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled() {
		return nil, nil
	}
	client, err := pkgch.NewClient(cfg.ClickHouse.Options()...)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideResources groups the optional clients for shutdown and readiness.
func ProvideResources(ch *pkgch.Client, rc *cache.RedisCache, pg *sqlx.DB) *server.Resources {
	return &server.Resources{ClickHouse: ch, Redis: rc, Postgres: pg}
}

// ProvideRegistry builds the model registry. Redis and Postgres are used when
// connected.
func ProvideRegistry(
	cfg *config.Config,
	store storage.Store,
	rc *cache.RedisCache,
	idx *internalrepo.PGModelIndex,
	m repository.Metrics,
	l *applogger.Logger,
) *registry.Registry {
	opts := []registry.Option{
		registry.WithBasePath(cfg.Storage.BasePath),
		registry.WithCache(cfg.Registry.CacheSize, cfg.Registry.CacheTTL),
		registry.WithConstraintThreshold(cfg.Registry.ConstraintThreshold),
		registry.WithMaxAge(cfg.Registry.MaxAge),
		registry.WithMetrics(m),
	}
	if rc != nil {
		opts = append(opts, registry.WithBlobCache(rc, cfg.Registry.BlobTTL))
	}
	if idx != nil {
		opts = append(opts, registry.WithIndex(idx))
	}
	return registry.New(store, l, opts...)
}

// ProvideSampleStore reads training samples from ClickHouse, or keeps them
// in memory when ClickHouse is off.
func ProvideSampleStore(ch *pkgch.Client, l *applogger.Logger) repository.SampleStore {
	if ch == nil {
		return internalrepo.NewMemorySampleStore()
	}
	return internalrepo.NewCHSampleStore(ch, l)
}

// ProvideTrainingSink returns nil when ClickHouse is off.
func ProvideTrainingSink(ch *pkgch.Client) repository.TrainingSink {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHTrainingSink(ch)
}

// ProvideTrainer maps the trainer section onto PPO options.
func ProvideTrainer(cfg *config.Config, l *applogger.Logger) *training.Trainer {
	t := cfg.Trainer
	return training.NewTrainer(l,
		training.WithDiscount(t.Gamma, t.Lambda),
		training.WithClipRatio(t.ClipRatio),
		training.WithCoefficients(t.EntropyCoeff, t.ValueCoeff, t.ConstraintCoeff),
		training.WithLearningRate(t.LearningRate),
		training.WithMaxGradNorm(t.MaxGradNorm),
		training.WithBatchSize(t.BatchSize),
		training.WithEpochs(t.Epochs),
		training.WithSeed(t.Seed),
	)
}

func ProvideRiskEngine(cfg *config.Config, m repository.Metrics, l *applogger.Logger) *risk.Engine {
	return risk.NewEngine(l, risk.WithConfig(cfg.Risk)).WithMetrics(m)
}

func ProvideHub(l *applogger.Logger) *stream.Hub {
	return stream.NewHub(l)
}

// ProvidePredictionPipeline buffers prediction publishes when Kafka is on.
func ProvidePredictionPipeline(cfg *config.Config, producer *pkgkafka.Producer, m repository.Metrics, l *applogger.Logger) *middleware.PredictionPipeline {
	if producer == nil {
		return nil
	}
	next := internalrepo.NewKafkaPredictionLog(producer, cfg.Kafka.Topics.Predictions)
	return middleware.NewPredictionPipeline(next, m, l,
		middleware.WithBufferSize(cfg.Kafka.PredictionBuffer),
		middleware.WithBackoff(cfg.Kafka.BackoffMin, cfg.Kafka.BackoffMax),
	)
}

// ProvidePredictionLog publishes through the pipeline when Kafka is on and
// falls back to the application log otherwise.
func ProvidePredictionLog(p *middleware.PredictionPipeline, l *applogger.Logger) repository.PredictionLog {
	if p == nil {
		return internalrepo.NewLogPredictionLog(l)
	}
	return p
}

func ProvideInference(
	cfg *config.Config,
	reg *registry.Registry,
	engine *risk.Engine,
	plog repository.PredictionLog,
	hub *stream.Hub,
	m repository.Metrics,
	l *applogger.Logger,
) *inference.Service {
	opts := []inference.Option{
		inference.WithConfig(cfg.Inference),
		inference.WithBroadcaster(hub),
		inference.WithMetrics(m),
	}
	if plog != nil {
		opts = append(opts, inference.WithPredictionLog(plog))
	}
	return inference.NewService(reg, engine, l, opts...)
}

func ProvideScheduler(
	cfg *config.Config,
	samples repository.SampleStore,
	reg *registry.Registry,
	trainer *training.Trainer,
	sink repository.TrainingSink,
	rc *cache.RedisCache,
	m repository.Metrics,
	l *applogger.Logger,
) *scheduler.Scheduler {
	opts := []scheduler.Option{
		scheduler.WithConfig(cfg.Scheduler),
		scheduler.WithMetrics(m),
	}
	if sink != nil {
		opts = append(opts, scheduler.WithSink(sink))
	}
	if rc != nil {
		opts = append(opts, scheduler.WithLocker(rc))
	}
	return scheduler.New(samples, reg, trainer, l, opts...)
}

// ProvideMarket reads candles from ClickHouse; nil when ClickHouse is off.
func ProvideMarket(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) *usecase.MarketUseCase {
	if ch == nil {
		return nil
	}
	return usecase.NewMarketUseCase(internalrepo.NewCHCandleStore(ch, l), cfg.Market)
}

func ProvideOutcomeHandler(cfg *config.Config, samples repository.SampleStore, m repository.Metrics, l *applogger.Logger) *usecase.OutcomeHandler {
	return usecase.NewOutcomeHandler(cfg.Kafka.Topics.Outcomes, cfg.Scheduler.InputDim, samples, m, l)
}

// ProvideKafkaConsumer subscribes the outcome handler; nil when Kafka is off.
func ProvideKafkaConsumer(cfg *config.Config, oh *usecase.OutcomeHandler, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled() {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l, cfg.Kafka.ConsumerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(oh)
	consumer.WithHook(pkgkafka.TraceHook())
	return consumer, nil
}

// ProvideHTTPHandler assembles every route group.
func ProvideHTTPHandler(
	cfg *config.Config,
	svc *inference.Service,
	engine *risk.Engine,
	market *usecase.MarketUseCase,
	reg *registry.Registry,
	idx *internalrepo.PGModelIndex,
	sched *scheduler.Scheduler,
	hub *stream.Hub,
	res *server.Resources,
	l *applogger.Logger,
) xhttp.Handler {
	var mr api.MarketReader
	if market != nil {
		mr = market
	}
	var hist api.PromotionHistory
	if idx != nil {
		hist = idx
	}
	return xhttp.Handlers{
		api.NewDecisionHandler(l, svc, engine, mr),
		api.NewModelsHandler(l, reg, hist),
		api.NewSchedulerHandler(l, sched, cfg.Scheduler.CycleTimeout),
		api.NewStreamHandler(hub),
		api.NewReadinessHandler(readinessChecks(res), 2*time.Second),
	}
}

func readinessChecks(res *server.Resources) map[string]api.Check {
	checks := make(map[string]api.Check)
	if res == nil {
		return checks
	}
	if res.ClickHouse != nil {
		checks["clickhouse"] = res.ClickHouse.Health
	}
	if res.Redis != nil {
		rc := res.Redis
		checks["redis"] = func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() }
	}
	if res.Postgres != nil {
		checks["postgres"] = res.Postgres.PingContext
	}
	return checks
}

func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h, l, xhttp.WithConfig(cfg.Server))
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	reg *registry.Registry,
	sched *scheduler.Scheduler,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	pipeline *middleware.PredictionPipeline,
	hub *stream.Hub,
	res *server.Resources,
) *server.App {
	return server.New(cfg, l, srv, reg, sched, consumer, producer, pipeline, hub, res)
}
