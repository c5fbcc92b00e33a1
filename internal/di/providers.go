package di

import (
	"context"
	"fmt"
	"time"

	domrepo "RecessionLens/internal/domain/repository"
	"RecessionLens/internal/domain/service"
	"RecessionLens/internal/handler/api"
	mid "RecessionLens/internal/middleware"
	internalrepo "RecessionLens/internal/repository"
	"RecessionLens/internal/service/ratelimit"
	"RecessionLens/internal/usecase"
	"RecessionLens/pkg/cache"
	pkgch "RecessionLens/pkg/clickhouse"
	"RecessionLens/pkg/config"
	xhttp "RecessionLens/pkg/http"
	pkgkafka "RecessionLens/pkg/kafka"
	applogger "RecessionLens/pkg/logger"
	"RecessionLens/pkg/logstream"
	"RecessionLens/pkg/metrics"
	"RecessionLens/pkg/queue"
	"RecessionLens/pkg/server"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const logDigestTopic = "log.digest"

// TrainQueue runs retraining jobs and accepts new ones.
type TrainQueue interface {
	server.Worker
	queue.Enqueuer
}

// Pipeline holds the components the batch commands need.
type Pipeline struct {
	Config    *config.Config
	Logger    *applogger.Logger
	Source    domrepo.IndicatorSource
	Artifacts domrepo.ArtifactStore
	Trainer   *usecase.Trainer
	Evaluator *usecase.Evaluator
	Indicator domrepo.IndicatorStore

	ch *pkgch.Client
}

// ProvideHub creates the live log stream.
func ProvideHub() *logstream.Hub {
	return logstream.NewHub(500)
}

// ProvideLogger creates the application logger. Lines are teed into hub and
// repeated warnings are digested onto it.
func ProvideLogger(cfg *config.Config, hub *logstream.Hub) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stderr"}
	if hub != nil {
		lc.Tee = hub
	}
	l, err := applogger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if hub != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: 30 * time.Second,
			Topic:        logDigestTopic,
			Publisher:    hub,
		})
	}
	return l, nil
}

// ProvideCLILogger creates the logger of the batch commands.
func ProvideCLILogger(cfg *config.Config) (*applogger.Logger, error) {
	return ProvideLogger(cfg, nil)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

func needsClickHouse(cfg *config.Config) bool {
	sink := domrepo.NormalizeSink(cfg.Predictions.Sink)
	return domrepo.SourceKind(cfg.Source.Type) == domrepo.SourceClickHouse ||
		sink == domrepo.SinkClickHouse ||
		(sink == domrepo.SinkKafka && cfg.Kafka.Consumer.Enabled)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when nothing
// reads from or writes to ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !needsClickHouse(cfg) {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideIndicatorStore creates the ClickHouse indicator table, or nil
// without ClickHouse.
func ProvideIndicatorStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (domrepo.IndicatorStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewCHIndicatorStore(ch, cfg.ClickHouse.Database+"."+cfg.Source.Table)
	store.SetLogger(l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("indicator store: %w", err)
	}
	return store, nil
}

// ProvideIndicatorSource selects where training history is read from.
func ProvideIndicatorSource(cfg *config.Config, store domrepo.IndicatorStore, l *applogger.Logger) (domrepo.IndicatorSource, error) {
	if domrepo.SourceKind(cfg.Source.Type) == domrepo.SourceClickHouse {
		if store == nil {
			return nil, fmt.Errorf("indicator source: clickhouse is not configured")
		}
		return store, nil
	}
	src := internalrepo.NewCSVSource(cfg.Pipeline.InputPath)
	src.SetLogger(l)
	return src, nil
}

// ProvideArtifactStore opens the configured artifact backend.
func ProvideArtifactStore(cfg *config.Config, l *applogger.Logger) (domrepo.ArtifactStore, error) {
	if domrepo.ArtifactBackend(cfg.Artifacts.Backend) == domrepo.BackendBadger {
		store, err := internalrepo.NewBadgerArtifactStore(cfg.Artifacts.BadgerPath, cfg.Artifacts.Compress)
		if err != nil {
			return nil, err
		}
		store.SetLogger(l)
		return store, nil
	}
	store := internalrepo.NewFileArtifactStore(cfg.Pipeline.ModelPath, cfg.Pipeline.ScalerPath, cfg.Artifacts.Compress)
	store.SetLogger(l)
	return store, nil
}

// ProvideTrainer creates the training use case.
func ProvideTrainer(cfg *config.Config, store domrepo.ArtifactStore, m domrepo.Metrics, l *applogger.Logger) *usecase.Trainer {
	t := usecase.NewTrainer(usecase.TrainerConfigFrom(cfg.Pipeline), store, m)
	t.SetLogger(l)
	return t
}

// ProvideEvaluator creates the evaluation use case.
func ProvideEvaluator(cfg *config.Config, l *applogger.Logger) *usecase.Evaluator {
	e := usecase.NewEvaluator(cfg.Export.Dir)
	e.SetLogger(l)
	return e
}

// ProvidePipeline groups the batch components.
func ProvidePipeline(
	cfg *config.Config,
	l *applogger.Logger,
	source domrepo.IndicatorSource,
	artifacts domrepo.ArtifactStore,
	trainer *usecase.Trainer,
	evaluator *usecase.Evaluator,
	indicators domrepo.IndicatorStore,
	ch *pkgch.Client,
) *Pipeline {
	return &Pipeline{
		Config:    cfg,
		Logger:    l,
		Source:    source,
		Artifacts: artifacts,
		Trainer:   trainer,
		Evaluator: evaluator,
		Indicator: indicators,
		ch:        ch,
	}
}

// ProvideModelRegistry creates the serving model registry.
func ProvideModelRegistry(store domrepo.ArtifactStore, l *applogger.Logger) *usecase.ModelRegistry {
	r := usecase.NewModelRegistry(store)
	r.SetLogger(l)
	return r
}

// ProvideRedisClient connects to Redis, or returns nil when it is disabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, err
	}
	return rc.Client(), nil
}

// ProvideCache layers memory over Redis when Redis is enabled.
func ProvideCache(rc *redis.Client) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(1000))
	}
	return cache.NewLayeredCache(cache.NewRedisCacheFromClient(rc, "recession"))
}

// ProvideKafkaProducer creates a Kafka producer, or nil unless predictions
// are published to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if domrepo.NormalizeSink(cfg.Predictions.Sink) != domrepo.SinkKafka {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePredictionStore creates the ClickHouse prediction table, or nil
// without ClickHouse.
func ProvidePredictionStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (domrepo.PredictionStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewCHPredictionStore(ch, cfg.ClickHouse.Database+"."+cfg.Predictions.Table)
	store.SetLogger(l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("prediction store: %w", err)
	}
	return store, nil
}

// ProvidePredictionSink routes new forecasts to the configured backend, or is
// nil when predictions.sink is none.
func ProvidePredictionSink(
	cfg *config.Config,
	store domrepo.PredictionStore,
	producer *pkgkafka.Producer,
	m domrepo.Metrics,
) *usecase.PredictionSink {
	switch kind := domrepo.NormalizeSink(cfg.Predictions.Sink); kind {
	case domrepo.SinkKafka:
		if producer == nil {
			return nil
		}
		return usecase.NewPredictionSink(internalrepo.NewKafkaPredictionPublisher(producer, cfg.Kafka.Topic), nil, m, kind)
	case domrepo.SinkClickHouse:
		if store == nil {
			return nil
		}
		return usecase.NewPredictionSink(nil, store, m, kind)
	}
	return nil
}

// ProvideSinkBuffer buffers deliveries while the sink is unavailable.
func ProvideSinkBuffer(sink *usecase.PredictionSink, m domrepo.Metrics, l *applogger.Logger) *mid.SinkBuffer {
	if sink == nil {
		return nil
	}
	return mid.NewSinkBuffer(sink, m,
		mid.WithBufferSize(2000),
		mid.WithBatchSize(200),
		mid.WithLogger(l),
	)
}

// ProvidePredictionService creates the forecast use case. History reads from
// ClickHouse when present.
func ProvidePredictionService(
	cfg *config.Config,
	reg *usecase.ModelRegistry,
	c cache.Service,
	store domrepo.PredictionStore,
	buf *mid.SinkBuffer,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.PredictionService {
	opts := []usecase.PredictionOption{
		usecase.WithCache(c, cfg.Predictions.CacheTTL),
		usecase.WithMetrics(m),
	}
	if store != nil {
		opts = append(opts, usecase.WithStore(store))
	}
	if buf != nil {
		opts = append(opts, usecase.WithSink(buf))
	}
	svc := usecase.NewPredictionService(reg, opts...)
	svc.SetLogger(l)
	return svc
}

// ProvideTrainJob creates the retraining job, locked through the cache.
func ProvideTrainJob(
	source domrepo.IndicatorSource,
	trainer *usecase.Trainer,
	reg *usecase.ModelRegistry,
	c cache.Service,
	l *applogger.Logger,
) *usecase.TrainJob {
	j := usecase.NewTrainJob(source, trainer, reg)
	j.SetLogger(l)
	j.SetLock(c, time.Hour)
	return j
}

// ProvideTrainQueue runs train jobs on Redis when enabled, in process otherwise.
func ProvideTrainQueue(cfg *config.Config, rc *redis.Client, job *usecase.TrainJob, l *applogger.Logger) TrainQueue {
	qc := &queue.QueueConfig{
		Workers:    cfg.Redis.Workers,
		QueueSize:  16,
		RetryLimit: 1,
		RetryDelay: 30 * time.Second,
	}
	if rc == nil {
		return queue.NewMemoryQueue(l, qc, job)
	}
	q := queue.NewRedisQueue(l, qc, rc, queue.WithKeyPrefix(cfg.Redis.Queue))
	q.RegisterJob(job)
	return q
}

// ProvideTrainCron schedules periodic retraining, or is nil without a
// retrain.schedule.
func ProvideTrainCron(cfg *config.Config, q TrainQueue, l *applogger.Logger) (*usecase.TrainCron, error) {
	if cfg.Retrain.Schedule == "" {
		return nil, nil
	}
	tc, err := usecase.NewTrainCron(cfg.Retrain.Schedule, q)
	if err != nil {
		return nil, err
	}
	tc.SetLogger(l)
	return tc, nil
}

// ProvideTrainScheduler exposes the train queue to the HTTP layer.
func ProvideTrainScheduler(q TrainQueue) service.TrainScheduler {
	return usecase.NewQueueTrainScheduler(q)
}

// ProvideKafkaConsumer creates a Kafka consumer, or nil unless prediction
// events are consumed back into ClickHouse.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if domrepo.NormalizeSink(cfg.Predictions.Sink) != domrepo.SinkKafka || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers, cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetLogger(l)
	consumer.WithConsumerHook(pkgkafka.TraceHook())
	return consumer, nil
}

// ProvidePredictionEventsHandler stores consumed predictions, or is nil
// without a consumer.
func ProvidePredictionEventsHandler(
	cfg *config.Config,
	consumer *pkgkafka.Consumer,
	store domrepo.PredictionStore,
	m domrepo.Metrics,
	l *applogger.Logger,
) pkgkafka.MessageHandler {
	if consumer == nil || store == nil {
		return nil
	}
	h := usecase.NewPredictionEventsHandler(cfg.Kafka.Topic, store, m)
	h.SetLogger(l)
	return h
}

// ProvideRateLimit throttles per client IP.
func ProvideRateLimit(cfg *config.Config) echo.MiddlewareFunc {
	return ratelimit.New().Middleware(cfg.Server.RateLimit.Burst, cfg.Server.RateLimit.RPS)
}

// ProvideHTTPHandler creates the API routes.
func ProvideHTTPHandler(
	l *applogger.Logger,
	svc *usecase.PredictionService,
	scheduler service.TrainScheduler,
	hub *logstream.Hub,
	limit echo.MiddlewareFunc,
) xhttp.Handler {
	return api.NewRecessionEchoHandler(l, svc, svc, scheduler, hub, limit)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	reg *usecase.ModelRegistry,
	handler xhttp.Handler,
	tq TrainQueue,
	cron *usecase.TrainCron,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	buf *mid.SinkBuffer,
	artifacts domrepo.ArtifactStore,
	ch *pkgch.Client,
	rc *redis.Client,
) *server.App {
	app := server.New(cfg, l, reg, handler, consumer, kh)
	app.AddWorker(tq)
	if cron != nil {
		// started after the queue it feeds, stopped before it
		app.AddWorker(cron)
	}
	app.AddCloser(artifacts)
	if buf != nil {
		// the buffer flushes on stop, then closes the sink and its producer
		app.AddWorker(buf)
		app.AddCloser(buf)
	}
	if ch != nil {
		app.AddCloser(ch)
	}
	if rc != nil {
		app.AddCloser(rc)
	}
	return app
}

// Close releases what the pipeline opened.
func (p *Pipeline) Close() {
	if p.Artifacts != nil {
		if err := p.Artifacts.Close(); err != nil {
			p.Logger.Warn("artifact store close error", applogger.Error(err))
		}
	}
	if p.Indicator != nil {
		if err := p.Indicator.Close(); err != nil {
			p.Logger.Warn("indicator store close error", applogger.Error(err))
		}
	}
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			p.Logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}
}
