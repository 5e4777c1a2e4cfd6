package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	domsvc "TradePilot/internal/domain/service"
	"TradePilot/internal/handler/api"
	"TradePilot/internal/middleware"
	internalrepo "TradePilot/internal/repository"
	svccache "TradePilot/internal/service/cache"
	"TradePilot/internal/service/marketws"
	"TradePilot/internal/service/ratelimit"
	"TradePilot/internal/services/execution"
	"TradePilot/internal/services/feed"
	"TradePilot/internal/services/inference"
	"TradePilot/internal/services/remote"
	"TradePilot/internal/services/sentiment"
	"TradePilot/internal/services/training"
	"TradePilot/internal/usecase"
	pkgcache "TradePilot/pkg/cache"
	pkgch "TradePilot/pkg/clickhouse"
	"TradePilot/pkg/config"
	xhttp "TradePilot/pkg/http"
	pkgkafka "TradePilot/pkg/kafka"
	applogger "TradePilot/pkg/logger"
	pkgmetrics "TradePilot/pkg/metrics"
	pkgqueue "TradePilot/pkg/queue"
	"TradePilot/pkg/server"
)

// ProvideLogger creates the process logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	log, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() *pkgmetrics.Recorder {
	return pkgmetrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the engine
// database exists. Tables are created by the stores that own them.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
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
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideRedisCache creates the shared Redis client wrapper.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		host, portStr = cfg.Redis.Addr, "6379"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis addr %q: %w", cfg.Redis.Addr, err)
	}

	cache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache, nil
}

// ProvideEngineCache layers an in-process cache over Redis for the hot
// prediction and decision lookups. The L1 bound covers predictions for every
// (symbol, model) pair plus latest decisions with room to spare.
func ProvideEngineCache(redisCache *pkgcache.RedisCache, log *applogger.Logger) *svccache.ServiceCache {
	layered := pkgcache.NewLayeredCache(redisCache, pkgcache.WithLayeredMemorySize(4096))
	return svccache.NewServiceCache(layered, log)
}

// ProvideKafkaProducer creates the Kafka producer shared by the market
// pipeline and the log collector.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
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

// ProvideObjectStore creates the Redis object store for weights, snapshots
// and version records.
func ProvideObjectStore(redisCache *pkgcache.RedisCache, cfg *config.Config) *internalrepo.RedisObjectStore {
	return internalrepo.NewRedisObjectStore(redisCache.Client(), cfg.Redis.Prefix+":objects")
}

// ProvideDecisionStore creates the ClickHouse decision audit store.
func ProvideDecisionStore(chClient *pkgch.Client, cfg *config.Config, log *applogger.Logger) (*internalrepo.CHDecisionStore, error) {
	store := internalrepo.NewCHDecisionStore(chClient, cfg.ClickHouse.Database, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("decision store schema: %w", err)
	}
	return store, nil
}

// ProvideSampleStore creates the ClickHouse sample archive.
func ProvideSampleStore(chClient *pkgch.Client, cfg *config.Config, log *applogger.Logger) (*internalrepo.CHSampleStore, error) {
	store := internalrepo.NewCHSampleStore(chClient, cfg.ClickHouse.Database, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("sample store schema: %w", err)
	}
	return store, nil
}

// ProvideTrainingLog creates the ClickHouse training job log.
func ProvideTrainingLog(chClient *pkgch.Client, cfg *config.Config) (*internalrepo.CHTrainingLog, error) {
	tl := internalrepo.NewCHTrainingLog(chClient, cfg.ClickHouse.Database)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tl.Init(ctx); err != nil {
		return nil, fmt.Errorf("training log schema: %w", err)
	}
	return tl, nil
}

// ProvideVersionStore creates the model version catalog.
func ProvideVersionStore(objects domrepo.ObjectStore, log *applogger.Logger) *internalrepo.ObjectVersionStore {
	return internalrepo.NewObjectVersionStore(objects, log)
}

// ProvideJobStore creates the training job record store.
func ProvideJobStore(objects domrepo.ObjectStore) *internalrepo.ObjectJobStore {
	return internalrepo.NewObjectJobStore(objects)
}

// ProvideTrainingQueue creates the Redis-backed training job queue. Job
// registration happens in ProvideApp once the pipeline exists.
func ProvideTrainingQueue(cfg *config.Config, log *applogger.Logger, redisCache *pkgcache.RedisCache) *pkgqueue.RedisQueue {
	var mode pkgqueue.QueueMode
	switch cfg.Queue.Mode {
	case "produceronly":
		mode = pkgqueue.ModeProducerOnly
	case "consumeronly":
		mode = pkgqueue.ModeConsumerOnly
	default:
		mode = pkgqueue.ModeProducerConsumer
	}

	qcfg := &pkgqueue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	return pkgqueue.NewRedisQueue(log, qcfg, redisCache.Client(), mode,
		pkgqueue.WithKeyPrefix("tradepilot:queue:"+cfg.Queue.Name))
}

// ProvideInferenceService selects the in-process engine or the remote client
// by config.
func ProvideInferenceService(cfg *config.Config, versions domrepo.VersionStore, log *applogger.Logger) (domsvc.InferenceService, error) {
	switch cfg.Inference.Mode {
	case "remote":
		return remote.NewInferenceClient(cfg), nil
	case "local":
		return inference.NewEngine(cfg, versions, log), nil
	default:
		return nil, fmt.Errorf("unknown inference mode %q", cfg.Inference.Mode)
	}
}

// ProvideTrainingService selects the in-process trainer or the remote client
// by config.
func ProvideTrainingService(cfg *config.Config, log *applogger.Logger) (domsvc.TrainingService, error) {
	switch cfg.Training.Mode {
	case "remote":
		return remote.NewTrainingClient(cfg), nil
	case "local":
		return training.NewLocalTrainer(log), nil
	default:
		return nil, fmt.Errorf("unknown training mode %q", cfg.Training.Mode)
	}
}

// ProvideOrderExecutor selects the paper or REST executor by config.
func ProvideOrderExecutor(cfg *config.Config, log *applogger.Logger) (domsvc.OrderExecutor, error) {
	switch cfg.Execution.Mode {
	case "rest":
		return execution.NewRESTExecutor(cfg, ratelimit.New(), log), nil
	case "paper":
		return execution.NewPaperExecutor(log), nil
	default:
		return nil, fmt.Errorf("unknown execution mode %q", cfg.Execution.Mode)
	}
}

// ProvideSentimentAnalyzer creates the shared reference-symbol analyzer.
func ProvideSentimentAnalyzer(cfg *config.Config) *sentiment.Analyzer {
	return sentiment.NewAnalyzer(cfg.Market.MinSamples)
}

// ProvidePerformanceTracker creates the rolling model accuracy tracker.
func ProvidePerformanceTracker(objects domrepo.ObjectStore, cfg *config.Config, log *applogger.Logger) *usecase.PerformanceTracker {
	return usecase.NewPerformanceTracker(objects, log, cfg.Ensemble.PerformanceWindow)
}

// ProvideSampleCollector creates the batching sample archiver shared by all
// sessions.
func ProvideSampleCollector(samples domrepo.SampleStore, metrics domrepo.Metrics, log *applogger.Logger) *usecase.SampleCollector {
	return usecase.NewSampleCollector(samples, metrics, log, 0, 0)
}

// ProvideOrchestratorFactory builds the per-session orchestrator constructor.
// Engines, trackers and stores are shared; the market feed is per session.
func ProvideOrchestratorFactory(
	cfg *config.Config,
	executor domsvc.OrderExecutor,
	predictions *usecase.PredictionService,
	analyzer *sentiment.Analyzer,
	ensemble *usecase.EnsembleEngine,
	performance *usecase.PerformanceTracker,
	outcomes *usecase.OutcomeProcessor,
	collector *usecase.SampleCollector,
	samples domrepo.SampleStore,
	objects domrepo.ObjectStore,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) usecase.OrchestratorFactory {
	return func(session models.Session) (*usecase.Orchestrator, error) {
		marketFeed, err := provideMarketFeed(cfg, session, metrics, log)
		if err != nil {
			return nil, err
		}
		return usecase.NewOrchestrator(session, usecase.OrchestratorDeps{
			Config:      cfg,
			Feed:        marketFeed,
			Executor:    executor,
			Predictions: predictions,
			Sentiment:   analyzer,
			Ensemble:    ensemble,
			Performance: performance,
			Outcomes:    outcomes,
			Collector:   collector,
			Samples:     samples,
			Objects:     objects,
			Metrics:     metrics,
			Log:         log,
		}), nil
	}
}

// provideMarketFeed creates one feed per session. Kafka sessions get their
// own consumer group reading from the stream head, so every session sees the
// full live sample flow without replaying history.
func provideMarketFeed(cfg *config.Config, session models.Session, metrics domrepo.Metrics, log *applogger.Logger) (domsvc.MarketFeed, error) {
	switch cfg.Market.Feed {
	case "sim":
		return feed.NewSimFeed(0, 0, log), nil
	case "kafka":
		consumer, err := pkgkafka.NewConsumer(
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID+"-"+session.ID),
			pkgkafka.WithConsumerAutoOffsetReset("latest"),
			pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
			pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
			pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
			pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
			pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		)
		if err != nil {
			return nil, fmt.Errorf("feed consumer: %w", err)
		}
		consumer.WithConsumerHook(pkgkafka.ErrorCountHook{
			Fn: func(string) { metrics.RecordError("feed_consume") },
		})
		return feed.NewKafkaFeed(consumer, cfg.Kafka.SampleTopic, log), nil
	default:
		return nil, fmt.Errorf("unknown market feed %q", cfg.Market.Feed)
	}
}

// ProvideMarketPipeline creates the websocket-to-Kafka ingest pipeline, or
// nil when no provider websocket is configured.
func ProvideMarketPipeline(cfg *config.Config, producer *pkgkafka.Producer, metrics domrepo.Metrics, log *applogger.Logger) *middleware.MarketPipeline {
	if cfg.Market.WebSocketURL == "" {
		return nil
	}

	symbols := append(append([]string{}, cfg.Market.Symbols...), cfg.Market.ReferenceSymbols...)
	source := marketws.New(cfg.Market.WebSocketURL, cfg.Market.APIKey, symbols,
		cfg.Market.ReconnectDelay, cfg.Market.PingInterval, log)

	return middleware.NewMarketPipeline(source, producer, cfg.Kafka.SampleTopic, metrics, log,
		middleware.WithBufferSize(2000),
	)
}

// ProvideHTTPHandler creates the engine API handler with infrastructure
// health checks.
func ProvideHTTPHandler(
	log *applogger.Logger,
	registry *usecase.SessionRegistry,
	trainingPipeline *usecase.TrainingPipeline,
	decisions *internalrepo.CHDecisionStore,
	versions *internalrepo.ObjectVersionStore,
	engineCache *svccache.ServiceCache,
	chClient *pkgch.Client,
	redisCache *pkgcache.RedisCache,
) *api.EngineHandler {
	checks := []api.HealthCheck{
		{Name: "clickhouse", Check: chClient.Health},
		{Name: "redis", Check: func(ctx context.Context) error {
			return redisCache.Client().Ping(ctx).Err()
		}},
	}
	return api.NewEngineHandler(log, registry, trainingPipeline, decisions, versions, engineCache, checks...)
}

// ProvideHTTPServer creates the Echo server around the engine handler.
func ProvideHTTPServer(cfg *config.Config, handler *api.EngineHandler) *xhttp.Server {
	return xhttp.NewServer(handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
}

// ProvideApp assembles the application: registers the training job on its
// queue, routes aggregated logs to Kafka and hands everything to the server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	registry *usecase.SessionRegistry,
	collector *usecase.SampleCollector,
	pipeline *middleware.MarketPipeline,
	trainingQueue *pkgqueue.RedisQueue,
	trainingPipeline *usecase.TrainingPipeline,
	httpServer *xhttp.Server,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	redisCache *pkgcache.RedisCache,
) *server.App {
	trainingQueue.RegisterJob(trainingPipeline)

	if cfg.Kafka.LogTopic != "" {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 200,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      internalrepo.NewKafkaLogPublisher(producer),
		})
	}

	return server.New(cfg, log, registry, collector, pipeline, trainingQueue,
		httpServer, producer, chClient, redisCache)
}
