//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	domrepo "TradePilot/internal/domain/repository"
	"TradePilot/internal/handler/api"
	internalrepo "TradePilot/internal/repository"
	svccache "TradePilot/internal/service/cache"
	"TradePilot/internal/usecase"
	"TradePilot/pkg/config"
	pkgmetrics "TradePilot/pkg/metrics"
	pkgqueue "TradePilot/pkg/queue"
	"TradePilot/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Logging and metrics
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(domrepo.Metrics), new(*pkgmetrics.Recorder)),

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideEngineCache,
		ProvideKafkaProducer,
		wire.Bind(new(svccache.EngineCache), new(*svccache.ServiceCache)),

		// Stores
		ProvideObjectStore,
		ProvideDecisionStore,
		ProvideSampleStore,
		ProvideTrainingLog,
		ProvideVersionStore,
		ProvideJobStore,
		wire.Bind(new(domrepo.ObjectStore), new(*internalrepo.RedisObjectStore)),
		wire.Bind(new(domrepo.DecisionStore), new(*internalrepo.CHDecisionStore)),
		wire.Bind(new(domrepo.SampleStore), new(*internalrepo.CHSampleStore)),
		wire.Bind(new(domrepo.TrainingLog), new(*internalrepo.CHTrainingLog)),
		wire.Bind(new(domrepo.VersionStore), new(*internalrepo.ObjectVersionStore)),
		wire.Bind(new(domrepo.JobStore), new(*internalrepo.ObjectJobStore)),
		wire.Bind(new(api.DecisionReader), new(*internalrepo.CHDecisionStore)),
		wire.Bind(new(api.ModelCatalog), new(*internalrepo.ObjectVersionStore)),

		// Model services and execution
		ProvideInferenceService,
		ProvideTrainingService,
		ProvideOrderExecutor,

		// Use cases
		ProvideSentimentAnalyzer,
		ProvidePerformanceTracker,
		ProvideSampleCollector,
		usecase.NewPredictionService,
		usecase.NewEnsembleEngine,
		usecase.NewOutcomeProcessor,
		usecase.NewTrainingPipeline,
		usecase.NewSessionRegistry,
		ProvideOrchestratorFactory,

		// Queue and ingest
		ProvideTrainingQueue,
		wire.Bind(new(pkgqueue.QueueService), new(*pkgqueue.RedisQueue)),
		ProvideMarketPipeline,

		// HTTP surface
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
