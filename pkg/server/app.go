package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"TradePilot/internal/middleware"
	"TradePilot/internal/usecase"
	pkgcache "TradePilot/pkg/cache"
	pkgch "TradePilot/pkg/clickhouse"
	"TradePilot/pkg/config"
	xhttp "TradePilot/pkg/http"
	pkgkafka "TradePilot/pkg/kafka"
	applogger "TradePilot/pkg/logger"
	pkgqueue "TradePilot/pkg/queue"
)

// App owns the engine process lifecycle: trading sessions, sample archival,
// training workers, the optional market pipeline and the HTTP surface.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	registry   *usecase.SessionRegistry
	collector  *usecase.SampleCollector
	pipeline   *middleware.MarketPipeline // nil unless a websocket provider is configured
	queue      *pkgqueue.RedisQueue
	httpServer *xhttp.Server
	producer   *pkgkafka.Producer
	chClient   *pkgch.Client
	redisCache *pkgcache.RedisCache
}

// New creates the App from fully wired components.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	registry *usecase.SessionRegistry,
	collector *usecase.SampleCollector,
	pipeline *middleware.MarketPipeline,
	queue *pkgqueue.RedisQueue,
	httpServer *xhttp.Server,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	redisCache *pkgcache.RedisCache,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		collector:  collector,
		pipeline:   pipeline,
		queue:      queue,
		httpServer: httpServer,
		producer:   producer,
		chClient:   chClient,
		redisCache: redisCache,
	}
}

// Run starts every component, opens the boot session for the configured
// symbols and blocks until an interrupt arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.log.Info("starting engine",
		applogger.String("environment", a.cfg.Environment),
		applogger.Strings("symbols", a.cfg.Market.Symbols))

	if err := a.collector.Start(); err != nil {
		return fmt.Errorf("start sample collector: %w", err)
	}

	if err := a.queue.Start(); err != nil {
		return fmt.Errorf("start training queue: %w", err)
	}
	a.queue.StartRetryProcessor()

	if a.pipeline != nil {
		go func() {
			if err := a.pipeline.Run(ctx); err != nil {
				a.log.Error("market pipeline stopped", applogger.Error(err))
			}
		}()
		a.log.Info("market pipeline started",
			applogger.String("topic", a.cfg.Kafka.SampleTopic))
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// The boot session trades the configured symbols. Further sessions are
	// opened through the API.
	if len(a.cfg.Market.Symbols) > 0 {
		session, err := a.registry.Start(ctx, a.cfg.Market.Symbols)
		if err != nil {
			a.log.Error("start boot session", applogger.Error(err))
		} else {
			a.log.Info("boot session started",
				applogger.String("session_id", session.ID))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown stops components in dependency order: sessions first so their
// final snapshots and samples still reach the stores, infrastructure last.
func (a *App) shutdown() error {
	a.registry.StopAll(a.cfg.Server.ShutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if err := a.queue.Stop(ctx); err != nil {
		a.log.Warn("training queue stop error", applogger.Error(err))
	}
	if err := a.collector.Stop(ctx); err != nil {
		a.log.Warn("sample collector stop error", applogger.Error(err))
	}

	if err := a.producer.Close(); err != nil {
		a.log.Warn("kafka producer close error", applogger.Error(err))
	}
	if err := a.chClient.Close(); err != nil {
		a.log.Warn("clickhouse close error", applogger.Error(err))
	}
	if err := a.redisCache.Close(); err != nil {
		a.log.Warn("redis close error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
	return nil
}
