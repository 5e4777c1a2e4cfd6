package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	svcmetrics "TradePilot/internal/service/metrics"
	"TradePilot/pkg/logger"
)

// SampleSource is the upstream quote stream, normally the provider WebSocket
// client. Read channels close after an error; the pipeline reconnects and
// reads again.
type SampleSource interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.MarketSample, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SamplePublisher is the downstream sample sink, normally the Kafka producer.
type SamplePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// MarketPipeline bridges the provider WebSocket to the sample topic. It
// validates, throttles per symbol, optionally transforms, and buffers samples
// while the broker is unavailable. Messages are keyed by symbol so one
// symbol's samples stay on one partition.
type MarketPipeline struct {
	source   SampleSource
	producer SamplePublisher
	metrics  domrepo.Metrics
	log      *logger.Logger

	topic   string
	maxRate int
	bufSize int
	bufCh   chan models.MarketSample
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	// per-symbol last accepted time
	lastSeen map[string]time.Time
	// symbol normalization hook (optional)
	transform func(models.MarketSample) models.MarketSample
}

type PipelineOption func(*MarketPipeline)

// WithMaxRate caps accepted samples per second per symbol.
func WithMaxRate(n int) PipelineOption {
	return func(p *MarketPipeline) {
		p.maxRate = n
	}
}

// WithBufferSize sets the retry buffer size used while the broker is down.
func WithBufferSize(n int) PipelineOption {
	return func(p *MarketPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook run on every sample before publishing, used to
// normalize provider symbol names.
func WithTransform(fn func(models.MarketSample) models.MarketSample) PipelineOption {
	return func(p *MarketPipeline) { p.transform = fn }
}

// NewMarketPipeline creates a pipeline from source to the given sample topic.
func NewMarketPipeline(source SampleSource, producer SamplePublisher, topic string, metrics domrepo.Metrics, log *logger.Logger, opts ...PipelineOption) *MarketPipeline {
	p := &MarketPipeline{
		source:   source,
		producer: producer,
		metrics:  metrics,
		log:      log.Component("market_pipeline"),
		topic:    topic,
		maxRate:  20,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.MarketSample, p.bufSize)
	return p
}

// Run connects the source, subscribes, and pumps samples into the broker
// until ctx is done. Stream errors trigger reconnects paced by the source's
// reconnect delay.
func (p *MarketPipeline) Run(ctx context.Context) error {
	if err := p.source.Connect(ctx); err != nil {
		return err
	}
	if err := p.source.Subscribe(ctx); err != nil {
		_ = p.source.Close()
		return err
	}
	p.Start(ctx)
	defer p.Stop()
	defer p.source.Close()

	p.log.Info("pipeline running", logger.String("topic", p.topic))
	samples, errs := p.source.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			p.metrics.RecordError("stream")
			p.log.Warn("stream error, reconnecting", logger.Error(err))
			for {
				if ctx.Err() != nil {
					return nil
				}
				if rerr := p.source.Reconnect(ctx); rerr != nil {
					p.metrics.RecordError("reconnect")
					p.log.Error("reconnect failed", logger.Error(rerr))
					continue
				}
				break
			}
			samples, errs = p.source.Read(ctx)
		case s, ok := <-samples:
			if !ok {
				samples = nil
				continue
			}
			_ = p.Publish(ctx, s)
		}
	}
}

// Start launches background flushing of buffered samples.
func (p *MarketPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case s := <-p.bufCh:
				svcmetrics.PipelineBufferDepth.Set(float64(len(p.bufCh)))
				if err := p.producer.Publish(ctx, p.topic, []byte(s.Symbol), s); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- s:
					default:
						svcmetrics.PipelineSamples.WithLabelValues("dropped").Inc()
					}
				} else {
					svcmetrics.PipelineSamples.WithLabelValues("published").Inc()
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *MarketPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Publish validates, throttles, and forwards one sample to the broker,
// buffering it when the broker is unavailable.
func (p *MarketPipeline) Publish(ctx context.Context, s models.MarketSample) error {
	now := time.Now()
	if s.Timestamp.IsZero() {
		s.Timestamp = now
	}
	if err := validateSample(s); err != nil {
		svcmetrics.PipelineSamples.WithLabelValues("invalid").Inc()
		return err
	}
	if p.transform != nil {
		s = p.transform(s)
		if err := validateSample(s); err != nil {
			svcmetrics.PipelineSamples.WithLabelValues("invalid").Inc()
			return err
		}
	}
	if !p.allow(s.Symbol, now) {
		svcmetrics.PipelineSamples.WithLabelValues("throttled").Inc()
		return nil
	}

	if err := p.producer.Publish(ctx, p.topic, []byte(s.Symbol), s); err != nil {
		p.metrics.RecordError("pipeline_publish")
		// buffer non-blocking
		select {
		case p.bufCh <- s:
			svcmetrics.PipelineSamples.WithLabelValues("buffered").Inc()
			svcmetrics.PipelineBufferDepth.Set(float64(len(p.bufCh)))
		default:
			svcmetrics.PipelineSamples.WithLabelValues("dropped").Inc()
		}
		return fmt.Errorf("pipeline publish: %w", err)
	}
	svcmetrics.PipelineSamples.WithLabelValues("published").Inc()
	return nil
}

// Buffered reports how many samples wait in the retry buffer.
func (p *MarketPipeline) Buffered() int { return len(p.bufCh) }

// Connected reports the source connection status.
func (p *MarketPipeline) Connected() bool { return p.source.IsConnected() }

func validateSample(s models.MarketSample) error {
	if s.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if s.Bid <= 0 || s.Ask <= 0 {
		return fmt.Errorf("quote invalid")
	}
	if s.Volume < 0 {
		return fmt.Errorf("volume negative")
	}
	return nil
}

func (p *MarketPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRate <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	if last.IsZero() {
		p.lastSeen[symbol] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRate) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
