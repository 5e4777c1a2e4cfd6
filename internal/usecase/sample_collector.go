package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	"TradePilot/pkg/logger"
)

// SampleCollector batches feed samples into the sample archive. One collector
// serves every session; Add is safe for concurrent use.
type SampleCollector struct {
	store   domrepo.SampleStore
	metrics domrepo.Metrics
	log     *logger.Logger

	batchSize int
	interval  time.Duration

	mu      sync.Mutex
	buf     []models.MarketSample
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func NewSampleCollector(store domrepo.SampleStore, metrics domrepo.Metrics, log *logger.Logger, batchSize int, interval time.Duration) *SampleCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SampleCollector{
		store:     store,
		metrics:   metrics,
		log:       log.Component("sample_collector"),
		batchSize: batchSize,
		interval:  interval,
		buf:       make([]models.MarketSample, 0, batchSize),
	}
}

// Start launches the periodic flusher.
func (c *SampleCollector) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("sample collector already running")
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	go c.flushLoop()
	return nil
}

// Add buffers a sample, flushing when the batch fills.
func (c *SampleCollector) Add(s models.MarketSample) {
	c.mu.Lock()
	c.buf = append(c.buf, s)
	var batch []models.MarketSample
	if len(c.buf) >= c.batchSize {
		batch = c.takeLocked()
	}
	c.mu.Unlock()

	if batch != nil {
		c.writeBatch(batch)
	}
}

// Stop flushes the remaining buffer and stops the flusher.
func (c *SampleCollector) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stopCh)
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.Flush()
	return nil
}

// Flush writes out whatever is buffered right now.
func (c *SampleCollector) Flush() {
	c.mu.Lock()
	batch := c.takeLocked()
	c.mu.Unlock()

	if batch != nil {
		c.writeBatch(batch)
	}
}

func (c *SampleCollector) takeLocked() []models.MarketSample {
	if len(c.buf) == 0 {
		return nil
	}
	batch := c.buf
	c.buf = make([]models.MarketSample, 0, c.batchSize)
	return batch
}

func (c *SampleCollector) flushLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

func (c *SampleCollector) writeBatch(batch []models.MarketSample) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.store.StoreBatch(ctx, batch); err != nil {
		c.metrics.RecordError("sample_archive")
		c.log.Warn("sample batch write failed", logger.Int("samples", len(batch)), logger.Error(err))
	}
}
