package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/service"
	applogger "TradePilot/pkg/logger"
)

const (
	simBasePrice  = 100.0
	simVolatility = 0.0005
	simSpread     = 0.0002 // fraction of mid
)

// SimFeed emits a seeded random walk per symbol. It exists for local runs and
// tests where no broker is available; the walk is mild enough that indicator
// windows stay in sensible ranges.
type SimFeed struct {
	interval  time.Duration
	rng       *rand.Rand
	log       *applogger.Logger
	out       chan models.MarketSample
	done      chan struct{}
	mu        sync.Mutex
	started   bool
	closeOnce sync.Once
}

// NewSimFeed creates a simulated feed. A zero interval defaults to one second.
func NewSimFeed(interval time.Duration, seed int64, log *applogger.Logger) *SimFeed {
	if interval <= 0 {
		interval = time.Second
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimFeed{
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
		log:      log.Component("sim_feed"),
		out:      make(chan models.MarketSample, 256),
		done:     make(chan struct{}),
	}
}

var _ service.MarketFeed = (*SimFeed)(nil)

func (f *SimFeed) Subscribe(ctx context.Context, symbols []string) (<-chan models.MarketSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return nil, fmt.Errorf("feed already subscribed")
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to subscribe")
	}
	f.started = true

	go f.run(ctx, symbols)
	f.log.Info("simulated feed started",
		applogger.Strings("symbols", symbols),
		applogger.Duration("interval", f.interval))
	return f.out, nil
}

// run owns the rng; prices evolve one goroutine, all symbols per tick.
func (f *SimFeed) run(ctx context.Context, symbols []string) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	prices := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		prices[s] = simBasePrice
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-ticker.C:
			now := time.Now()
			for _, sym := range symbols {
				p := prices[sym] * (1 + f.rng.NormFloat64()*simVolatility)
				if p < 0.0001 {
					p = 0.0001
				}
				prices[sym] = p

				half := p * simSpread / 2
				sample := models.MarketSample{
					Symbol:    sym,
					Bid:       p - half,
					Ask:       p + half,
					Volume:    500 + f.rng.Float64()*1000,
					Timestamp: now,
				}
				select {
				case f.out <- sample:
				default:
					// reader lagging; drop rather than stall the walk
				}
			}
		}
	}
}

func (f *SimFeed) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
	})
	return nil
}
