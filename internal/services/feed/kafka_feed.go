package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/service"
	pkgkafka "TradePilot/pkg/kafka"
	applogger "TradePilot/pkg/logger"
)

// KafkaFeed delivers market samples from the sample topic. The feed registers
// itself as the topic handler, so per-partition ordering from the consumer
// carries through to the delivery channel.
type KafkaFeed struct {
	consumer  *pkgkafka.Consumer
	topic     string
	log       *applogger.Logger
	out       chan models.MarketSample
	symbols   map[string]struct{} // frozen once Subscribe returns
	done      chan struct{}
	mu        sync.Mutex
	started   bool
	closeOnce sync.Once
}

// NewKafkaFeed creates a feed over an existing consumer.
func NewKafkaFeed(consumer *pkgkafka.Consumer, topic string, log *applogger.Logger) *KafkaFeed {
	return &KafkaFeed{
		consumer: consumer,
		topic:    topic,
		log:      log.Component("kafka_feed"),
		out:      make(chan models.MarketSample, 256),
		symbols:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

var (
	_ service.MarketFeed      = (*KafkaFeed)(nil)
	_ pkgkafka.MessageHandler = (*KafkaFeed)(nil)
)

func (f *KafkaFeed) Subscribe(ctx context.Context, symbols []string) (<-chan models.MarketSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return nil, fmt.Errorf("feed already subscribed")
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to subscribe")
	}
	for _, s := range symbols {
		f.symbols[s] = struct{}{}
	}

	f.consumer.RegisterHandler(f)
	if err := f.consumer.Start(); err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}
	f.started = true

	f.log.Info("subscribed to market samples",
		applogger.String("topic", f.topic),
		applogger.Strings("symbols", symbols))
	return f.out, nil
}

func (f *KafkaFeed) Topic() string { return f.topic }

// Handle decodes one sample message and forwards it to the subscriber.
func (f *KafkaFeed) Handle(ctx context.Context, b []byte) error {
	var s models.MarketSample
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("unmarshal sample: %w", err)
	}
	if s.Symbol == "" || s.Bid <= 0 || s.Ask <= 0 {
		f.log.Debug("dropping malformed sample", applogger.String("payload", string(b)))
		return nil
	}
	if _, ok := f.symbols[s.Symbol]; !ok {
		return nil
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}

	select {
	case f.out <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	}
}

// Close stops the consumer and, once its workers have drained, the delivery
// channel.
func (f *KafkaFeed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = f.consumer.Stop(ctx)
		if err == nil {
			close(f.out)
		}
	})
	return err
}
