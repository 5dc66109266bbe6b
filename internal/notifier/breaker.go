package notifier

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig configures per-channel circuit breakers.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker. Default 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open. Default 1m.
	OpenTimeout time.Duration
}

// breakers keeps one circuit breaker per channel name.
type breakers struct {
	mu     sync.Mutex
	config BreakerConfig
	m      map[string]*gobreaker.CircuitBreaker
}

func newBreakers(config BreakerConfig) *breakers {
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = time.Minute
	}
	return &breakers{
		config: config,
		m:      make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *breakers) get(channel string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.m[channel]
	if !ok {
		threshold := b.config.ConsecutiveFailures
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        channel,
			MaxRequests: 1,
			Timeout:     b.config.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
		b.m[channel] = cb
	}
	return cb
}

// execute runs fn through the channel's breaker.
func (b *breakers) execute(channel string, fn func() error) error {
	_, err := b.get(channel).Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// state returns the breaker state for channel.
func (b *breakers) state(channel string) gobreaker.State {
	return b.get(channel).State()
}
