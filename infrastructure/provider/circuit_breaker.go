package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VozVule/local-knowledge/domain/chat"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is wrapped in the AdapterError returned while a breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker open")

// callerAbort carries an error caused by the caller's own context ending;
// the breaker records it as a success.
type callerAbort struct {
	err error
}

func (e *callerAbort) Error() string { return e.err.Error() }
func (e *callerAbort) Unwrap() error { return e.err }

// guard marks err as a caller abort when ctx is already done
func guard(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return &callerAbort{err: err}
	}
	return err
}

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
}

// DefaultCircuitBreakerConfig returns sensible defaults for circuit breaker configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,                // Open after 5 consecutive failures
		Timeout:          60 * time.Second, // Stay open for 60 seconds
		MaxRequests:      1,                // Allow a single probe in half-open state
	}
}

// CircuitBreakerAdapter wraps a provider adapter with one breaker per operation
type CircuitBreakerAdapter struct {
	adapter  chat.ProviderAdapter
	name     string
	config   CircuitBreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
	mutex    sync.RWMutex
}

// NewCircuitBreakerAdapter wraps adapter; name identifies it in logs and errors
func NewCircuitBreakerAdapter(adapter chat.ProviderAdapter, name string, config CircuitBreakerConfig) *CircuitBreakerAdapter {
	return &CircuitBreakerAdapter{
		adapter:  adapter,
		name:     name,
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Chat implements chat.ProviderAdapter with circuit breaker protection
func (c *CircuitBreakerAdapter) Chat(ctx context.Context, history []chat.ChatMessage) (chat.ChatMessage, error) {
	if !c.config.Enabled {
		return c.adapter.Chat(ctx, history)
	}

	breaker := c.getOrCreateBreaker("chat")
	result, err := breaker.Execute(func() (interface{}, error) {
		reply, err := c.adapter.Chat(ctx, history)
		return reply, guard(ctx, err)
	})
	if err != nil {
		return chat.ChatMessage{}, c.translate(breaker, "chat", err)
	}
	return result.(chat.ChatMessage), nil
}

// Embed implements chat.ProviderAdapter with circuit breaker protection
func (c *CircuitBreakerAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.config.Enabled {
		return c.adapter.Embed(ctx, texts)
	}

	breaker := c.getOrCreateBreaker("embed")
	result, err := breaker.Execute(func() (interface{}, error) {
		vectors, err := c.adapter.Embed(ctx, texts)
		return vectors, guard(ctx, err)
	})
	if err != nil {
		return nil, c.translate(breaker, "embed", err)
	}
	return result.([][]float32), nil
}

// Describe passes through to the wrapped adapter
func (c *CircuitBreakerAdapter) Describe() chat.Descriptor {
	if d, ok := c.adapter.(chat.Describer); ok {
		return d.Describe()
	}
	return chat.Descriptor{Provider: c.name}
}

// GetCircuitStates returns the current state of all circuit breakers for monitoring
func (c *CircuitBreakerAdapter) GetCircuitStates() map[string]gobreaker.State {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	states := make(map[string]gobreaker.State)
	for op, breaker := range c.breakers {
		states[op] = breaker.State()
	}
	return states
}

func (c *CircuitBreakerAdapter) translate(breaker *gobreaker.CircuitBreaker, op string, err error) error {
	var abort *callerAbort
	if errors.As(err, &abort) {
		return abort.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		logrus.WithFields(logrus.Fields{
			"adapter":   c.name,
			"operation": op,
			"state":     breaker.State(),
		}).Warn("Circuit breaker is open, failing fast")
		return chat.NewAdapterError(c.name, op, fmt.Errorf("%w: %v", ErrCircuitOpen, err))
	}
	return err
}

// getOrCreateBreaker gets or creates the circuit breaker for an operation
func (c *CircuitBreakerAdapter) getOrCreateBreaker(op string) *gobreaker.CircuitBreaker {
	c.mutex.RLock()
	if breaker, exists := c.breakers[op]; exists {
		c.mutex.RUnlock()
		return breaker
	}
	c.mutex.RUnlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Double-check pattern: another goroutine might have created it while we waited
	if breaker, exists := c.breakers[op]; exists {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("%s-%s", c.name, op),
		MaxRequests: c.config.MaxRequests,
		Timeout:     c.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.config.FailureThreshold
		},
		// only transport failures count against the back-end
		IsSuccessful: func(err error) bool {
			var abort *callerAbort
			return err == nil || errors.As(err, &abort) || !chat.IsAdapterError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker":    name,
				"from_state": from,
				"to_state":   to,
			}).Info("Circuit breaker state changed")
		},
	}

	breaker := gobreaker.NewCircuitBreaker(settings)
	c.breakers[op] = breaker

	logrus.WithFields(logrus.Fields{"adapter": c.name, "operation": op}).Debug("Created new circuit breaker")
	return breaker
}
