package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"rtc-coordinator/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// ErrCircuitOpen is returned without calling the operation while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_requests_total",
		Help: "Total number of operations run through a circuit breaker",
	}, []string{"breaker", "status"}) // "success", "failure", "rejected"

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_errors_total",
		Help: "Total number of failed operations by error class",
	}, []string{"breaker", "error_type"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "State of the circuit breaker (0=closed, 1=half_open, 2=open)",
	}, []string{"breaker"})
)

// Settings tunes a circuit breaker
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// CoolDown is how long the circuit stays open before a trial call is allowed
	CoolDown time.Duration
	// Timeout bounds a single operation; zero means no extra bound
	Timeout time.Duration
}

// CircuitBreaker stops calling a failing dependency for a cool-down period.
// After the cool-down one trial call runs half-open; its outcome closes or
// reopens the circuit.
type CircuitBreaker struct {
	name     string
	settings Settings

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
	now                 func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(name string, settings Settings) *CircuitBreaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 3
	}
	if settings.CoolDown <= 0 {
		settings.CoolDown = 10 * time.Second
	}
	breakerState.WithLabelValues(name).Set(0)
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		state:    CircuitBreakerClosed,
		now:      time.Now,
	}
}

// Execute runs fn unless the circuit is open
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		requestsTotal.WithLabelValues(b.name, "rejected").Inc()
		return ErrCircuitOpen
	}

	if b.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.settings.Timeout)
		defer cancel()
	}

	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current state
func (b *CircuitBreaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitBreakerOpen:
		if b.now().Sub(b.openedAt) < b.settings.CoolDown {
			return false
		}
		b.setState(CircuitBreakerHalfOpen)
		b.trialInFlight = true
		logger.Warn("Circuit breaker HALF-OPEN - allowing trial request",
			zap.String("breaker", b.name))
		return true
	case CircuitBreakerHalfOpen:
		// Only one trial at a time
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return true
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	if err == nil {
		requestsTotal.WithLabelValues(b.name, "success").Inc()
		if b.state != CircuitBreakerClosed {
			logger.Info("Circuit breaker CLOSED - dependency recovered",
				zap.String("breaker", b.name))
		}
		b.consecutiveFailures = 0
		b.setState(CircuitBreakerClosed)
		return
	}

	requestsTotal.WithLabelValues(b.name, "failure").Inc()
	errorsTotal.WithLabelValues(b.name, classifyError(err)).Inc()
	b.consecutiveFailures++

	if b.state == CircuitBreakerHalfOpen || b.consecutiveFailures >= b.settings.FailureThreshold {
		if b.state != CircuitBreakerOpen {
			logger.Error("Circuit breaker OPEN - too many consecutive failures",
				zap.String("breaker", b.name),
				zap.Int("consecutive_failures", b.consecutiveFailures),
				zap.Error(err))
		}
		b.openedAt = b.now()
		b.setState(CircuitBreakerOpen)
	}
}

func (b *CircuitBreaker) setState(state CircuitBreakerState) {
	b.state = state
	switch state {
	case CircuitBreakerClosed:
		breakerState.WithLabelValues(b.name).Set(0)
	case CircuitBreakerHalfOpen:
		breakerState.WithLabelValues(b.name).Set(1)
	case CircuitBreakerOpen:
		breakerState.WithLabelValues(b.name).Set(2)
	}
}

// classifyError classifies errors for better metrics
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	case strings.Contains(errMsg, "permission denied") || strings.Contains(errMsg, "access denied"):
		return "permission"
	default:
		return "unknown"
	}
}
