package retry

import "sync"

// ── Circuit breaker state ────────────────────────────────────────────

// State is the breaker's position.
type State int

const (
	// StateClosed while failures stay under the threshold.
	StateClosed State = iota
	// StateOpen once MaxFailures consecutive failures are recorded.
	// It holds until Reset.
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ── Configuration ────────────────────────────────────────────────────

// CircuitBreakerConfig configures a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// MaxFailures is the run of consecutive failures that opens the
	// circuit (default 5).
	MaxFailures int
}

// DefaultCircuitBreakerConfig returns the defaults listed above.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{MaxFailures: 5}
}

// ReceiveBreakerConfig trips after a short run of hard receive errors.
// The listener rebuilds its socket when the circuit opens, then resets
// the breaker.
func ReceiveBreakerConfig(maxFailures int) *CircuitBreakerConfig {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &CircuitBreakerConfig{MaxFailures: maxFailures}
}

// ── CircuitBreaker ───────────────────────────────────────────────────

// CircuitBreaker counts consecutive failures of one resource and opens
// once MaxFailures is reached.  Callers report outcomes with
// [CircuitBreaker.Record], poll [CircuitBreaker.Tripped], and
// [CircuitBreaker.Reset] after recovering the resource themselves.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
}

// NewCircuitBreaker creates a closed breaker.  A nil cfg uses
// [DefaultCircuitBreakerConfig].
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	maxF := cfg.MaxFailures
	if maxF <= 0 {
		maxF = 5
	}
	return &CircuitBreaker{state: StateClosed, maxFailures: maxF}
}

// Record reports the outcome of one call.  A success breaks the run of
// failures but does not close an open circuit.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateClosed {
			cb.failures = 0
		}
		return
	}
	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// Tripped reports whether the circuit is open.
func (cb *CircuitBreaker) Tripped() bool {
	return cb.CurrentState() == StateOpen
}

// CurrentState returns the breaker's position.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current run of consecutive failures.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the circuit and clears the counter.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
}
