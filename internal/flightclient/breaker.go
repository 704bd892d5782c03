package flightclient

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the protected function while the
// breaker is open or out of half-open probes.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type BreakerSettings struct {
	Name                 string
	WindowSize           int
	MinimumCalls         int
	FailureRateThreshold float64
	OpenTimeout          time.Duration
	HalfOpenMaxCalls     int
	// IsFailure decides whether an error counts against the breaker.
	// Defaults to err != nil.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker keeps the outcome of the last WindowSize calls and opens
// once the failure rate in that window reaches the threshold.
type CircuitBreaker struct {
	settings BreakerSettings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	outcomes []bool
	next     int
	recorded int
	failures int
	openedAt time.Time
	// generation changes on every transition; outcomes of calls admitted
	// under an older generation are dropped.
	generation uint64

	probesInFlight int
	probeSuccesses int
}

func NewCircuitBreaker(settings BreakerSettings) *CircuitBreaker {
	if settings.WindowSize < 1 {
		settings.WindowSize = 10
	}
	if settings.MinimumCalls < 1 || settings.MinimumCalls > settings.WindowSize {
		settings.MinimumCalls = settings.WindowSize
	}
	if settings.FailureRateThreshold <= 0 || settings.FailureRateThreshold > 1 {
		settings.FailureRateThreshold = 0.5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	if settings.HalfOpenMaxCalls < 1 {
		settings.HalfOpenMaxCalls = 1
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		settings: settings,
		now:      time.Now,
		outcomes: make([]bool, settings.WindowSize),
	}
}

func (b *CircuitBreaker) Name() string {
	return b.settings.Name
}

func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Execute runs fn when the breaker admits the call and records its outcome.
func (b *CircuitBreaker) Execute(fn func() error) error {
	gen, err := b.acquire()
	if err != nil {
		return err
	}
	err = fn()
	b.record(gen, !b.settings.IsFailure(err))
	return err
}

func (b *CircuitBreaker) acquire() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()
	switch b.state {
	case StateOpen:
		return 0, ErrCircuitOpen
	case StateHalfOpen:
		if b.probesInFlight+b.probeSuccesses >= b.settings.HalfOpenMaxCalls {
			return 0, ErrCircuitOpen
		}
		b.probesInFlight++
	}
	return b.generation, nil
}

func (b *CircuitBreaker) record(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.probesInFlight--
		if !success {
			b.transitionLocked(StateOpen)
			return
		}
		b.probeSuccesses++
		if b.probeSuccesses >= b.settings.HalfOpenMaxCalls {
			b.transitionLocked(StateClosed)
		}
	case StateClosed:
		b.pushLocked(success)
		if b.recorded >= b.settings.MinimumCalls &&
			float64(b.failures)/float64(b.recorded) >= b.settings.FailureRateThreshold {
			b.transitionLocked(StateOpen)
		}
	}
}

// refreshLocked moves an expired open breaker to half-open.
func (b *CircuitBreaker) refreshLocked() {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.settings.OpenTimeout)) {
		b.transitionLocked(StateHalfOpen)
	}
}

func (b *CircuitBreaker) pushLocked(success bool) {
	if b.recorded == len(b.outcomes) {
		if !b.outcomes[b.next] {
			b.failures--
		}
	} else {
		b.recorded++
	}
	b.outcomes[b.next] = success
	if !success {
		b.failures++
	}
	b.next = (b.next + 1) % len(b.outcomes)
}

func (b *CircuitBreaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.generation++
	b.probesInFlight = 0
	b.probeSuccesses = 0

	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.next, b.recorded, b.failures = 0, 0, 0
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}
