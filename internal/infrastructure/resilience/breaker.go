package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests while half-open")
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures breaker behavior. Zero fields take defaults.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// HalfOpenProbes is both the number of calls admitted while half-open
	// and the number of successes needed to close again.
	HalfOpenProbes uint32
	// OpenTimeout is how long the breaker stays open.
	OpenTimeout time.Duration
	// OnStateChange observes transitions; called with the breaker locked.
	OnStateChange func(name string, from, to State)
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.HalfOpenProbes == 0 {
		s.HalfOpenProbes = 1
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	return s
}

// Breaker is a single circuit breaker.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu          sync.Mutex
	state       State
	generation  uint64
	failures    uint32
	successes   uint32
	inFlight    uint32
	openedUntil time.Time
}

// New creates a closed breaker.
func New(name string, settings Settings) *Breaker {
	return &Breaker{
		name:     name,
		settings: settings.withDefaults(),
		now:      time.Now,
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Allow admits one call. The returned done func must be called exactly once
// with the outcome. Outcomes reported after a state change are ignored.
func (b *Breaker) Allow() (func(success bool), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	switch b.state {
	case StateOpen:
		return nil, ErrCircuitOpen
	case StateHalfOpen:
		if b.inFlight >= b.settings.HalfOpenProbes {
			return nil, ErrTooManyRequests
		}
	}
	b.inFlight++

	gen := b.generation
	var once sync.Once
	return func(success bool) {
		once.Do(func() { b.done(gen, success) })
	}, nil
}

func (b *Breaker) done(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		return
	}
	if b.inFlight > 0 {
		b.inFlight--
	}

	if success {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.settings.HalfOpenProbes {
				b.transition(StateClosed)
			}
		}
		return
	}

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// refresh moves an expired open breaker to half-open.
func (b *Breaker) refresh() {
	if b.state == StateOpen && !b.now().Before(b.openedUntil) {
		b.transition(StateHalfOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.generation++
	b.failures, b.successes, b.inFlight = 0, 0, 0
	if to == StateOpen {
		b.openedUntil = b.now().Add(b.settings.OpenTimeout)
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

// Set hands out one breaker per key, typically a target host.
type Set struct {
	settings Settings
	breakers sync.Map
}

// NewSet creates an empty set whose breakers share settings.
func NewSet(settings Settings) *Set {
	return &Set{settings: settings}
}

// For returns the breaker for key, creating it on first use.
func (s *Set) For(key string) *Breaker {
	if b, ok := s.breakers.Load(key); ok {
		return b.(*Breaker)
	}
	b, _ := s.breakers.LoadOrStore(key, New(key, s.settings))
	return b.(*Breaker)
}
