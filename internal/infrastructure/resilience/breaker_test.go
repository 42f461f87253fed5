package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(settings Settings) (*Breaker, *clock) {
	c := &clock{t: time.Unix(0, 0)}
	b := New("unit", settings)
	b.now = c.now
	return b, c
}

func fail(t *testing.T, b *Breaker) {
	t.Helper()
	done, err := b.Allow()
	require.NoError(t, err)
	done(false)
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 3})

	fail(t, b)
	fail(t, b)
	assert.Equal(t, StateClosed, b.State())

	fail(t, b)
	assert.Equal(t, StateOpen, b.State())

	_, err := b.Allow()
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 2})

	fail(t, b)
	done, err := b.Allow()
	require.NoError(t, err)
	done(true)
	fail(t, b)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	var transitions []string
	b, c := newTestBreaker(Settings{
		FailureThreshold: 1,
		HalfOpenProbes:   1,
		OpenTimeout:      time.Second,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	fail(t, b)
	c.advance(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	done, err := b.Allow()
	require.NoError(t, err)

	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrTooManyRequests)

	done(true)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker(Settings{FailureThreshold: 1, OpenTimeout: time.Second})

	fail(t, b)
	c.advance(2 * time.Second)
	fail(t, b)

	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerStaleOutcomeIgnored(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 1})

	slow, err := b.Allow()
	require.NoError(t, err)
	fail(t, b)
	require.Equal(t, StateOpen, b.State())

	slow(true)
	slow(true)
	assert.Equal(t, StateOpen, b.State())
}

func TestSetReturnsSameBreakerPerKey(t *testing.T) {
	s := NewSet(Settings{})

	a := s.For("a.example")
	assert.Same(t, a, s.For("a.example"))
	assert.NotSame(t, a, s.For("b.example"))
	assert.Equal(t, "a.example", a.Name())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
