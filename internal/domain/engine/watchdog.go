package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Watchdog bounds the wall-clock time of every top-level call into one
// runtime. A background ticker compares the clock with the deadline and
// interrupts the runtime once it has passed. goja delivers the interrupt
// as an uncatchable *goja.InterruptedError; the watchdog keeps interrupting
// on every tick until the top-level call returns, so a script cannot
// swallow it through a host call either.
type Watchdog struct {
	vm       *goja.Runtime
	limit    time.Duration
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	deadline time.Time
	fired    bool

	// depth is only touched on the script goroutine.
	depth int

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatchdog starts a watchdog over vm. Stop must be called to release
// the ticker goroutine.
func NewWatchdog(vm *goja.Runtime, limit, interval time.Duration) *Watchdog {
	if interval <= 0 || interval > limit {
		interval = limit
	}
	w := &Watchdog{
		vm:       vm,
		limit:    limit,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// Run invokes call under the time budget. Only the outermost Run arms a
// fresh deadline; nested runs share it.
func (w *Watchdog) Run(call func() (goja.Value, error)) (goja.Value, error) {
	if w.depth == 0 {
		w.arm()
	}
	w.depth++
	defer func() {
		w.depth--
		if w.depth == 0 {
			w.disarm()
		}
	}()

	v, err := call()
	if w.Fired() {
		return nil, ErrTimeout
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return nil, ErrTimeout
	}
	return v, err
}

// Fired reports whether the current or last top-level call overran.
func (w *Watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

// Stop ends the ticker goroutine. It is safe to call more than once.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
	})
}

func (w *Watchdog) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.vm.ClearInterrupt()
	w.fired = false
	w.deadline = w.now().Add(w.limit)
}

func (w *Watchdog) disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deadline = time.Time{}
}

func (w *Watchdog) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watchdog) check() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deadline.IsZero() || w.now().Before(w.deadline) {
		return
	}
	w.fired = true
	w.vm.Interrupt(ErrTimeout)
}
