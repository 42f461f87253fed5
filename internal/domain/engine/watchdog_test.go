package engine

import (
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchdogInterruptsLoop(t *testing.T) {
	vm := goja.New()
	w := NewWatchdog(vm, 30*time.Millisecond, 5*time.Millisecond)
	defer w.Stop()

	_, err := w.Run(func() (goja.Value, error) { return vm.RunString("while (true) {}") })
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, w.Fired())
}

func TestWatchdogResetsPerTopLevelCall(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(`function spin(ms) { var end = Date.now() + ms; while (Date.now() < end) {} return ms; }`)
	require.NoError(t, err)
	spin, ok := goja.AssertFunction(vm.Get("spin"))
	require.True(t, ok)

	w := NewWatchdog(vm, 100*time.Millisecond, 5*time.Millisecond)
	defer w.Stop()

	// Three calls of 60ms each exceed the budget together but not alone.
	for i := 0; i < 3; i++ {
		v, err := w.Run(func() (goja.Value, error) { return spin(goja.Undefined(), vm.ToValue(60)) })
		require.NoError(t, err)
		assert.Equal(t, int64(60), v.ToInteger())
	}
	assert.False(t, w.Fired())
}

func TestWatchdogNestedRunSharesDeadline(t *testing.T) {
	vm := goja.New()
	w := NewWatchdog(vm, 40*time.Millisecond, 5*time.Millisecond)
	defer w.Stop()

	_, err := w.Run(func() (goja.Value, error) {
		for i := 0; i < 10; i++ {
			if _, err := w.Run(func() (goja.Value, error) { return vm.RunString("var end = Date.now() + 10; while (Date.now() < end) {}") }); err != nil {
				return nil, err
			}
		}
		return goja.Undefined(), nil
	})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestWatchdogRecoversAfterTimeout(t *testing.T) {
	vm := goja.New()
	w := NewWatchdog(vm, 20*time.Millisecond, 2*time.Millisecond)
	defer w.Stop()

	_, err := w.Run(func() (goja.Value, error) { return vm.RunString("for (;;) {}") })
	require.ErrorIs(t, err, ErrTimeout)

	v, err := w.Run(func() (goja.Value, error) { return vm.RunString("1 + 1") })
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.ToInteger())
}

func TestWatchdogStopIdempotent(t *testing.T) {
	w := NewWatchdog(goja.New(), time.Second, 0)
	w.Stop()
	w.Stop()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StatePreparing.Terminal())
	assert.Equal(t, "state(42)", State(42).String())
}
