package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(v any) Handler {
	return func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return v, nil
	}
}

func failing(err error) Handler {
	return func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return nil, err
	}
}

// S2 — once handler fires exactly once across repeated emissions.
func TestOnceFiresExactlyOnce(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	count := 0
	_, err := bus.Once("tick", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		count++
		return nil, nil
	}, 0)
	require.NoError(t, err)

	_, err = bus.Emit(context.Background(), "tick", nil, nil)
	require.NoError(t, err)
	_, err = bus.Emit(context.Background(), "tick", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, count)
}

// Invariant 2: a plain On handler fires once per Emit call.
func TestOnFiresPerEmit(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	count := 0
	_, err := bus.On("tick", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		count++
		return nil, nil
	}, 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = bus.Emit(context.Background(), "tick", nil, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, 5, count)
}

// S3 — mixed success/failure emission: the aggregate error carries the
// handler error and the successful result is still recoverable.
func TestEmitAggregatesFailures(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	boom := errors.New("boom")
	_, err := bus.On("e", ok("ok"), 1)
	require.NoError(t, err)
	_, err = bus.On("e", failing(boom), 0)
	require.NoError(t, err)

	results, err := bus.Emit(context.Background(), "e", nil, nil)
	require.Error(t, err)

	var agg *AggregateDispatchError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Errors, 1)
	assert.ErrorIs(t, agg.Errors[0], boom)
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0])
	assert.Equal(t, agg.Results, results)
}

// Invariant 1: successful results preserve priority-descending,
// insertion-stable order regardless of how many siblings also failed.
func TestEmitResultOrdering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, _ = bus.On("e", ok("low-a"), 0)
	_, _ = bus.On("e", failing(errors.New("x")), 5)
	_, _ = bus.On("e", ok("high"), 10)
	_, _ = bus.On("e", ok("low-b"), 0)

	results, err := bus.Emit(context.Background(), "e", nil, nil)
	require.Error(t, err)
	require.Equal(t, []any{"high", "low-a", "low-b"}, results)
}

func TestOffRemovesSpecificHandler(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	calledA, calledB := 0, 0
	a := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		calledA++
		return nil, nil
	}
	b := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		calledB++
		return nil, nil
	}
	_, _ = bus.On("e", a, 0)
	_, _ = bus.On("e", b, 0)

	n, err := bus.Off("e", a)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = bus.Emit(context.Background(), "e", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, calledA)
	assert.Equal(t, 1, calledB)
}

func TestHandlerTokenCancel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	called := 0
	tok, err := bus.On("e", func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		called++
		return nil, nil
	}, 0)
	require.NoError(t, err)

	tok.Cancel()
	_, err = bus.Emit(context.Background(), "e", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, called)
}

func TestWaitForResolvesOnMatchingPredicate(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	done := make(chan Event, 1)
	go func() {
		ev, err := bus.WaitFor(context.Background(), "e", func(ev Event) bool {
			v, _ := ev.Kwargs["n"].(int)
			return v == 2
		}, 0)
		if err == nil {
			done <- ev
		}
	}()

	time.Sleep(10 * time.Millisecond)
	_, _ = bus.Emit(context.Background(), "e", nil, map[string]any{"n": 1})
	_, _ = bus.Emit(context.Background(), "e", nil, map[string]any{"n": 2})

	select {
	case ev := <-done:
		assert.Equal(t, 2, ev.Kwargs["n"])
	case <-time.After(time.Second):
		t.Fatal("wait_for never resolved")
	}
}

func TestWaitForTimeout(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, err := bus.WaitFor(context.Background(), "never", nil, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

// Invariant 3: Close is idempotent and fails pending waiters exactly once.
func TestCloseIsIdempotentAndFailsWaiters(t *testing.T) {
	bus := NewBus()

	errCh := make(chan error, 1)
	go func() {
		_, err := bus.WaitFor(context.Background(), "e", nil, 0)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	bus.Close()
	bus.Close() // second call must be a no-op

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrBusClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter was never failed")
	}

	_, err := bus.On("e", ok(nil), 0)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestEmitNoWait(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, _ = bus.On("e", ok("done"), 0)
	handle := bus.EmitNoWait(context.Background(), "e", nil, nil)
	results, err := handle.Wait()
	require.NoError(t, err)
	assert.Equal(t, []any{"done"}, results)
}

func TestRegisterNilHandlerFails(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, err := bus.On("e", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidHandler)
}
