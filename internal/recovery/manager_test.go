package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grocery/crawler/internal/config"
)

type recordingObserver struct {
	errors   []Category
	breakers map[string]State
}

func (o *recordingObserver) ErrorRecorded(category Category) {
	o.errors = append(o.errors, category)
}

func (o *recordingObserver) BreakerChanged(name string, state State) {
	if o.breakers == nil {
		o.breakers = make(map[string]State)
	}
	o.breakers[name] = state
}

func newTestManager(clock *fakeClock, sleeps *[]time.Duration, opts ...Option) *Manager {
	cfg := config.Default().Recovery
	base := []Option{
		WithClock(clock.Now),
		WithRandom(func() float64 { return 0 }),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			*sleeps = append(*sleeps, d)
			clock.Advance(d)
			return nil
		}),
	}
	return NewManager(cfg, append(base, opts...)...)
}

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialDelay:    time.Second,
		MaxDelay:        time.Minute,
		ExponentialBase: 2,
		Category:        CategoryNetwork,
	}
}

func TestExecuteSucceedsAfterRetries(t *testing.T) {
	clock := newFakeClock()
	var sleeps []time.Duration
	m := newTestManager(clock, &sleeps)

	calls := 0
	err := m.Execute(context.Background(), "navigate", testPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
	assert.Equal(t, StateClosed, m.Breaker("navigate", CategoryNetwork).State())
	assert.Len(t, m.Tracker().History(), 2)
}

func TestExecuteReturnsLastErrorOnExhaustion(t *testing.T) {
	clock := newFakeClock()
	var sleeps []time.Duration
	m := newTestManager(clock, &sleeps)

	errFirst := errors.New("first")
	errLast := errors.New("last")
	calls := 0
	err := m.Execute(context.Background(), "navigate", testPolicy(2), func(context.Context) error {
		calls++
		if calls == 1 {
			return errFirst
		}
		return errLast
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errLast)
	assert.NotErrorIs(t, err, errFirst)
	assert.Equal(t, CategoryNetwork, CategoryOf(err))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, m.Health().Failures)
}

func TestExecuteStopsOnNonRetryableError(t *testing.T) {
	clock := newFakeClock()
	var sleeps []time.Duration
	m := newTestManager(clock, &sleeps)

	calls := 0
	err := m.Execute(context.Background(), "save", testPolicy(5), func(context.Context) error {
		calls++
		return Errorf(CategoryValidation, "bad category code %q", "x")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeps)
	assert.Equal(t, CategoryValidation, CategoryOf(err))
}

func TestExecuteCircuitOpensAndRejectsWithoutCalling(t *testing.T) {
	clock := newFakeClock()
	var sleeps []time.Duration
	obs := &recordingObserver{}
	m := newTestManager(clock, &sleeps, WithObserver(obs))

	failing := func(context.Context) error { return errors.New("down") }
	for i := 0; i < 5; i++ {
		err := m.Execute(context.Background(), "navigate", testPolicy(1), failing)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	assert.Equal(t, StateOpen, m.Breaker("navigate", CategoryNetwork).State())
	assert.Equal(t, StateOpen, obs.breakers["navigate:network"])

	invoked := false
	err := m.Execute(context.Background(), "navigate", testPolicy(3), func(context.Context) error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked)
	assert.Empty(t, sleeps)

	// after the recovery timeout a single trial call goes through and closes the breaker
	clock.Advance(60 * time.Second)
	err = m.Execute(context.Background(), "navigate", testPolicy(1), func(context.Context) error {
		invoked = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, invoked)
	assert.Equal(t, StateClosed, m.Breaker("navigate", CategoryNetwork).State())
	assert.Len(t, obs.errors, 5)
}

func TestExecuteCountsOneBreakerFailurePerExhaustedCall(t *testing.T) {
	clock := newFakeClock()
	var sleeps []time.Duration
	m := newTestManager(clock, &sleeps)

	calls := 0
	failing := func(context.Context) error {
		calls++
		return errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	for i := 0; i < 2; i++ {
		err := m.Execute(context.Background(), "navigate", testPolicy(3), failing)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	assert.Equal(t, 6, calls)
	cb := m.Breaker("navigate", CategoryNetwork)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 2, cb.Stats().Failures)
	assert.Len(t, m.Tracker().History(), 6)

	// a healthy call afterwards still goes through
	require.NoError(t, m.Execute(context.Background(), "navigate", testPolicy(3), func(context.Context) error { return nil }))
	assert.Equal(t, 0, cb.Stats().Failures)
}

func TestExecuteBreakersAreKeyedByOperationAndCategory(t *testing.T) {
	clock := newFakeClock()
	var sleeps []time.Duration
	m := newTestManager(clock, &sleeps)

	for i := 0; i < 5; i++ {
		_ = m.Execute(context.Background(), "navigate", testPolicy(1), func(context.Context) error {
			return errors.New("down")
		})
	}

	err := m.Execute(context.Background(), "category_get_or_create", testPolicy(1), func(context.Context) error {
		return nil
	})
	require.NoError(t, err)

	dbPolicy := testPolicy(1)
	dbPolicy.Category = CategoryDatabase
	err = m.Execute(context.Background(), "navigate", dbPolicy, func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	clock := newFakeClock()
	var sleeps []time.Duration
	m := newTestManager(clock, &sleeps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := m.Execute(ctx, "navigate", testPolicy(3), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestHealthAndReset(t *testing.T) {
	clock := newFakeClock()
	var sleeps []time.Duration
	m := newTestManager(clock, &sleeps)

	for i := 0; i < 4; i++ {
		require.NoError(t, m.Execute(context.Background(), "op", testPolicy(1), func(context.Context) error { return nil }))
	}
	_ = m.Execute(context.Background(), "op", testPolicy(1), func(context.Context) error { return errors.New("boom") })

	h := m.Health()
	assert.Equal(t, 5, h.Operations)
	assert.InDelta(t, 80.0, h.SuccessRate, 0.001)
	assert.False(t, h.Healthy)
	assert.Equal(t, 1, h.Patterns.TotalErrors)

	m.Reset()
	h = m.Health()
	assert.Equal(t, 0, h.Operations)
	assert.True(t, h.Healthy)
	assert.Empty(t, h.Breakers)
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryUnknown, CategoryOf(errors.New("plain")))
	assert.Equal(t, CategoryTimeout, CategoryOf(context.DeadlineExceeded))
	assert.Equal(t, CategoryDatabase, CategoryOf(Wrap(CategoryDatabase, "save", errors.New("conn"))))
	assert.Nil(t, Wrap(CategoryDatabase, "save", nil))
	assert.Equal(t, "errors.errorString", ErrorType(Wrap(CategoryNetwork, "x", errors.New("y"))))
}
