package recovery

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"grocery/crawler/internal/config"

	log "github.com/sirupsen/logrus"
)

// Observer receives recovery events, typically to export metrics
type Observer interface {
	ErrorRecorded(category Category)
	BreakerChanged(name string, state State)
}

// Health summarises operation outcomes since the last reset
type Health struct {
	Operations   int            `json:"operations"`
	Successes    int            `json:"successes"`
	Failures     int            `json:"failures"`
	SuccessRate  float64        `json:"success_rate"`
	Healthy      bool           `json:"healthy"`
	OpenBreakers []string       `json:"open_breakers"`
	Patterns     Patterns       `json:"patterns"`
	Breakers     []BreakerStats `json:"breakers"`
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSleeper replaces the context-aware sleep used between attempts
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = sleep }
}

func WithRandom(random func() float64) Option {
	return func(m *Manager) { m.random = random }
}

func WithLogger(entry *log.Entry) Option {
	return func(m *Manager) { m.log = entry }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// Manager runs operations under retry policies and per operation circuit breakers
type Manager struct {
	breakerCfg BreakerConfig
	policies   Policies
	tracker    *ErrorTracker

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	random   func() float64
	log      *log.Entry
	observer Observer

	mu        sync.Mutex
	breakers  map[string]*CircuitBreaker
	successes int
	failures  int
}

func NewManager(cfg config.RecoveryConfig, opts ...Option) *Manager {
	m := &Manager{
		breakerCfg: BreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			RecoveryTimeout:  time.Duration(cfg.RecoveryTimeout) * time.Second,
		},
		policies: NewPolicies(cfg),
		tracker:  NewErrorTracker(cfg.TrackerSize),
		now:      time.Now,
		sleep:    Sleep,
		random:   rand.Float64,
		log:      log.WithField("component", "recovery"),
		breakers: make(map[string]*CircuitBreaker),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Policy returns the configured retry policy for category
func (m *Manager) Policy(category Category) RetryPolicy {
	return m.policies.For(category)
}

// Execute runs fn until it succeeds, the policy is exhausted, the error is not
// retryable or the breaker for (op, policy.Category) rejects the call.
// The breaker is consulted once per call and records one outcome per call, so
// retries of a single operation count as one failure. Rejections return
// ErrCircuitOpen without running fn.
// On exhaustion the last error is returned, tagged with its category.
func (m *Manager) Execute(ctx context.Context, op string, policy RetryPolicy, fn func(ctx context.Context) error) error {
	policy = policy.normalized()
	if err := ctx.Err(); err != nil {
		return err
	}

	breaker := m.Breaker(op, policy.Category)
	if err := breaker.Allow(); err != nil {
		m.log.Warnf("🚫 %s rejected: %v", op, err)
		m.recordOutcome(false)
		return Wrap(policy.Category, op, err)
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 && ctx.Err() != nil {
			break
		}

		err := fn(ctx)
		if err == nil {
			breaker.RecordSuccess()
			m.recordOutcome(true)
			if attempt > 0 {
				m.log.Infof("✅ %s succeeded on attempt %d", op, attempt+1)
			}
			return nil
		}

		lastErr = err
		category := categorize(err, policy.Category)
		m.track(op, "", attempt+1, category, err)

		if !policy.IsRetryable(category) {
			m.log.Debugf("%s failed with non-retryable %s error: %v", op, category, err)
			break
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.Delay(attempt, m.random)
		m.log.Warnf("⚠️ %s failed (attempt %d/%d): %v, retrying in %s",
			op, attempt+1, policy.MaxAttempts, err, delay.Round(time.Millisecond))

		if err := m.sleep(ctx, delay); err != nil {
			break
		}
	}

	breaker.RecordFailure()
	m.recordOutcome(false)
	m.log.Errorf("❌ %s failed: %v", op, lastErr)

	var tagged *Error
	if errors.As(lastErr, &tagged) {
		return lastErr
	}
	return Wrap(categorize(lastErr, policy.Category), op, lastErr)
}

// RecordError tracks a failure that happened outside Execute
func (m *Manager) RecordError(op, url string, err error) {
	if err == nil {
		return
	}
	m.track(op, url, 0, categorize(err, CategoryUnknown), err)
}

func (m *Manager) track(op, url string, attempt int, category Category, err error) {
	info := ErrorInfo{
		Category:  category,
		Type:      ErrorType(err),
		Message:   err.Error(),
		Operation: op,
		URL:       url,
		Attempt:   attempt,
		Timestamp: m.now(),
	}

	if strategy, ok := StrategyFor(category); ok {
		info.RecoveryAttempted = true
		m.log.WithFields(log.Fields{
			"operation": op,
			"category":  category,
			"action":    strategy.Action,
			"delay":     strategy.Delay,
		}).Debug("recovery strategy advised")
	}

	m.tracker.Track(info)
	if m.observer != nil {
		m.observer.ErrorRecorded(category)
	}
}

// Breaker returns the breaker for (op, category), creating it on first use
func (m *Manager) Breaker(op string, category Category) *CircuitBreaker {
	name := op + ":" + string(category)

	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb
	}

	cb := NewCircuitBreaker(name, m.breakerCfg, m.now)
	cb.onChange = m.breakerChanged
	m.breakers[name] = cb
	return cb
}

func (m *Manager) breakerChanged(name string, from, to State) {
	if to == StateOpen {
		m.log.Warnf("🔌 Circuit breaker %s: %s -> %s", name, from, to)
	} else {
		m.log.Infof("🔌 Circuit breaker %s: %s -> %s", name, from, to)
	}
	if m.observer != nil {
		m.observer.BreakerChanged(name, to)
	}
}

// Breakers returns a snapshot of every breaker, sorted by name
func (m *Manager) Breakers() []BreakerStats {
	m.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(m.breakers))
	for _, cb := range m.breakers {
		breakers = append(breakers, cb)
	}
	m.mu.Unlock()

	stats := make([]BreakerStats, 0, len(breakers))
	for _, cb := range breakers {
		stats = append(stats, cb.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

func (m *Manager) Tracker() *ErrorTracker {
	return m.tracker
}

func (m *Manager) recordOutcome(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.successes++
	} else {
		m.failures++
	}
}

// Health reports success rate, open breakers and error patterns.
// It is healthy when no operation ran yet or more than 80% succeeded.
func (m *Manager) Health() Health {
	m.mu.Lock()
	h := Health{
		Successes: m.successes,
		Failures:  m.failures,
	}
	m.mu.Unlock()

	h.Operations = h.Successes + h.Failures
	h.Healthy = true
	if h.Operations > 0 {
		h.SuccessRate = float64(h.Successes) / float64(h.Operations) * 100
		h.Healthy = h.SuccessRate > 80
	}

	h.Breakers = m.Breakers()
	for _, b := range h.Breakers {
		if b.State != StateClosed.String() {
			h.OpenBreakers = append(h.OpenBreakers, b.Name)
		}
	}
	h.Patterns = m.tracker.Patterns(m.now())

	return h
}

// Reset drops all breakers, error history and counters for a new session
func (m *Manager) Reset() {
	m.mu.Lock()
	m.breakers = make(map[string]*CircuitBreaker)
	m.successes = 0
	m.failures = 0
	m.mu.Unlock()

	m.tracker.Reset()
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
