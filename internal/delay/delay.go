// Package delay paces page requests: per-phase waits with random spread,
// a progressive multiplier after failures and a request rate ceiling.
package delay

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"grocery/crawler/internal/config"
	"grocery/crawler/internal/domain"
	"grocery/crawler/internal/recovery"
)

type Phase string

const (
	PhaseBetweenCategories    Phase = "between_categories"
	PhaseBetweenSubcategories Phase = "between_subcategories"
	PhaseBetweenPages         Phase = "between_pages"
	PhaseBetweenRequests      Phase = "between_requests"
	PhaseAfterPopup           Phase = "after_popup_handling"
	PhasePageLoad             Phase = "page_load_wait"
	PhaseAfterRateLimit       Phase = "after_rate_limit_detected"
)

// PhaseFor returns the delay bucket used after navigating to a link of type t
func PhaseFor(t domain.LinkType) Phase {
	switch {
	case t.IsCategoryLike():
		return PhaseBetweenSubcategories
	case t == domain.LinkTypePagination:
		return PhaseBetweenPages
	default:
		return PhaseBetweenRequests
	}
}

func isRequestPhase(phase Phase) bool {
	switch phase {
	case PhaseBetweenCategories, PhaseBetweenSubcategories, PhaseBetweenPages, PhaseBetweenRequests:
		return true
	default:
		return false
	}
}

type Option func(*Policy)

// WithSleeper replaces the blocking wait, mainly for tests
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) { p.sleep = sleep }
}

func WithRandom(random func() float64) Option {
	return func(p *Policy) { p.random = random }
}

func WithLimiter(limiter ratelimit.Limiter) Option {
	return func(p *Policy) { p.limiter = limiter }
}

type Policy struct {
	cfg        config.DelayConfig
	indicators []string
	limiter    ratelimit.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
	random     func() float64
	log        *log.Entry

	mu         sync.Mutex
	multiplier float64
}

func New(cfg config.DelayConfig, logger *log.Entry, opts ...Option) *Policy {
	if logger == nil {
		logger = log.WithField("component", "delay")
	}

	p := &Policy{
		cfg:        cfg,
		sleep:      recovery.Sleep,
		random:     rand.Float64,
		log:        logger,
		multiplier: 1,
	}
	for _, indicator := range cfg.RateLimitIndicators {
		p.indicators = append(p.indicators, strings.ToLower(indicator))
	}

	if cfg.RequestsPerSecond > 0 {
		p.limiter = ratelimit.New(cfg.RequestsPerSecond)
	} else {
		p.limiter = ratelimit.NewUnlimited()
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Duration returns the wait for phase at the current multiplier. Unknown
// phases use the between_requests value.
func (p *Policy) Duration(phase Phase) time.Duration {
	seconds, ok := p.cfg.Phases[string(phase)]
	if !ok {
		seconds = p.cfg.Phases[string(PhaseBetweenRequests)]
	}
	base := config.Seconds(seconds)

	p.mu.Lock()
	multiplier := p.multiplier
	p.mu.Unlock()

	d := time.Duration(float64(base) * multiplier)
	if limit := max(base, config.Seconds(p.cfg.MaxDelay)); d > limit {
		d = limit
	}

	if spread := p.cfg.RandomMax - p.cfg.RandomMin; p.cfg.RandomMax > 0 && spread >= 0 {
		d += config.Seconds(p.cfg.RandomMin + p.random()*spread)
	}

	return d
}

// Wait blocks for the phase delay. Request phases also take a slot from the
// rate limiter.
func (p *Policy) Wait(ctx context.Context, phase Phase) error {
	if isRequestPhase(phase) {
		p.limiter.Take()
	}

	d := p.Duration(phase)
	p.log.Debugf("⏳ Waiting %s (%s)", d.Round(time.Millisecond), phase)

	return p.sleep(ctx, d)
}

// CheckRateLimit reports whether pageText carries a rate-limit indicator
func (p *Policy) CheckRateLimit(pageText string) bool {
	text := strings.ToLower(pageText)
	for _, indicator := range p.indicators {
		if strings.Contains(text, indicator) {
			p.log.Warnf("🚫 Rate limit indicator detected: %q", indicator)
			return true
		}
	}
	return false
}

// IncreaseDelay grows the multiplier by the progressive factor, up to the configured maximum
func (p *Policy) IncreaseDelay() {
	p.mu.Lock()
	defer p.mu.Unlock()

	factor := p.cfg.ProgressiveFactor
	if factor <= 1 {
		factor = 1.5
	}
	p.multiplier *= factor
	if p.cfg.MaxMultiplier > 0 && p.multiplier > p.cfg.MaxMultiplier {
		p.multiplier = p.cfg.MaxMultiplier
	}

	p.log.Infof("🐢 Delay multiplier increased to %.2f", p.multiplier)
}

func (p *Policy) Multiplier() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.multiplier
}

// Reset restores the base multiplier for a new session
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.multiplier = 1
}
