// Package crawler walks the category tree of the grocery site in a single
// browser tab, visiting links in priority order and returning to the origin
// page after every visit.
package crawler

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"grocery/crawler/internal/classifier"
	"grocery/crawler/internal/config"
	"grocery/crawler/internal/delay"
	"grocery/crawler/internal/discovery"
	"grocery/crawler/internal/domain"
	"grocery/crawler/internal/frontier"
	"grocery/crawler/internal/metrics"
	"grocery/crawler/internal/recovery"
)

const (
	opNavigate      = "navigate"
	opVisitLink     = "visit_link"
	opCategory      = "category_get_or_create"
	opExtract       = "extract_products"
	unknownCategory = "Unknown Category"
)

// Config bounds the traversal
type Config struct {
	MaxSubcategories   int
	MaxPaginationLinks int
	ExtractionDepth    int // products are extracted from category pages below this depth
	RecursionDepth     int // subcategories are followed below this depth
	PageLoadTimeout    time.Duration
	OperationalPaths   []string
}

func ConfigFrom(cfg config.CrawlerConfig) Config {
	return Config{
		MaxSubcategories:   cfg.MaxSubcategories,
		MaxPaginationLinks: cfg.MaxPaginationLinks,
		ExtractionDepth:    cfg.ExtractionDepth,
		RecursionDepth:     cfg.RecursionDepth,
		PageLoadTimeout:    time.Duration(cfg.PageLoadTimeout) * time.Second,
		OperationalPaths:   cfg.OperationalPaths,
	}
}

type Option func(*Engine)

func WithFailureSink(sink FailureSink) Option {
	return func(e *Engine) { e.failures = sink }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(entry *log.Entry) Option {
	return func(e *Engine) { e.log = entry }
}

// Engine is the traversal engine. It runs one session at a time; Stats and
// Phase may be called concurrently with a running crawl.
type Engine struct {
	cfg         Config
	nav         Navigator
	discoverer  *discovery.Discoverer
	categories  CategoryStore
	extractor   ProductExtractor
	delays      DelayPolicy
	recovery    *recovery.Manager
	operational frontier.OperationalPaths
	failures    FailureSink
	metrics     *metrics.Metrics
	log         *log.Entry

	mu                sync.Mutex
	state             *frontier.State
	maxDepth          int
	phase             Phase
	skips             map[SkipReason]int
	backtrackFailures int
	products          int
	categoriesCreated int
}

func New(
	cfg Config,
	nav Navigator,
	discoverer *discovery.Discoverer,
	categories CategoryStore,
	extractor ProductExtractor,
	delays DelayPolicy,
	rm *recovery.Manager,
	opts ...Option,
) *Engine {
	if cfg.PageLoadTimeout <= 0 {
		cfg.PageLoadTimeout = 10 * time.Second
	}

	e := &Engine{
		cfg:         cfg,
		nav:         nav,
		discoverer:  discoverer,
		categories:  categories,
		extractor:   extractor,
		delays:      delays,
		recovery:    rm,
		operational: frontier.NewOperationalPaths(cfg.OperationalPaths),
		log:         log.WithField("component", "crawler"),
		state:       frontier.NewState(),
		phase:       PhaseIdle,
		skips:       make(map[SkipReason]int),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start crawls from every seed URL down to maxDepth and returns the session stats
func (e *Engine) Start(ctx context.Context, seeds []string, maxDepth int) Stats {
	e.setMaxDepth(maxDepth)
	e.log.Infof("🚀 Starting crawl of %d seed URLs (max depth %d)", len(seeds), maxDepth)

	for i, raw := range seeds {
		if ctx.Err() != nil {
			e.log.Warn("🛑 Crawl cancelled")
			break
		}

		seed, err := classifier.Canonicalize(nil, raw)
		if err != nil {
			e.log.Errorf("❌ Invalid seed URL %s: %v", raw, err)
			continue
		}
		if e.isProcessed(seed) {
			continue
		}

		if i > 0 {
			if err := e.delays.Wait(ctx, delay.PhaseBetweenCategories); err != nil {
				break
			}
		}

		e.log.Infof("🌱 Crawling seed %d/%d: %s", i+1, len(seeds), seed)
		if err := e.openSeed(ctx, seed); err != nil {
			link := domain.LinkInfo{URL: seed, Type: domain.LinkTypeDepartment, SourceType: domain.LinkTypeDepartment}
			e.fail(ctx, link, 0, "", err)
			continue
		}

		found, err := e.discoverCurrent(ctx)
		if err != nil {
			e.log.Errorf("❌ Discovery failed on seed %s: %v", seed, err)
			e.recovery.RecordError("discover", seed, err)
			continue
		}

		summary := e.Crawl(ctx, found.Links, maxDepth, 0)
		e.log.Infof("✅ Seed %s done: %d visited, %d skipped, %d failed",
			seed, summary.Visited, summary.Skipped, summary.Failed)
	}

	e.setPhase(PhaseIdle)
	return e.Stats()
}

func (e *Engine) openSeed(ctx context.Context, seed string) error {
	err := e.recovery.Execute(ctx, opNavigate, e.recovery.Policy(recovery.CategoryNetwork), func(ctx context.Context) error {
		return e.nav.Navigate(ctx, seed)
	})
	if err != nil {
		return err
	}

	if err := e.waitForPage(ctx, seed); err != nil {
		return err
	}
	if err := e.nav.DismissPopups(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	e.state.MarkDiscovered(seed)
	e.state.MarkProcessed(seed)
	e.mu.Unlock()

	return nil
}

// Crawl visits links in priority order at currentDepth. It returns at once when
// currentDepth has reached maxDepth.
func (e *Engine) Crawl(ctx context.Context, links domain.CategorizedLinks, maxDepth, currentDepth int) Summary {
	var summary Summary
	if currentDepth >= maxDepth {
		return summary
	}
	e.setMaxDepth(maxDepth)

	e.setPhase(PhasePrioritizing)
	ordered := frontier.Flatten(links)
	e.log.Debugf("Crawling %d links at depth %d (gate %d)",
		len(ordered), currentDepth, frontier.MaxAllowedPriority(currentDepth))

	for _, link := range ordered {
		if ctx.Err() != nil {
			e.log.Warnf("🛑 Crawl cancelled at depth %d", currentDepth)
			break
		}
		summary.add(e.VisitLink(ctx, link, currentDepth))
	}

	if currentDepth == 0 {
		e.setPhase(PhaseIdle)
	}
	return summary
}

// VisitLink visits one link at depth and returns to the page it started from.
// Errors never escape: a failing link is recorded and reported as Failed.
// A navigation refused by an open breaker is reported as Skipped instead.
func (e *Engine) VisitLink(ctx context.Context, link domain.LinkInfo, depth int) VisitResult {
	if reason, skip := e.skipReason(link, depth); skip {
		e.countSkip(reason)
		e.log.Debugf("⏭️ Skipping %s (%s)", link.URL, reason)
		return Skipped(reason)
	}

	e.setPhase(PhaseVisiting)
	origin, err := e.nav.CurrentURL(ctx)
	if err != nil {
		e.log.Debugf("Could not read current URL before visiting %s: %v", link.URL, err)
		origin = ""
	}

	success, err := e.visit(ctx, link, depth, origin)
	if errors.Is(err, recovery.ErrCircuitOpen) {
		return e.postpone(ctx, link, origin, err)
	}
	if err != nil {
		return e.fail(ctx, link, depth, origin, err)
	}

	e.backtrack(ctx, origin)

	outcome := "success"
	if !success {
		outcome = "unsuccessful"
	}
	e.metrics.Visit(link.Type.String(), outcome)
	return Visited(success)
}

func (e *Engine) skipReason(link domain.LinkInfo, depth int) (SkipReason, bool) {
	e.mu.Lock()
	processed := e.state.IsProcessed(link.URL)
	failed := e.state.IsFailed(link.URL)
	maxDepth := e.maxDepth
	e.mu.Unlock()

	switch {
	case processed:
		return SkipAlreadyProcessed, true
	case failed:
		return SkipPreviouslyFailed, true
	case maxDepth > 0 && depth >= maxDepth:
		return SkipMaxDepth, true
	case !frontier.Admits(link, depth):
		return SkipPriorityGate, true
	}
	if _, ok := e.operational.Match(link.URL); ok {
		return SkipOperationalPath, true
	}
	return "", false
}

func (e *Engine) visit(ctx context.Context, link domain.LinkInfo, depth int, origin string) (bool, error) {
	err := e.recovery.Execute(ctx, opNavigate, e.recovery.Policy(recovery.CategoryNetwork), func(ctx context.Context) error {
		return e.nav.Navigate(ctx, link.URL)
	})
	if err != nil {
		return false, err
	}

	if err := e.delays.Wait(ctx, delay.PhaseFor(link.Type)); err != nil {
		return false, err
	}
	if err := e.waitForPage(ctx, link.URL); err != nil {
		return false, err
	}

	if current, err := e.nav.CurrentURL(ctx); err == nil && sameURL(current, origin) {
		e.log.Warnf("⚠️ URL did not change after navigating to %s", link.URL)
	}

	source, err := e.nav.PageSource(ctx)
	if err != nil {
		return false, err
	}
	if e.delays.CheckRateLimit(source) {
		e.log.Warnf("🐢 Rate limit detected on %s, cooling down", link.URL)
		if err := e.delays.Wait(ctx, delay.PhaseAfterRateLimit); err != nil {
			return false, err
		}
		return false, recovery.Errorf(recovery.CategoryRateLimit, "rate limit page served for %s", link.URL)
	}

	if err := e.nav.DismissPopups(ctx); err != nil {
		return false, err
	}

	e.mu.Lock()
	e.state.MarkProcessed(link.URL)
	e.mu.Unlock()

	return e.process(ctx, link, depth)
}

func (e *Engine) waitForPage(ctx context.Context, url string) error {
	ready, err := e.nav.WaitForReadyState(ctx, e.cfg.PageLoadTimeout)
	if err != nil {
		return err
	}
	if !ready {
		e.log.Warnf("⚠️ Page load timeout after %s for %s, continuing", e.cfg.PageLoadTimeout, url)
	}
	return nil
}

func (e *Engine) fail(ctx context.Context, link domain.LinkInfo, depth int, origin string, err error) VisitResult {
	e.mu.Lock()
	e.state.MarkFailed(link.URL)
	e.mu.Unlock()

	e.delays.IncreaseDelay()
	e.recovery.RecordError(opVisitLink, link.URL, err)
	e.metrics.Visit(link.Type.String(), "failed")

	e.log.WithFields(log.Fields{
		"url":      link.URL,
		"type":     link.Type,
		"depth":    depth,
		"category": recovery.CategoryOf(err),
	}).Errorf("❌ Failed to visit link: %v", err)

	if e.failures != nil {
		e.failures.LinkFailed(ctx, link, depth, err)
	}

	e.backtrack(ctx, origin)
	return Failed(err)
}

// postpone handles a call rejected by an open breaker. The link is neither
// processed nor failed, so a later VisitLink tries it again.
func (e *Engine) postpone(ctx context.Context, link domain.LinkInfo, origin string, err error) VisitResult {
	e.mu.Lock()
	e.state.ClearProcessed(link.URL)
	e.mu.Unlock()

	e.countSkip(SkipCircuitOpen)
	e.log.Warnf("🔌 Postponing %s: %v", link.URL, err)

	e.backtrack(ctx, origin)
	return Skipped(SkipCircuitOpen)
}

// backtrack returns to origin when the tab has moved away from it. A failed
// return is counted and the crawl carries on from wherever the tab is.
func (e *Engine) backtrack(ctx context.Context, origin string) {
	if origin == "" {
		return
	}
	if current, err := e.nav.CurrentURL(ctx); err == nil && sameURL(current, origin) {
		return
	}

	e.setPhase(PhaseBacktracking)
	err := e.nav.Navigate(ctx, origin)
	if err == nil {
		_, err = e.nav.WaitForReadyState(ctx, e.cfg.PageLoadTimeout)
	}
	if err != nil {
		e.mu.Lock()
		e.backtrackFailures++
		e.mu.Unlock()
		e.log.Warnf("⚠️ Failed to return to %s: %v", origin, err)
	}
}

// ResetFailed makes a failed URL eligible for another visit in this session
func (e *Engine) ResetFailed(url string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ResetFailed(url)
}

// Reset prepares the engine for a new session
func (e *Engine) Reset() {
	e.mu.Lock()
	e.state = frontier.NewState()
	e.skips = make(map[SkipReason]int)
	e.backtrackFailures = 0
	e.products = 0
	e.categoriesCreated = 0
	e.maxDepth = 0
	e.phase = PhaseIdle
	e.mu.Unlock()

	e.recovery.Reset()
	e.delays.Reset()
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	changed := e.phase != p
	e.phase = p
	e.mu.Unlock()

	if changed {
		e.log.Debugf("Phase: %s", p)
	}
}

func (e *Engine) setMaxDepth(maxDepth int) {
	e.mu.Lock()
	e.maxDepth = maxDepth
	e.mu.Unlock()
}

func (e *Engine) isProcessed(url string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.IsProcessed(url)
}

func (e *Engine) countSkip(reason SkipReason) {
	e.mu.Lock()
	e.skips[reason]++
	e.mu.Unlock()
	e.metrics.Skip(string(reason))
}

// sameURL compares two browser locations in canonical form. Empty locations never match.
func sameURL(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ca, errA := classifier.Canonicalize(nil, a)
	cb, errB := classifier.Canonicalize(nil, b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ca == cb
}

// registry exposes the crawl state to discovery under the engine lock
type registry struct {
	e *Engine
}

func (r registry) IsProcessed(url string) bool {
	return r.e.isProcessed(url)
}

func (r registry) MarkDiscovered(url string) {
	r.e.mu.Lock()
	r.e.state.MarkDiscovered(url)
	r.e.mu.Unlock()
}
