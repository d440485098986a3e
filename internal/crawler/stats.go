package crawler

import "grocery/crawler/internal/recovery"

// Stats is the observable result of a crawl session
type Stats struct {
	Phase             Phase              `json:"phase"`
	MaxDepth          int                `json:"max_depth"`
	Discovered        int                `json:"discovered"`
	Processed         int                `json:"processed"`
	Failed            int                `json:"failed"`
	SuccessRate       float64            `json:"success_rate"`
	Skips             map[SkipReason]int `json:"skips"`
	BacktrackFailures int                `json:"backtrack_failures"`
	Products          int                `json:"products"`
	CategoriesCreated int                `json:"categories_created"`
	FailedURLs        []string           `json:"failed_urls,omitempty"`
	Recovery          recovery.Health    `json:"recovery"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	s := Stats{
		Phase:             e.phase,
		MaxDepth:          e.maxDepth,
		Discovered:        e.state.DiscoveredCount(),
		Processed:         e.state.ProcessedCount(),
		Failed:            e.state.FailedCount(),
		SuccessRate:       e.state.SuccessRate(),
		Skips:             make(map[SkipReason]int, len(e.skips)),
		BacktrackFailures: e.backtrackFailures,
		Products:          e.products,
		CategoriesCreated: e.categoriesCreated,
		FailedURLs:        e.state.Failed(),
	}
	for reason, n := range e.skips {
		s.Skips[reason] = n
	}
	e.mu.Unlock()

	s.Recovery = e.recovery.Health()
	return s
}
