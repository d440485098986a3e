package recovery

import (
	"sort"
	"sync"
	"time"
)

const (
	defaultTrackerSize = 1000
	recentWindow       = 5 * time.Minute
	topErrorsLimit     = 5
)

// ErrorInfo describes one recorded failure
type ErrorInfo struct {
	Category          Category  `json:"category"`
	Type              string    `json:"type"`
	Message           string    `json:"message"`
	Operation         string    `json:"operation,omitempty"`
	URL               string    `json:"url,omitempty"`
	Attempt           int       `json:"attempt,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	RecoveryAttempted bool      `json:"recovery_attempted"`
	RecoverySucceeded bool      `json:"recovery_succeeded"`
}

// Key is the frequency map key for this error
func (e ErrorInfo) Key() string {
	return string(e.Category) + ":" + e.Type
}

// ErrorCount pairs an error key with its occurrence count
type ErrorCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Patterns summarises recorded errors
type Patterns struct {
	TotalErrors          int              `json:"total_errors"`
	RecentErrors         int              `json:"recent_errors"`
	CategoryDistribution map[Category]int `json:"category_distribution"`
	TopErrors            []ErrorCount     `json:"top_errors"`
	ErrorsPerMinute      float64          `json:"errors_per_minute"`
}

// ErrorTracker keeps a bounded history of errors plus per-key counts
type ErrorTracker struct {
	mu      sync.Mutex
	history []ErrorInfo
	next    int
	full    bool
	counts  map[string]int
	total   int
}

func NewErrorTracker(size int) *ErrorTracker {
	if size <= 0 {
		size = defaultTrackerSize
	}
	return &ErrorTracker{
		history: make([]ErrorInfo, size),
		counts:  make(map[string]int),
	}
}

func (t *ErrorTracker) Track(info ErrorInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if info.Timestamp.IsZero() {
		info.Timestamp = time.Now()
	}

	t.history[t.next] = info
	t.next = (t.next + 1) % len(t.history)
	if t.next == 0 {
		t.full = true
	}

	t.counts[info.Key()]++
	t.total++
}

// History returns the retained errors, oldest first
func (t *ErrorTracker) History() []ErrorInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.historyLocked()
}

func (t *ErrorTracker) historyLocked() []ErrorInfo {
	if !t.full {
		return append([]ErrorInfo(nil), t.history[:t.next]...)
	}
	out := make([]ErrorInfo, 0, len(t.history))
	out = append(out, t.history[t.next:]...)
	return append(out, t.history[:t.next]...)
}

func (t *ErrorTracker) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Patterns reports the errors seen in the five minutes before now and the
// most frequent error keys overall
func (t *ErrorTracker) Patterns(now time.Time) Patterns {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := Patterns{
		TotalErrors:          t.total,
		CategoryDistribution: make(map[Category]int),
	}

	cutoff := now.Add(-recentWindow)
	for _, info := range t.historyLocked() {
		if info.Timestamp.After(cutoff) {
			p.RecentErrors++
			p.CategoryDistribution[info.Category]++
		}
	}
	p.ErrorsPerMinute = float64(p.RecentErrors) / recentWindow.Minutes()

	for key, count := range t.counts {
		p.TopErrors = append(p.TopErrors, ErrorCount{Key: key, Count: count})
	}
	sort.Slice(p.TopErrors, func(i, j int) bool {
		if p.TopErrors[i].Count != p.TopErrors[j].Count {
			return p.TopErrors[i].Count > p.TopErrors[j].Count
		}
		return p.TopErrors[i].Key < p.TopErrors[j].Key
	})
	if len(p.TopErrors) > topErrorsLimit {
		p.TopErrors = p.TopErrors[:topErrorsLimit]
	}

	return p
}

func (t *ErrorTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = make([]ErrorInfo, len(t.history))
	t.next = 0
	t.full = false
	t.counts = make(map[string]int)
	t.total = 0
}
