// Package frontier holds the per-session crawl state and the policy that orders
// and admits candidate links.
package frontier

// State tracks discovered, processed and failed URLs for one crawl session.
// A URL is never both processed and failed. It is not safe for concurrent use.
type State struct {
	discovered map[string]struct{}
	processed  map[string]struct{}
	failed     map[string]struct{}
}

func NewState() *State {
	return &State{
		discovered: make(map[string]struct{}),
		processed:  make(map[string]struct{}),
		failed:     make(map[string]struct{}),
	}
}

func (s *State) MarkDiscovered(url string) {
	s.discovered[url] = struct{}{}
}

// MarkProcessed records a visited URL
func (s *State) MarkProcessed(url string) {
	delete(s.failed, url)
	s.processed[url] = struct{}{}
}

// MarkFailed records a failed visit, moving the URL out of processed if needed
func (s *State) MarkFailed(url string) {
	delete(s.processed, url)
	s.failed[url] = struct{}{}
}

// ClearProcessed forgets a visit that was cut short, so the URL may be visited again
func (s *State) ClearProcessed(url string) {
	delete(s.processed, url)
}

// ResetFailed makes a failed URL eligible for another attempt
func (s *State) ResetFailed(url string) bool {
	if _, ok := s.failed[url]; !ok {
		return false
	}
	delete(s.failed, url)
	return true
}

func (s *State) IsDiscovered(url string) bool {
	_, ok := s.discovered[url]
	return ok
}

func (s *State) IsProcessed(url string) bool {
	_, ok := s.processed[url]
	return ok
}

func (s *State) IsFailed(url string) bool {
	_, ok := s.failed[url]
	return ok
}

func (s *State) DiscoveredCount() int { return len(s.discovered) }
func (s *State) ProcessedCount() int  { return len(s.processed) }
func (s *State) FailedCount() int     { return len(s.failed) }

// Failed returns the failed URLs in no particular order
func (s *State) Failed() []string {
	out := make([]string, 0, len(s.failed))
	for url := range s.failed {
		out = append(out, url)
	}
	return out
}

// SuccessRate is processed / max(discovered, 1) as a percentage
func (s *State) SuccessRate() float64 {
	return float64(len(s.processed)) / float64(max(len(s.discovered), 1)) * 100
}
