package crawler

type Outcome string

const (
	OutcomeVisited Outcome = "visited"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type SkipReason string

const (
	SkipAlreadyProcessed SkipReason = "already_processed"
	SkipPreviouslyFailed SkipReason = "previously_failed"
	SkipMaxDepth         SkipReason = "max_depth"
	SkipPriorityGate     SkipReason = "priority_gate"
	SkipOperationalPath  SkipReason = "operational_path"
	// SkipCircuitOpen leaves the URL unmarked so it can be visited once the breaker lets calls through
	SkipCircuitOpen SkipReason = "circuit_open"
)

// VisitResult is the outcome of one VisitLink call. Success is only meaningful
// for visited links, Reason for skipped ones and Err for failed ones.
type VisitResult struct {
	Outcome Outcome
	Success bool
	Reason  SkipReason
	Err     error
}

func Visited(success bool) VisitResult {
	return VisitResult{Outcome: OutcomeVisited, Success: success}
}

func Skipped(reason SkipReason) VisitResult {
	return VisitResult{Outcome: OutcomeSkipped, Reason: reason}
}

func Failed(err error) VisitResult {
	return VisitResult{Outcome: OutcomeFailed, Err: err}
}

// Summary counts the results of one Crawl call
type Summary struct {
	Visited   int `json:"visited"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (s *Summary) add(r VisitResult) {
	switch r.Outcome {
	case OutcomeVisited:
		s.Visited++
		if r.Success {
			s.Succeeded++
		}
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}
