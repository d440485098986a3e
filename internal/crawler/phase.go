package crawler

// Phase is what the engine is doing right now
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseDiscovering  Phase = "discovering"
	PhasePrioritizing Phase = "prioritizing"
	PhaseVisiting     Phase = "visiting"
	PhaseRecursing    Phase = "recursing"
	PhaseBacktracking Phase = "backtracking"
)
