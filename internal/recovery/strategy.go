package recovery

import "time"

type Action string

const (
	ActionRestartDriver      Action = "restart_driver"
	ActionRetryWithBackoff   Action = "retry_with_backoff"
	ActionExtendedCooldown   Action = "extended_cooldown"
	ActionIncreaseTimeout    Action = "increase_timeout"
	ActionAlternativeParsing Action = "alternative_parsing"
	ActionDatabaseReconnect  Action = "database_reconnect"
)

// Strategy is advisory recovery metadata for an error category.
// The manager reports it; callers decide whether to act on it.
type Strategy struct {
	Action               Action        `json:"action"`
	Delay                time.Duration `json:"delay"`
	RestartDriver        bool          `json:"restart_driver,omitempty"`
	CheckConnectivity    bool          `json:"check_connectivity,omitempty"`
	ReduceRequestRate    bool          `json:"reduce_request_rate,omitempty"`
	TimeoutMultiplier    float64       `json:"timeout_multiplier,omitempty"`
	UseFallbackSelectors bool          `json:"use_fallback_selectors,omitempty"`
	Reconnect            bool          `json:"reconnect,omitempty"`
}

var strategies = map[Category]Strategy{
	CategoryDriverSetup: {Action: ActionRestartDriver, Delay: 5 * time.Second, RestartDriver: true},
	CategoryNetwork:     {Action: ActionRetryWithBackoff, Delay: 10 * time.Second, CheckConnectivity: true},
	CategoryRateLimit:   {Action: ActionExtendedCooldown, Delay: 300 * time.Second, ReduceRequestRate: true},
	CategoryTimeout:     {Action: ActionIncreaseTimeout, Delay: 5 * time.Second, TimeoutMultiplier: 1.5},
	CategoryParsing:     {Action: ActionAlternativeParsing, Delay: 2 * time.Second, UseFallbackSelectors: true},
	CategoryDatabase:    {Action: ActionDatabaseReconnect, Delay: 5 * time.Second, Reconnect: true},
}

// StrategyFor returns the recovery strategy registered for category
func StrategyFor(category Category) (Strategy, bool) {
	s, ok := strategies[category]
	return s, ok
}
