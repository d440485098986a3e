package recovery

import (
	"math"
	"slices"
	"time"

	"grocery/crawler/internal/config"
)

// RetryPolicy describes how an operation is retried
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
	Retryable       []Category // empty means every category is retryable
	Category        Category
}

// DefaultPolicy returns three attempts starting at one second
func DefaultPolicy(category Category) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
		Category:        category,
	}
}

// PolicyFromConfig converts a configured policy
func PolicyFromConfig(category Category, c config.RetryPolicyConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     c.MaxAttempts,
		InitialDelay:    config.Seconds(c.InitialDelay),
		MaxDelay:        config.Seconds(c.MaxDelay),
		ExponentialBase: c.ExponentialBase,
		Jitter:          c.Jitter,
		Category:        category,
	}
}

// Delay returns the wait before the retry that follows attempt (zero based).
// random must return values in [0, 1) and is only used when jitter is enabled.
func (p RetryPolicy) Delay(attempt int, random func() float64) time.Duration {
	base := p.ExponentialBase
	if base <= 0 {
		base = 2
	}

	delay := float64(p.InitialDelay) * math.Pow(base, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter && random != nil {
		delay += random() * 0.1 * delay
	}

	return time.Duration(delay)
}

// IsRetryable reports whether an error of the given category may be retried
func (p RetryPolicy) IsRetryable(category Category) bool {
	if category == CategoryValidation {
		return false
	}
	if len(p.Retryable) == 0 {
		return true
	}
	return slices.Contains(p.Retryable, category)
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Category == "" {
		p.Category = CategoryUnknown
	}
	return p
}

// Policies maps categories to their configured retry policy
type Policies map[Category]RetryPolicy

// NewPolicies builds the policy table from configuration
func NewPolicies(cfg config.RecoveryConfig) Policies {
	policies := make(Policies, len(cfg.Policies))
	for name, pc := range cfg.Policies {
		category := Category(name)
		policies[category] = PolicyFromConfig(category, pc)
	}
	return policies
}

// For returns the policy for category, falling back to DefaultPolicy
func (p Policies) For(category Category) RetryPolicy {
	if policy, ok := p[category]; ok {
		return policy
	}
	return DefaultPolicy(category)
}
