package resilience

import "time"

// FreshnessConfig names the thresholds a session must stay within.
// A zero value for any field disables that particular check.
type FreshnessConfig struct {
	MaxAge              time.Duration
	MaxIdle             time.Duration
	MaxIterationsPerRun int
	MaxMessages         int
}

// FreshnessInput is the point-in-time snapshot evaluated against a config.
type FreshnessInput struct {
	CreatedAt    time.Time
	LastActivity time.Time
	Now          time.Time
	Iterations   int
	MessageCount int
}

// EvaluateFreshness checks age, idle time, iteration count, and message
// count against cfg's thresholds in that order, returning the first
// violated threshold's reason. A zero threshold in cfg is skipped.
func EvaluateFreshness(in FreshnessInput, cfg FreshnessConfig) (shouldReset bool, reason string) {
	if cfg.MaxAge > 0 && in.Now.Sub(in.CreatedAt) > cfg.MaxAge {
		return true, "age exceeded max-age"
	}
	if cfg.MaxIdle > 0 && in.Now.Sub(in.LastActivity) > cfg.MaxIdle {
		return true, "idle time exceeded max-idle"
	}
	if cfg.MaxIterationsPerRun > 0 && in.Iterations > cfg.MaxIterationsPerRun {
		return true, "iteration count exceeded max-iterations-per-session"
	}
	if cfg.MaxMessages > 0 && in.MessageCount > cfg.MaxMessages {
		return true, "message count exceeded max-messages"
	}
	return false, ""
}
