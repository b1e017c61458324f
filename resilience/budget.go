// Package resilience implements the four control-layer primitives nodes and
// the runtime lean on: context-window budget estimation, completion-signal
// parsing, model-error classification with backoff, and session freshness
// evaluation.
package resilience

// BudgetStatus classifies how close a conversation is to its model's
// context window.
type BudgetStatus string

const (
	BudgetOK       BudgetStatus = "ok"
	BudgetWarning  BudgetStatus = "warning"
	BudgetBlock    BudgetStatus = "block"
	BudgetOverflow BudgetStatus = "overflow"
)

// ContextBudget is the advisory estimate produced by EstimateBudget.
type ContextBudget struct {
	EstimatedTokens int
	ContextLimit    int
	UsageRatio      float64
	Status          BudgetStatus
	CompactionCount int
}

// defaultContextLimit is used for models absent from contextLimits.
const defaultContextLimit = 100_000

// contextLimits is a per-model table of context window sizes in tokens.
// Unknown models fall back to defaultContextLimit.
var contextLimits = map[string]int{
	"claude-opus-4":           200_000,
	"claude-sonnet-4":         200_000,
	"claude-haiku-4":          200_000,
	"gpt-4o":                  128_000,
	"gpt-4o-mini":             128_000,
	"gpt-4-turbo":             128_000,
	"gemini-1.5-pro":          2_000_000,
	"gemini-1.5-flash":        1_000_000,
	"gemini-2.0-flash":        1_000_000,
}

// ContextLimitFor returns the known context window for modelName, or
// defaultContextLimit if the model is unrecognized.
func ContextLimitFor(modelName string) int {
	if limit, ok := contextLimits[modelName]; ok {
		return limit
	}
	return defaultContextLimit
}

// RegisterContextLimit adds or overrides a single entry in the per-model
// context-window table, for deployments running a model not already known
// to this package (or a provider-announced window change).
func RegisterContextLimit(modelName string, limit int) {
	contextLimits[modelName] = limit
}

// EstimateTokens applies the character-based heuristic (chars/4) the spec
// calls advisory, not wire-exact.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// BudgetMessage is the minimal shape EstimateBudget needs from a message;
// kept narrow so callers (e.g. package builtin) don't need to import
// package model just to compute a budget.
type BudgetMessage struct {
	Content string
}

// EstimateBudget computes a ContextBudget for modelName given the full
// message list. compactionCount should be carried forward from the
// previous budget on the same state and is returned unchanged; callers
// (the context_guard node) are responsible for incrementing it whenever
// the returned status is Block or Overflow.
func EstimateBudget(modelName string, messages []BudgetMessage, compactionCount int) ContextBudget {
	var chars int
	for _, m := range messages {
		chars += len(m.Content)
	}
	estimated := chars / 4
	limit := ContextLimitFor(modelName)
	ratio := float64(estimated) / float64(limit)

	var status BudgetStatus
	switch {
	case ratio >= 1.0:
		status = BudgetOverflow
	case ratio >= 0.90:
		status = BudgetBlock
	case ratio >= 0.75:
		status = BudgetWarning
	default:
		status = BudgetOK
	}

	return ContextBudget{
		EstimatedTokens: estimated,
		ContextLimit:    limit,
		UsageRatio:      ratio,
		Status:          status,
		CompactionCount: compactionCount,
	}
}
