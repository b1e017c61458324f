package builtin

import (
	"github.com/agentloom/agentloom/node"
	"github.com/agentloom/agentloom/resilience"
	"github.com/agentloom/agentloom/workflow"
)

// contextGuardType implements context_guard: read messages from the named
// field, compute the context budget, write it to state. No routing.
func contextGuardType() node.Type {
	return node.Type{
		NodeType:    "context_guard",
		Label:       "Context Guard",
		Description: "Estimates context window usage and records a budget on state.",
		Category:    "resilience",
		OutputPorts: workflow.DefaultPorts(),
		Parameters: []workflow.ParameterSpec{
			{Name: "position_label", Type: workflow.ParamString, Default: "pre-model"},
			{Name: "messages_field", Type: workflow.ParamString, Default: "messages"},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			messagesField := configString(config, "messages_field", "messages")
			label := configString(config, "position_label", "pre-model")

			var msgs []resilience.BudgetMessage
			if raw, ok := state[messagesField].([]interface{}); ok {
				for _, m := range raw {
					msgs = append(msgs, resilience.BudgetMessage{Content: messageContent(m)})
				}
			}

			modelName := ""
			if ectx != nil && ectx.Model != nil {
				modelName = ectx.Model.Name()
			}

			prevBudget, _ := state["context_budget"].(map[string]interface{})
			compactionCount := 0
			if prevBudget != nil {
				compactionCount = configInt(prevBudget, "compaction_count", 0)
			}

			budget := resilience.EstimateBudget(modelName, msgs, compactionCount)
			if budget.Status == resilience.BudgetBlock || budget.Status == resilience.BudgetOverflow {
				budget.CompactionCount++
			}

			return node.State{
				"context_budget": map[string]interface{}{
					"estimated_tokens": budget.EstimatedTokens,
					"context_limit":    budget.ContextLimit,
					"usage_ratio":      budget.UsageRatio,
					"status":           string(budget.Status),
					"compaction_count": budget.CompactionCount,
				},
				"current_step": label,
			}, nil
		},
	}
}

// messageContent extracts the text content from a message value that may
// arrive as a map[string]interface{} (deserialized) or a plain string.
func messageContent(m interface{}) string {
	switch v := m.(type) {
	case string:
		return v
	case map[string]interface{}:
		if content, ok := v["content"].(string); ok {
			return content
		}
	case node.State:
		return v.GetString("content")
	}
	return ""
}

// postModelType implements post_model: increments the iteration counter,
// optionally detects a completion signal in source_field, optionally
// records a transcript entry.
func postModelType() node.Type {
	return node.Type{
		NodeType:    "post_model",
		Label:       "Post-Model",
		Description: "Increments iteration count and detects completion signals after a model call.",
		Category:    "resilience",
		OutputPorts: workflow.DefaultPorts(),
		Parameters: []workflow.ParameterSpec{
			{Name: "detect_completion", Type: workflow.ParamBoolean, Default: true},
			{Name: "record_transcript", Type: workflow.ParamBoolean, Default: false},
			{Name: "increment_field", Type: workflow.ParamString, Default: "iteration"},
			{Name: "source_field", Type: workflow.ParamString, Default: "last_output"},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			incrementField := configString(config, "increment_field", "iteration")
			sourceField := configString(config, "source_field", "last_output")
			detectCompletion := configBool(config, "detect_completion", true)
			recordTranscript := configBool(config, "record_transcript", false)

			delta := node.State{
				incrementField: state.GetInt(incrementField) + 1,
			}

			source := state.GetString(sourceField)
			if detectCompletion {
				if source != "" {
					signal, detail := resilience.ParseCompletionSignal(source)
					delta["completion_signal"] = string(signal)
					delta["completion_detail"] = detail
					if signal == resilience.SignalComplete || signal == resilience.SignalBlocked || signal == resilience.SignalError {
						delta["is_complete"] = true
					}
				} else {
					delta["completion_signal"] = string(resilience.SignalNone)
				}
			}

			if recordTranscript && ectx != nil && ectx.Memory != nil && source != "" {
				if err := ectx.Memory.AppendTranscript(ectx.Ctx, ectx.SessionID, "assistant", source); err != nil {
					return delta, err
				}
			}

			return delta, nil
		},
	}
}
