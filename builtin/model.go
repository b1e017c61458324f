package builtin

import (
	"context"
	"strings"

	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/node"
	"github.com/agentloom/agentloom/resilience"
	"github.com/agentloom/agentloom/workflow"
)

// callModel formats prompt, invokes the model with retry per the
// resilience error classifier, and returns the response text.
func callModel(ectx *node.ExecContext, systemPrompt, userPrompt string) (string, error) {
	var text string
	err := resilience.Retry(ectx.Ctx, func(ctx context.Context) error {
		var messages []model.Message
		if systemPrompt != "" {
			messages = append(messages, model.Message{Role: model.RoleSystem, Content: systemPrompt})
		}
		messages = append(messages, model.Message{Role: model.RoleUser, Content: userPrompt})
		resp, err := ectx.Model.Invoke(ctx, messages)
		if err != nil {
			return err
		}
		text = resp.Text
		return nil
	})
	return text, err
}

// llmCallType implements llm_call: the generic model call node with a
// configurable prompt template, conditional-prompt switching on a
// falsy/truthy/gt-zero field check, and multi-field output mapping.
func llmCallType() node.Type {
	return node.Type{
		NodeType:    "llm_call",
		Label:       "LLM Call",
		Description: "Generic model invocation with a configurable prompt template.",
		Category:    "model",
		OutputPorts: workflow.DefaultPorts(),
		Parameters: []workflow.ParameterSpec{
			{Name: "prompt_template", Type: workflow.ParamPromptTmpl, Required: true},
			{Name: "alt_prompt_template", Type: workflow.ParamPromptTmpl},
			{Name: "condition_field", Type: workflow.ParamString},
			{Name: "condition_mode", Type: workflow.ParamSelect, Options: []string{"truthy", "falsy", "gt_zero"}, Default: "truthy"},
			{Name: "system_prompt", Type: workflow.ParamTextarea},
			{Name: "output_field", Type: workflow.ParamString, Default: "last_output"},
			{Name: "output_fields", Type: workflow.ParamJSON},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			tmpl := configString(config, "prompt_template", "")
			if field := configString(config, "condition_field", ""); field != "" {
				if !evalCondition(state.Get(field), configString(config, "condition_mode", "truthy")) {
					if alt := configString(config, "alt_prompt_template", ""); alt != "" {
						tmpl = alt
					}
				}
			}

			prompt := FormatTemplate(tmpl, state)
			systemPrompt := FormatTemplate(configString(config, "system_prompt", ""), state)

			text, err := callModel(ectx, systemPrompt, prompt)
			if err != nil {
				return nil, err
			}

			outputField := configString(config, "output_field", "last_output")
			delta := node.State{outputField: text}
			for _, extra := range configStringList(config, "output_fields") {
				if extra != "" && extra != outputField {
					delta[extra] = text
				}
			}
			return delta, nil
		},
	}
}

func evalCondition(v interface{}, mode string) bool {
	switch mode {
	case "falsy":
		return !truthy(v)
	case "gt_zero":
		switch n := v.(type) {
		case int:
			return n > 0
		case int64:
			return n > 0
		case float64:
			return n > 0
		}
		return false
	default:
		return truthy(v)
	}
}

// classifyType implements classify: format a prompt template, call the
// model, match the response against a list of categories
// (case-insensitive substring match, first match wins), write the
// matched category to output_field. Conditional, with one port per
// category plus an implicit "end" port for error routing.
func classifyType() node.Type {
	return node.Type{
		NodeType:    "classify",
		Label:       "Classify",
		Description: "Classifies input into one of a fixed set of categories via a model call.",
		Category:    "model",
		Parameters: []workflow.ParameterSpec{
			{Name: "prompt_template", Type: workflow.ParamPromptTmpl, Required: true},
			{Name: "categories", Type: workflow.ParamJSON, GeneratesPorts: true},
			{Name: "default_category", Type: workflow.ParamString},
			{Name: "output_field", Type: workflow.ParamString, Default: "difficulty"},
		},
		DynamicPorts: func(config map[string]interface{}) []workflow.OutputPort {
			categories := configStringList(config, "categories")
			ports := make([]workflow.OutputPort, 0, len(categories)+1)
			for _, c := range categories {
				ports = append(ports, workflow.OutputPort{ID: normalizeCategory(c)})
			}
			return append(ports, workflow.OutputPort{ID: "end"})
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			prompt := FormatTemplate(configString(config, "prompt_template", ""), state)
			text, err := callModel(ectx, "", prompt)
			if err != nil {
				return node.State{"error": err.Error()}, nil
			}

			outputField := configString(config, "output_field", "difficulty")
			categories := configStringList(config, "categories")
			matched := configString(config, "default_category", "")
			lower := normalizeCategory(text)
			for _, c := range categories {
				if strings.Contains(lower, normalizeCategory(c)) {
					matched = c
					break
				}
			}
			return node.State{outputField: matched}, nil
		},
		Routing: func(state node.State, config map[string]interface{}) string {
			if state.GetString("error") != "" {
				return "end"
			}
			outputField := configString(config, "output_field", "difficulty")
			return normalizeCategory(state.GetString(outputField))
		},
	}
}

// directAnswerType implements direct_answer: a single model call for the
// easy-path reply, writing to answer and last_output.
func directAnswerType() node.Type {
	return node.Type{
		NodeType:    "direct_answer",
		Label:       "Direct Answer",
		Description: "Answers directly from the input without decomposition.",
		Category:    "model",
		OutputPorts: workflow.DefaultPorts(),
		Parameters: []workflow.ParameterSpec{
			{Name: "prompt_template", Type: workflow.ParamPromptTmpl, Default: "Answer this directly and concisely: {input}"},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			prompt := FormatTemplate(configString(config, "prompt_template", "Answer this directly and concisely: {input}"), state)
			text, err := callModel(ectx, "", prompt)
			if err != nil {
				return nil, err
			}
			return node.State{"answer": text, "last_output": text}, nil
		},
	}
}

// answerType implements answer: a model call producing a reviewable draft
// answer, distinct from direct_answer in that it feeds the review loop.
func answerType() node.Type {
	return node.Type{
		NodeType:    "answer",
		Label:       "Answer",
		Description: "Produces a draft answer subject to review.",
		Category:    "model",
		OutputPorts: workflow.DefaultPorts(),
		Parameters: []workflow.ParameterSpec{
			{Name: "prompt_template", Type: workflow.ParamPromptTmpl, Default: "Answer the following, incorporating any review feedback: {input}\n\nPrior feedback: {review_result}"},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			prompt := FormatTemplate(configString(config, "prompt_template", ""), state)
			text, err := callModel(ectx, "", prompt)
			if err != nil {
				return nil, err
			}
			return node.State{"answer": text, "last_output": text}, nil
		},
	}
}

var reviewPorts = []workflow.OutputPort{{ID: "approved"}, {ID: "retry"}, {ID: "end"}}

// reviewType implements review: calls the model to critique the current
// answer, incrementing review_count, and routes approved/retry/end.
func reviewType() node.Type {
	return node.Type{
		NodeType:    "review",
		Label:       "Review",
		Description: "Critiques the current answer and routes to retry or approval.",
		Category:    "model",
		OutputPorts: reviewPorts,
		Parameters: []workflow.ParameterSpec{
			{Name: "prompt_template", Type: workflow.ParamPromptTmpl, Default: "Review this answer for correctness and completeness. Reply APPROVED or explain what to fix:\n\n{answer}"},
			{Name: "max_reviews", Type: workflow.ParamNumber, Default: 3},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			prompt := FormatTemplate(configString(config, "prompt_template", ""), state)
			text, err := callModel(ectx, "", prompt)
			if err != nil {
				return node.State{"error": err.Error()}, nil
			}
			delta := node.State{
				"review_result": text,
				"review_count":  state.GetInt("review_count") + 1,
			}
			if strings.Contains(strings.ToUpper(text), "APPROVED") {
				delta["review_approved"] = true
			} else {
				delta["review_approved"] = false
			}
			return delta, nil
		},
		Routing: func(state node.State, config map[string]interface{}) string {
			if state.GetString("error") != "" {
				return "end"
			}
			if state.GetBool("review_approved") {
				return "approved"
			}
			maxReviews := configInt(config, "max_reviews", 3)
			if state.GetInt("review_count") >= maxReviews {
				return "end"
			}
			return "retry"
		},
	}
}
