// Package builtin registers the ~15 built-in node types against a
// node.Registry: model-call nodes, control-flow/logic nodes, resilience
// gates, the todo decomposition pipeline, and memory hooks.
package builtin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agentloom/agentloom/node"
)

var templateFieldPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// FormatTemplate substitutes {field_name} placeholders from state. Missing
// keys are left as the literal placeholder text (never an error); nil
// values stringify to the empty string; everything else stringifies with
// fmt.Sprint.
func FormatTemplate(tmpl string, state node.State) string {
	return templateFieldPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		v, ok := state[name]
		if !ok {
			return match
		}
		if v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	})
}

// configString reads a string-typed config field, falling back to def.
func configString(config map[string]interface{}, key, def string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// configBool reads a bool-typed config field, falling back to def.
func configBool(config map[string]interface{}, key string, def bool) bool {
	if v, ok := config[key].(bool); ok {
		return v
	}
	return def
}

// configInt reads a numeric config field, tolerating int/int64/float64,
// falling back to def.
func configInt(config map[string]interface{}, key string, def int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// configStringList reads a []interface{} or []string config field.
func configStringList(config map[string]interface{}, key string) []string {
	switch v := config[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// normalizeCategory lowercases and trims for case-insensitive matching.
func normalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
