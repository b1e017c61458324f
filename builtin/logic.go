package builtin

import (
	"encoding/json"

	"github.com/agentloom/agentloom/node"
	"github.com/agentloom/agentloom/resilience"
	"github.com/agentloom/agentloom/workflow"
)

var gatePorts = []workflow.OutputPort{{ID: "continue"}, {ID: "stop"}}

// iterationGateType implements iteration_gate: a conditional node (ports
// continue/stop) that checks iteration/budget/completion/custom-field
// triggers in order and records why it stopped.
func iterationGateType() node.Type {
	return node.Type{
		NodeType:    "iteration_gate",
		Label:       "Iteration Gate",
		Description: "Checks iteration, budget, completion, and custom stop conditions.",
		Category:    "resilience",
		OutputPorts: gatePorts,
		Parameters: []workflow.ParameterSpec{
			{Name: "max_iterations_override", Type: workflow.ParamNumber, Default: 0},
			{Name: "check_iteration", Type: workflow.ParamBoolean, Default: true},
			{Name: "check_budget", Type: workflow.ParamBoolean, Default: true},
			{Name: "check_completion", Type: workflow.ParamBoolean, Default: true},
			{Name: "custom_stop_field", Type: workflow.ParamString, Default: ""},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			delta := node.State{}

			maxIterOverride := configInt(config, "max_iterations_override", 0)
			maxIter := maxIterOverride
			if maxIter == 0 {
				maxIter = state.GetInt("max_iterations")
			}

			stop := false
			reason := ""

			if configBool(config, "check_iteration", true) && maxIter > 0 && state.GetInt("iteration") >= maxIter {
				stop, reason = true, "iteration limit reached"
			}
			if !stop && configBool(config, "check_budget", true) {
				if budget, ok := state["context_budget"].(map[string]interface{}); ok {
					status, _ := budget["status"].(string)
					if status == string(resilience.BudgetBlock) || status == string(resilience.BudgetOverflow) {
						stop, reason = true, "context budget exhausted"
					}
				}
			}
			if !stop && configBool(config, "check_completion", true) {
				signal := state.GetString("completion_signal")
				if signal == string(resilience.SignalComplete) || signal == string(resilience.SignalBlocked) || signal == string(resilience.SignalError) {
					stop, reason = true, "completion signal received"
				}
			}
			if !stop {
				if field := configString(config, "custom_stop_field", ""); field != "" && truthy(state.Get(field)) {
					stop, reason = true, "custom stop field truthy"
				}
			}

			if stop {
				delta["is_complete"] = true
				delta["gate_stop_reason"] = reason
			}

			return delta, nil
		},
		Routing: func(state node.State, config map[string]interface{}) string {
			if state.GetBool("is_complete") || state.GetString("error") != "" {
				return "stop"
			}
			return "continue"
		},
	}
}

func truthy(v interface{}) bool {
	switch vv := v.(type) {
	case nil:
		return false
	case bool:
		return vv
	case string:
		return vv != ""
	case int:
		return vv != 0
	case int64:
		return vv != 0
	case float64:
		return vv != 0
	default:
		return true
	}
}

// conditionalRouterType implements conditional_router: a no-op execute
// (only marks current_step) whose routing function reads routing_field,
// normalizes it, and looks it up in route_map, falling back to
// default_port. Ports are dynamic: one per distinct route_map value plus
// default_port.
func conditionalRouterType() node.Type {
	return node.Type{
		NodeType:    "conditional_router",
		Label:       "Conditional Router",
		Description: "Routes to a port chosen by a JSON field-value-to-port mapping.",
		Category:    "logic",
		Parameters: []workflow.ParameterSpec{
			{Name: "routing_field", Type: workflow.ParamString, Required: true},
			{Name: "route_map", Type: workflow.ParamJSON, GeneratesPorts: true},
			{Name: "default_port", Type: workflow.ParamString, Default: "default"},
		},
		DynamicPorts: func(config map[string]interface{}) []workflow.OutputPort {
			routeMap := decodeRouteMap(config)
			seen := map[string]bool{}
			ports := make([]workflow.OutputPort, 0, len(routeMap)+1)
			for _, portID := range routeMap {
				if !seen[portID] {
					seen[portID] = true
					ports = append(ports, workflow.OutputPort{ID: portID})
				}
			}
			def := configString(config, "default_port", "default")
			if !seen[def] {
				ports = append(ports, workflow.OutputPort{ID: def})
			}
			return ports
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			return node.State{"current_step": "conditional_router"}, nil
		},
		Routing: func(state node.State, config map[string]interface{}) string {
			routeMap := decodeRouteMap(config)
			field := configString(config, "routing_field", "")
			raw := state.Get(field)
			key := normalizeRouteKey(raw)
			if port, ok := routeMap[key]; ok {
				return port
			}
			return configString(config, "default_port", "default")
		},
	}
}

func normalizeRouteKey(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return normalizeCategory(v)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return normalizeCategory(string(b))
	}
}

func decodeRouteMap(config map[string]interface{}) map[string]string {
	out := map[string]string{}
	raw, ok := config["route_map"]
	if !ok {
		return out
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		if s, ok := raw.(string); ok {
			var decoded map[string]interface{}
			if json.Unmarshal([]byte(s), &decoded) == nil {
				m = decoded
			}
		}
	}
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[normalizeCategory(k)] = s
		}
	}
	return out
}

var progressPorts = []workflow.OutputPort{{ID: "continue"}, {ID: "complete"}}

// checkProgressType implements check_progress: part of the todo pipeline.
// Conditional (ports continue/complete) based on whether every todo in the
// named list field has reached the completed status.
func checkProgressType() node.Type {
	return node.Type{
		NodeType:    "check_progress",
		Label:       "Check Progress",
		Description: "Routes to complete once every todo item is done, else continue.",
		Category:    "logic",
		OutputPorts: progressPorts,
		Parameters: []workflow.ParameterSpec{
			{Name: "todos_field", Type: workflow.ParamString, Default: "todos"},
			{Name: "index_field", Type: workflow.ParamString, Default: "current_todo_index"},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			todosField := configString(config, "todos_field", "todos")
			indexField := configString(config, "index_field", "current_todo_index")

			todos, _ := state[todosField].([]interface{})
			allDone := len(todos) > 0
			for _, item := range todos {
				if todoStatus(item) != "completed" {
					allDone = false
					break
				}
			}

			delta := node.State{}
			if allDone {
				delta["is_complete"] = true
			} else {
				nextIdx := state.GetInt(indexField)
				for i, item := range todos {
					if todoStatus(item) != "completed" {
						nextIdx = i
						break
					}
				}
				delta[indexField] = nextIdx
			}
			return delta, nil
		},
		Routing: func(state node.State, config map[string]interface{}) string {
			todosField := configString(config, "todos_field", "todos")
			todos, _ := state[todosField].([]interface{})
			for _, item := range todos {
				if todoStatus(item) != "completed" {
					return "continue"
				}
			}
			if len(todos) == 0 {
				return "continue"
			}
			return "complete"
		},
	}
}

func todoStatus(item interface{}) string {
	switch v := item.(type) {
	case map[string]interface{}:
		s, _ := v["status"].(string)
		return s
	case node.State:
		return v.GetString("status")
	}
	return ""
}
