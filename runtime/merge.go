package runtime

import "github.com/agentloom/agentloom/node"

// elementReplaceFields names state fields whose delta, when a single-element
// list, replaces the element at current_todo_index rather than the whole
// field. Declared once here since only the todo pipeline writes todo-like
// lists this way (execute_todo writes a single-element delta; create_todos
// writes the full list, which is replaced whole when it has more than one
// element); any
// builtin node that prefers unambiguous full-list replacement can simply
// write the whole list instead, per spec.
var elementReplaceFields = map[string]bool{
	"todos": true,
}

// Merge applies a node's state delta onto the live state per the runtime's
// state-merge discipline: messages and memory_refs append; element-replace
// fields swap in the element at current_todo_index when the delta supplies
// exactly one; everything else replaces the field wholesale.
func Merge(state node.State, delta node.State) node.State {
	if state == nil {
		state = node.State{}
	}
	merged := state.Clone()

	for key, value := range delta {
		switch {
		case key == "messages":
			merged["messages"] = appendList(merged["messages"], value)
		case key == "memory_refs":
			if isList(value) {
				merged["memory_refs"] = appendList(merged["memory_refs"], value)
			} else {
				merged["memory_refs"] = value
			}
		case elementReplaceFields[key] && isSingleElementList(value):
			idx := merged.GetInt("current_todo_index")
			merged[key] = replaceAt(merged[key], idx, singleElement(value))
		default:
			merged[key] = value
		}
	}

	return merged
}

func isList(v interface{}) bool {
	switch v.(type) {
	case []interface{}, []node.State:
		return true
	}
	return false
}

func isSingleElementList(v interface{}) bool {
	switch vv := v.(type) {
	case []interface{}:
		return len(vv) == 1
	case []node.State:
		return len(vv) == 1
	}
	return false
}

func singleElement(v interface{}) interface{} {
	switch vv := v.(type) {
	case []interface{}:
		return vv[0]
	case []node.State:
		return vv[0]
	}
	return v
}

func appendList(existing, addition interface{}) []interface{} {
	out := toSlice(existing)
	out = append(out, toSlice(addition)...)
	return out
}

func toSlice(v interface{}) []interface{} {
	switch vv := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return vv
	case []node.State:
		out := make([]interface{}, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out
	default:
		return []interface{}{vv}
	}
}

func replaceAt(existing interface{}, idx int, value interface{}) []interface{} {
	out := toSlice(existing)
	if idx < 0 {
		return out
	}
	for len(out) <= idx {
		out = append(out, nil)
	}
	out[idx] = value
	return out
}
