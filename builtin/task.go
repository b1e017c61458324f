package builtin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentloom/agentloom/node"
	"github.com/agentloom/agentloom/workflow"
)

// maxTodoItems bounds the decomposition the create_todos node will accept
// from a single model response, guarding against a runaway or malformed
// list.
const maxTodoItems = 20

func todoItem(content, status string) map[string]interface{} {
	return map[string]interface{}{"content": content, "status": status}
}

// createTodosType implements create_todos: calls the model to decompose
// the input into a numbered todo list, parses it (one item per line,
// tolerating a leading "1." / "-" marker), and seeds todos/
// current_todo_index.
func createTodosType() node.Type {
	return node.Type{
		NodeType:    "create_todos",
		Label:       "Create Todos",
		Description: "Decomposes the input into a todo list for step-by-step execution.",
		Category:    "task",
		OutputPorts: workflow.DefaultPorts(),
		Parameters: []workflow.ParameterSpec{
			{Name: "prompt_template", Type: workflow.ParamPromptTmpl, Default: "Break this task into a numbered list of concrete steps:\n\n{input}"},
			{Name: "todos_field", Type: workflow.ParamString, Default: "todos"},
			{Name: "index_field", Type: workflow.ParamString, Default: "current_todo_index"},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			prompt := FormatTemplate(configString(config, "prompt_template", ""), state)
			text, err := callModel(ectx, "", prompt)
			if err != nil {
				return nil, err
			}

			items := parseTodoLines(text)
			if len(items) > maxTodoItems {
				items = items[:maxTodoItems]
			}

			todos := make([]interface{}, 0, len(items))
			for _, content := range items {
				todos = append(todos, todoItem(content, "pending"))
			}
			if len(todos) == 0 {
				todos = append(todos, todoItem(strings.TrimSpace(text), "pending"))
			}

			todosField := configString(config, "todos_field", "todos")
			indexField := configString(config, "index_field", "current_todo_index")
			return node.State{
				todosField: todos,
				indexField: 0,
			}, nil
		},
	}
}

func parseTodoLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "0123456789.-) ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// executeTodoType implements execute_todo: calls the model on the current
// todo item's content, marks it completed, and replaces the element at
// current_todo_index (runtime's element-replace merge discipline for
// todo-like lists).
func executeTodoType() node.Type {
	return node.Type{
		NodeType:    "execute_todo",
		Label:       "Execute Todo",
		Description: "Executes the current todo item via a model call and marks it completed.",
		Category:    "task",
		OutputPorts: workflow.DefaultPorts(),
		Parameters: []workflow.ParameterSpec{
			{Name: "prompt_template", Type: workflow.ParamPromptTmpl, Default: "Complete this step:\n\n{current_todo_content}\n\nContext: {input}"},
			{Name: "todos_field", Type: workflow.ParamString, Default: "todos"},
			{Name: "index_field", Type: workflow.ParamString, Default: "current_todo_index"},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			todosField := configString(config, "todos_field", "todos")
			indexField := configString(config, "index_field", "current_todo_index")

			todos, _ := state[todosField].([]interface{})
			idx := state.GetInt(indexField)
			if idx < 0 || idx >= len(todos) {
				return node.State{"error": fmt.Sprintf("execute_todo: index %d out of range (%d todos)", idx, len(todos))}, nil
			}

			content := ""
			if m, ok := todos[idx].(map[string]interface{}); ok {
				content, _ = m["content"].(string)
			}

			scoped := state.Clone()
			scoped["current_todo_content"] = content
			prompt := FormatTemplate(configString(config, "prompt_template", ""), scoped)

			text, err := callModel(ectx, "", prompt)
			if err != nil {
				return nil, err
			}

			updated := todoItem(content, "completed")
			updated["result"] = text

			return node.State{
				todosField:   []interface{}{updated},
				"last_output": text,
			}, nil
		},
	}
}

// finalReviewType implements final_review: a synthesis model call over
// every completed todo's result, used as a gate before final_answer.
func finalReviewType() node.Type {
	return node.Type{
		NodeType:    "final_review",
		Label:       "Final Review",
		Description: "Reviews all completed todo results together before synthesis.",
		Category:    "task",
		OutputPorts: workflow.DefaultPorts(),
		Parameters: []workflow.ParameterSpec{
			{Name: "todos_field", Type: workflow.ParamString, Default: "todos"},
			{Name: "prompt_template", Type: workflow.ParamPromptTmpl, Default: "Review these completed steps for consistency:\n\n{todo_results}"},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			todosField := configString(config, "todos_field", "todos")
			todos, _ := state[todosField].([]interface{})

			scoped := state.Clone()
			scoped["todo_results"] = joinTodoResults(todos)

			prompt := FormatTemplate(configString(config, "prompt_template", ""), scoped)
			text, err := callModel(ectx, "", prompt)
			if err != nil {
				return nil, err
			}
			return node.State{"review_result": text}, nil
		},
	}
}

func joinTodoResults(todos []interface{}) string {
	b, _ := json.Marshal(todos)
	var parts []string
	for _, t := range todos {
		m, ok := t.(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := m["content"].(string)
		result, _ := m["result"].(string)
		parts = append(parts, fmt.Sprintf("- %s: %s", content, result))
	}
	if len(parts) == 0 {
		return string(b)
	}
	return strings.Join(parts, "\n")
}

// finalAnswerType implements final_answer: synthesizes a final textual
// answer from the todo results (or falls back to last_output), writing
// final_answer and marking the run complete.
func finalAnswerType() node.Type {
	return node.Type{
		NodeType:    "final_answer",
		Label:       "Final Answer",
		Description: "Synthesizes the final answer and marks the run complete.",
		Category:    "task",
		OutputPorts: workflow.DefaultPorts(),
		Parameters: []workflow.ParameterSpec{
			{Name: "todos_field", Type: workflow.ParamString, Default: "todos"},
			{Name: "prompt_template", Type: workflow.ParamPromptTmpl, Default: "Synthesize a single final answer from these results:\n\n{todo_results}"},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			todosField := configString(config, "todos_field", "todos")
			todos, _ := state[todosField].([]interface{})

			var text string
			var err error
			if len(todos) > 0 {
				scoped := state.Clone()
				scoped["todo_results"] = joinTodoResults(todos)
				prompt := FormatTemplate(configString(config, "prompt_template", ""), scoped)
				text, err = callModel(ectx, "", prompt)
				if err != nil {
					return nil, err
				}
			} else {
				text = state.GetString("last_output")
			}

			return node.State{"final_answer": text, "is_complete": true}, nil
		},
	}
}
