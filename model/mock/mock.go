// Package mock provides a deterministic, scriptable model.Model for tests.
package mock

import (
	"context"
	"sync"

	"github.com/agentloom/agentloom/model"
)

// Model returns a scripted sequence of Responses, repeating the last one
// once exhausted. It records every call for assertions.
type Model struct {
	ModelName string
	Responses []model.Response
	Err       error

	mu    sync.Mutex
	calls []Call
	next  int

	tools  []model.ToolSpec
	schema map[string]interface{}
}

// Call records one invocation.
type Call struct {
	Messages []model.Message
}

// New builds a Model that returns responses in order.
func New(name string, responses ...model.Response) *Model {
	return &Model{ModelName: name, Responses: responses}
}

func (m *Model) Name() string {
	if m.ModelName == "" {
		return "mock"
	}
	return m.ModelName
}

func (m *Model) Invoke(ctx context.Context, messages []model.Message) (model.Response, error) {
	if err := ctx.Err(); err != nil {
		return model.Response{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Messages: messages})

	if m.Err != nil {
		return model.Response{}, m.Err
	}
	if len(m.Responses) == 0 {
		return model.Response{}, nil
	}

	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}
	return m.Responses[idx], nil
}

func (m *Model) Stream(ctx context.Context, messages []model.Message) (<-chan model.Chunk, error) {
	resp, err := m.Invoke(ctx, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan model.Chunk, 1)
	ch <- model.Chunk{Text: resp.Text, Done: true}
	close(ch)
	return ch, nil
}

func (m *Model) BindTools(tools []model.ToolSpec) model.Model {
	clone := *m
	clone.tools = tools
	clone.calls = nil
	clone.next = 0
	return &clone
}

func (m *Model) WithStructuredOutput(schema map[string]interface{}) model.Model {
	clone := *m
	clone.schema = schema
	clone.calls = nil
	clone.next = 0
	return &clone
}

// Calls returns the recorded invocation history.
func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount is a convenience wrapper around len(Calls()).
func (m *Model) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears call history and rewinds the response cursor.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}
