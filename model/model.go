// Package model presents an external AI assistant as a uniform capability:
// invoke, stream, bind tools, and request structured output. Concrete
// implementations translate this surface onto whatever transport the
// assistant actually speaks — a long-lived CLI subprocess (model/cliproc) or
// a direct provider SDK (model/anthropic, model/openai, model/google).
package model

import "context"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of conversation.
type Message struct {
	Role    Role
	Content string
}

// ToolSpec describes a callable tool a model may invoke.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a request from the model to invoke a tool.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}

// Response is what invoking a Model produces.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	// Metadata carries opaque, implementation-specific detail: cost,
	// duration, provider-side conversation/session identifiers.
	Metadata map[string]interface{}
}

// Chunk is one piece of a streamed Response.
type Chunk struct {
	Text string
	Done bool
}

// Model is the capability the orchestrator core depends on (spec §4.A).
// Implementations must serialize concurrent calls: at most one Invoke/Stream
// in flight per Model at a time, since the wrapped process maintains
// conversational state (spec §5, "the external CLI process per Session:
// mutated only via the model adapter... only one invocation is in flight at
// a time").
type Model interface {
	// Invoke sends messages and blocks for a complete response.
	Invoke(ctx context.Context, messages []Message) (Response, error)

	// Stream sends messages and yields chunks as they become available. The
	// returned channel is closed when the response is complete or ctx is
	// canceled.
	Stream(ctx context.Context, messages []Message) (<-chan Chunk, error)

	// BindTools returns a new Model bound to the given tools. model/cliproc
	// advertises them to the assistant as a system-prompt section; the
	// direct-API adapters (model/anthropic, model/openai, model/google) do
	// not send them to the provider.
	BindTools(tools []ToolSpec) Model

	// WithStructuredOutput returns a new Model that asks for output matching
	// schema. model/cliproc also parses the response, reporting the parsed
	// value via Response.Metadata["structured"]; the direct-API adapters
	// only add a JSON-output instruction and do not parse the response.
	WithStructuredOutput(schema map[string]interface{}) Model

	// Name identifies the underlying model (e.g. "claude-sonnet-4-20250514"),
	// used by the resilience layer's context-budget table lookup.
	Name() string
}
