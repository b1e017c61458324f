// Package node maintains the global catalog of workflow node types: each
// type's parameter schema, output ports, execute function, and optional
// routing/dynamic-ports functions, plus alias redirections so renamed types
// keep old workflow templates resolvable.
package node

import (
	"context"
	"sync"

	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/workflow"
)

// State is the dynamic, string-keyed record threaded through a graph run.
// Arbitrary node-written fields live alongside the well-known ones the
// runtime understands specially (messages, iteration, is_complete, ...).
type State map[string]interface{}

// Clone returns a shallow copy of s suitable for building a state delta.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Get reads a field, returning nil if absent.
func (s State) Get(key string) interface{} {
	if s == nil {
		return nil
	}
	return s[key]
}

// GetString reads a string field, returning "" for absent or non-string values.
func (s State) GetString(key string) string {
	v, _ := s.Get(key).(string)
	return v
}

// GetInt reads an int field, tolerating int/int64/float64 representations
// (state deltas frequently arrive via JSON-shaped maps).
func (s State) GetInt(key string) int {
	switch v := s.Get(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// GetBool reads a bool field, returning false for absent or non-bool values.
func (s State) GetBool(key string) bool {
	v, _ := s.Get(key).(bool)
	return v
}

// ExecContext is handed to every node's execute function. It carries the
// capabilities a node may call out to: the model adapter, an optional
// memory collaborator, and run identity for telemetry.
type ExecContext struct {
	Ctx       context.Context
	SessionID string
	RunID     string
	Model     model.Model
	Memory    MemoryManager
}

// MemoryManager is the optional memory/retrieval collaborator (interface
// only, per spec's out-of-scope boundary).
type MemoryManager interface {
	Inject(ctx context.Context, sessionID string, query string) ([]MemoryRef, error)
	AppendTranscript(ctx context.Context, sessionID string, role, content string) error
}

// MemoryRef is an opaque pointer into the memory collaborator's store.
type MemoryRef struct {
	ID      string
	Summary string
}

// ExecuteFunc is a node type's behavior: given the live state and execution
// context, produce a partial state delta to merge.
type ExecuteFunc func(state State, ectx *ExecContext, config map[string]interface{}) (State, error)

// RoutingFunc picks an output port id given the live state, for conditional
// node types.
type RoutingFunc func(state State, config map[string]interface{}) string

// DynamicPortsFunc computes a node type's concrete output ports from its
// instance config, for types whose port set isn't fixed at registration
// time (e.g. conditional_router, classify).
type DynamicPortsFunc func(config map[string]interface{}) []workflow.OutputPort

// Type is a registered node type: its static descriptor plus runtime hooks.
type Type struct {
	NodeType     string
	Label        string
	Description  string
	Category     string
	Icon         string
	Color        string
	Parameters   []workflow.ParameterSpec
	OutputPorts  []workflow.OutputPort
	Execute      ExecuteFunc
	Routing      RoutingFunc
	DynamicPorts DynamicPortsFunc
}

// Ports returns the concrete output ports for an instance of this type,
// given its config, consulting DynamicPorts when present.
func (t Type) Ports(config map[string]interface{}) []workflow.OutputPort {
	if t.DynamicPorts != nil {
		return t.DynamicPorts(config)
	}
	if len(t.OutputPorts) > 0 {
		return t.OutputPorts
	}
	return workflow.DefaultPorts()
}

// Conditional reports whether an instance of this type (given config) has
// more than one output port and therefore needs routing.
func (t Type) Conditional(config map[string]interface{}) bool {
	return len(t.Ports(config)) > 1
}

// Registry is the global, thread-safe node-type catalog.
type Registry struct {
	mu      sync.RWMutex
	types   map[string]Type
	aliases map[string]string
	log     func(format string, args ...interface{})
}

// NewRegistry builds an empty Registry. log, if non-nil, receives
// warnings such as re-registration of an existing type; a nil log
// discards them.
func NewRegistry(log func(format string, args ...interface{})) *Registry {
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	return &Registry{
		types:   make(map[string]Type),
		aliases: make(map[string]string),
		log:     log,
	}
}

// Register adds or replaces a node type. Re-registering an existing
// node_type is allowed; last writer wins, and a warning is logged.
func (r *Registry) Register(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.NodeType]; exists {
		r.log("node: re-registering node type %q (last writer wins)", t.NodeType)
	}
	r.types[t.NodeType] = t
}

// RegisterAlias records alias → canonical so old templates referencing a
// renamed type keep resolving.
func (r *Registry) RegisterAlias(alias, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = canonical
}

// resolve follows an alias chain to its canonical name. Safe against
// self-referential aliases (bounded iteration).
func (r *Registry) resolve(nodeType string) string {
	seen := map[string]bool{}
	for {
		canonical, ok := r.aliases[nodeType]
		if !ok || seen[nodeType] {
			return nodeType
		}
		seen[nodeType] = true
		nodeType = canonical
	}
}

// Get resolves a node type by name (following aliases), reporting whether
// it was found.
func (r *Registry) Get(nodeType string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[r.resolve(nodeType)]
	return t, ok
}

// Has reports whether nodeType (after alias resolution) is registered.
// Implements workflow.TypeChecker.
func (r *Registry) Has(nodeType string) bool {
	_, ok := r.Get(nodeType)
	return ok
}

// Ports implements workflow.PortSource: the concrete output ports for an
// instance of nodeType given its config, or workflow.DefaultPorts() if the
// type is unregistered.
func (r *Registry) Ports(nodeType string, config map[string]interface{}) []workflow.OutputPort {
	t, ok := r.Get(nodeType)
	if !ok {
		return workflow.DefaultPorts()
	}
	return t.Ports(config)
}

// ListAll returns every registered type, canonical names only.
func (r *Registry) ListAll() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	return out
}

// CatalogEntry is the serializable descriptor exported to the external
// editor UI.
type CatalogEntry struct {
	NodeType      string                   `json:"node_type"`
	Label         string                   `json:"label"`
	Description   string                   `json:"description"`
	Category      string                   `json:"category"`
	Icon          string                   `json:"icon"`
	Color         string                   `json:"color"`
	IsConditional bool                     `json:"is_conditional"`
	Parameters    []workflow.ParameterSpec `json:"parameters"`
	OutputPorts   []workflow.OutputPort    `json:"output_ports"`
}

// Catalog exports every registered type as a CatalogEntry. Types whose
// port set depends on a generates_ports parameter report the ports their
// DynamicPorts function yields for an empty config; concrete instances
// compute theirs from config via Ports.
func (r *Registry) Catalog() []CatalogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CatalogEntry, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, CatalogEntry{
			NodeType:      t.NodeType,
			Label:         t.Label,
			Description:   t.Description,
			Category:      t.Category,
			Icon:          t.Icon,
			Color:         t.Color,
			IsConditional: t.Conditional(nil),
			Parameters:    t.Parameters,
			OutputPorts:   t.Ports(nil),
		})
	}
	return out
}
