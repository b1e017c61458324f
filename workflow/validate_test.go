package workflow

import "testing"

type fixedTypes struct {
	known map[string]bool
	ports map[string][]OutputPort
}

func (f fixedTypes) Has(nodeType string) bool { return f.known[nodeType] }

func (f fixedTypes) Ports(nodeType string, config map[string]interface{}) []OutputPort {
	if ports, ok := f.ports[nodeType]; ok {
		return ports
	}
	return DefaultPorts()
}

func simpleTypes() fixedTypes {
	return fixedTypes{known: map[string]bool{NodeTypeStart: true, NodeTypeEnd: true, "classify": true}}
}

func linearWorkflow() *Workflow {
	return &Workflow{
		ID: "wf1",
		Nodes: []NodeInstance{
			{ID: "start", NodeType: NodeTypeStart},
			{ID: "mid", NodeType: "classify"},
			{ID: "end", NodeType: NodeTypeEnd},
		},
		Edges: []Edge{
			{ID: "e1", Source: "start", Target: "mid"},
			{ID: "e2", Source: "mid", Target: "end"},
		},
	}
}

func TestValidateAcceptsLinearWorkflow(t *testing.T) {
	if err := Validate(linearWorkflow(), simpleTypes()); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsUnknownNodeType(t *testing.T) {
	w := linearWorkflow()
	types := fixedTypes{known: map[string]bool{NodeTypeStart: true, NodeTypeEnd: true}}
	if err := Validate(w, types); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidateRejectsDuplicateNodeID(t *testing.T) {
	w := linearWorkflow()
	w.Nodes = append(w.Nodes, NodeInstance{ID: "mid", NodeType: "classify"})
	if err := Validate(w, simpleTypes()); err == nil {
		t.Fatalf("expected validation error for duplicate ID")
	}
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	w := linearWorkflow()
	w.Edges = append(w.Edges, Edge{ID: "e3", Source: "mid", Target: "ghost"})
	if err := Validate(w, simpleTypes()); err == nil {
		t.Fatalf("expected validation error for dangling edge")
	}
}

func TestValidateRejectsEndAsEdgeSource(t *testing.T) {
	w := linearWorkflow()
	w.Nodes = append(w.Nodes, NodeInstance{ID: "extra", NodeType: "classify"})
	w.Edges = append(w.Edges, Edge{ID: "e3", Source: "end", Target: "extra"})
	if err := Validate(w, simpleTypes()); err == nil {
		t.Fatalf("expected validation error for end node as edge source")
	}
}

func TestValidateRejectsStartAsEdgeTarget(t *testing.T) {
	w := linearWorkflow()
	w.Edges = append(w.Edges, Edge{ID: "e3", Source: "mid", Target: "start"})
	if err := Validate(w, simpleTypes()); err == nil {
		t.Fatalf("expected validation error for start node as edge target")
	}
}

func TestValidateRequiresExactlyOneStartNode(t *testing.T) {
	w := linearWorkflow()
	w.Nodes = append(w.Nodes, NodeInstance{ID: "start2", NodeType: NodeTypeStart})
	if err := Validate(w, simpleTypes()); err == nil {
		t.Fatalf("expected validation error for multiple start nodes")
	}

	w2 := &Workflow{Nodes: []NodeInstance{{ID: "only", NodeType: NodeTypeEnd}}}
	if err := Validate(w2, simpleTypes()); err == nil {
		t.Fatalf("expected validation error for missing start node")
	}
}

func TestValidateRequiresAtLeastOneEndNode(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeInstance{
			{ID: "start", NodeType: NodeTypeStart},
			{ID: "mid", NodeType: "classify"},
		},
		Edges: []Edge{{ID: "e1", Source: "start", Target: "mid"}},
	}
	if err := Validate(w, simpleTypes()); err == nil {
		t.Fatalf("expected validation error for missing end node")
	}
}

func TestValidateRejectsUndeclaredConditionalPort(t *testing.T) {
	w := &Workflow{
		Nodes: []NodeInstance{
			{ID: "start", NodeType: NodeTypeStart},
			{ID: "router", NodeType: "conditional_router"},
			{ID: "a", NodeType: "classify"},
			{ID: "end", NodeType: NodeTypeEnd},
		},
		Edges: []Edge{
			{ID: "e1", Source: "start", Target: "router"},
			{ID: "e2", Source: "router", Target: "a", SourcePort: "nonexistent"},
			{ID: "e3", Source: "a", Target: "end"},
		},
	}
	types := fixedTypes{
		known: map[string]bool{NodeTypeStart: true, NodeTypeEnd: true, "classify": true, "conditional_router": true},
		ports: map[string][]OutputPort{
			"conditional_router": {{ID: "approved"}, {ID: "retry"}},
		},
	}
	if err := Validate(w, types); err == nil {
		t.Fatalf("expected validation error for undeclared port")
	}
}
