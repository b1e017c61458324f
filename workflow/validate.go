package workflow

import "fmt"

// ValidationError reports every structural problem found in one pass so a
// caller can surface all of them at once rather than fixing issues one by one.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return e.Issues[0]
	}
	return fmt.Sprintf("%d validation issues, first: %s", len(e.Issues), e.Issues[0])
}

// TypeChecker reports whether a node type name is known. The workflow package
// depends on it as an interface so it need not import package node directly.
type TypeChecker interface {
	Has(nodeType string) bool
}

// PortSource resolves the output ports an instance's node type exposes,
// accounting for dynamic-ports node types whose port set depends on config.
// The node package supplies an implementation; workflow depends on it only
// as an interface to avoid an import cycle.
type PortSource interface {
	TypeChecker
	Ports(nodeType string, config map[string]interface{}) []OutputPort
}

// Validate runs the seven structural checks that must pass before a
// Workflow can be compiled:
//
//  1. exactly one start node.
//  2. at least one end node.
//  3. every edge's Source and Target resolve to existing node instances.
//  4. no start node is an edge target; no end node is an edge source.
//  5. every non-end node has at least one outgoing edge.
//  6. every node type (other than start/end) resolves in types.
//  7. every edge leaving a conditional node (one whose type yields more
//     than one port for its config) uses a port that type declares. A
//     declared port need not be wired, and edges leaving single-port nodes
//     are not checked against the port list.
func Validate(w *Workflow, types PortSource) error {
	var issues []string

	seen := make(map[string]bool, len(w.Nodes))
	startCount, endCount := 0, 0
	for _, n := range w.Nodes {
		if n.ID == "" {
			issues = append(issues, "node with empty ID")
			continue
		}
		if seen[n.ID] {
			issues = append(issues, fmt.Sprintf("duplicate node ID %q", n.ID))
		}
		seen[n.ID] = true
		switch n.NodeType {
		case NodeTypeStart:
			startCount++
		case NodeTypeEnd:
			endCount++
		default:
			if types != nil && !types.Has(n.NodeType) {
				issues = append(issues, fmt.Sprintf("node %q: unknown node type %q", n.ID, n.NodeType))
			}
		}
	}
	if startCount != 1 {
		issues = append(issues, fmt.Sprintf("workflow must have exactly one start node, found %d", startCount))
	}
	if endCount < 1 {
		issues = append(issues, "workflow must have at least one end node")
	}

	byID := make(map[string]NodeInstance, len(w.Nodes))
	for _, n := range w.Nodes {
		byID[n.ID] = n
	}

	outgoing := make(map[string]int, len(w.Nodes))
	portTargets := make(map[string]map[string][]string, len(w.Nodes)) // source -> port -> targets
	for _, e := range w.Edges {
		src, srcOK := byID[e.Source]
		_, tgtOK := byID[e.Target]
		if !srcOK {
			issues = append(issues, fmt.Sprintf("edge %q: unknown source node %q", e.ID, e.Source))
		}
		if !tgtOK {
			issues = append(issues, fmt.Sprintf("edge %q: unknown target node %q", e.ID, e.Target))
		}
		if tgtOK && byID[e.Target].NodeType == NodeTypeStart {
			issues = append(issues, fmt.Sprintf("edge %q: start node %q cannot be an edge target", e.ID, e.Target))
		}
		if srcOK && src.NodeType == NodeTypeEnd {
			issues = append(issues, fmt.Sprintf("edge %q: end node %q cannot be an edge source", e.ID, e.Source))
		}
		outgoing[e.Source]++
		if portTargets[e.Source] == nil {
			portTargets[e.Source] = make(map[string][]string)
		}
		portTargets[e.Source][e.Port()] = append(portTargets[e.Source][e.Port()], e.Target)
	}

	for _, n := range w.Nodes {
		if n.NodeType != NodeTypeEnd && outgoing[n.ID] == 0 {
			issues = append(issues, fmt.Sprintf("node %q: no outgoing edge", n.ID))
		}
		if n.NodeType == NodeTypeStart || n.NodeType == NodeTypeEnd || types == nil || !types.Has(n.NodeType) {
			continue
		}
		ports := types.Ports(n.NodeType, n.Config)
		if len(ports) <= 1 {
			continue
		}
		declared := make(map[string]bool, len(ports))
		for _, p := range ports {
			declared[p.ID] = true
		}
		for port := range portTargets[n.ID] {
			if !declared[port] {
				issues = append(issues, fmt.Sprintf("node %q: edge uses undeclared port %q", n.ID, port))
			}
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
