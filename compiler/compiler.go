// Package compiler turns a validated workflow.Workflow plus a node.Registry
// into a Compiled state machine the runtime package can drive to
// termination: direct edges for single-target sources, conditional routing
// tables for branching ones, and the start/end sentinels resolved.
package compiler

import (
	"fmt"

	"github.com/agentloom/agentloom/node"
	"github.com/agentloom/agentloom/workflow"
)

// Terminal is the sentinel target id denoting graph completion.
const Terminal = ""

// CompiledNode is one non-start/non-end instance wired into the machine.
type CompiledNode struct {
	ID          string
	Type        node.Type
	Config      map[string]interface{}
	Conditional bool
	// Target is the single next node id for non-conditional nodes.
	Target string
	// PortTargets maps port id to next node id for conditional nodes.
	// A target of Terminal means the run ends.
	PortTargets map[string]string
	// Routing picks a port id given the live state, for conditional nodes.
	// Falls back to the first outgoing edge's port when Type.Routing is nil.
	Routing node.RoutingFunc
}

// Compiled is the executable form of a Workflow.
type Compiled struct {
	EntryID string
	Nodes   map[string]CompiledNode
}

// Compile validates wf against registry, then builds a Compiled machine per
// the grouping algorithm: edges are grouped by source; a source with a
// single distinct target gets a plain pass-through edge (even if declared
// via multiple ports, as with converging conditional branches); a source
// with multiple distinct targets gets conditional routing. Edges to an
// `end`-typed instance resolve to Terminal.
func Compile(wf *workflow.Workflow, registry *node.Registry) (*Compiled, error) {
	if err := workflow.Validate(wf, registry); err != nil {
		return nil, err
	}

	byID := make(map[string]workflow.NodeInstance, len(wf.Nodes))
	for _, n := range wf.Nodes {
		byID[n.ID] = n
	}

	edgesBySource := make(map[string][]workflow.Edge, len(wf.Nodes))
	for _, e := range wf.Edges {
		edgesBySource[e.Source] = append(edgesBySource[e.Source], e)
	}

	resolveTarget := func(id string) string {
		if inst, ok := byID[id]; ok && inst.NodeType == workflow.NodeTypeEnd {
			return Terminal
		}
		return id
	}

	var entryID string
	var entrySet bool
	nodes := make(map[string]CompiledNode, len(wf.Nodes))

	for _, inst := range wf.Nodes {
		if inst.NodeType == workflow.NodeTypeStart {
			edges := edgesBySource[inst.ID]
			if len(edges) != 1 {
				return nil, fmt.Errorf("compiler: start node %q must have exactly one outgoing edge, has %d", inst.ID, len(edges))
			}
			entryID = resolveTarget(edges[0].Target)
			entrySet = true
			continue
		}
		if inst.NodeType == workflow.NodeTypeEnd {
			continue
		}

		nodeType, ok := registry.Get(inst.NodeType)
		if !ok {
			return nil, fmt.Errorf("compiler: unregistered node type %q for instance %q", inst.NodeType, inst.ID)
		}

		edges := edgesBySource[inst.ID]
		distinctTargets := make(map[string]bool, len(edges))
		for _, e := range edges {
			distinctTargets[resolveTarget(e.Target)] = true
		}

		cn := CompiledNode{ID: inst.ID, Type: nodeType, Config: inst.Config}

		switch len(distinctTargets) {
		case 0:
			return nil, fmt.Errorf("compiler: node %q has no outgoing edge", inst.ID)
		case 1:
			for target := range distinctTargets {
				cn.Target = target
			}
		default:
			cn.Conditional = true
			cn.PortTargets = make(map[string]string, len(edges))
			for _, e := range edges {
				cn.PortTargets[e.Port()] = resolveTarget(e.Target)
			}
			cn.Routing = nodeType.Routing
			if cn.Routing == nil {
				firstPort := edges[0].Port()
				cn.Routing = func(state node.State, config map[string]interface{}) string {
					return firstPort
				}
			}
		}

		nodes[inst.ID] = cn
	}

	if !entrySet {
		return nil, fmt.Errorf("compiler: workflow %q has no start node", wf.ID)
	}

	return &Compiled{EntryID: entryID, Nodes: nodes}, nil
}
