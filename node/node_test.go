package node

import (
	"testing"

	"github.com/agentloom/agentloom/workflow"
)

func echoType() Type {
	return Type{
		NodeType: "echo",
		Label:    "Echo",
		Execute: func(state State, ectx *ExecContext, config map[string]interface{}) (State, error) {
			return State{"last_output": state.GetString("input")}, nil
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoType())

	got, ok := r.Get("echo")
	if !ok {
		t.Fatalf("expected echo to be registered")
	}
	if got.Label != "Echo" {
		t.Fatalf("got label %q", got.Label)
	}
}

func TestRegisterLastWriterWins(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoType())
	updated := echoType()
	updated.Label = "Echo v2"
	r.Register(updated)

	got, _ := r.Get("echo")
	if got.Label != "Echo v2" {
		t.Fatalf("expected last registration to win, got %q", got.Label)
	}
}

func TestAliasResolvesToCanonical(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoType())
	r.RegisterAlias("repeat", "echo")

	got, ok := r.Get("repeat")
	if !ok || got.NodeType != "echo" {
		t.Fatalf("expected alias to resolve to echo, got %+v ok=%v", got, ok)
	}
	if !r.Has("repeat") {
		t.Fatalf("expected Has to follow aliases")
	}
}

func TestConditionalAndPortsWithDynamicPorts(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(Type{
		NodeType: "router",
		DynamicPorts: func(config map[string]interface{}) []workflow.OutputPort {
			routeMap, _ := config["route_map"].(map[string]interface{})
			ports := make([]workflow.OutputPort, 0, len(routeMap)+1)
			for k := range routeMap {
				ports = append(ports, workflow.OutputPort{ID: k})
			}
			return append(ports, workflow.OutputPort{ID: "default"})
		},
	})

	got, _ := r.Get("router")
	config := map[string]interface{}{"route_map": map[string]interface{}{"yes": "a", "no": "b"}}
	if !got.Conditional(config) {
		t.Fatalf("expected router with 2 routes + default to be conditional")
	}
	if len(got.Ports(config)) != 3 {
		t.Fatalf("expected 3 ports, got %d", len(got.Ports(config)))
	}
}

func TestCatalogExportsRegisteredTypes(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoType())
	catalog := r.Catalog()
	if len(catalog) != 1 || catalog[0].NodeType != "echo" {
		t.Fatalf("unexpected catalog: %+v", catalog)
	}
	if catalog[0].IsConditional {
		t.Fatalf("expected a single-port type to report is_conditional=false")
	}
}

func TestCatalogMarksMultiPortTypesConditional(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(Type{
		NodeType:    "router",
		OutputPorts: []workflow.OutputPort{{ID: "yes"}, {ID: "no"}},
	})
	catalog := r.Catalog()
	if len(catalog) != 1 || !catalog[0].IsConditional {
		t.Fatalf("expected a 2-port type to report is_conditional=true, got %+v", catalog)
	}
}

func TestUnregisteredTypeDefaultsToSinglePort(t *testing.T) {
	r := NewRegistry(nil)
	if len(r.Ports("missing", nil)) != 1 {
		t.Fatalf("expected default single port for unregistered type")
	}
}
