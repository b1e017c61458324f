package builtin

import (
	"github.com/agentloom/agentloom/node"
	"github.com/agentloom/agentloom/workflow"
)

// memoryInjectType implements memory_inject: queries the memory
// collaborator for refs relevant to the current input and appends them to
// memory_refs. A no-op (returns an empty delta) when no memory manager is
// configured on the session.
func memoryInjectType() node.Type {
	return node.Type{
		NodeType:    "memory_inject",
		Label:       "Memory Inject",
		Description: "Loads relevant memory references into state.",
		Category:    "memory",
		OutputPorts: workflow.DefaultPorts(),
		Parameters: []workflow.ParameterSpec{
			{Name: "query_field", Type: workflow.ParamString, Default: "input"},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			if ectx == nil || ectx.Memory == nil {
				return node.State{}, nil
			}
			queryField := configString(config, "query_field", "input")
			query := state.GetString(queryField)

			refs, err := ectx.Memory.Inject(ectx.Ctx, ectx.SessionID, query)
			if err != nil {
				return nil, err
			}
			if len(refs) == 0 {
				return node.State{}, nil
			}
			converted := make([]interface{}, len(refs))
			for i, r := range refs {
				converted[i] = map[string]interface{}{"id": r.ID, "summary": r.Summary}
			}
			return node.State{"memory_refs": converted}, nil
		},
	}
}

// transcriptRecordType implements transcript_record: appends source_field's
// current value to the memory collaborator's transcript. A no-op when no
// memory manager is configured.
func transcriptRecordType() node.Type {
	return node.Type{
		NodeType:    "transcript_record",
		Label:       "Transcript Record",
		Description: "Appends the current output to the session transcript.",
		Category:    "memory",
		OutputPorts: workflow.DefaultPorts(),
		Parameters: []workflow.ParameterSpec{
			{Name: "source_field", Type: workflow.ParamString, Default: "last_output"},
			{Name: "role", Type: workflow.ParamString, Default: "assistant"},
		},
		Execute: func(state node.State, ectx *node.ExecContext, config map[string]interface{}) (node.State, error) {
			if ectx == nil || ectx.Memory == nil {
				return node.State{}, nil
			}
			sourceField := configString(config, "source_field", "last_output")
			content := state.GetString(sourceField)
			if content == "" {
				return node.State{}, nil
			}
			role := configString(config, "role", "assistant")
			if err := ectx.Memory.AppendTranscript(ectx.Ctx, ectx.SessionID, role, content); err != nil {
				return nil, err
			}
			return node.State{}, nil
		},
	}
}
