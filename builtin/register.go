package builtin

import "github.com/agentloom/agentloom/node"

// All returns every built-in node.Type, in the order listed by spec.md §4.I.
func All() []node.Type {
	return []node.Type{
		contextGuardType(),
		postModelType(),
		iterationGateType(),
		conditionalRouterType(),
		classifyType(),
		directAnswerType(),
		answerType(),
		reviewType(),
		createTodosType(),
		executeTodoType(),
		checkProgressType(),
		finalReviewType(),
		finalAnswerType(),
		memoryInjectType(),
		transcriptRecordType(),
		llmCallType(),
	}
}

// Register adds every built-in node type to reg, plus the alias table for
// node types that have been renamed since earlier template versions.
func Register(reg *node.Registry) {
	for _, t := range All() {
		reg.Register(t)
	}
	reg.RegisterAlias("router", "conditional_router")
	reg.RegisterAlias("model_call", "llm_call")
}
