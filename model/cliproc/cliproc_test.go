package cliproc

import (
	"strings"
	"testing"

	"github.com/agentloom/agentloom/model"
)

func TestMessagesToPromptFirstTurnIncludesHistory(t *testing.T) {
	m := New(Config{Command: []string{"echo"}, SystemPrompt: "be helpful"})
	prompt := m.messagesToPrompt([]model.Message{
		{Role: model.RoleSystem, Content: "be helpful"},
		{Role: model.RoleUser, Content: "hello"},
	})
	if !strings.Contains(prompt, "hello") || !strings.Contains(prompt, "be helpful") {
		t.Fatalf("expected full history on first turn, got %q", prompt)
	}
}

func TestMessagesToPromptResumeUsesLastUserMessage(t *testing.T) {
	m := New(Config{Command: []string{"echo"}})
	m.executionN = 1
	prompt := m.messagesToPrompt([]model.Message{
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "reply"},
		{Role: model.RoleUser, Content: "second"},
	})
	if prompt != "second" {
		t.Fatalf("expected resume mode to return last user message, got %q", prompt)
	}
}

func TestFormatToolsPrompt(t *testing.T) {
	out := formatToolsPrompt([]model.ToolSpec{{Name: "weather", Description: "gets weather"}})
	if !strings.Contains(out, "weather") || !strings.Contains(out, "gets weather") {
		t.Fatalf("unexpected tools prompt: %q", out)
	}
	if formatToolsPrompt(nil) != "" {
		t.Fatalf("expected empty string for no tools")
	}
}

func TestExtractJSONBlock(t *testing.T) {
	in := "here you go:\n```json\n{\"a\":1}\n```\nthanks"
	if got := extractJSONBlock(in); got != `{"a":1}` {
		t.Fatalf("got %q", got)
	}
	if got := extractJSONBlock(`{"a":1}`); got != `{"a":1}` {
		t.Fatalf("plain JSON should pass through unchanged, got %q", got)
	}
}
