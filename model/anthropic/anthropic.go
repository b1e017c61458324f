// Package anthropic adapts the Anthropic Messages API to model.Model. It is
// an alternate to model/cliproc for deployments that talk to the provider
// directly rather than through a wrapped CLI.
package anthropic

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/orcherr"
)

// Config configures the adapter.
type Config struct {
	APIKey    string
	ModelName string
	MaxTokens int64
}

// Adapter implements model.Model over the Anthropic SDK.
type Adapter struct {
	cfg    Config
	client anthropic.Client
	tools  []model.ToolSpec
	schema map[string]interface{}
}

// New builds an Adapter from Config.
func New(cfg Config) *Adapter {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	return &Adapter{
		cfg:    cfg,
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
	}
}

func (a *Adapter) Name() string { return a.cfg.ModelName }

func (a *Adapter) Invoke(ctx context.Context, messages []model.Message) (model.Response, error) {
	var system string
	var turns []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case model.RoleUser:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case model.RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	if a.schema != nil {
		system += "\n\nRespond with a JSON object only, matching the requested schema."
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.ModelName),
		MaxTokens: a.cfg.MaxTokens,
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return model.Response{}, classifyErr(err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return model.Response{
		Text: text,
		Metadata: map[string]interface{}{
			"input_tokens":  msg.Usage.InputTokens,
			"output_tokens": msg.Usage.OutputTokens,
		},
	}, nil
}

func (a *Adapter) Stream(ctx context.Context, messages []model.Message) (<-chan model.Chunk, error) {
	resp, err := a.Invoke(ctx, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan model.Chunk, 2)
	ch <- model.Chunk{Text: resp.Text}
	ch <- model.Chunk{Done: true}
	close(ch)
	return ch, nil
}

func (a *Adapter) BindTools(tools []model.ToolSpec) model.Model {
	clone := *a
	clone.tools = tools
	return &clone
}

func (a *Adapter) WithStructuredOutput(schema map[string]interface{}) model.Model {
	clone := *a
	clone.schema = schema
	return &clone
}

// classifyErr maps an Anthropic SDK error onto orcherr's typed taxonomy
// (spec.md §4.A "errors are raised as typed failures") so resilience.Classify
// can tell a rate-limit from an auth failure instead of folding every SDK
// error into ReasonUnknown.
func classifyErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return orcherr.Wrap(orcherr.RateLimited, "anthropic: rate limited", err)
		case apiErr.StatusCode == http.StatusServiceUnavailable:
			return orcherr.Wrap(orcherr.Overloaded, "anthropic: overloaded", err)
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			return orcherr.Wrap(orcherr.Timeout, "anthropic: timeout", err)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return orcherr.Wrap(orcherr.Auth, "anthropic: auth failed", err)
		case apiErr.StatusCode == http.StatusBadRequest:
			return orcherr.Wrap(orcherr.InvalidInput, "anthropic: invalid input", err)
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return orcherr.Wrap(orcherr.NetworkError, "anthropic: server error", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return orcherr.Wrap(orcherr.Timeout, "anthropic: timeout", err)
	}
	return orcherr.Wrap(orcherr.Internal, "anthropic: request failed", err)
}
