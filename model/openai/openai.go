// Package openai adapts the OpenAI chat-completions API to model.Model, an
// alternate Model implementation alongside model/cliproc and model/anthropic.
package openai

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/orcherr"
)

// Config configures the adapter.
type Config struct {
	APIKey    string
	ModelName string
}

// Adapter implements model.Model over the OpenAI SDK.
type Adapter struct {
	cfg    Config
	client openai.Client
	tools  []model.ToolSpec
	schema map[string]interface{}
}

// New builds an Adapter from Config.
func New(cfg Config) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
	}
}

func (a *Adapter) Name() string { return a.cfg.ModelName }

func (a *Adapter) Invoke(ctx context.Context, messages []model.Message) (model.Response, error) {
	var turns []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			turns = append(turns, openai.SystemMessage(msg.Content))
		case model.RoleUser:
			turns = append(turns, openai.UserMessage(msg.Content))
		case model.RoleAssistant:
			turns = append(turns, openai.AssistantMessage(msg.Content))
		}
	}

	if a.schema != nil {
		turns = append(turns, openai.SystemMessage("Respond with a JSON object only, matching the requested schema."))
	}

	params := openai.ChatCompletionNewParams{
		Model:    a.cfg.ModelName,
		Messages: turns,
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.Response{}, classifyErr(err)
	}
	if len(completion.Choices) == 0 {
		return model.Response{}, orcherr.New(orcherr.Internal, "openai: empty response")
	}

	return model.Response{
		Text: completion.Choices[0].Message.Content,
		Metadata: map[string]interface{}{
			"prompt_tokens":     completion.Usage.PromptTokens,
			"completion_tokens": completion.Usage.CompletionTokens,
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

// classifyErr maps an OpenAI SDK error onto orcherr's typed taxonomy
// (spec.md §4.A), mirroring model/anthropic.classifyErr.
func classifyErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return orcherr.Wrap(orcherr.RateLimited, "openai: rate limited", err)
		case apiErr.StatusCode == http.StatusServiceUnavailable:
			return orcherr.Wrap(orcherr.Overloaded, "openai: overloaded", err)
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			return orcherr.Wrap(orcherr.Timeout, "openai: timeout", err)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return orcherr.Wrap(orcherr.Auth, "openai: auth failed", err)
		case apiErr.StatusCode == http.StatusBadRequest:
			return orcherr.Wrap(orcherr.InvalidInput, "openai: invalid input", err)
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return orcherr.Wrap(orcherr.NetworkError, "openai: server error", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return orcherr.Wrap(orcherr.Timeout, "openai: timeout", err)
	}
	return orcherr.Wrap(orcherr.Internal, "openai: request failed", err)
}
