// Package google adapts Google's Generative AI API (Gemini) to model.Model,
// an alternate Model implementation alongside model/cliproc,
// model/anthropic, and model/openai.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/orcherr"
)

// Config configures the adapter.
type Config struct {
	APIKey    string
	ModelName string
}

// Adapter implements model.Model over the Google Generative AI SDK.
type Adapter struct {
	cfg    Config
	client *genai.Client
	schema map[string]interface{}
}

// New builds an Adapter, establishing the underlying client connection.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("google: new client: %w", err)
	}
	return &Adapter{cfg: cfg, client: client}, nil
}

func (a *Adapter) Name() string { return a.cfg.ModelName }

func (a *Adapter) Invoke(ctx context.Context, messages []model.Message) (model.Response, error) {
	gm := a.client.GenerativeModel(a.cfg.ModelName)

	var system string
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		}
	}
	if system != "" {
		gm.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	if a.schema != nil {
		gm.ResponseMIMEType = "application/json"
	}

	cs := gm.StartChat()
	for _, msg := range messages[:len(messages)-1] {
		if msg.Role == model.RoleSystem {
			continue
		}
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	last := messages[len(messages)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return model.Response{}, classifyErr(err)
	}

	var text string
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}

	return model.Response{Text: text}, nil
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
	return &clone
}

func (a *Adapter) WithStructuredOutput(schema map[string]interface{}) model.Model {
	clone := *a
	clone.schema = schema
	return &clone
}

// Close releases the underlying client connection.
func (a *Adapter) Close() error { return a.client.Close() }

// classifyErr maps a Google Generative AI SDK error onto orcherr's typed
// taxonomy (spec.md §4.A), mirroring model/anthropic.classifyErr. The SDK
// surfaces transport failures as *googleapi.Error, carrying the HTTP status.
func classifyErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return orcherr.Wrap(orcherr.RateLimited, "google: rate limited", err)
		case apiErr.Code == http.StatusServiceUnavailable:
			return orcherr.Wrap(orcherr.Overloaded, "google: overloaded", err)
		case apiErr.Code == http.StatusRequestTimeout || apiErr.Code == http.StatusGatewayTimeout:
			return orcherr.Wrap(orcherr.Timeout, "google: timeout", err)
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return orcherr.Wrap(orcherr.Auth, "google: auth failed", err)
		case apiErr.Code == http.StatusBadRequest:
			return orcherr.Wrap(orcherr.InvalidInput, "google: invalid input", err)
		case apiErr.Code >= http.StatusInternalServerError:
			return orcherr.Wrap(orcherr.NetworkError, "google: server error", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return orcherr.Wrap(orcherr.Timeout, "google: timeout", err)
	}
	return orcherr.Wrap(orcherr.Internal, "google: request failed", err)
}
