package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/dctx-team/routex/internal/providers"
)

const providerName = "openai"

// Provider implements providers.ChannelProvider for the OpenAI chat-
// completions dialect via the official SDK, constructed per Channel. It is
// also the generic adapter for every "openai-compatible" channel type: only
// the BaseURL changes, the wire dialect is identical (spec §4.6).
type Provider struct {
	name   string
	client openaiSDK.Client
}

// New builds a Provider bound to one channel's base URL and API key. name
// lets openai-compatible channel types (e.g. "groq", "deepseek") report
// their own name while reusing this adapter.
func New(name, baseURL, apiKey string) *Provider {
	if name == "" {
		name = providerName
	}
	httpClient := &http.Client{Timeout: providers.ProviderTimeout}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0), // proxy.Engine's retry loop is the only retry layer
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{name: name, client: openaiSDK.NewClient(opts...)}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("%s: health check: %w", p.name, toProviderError(err))
	}
	return nil
}

// Do marshals body (already in the OpenAI chat-completions dialect, per C7's
// openai transformer) into the SDK's typed params, executes through the
// SDK's transport, and marshals the typed response back to a JSON map.
func (p *Provider) Do(ctx context.Context, body map[string]any, stream bool) (map[string]any, <-chan providers.StreamEvent, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}
	var params openaiSDK.ChatCompletionNewParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, nil, fmt.Errorf("%s: decode request into SDK params: %w", p.name, err)
	}

	if stream {
		return nil, p.doStream(ctx, params), nil
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, nil, toProviderError(err)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: marshal response: %w", p.name, err)
	}
	var result map[string]any
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	return result, nil, nil
}

func (p *Provider) doStream(ctx context.Context, params openaiSDK.ChatCompletionNewParams) <-chan providers.StreamEvent {
	ch := make(chan providers.StreamEvent, 64)
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	go func() {
		defer close(ch)
		for stream.Next() {
			chunk := stream.Current()
			raw, err := json.Marshal(chunk)
			if err != nil {
				ch <- providers.StreamEvent{Err: err}
				return
			}
			ch <- providers.StreamEvent{Data: string(raw)}
		}
		if err := stream.Err(); err != nil {
			ch <- providers.StreamEvent{Err: toProviderError(err)}
		}
	}()

	return ch
}

type ProviderError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("openai: %s (status=%d, type=%s)", e.Message, e.StatusCode, e.Type)
}

func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &ProviderError{
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
			Type:       "openai_error",
		}
	}
	return err
}
