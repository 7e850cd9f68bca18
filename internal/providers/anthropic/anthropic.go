package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dctx-team/routex/internal/providers"
)

const providerName = "anthropic"

// Provider implements providers.ChannelProvider against the official
// Anthropic SDK, constructed per Channel with that channel's own BaseURL and
// APIKey rather than the teacher's single process-wide configuration.
type Provider struct {
	client anthropic.Client
}

// New builds a Provider bound to one channel's base URL and API key.
func New(baseURL, apiKey string) *Provider {
	httpClient := &http.Client{Timeout: providers.ProviderTimeout}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0), // proxy.Engine's retry loop is the only retry layer
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{client: anthropic.NewClient(opts...)}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)})
	if err != nil {
		return fmt.Errorf("anthropic: health check: %w", toProviderError(err))
	}
	return nil
}

// Do marshals body (already in Anthropic's own wire dialect, since C7's
// anthropic transformer is the identity transformer) into the SDK's typed
// MessageNewParams, executes the call through the SDK's transport, and
// marshals the typed response straight back to a JSON map — keeping the
// official client's auth/transport behavior (its own retries are disabled in
// New) without the adapter
// needing to know about every field the SDK supports.
func (p *Provider) Do(ctx context.Context, body map[string]any, stream bool) (map[string]any, <-chan providers.StreamEvent, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	var params anthropic.MessageNewParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, nil, fmt.Errorf("anthropic: decode request into SDK params: %w", err)
	}

	if stream {
		return nil, p.doStream(ctx, params), nil
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, nil, toProviderError(err)
	}
	out, err := json.Marshal(msg)
	if err != nil {
		return nil, nil, fmt.Errorf("anthropic: marshal response: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, nil, fmt.Errorf("anthropic: decode response: %w", err)
	}
	return result, nil, nil
}

func (p *Provider) doStream(ctx context.Context, params anthropic.MessageNewParams) <-chan providers.StreamEvent {
	ch := make(chan providers.StreamEvent, 64)
	stream := p.client.Messages.NewStreaming(ctx, params)

	go func() {
		defer close(ch)
		for stream.Next() {
			ev := stream.Current()
			raw, err := json.Marshal(ev)
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

// ProviderError is a structured error returned by the Anthropic API.
type ProviderError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("anthropic: %s (status=%d, type=%s)", e.Message, e.StatusCode, e.Type)
}

// HTTPStatus implements providers.StatusCoder.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func toProviderError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &ProviderError{
			StatusCode: apierr.StatusCode,
			Message:    apierr.Error(),
			Type:       "anthropic_error",
		}
	}
	return err
}
