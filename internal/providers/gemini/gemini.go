package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/dctx-team/routex/internal/providers"
)

const providerName = "gemini"

// Provider implements providers.ChannelProvider for the Gemini
// generateContent dialect via the official GenAI SDK, constructed per
// Channel with that channel's own base URL and API key.
type Provider struct {
	client *genai.Client
}

// New builds a Provider bound to one channel's base URL and API key. ctx is
// only used to construct the SDK client, not retained.
func New(ctx context.Context, baseURL, apiKey string) (*Provider, error) {
	httpClient := &http.Client{Timeout: providers.ProviderTimeout}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1})
	if err != nil {
		return fmt.Errorf("gemini: health check: %w", toProviderError(err))
	}
	return nil
}

// geminiRequest mirrors the generateContent REST body shape that C7's
// gemini transformer produces: model lives alongside contents/tools rather
// than as a path parameter, since the transformer is dialect-agnostic about
// routing.
type geminiRequest struct {
	Model             string                       `json:"model"`
	Contents          []*genai.Content             `json:"contents"`
	SystemInstruction *genai.Content               `json:"systemInstruction,omitempty"`
	GenerationConfig  *genai.GenerateContentConfig `json:"generationConfig,omitempty"`
	Tools             []*genai.Tool                `json:"tools,omitempty"`
}

func (p *Provider) Do(ctx context.Context, body map[string]any, stream bool) (map[string]any, <-chan providers.StreamEvent, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("gemini: marshal request: %w", err)
	}
	var req geminiRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, nil, fmt.Errorf("gemini: decode request: %w", err)
	}

	cfg := req.GenerationConfig
	if req.SystemInstruction != nil {
		if cfg == nil {
			cfg = &genai.GenerateContentConfig{}
		}
		cfg.SystemInstruction = req.SystemInstruction
	}
	if len(req.Tools) > 0 {
		if cfg == nil {
			cfg = &genai.GenerateContentConfig{}
		}
		cfg.Tools = req.Tools
	}

	model, _ := body["model"].(string)
	if model == "" {
		model = req.Model
	}

	if stream {
		return nil, p.doStream(ctx, model, req.Contents, cfg), nil
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, req.Contents, cfg)
	if err != nil {
		return nil, nil, toProviderError(err)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, nil, fmt.Errorf("gemini: marshal response: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	return result, nil, nil
}

func (p *Provider) doStream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) <-chan providers.StreamEvent {
	ch := make(chan providers.StreamEvent, 64)

	go func() {
		defer close(ch)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				ch <- providers.StreamEvent{Err: toProviderError(err)}
				return
			}
			if resp == nil {
				continue
			}
			raw, err := json.Marshal(resp)
			if err != nil {
				ch <- providers.StreamEvent{Err: err}
				return
			}
			ch <- providers.StreamEvent{Data: string(raw)}
		}
	}()

	return ch
}

// ProviderError is a structured error returned by the Gemini API (SDK wrapper).
type ProviderError struct {
	StatusCode int
	Message    string
	Type       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("gemini: %s (status=%d, type=%s)", e.Message, e.StatusCode, e.Type)
}

// HTTPStatus implements providers.StatusCoder.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

func toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Type:       apiErr.Status,
		}
	}
	return err
}
