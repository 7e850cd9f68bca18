package providers

import (
	"context"
	"fmt"

	"github.com/dctx-team/routex/internal/providers/anthropic"
	"github.com/dctx-team/routex/internal/providers/gemini"
	"github.com/dctx-team/routex/internal/providers/openai"
)

// New constructs the ChannelProvider for one channel, dispatching on its
// Type. Any channel type other than "anthropic" and "gemini" is treated as
// an OpenAI-compatible dialect (spec §4.6) — the vast majority of channel
// types in practice, since most self-hosted and third-party LLM endpoints
// mirror the OpenAI chat-completions wire format.
func New(ctx context.Context, channelType, baseURL, apiKey string) (ChannelProvider, error) {
	switch channelType {
	case "anthropic":
		return anthropic.New(baseURL, apiKey), nil
	case "gemini":
		return gemini.New(ctx, baseURL, apiKey)
	case "":
		return nil, fmt.Errorf("providers: channel type is required")
	default:
		return openai.New(channelType, baseURL, apiKey), nil
	}
}
