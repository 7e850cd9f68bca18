// Package providers defines the common interface implemented by each
// upstream dialect adapter (Anthropic, OpenAI-compatible, Gemini). Unlike
// the teacher's static per-model Provider, a Routex ChannelProvider is
// constructed per Channel (dynamic BaseURL/APIKey from the Store) and
// operates on an already dialect-transformed transform.Body rather than a
// typed ProxyRequest, since C7's TransformerPipeline has already done the
// canonical<->dialect conversion by the time the engine reaches this layer.
package providers

import (
	"context"
	"time"
)

// ProviderTimeout bounds a single upstream HTTP call.
const ProviderTimeout = 120 * time.Second

// StreamEvent is one decoded chunk of a streaming upstream response, in the
// provider's own dialect. proxy.Engine does not read these events: they are
// neither run through C7's TransformResponse nor relayed to the client.
type StreamEvent struct {
	Data string // raw dialect-specific JSON payload for this chunk
	Err  error  // non-nil on the final event if the stream ended in error
}

// ChannelProvider performs the actual upstream call for one channel.
type ChannelProvider interface {
	Name() string
	// Do sends body (already in this provider's dialect) to the channel's
	// upstream. When stream is false the second return is nil and the first
	// holds the complete dialect-specific JSON response body. When stream is
	// true the first return is nil and events arrive on the channel, closed
	// when the upstream stream ends.
	Do(ctx context.Context, body map[string]any, stream bool) (map[string]any, <-chan StreamEvent, error)
	HealthCheck(ctx context.Context) error
}

// StatusCoder is implemented by provider errors that carry an HTTP status,
// consulted by internal/retry.IsRetriable.
type StatusCoder interface {
	HTTPStatus() int
}
