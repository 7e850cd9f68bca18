package transform

// Utility transformers. Unlike the dialect transformers, these operate on
// the canonical body in place and are dialect-agnostic — they can appear
// anywhere in a channel's transformer chain (spec §4.6).

// MaxTokenTransformer clamps a request's max_tokens to a ceiling, letting an
// operator cap cost/latency per channel without touching client requests.
type MaxTokenTransformer struct{}

func NewMaxTokenTransformer() *MaxTokenTransformer { return &MaxTokenTransformer{} }

func (t *MaxTokenTransformer) Name() string { return "maxtoken" }

func (t *MaxTokenTransformer) TransformRequest(body Body, options map[string]any) (Body, Headers, error) {
	ceiling, ok := numericOption(options, "max")
	if !ok || ceiling <= 0 {
		return body, nil, nil
	}
	current, ok := numericOption(body, "max_tokens")
	if ok && current <= ceiling {
		return body, nil, nil
	}
	out := body.clone()
	out["max_tokens"] = int(ceiling)
	return out, nil, nil
}

func (t *MaxTokenTransformer) TransformResponse(body Body, _ map[string]any) (Body, error) {
	return body, nil
}

// SamplingTransformer overrides temperature/top_p with fixed channel-level
// values, used to pin deterministic or exploratory sampling per channel.
type SamplingTransformer struct{}

func NewSamplingTransformer() *SamplingTransformer { return &SamplingTransformer{} }

func (t *SamplingTransformer) Name() string { return "sampling" }

func (t *SamplingTransformer) TransformRequest(body Body, options map[string]any) (Body, Headers, error) {
	out := body.clone()
	changed := false
	if temp, ok := numericOption(options, "temperature"); ok {
		out["temperature"] = temp
		changed = true
	}
	if topP, ok := numericOption(options, "top_p"); ok {
		out["top_p"] = topP
		changed = true
	}
	if !changed {
		return body, nil, nil
	}
	return out, nil, nil
}

func (t *SamplingTransformer) TransformResponse(body Body, _ map[string]any) (Body, error) {
	return body, nil
}

// CleanCacheTransformer strips cache_control annotations from content blocks
// before forwarding to providers that reject or ignore Anthropic's
// prompt-caching hints, avoiding upstream 400s on pass-through channels.
type CleanCacheTransformer struct{}

func NewCleanCacheTransformer() *CleanCacheTransformer { return &CleanCacheTransformer{} }

func (t *CleanCacheTransformer) Name() string { return "cleancache" }

func (t *CleanCacheTransformer) TransformRequest(body Body, _ map[string]any) (Body, Headers, error) {
	out := body.clone()
	for _, raw := range bodyMessages(out) {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		blocks, ok := msg["content"].([]any)
		if !ok {
			continue
		}
		for _, b := range blocks {
			if block, ok := b.(map[string]any); ok {
				delete(block, "cache_control")
			}
		}
	}
	if system, ok := out["system"].([]any); ok {
		for _, b := range system {
			if block, ok := b.(map[string]any); ok {
				delete(block, "cache_control")
			}
		}
	}
	return out, nil, nil
}

func (t *CleanCacheTransformer) TransformResponse(body Body, _ map[string]any) (Body, error) {
	return body, nil
}

func (b Body) clone() Body {
	out := make(Body, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

func numericOption(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
