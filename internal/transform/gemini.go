package transform

// GeminiTransformer converts between the canonical Anthropic Messages shape
// and the Gemini generateContent dialect (spec §4.6: "gemini: a variant of
// the openai mapping"). Grounded on internal/providers/openaicompat's
// buildParams/handleResponse pair the same way openai.go is, adjusted for
// Gemini's contents/parts/generationConfig shape (google.golang.org/genai).
type GeminiTransformer struct{}

func NewGeminiTransformer() *GeminiTransformer { return &GeminiTransformer{} }

func (t *GeminiTransformer) Name() string { return "gemini" }

func (t *GeminiTransformer) TransformRequest(body Body, _ map[string]any) (Body, Headers, error) {
	out := Body{}

	genConfig := map[string]any{}
	if maxTokens, ok := body["max_tokens"]; ok {
		genConfig["maxOutputTokens"] = maxTokens
	}
	if temp, ok := body["temperature"]; ok {
		genConfig["temperature"] = temp
	}
	if stop, ok := body["stop_sequences"]; ok {
		genConfig["stopSequences"] = stop
	}
	if len(genConfig) > 0 {
		out["generationConfig"] = genConfig
	}

	if system, ok := body["system"]; ok {
		if text := systemAsText(system); text != "" {
			out["systemInstruction"] = map[string]any{
				"parts": []any{map[string]any{"text": text}},
			}
		}
	}

	var contents []any
	for _, raw := range bodyMessages(body) {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role, _ := msg["role"].(string)
		geminiRole := "user"
		if role == "assistant" {
			geminiRole = "model"
		}
		parts := convertContentToGeminiParts(msg["content"])
		if len(parts) > 0 {
			contents = append(contents, map[string]any{"role": geminiRole, "parts": parts})
		}
	}
	out["contents"] = contents

	if tools, ok := body["tools"]; ok {
		out["tools"] = []any{map[string]any{"functionDeclarations": convertToolsToGemini(tools)}}
	}

	return out, nil, nil
}

func (t *GeminiTransformer) TransformResponse(body Body, _ map[string]any) (Body, error) {
	out := Body{"type": "message", "role": "assistant"}

	candidates, _ := body["candidates"].([]any)
	var content []ContentBlock
	stopReason := "end_turn"
	if len(candidates) > 0 {
		candidate, _ := candidates[0].(map[string]any)
		cand, _ := candidate["content"].(map[string]any)
		parts, _ := cand["parts"].([]any)
		for _, raw := range parts {
			part, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok && text != "" {
				content = append(content, ContentBlock{Type: "text", Text: text})
			}
			if fc, ok := part["functionCall"].(map[string]any); ok {
				name, _ := fc["name"].(string)
				args, _ := fc["args"].(map[string]any)
				content = append(content, ContentBlock{Type: "tool_use", Name: name, Input: args})
			}
		}
		if reason, ok := candidate["finishReason"].(string); ok {
			stopReason = mapGeminiFinishReason(reason)
		}
	}

	blocks := make([]any, 0, len(content))
	for _, b := range content {
		blocks = append(blocks, blockToMap(b))
	}
	out["content"] = blocks
	out["stop_reason"] = stopReason

	if usage, ok := body["usageMetadata"].(map[string]any); ok {
		out["usage"] = map[string]any{
			"input_tokens":  usage["promptTokenCount"],
			"output_tokens": usage["candidatesTokenCount"],
		}
	}

	return out, nil
}

func convertContentToGeminiParts(content any) []any {
	switch c := content.(type) {
	case string:
		return []any{map[string]any{"text": c}}
	case []any:
		var parts []any
		for _, raw := range c {
			block, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			switch block["type"] {
			case "text":
				text, _ := block["text"].(string)
				parts = append(parts, map[string]any{"text": text})
			case "image":
				source, _ := block["source"].(map[string]any)
				data, _ := source["data"].(string)
				mediaType, _ := source["media_type"].(string)
				parts = append(parts, map[string]any{
					"inlineData": map[string]any{"mimeType": mediaType, "data": data},
				})
			case "tool_use":
				name, _ := block["name"].(string)
				parts = append(parts, map[string]any{
					"functionCall": map[string]any{"name": name, "args": block["input"]},
				})
			case "tool_result":
				parts = append(parts, map[string]any{
					"functionResponse": map[string]any{
						"name":     block["tool_use_id"],
						"response": map[string]any{"content": toolResultText(block["content"])},
					},
				})
			}
		}
		return parts
	default:
		return nil
	}
}

func convertToolsToGemini(tools any) []any {
	list, _ := tools.([]any)
	out := make([]any, 0, len(list))
	for _, raw := range list {
		tool, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"name":        tool["name"],
			"description": tool["description"],
			"parameters":  tool["input_schema"],
		})
	}
	return out
}

func mapGeminiFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "end_turn"
	case "MAX_TOKENS":
		return "max_tokens"
	case "SAFETY", "RECITATION":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}
