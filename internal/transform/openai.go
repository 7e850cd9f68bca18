package transform

import "encoding/json"

// OpenAITransformer converts between the canonical Anthropic Messages shape
// and the OpenAI chat-completions dialect (spec §4.6). Grounded on the
// teacher's internal/providers/openaicompat/openaicompat.go buildParams and
// handleResponse methods, which perform the same mapping inline against
// typed openai-go params — generalized here to operate on an opaque body.
type OpenAITransformer struct{}

func NewOpenAITransformer() *OpenAITransformer { return &OpenAITransformer{} }

func (t *OpenAITransformer) Name() string { return "openai" }

func (t *OpenAITransformer) TransformRequest(body Body, _ map[string]any) (Body, Headers, error) {
	out := Body{}

	if model, ok := body["model"]; ok {
		out["model"] = model
	}
	if maxTokens, ok := body["max_tokens"]; ok {
		out["max_tokens"] = maxTokens
	}
	if temp, ok := body["temperature"]; ok {
		out["temperature"] = temp
	}
	if stream, ok := body["stream"]; ok {
		out["stream"] = stream
	}
	if stop, ok := body["stop_sequences"]; ok {
		out["stop"] = stop
	}

	var messages []any
	if system, ok := body["system"]; ok {
		if text := systemAsText(system); text != "" {
			messages = append(messages, map[string]any{"role": "system", "content": text})
		}
	}

	for _, raw := range bodyMessages(body) {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role, _ := msg["role"].(string)
		converted := convertMessageToOpenAI(role, msg["content"])
		messages = append(messages, converted...)
	}
	out["messages"] = messages

	if tools, ok := body["tools"]; ok {
		out["tools"] = convertToolsToOpenAI(tools)
	}
	if choice, ok := body["tool_choice"]; ok {
		out["tool_choice"] = convertToolChoiceToOpenAI(choice)
	}

	return out, nil, nil
}

func (t *OpenAITransformer) TransformResponse(body Body, _ map[string]any) (Body, error) {
	out := Body{}
	if id, ok := body["id"]; ok {
		out["id"] = id
	}
	out["type"] = "message"
	out["role"] = "assistant"
	if model, ok := body["model"]; ok {
		out["model"] = model
	}

	choices, _ := body["choices"].([]any)
	var content []ContentBlock
	stopReason := "end_turn"
	if len(choices) > 0 {
		choice, _ := choices[0].(map[string]any)
		message, _ := choice["message"].(map[string]any)

		if text, ok := message["content"].(string); ok && text != "" {
			content = append(content, ContentBlock{Type: "text", Text: text})
		}
		if toolCalls, ok := message["tool_calls"].([]any); ok {
			for _, tc := range toolCalls {
				call, ok := tc.(map[string]any)
				if !ok {
					continue
				}
				fn, _ := call["function"].(map[string]any)
				name, _ := fn["name"].(string)
				argsStr, _ := fn["arguments"].(string)
				var input map[string]any
				_ = json.Unmarshal([]byte(argsStr), &input)
				id, _ := call["id"].(string)
				content = append(content, ContentBlock{Type: "tool_use", ID: id, Name: name, Input: input})
			}
		}

		if reason, ok := choice["finish_reason"].(string); ok {
			stopReason = mapFinishReason(reason)
		}
	}

	blocks := make([]any, 0, len(content))
	for _, b := range content {
		blocks = append(blocks, blockToMap(b))
	}
	out["content"] = blocks
	out["stop_reason"] = stopReason

	if usage, ok := body["usage"].(map[string]any); ok {
		out["usage"] = map[string]any{
			"input_tokens":  usage["prompt_tokens"],
			"output_tokens": usage["completion_tokens"],
		}
	}

	return out, nil
}

func systemAsText(system any) string {
	switch v := system.(type) {
	case string:
		return v
	case []any:
		var combined string
		for _, block := range v {
			if m, ok := block.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					combined += text
				}
			}
		}
		return combined
	default:
		return ""
	}
}

func bodyMessages(body Body) []any {
	msgs, _ := body["messages"].([]any)
	return msgs
}

// convertMessageToOpenAI returns one or more OpenAI messages for a single
// canonical message, since tool_result blocks become their own "tool" role
// messages in the OpenAI dialect.
func convertMessageToOpenAI(role string, content any) []any {
	switch c := content.(type) {
	case string:
		return []any{map[string]any{"role": role, "content": c}}
	case []any:
		var (
			out       []any
			parts     []any
			toolCalls []any
		)
		for _, raw := range c {
			block, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			switch block["type"] {
			case "text":
				text, _ := block["text"].(string)
				parts = append(parts, map[string]any{"type": "text", "text": text})
			case "image":
				source, _ := block["source"].(map[string]any)
				url, _ := source["url"].(string)
				if url == "" {
					data, _ := source["data"].(string)
					mediaType, _ := source["media_type"].(string)
					url = "data:" + mediaType + ";base64," + data
				}
				parts = append(parts, map[string]any{
					"type":      "image_url",
					"image_url": map[string]any{"url": url},
				})
			case "tool_use":
				name, _ := block["name"].(string)
				id, _ := block["id"].(string)
				args, _ := json.Marshal(block["input"])
				toolCalls = append(toolCalls, map[string]any{
					"id":   id,
					"type": "function",
					"function": map[string]any{
						"name":      name,
						"arguments": string(args),
					},
				})
			case "tool_result":
				toolUseID, _ := block["tool_use_id"].(string)
				out = append(out, map[string]any{
					"role":         "tool",
					"tool_call_id": toolUseID,
					"content":      toolResultText(block["content"]),
				})
			}
		}
		if len(parts) > 0 || len(toolCalls) > 0 {
			msg := map[string]any{"role": role}
			if len(parts) > 0 {
				msg["content"] = parts
			}
			if len(toolCalls) > 0 {
				msg["tool_calls"] = toolCalls
			}
			out = append([]any{msg}, out...)
		}
		return out
	default:
		return nil
	}
}

func toolResultText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var combined string
		for _, block := range v {
			if m, ok := block.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					combined += text
				}
			}
		}
		return combined
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func convertToolsToOpenAI(tools any) []any {
	list, _ := tools.([]any)
	out := make([]any, 0, len(list))
	for _, raw := range list {
		tool, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool["name"],
				"description": tool["description"],
				"parameters":  tool["input_schema"],
			},
		})
	}
	return out
}

func convertToolChoiceToOpenAI(choice any) any {
	m, ok := choice.(map[string]any)
	if !ok {
		return choice
	}
	switch m["type"] {
	case "auto":
		return "auto"
	case "any":
		return "required"
	case "tool":
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": m["name"]},
		}
	default:
		return "auto"
	}
}

func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "content_filter":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}

func blockToMap(b ContentBlock) map[string]any {
	m := map[string]any{"type": b.Type}
	switch b.Type {
	case "text":
		m["text"] = b.Text
	case "tool_use":
		m["id"] = b.ID
		m["name"] = b.Name
		m["input"] = b.Input
	}
	return m
}
