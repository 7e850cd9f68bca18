package transform

import "testing"

func TestOpenAITransformer_RequestMapsSystemAndMessages(t *testing.T) {
	tr := NewOpenAITransformer()
	body := Body{
		"model":      "gpt-4o",
		"max_tokens": 100,
		"system":     "be concise",
		"messages": []any{
			map[string]any{"role": "user", "content": "hi"},
		},
	}

	out, headers, err := tr.TransformRequest(body, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if headers != nil && len(headers) != 0 {
		t.Errorf("expected no emitted headers, got %v", headers)
	}
	if out["model"] != "gpt-4o" {
		t.Errorf("expected model to carry over, got %v", out["model"])
	}

	messages, ok := out["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("expected system + user messages, got %v", out["messages"])
	}
	sys, _ := messages[0].(map[string]any)
	if sys["role"] != "system" || sys["content"] != "be concise" {
		t.Errorf("expected first message to be the system prompt, got %v", sys)
	}
}

func TestOpenAITransformer_RequestConvertsToolUseAndResult(t *testing.T) {
	tr := NewOpenAITransformer()
	body := Body{
		"messages": []any{
			map[string]any{
				"role": "assistant",
				"content": []any{
					map[string]any{"type": "tool_use", "id": "call-1", "name": "get_weather", "input": map[string]any{"city": "nyc"}},
				},
			},
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "tool_result", "tool_use_id": "call-1", "content": "sunny"},
				},
			},
		},
	}

	out, _, err := tr.TransformRequest(body, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	messages := out["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected 2 converted messages, got %d", len(messages))
	}
	assistantMsg := messages[0].(map[string]any)
	if _, ok := assistantMsg["tool_calls"]; !ok {
		t.Errorf("expected the assistant message to carry tool_calls, got %v", assistantMsg)
	}
	toolMsg := messages[1].(map[string]any)
	if toolMsg["role"] != "tool" || toolMsg["tool_call_id"] != "call-1" {
		t.Errorf("expected a tool-role reply referencing call-1, got %v", toolMsg)
	}
}

func TestOpenAITransformer_ResponseMapsChoiceToContentBlocks(t *testing.T) {
	tr := NewOpenAITransformer()
	body := Body{
		"id":    "chatcmpl-1",
		"model": "gpt-4o",
		"choices": []any{
			map[string]any{
				"message":       map[string]any{"content": "hello back"},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{"prompt_tokens": float64(10), "completion_tokens": float64(5)},
	}

	out, err := tr.TransformResponse(body, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["stop_reason"] != "end_turn" {
		t.Errorf("expected finish_reason 'stop' to map to 'end_turn', got %v", out["stop_reason"])
	}
	content, ok := out["content"].([]any)
	if !ok || len(content) != 1 {
		t.Fatalf("expected one content block, got %v", out["content"])
	}
	block := content[0].(map[string]any)
	if block["type"] != "text" || block["text"] != "hello back" {
		t.Errorf("expected a text block with the response text, got %v", block)
	}
	usage := out["usage"].(map[string]any)
	if usage["input_tokens"] != float64(10) || usage["output_tokens"] != float64(5) {
		t.Errorf("expected usage to map prompt/completion tokens, got %v", usage)
	}
}

func TestOpenAITransformer_ResponseConvertsToolCalls(t *testing.T) {
	tr := NewOpenAITransformer()
	body := Body{
		"choices": []any{
			map[string]any{
				"message": map[string]any{
					"tool_calls": []any{
						map[string]any{
							"id":       "call-1",
							"function": map[string]any{"name": "get_weather", "arguments": `{"city":"nyc"}`},
						},
					},
				},
				"finish_reason": "tool_calls",
			},
		},
	}

	out, err := tr.TransformResponse(body, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["stop_reason"] != "tool_use" {
		t.Errorf("expected finish_reason 'tool_calls' to map to 'tool_use', got %v", out["stop_reason"])
	}
	content := out["content"].([]any)
	block := content[0].(map[string]any)
	if block["type"] != "tool_use" || block["name"] != "get_weather" {
		t.Errorf("expected a tool_use block for get_weather, got %v", block)
	}
	input := block["input"].(map[string]any)
	if input["city"] != "nyc" {
		t.Errorf("expected decoded tool arguments, got %v", input)
	}
}

func TestOpenAITransformer_Name(t *testing.T) {
	if NewOpenAITransformer().Name() != "openai" {
		t.Error("expected transformer name 'openai'")
	}
}
