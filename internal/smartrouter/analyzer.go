package smartrouter

import "strings"

// AnalyzeRequest builds a RequestContext from a canonical request body,
// stubbing the ContentAnalyzer's derived fields (contentCategory,
// complexityLevel, hasCode, programmingLanguage, intent) with keyword
// heuristics, exactly as spec §4.5 permits ("implementers may stub with
// keyword heuristics").
func AnalyzeRequest(body map[string]any) RequestContext {
	model, _ := body["model"].(string)

	var userText strings.Builder
	hasImages := false
	messages, _ := body["messages"].([]any)
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if role, _ := msg["role"].(string); role != "user" {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			userText.WriteString(content)
			userText.WriteString(" ")
		case []any:
			for _, raw := range content {
				block, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				switch block["type"] {
				case "text":
					if text, ok := block["text"].(string); ok {
						userText.WriteString(text)
						userText.WriteString(" ")
					}
				case "image":
					hasImages = true
				}
			}
		}
	}
	text := userText.String()

	_, hasTools := body["tools"]
	if tools, ok := body["tools"].([]any); ok {
		hasTools = len(tools) > 0
	}

	wordCount := len(strings.Fields(text))
	hasCode := looksLikeCode(text)
	lang := detectProgrammingLanguage(text)

	return RequestContext{
		Model:           model,
		UserText:        text,
		EstimatedTokens: EstimateTokens(model, len(text), imageBlockCount(messages)),
		HasTools:        hasTools,
		HasImages:       hasImages,
		ContentCategory: classifyCategory(text, hasCode),
		ComplexityLevel: classifyComplexity(wordCount),
		HasCode:         hasCode,
		ProgrammingLang: lang,
		Intent:          classifyIntent(text),
		WordCount:       wordCount,
		Raw:             body,
	}
}

func imageBlockCount(messages []any) int {
	count := 0
	for _, raw := range messages {
		msg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		blocks, ok := msg["content"].([]any)
		if !ok {
			continue
		}
		for _, raw := range blocks {
			if block, ok := raw.(map[string]any); ok && block["type"] == "image" {
				count++
			}
		}
	}
	return count
}

func looksLikeCode(text string) bool {
	if strings.Contains(text, "```") {
		return true
	}
	markers := []string{"func ", "def ", "class ", "import ", "SELECT ", "</", "=>", "console.log"}
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

var languageMarkers = []struct {
	lang     string
	keywords []string
}{
	{"go", []string{"func ", "package main", ":=", "chan "}},
	{"python", []string{"def ", "import ", "self.", "elif "}},
	{"javascript", []string{"const ", "=>", "console.log", "function("}},
	{"sql", []string{"SELECT ", "INSERT INTO", "CREATE TABLE"}},
	{"rust", []string{"fn ", "let mut", "impl "}},
}

func detectProgrammingLanguage(text string) string {
	for _, m := range languageMarkers {
		for _, kw := range m.keywords {
			if strings.Contains(text, kw) {
				return m.lang
			}
		}
	}
	return ""
}

func classifyCategory(text string, hasCode bool) string {
	switch {
	case hasCode:
		return "code"
	case len(text) == 0:
		return ""
	default:
		return "conversation"
	}
}

func classifyComplexity(wordCount int) string {
	switch {
	case wordCount == 0:
		return ""
	case wordCount < 50:
		return "low"
	case wordCount < 300:
		return "medium"
	default:
		return "high"
	}
}

func classifyIntent(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "fix") || strings.Contains(lower, "bug") || strings.Contains(lower, "error"):
		return "debug"
	case strings.Contains(lower, "write") || strings.Contains(lower, "create") || strings.Contains(lower, "generate"):
		return "generate"
	case strings.Contains(lower, "explain") || strings.Contains(lower, "what is") || strings.Contains(lower, "how does"):
		return "explain"
	default:
		return ""
	}
}
