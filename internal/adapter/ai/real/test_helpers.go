package real

import (
	"encoding/json"
	"net/http"

	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
)

// NewTestClient creates a client pointed at baseURL with test-appropriate configuration.
func NewTestClient(baseURL string) *Client {
	return New(config.Config{
		AppEnv:              "test",
		OpenRouterAPIKey:    "test-key",
		OpenRouterBaseURL:   baseURL,
		OpenRouterModel:     "anthropic/claude-3.5-sonnet",
		OpenRouterTitle:     "AI Interview Auditor",
		ChatMaxOutputTokens: 512,
		PromptTokenBudget:   1000,
	})
}

// ChatReply returns a handler that answers every chat completion with content.
func ChatReply(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "anthropic/claude-3.5-sonnet",
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}
}
