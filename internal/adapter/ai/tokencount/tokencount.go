// Package tokencount counts and trims LLM prompt tokens with tiktoken.
//
// BPE ranks are loaded from the embedded offline loader so that counting
// works in workers without outbound access to the tokenizer CDN.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const fallbackEncoding = "cl100k_base"

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenUsage represents token counts for an LLM API call.
type TokenUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
}

// Counter provides thread-safe token counting for LLM models.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{encodingCache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encoding(model string) (*tiktoken.Tiktoken, error) {
	name := normalizeModelName(model)

	c.mu.RLock()
	enc, ok := c.encodingCache[name]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding", slog.String("model", model), slog.Any("error", err))
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	c.encodingCache[name] = enc
	return enc, nil
}

// normalizeModelName maps provider model ids onto a tiktoken model name.
// Claude and the open-weight families have no public tokenizer here;
// cl100k_base via gpt-4 is close enough for budgeting.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.TrimSuffix(model, ":free")
	if strings.Contains(model, "gpt-3.5") {
		return "gpt-3.5-turbo"
	}
	return "gpt-4"
}

// CountTokens counts the tokens of text for model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts a system+user chat request including the
// per-message overhead of OpenAI-compatible APIs.
func (c *Counter) CountChatTokens(systemPrompt, userPrompt, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	const perMessage, perRole, replyPrimer = 3, 1, 3
	n := replyPrimer
	for _, m := range [][2]string{{"system", systemPrompt}, {"user", userPrompt}} {
		n += perMessage + perRole
		n += len(enc.Encode(m[0], nil, nil))
		n += len(enc.Encode(m[1], nil, nil))
	}
	return n, nil
}

// Usage computes token usage for a finished chat call. Counting errors fall
// back to a four-characters-per-token estimate.
func (c *Counter) Usage(systemPrompt, userPrompt, completion, model string) TokenUsage {
	prompt, err := c.CountChatTokens(systemPrompt, userPrompt, model)
	if err != nil {
		slog.Warn("failed to count prompt tokens, using estimate", slog.String("model", model), slog.Any("error", err))
		prompt = (len(systemPrompt) + len(userPrompt)) / 4
	}
	out, err := c.CountTokens(completion, model)
	if err != nil {
		slog.Warn("failed to count completion tokens, using estimate", slog.String("model", model), slog.Any("error", err))
		out = len(completion) / 4
	}
	return TokenUsage{PromptTokens: prompt, CompletionTokens: out, TotalTokens: prompt + out, Model: model}
}

// Truncate returns text cut to at most maxTokens tokens and whether anything was cut.
// A non-positive budget leaves text untouched.
func (c *Counter) Truncate(text, model string, maxTokens int) (string, bool, error) {
	if maxTokens <= 0 {
		return text, false, nil
	}
	enc, err := c.encoding(model)
	if err != nil {
		return "", false, err
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, false, nil
	}
	return enc.Decode(tokens[:maxTokens]), true, nil
}
