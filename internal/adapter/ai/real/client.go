// Package real implements domain.Assistant on OpenRouter chat completions.
// Unlike LeMUR it cannot resolve transcript ids, so callers must supply the
// transcript text.
package real

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	obsctx "github.com/fairyhunter13/ai-interview-auditor/internal/observability"
)

const (
	provider      = "openrouter"
	defaultSystem = "You are reading the transcript of a job interview. Only use facts stated in the transcript."
)

// Client implements domain.Assistant using OpenRouter (OpenAI-compatible chat).
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	referer     string
	title       string
	maxTokens   int
	tokenBudget int
	hc          *http.Client
	counter     *tokencount.Counter
}

var _ domain.Assistant = (*Client)(nil)

// New constructs an OpenRouter client from configuration.
func New(cfg config.Config) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.OpenRouterBaseURL, "/"),
		apiKey:      cfg.OpenRouterAPIKey,
		model:       cfg.OpenRouterModel,
		referer:     cfg.OpenRouterReferer,
		title:       cfg.OpenRouterTitle,
		maxTokens:   cfg.ChatMaxOutputTokens,
		tokenBudget: cfg.PromptTokenBudget,
		hc:          ai.NewHTTPClient(cfg.AIRequestTimeout),
		counter:     tokencount.NewCounter(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// chat sends one system+user exchange and returns the assistant message.
func (c *Client) chat(ctx context.Context, op, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("op=openrouter.%s: missing api key: %w", op, domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(chatRequest{
		Model:       c.model,
		Temperature: 0.2,
		MaxTokens:   c.maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("op=openrouter.%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("op=openrouter.%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	var out chatResponse
	if err := ai.DoJSON(c.hc, req, provider, op, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("op=openrouter.%s: empty choices: %w", op, domain.ErrEmptyResult)
	}
	content := out.Choices[0].Message.Content

	usage := c.counter.Usage(system, user, content, c.model)
	observability.RecordTokens(provider, usage.PromptTokens, usage.CompletionTokens)
	return content, nil
}

// transcriptBlock wraps the transcript text, trimmed to the token budget.
func (c *Client) transcriptBlock(ctx context.Context, target domain.Transcript) (string, error) {
	if target.Text == "" {
		return "", fmt.Errorf("op=openrouter.transcript: transcript text required: %w", domain.ErrInvalidArgument)
	}
	text, cut, err := c.counter.Truncate(target.Text, c.model, c.tokenBudget)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("token counting failed, sending full transcript", slog.Any("error", err))
		text = target.Text
	}
	if cut {
		obsctx.LoggerFromContext(ctx).Warn("transcript truncated to token budget", slog.Int("budget", c.tokenBudget))
	}
	return "<transcript>\n" + text + "\n</transcript>\n\n", nil
}

// RunTask answers prompt over the transcript, with taskContext as system message.
func (c *Client) RunTask(ctx context.Context, prompt, taskContext string, target domain.Transcript) (string, error) {
	block, err := c.transcriptBlock(ctx, target)
	if err != nil {
		return "", err
	}
	system := taskContext
	if system == "" {
		system = defaultSystem
	}
	return c.chat(ctx, "task", system, block+prompt)
}

// Summarize writes a summary of the transcript in answerFormat.
func (c *Client) Summarize(ctx context.Context, taskContext, answerFormat string, target domain.Transcript) (string, error) {
	block, err := c.transcriptBlock(ctx, target)
	if err != nil {
		return "", err
	}
	system := defaultSystem
	if taskContext != "" {
		system = taskContext
	}
	user := block + "Summarize the transcript."
	if answerFormat != "" {
		user += "\nUse this answer format: " + answerFormat
	}
	return c.chat(ctx, "summary", system, user)
}

// AnswerQuestions asks every question in one call and parses a JSON array reply.
func (c *Client) AnswerQuestions(ctx context.Context, questions []domain.FixedQuestion, target domain.Transcript) ([]domain.QAPair, error) {
	block, err := c.transcriptBlock(ctx, target)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.WriteString(block)
	sb.WriteString("Answer each question below from the transcript.\n")
	for i, q := range questions {
		fmt.Fprintf(&sb, "%d. %s", i+1, q.Question)
		if len(q.AnswerOptions) > 0 {
			fmt.Fprintf(&sb, " (choose one of: %s)", strings.Join(q.AnswerOptions, ", "))
		}
		if q.AnswerFormat != "" {
			fmt.Fprintf(&sb, " (answer format: %s)", q.AnswerFormat)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(`Return data in the following JSON format: [{"question":<question>,"answer":<answer>}].`)

	reply, err := c.chat(ctx, "qa", defaultSystem, sb.String())
	if err != nil {
		return nil, err
	}
	pairs := ai.DecodeRecords[domain.QAPair](ai.FilterComplete(ai.ExtractArray[map[string]any](reply), "question", "answer"))
	if len(pairs) == 0 {
		return nil, fmt.Errorf("op=openrouter.qa: %w", domain.ErrEmptyResult)
	}
	return pairs, nil
}
