// Package assemblyai implements transcription and LeMUR transcript tasks
// against the AssemblyAI REST API.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	obsctx "github.com/fairyhunter13/ai-interview-auditor/internal/observability"
)

const provider = "assemblyai"

// Transcript statuses reported by the API.
const (
	statusQueued     = "queued"
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusError      = "error"
)

var errTranscriptPending = errors.New("transcript not ready")

// Client implements domain.Transcriber and domain.Assistant.
type Client struct {
	baseURL       string
	apiKey        string
	finalModel    string
	maxOutputSize int
	hc            *http.Client
	pollBackoff   func() backoff.BackOff
}

var (
	_ domain.Transcriber = (*Client)(nil)
	_ domain.Assistant   = (*Client)(nil)
)

// New constructs an AssemblyAI client from configuration.
func New(cfg config.Config) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.AssemblyAIBaseURL, "/"),
		apiKey:        cfg.AssemblyAIAPIKey,
		finalModel:    cfg.LemurFinalModel,
		maxOutputSize: cfg.LemurMaxOutputSize,
		hc:            ai.NewHTTPClient(cfg.AIRequestTimeout),
		pollBackoff:   cfg.GetPollBackoff,
	}
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

type lemurResponse struct {
	RequestID string `json:"request_id"`
	Response  string `json:"response"`
}

type qaResponse struct {
	RequestID string          `json:"request_id"`
	Response  []domain.QAPair `json:"response"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("op=assemblyai.request: missing api key: %w", domain.ErrInvalidArgument)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("op=assemblyai.request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path, op string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("op=assemblyai.%s: %w", op, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(b), "application/json")
	if err != nil {
		return err
	}
	return ai.DoJSON(c.hc, req, provider, op, out)
}

// SubmitForTranscription uploads a local file or registers a URL, then waits
// until the transcript is completed and returns its id.
func (c *Client) SubmitForTranscription(ctx context.Context, media domain.MediaSource) (string, error) {
	ctx, span := otel.Tracer("assemblyai").Start(ctx, "assemblyai.SubmitForTranscription")
	defer span.End()

	audioURL := media.URL
	if media.Path != "" {
		u, err := c.upload(ctx, media.Path)
		if err != nil {
			return "", err
		}
		audioURL = u
	}
	if audioURL == "" {
		return "", fmt.Errorf("op=assemblyai.submit: no media: %w", domain.ErrInvalidArgument)
	}

	var created transcriptResponse
	if err := c.postJSON(ctx, "/v2/transcript", "transcript_create", map[string]any{"audio_url": audioURL}, &created); err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("transcript.id", created.ID))
	obsctx.LoggerFromContext(ctx).Info("transcript submitted", slog.String("transcript_id", created.ID))

	if err := c.waitCompleted(ctx, created.ID); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *Client) upload(ctx context.Context, path string) (string, error) {
	// #nosec G304 -- path comes from the upload store
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("op=assemblyai.upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	req, err := c.newRequest(ctx, http.MethodPost, "/v2/upload", f, "application/octet-stream")
	if err != nil {
		return "", err
	}
	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := ai.DoJSON(c.hc, req, provider, "upload", &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("op=assemblyai.upload: empty upload_url: %w", domain.ErrSchemaInvalid)
	}
	return out.UploadURL, nil
}

func (c *Client) getTranscript(ctx context.Context, id string) (transcriptResponse, error) {
	var out transcriptResponse
	req, err := c.newRequest(ctx, http.MethodGet, "/v2/transcript/"+id, nil, "")
	if err != nil {
		return out, err
	}
	err = ai.DoJSON(c.hc, req, provider, "transcript_get", &out)
	return out, err
}

func (c *Client) waitCompleted(ctx context.Context, id string) error {
	op := func() error {
		t, err := c.getTranscript(ctx, id)
		if err != nil {
			if domain.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		switch t.Status {
		case statusCompleted:
			return nil
		case statusError:
			return backoff.Permanent(fmt.Errorf("op=assemblyai.wait: transcript %s failed: %s: %w", id, t.Error, domain.ErrInvalidArgument))
		case statusQueued, statusProcessing:
			return errTranscriptPending
		default:
			return backoff.Permanent(fmt.Errorf("op=assemblyai.wait: unknown status %q: %w", t.Status, domain.ErrSchemaInvalid))
		}
	}
	if err := backoff.Retry(op, backoff.WithContext(c.pollBackoff(), ctx)); err != nil {
		if errors.Is(err, errTranscriptPending) {
			return fmt.Errorf("op=assemblyai.wait: transcript %s still pending: %w", id, domain.ErrUpstreamTimeout)
		}
		return err
	}
	return nil
}

// GetTranscriptText returns the text of a completed transcript.
func (c *Client) GetTranscriptText(ctx context.Context, transcriptID string) (string, error) {
	if transcriptID == "" {
		return "", fmt.Errorf("op=assemblyai.text: %w", domain.ErrInvalidArgument)
	}
	t, err := c.getTranscript(ctx, transcriptID)
	if err != nil {
		return "", err
	}
	if t.Status != statusCompleted {
		return "", fmt.Errorf("op=assemblyai.text: transcript %s is %s: %w", transcriptID, t.Status, domain.ErrConflict)
	}
	return t.Text, nil
}

// lemurBody starts a LeMUR request body selecting the transcript by id or by raw text.
func (c *Client) lemurBody(target domain.Transcript) (map[string]any, error) {
	body := map[string]any{
		"final_model":     c.finalModel,
		"max_output_size": c.maxOutputSize,
	}
	switch {
	case target.ID != "":
		body["transcript_ids"] = []string{target.ID}
	case target.Text != "":
		body["input_text"] = target.Text
	default:
		return nil, fmt.Errorf("op=assemblyai.lemur: empty transcript: %w", domain.ErrInvalidArgument)
	}
	return body, nil
}

// RunTask sends a free-form LeMUR task. The task endpoint has no separate
// context field, so taskContext is prepended to the prompt.
func (c *Client) RunTask(ctx context.Context, prompt, taskContext string, target domain.Transcript) (string, error) {
	body, err := c.lemurBody(target)
	if err != nil {
		return "", err
	}
	if taskContext != "" {
		prompt = taskContext + "\n\n" + prompt
	}
	body["prompt"] = prompt
	var out lemurResponse
	if err := c.postJSON(ctx, "/lemur/v3/generate/task", "lemur_task", body, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// Summarize asks LeMUR for a summary in the given answer format.
func (c *Client) Summarize(ctx context.Context, taskContext, answerFormat string, target domain.Transcript) (string, error) {
	body, err := c.lemurBody(target)
	if err != nil {
		return "", err
	}
	if taskContext != "" {
		body["context"] = taskContext
	}
	if answerFormat != "" {
		body["answer_format"] = answerFormat
	}
	var out lemurResponse
	if err := c.postJSON(ctx, "/lemur/v3/generate/summary", "lemur_summary", body, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// AnswerQuestions runs LeMUR question-answer over the fixed questions.
func (c *Client) AnswerQuestions(ctx context.Context, questions []domain.FixedQuestion, target domain.Transcript) ([]domain.QAPair, error) {
	body, err := c.lemurBody(target)
	if err != nil {
		return nil, err
	}
	body["questions"] = questions
	var out qaResponse
	if err := c.postJSON(ctx, "/lemur/v3/generate/question-answer", "lemur_qa", body, &out); err != nil {
		return nil, err
	}
	return out.Response, nil
}
