package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	obsctx "github.com/fairyhunter13/ai-interview-auditor/internal/observability"
	"github.com/fairyhunter13/ai-interview-auditor/pkg/textx"
)

// CreateInput is a request to analyze one interview.
type CreateInput struct {
	Source         domain.Source
	JobDescription string
	Skills         []string
}

// SessionService owns the session lifecycle:
// pending -> transcribing -> analyzing -> completed | failed.
type SessionService struct {
	Sessions    domain.SessionRepository
	Queue       domain.Queue
	Uploads     domain.UploadStore
	Transcriber domain.Transcriber
	Dispatcher  *Dispatcher
	Caller      *ai.Caller
}

// NewSessionService constructs a SessionService with its dependencies.
func NewSessionService(s domain.SessionRepository, q domain.Queue, u domain.UploadStore, t domain.Transcriber, d *Dispatcher, c *ai.Caller) SessionService {
	return SessionService{Sessions: s, Queue: q, Uploads: u, Transcriber: t, Dispatcher: d, Caller: c}
}

// Create validates the input, persists a pending session and enqueues it.
func (s SessionService) Create(ctx domain.Context, in CreateInput) (domain.Session, error) {
	src := in.Source
	src.TranscriptText = textx.SanitizeText(src.TranscriptText)
	if err := src.Validate(); err != nil {
		return domain.Session{}, fmt.Errorf("op=session.create: exactly one of upload_id, media_url, transcript_id, transcript_text is required: %w", err)
	}
	if src.UploadID != "" {
		if _, err := s.Uploads.Path(ctx, src.UploadID); err != nil {
			return domain.Session{}, fmt.Errorf("op=session.create: upload %s: %w", src.UploadID, err)
		}
	}

	now := time.Now().UTC()
	sess := domain.Session{
		Status:         domain.SessionPending,
		Source:         src,
		JobDescription: textx.SanitizeText(in.JobDescription),
		Skills:         textx.NormalizeSkills(in.Skills),
		TranscriptID:   src.TranscriptID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	id, err := s.Sessions.Create(ctx, sess)
	if err != nil {
		return domain.Session{}, err
	}
	sess.ID = id
	observability.CountSession(string(domain.SessionPending))

	if _, err := s.Queue.EnqueueAnalysis(ctx, domain.AnalysisTaskPayload{SessionID: id}); err != nil {
		_ = s.Sessions.UpdateStatus(ctx, id, domain.SessionFailed, ptr("enqueue failed"))
		observability.CountSession(string(domain.SessionFailed))
		return domain.Session{}, err
	}
	return sess, nil
}

// Get loads a session.
func (s SessionService) Get(ctx domain.Context, id string) (domain.Session, error) {
	if id == "" {
		return domain.Session{}, fmt.Errorf("op=session.get: %w", domain.ErrInvalidArgument)
	}
	return s.Sessions.Get(ctx, id)
}

// Reset discards a session and its uploaded media.
func (s SessionService) Reset(ctx domain.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Source.UploadID != "" {
		if err := s.Uploads.Remove(ctx, sess.Source.UploadID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			obsctx.LoggerFromContext(ctx).Warn("upload removal failed",
				slog.String("upload_id", sess.Source.UploadID), slog.Any("error", err))
		}
	}
	if err := s.Sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("op=session.reset: %w", err)
	}
	return nil
}

// Process runs a pending session to completion. Terminal sessions are left
// untouched so queue redelivery is harmless. The only failure path is an
// unresolvable transcript; analysis itself always completes. If ctx is
// cancelled before the transcript is in hand the session goes back to
// pending and ErrInterrupted is returned so the task can be redelivered.
func (s SessionService) Process(ctx context.Context, id string) error {
	ctx = obsctx.WithSession(ctx, id)
	lg := obsctx.LoggerFromContext(ctx)

	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("op=session.process: %w", err)
	}
	if sess.Status.Terminal() {
		lg.Info("session already finished, skipping", slog.String("status", string(sess.Status)))
		return nil
	}

	observability.StartSession()
	if err := s.Sessions.UpdateStatus(ctx, id, domain.SessionTranscribing, nil); err != nil {
		observability.AbandonSession()
		return fmt.Errorf("op=session.process: %w", err)
	}

	target, err := s.resolveTranscript(ctx, sess)
	if err != nil {
		if ctx.Err() != nil {
			return s.interrupt(ctx, id, err)
		}
		s.fail(ctx, id, err)
		return err
	}

	// From here on the round and its writes outlive ctx.
	detached := context.WithoutCancel(ctx)
	if err := s.Sessions.UpdateStatus(detached, id, domain.SessionAnalyzing, nil); err != nil {
		observability.AbandonSession()
		return fmt.Errorf("op=session.process: %w", err)
	}

	report := s.Dispatcher.Run(detached, RunInput{
		Transcript:     target,
		JobDescription: sess.JobDescription,
		Skills:         sess.Skills,
	})

	if err := s.Sessions.Complete(detached, id, report); err != nil {
		observability.FailSession()
		return fmt.Errorf("op=session.complete: %w", err)
	}
	observability.CompleteSession()
	lg.Info("session completed", slog.Int("questions", len(report.Questions)), slog.Any("degraded", report.Degraded))
	return nil
}

func (s SessionService) interrupt(ctx context.Context, id string, cause error) error {
	observability.AbandonSession()
	lg := obsctx.LoggerFromContext(ctx)
	if err := s.Sessions.UpdateStatus(context.WithoutCancel(ctx), id, domain.SessionPending, nil); err != nil {
		lg.Error("return session to pending", slog.Any("error", err))
	}
	lg.Warn("session interrupted before analysis", slog.Any("error", cause))
	return fmt.Errorf("op=session.process: %w: %w", domain.ErrInterrupted, cause)
}

func (s SessionService) fail(ctx context.Context, id string, cause error) {
	msg := cause.Error()
	if err := s.Sessions.UpdateStatus(context.WithoutCancel(ctx), id, domain.SessionFailed, &msg); err != nil {
		obsctx.LoggerFromContext(ctx).Error("mark session failed", slog.Any("error", err))
	}
	observability.FailSession()
	obsctx.LoggerFromContext(ctx).Error("session failed", slog.Any("error", cause))
}

// resolveTranscript turns the session source into a transcript carrying both
// id (when the provider has one) and text.
func (s SessionService) resolveTranscript(ctx context.Context, sess domain.Session) (domain.Transcript, error) {
	src := sess.Source
	if src.TranscriptText != "" {
		return domain.Transcript{Text: src.TranscriptText}, nil
	}

	transcriptID := sess.TranscriptID
	if transcriptID == "" {
		media := domain.MediaSource{URL: src.MediaURL}
		if src.UploadID != "" {
			path, err := s.Uploads.Path(ctx, src.UploadID)
			if err != nil {
				return domain.Transcript{}, fmt.Errorf("op=session.transcribe: %w", err)
			}
			text, isText, err := readTextUpload(path)
			if err != nil {
				return domain.Transcript{}, fmt.Errorf("op=session.transcribe: %w", err)
			}
			if isText {
				return domain.Transcript{Text: text}, nil
			}
			media = domain.MediaSource{Path: path}
		}
		id, err := retryRemote(ctx, s.Caller, "transcribe", func(ctx context.Context) (string, error) {
			return s.Transcriber.SubmitForTranscription(ctx, media)
		})
		if err != nil {
			return domain.Transcript{}, fmt.Errorf("op=session.transcribe: %w", err)
		}
		transcriptID = id
		if err := s.Sessions.SetTranscriptID(ctx, sess.ID, id); err != nil {
			return domain.Transcript{}, fmt.Errorf("op=session.transcribe: %w", err)
		}
	}

	text, err := retryRemote(ctx, s.Caller, "transcript_text", func(ctx context.Context) (string, error) {
		return s.Transcriber.GetTranscriptText(ctx, transcriptID)
	})
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("op=session.transcript_text: %w", err)
	}
	return domain.Transcript{ID: transcriptID, Text: text}, nil
}

// readTextUpload returns the sanitized contents of path when it holds a plain
// text transcript. Audio and video report isText=false.
func readTextUpload(path string) (string, bool, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("upload file missing: %w", domain.ErrNotFound)
		}
		return "", false, err
	}
	if !isPlainText(mt) {
		return "", false, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	text := textx.SanitizeText(string(b))
	if text == "" {
		return "", false, fmt.Errorf("%w: transcript upload is empty", domain.ErrInvalidArgument)
	}
	return text, true, nil
}

// retryRemote runs fn through the Caller and, when it gives up, reports the
// last failure instead of a default value.
func retryRemote(ctx context.Context, c *ai.Caller, op string, fn func(context.Context) (string, error)) (string, error) {
	var last error
	out, ok := ai.Call(ctx, c, op, "", func(ctx context.Context) (string, error) {
		v, err := fn(ctx)
		if err != nil {
			last = err
		}
		return v, err
	})
	if ok {
		return out, nil
	}
	if last == nil {
		last = ctx.Err()
	}
	if last == nil {
		last = domain.ErrInternal
	}
	return "", fmt.Errorf("%w: %w", domain.ErrRetriesExhausted, last)
}

func ptr(s string) *string { return &s }
