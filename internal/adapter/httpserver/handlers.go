package httpserver

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/render"
	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	"github.com/fairyhunter13/ai-interview-auditor/internal/usecase"
)

// Server aggregates handlers dependencies.
type Server struct {
	Cfg        config.Config
	Sessions   usecase.SessionService
	Uploads    usecase.UploadService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	QueueCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, sessions usecase.SessionService, uploads usecase.UploadService, dbCheck, redisCheck, queueCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Sessions: sessions, Uploads: uploads, DBCheck: dbCheck, RedisCheck: redisCheck, QueueCheck: queueCheck}
}

// sessionView is the JSON form of a session.
type sessionView struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	Source         domain.Source  `json:"source"`
	JobDescription string         `json:"job_description,omitempty"`
	Skills         []string       `json:"skills"`
	TranscriptID   string         `json:"transcript_id,omitempty"`
	Error          string         `json:"error,omitempty"`
	Report         *domain.Report `json:"report,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

func viewOf(s domain.Session) sessionView {
	v := sessionView{
		ID:             s.ID,
		Status:         string(s.Status),
		Source:         s.Source,
		JobDescription: s.JobDescription,
		Skills:         s.Skills,
		TranscriptID:   s.TranscriptID,
		Error:          s.Error,
		Report:         s.Report,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		CompletedAt:    s.CompletedAt,
	}
	if v.Skills == nil {
		v.Skills = []string{}
	}
	// Inline transcripts are reported by size only.
	if v.Source.TranscriptText != "" {
		v.Source.TranscriptText = fmt.Sprintf("<%d bytes>", len(s.Source.TranscriptText))
	}
	return v
}

// UploadHandler stores one multipart "file" field.
func (s *Server) UploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadBytes()
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code:    "INVALID_ARGUMENT",
					Message: "payload too large",
					Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file required", domain.ErrInvalidArgument), map[string]string{"field": "file"})
			return
		}
		defer func() { _ = f.Close() }()
		data, err := io.ReadAll(f)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: read file: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		up, err := s.Uploads.Ingest(r.Context(), hdr.Filename, data)
		if err != nil {
			writeError(w, r, err, map[string]string{"filename": hdr.Filename})
			return
		}
		writeJSON(w, http.StatusCreated, up)
	}
}

// CreateSessionHandler validates the request and enqueues a new session.
func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 4<<20)
		var req createSessionRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if verrs := validateStruct(req); verrs != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		sess, err := s.Sessions.Create(r.Context(), req.input())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Location", "/v1/sessions/"+sess.ID)
		writeJSON(w, http.StatusAccepted, map[string]string{"id": sess.ID, "status": string(sess.Status)})
	}
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (domain.Session, bool) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeError(w, r, fmt.Errorf("%w: invalid session id", domain.ErrInvalidArgument), map[string]string{"field": "id"})
		return domain.Session{}, false
	}
	sess, err := s.Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err, nil)
		return domain.Session{}, false
	}
	return sess, true
}

// GetSessionHandler returns the session and its report. Responses carry a
// strong ETag over the body and honor If-None-Match.
func (s *Server) GetSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.loadSession(w, r)
		if !ok {
			return
		}
		body, err := json.Marshal(viewOf(sess))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		sum := sha256.Sum256(body)
		etag := `"` + hex.EncodeToString(sum[:16]) + `"`
		w.Header().Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(append(body, '\n'))
	}
}

// ReportHandler renders the completed report as text. ?section= limits the output.
func (s *Server) ReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		section := r.URL.Query().Get("section")
		if !render.ValidSection(section) {
			writeError(w, r, fmt.Errorf("%w: unknown section", domain.ErrInvalidArgument), map[string]any{"allowed": render.Sections})
			return
		}
		sess, ok := s.loadSession(w, r)
		if !ok {
			return
		}
		if sess.Report == nil {
			writeError(w, r, fmt.Errorf("%w: report not ready", domain.ErrConflict), map[string]string{"status": string(sess.Status)})
			return
		}
		var buf bytes.Buffer
		if err := render.Text(&buf, *sess.Report, section); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

// ResetHandler deletes a session and its upload.
func (s *Server) ResetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !validID(id) {
			writeError(w, r, fmt.Errorf("%w: invalid session id", domain.ErrInvalidArgument), map[string]string{"field": "id"})
			return
		}
		if err := s.Sessions.Reset(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ReadyzHandler probes the database, Redis and the queue.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		probes := []struct {
			name string
			fn   func(context.Context) error
		}{{"db", s.DBCheck}, {"redis", s.RedisCheck}, {"queue", s.QueueCheck}}

		checks := make([]check, 0, len(probes))
		st := http.StatusOK
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			c := check{Name: p.name, OK: true}
			if err := p.fn(ctx); err != nil {
				c.OK, c.Details = false, err.Error()
				st = http.StatusServiceUnavailable
			}
			checks = append(checks, c)
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
