package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
)

// SessionRepo persists and loads sessions using a minimal pgx pool.
type SessionRepo struct{ Pool PgxPool }

var _ domain.SessionRepository = (*SessionRepo)(nil)

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(p PgxPool) *SessionRepo { return &SessionRepo{Pool: p} }

const sessionColumns = `id, status, source, job_description, skills, transcript_id, report, error, created_at, updated_at, completed_at`

func startSpan(ctx domain.Context, name, operation string) (domain.Context, trace.Span) {
	ctx, span := otel.Tracer("repo.sessions").Start(ctx, "sessions."+name)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", "sessions"),
	)
	return ctx, span
}

// Create inserts a new session and returns its id (generates one if empty).
func (r *SessionRepo) Create(ctx domain.Context, s domain.Session) (string, error) {
	ctx, span := startSpan(ctx, "Create", "INSERT")
	defer span.End()

	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	src, err := json.Marshal(s.Source)
	if err != nil {
		return "", fmt.Errorf("op=session.create: %w", err)
	}
	skills := s.Skills
	if skills == nil {
		skills = []string{}
	}
	now := time.Now().UTC()
	q := `INSERT INTO sessions (id, status, source, job_description, skills, transcript_id, error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,'',$7,$7)`
	if _, err := r.Pool.Exec(ctx, q, id, string(s.Status), src, s.JobDescription, skills, s.TranscriptID, now); err != nil {
		return "", fmt.Errorf("op=session.create: %w", err)
	}
	return id, nil
}

// Get loads a session by id.
func (r *SessionRepo) Get(ctx domain.Context, id string) (domain.Session, error) {
	ctx, span := startSpan(ctx, "Get", "SELECT")
	defer span.End()

	row := r.Pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, fmt.Errorf("op=session.get: %w", domain.ErrNotFound)
		}
		return domain.Session{}, fmt.Errorf("op=session.get: %w", err)
	}
	return s, nil
}

// UpdateStatus moves a session to status. A nil errMsg leaves the error column untouched.
func (r *SessionRepo) UpdateStatus(ctx domain.Context, id string, status domain.SessionStatus, errMsg *string) error {
	ctx, span := startSpan(ctx, "UpdateStatus", "UPDATE")
	defer span.End()
	span.SetAttributes(attribute.String("session.status", string(status)))

	q := `UPDATE sessions SET status=$2, error=COALESCE($3, error), updated_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, string(status), errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=session.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=session.update_status: %w", domain.ErrNotFound)
	}
	return nil
}

// SetTranscriptID records the provider transcript id once transcription finished.
func (r *SessionRepo) SetTranscriptID(ctx domain.Context, id, transcriptID string) error {
	ctx, span := startSpan(ctx, "SetTranscriptID", "UPDATE")
	defer span.End()

	tag, err := r.Pool.Exec(ctx, `UPDATE sessions SET transcript_id=$2, updated_at=$3 WHERE id=$1`, id, transcriptID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=session.set_transcript: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=session.set_transcript: %w", domain.ErrNotFound)
	}
	return nil
}

// Complete stores the report and marks the session completed.
func (r *SessionRepo) Complete(ctx domain.Context, id string, rep domain.Report) error {
	ctx, span := startSpan(ctx, "Complete", "UPDATE")
	defer span.End()

	b, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("op=session.complete: %w", err)
	}
	now := time.Now().UTC()
	q := `UPDATE sessions SET status=$2, report=$3, error='', updated_at=$4, completed_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, string(domain.SessionCompleted), b, now)
	if err != nil {
		return fmt.Errorf("op=session.complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=session.complete: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a session.
func (r *SessionRepo) Delete(ctx domain.Context, id string) error {
	ctx, span := startSpan(ctx, "Delete", "DELETE")
	defer span.End()

	tag, err := r.Pool.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=session.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=session.delete: %w", domain.ErrNotFound)
	}
	return nil
}

// ListStuck returns sessions still transcribing or analyzing whose last update is older than olderThan.
func (r *SessionRepo) ListStuck(ctx domain.Context, olderThan time.Time, limit int) ([]domain.Session, error) {
	ctx, span := startSpan(ctx, "ListStuck", "SELECT")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE status IN ($1,$2) AND updated_at < $3
		ORDER BY updated_at ASC LIMIT $4`
	rows, err := r.Pool.Query(ctx, q, string(domain.SessionTranscribing), string(domain.SessionAnalyzing), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("op=session.list_stuck: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("op=session.list_stuck: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=session.list_stuck: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		s         domain.Session
		status    string
		src       []byte
		report    []byte
		completed *time.Time
	)
	if err := row.Scan(&s.ID, &status, &src, &s.JobDescription, &s.Skills, &s.TranscriptID, &report, &s.Error, &s.CreatedAt, &s.UpdatedAt, &completed); err != nil {
		return domain.Session{}, err
	}
	s.Status = domain.SessionStatus(status)
	s.CompletedAt = completed
	if len(src) > 0 {
		if err := json.Unmarshal(src, &s.Source); err != nil {
			return domain.Session{}, fmt.Errorf("decode source: %w", err)
		}
	}
	if len(report) > 0 {
		var rep domain.Report
		if err := json.Unmarshal(report, &rep); err != nil {
			return domain.Session{}, fmt.Errorf("decode report: %w", err)
		}
		s.Report = &rep
	}
	return s, nil
}
