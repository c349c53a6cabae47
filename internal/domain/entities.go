package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrEmptyResult       = errors.New("empty result")
	ErrRetriesExhausted  = errors.New("retries exhausted")
	ErrInternal          = errors.New("internal error")
	ErrInterrupted       = errors.New("interrupted")
)

// Sentinel values substituted when a grading call never produced a usable answer.
const (
	SentinelGrade = 0
	UnknownSkill  = "unknown"
)

// Transcript is the text derived from an interview recording.
// Either ID or Text may be empty but not both.
type Transcript struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

// Empty reports whether the transcript carries neither an id nor text.
func (t Transcript) Empty() bool { return t.ID == "" && t.Text == "" }

// QAPair is a question asked by the interviewer and the candidate's answer.
// Answer may be empty for interviewer-only items.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// GradedRecord is a QAPair with a skill tag and an ordinal grade.
type GradedRecord struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Skill    string `json:"skill"`
	Grade    Grade  `json:"grade"`
}

// SentinelRecord returns the degraded form of a graded record.
func SentinelRecord(qa QAPair) GradedRecord {
	return GradedRecord{Question: qa.Question, Answer: qa.Answer, Skill: UnknownSkill, Grade: SentinelGrade}
}

// SessionStatus enumerates session lifecycle states.
type SessionStatus string

const (
	SessionPending      SessionStatus = "pending"
	SessionTranscribing SessionStatus = "transcribing"
	SessionAnalyzing    SessionStatus = "analyzing"
	SessionCompleted    SessionStatus = "completed"
	SessionFailed       SessionStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Source describes where the transcript of a session comes from.
// Exactly one field is set.
type Source struct {
	UploadID       string `json:"upload_id,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
	TranscriptID   string `json:"transcript_id,omitempty"`
	TranscriptText string `json:"transcript_text,omitempty"`
}

// Validate checks that exactly one source is provided.
func (s Source) Validate() error {
	n := 0
	for _, v := range []string{s.UploadID, s.MediaURL, s.TranscriptID, s.TranscriptText} {
		if v != "" {
			n++
		}
	}
	if n != 1 {
		return ErrInvalidArgument
	}
	return nil
}

// Session is one analysis run over one transcript. It replaces shared
// process-wide state: every stage receives the session explicitly.
type Session struct {
	ID             string
	Status         SessionStatus
	Source         Source
	JobDescription string
	Skills         []string
	TranscriptID   string
	Report         *Report
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// Report is the joined output of one dispatch round.
type Report struct {
	Questions         []QAPair       `json:"questions"`
	CandidateGrades   []GradedRecord `json:"candidate_grades"`
	InterviewerGrades []GradedRecord `json:"interviewer_grades"`
	SkillTags         []GradedRecord `json:"skill_tags"`
	SummaryParagraph  string         `json:"summary_paragraph"`
	SummaryTopics     string         `json:"summary_topics"`
	SummaryQuestions  string         `json:"summary_questions,omitempty"`
	FixedQA           []QAPair       `json:"fixed_qa"`
	CandidateScore    float64        `json:"candidate_score"`
	InterviewerScore  float64        `json:"interviewer_score"`
	Degraded          []string       `json:"degraded,omitempty"`
}

// FixedQuestion is one of the standard digest questions asked of every transcript.
type FixedQuestion struct {
	Question      string   `json:"question" yaml:"question"`
	AnswerFormat  string   `json:"answer_format,omitempty" yaml:"answer_format,omitempty"`
	AnswerOptions []string `json:"answer_options,omitempty" yaml:"answer_options,omitempty"`
}

// MediaSource is a recording handed to the transcriber: a local path or a URL.
type MediaSource struct {
	Path string
	URL  string
}

// Repositories (ports)

type SessionRepository interface {
	Create(ctx Context, s Session) (string, error)
	Get(ctx Context, id string) (Session, error)
	UpdateStatus(ctx Context, id string, status SessionStatus, errMsg *string) error
	SetTranscriptID(ctx Context, id, transcriptID string) error
	Complete(ctx Context, id string, r Report) error
	Delete(ctx Context, id string) error
	ListStuck(ctx Context, olderThan time.Time, limit int) ([]Session, error)
}

type UploadStore interface {
	Save(ctx Context, filename string, data []byte) (string, error)
	Path(ctx Context, uploadID string) (string, error)
	Remove(ctx Context, uploadID string) error
}

// Queue (port)

type Queue interface {
	EnqueueAnalysis(ctx Context, payload AnalysisTaskPayload) (string, error)
}

// AnalysisTaskPayload is published when a session is ready for processing.
type AnalysisTaskPayload struct {
	SessionID string `json:"session_id"`
}

// Transcriber (port)

type Transcriber interface {
	SubmitForTranscription(ctx Context, media MediaSource) (string, error)
	GetTranscriptText(ctx Context, transcriptID string) (string, error)
}

// Assistant (port) is the hosted LLM that reads a transcript.
type Assistant interface {
	RunTask(ctx Context, prompt, taskContext string, target Transcript) (string, error)
	Summarize(ctx Context, taskContext, answerFormat string, target Transcript) (string, error)
	AnswerQuestions(ctx Context, questions []FixedQuestion, target Transcript) ([]QAPair, error)
}

type Context = context.Context
