package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/ai"
	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
)

func testCaller(attempts int) *ai.Caller {
	return ai.NewCaller(domain.RetryPolicy{MaxAttempts: attempts, Interval: time.Millisecond, RateLimitWait: 5 * time.Millisecond})
}

// fakeAssistant routes RunTask prompts by their wording so one fake can
// serve a whole round.
type fakeAssistant struct {
	questions   func(n int) (string, error)
	candidate   func(qa string, n int) (string, error)
	interviewer func(qa string, n int) (string, error)
	skillTags   func(n int) (string, error)
	summarize   func(answerFormat string, n int) (string, error)
	answer      func(n int) ([]domain.QAPair, error)

	mu    sync.Mutex
	calls map[string]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func (f *fakeAssistant) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[kind]++
	return f.calls[kind]
}

func (f *fakeAssistant) Calls(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func (f *fakeAssistant) enter() func() {
	n := f.inFlight.Add(1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.inFlight.Add(-1) }
}

func between(s, open, closing string) string {
	i := strings.Index(s, open)
	j := strings.Index(s, closing)
	if i == -1 || j == -1 {
		return ""
	}
	return s[i+len(open) : j]
}

func (f *fakeAssistant) RunTask(_ context.Context, prompt, _ string, _ domain.Transcript) (string, error) {
	defer f.enter()()
	switch {
	case strings.Contains(prompt, "pull out the questions"):
		n := f.count("questions")
		if f.questions == nil {
			return "", fmt.Errorf("unexpected questions call")
		}
		return f.questions(n)
	case strings.Contains(prompt, "candidate assessor"):
		q := between(prompt, "<question>", "</question>")
		n := f.count("candidate:" + q)
		f.count("candidate")
		if f.candidate == nil {
			return `[{"grade":3,"skill":"Go"}]`, nil
		}
		return f.candidate(q, n)
	case strings.Contains(prompt, "interviewer assessor"):
		q := between(prompt, "<question>", "</question>")
		n := f.count("interviewer:" + q)
		f.count("interviewer")
		if f.interviewer == nil {
			return `[{"grade":4,"skill":"Go"}]`, nil
		}
		return f.interviewer(q, n)
	case strings.Contains(prompt, "Tag every question"):
		n := f.count("skill_tags")
		if f.skillTags == nil {
			return `[{"index":0,"skill":"Go"},{"index":1,"skill":"SQL"},{"index":2,"skill":"Go"}]`, nil
		}
		return f.skillTags(n)
	}
	return "", fmt.Errorf("unexpected prompt: %q", prompt)
}

func (f *fakeAssistant) Summarize(_ context.Context, _, answerFormat string, _ domain.Transcript) (string, error) {
	defer f.enter()()
	n := f.count("summary:" + answerFormat)
	if f.summarize == nil {
		return "summary in " + answerFormat, nil
	}
	return f.summarize(answerFormat, n)
}

func (f *fakeAssistant) AnswerQuestions(_ context.Context, questions []domain.FixedQuestion, _ domain.Transcript) ([]domain.QAPair, error) {
	defer f.enter()()
	n := f.count("fixed_qa")
	if f.answer == nil {
		out := make([]domain.QAPair, len(questions))
		for i, q := range questions {
			out[i] = domain.QAPair{Question: q.Question, Answer: "answer"}
		}
		return out, nil
	}
	return f.answer(n)
}

const threeQuestions = `Sure! Here they are:
[{"question":"Tell me about Go channels","answer":"They pass values between goroutines"},
 {"question":"How do you index a table?","answer":"CREATE INDEX"},
 {"question":"What is a race?","answer":"Unsynchronized access"}]
Hope this helps.`

func newTestPipeline(f *fakeAssistant, opts PipelineOptions) *Pipeline {
	return NewPipeline(f, testCaller(10), config.DefaultCatalog(), opts)
}

// memSessions is an in-memory SessionRepository.
type memSessions struct {
	mu       sync.Mutex
	next     int
	items    map[string]domain.Session
	statuses []domain.SessionStatus
	failGet  error
	failDone error
}

func newMemSessions() *memSessions { return &memSessions{items: map[string]domain.Session{}} }

func (m *memSessions) Create(_ domain.Context, s domain.Session) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	s.ID = fmt.Sprintf("sess-%d", m.next)
	m.items[s.ID] = s
	return s.ID, nil
}

func (m *memSessions) Get(_ domain.Context, id string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return domain.Session{}, m.failGet
	}
	s, ok := m.items[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("op=session.get: %w", domain.ErrNotFound)
	}
	return s, nil
}

func (m *memSessions) UpdateStatus(_ domain.Context, id string, status domain.SessionStatus, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = status
	if errMsg != nil {
		s.Error = *errMsg
	}
	m.items[id] = s
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *memSessions) SetTranscriptID(_ domain.Context, id, transcriptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.items[id]
	s.TranscriptID = transcriptID
	m.items[id] = s
	return nil
}

func (m *memSessions) Complete(_ domain.Context, id string, r domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDone != nil {
		return m.failDone
	}
	s, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	s.Status = domain.SessionCompleted
	s.Report = &r
	s.CompletedAt = &now
	m.items[id] = s
	m.statuses = append(m.statuses, domain.SessionCompleted)
	return nil
}

func (m *memSessions) Delete(_ domain.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memSessions) ListStuck(_ domain.Context, _ time.Time, _ int) ([]domain.Session, error) {
	return nil, nil
}

// ctxSessions fails every call on a finished context, the way pgx does.
type ctxSessions struct{ *memSessions }

func (c ctxSessions) Get(ctx domain.Context, id string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	return c.memSessions.Get(ctx, id)
}

func (c ctxSessions) UpdateStatus(ctx domain.Context, id string, status domain.SessionStatus, errMsg *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.memSessions.UpdateStatus(ctx, id, status, errMsg)
}

func (c ctxSessions) SetTranscriptID(ctx domain.Context, id, transcriptID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.memSessions.SetTranscriptID(ctx, id, transcriptID)
}

func (c ctxSessions) Complete(ctx domain.Context, id string, r domain.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.memSessions.Complete(ctx, id, r)
}

type fakeQueue struct {
	err      error
	payloads []domain.AnalysisTaskPayload
}

func (q *fakeQueue) EnqueueAnalysis(_ domain.Context, p domain.AnalysisTaskPayload) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.payloads = append(q.payloads, p)
	return p.SessionID, nil
}

// memUploads tracks upload paths in memory. With dir set, Save also writes
// the bytes so the files can be sniffed later.
type memUploads struct {
	dir     string
	files   map[string]string
	removed []string
}

func (u *memUploads) Save(_ domain.Context, filename string, data []byte) (string, error) {
	if u.files == nil {
		u.files = map[string]string{}
	}
	id := fmt.Sprintf("up-%d", len(u.files)+1)
	if u.dir == "" {
		u.files[id] = "/tmp/" + filename
		return id, nil
	}
	path := filepath.Join(u.dir, id+"-"+filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	u.files[id] = path
	return id, nil
}

func (u *memUploads) Path(_ domain.Context, id string) (string, error) {
	p, ok := u.files[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return p, nil
}

func (u *memUploads) Remove(_ domain.Context, id string) error {
	if _, ok := u.files[id]; !ok {
		return domain.ErrNotFound
	}
	delete(u.files, id)
	u.removed = append(u.removed, id)
	return nil
}

type fakeTranscriber struct {
	submitErr error
	submitted []domain.MediaSource
	texts     map[string]string
	onText    func()
}

func (t *fakeTranscriber) SubmitForTranscription(_ domain.Context, media domain.MediaSource) (string, error) {
	t.submitted = append(t.submitted, media)
	if t.submitErr != nil {
		return "", t.submitErr
	}
	return "tr-new", nil
}

func (t *fakeTranscriber) GetTranscriptText(ctx domain.Context, id string) (string, error) {
	if t.onText != nil {
		t.onText()
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
	text, ok := t.texts[id]
	if !ok {
		return "", &domain.UpstreamError{Provider: "fake", StatusCode: 404, Body: "no transcript"}
	}
	return text, nil
}
