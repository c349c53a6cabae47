package httpserver_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	"github.com/fairyhunter13/ai-interview-auditor/internal/usecase"
)

type memRepo struct {
	mu    sync.Mutex
	next  int
	items map[string]domain.Session
}

func (m *memRepo) Create(_ domain.Context, s domain.Session) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	s.ID = fmt.Sprintf("sess-%d", m.next)
	m.items[s.ID] = s
	return s.ID, nil
}

func (m *memRepo) Get(_ domain.Context, id string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *memRepo) UpdateStatus(_ domain.Context, id string, st domain.SessionStatus, msg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.items[id]
	s.Status = st
	if msg != nil {
		s.Error = *msg
	}
	m.items[id] = s
	return nil
}

func (m *memRepo) SetTranscriptID(domain.Context, string, string) error { return nil }

func (m *memRepo) Complete(_ domain.Context, id string, r domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.items[id]
	s.Status = domain.SessionCompleted
	s.Report = &r
	m.items[id] = s
	return nil
}

func (m *memRepo) Delete(_ domain.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memRepo) ListStuck(domain.Context, time.Time, int) ([]domain.Session, error) {
	return nil, nil
}

type nopQueue struct{ err error }

func (q nopQueue) EnqueueAnalysis(_ domain.Context, p domain.AnalysisTaskPayload) (string, error) {
	return p.SessionID, q.err
}

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *memStore) Save(_ domain.Context, filename string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("up-%d", len(s.files)+1)
	s.files[id] = data
	return id, nil
}

func (s *memStore) Path(_ domain.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return "", domain.ErrNotFound
	}
	return "/uploads/" + id, nil
}

func (s *memStore) Remove(_ domain.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, id)
	return nil
}

type fixture struct {
	repo   *memRepo
	store  *memStore
	srv    *httpserver.Server
	router http.Handler
}

func newFixture(cfg config.Config, q domain.Queue) *fixture {
	if q == nil {
		q = nopQueue{}
	}
	if cfg.MaxUploadMB == 0 {
		cfg.MaxUploadMB = 1
	}
	fx := &fixture{
		repo:  &memRepo{items: map[string]domain.Session{}},
		store: &memStore{files: map[string][]byte{}},
	}
	sessions := usecase.NewSessionService(fx.repo, q, fx.store, nil, nil, nil)
	uploads := usecase.NewUploadService(fx.store, cfg.MaxUploadBytes())
	fx.srv = httpserver.NewServer(cfg, sessions, uploads,
		func(context.Context) error { return nil },
		func(context.Context) error { return nil },
		nil,
	)

	r := chi.NewRouter()
	r.Use(httpserver.RequestID())
	r.Group(func(wr chi.Router) {
		wr.Use(httpserver.BasicAuth(cfg.AdminUsername, cfg.AdminPasswordHash))
		wr.Post("/v1/uploads", fx.srv.UploadHandler())
		wr.Post("/v1/sessions", fx.srv.CreateSessionHandler())
		wr.Post("/v1/sessions/{id}/reset", fx.srv.ResetHandler())
	})
	r.Get("/v1/sessions/{id}", fx.srv.GetSessionHandler())
	r.Get("/v1/sessions/{id}/report", fx.srv.ReportHandler())
	r.Get("/readyz", fx.srv.ReadyzHandler())
	fx.router = r
	return fx
}

func (fx *fixture) put(s domain.Session) {
	fx.repo.mu.Lock()
	defer fx.repo.mu.Unlock()
	fx.repo.items[s.ID] = s
}
