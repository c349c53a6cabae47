package httpserver_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
)

var fastParams = httpserver.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLen: 8, KeyLen: 16}

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := httpserver.HashPassword("s3cret", fastParams)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "argon2id$1$1024$1$"))
	assert.True(t, httpserver.VerifyPassword("s3cret", hash))
	assert.False(t, httpserver.VerifyPassword("wrong", hash))

	other, err := httpserver.HashPassword("s3cret", fastParams)
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}

func TestVerifyPassword_Malformed(t *testing.T) {
	t.Parallel()

	for _, h := range []string{
		"",
		"bcrypt$1$2$3$4$5",
		"argon2id$x$1024$1$c2FsdA$aGFzaA",
		"argon2id$1$1024$0$c2FsdA$aGFzaA",
		"argon2id$1$1024$300$c2FsdA$aGFzaA",
		"argon2id$1$1024$1$!!$aGFzaA",
		"argon2id$1$1024$1$c2FsdA$",
	} {
		assert.False(t, httpserver.VerifyPassword("pw", h), h)
	}
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	hash, err := httpserver.HashPassword("pw", fastParams)
	require.NoError(t, err)
	fx := newFixture(config.Config{AdminUsername: "admin", AdminPasswordHash: hash}, nil)

	body := `{"transcript_text":"hi"}`
	tests := []struct {
		name     string
		user     string
		pass     string
		setAuth  bool
		wantCode int
	}{
		{name: "no credentials", wantCode: http.StatusUnauthorized},
		{name: "wrong password", user: "admin", pass: "nope", setAuth: true, wantCode: http.StatusUnauthorized},
		{name: "wrong user", user: "root", pass: "pw", setAuth: true, wantCode: http.StatusUnauthorized},
		{name: "ok", user: "admin", pass: "pw", setAuth: true, wantCode: http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(body))
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := do(t, fx.router, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
			}
		})
	}

	rec := do(t, fx.router, httptest.NewRequest(http.MethodGet, "/v1/sessions/none", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "read routes stay open")
}

func TestBasicAuth_DisabledWithoutCredentials(t *testing.T) {
	t.Parallel()

	called := false
	h := httpserver.BasicAuth("", "")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}
