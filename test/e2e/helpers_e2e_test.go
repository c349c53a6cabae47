//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

var (
	baseURL   = getenv("E2E_BASE_URL", "http://localhost:8080/v1")
	adminUser = os.Getenv("E2E_ADMIN_USERNAME")
	adminPass = os.Getenv("E2E_ADMIN_PASSWORD")
)

// requireApp skips the test when the API is not reachable.
func requireApp(t *testing.T, client *http.Client) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	healthz := strings.TrimSuffix(baseURL, "/v1") + "/healthz"
	resp, err := client.Get(healthz)
	if err != nil {
		t.Skip("App not available; skipping E2E")
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skip("App not healthy; skipping E2E")
	}
}

func authorize(req *http.Request) {
	if adminUser != "" {
		req.SetBasicAuth(adminUser, adminPass)
	}
}

func doJSON(t *testing.T, client *http.Client, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &out)
	}
	return resp.StatusCode, out
}

func createSession(t *testing.T, client *http.Client, payload map[string]any) (int, map[string]any) {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, baseURL+"/sessions", bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	authorize(req)
	return doJSON(t, client, req)
}

func uploadFile(t *testing.T, client *http.Client, name string, data []byte) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, baseURL+"/uploads", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	authorize(req)
	return doJSON(t, client, req)
}

func getSession(t *testing.T, client *http.Client, id string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, baseURL+"/sessions/"+id, nil)
	require.NoError(t, err)
	return doJSON(t, client, req)
}

// waitForTerminal polls until the session is completed or failed.
func waitForTerminal(t *testing.T, client *http.Client, id string, maxWait time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(maxWait)
	var last map[string]any
	for time.Now().Before(deadline) {
		code, body := getSession(t, client, id)
		require.Equal(t, http.StatusOK, code, "get session: %#v", body)
		last = body
		if st, _ := body["status"].(string); st == "completed" || st == "failed" {
			return body
		}
		time.Sleep(2 * time.Second)
	}
	t.Fatalf("session %s did not reach a terminal state within %v: %#v", id, maxWait, last)
	return nil
}

const sampleTranscript = `Interviewer: Thanks for joining. Can you explain how Go channels work?
Candidate: Channels let goroutines communicate. An unbuffered channel blocks until both sides are ready.
Interviewer: What is a data race and how do you find one?
Candidate: Two goroutines touching the same memory without synchronization, at least one writing. I run tests with the race detector.
Interviewer: How would you design a retry policy for a flaky upstream?
Candidate: Exponential backoff with jitter, a cap on attempts, and a longer wait when the upstream says it is rate limiting.`
