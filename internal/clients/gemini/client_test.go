package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("create test logger: %v", err)
	}
	return log
}

func newTestClient(t *testing.T, serverURL string) Client {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_BASE_URL", serverURL)
	t.Setenv("GEMINI_MODEL", "test-model")
	t.Setenv("GEMINI_TIMEOUT_SECONDS", "5")
	t.Setenv("GEMINI_MAX_RETRIES", "2")

	c, err := New(testLogger(t))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func candidateBody(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":` + mustJSON(text) + `}]}}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGenerateExtractsCandidateText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody struct {
		SystemInstruction *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"system_instruction"`
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(candidateBody("Once upon a time! [STAY]")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.Generate(context.Background(), "You are Story Buddy.", []Message{
		{Role: RoleUser, Text: "The boy is Tom"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "Once upon a time! [STAY]" {
		t.Fatalf("out = %q", out)
	}
	if gotPath != "/v1beta/models/test-model:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "You are Story Buddy." {
		t.Fatalf("system instruction not sent: %+v", gotBody.SystemInstruction)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Role != RoleUser || gotBody.Contents[0].Parts[0].Text != "The boy is Tom" {
		t.Fatalf("contents = %+v", gotBody.Contents)
	}
}

func TestGenerateRetriesRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(candidateBody("second try works")))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	out, err := c.Generate(context.Background(), "", []Message{{Role: RoleUser, Text: "hi"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "second try works" {
		t.Fatalf("out = %q", out)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("server called %d times, want 2", got)
	}
}

func TestGenerateDoesNotRetryClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Generate(context.Background(), "", []Message{{Role: RoleUser, Text: "hi"}}); err == nil {
		t.Fatalf("expected error for 400 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("client error retried: %d calls", got)
	}
}

func TestGenerateEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Generate(context.Background(), "", []Message{{Role: RoleUser, Text: "hi"}})
	if err == nil || !strings.Contains(err.Error(), "no candidates") {
		t.Fatalf("err = %v, want no-candidates error", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := New(testLogger(t)); err == nil {
		t.Fatalf("expected error without GEMINI_API_KEY")
	}
}
