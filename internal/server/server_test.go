package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saitejavellanki/mathres/internal/backend"
	"github.com/saitejavellanki/mathres/internal/config"
	"github.com/saitejavellanki/mathres/internal/extract"
	"github.com/saitejavellanki/mathres/internal/llmcall"
	"github.com/saitejavellanki/mathres/internal/pipeline"
	"github.com/saitejavellanki/mathres/internal/providers"
	"github.com/saitejavellanki/mathres/internal/queue"
	"github.com/saitejavellanki/mathres/internal/server/endpoints"
	"github.com/saitejavellanki/mathres/internal/store"
	"github.com/saitejavellanki/mathres/internal/svcctx"
)

const (
	qaReply      = `[{"question":"Q1. Solve x+1=3","answer":"x=2","diagram_or_equation":""}]`
	markingReply = `[{"question":"Q1. Solve x+1=3","marks_awarded":2}]`
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *fakeQueue) Push(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), q.err
}

func (q *fakeQueue) Key() string { return queue.DefaultKey }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend serves the results backend API used by the pipeline.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("GET /ocr/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"page_number":1,"ocr_json":{"text":"Q1 x=2"}}]`))
	})
	mux.HandleFunc("GET /compare-text/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("GET /key-ocr/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("subject_id") == "missing" {
			_, _ = w.Write([]byte(`{"rubrics":""}`))
			return
		}
		_, _ = w.Write([]byte(`{"rubrics":"Q1 [2]"}`))
	})
	mux.HandleFunc("POST /results/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result_id":1}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newServices(t *testing.T, backendURL string, withRunner bool) *svcctx.Services {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Backend.BaseURL = backendURL

	mock := providers.NewMockClient()
	mock.Latency = 0
	mock.Respond = func(req *providers.ChatRequest) string {
		if strings.Contains(req.Messages[0].Content, "examiner") {
			return markingReply
		}
		return qaReply
	}
	reg := providers.NewRegistry()
	reg.RegisterLLM("mock", mock)

	bc := backend.New(backend.Config{BaseURL: backendURL, MaxRetries: 0, RetryDelay: time.Millisecond, Logger: quiet()})
	s := &svcctx.Services{
		Config:    cfg,
		Registry:  reg,
		Backend:   bc,
		Queue:     &fakeQueue{},
		Extractor: &extract.Extractor{Repair: true},
		Logger:    quiet(),
	}
	if withRunner {
		r, err := pipeline.NewRunner(pipeline.Config{Source: bc, Remote: bc, RestructureClient: mock, Logger: quiet()})
		if err != nil {
			t.Fatalf("NewRunner() error = %v", err)
		}
		s.Runner = r
	}
	return s
}

func newTestServer(t *testing.T, svc *svcctx.Services) http.Handler {
	t.Helper()
	srv, err := New(Config{Services: svc, Logger: quiet()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, rd))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without config manager or services")
	}
}

func TestIndex(t *testing.T) {
	h := newTestServer(t, newServices(t, fakeBackend(t).URL, true))
	rec := do(t, h, "GET", "/mathres/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[endpoints.IndexResponse](t, rec)
	if resp.Message != "Restructure API is running" {
		t.Errorf("Message = %q", resp.Message)
	}
	if resp.Endpoints["health_check"] != "/mathres/health" {
		t.Errorf("Endpoints = %v", resp.Endpoints)
	}
	if rec := do(t, h, "GET", "/mathres/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		be := fakeBackend(t)
		h := newTestServer(t, newServices(t, be.URL, true))
		resp := decode[endpoints.HealthResponse](t, do(t, h, "GET", "/mathres/health", ""))
		if resp.Status != "healthy" || resp.Backend != endpoints.BackendConnected || resp.BackendURL != be.URL {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("backend error status", func(t *testing.T) {
		be := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer be.Close()
		h := newTestServer(t, newServices(t, be.URL, true))
		rec := do(t, h, "GET", "/mathres/health", "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, health always answers 200", rec.Code)
		}
		resp := decode[endpoints.HealthResponse](t, rec)
		if resp.Status != "unhealthy" || resp.Backend != endpoints.BackendError || resp.Details != "Status: 502" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("backend unreachable", func(t *testing.T) {
		be := httptest.NewServer(http.NotFoundHandler())
		url := be.URL
		be.Close()
		h := newTestServer(t, newServices(t, url, true))
		resp := decode[endpoints.HealthResponse](t, do(t, h, "GET", "/mathres/health", ""))
		if resp.Backend != endpoints.BackendDisconnected || resp.Error == "" {
			t.Errorf("resp = %+v", resp)
		}
	})
}

func TestRestructure(t *testing.T) {
	be := fakeBackend(t)

	t.Run("success", func(t *testing.T) {
		h := newTestServer(t, newServices(t, be.URL, true))
		rec := do(t, h, "GET", "/mathres/restructure/math/s1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
		}
		resp := decode[endpoints.RestructureResponse](t, rec)
		if resp.Status != "success" || resp.SubjectID != "math" || resp.ScriptID != "s1" {
			t.Errorf("resp = %+v", resp)
		}
		if resp.Result == nil || resp.Result.TotalPairs != 1 || resp.Result.Metadata.TotalMarks != 2 {
			t.Fatalf("result = %+v", resp.Result)
		}
		if resp.Result.DatabaseOperation != backend.OpCreated {
			t.Errorf("DatabaseOperation = %q", resp.Result.DatabaseOperation)
		}
	})

	t.Run("pipeline failure", func(t *testing.T) {
		h := newTestServer(t, newServices(t, be.URL, true))
		rec := do(t, h, "GET", "/mathres/restructure/missing/s1", "")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", rec.Code)
		}
		resp := decode[endpoints.RestructureResponse](t, rec)
		if resp.Status != "error" || !strings.HasPrefix(resp.Message, "Error: ") || resp.Result != nil {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("no runner", func(t *testing.T) {
		h := newTestServer(t, newServices(t, be.URL, false))
		if rec := do(t, h, "GET", "/mathres/restructure/math/s1", ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestEnqueue(t *testing.T) {
	svc := newServices(t, fakeBackend(t).URL, false)
	h := newTestServer(t, svc)

	rec := do(t, h, "POST", "/mathres/restructure/math/s9/enqueue", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	resp := decode[endpoints.EnqueueResponse](t, rec)
	if resp.JobID == "" || resp.ScriptID != "s9" || resp.Depth != 1 || resp.Queue != queue.DefaultKey {
		t.Errorf("resp = %+v", resp)
	}
	fq := svc.Queue.(*fakeQueue)
	if len(fq.jobs) != 1 || fq.jobs[0].SubjectID != "math" {
		t.Errorf("jobs = %+v", fq.jobs)
	}

	fq.err = errors.New("redis down")
	if rec := do(t, h, "POST", "/mathres/restructure/math/s9/enqueue", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("push failure status = %d", rec.Code)
	}

	svc.Queue = nil
	if rec := do(t, h, "POST", "/mathres/restructure/math/s9/enqueue", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no queue status = %d, want 503", rec.Code)
	}
}

func TestExtract(t *testing.T) {
	h := newTestServer(t, newServices(t, fakeBackend(t).URL, false))

	tests := []struct {
		name     string
		body     string
		code     int
		strategy string
		count    int
	}{
		{
			name:     "array in prose",
			body:     `{"schema":"qa","raw_output":"Result: [{\"question\":\"Q1\",\"answer\":\"4\"}] see [note]"}`,
			code:     http.StatusOK,
			strategy: "array",
			count:    1,
		},
		{
			name:     "marking alias",
			body:     `{"schema":"marking","raw_output":"[{\"question\":\"Q1\",\"score\":\"3 marks\"}]"}`,
			code:     http.StatusOK,
			strategy: "whole",
			count:    1,
		},
		{name: "unknown schema", body: `{"schema":"essay","raw_output":"x"}`, code: http.StatusBadRequest},
		{name: "bad body", body: `{`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/mathres/extract", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
			}
			if tt.code != http.StatusOK {
				return
			}
			var resp struct {
				Strategy string           `json:"strategy"`
				Count    int              `json:"count"`
				Records  []map[string]any `json:"records"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Strategy != tt.strategy || resp.Count != tt.count || len(resp.Records) != tt.count {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	h := newTestServer(t, newServices(t, fakeBackend(t).URL, true))
	resp := decode[endpoints.StatusResponse](t, do(t, h, "GET", "/mathres/status", ""))
	if resp.Server != "running" || resp.Pipeline != "ready" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Providers.LLM) != 1 || resp.Providers.LLM[0] != "mock" {
		t.Errorf("providers = %+v", resp.Providers)
	}
	if resp.Store.Driver != "none" || resp.Store.Health != "disabled" {
		t.Errorf("store = %+v", resp.Store)
	}
	if !resp.Queue.Enabled || resp.Queue.Health != "healthy" {
		t.Errorf("queue = %+v", resp.Queue)
	}
	if resp.PersistTarget != "backend" {
		t.Errorf("PersistTarget = %q", resp.PersistTarget)
	}
}

func TestSwagger(t *testing.T) {
	h := newTestServer(t, newServices(t, fakeBackend(t).URL, false))
	rec := do(t, h, "GET", "/mathres/swagger.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var spec struct {
		Info  map[string]any            `json:"info"`
		Paths map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("swagger.json is not JSON: %v", err)
	}
	if spec.Info["title"] != "mathres API" {
		t.Errorf("title = %v", spec.Info["title"])
	}
	if _, ok := spec.Paths["/mathres/extract"]["post"]; !ok {
		t.Error("missing POST /mathres/extract")
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, newServices(t, fakeBackend(t).URL, false))

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:3000", true},
		{"https://transpoze.ai", true},
		{"https://grading.transpoze.ai", true},
		{"http://grading.transpoze.ai", false},
		{"https://evil-transpoze.ai", false},
		{"https://example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/mathres/", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		got := rec.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed && (got != tt.origin || rec.Header().Get("Access-Control-Allow-Credentials") != "true") {
			t.Errorf("%s: allow-origin = %q, want echoed with credentials", tt.origin, got)
		}
		if !tt.allowed && got != "" {
			t.Errorf("%s: allow-origin = %q, want none", tt.origin, got)
		}
	}

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/mathres/extract", nil)
		req.Header.Set("Origin", "https://transgrade.transpoze.ai")
		req.Header.Set("Access-Control-Request-Headers", "content-type")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Methods"); got != corsMethods {
			t.Errorf("methods = %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "content-type" {
			t.Errorf("headers = %q", got)
		}
	})

	t.Run("preflight from unknown origin", func(t *testing.T) {
		rec := do(t, h, "OPTIONS", "/mathres/health", "")
		if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("status = %d origin %q", rec.Code, rec.Header().Get("Access-Control-Allow-Origin"))
		}
	})
}

func TestServer_Lifecycle(t *testing.T) {
	srv, err := New(Config{Services: newServices(t, fakeBackend(t).URL, false), Logger: quiet()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false after ready")
	}
	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() should fail while running")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/mathres/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after stop")
	}
}

func TestLLMCalls(t *testing.T) {
	backendSrv := fakeBackend(t)
	svc := newServices(t, backendSrv.URL, false)

	rec := do(t, newTestServer(t, svc), "GET", "/mathres/llmcalls", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("without store: status = %d, want 503", rec.Code)
	}

	st, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	for _, c := range []*llmcall.Call{
		{ID: "a", Timestamp: time.Now(), RunID: "r1", Agent: "marking", Success: true},
		{ID: "b", Timestamp: time.Now(), RunID: "r2", Agent: "marking", Success: true},
	} {
		if err := st.InsertLLMCall(context.Background(), c); err != nil {
			t.Fatal(err)
		}
	}
	svc.Store = st
	h := newTestServer(t, svc)

	rec = do(t, h, "GET", "/mathres/llmcalls?run_id=r1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	resp := decode[endpoints.LLMCallsResponse](t, rec)
	if resp.Count != 1 || resp.Calls[0].ID != "a" {
		t.Errorf("calls = %+v", resp)
	}

	if rec := do(t, h, "GET", "/mathres/llmcalls?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", rec.Code)
	}
}
