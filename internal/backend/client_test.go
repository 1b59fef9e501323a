package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:    srv.URL,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchAnswerSheet(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr/" || r.URL.Query().Get("script_id") != "s1" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`[
			{"page_number": 2, "ocr_json": {"text": "second"}, "structured_json": {"b": 1}},
			{"page_number": 1, "ocr_json": {"Blocks": [
				{"BlockType": "PAGE", "Text": "skip"},
				{"BlockType": "LINE", "Text": "x = 2"},
				{"BlockType": "LINE", "Text": "y = 3"}
			]}, "structured_json": {"a": 1}, "context": "Q1 continues"}
		]`))
	})

	sheet, err := c.FetchAnswerSheet(context.Background(), "s1")
	if err != nil {
		t.Fatalf("FetchAnswerSheet() error = %v", err)
	}
	want := "--- Page 1 ---\nx = 2\ny = 3\n[Context: Q1 continues]\n\n--- Page 2 ---\nsecond"
	if sheet.Text != want {
		t.Errorf("Text = %q, want %q", sheet.Text, want)
	}
	if sheet.Pages != 2 {
		t.Errorf("Pages = %d", sheet.Pages)
	}
	if string(sheet.Structured["page_1"]) != `{"a": 1}` {
		t.Errorf("Structured[page_1] = %s", sheet.Structured["page_1"])
	}
}

func TestFetchAnswerSheet_Empty(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})
	_, err := c.FetchAnswerSheet(context.Background(), "s1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFetchCompareText(t *testing.T) {
	t.Run("first record", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []map[string]any{
				{"vlmdesc": map[string]any{"fig1": "triangle"}, "mcq": nil},
				{"vlmdesc": "older"},
			})
		})
		ct, err := c.FetchCompareText(context.Background(), "s1")
		if err != nil {
			t.Fatalf("FetchCompareText() error = %v", err)
		}
		if m, ok := ct.VLMDesc.(map[string]any); !ok || m["fig1"] != "triangle" {
			t.Errorf("VLMDesc = %#v", ct.VLMDesc)
		}
		if m, ok := ct.MCQ.(map[string]any); !ok || len(m) != 0 {
			t.Errorf("MCQ = %#v, want empty object", ct.MCQ)
		}
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "nope", http.StatusNotFound)
		})
		mcq, err := c.FetchMCQ(context.Background(), "s1")
		if err == nil {
			t.Fatal("expected error")
		}
		if m, ok := mcq.(map[string]any); !ok || len(m) != 0 {
			t.Errorf("MCQ = %#v, want empty object", mcq)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})
}

func TestFetchRubrics(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     string
		wantErr  bool
		notFound bool
	}{
		{name: "string", body: `{"rubrics": "Q1 [2 marks]"}`, want: "Q1 [2 marks]"},
		{name: "structured", body: `{"rubrics": {"Q1": 2}}`, want: `{"Q1":2}`},
		{name: "empty", body: `{"rubrics": ""}`, wantErr: true, notFound: true},
		{name: "list", body: `[]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/key-ocr/" || r.URL.Query().Get("subject_id") != "math" {
					t.Errorf("unexpected request %s", r.URL)
				}
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := c.FetchRubrics(context.Background(), "math")
			if (err != nil) != tt.wantErr {
				t.Fatalf("FetchRubrics() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.notFound && !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
			if got != tt.want {
				t.Errorf("FetchRubrics() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSaveResult_Created(t *testing.T) {
	var got map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/results/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusCreated, map[string]any{"result_id": 7})
	})

	op, body, err := c.SaveResult(context.Background(), "s1", map[string]any{"total_pairs": 1})
	if err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if op != OpCreated {
		t.Errorf("op = %q, want created", op)
	}
	if m, _ := body.(map[string]any); m["result_id"] != float64(7) {
		t.Errorf("body = %#v", body)
	}
	for _, key := range []string{"script_id", "restructuredtext", "scored", "graded", "analytics"} {
		if _, ok := got[key]; !ok {
			t.Errorf("payload missing %q", key)
		}
	}
}

func TestSaveResult_UpdatesExisting(t *testing.T) {
	var put map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			writeJSON(w, http.StatusBadRequest, map[string]any{"script_id": []string{"already exists"}})
		case http.MethodGet:
			writeJSON(w, http.StatusOK, []map[string]any{{"result_id": 42, "script_id": "s1"}})
		case http.MethodPut:
			_ = json.NewDecoder(r.Body).Decode(&put)
			writeJSON(w, http.StatusOK, map[string]any{"result_id": 42})
		}
	})

	op, _, err := c.SaveResult(context.Background(), "s1", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if op != OpUpdated {
		t.Errorf("op = %q, want updated", op)
	}
	if put["result_id"] != float64(42) {
		t.Errorf("PUT result_id = %v", put["result_id"])
	}
	if _, ok := put["scored"]; ok {
		t.Error("update payload should carry only result_id and restructuredtext")
	}
}

func TestSaveResult_Failed(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			http.Error(w, "bad", http.StatusBadRequest)
		case http.MethodGet:
			writeJSON(w, http.StatusOK, []any{})
		}
	})
	op, _, err := c.SaveResult(context.Background(), "s1", nil)
	if op != OpFailed || !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveResult() = %q, %v; want failed, ErrNotFound", op, err)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"rubrics": "ok"}`))
	})
	got, err := c.FetchRubrics(context.Background(), "math")
	if err != nil {
		t.Fatalf("FetchRubrics() error = %v", err)
	}
	if got != "ok" || calls.Load() != 3 {
		t.Errorf("got %q after %d calls", got, calls.Load())
	}
}

func TestPing(t *testing.T) {
	ok := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("path = %s", r.URL.Path)
		}
	})
	if err := ok.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	down := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	err := down.Ping(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || !strings.Contains(se.Error(), "503") {
		t.Errorf("Ping() error = %v, want 503 StatusError", err)
	}
}
