package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/ok":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(map[string]string{"method": r.Method, "echo": body["x"]})
		case "/fail":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom","message":"Error: boom"}`))
		case "/plain":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down\n"))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL + "/")

	t.Run("get", func(t *testing.T) {
		var got map[string]string
		if err := c.Get(ctx, "/ok", &got); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got["method"] != http.MethodGet {
			t.Errorf("method = %s", got["method"])
		}
	})

	t.Run("post and put send body", func(t *testing.T) {
		for _, call := range []func(string, any, any) error{
			func(p string, b, r any) error { return c.Post(ctx, p, b, r) },
			func(p string, b, r any) error { return c.Put(ctx, p, b, r) },
		} {
			var got map[string]string
			if err := call("/ok", map[string]string{"x": "y"}, &got); err != nil {
				t.Fatalf("error = %v", err)
			}
			if got["echo"] != "y" {
				t.Errorf("echo = %q", got["echo"])
			}
		}
	})

	t.Run("server error keeps body", func(t *testing.T) {
		var got struct {
			Message string `json:"message"`
		}
		err := c.Get(ctx, "/fail", &got)
		var se *ServerError
		if !errors.As(err, &se) || se.StatusCode != 500 || se.Message != "boom" {
			t.Fatalf("error = %v", err)
		}
		if got.Message != "Error: boom" {
			t.Errorf("result not decoded on error: %+v", got)
		}
	})

	t.Run("plain error body", func(t *testing.T) {
		err := c.Delete(ctx, "/plain")
		if err == nil || err.Error() != "server error (502): upstream down" {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		var got map[string]any
		if err := c.Get(ctx, "/empty", &got); err != nil {
			t.Errorf("Get() error = %v", err)
		}
	})
}

func TestOutputTo(t *testing.T) {
	data := struct {
		Script string `json:"script_id"`
		Total  int    `json:"total_pairs"`
		Note   string `json:"note"`
	}{"s1", 2, "a<b"}

	var buf bytes.Buffer
	if err := OutputTo(&buf, OutputFormatJSON, data); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"script_id": "s1"`) || !strings.Contains(buf.String(), "a<b") {
		t.Errorf("json output = %s", buf.String())
	}

	buf.Reset()
	if err := OutputTo(&buf, OutputFormatYAML, data); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "script_id: s1") || !strings.Contains(buf.String(), "total_pairs: 2") {
		t.Errorf("yaml output = %s", buf.String())
	}

	if err := OutputTo(&buf, "xml", data); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestSetOutputFormat(t *testing.T) {
	defer func() { outputFormat = OutputFormatYAML }()
	if err := SetOutputFormat("json"); err != nil || GetOutputFormat() != OutputFormatJSON {
		t.Errorf("SetOutputFormat(json) = %v, format %s", err, GetOutputFormat())
	}
	if err := SetOutputFormat("toml"); err == nil {
		t.Error("expected error for toml")
	}
	if GetOutputFormat() != OutputFormatJSON {
		t.Error("invalid format should not change the current one")
	}
}

type stubEndpoint struct {
	method, path string
	init         bool
}

func (e stubEndpoint) Route() (string, string, http.HandlerFunc) {
	return e.method, e.path, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }
}

func (e stubEndpoint) RequiresInit() bool { return e.init }

func (e stubEndpoint) Command(func() string) *cobra.Command {
	return &cobra.Command{Use: strings.Trim(e.path, "/")}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(stubEndpoint{method: "GET", path: "/open"})
	reg.Register(stubEndpoint{method: "POST", path: "/gated", init: true})

	mux := http.NewServeMux()
	reg.RegisterRoutes(mux, "/mathres/", func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }
	})

	tests := []struct {
		method, path string
		want         int
	}{
		{"GET", "/mathres/open", http.StatusTeapot},
		{"POST", "/mathres/gated", http.StatusServiceUnavailable},
		{"GET", "/open", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}

	routes := reg.Routes("/mathres")
	if len(routes) != 2 || routes[1] != "POST /mathres/gated" {
		t.Errorf("Routes() = %v", routes)
	}

	cmd := reg.BuildCommands(func() string { return "" })
	if len(cmd.Commands()) != 2 {
		t.Errorf("subcommands = %d, want 2", len(cmd.Commands()))
	}
}
