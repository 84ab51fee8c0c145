package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "sharebot/pkg/logx"
)

func TestHealthzReportsParts(t *testing.T) {
	t.Parallel()

	s := New(Config{}, func(context.Context) (map[string]any, error) {
		return map[string]any{"store": "ok"}, nil
	}, logx.Nop())
	rec := httptest.NewRecorder()
	s.Handler(Config{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["store"] != "ok" {
		t.Fatalf("body = %v, want status and store ok", body)
	}
}

func TestHealthzDegraded(t *testing.T) {
	t.Parallel()

	s := New(Config{}, func(context.Context) (map[string]any, error) {
		return nil, errors.New("db down")
	}, logx.Nop())
	rec := httptest.NewRecorder()
	s.Handler(Config{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()

	h := New(Config{}, nil, logx.Nop()).Handler(Config{Token: "s3cret"})
	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/healthz", "", http.StatusUnauthorized},
		{"query", "/healthz?token=s3cret", "", http.StatusOK},
		{"bad query", "/healthz?token=nope", "Bearer s3cret", http.StatusUnauthorized},
		{"bearer", "/healthz", "Bearer s3cret", http.StatusOK},
		{"bad bearer", "/healthz", "Bearer x", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMetricsAndPprofRoutes(t *testing.T) {
	t.Parallel()

	h := New(Config{}, nil, logx.Nop()).Handler(Config{Pprof: true, PprofPrefix: "/debug/pprof"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("pprof index status = %d, want %d", rec.Code, http.StatusOK)
	}

	off := New(Config{}, nil, logx.Nop()).Handler(Config{})
	rec = httptest.NewRecorder()
	off.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":            "/debug/pprof/",
		"dbg":         "/dbg/",
		"/x/y":        "/x/y/",
		"/debug/pp/ ": "/debug/pp/",
	}
	for in, want := range tests {
		if got := normalizePrefix(in); got != want {
			t.Fatalf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
