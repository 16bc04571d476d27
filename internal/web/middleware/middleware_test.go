package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestParseProxies(t *testing.T) {
	prefixes, invalid := ParseProxies([]string{"10.0.0.0/8", " 127.0.0.1 ", "", "::1", "not-an-ip"})

	if len(prefixes) != 3 {
		t.Fatalf("got %d prefixes, want 3: %v", len(prefixes), prefixes)
	}
	if prefixes[1].String() != "127.0.0.1/32" || prefixes[2].String() != "::1/128" {
		t.Errorf("bare addresses = %v, %v", prefixes[1], prefixes[2])
	}
	if len(invalid) != 1 || invalid[0] != "not-an-ip" {
		t.Errorf("invalid = %v", invalid)
	}
}

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"untrusted peer ignores headers", "203.0.113.9:5000", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.9"},
		{"trusted peer with X-Real-IP", "10.0.0.2:5000", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"trusted peer with invalid X-Real-IP", "10.0.0.2:5000", map[string]string{"X-Real-IP": "garbage"}, "10.0.0.2"},
		{"forwarded chain stops at first untrusted hop", "10.0.0.2:5000", map[string]string{"X-Forwarded-For": "6.6.6.6, 1.2.3.4, 10.0.0.7"}, "1.2.3.4"},
		{"trusted peer without headers", "10.0.0.2:5000", nil, "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRemote, gotCtx string
			h := TrustedRealIP([]string{"10.0.0.0/8"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotRemote, gotCtx = r.RemoteAddr, ClientIP(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if gotRemote != tt.want || gotCtx != tt.want {
				t.Errorf("RemoteAddr = %q, ClientIP = %q, want %q", gotRemote, gotCtx, tt.want)
			}
		})
	}
}

func TestLogger_RouteFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := chi.NewRouter()
	r.Use(TrustedRealIP(nil))
	r.Use(Logger)
	r.Post("/api/import/{kind}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("ok"))
	})
	r.Get("/api/runs/{runID}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	})

	tests := []struct {
		method, path string
		want         []string
	}{
		{http.MethodPost, "/api/import/students", []string{"level=INFO", "kind=students", "status=202", "bytes=2", "route=/api/import/{kind}"}},
		{http.MethodGet, "/api/runs/run-7", []string{"level=WARN", "run_id=run-7", "status=404"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf.Reset()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			r.ServeHTTP(httptest.NewRecorder(), req)

			line := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(line, want) {
					t.Errorf("log line %q missing %q", line, want)
				}
			}
		})
	}
}
