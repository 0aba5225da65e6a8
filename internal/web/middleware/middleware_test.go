package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS_Origins(t *testing.T) {
	handler := CORS([]string{"https://facebuddy.app", " "})(okHandler())

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://facebuddy.app", true},
		{"http://localhost:5173", true},
		{"http://localhost", true},
		{"http://localhost.evil.com", false},
		{"https://evil.example", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed && got != tt.origin {
				t.Errorf("expected origin %q allowed, got %q", tt.origin, got)
			}
			if !tt.allowed && got != "" {
				t.Errorf("expected origin %q rejected, got %q", tt.origin, got)
			}
		})
	}
}

func TestCORS_Wildcard(t *testing.T) {
	handler := CORS([]string{"*"})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "https://anything.example" {
		t.Error("wildcard should allow every origin")
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/faces", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", rec.Code)
	}
	if called {
		t.Error("preflight must not reach the next handler")
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders()(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing frame options header")
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	handler := chiMiddleware.RequestID(RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("hello"))
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}

	first := entries[0].ContextMap()
	if first["status"] != int64(200) || first["bytes"] != int64(5) || first["path"] != "/ok" {
		t.Errorf("unexpected fields %v", first)
	}
	if _, ok := first["request_id"]; !ok {
		t.Error("expected request_id field")
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Errorf("expected info level, got %s", entries[0].Level)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("expected warn level for 404, got %s", entries[1].Level)
	}
}
