package util

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestStatusRecorderDefaultsAndCapture(t *testing.T) {
	rec := &StatusRecorder{ResponseWriter: httptest.NewRecorder()}
	if rec.Code() != http.StatusOK {
		t.Fatalf("default code = %d", rec.Code())
	}
	rec.WriteHeader(http.StatusTeapot)
	if rec.Code() != http.StatusTeapot {
		t.Fatalf("code = %d", rec.Code())
	}
	if _, _, err := rec.Hijack(); err == nil {
		t.Fatalf("expected hijack error on recorder without hijacker")
	}
}

func TestWithRequestLogPassesThrough(t *testing.T) {
	h := WithRequestID(WithRequestLog(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWithRequestLogRedactsPathTokens(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(ContextWithLogger(req.Context(), logger)))
		})
	})
	r.Use(WithRequestLog)
	r.Get("/verify-token/{token}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	const secret = "eyJhbGciOiJIUzI1NiJ9.payload.sig"
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/verify-token/"+secret, nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/"+secret, nil))

	out := buf.String()
	if strings.Contains(out, secret) {
		t.Fatalf("token leaked into request log: %s", out)
	}
	if !strings.Contains(out, `"route":"/verify-token/{token}"`) || !strings.Contains(out, `"route":"unmatched"`) {
		t.Fatalf("missing route attributes: %s", out)
	}
}
