package util

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"
)

// StatusRecorder captures the response status. It passes through Flush and
// Hijack so streaming and websocket handlers keep working behind it.
type StatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *StatusRecorder) WriteHeader(statusCode int) {
	r.Status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *StatusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *StatusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.Status == 0 {
		r.Status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

// Code returns the recorded status, defaulting to 200.
func (r *StatusRecorder) Code() int {
	if r.Status == 0 {
		return http.StatusOK
	}
	return r.Status
}

// WithRequestLog emits a structured log for each HTTP request. It logs the
// route pattern, never the raw path.
func WithRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &StatusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		LoggerFromContext(r.Context()).Info(
			"http_request",
			"method", r.Method,
			"route", RoutePattern(r),
			"status", rec.Code(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", ClientIPFromRequest(r),
		)
	})
}
