// Request-scoped middleware applied around the router.

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/maruel/jsondb/internal/metrics"
	"github.com/maruel/jsondb/internal/server/reqctx"
)

// withRequestID tags every request with an id, reusing a well-formed
// X-Request-ID header sent by a proxy.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(reqctx.WithRequestID(r.Context(), id)))
	})
}

// withClientIP resolves the client address once for the access log and the
// rate limiter.
func withClientIP(next http.Handler, trustProxy bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := reqctx.GetClientIP(r, trustProxy)
		next.ServeHTTP(w, r.WithContext(reqctx.WithClientIP(r.Context(), ip)))
	})
}

// statusRecorder remembers the status code sent.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// AccessLogMessage is the message of the one log record emitted per request.
const AccessLogMessage = "http"

// withAccessLog logs one line per request and records it in m, which may be
// nil. next must be the ServeMux so the matched pattern is known afterwards.
func withAccessLog(next http.Handler, m *metrics.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		d := time.Since(start)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if m != nil {
			m.ObserveRequest(r.Method, route, rec.status, d)
		}
		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, AccessLogMessage,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"dur", d.Round(time.Microsecond),
			"ip", reqctx.ClientIP(r.Context()),
			"rid", reqctx.RequestID(r.Context()),
		)
	})
}
