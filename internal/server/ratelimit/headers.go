package ratelimit

import (
	"net/http"
	"strconv"
)

// WriteHeaders sets the X-RateLimit-* headers, plus Retry-After when the
// request was throttled.
func WriteHeaders(h http.Header, res Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if !res.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
	}
}

// ResponseWriter adds the rate limit headers before the status line is sent.
type ResponseWriter struct {
	http.ResponseWriter
	res         Result
	wroteHeader bool
}

// NewResponseWriter wraps w.
func NewResponseWriter(w http.ResponseWriter, res Result) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, res: res}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		WriteHeaders(rw.Header(), rw.res)
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap is used by http.ResponseController.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Key returns the bucket key of a client for a tier.
func Key(tier *Tier, clientIP string) string {
	return "ip:" + clientIP + ":" + tier.Name
}
