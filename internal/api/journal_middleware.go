package api

import (
	"net/http"
	"time"

	"github.com/example/custody-infra/internal/security"
)

// Recorder is the journal surface the API layer needs: one entry per
// completed request, hash-chained downstream.
type Recorder interface {
	Record(kind string, payload any)
}

type requestRecord struct {
	CorrelationID string `json:"correlation_id"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Status        int    `json:"status"`
	DurationMS    int64  `json:"duration_ms"`
}

// JournalMiddleware appends one journal entry per request, after the handler
// has produced its status.
func JournalMiddleware(rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			rec.Record("http_request", requestRecord{
				CorrelationID: security.CorrelationIDFromContext(r.Context()),
				Method:        r.Method,
				Path:          r.URL.Path,
				Status:        sw.status,
				DurationMS:    dur.Milliseconds(),
			})
		})
	}
}
