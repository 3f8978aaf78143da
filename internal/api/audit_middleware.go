package api

import (
	"net/http"
	"strconv"

	"github.com/davidterpay/transfer-contract/internal/security"
	"github.com/davidterpay/transfer-contract/pkg/audit"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func AuditMiddleware(a Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			a.Append(audit.Record{
				Operation:     r.Method + " " + r.URL.Path,
				Actor:         r.Header.Get(security.AccountIDHeader),
				Outcome:       strconv.Itoa(sw.status),
				CorrelationID: security.CorrelationIDFromContext(r.Context()),
			})
		})
	}
}
