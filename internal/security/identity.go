// Package security carries the request-scoped concerns of the dispatcher:
// correlation IDs, caller identification, request validation and rate limiting.
// Authentication itself is an external collaborator; this package only decides
// whether a request is well-formed enough to reach the ledger.
package security

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"

	// AccountIDHeader carries the caller's account identifier. The transport
	// collaborator that authenticates callers is expected to set it; the
	// dispatcher only checks shape.
	AccountIDHeader = "X-Account-ID"
)

// accountIDRe matches well-formed account identifiers: alphanumeric with
// dots, dashes and underscores, 2-64 characters.
var accountIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{1,63}$`)

// ValidAccountID reports whether id is a well-formed account identifier.
func ValidAccountID(id string) bool {
	return accountIDRe.MatchString(id)
}

type correlationIDKey struct{}
type callerKey struct{}

// CorrelationID tags every request with a correlation ID, minting one when the
// caller did not supply it.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get(CorrelationIDHeader)
		if cid == "" {
			cid = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), correlationIDKey{}, cid)
		w.Header().Set(CorrelationIDHeader, cid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationIDFromContext returns the request's correlation ID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return s
	}
	return ""
}

// RequireCaller rejects requests without a well-formed account identifier
// header and stores the identifier in the context for handlers.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get(AccountIDHeader)
		if !ValidAccountID(caller) {
			WriteJSONError(w, r, http.StatusBadRequest, "invalid_account")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFromContext returns the caller account set by RequireCaller, or "".
func CallerFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(callerKey{}).(string); ok {
		return s
	}
	return ""
}
