// Package requesttime provides middleware for request-scoped time and correlation ids.
// All operations within a single HTTP request use the same "now" timestamp.
package requesttime

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"immersion/pkg/requestcontext"
)

const requestIDHeader = "X-Request-ID"

// Middleware captures the current time at the start of the request and a request id
// (taken from X-Request-ID when present) and stores both in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		ctx = requestcontext.WithRequestID(ctx, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
