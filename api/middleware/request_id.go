package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// maximum length accepted from the client before we mint our own
const maxRequestIDLen = 64

// RequestID propagates the caller's request id, or mints one, and scopes the
// logger to it. The id is echoed back so clients can correlate.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
