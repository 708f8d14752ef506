package middleware

import (
	"fmt"
	"net/http"

	"github.com/tranvanhung2003/digital-world-v1-sub001/api/responses"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/logger"
)

// Recoverer turns a downstream panic into a 500 instead of tearing down the
// connection. http.ErrAbortHandler is re-raised; the server uses it to abort
// the response on purpose.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				cause := recover()
				if cause == nil {
					return
				}
				if cause == http.ErrAbortHandler {
					panic(cause)
				}

				err := fmt.Errorf("panic: %v", cause)
				ctx := r.Context()
				if logg != nil {
					logg.Error(logg.WithField(ctx, "panic", cause), "panic.recovered", err)
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
