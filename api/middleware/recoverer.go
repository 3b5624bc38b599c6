package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/luiscamargo/farmfresh-backend/api/responses"
	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
	"github.com/luiscamargo/farmfresh-backend/pkg/logger"
)

// Recoverer converts panics into a 500 response instead of killing the
// connection. The stack is logged, never returned to the client.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}

					err := pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("panic: %v", rec))
					if logg != nil {
						ctx := logg.WithField(r.Context(), "stack", string(debug.Stack()))
						logg.Error(ctx, "request.panic", err)
					}
					responses.WriteError(r.Context(), logg, w, err)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
