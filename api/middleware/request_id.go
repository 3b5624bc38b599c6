package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/luiscamargo/farmfresh-backend/pkg/logger"
)

const RequestIDHeader = "X-Request-Id"

// RequestID attaches a request id to the context and response. Incoming ids
// are honored so call chains keep a single trace id.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}

			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
