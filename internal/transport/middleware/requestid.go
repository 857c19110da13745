package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/frahmantamala/attendance-management/pkg/logger"
)

const HeaderTraceID = "X-Trace-ID"

// RequestID tags the request logger with a trace id, taken from the caller
// when present, and echoes it back.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "trace_id", traceID)
		w.Header().Set(HeaderTraceID, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
