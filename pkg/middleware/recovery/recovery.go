// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/nimburion/docflow/pkg/middleware/requestid"
	"github.com/nimburion/docflow/pkg/observability/logger"
)

// Recovery recovers panics in downstream handlers, logs them with the stack trace and
// answers 500 when the response has not started yet.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				requestID := requestid.GetRequestID(r.Context())
				log.Error("panic recovered",
					"request_id", requestID,
					"panic", p,
					"stack", string(debug.Stack()),
				)
				if tw.written {
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				if err := json.NewEncoder(w).Encode(map[string]string{
					"error":      "internal_server_error",
					"message":    "an unexpected error occurred",
					"request_id": requestID,
				}); err != nil {
					log.Error("failed to send error response", "request_id", requestID, "error", err)
				}
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

type trackingWriter struct {
	http.ResponseWriter
	written bool
}

func (w *trackingWriter) WriteHeader(status int) {
	w.written = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
