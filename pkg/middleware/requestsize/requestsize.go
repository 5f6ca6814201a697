// Package requestsize caps request body sizes.
package requestsize

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Middleware enforces a maximum request body size in bytes. A non-positive maxBytes
// disables the middleware. Handlers see an *http.MaxBytesError when reading past the
// limit and can report it with IsTooLarge.
func Middleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			// Fail fast when Content-Length is declared and exceeds the limit.
			if r.ContentLength > maxBytes {
				WriteTooLarge(w, maxBytes)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// IsTooLarge reports whether err came from reading past the body limit.
func IsTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// WriteTooLarge writes the 413 response.
func WriteTooLarge(w http.ResponseWriter, maxBytes int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusRequestEntityTooLarge)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":    "request_too_large",
		"message":  fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", maxBytes),
		"max_size": maxBytes,
	})
}
