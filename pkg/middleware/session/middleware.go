package session

import (
	"context"
	"net/http"

	"github.com/nimburion/docflow/pkg/observability/logger"
)

// Middleware opens the request session before next runs and saves it right before the
// response header is written, so the cookie directive can still be attached. Changes
// made after the header was written are persisted to the store without a new cookie.
// Save failures are logged and never alter the response.
func Middleware(iface *Interface, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			s, err := iface.OpenSession(ctx, r)
			if err != nil {
				log.Error("session open failed", "error", err)
				if s == nil {
					next.ServeHTTP(w, r)
					return
				}
			}

			sw := &sessionWriter{ResponseWriter: w, iface: iface, session: s, ctx: ctx, log: log, savedVersion: -1}
			next.ServeHTTP(sw, r.WithContext(NewContext(ctx, s)))

			if !sw.saved {
				sw.save()
				return
			}
			if s.Modified() && s.version != sw.savedVersion {
				if err := iface.sync(context.WithoutCancel(ctx), s); err != nil {
					log.Error("session late persist failed", "session_id", s.ID(), "error", err)
				}
			}
		})
	}
}

// ServeFile marks the response as a file body and serves name. Without StaticFile the
// session cookie is withheld from such responses.
func ServeFile(w http.ResponseWriter, r *http.Request, name string) {
	MarkFileResponse(w)
	http.ServeFile(w, r, name)
}

// MarkFileResponse flags w, or a session writer it wraps, as carrying a file body.
func MarkFileResponse(w http.ResponseWriter) {
	if sw := findSessionWriter(w); sw != nil {
		sw.fileBody = true
	}
}

// IsFileResponse reports whether MarkFileResponse was called for w.
func IsFileResponse(w http.ResponseWriter) bool {
	sw := findSessionWriter(w)
	return sw != nil && sw.fileBody
}

func findSessionWriter(w http.ResponseWriter) *sessionWriter {
	for w != nil {
		if sw, ok := w.(*sessionWriter); ok {
			return sw
		}
		unwrapper, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return nil
		}
		w = unwrapper.Unwrap()
	}
	return nil
}

type sessionWriter struct {
	http.ResponseWriter
	iface        *Interface
	session      *Session
	ctx          context.Context
	log          logger.Logger
	saved        bool
	savedVersion int
	fileBody     bool
}

func (w *sessionWriter) WriteHeader(status int) {
	w.save()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.save()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *sessionWriter) save() {
	if w.saved {
		return
	}
	w.saved = true
	w.savedVersion = w.session.version
	if err := w.iface.SaveSession(context.WithoutCancel(w.ctx), w.session, w); err != nil {
		w.log.Error("session save failed", "session_id", w.session.ID(), "error", err)
	}
}
