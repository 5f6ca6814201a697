package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/nimburion/docflow/pkg/health"
	"github.com/nimburion/docflow/pkg/middleware/logging"
	"github.com/nimburion/docflow/pkg/middleware/recovery"
	"github.com/nimburion/docflow/pkg/middleware/requestid"
	"github.com/nimburion/docflow/pkg/middleware/requestsize"
	"github.com/nimburion/docflow/pkg/middleware/securityheaders"
	"github.com/nimburion/docflow/pkg/middleware/session"
	"github.com/nimburion/docflow/pkg/middleware/tracing"
	"github.com/nimburion/docflow/pkg/observability/logger"
	"github.com/nimburion/docflow/pkg/observability/metrics"
	"github.com/nimburion/docflow/pkg/version"
)

const maxSessionBody = 64 << 10

// RouterOptions wires the handlers served by NewRouter.
type RouterOptions struct {
	ServiceName string
	Logger      logger.Logger
	Health      *health.Registry
	Metrics     *metrics.Registry
	// Sessions enables /api/v1/session; nil leaves the route unregistered.
	Sessions *session.Interface
}

// NewRouter builds the gorilla/mux router for docflow-server.
//
// Routes:
//   - GET /healthz: aggregated health checks
//   - GET /version: build metadata
//   - GET /metrics: Prometheus exposition
//   - GET|PUT|DELETE /api/v1/session: read, update or clear the caller's session
func NewRouter(opts RouterOptions) (*mux.Router, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Health == nil {
		opts.Health = health.NewRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}

	r := mux.NewRouter()
	r.Use(
		requestid.RequestID(),
		recovery.Recovery(opts.Logger),
		securityheaders.Middleware(securityheaders.DefaultConfig()),
		tracing.Tracing(tracing.Config{
			TracerName:           opts.ServiceName,
			RouteName:            routeTemplate,
			ExcludedPathPrefixes: []string{"/healthz", "/metrics"},
		}),
		logging.Logging(opts.Logger, logging.DefaultConfig()),
		metrics.Middleware(routeTemplate),
	)

	r.Handle("/healthz", opts.Health.Handler()).Methods(http.MethodGet)
	r.Handle("/version", version.Handler(opts.ServiceName)).Methods(http.MethodGet)
	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)

	if opts.Sessions != nil {
		api := r.PathPrefix("/api/v1").Subrouter()
		api.Use(
			requestsize.Middleware(maxSessionBody),
			session.Middleware(opts.Sessions, opts.Logger),
		)
		api.HandleFunc("/session", getSession).Methods(http.MethodGet)
		api.HandleFunc("/session", putSession).Methods(http.MethodPut)
		api.HandleFunc("/session", deleteSession).Methods(http.MethodDelete)
	}
	return r, nil
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type sessionResponse struct {
	Values map[string]any `json:"values"`
}

type sessionUpdate struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Values: s.Values()})
}

func putSession(w http.ResponseWriter, r *http.Request) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	var update sessionUpdate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		if requestsize.IsTooLarge(err) {
			requestsize.WriteTooLarge(w, maxSessionBody)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(update.Key) == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	s.Set(update.Key, update.Value)
	writeJSON(w, http.StatusOK, sessionResponse{Values: s.Values()})
}

func deleteSession(w http.ResponseWriter, r *http.Request) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	s.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
