// Package securityheaders sets browser hardening headers on every response.
package securityheaders

import (
	"fmt"
	"net/http"
	"strings"
)

// Config defines the headers applied by Middleware.
type Config struct {
	Enabled bool

	// AllowedHosts rejects requests for other Host values with 403. Empty allows all.
	AllowedHosts []string
	// SSLProxyHeaders marks a request as secure when a header carries the given value.
	SSLProxyHeaders map[string]string

	STSSeconds            int64
	STSIncludeSubdomains  bool
	FrameOptions          string
	ContentTypeNosniff    bool
	ContentSecurityPolicy string
	ReferrerPolicy        string
}

// DefaultConfig returns strict defaults for a JSON API.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		FrameOptions:          "DENY",
		ContentTypeNosniff:    true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
}

// Middleware applies the configured headers before the handler runs.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowedHost(r, cfg.AllowedHosts) {
				http.Error(w, "forbidden host", http.StatusForbidden)
				return
			}
			applyHeaders(w.Header(), cfg, isSecure(r, cfg))
			next.ServeHTTP(w, r)
		})
	}
}

func applyHeaders(h http.Header, cfg Config, secure bool) {
	if cfg.FrameOptions != "" {
		h.Set("X-Frame-Options", cfg.FrameOptions)
	}
	if cfg.ContentTypeNosniff {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	if cfg.ContentSecurityPolicy != "" {
		h.Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
	}
	if cfg.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", cfg.ReferrerPolicy)
	}
	// HSTS is only meaningful over TLS.
	if secure && cfg.STSSeconds > 0 {
		sts := fmt.Sprintf("max-age=%d", cfg.STSSeconds)
		if cfg.STSIncludeSubdomains {
			sts += "; includeSubDomains"
		}
		h.Set("Strict-Transport-Security", sts)
	}
}

func allowedHost(r *http.Request, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host := r.Host
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), host) {
			return true
		}
	}
	return false
}

func isSecure(r *http.Request, cfg Config) bool {
	if r.TLS != nil {
		return true
	}
	for name, want := range cfg.SSLProxyHeaders {
		if strings.EqualFold(strings.TrimSpace(r.Header.Get(name)), want) {
			return true
		}
	}
	return false
}
