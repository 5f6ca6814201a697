package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const signerSalt = "docflow-session"

// Config controls how sessions are keyed, signed and written to cookies.
type Config struct {
	KeyPrefix string
	UseSigner bool
	SecretKey string
	// Permanent sets an Expires attribute of now+TTL; otherwise the cookie lasts for the
	// browser session.
	Permanent bool
	// StaticFile allows cookies on file responses.
	StaticFile     bool
	TTL            time.Duration
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite string // lax, strict, none
}

// DefaultConfig returns the defaults used by docflow-server.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:      "docflow_session:",
		UseSigner:      true,
		TTL:            DefaultTTL,
		CookieName:     "session",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSameSite: "lax",
	}
}

// Interface opens and saves sessions against a Store.
type Interface struct {
	store  Store
	signer *Signer
	cfg    Config
	now    func() time.Time
}

// NewInterface validates cfg and builds an Interface. Empty string fields take the
// DefaultConfig values.
func NewInterface(store Store, cfg Config) (*Interface, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	cfg = normalizeConfig(cfg)

	iface := &Interface{store: store, cfg: cfg, now: time.Now}
	if cfg.UseSigner {
		signer, err := NewSigner(cfg.SecretKey, signerSalt)
		if err != nil {
			return nil, err
		}
		iface.signer = signer
	}
	return iface, nil
}

// Config returns the normalized configuration.
func (i *Interface) Config() Config {
	return i.cfg
}

// OpenSession loads the session named by the request cookie. A missing, unsigned or
// unknown cookie yields a new session with a fresh id. Only store failures other than
// a miss return an error, together with a usable new session.
func (i *Interface) OpenSession(ctx context.Context, r *http.Request) (*Session, error) {
	sid := i.readSessionID(r)
	if sid != "" {
		raw, err := i.store.Get(ctx, i.storeKey(sid))
		switch {
		case err == nil:
			values := map[string]any{}
			if decodeErr := json.Unmarshal(raw, &values); decodeErr == nil {
				return newSession(sid, values), nil
			}
		case !errors.Is(err, ErrNotFound):
			fresh, genErr := i.freshSession()
			if genErr != nil {
				return nil, errors.Join(err, genErr)
			}
			return fresh, fmt.Errorf("open session: %w", err)
		}
	}
	return i.freshSession()
}

// SaveSession persists s and writes the matching cookie directive to w:
//   - unmodified sessions are left alone;
//   - file responses get no cookie unless StaticFile is set;
//   - emptied sessions are deleted and their cookie expired;
//   - everything else is stored for TTL and the (signed) id is set as the cookie.
func (i *Interface) SaveSession(ctx context.Context, s *Session, w http.ResponseWriter) error {
	if s == nil || !s.Modified() {
		recordSave("unmodified")
		return nil
	}
	if !i.cfg.StaticFile && IsFileResponse(w) {
		recordSave("static_file")
		return nil
	}

	key := i.storeKey(s.ID())
	if s.Empty() {
		err := i.store.Delete(ctx, key)
		i.clearCookie(w)
		recordSave("deleted")
		return err
	}

	if err := i.persist(ctx, s); err != nil {
		recordSave("error")
		return err
	}

	value := s.ID()
	if i.signer != nil {
		value = i.signer.Sign(value)
	}
	cookie := i.baseCookie(value)
	if i.cfg.Permanent {
		cookie.Expires = i.now().Add(i.cfg.TTL)
	}
	http.SetCookie(w, cookie)
	recordSave("stored")
	return nil
}

// sync brings the record in line with s without touching cookies.
func (i *Interface) sync(ctx context.Context, s *Session) error {
	if s.Empty() {
		return i.store.Delete(ctx, i.storeKey(s.ID()))
	}
	return i.persist(ctx, s)
}

// persist writes the record only.
func (i *Interface) persist(ctx context.Context, s *Session) error {
	payload, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("encode session payload: %w", err)
	}
	return i.store.Set(ctx, i.storeKey(s.ID()), payload, i.cfg.TTL)
}

func (i *Interface) freshSession() (*Session, error) {
	sid, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	s := newSession(sid, nil)
	s.isNew = true
	return s, nil
}

func (i *Interface) readSessionID(r *http.Request) string {
	if r == nil {
		return ""
	}
	cookie, err := r.Cookie(i.cfg.CookieName)
	if err != nil || cookie == nil {
		return ""
	}
	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return ""
	}
	if i.signer == nil {
		return value
	}
	sid, err := i.signer.Unsign(value)
	if err != nil {
		return ""
	}
	return sid
}

func (i *Interface) storeKey(sid string) string {
	return i.cfg.KeyPrefix + sid
}

func (i *Interface) baseCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     i.cfg.CookieName,
		Value:    value,
		Path:     i.cfg.CookiePath,
		Domain:   i.cfg.CookieDomain,
		Secure:   i.cfg.CookieSecure,
		HttpOnly: i.cfg.CookieHTTPOnly,
		SameSite: parseSameSite(i.cfg.CookieSameSite),
	}
}

func (i *Interface) clearCookie(w http.ResponseWriter) {
	cookie := i.baseCookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if strings.TrimSpace(cfg.CookieName) == "" {
		cfg.CookieName = def.CookieName
	}
	if strings.TrimSpace(cfg.CookiePath) == "" {
		cfg.CookiePath = def.CookiePath
	}
	if strings.TrimSpace(cfg.CookieSameSite) == "" {
		cfg.CookieSameSite = def.CookieSameSite
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return cfg
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
