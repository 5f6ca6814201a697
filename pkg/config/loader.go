package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const redacted = "***"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a new ViperLoader. configFile may be empty; envPrefix defaults
// to DOCFLOW.
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: strings.TrimSpace(configFile),
		envPrefix:  envPrefix,
	}
}

// ConfigFile returns the explicitly configured file path, if any.
func (l *ViperLoader) ConfigFile() string {
	return l.configFile
}

// Load loads configuration with precedence: ENV > secrets file > config file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	secretsFile, err := l.discoverSecretsFile()
	if err != nil {
		return nil, err
	}
	if secretsFile != "" {
		secretsViper := viper.New()
		secretsViper.SetConfigFile(secretsFile)
		if err := secretsViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read secrets file %s: %w", secretsFile, err)
		}
		if err := v.MergeConfigMap(secretsViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("failed to merge secrets: %w", err)
		}
	}

	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// bindEnvVars binds every known key to PREFIX_SECTION_FIELD, e.g. lock.poll_interval to
// DOCFLOW_LOCK_POLL_INTERVAL.
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	keys := v.AllKeys()
	sort.Strings(keys)
	for _, key := range keys {
		_ = v.BindEnv(key, l.envName(key))
	}
	_ = v.BindEnv("database.url", l.envName("database.url"), l.prefixedEnv("DB_URL"))
}

func (l *ViperLoader) envName(key string) string {
	return l.prefixedEnv(strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// discoverSecretsFile checks PREFIX_SECRETS_FILE first, then secrets.<ext> next to the
// config file. An explicit but unusable path is an error.
func (l *ViperLoader) discoverSecretsFile() (string, error) {
	secretsEnv := l.prefixedEnv("SECRETS_FILE")
	if raw, ok := os.LookupEnv(secretsEnv); ok {
		secretsFile := strings.TrimSpace(raw)
		if secretsFile == "" {
			return "", fmt.Errorf("%s is set but empty", secretsEnv)
		}
		info, err := os.Stat(secretsFile)
		if err != nil {
			return "", fmt.Errorf("%s points to an inaccessible file %s: %w", secretsEnv, secretsFile, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s must point to a file, got directory %s", secretsEnv, secretsFile)
		}
		return secretsFile, nil
	}

	if l.configFile != "" {
		dir := filepath.Dir(l.configFile)
		secretsFile := filepath.Join(dir, "secrets"+filepath.Ext(l.configFile))
		if info, err := os.Stat(secretsFile); err == nil && !info.IsDir() && secretsFile != l.configFile {
			return secretsFile, nil
		}
	}
	return "", nil
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)
	v.SetDefault("http.tls_cert_file", cfg.HTTP.TLSCertFile)
	v.SetDefault("http.tls_key_file", cfg.HTTP.TLSKeyFile)
	v.SetDefault("http.tls_ca_file", cfg.HTTP.TLSCAFile)

	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", cfg.Database.ConnMaxIdleTime)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)

	v.SetDefault("redis.url", cfg.Redis.URL)
	v.SetDefault("redis.max_conns", cfg.Redis.MaxConns)
	v.SetDefault("redis.operation_timeout", cfg.Redis.OperationTimeout)

	v.SetDefault("lock.provider", cfg.Lock.Provider)
	v.SetDefault("lock.name", cfg.Lock.Name)
	v.SetDefault("lock.timeout", cfg.Lock.Timeout)
	v.SetDefault("lock.poll_interval", cfg.Lock.PollInterval)
	v.SetDefault("lock.prefix", cfg.Lock.Prefix)
	v.SetDefault("lock.table", cfg.Lock.Table)
	v.SetDefault("lock.operation_timeout", cfg.Lock.OperationTimeout)

	v.SetDefault("shutdown.grace_period", cfg.Shutdown.GracePeriod)
	v.SetDefault("shutdown.hook_timeout", cfg.Shutdown.HookTimeout)

	v.SetDefault("session.enabled", cfg.Session.Enabled)
	v.SetDefault("session.store", cfg.Session.Store)
	v.SetDefault("session.ttl", cfg.Session.TTL)
	v.SetDefault("session.key_prefix", cfg.Session.KeyPrefix)
	v.SetDefault("session.use_signer", cfg.Session.UseSigner)
	v.SetDefault("session.secret_key", cfg.Session.SecretKey)
	v.SetDefault("session.permanent", cfg.Session.Permanent)
	v.SetDefault("session.static_file", cfg.Session.StaticFile)
	v.SetDefault("session.cookie_name", cfg.Session.CookieName)
	v.SetDefault("session.cookie_path", cfg.Session.CookiePath)
	v.SetDefault("session.cookie_domain", cfg.Session.CookieDomain)
	v.SetDefault("session.cookie_secure", cfg.Session.CookieSecure)
	v.SetDefault("session.cookie_http_only", cfg.Session.CookieHTTPOnly)
	v.SetDefault("session.cookie_same_site", cfg.Session.CookieSameSite)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.debug", cfg.Observability.Debug)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)

	v.SetDefault("superuser.email", cfg.Superuser.Email)
	v.SetDefault("superuser.nickname", cfg.Superuser.Nickname)
	v.SetDefault("superuser.password", cfg.Superuser.Password)
}

// Validate normalizes cfg and returns every problem found, joined.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Service.Name) == "" {
		errs = append(errs, errors.New("service.name is required"))
	}
	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", cfg.HTTP.Port))
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("http.tls_cert_file and http.tls_key_file must be set together"))
	}
	if cfg.HTTP.TLSCAFile != "" && cfg.HTTP.TLSCertFile == "" {
		errs = append(errs, errors.New("http.tls_ca_file requires http.tls_cert_file and http.tls_key_file"))
	}

	if strings.TrimSpace(cfg.Database.URL) == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns && cfg.Database.MaxOpenConns > 0 {
		errs = append(errs, errors.New("database.max_idle_conns cannot exceed database.max_open_conns"))
	}

	cfg.Lock.Provider = strings.ToLower(strings.TrimSpace(cfg.Lock.Provider))
	switch cfg.Lock.Provider {
	case LockProviderRedis, LockProviderPostgres:
	default:
		errs = append(errs, fmt.Errorf("invalid lock.provider: %s (must be one of: redis, postgres)", cfg.Lock.Provider))
	}
	if strings.TrimSpace(cfg.Lock.Name) == "" {
		errs = append(errs, errors.New("lock.name is required"))
	}
	if cfg.Lock.Timeout <= 0 {
		errs = append(errs, errors.New("lock.timeout must be > 0"))
	}
	if cfg.Lock.PollInterval <= 0 {
		errs = append(errs, errors.New("lock.poll_interval must be > 0"))
	}

	if cfg.Redis.URL == "" && (cfg.Lock.Provider == LockProviderRedis || (cfg.Session.Enabled && cfg.Session.Store == "redis")) {
		errs = append(errs, errors.New("redis.url is required for redis locks or redis sessions"))
	} else if cfg.Redis.URL != "" {
		if u, err := url.Parse(cfg.Redis.URL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errs = append(errs, fmt.Errorf("redis.url must be a redis:// or rediss:// URL, got %q", cfg.Redis.URL))
		}
	}

	if cfg.Shutdown.GracePeriod < 0 {
		errs = append(errs, errors.New("shutdown.grace_period cannot be negative"))
	}
	if cfg.Shutdown.HookTimeout < 0 {
		errs = append(errs, errors.New("shutdown.hook_timeout cannot be negative"))
	}

	if cfg.Session.Enabled {
		cfg.Session.Store = strings.ToLower(strings.TrimSpace(cfg.Session.Store))
		if cfg.Session.Store != "redis" && cfg.Session.Store != "inmemory" {
			errs = append(errs, fmt.Errorf("invalid session.store: %s (must be one of: redis, inmemory)", cfg.Session.Store))
		}
		if cfg.Session.UseSigner && strings.TrimSpace(cfg.Session.SecretKey) == "" {
			errs = append(errs, errors.New("session.secret_key is required when session.use_signer is true"))
		}
		switch strings.ToLower(strings.TrimSpace(cfg.Session.CookieSameSite)) {
		case "", "lax", "strict", "none":
		default:
			errs = append(errs, fmt.Errorf("invalid session.cookie_same_site: %s (must be one of: lax, strict, none)", cfg.Session.CookieSameSite))
		}
		if strings.EqualFold(cfg.Session.CookieSameSite, "none") && !cfg.Session.CookieSecure {
			errs = append(errs, errors.New("session.cookie_secure must be true when session.cookie_same_site is none"))
		}
	}

	switch strings.ToLower(cfg.Observability.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s (must be one of: json, text)", cfg.Observability.LogFormat))
	}
	if cfg.Observability.TracingEnabled {
		if strings.TrimSpace(cfg.Observability.TracingEndpoint) == "" {
			errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
		}
		if cfg.Observability.TracingSampleRate < 0 || cfg.Observability.TracingSampleRate > 1 {
			errs = append(errs, fmt.Errorf("invalid observability.tracing_sample_rate: %v (must be between 0 and 1)", cfg.Observability.TracingSampleRate))
		}
	}

	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked, suitable for logging.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Database.URL != "" {
		out.Database.URL = redactURL(out.Database.URL)
	}
	if out.Redis.URL != "" {
		out.Redis.URL = redactURL(out.Redis.URL)
	}
	if out.Session.SecretKey != "" {
		out.Session.SecretKey = redacted
	}
	if out.Superuser.Password != "" {
		out.Superuser.Password = redacted
	}
	return &out
}

// YAML renders the redacted effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	return u.String()
}
