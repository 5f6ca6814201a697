// Package config loads docflow-server settings from defaults, an optional YAML file, an
// optional secrets file and DOCFLOW_* environment variables.
package config

import "time"

// Lock provider constants
const (
	// LockProviderRedis stores leases as Redis keys
	LockProviderRedis = "redis"
	// LockProviderPostgres stores leases as rows in the metadata database
	LockProviderPostgres = "postgres"
)

// DefaultEnvPrefix prefixes every bound environment variable.
const DefaultEnvPrefix = "DOCFLOW"

// Config is the root configuration structure for docflow-server
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	HTTP          HTTPConfig          `mapstructure:"http" yaml:"http"`
	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	Redis         RedisConfig         `mapstructure:"redis" yaml:"redis"`
	Lock          LockConfig          `mapstructure:"lock" yaml:"lock"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown" yaml:"shutdown"`
	Session       SessionConfig       `mapstructure:"session" yaml:"session"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
	Superuser     SuperuserConfig     `mapstructure:"superuser" yaml:"superuser"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// TLS is enabled when both cert and key are set; a CA file additionally requires client certs.
	TLSCertFile string `mapstructure:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file" yaml:"tls_key_file"`
	TLSCAFile   string `mapstructure:"tls_ca_file" yaml:"tls_ca_file"`
}

// DatabaseConfig configures the metadata database. Only postgres is supported.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" yaml:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

// RedisConfig configures the shared Redis client used by locks and sessions.
type RedisConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	MaxConns         int           `mapstructure:"max_conns" yaml:"max_conns"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// LockConfig configures the lock-guarded progress runner.
type LockConfig struct {
	Provider         string        `mapstructure:"provider" yaml:"provider"` // redis, postgres
	Name             string        `mapstructure:"name" yaml:"name"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Prefix           string        `mapstructure:"prefix" yaml:"prefix"`
	Table            string        `mapstructure:"table" yaml:"table"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// ShutdownConfig configures the signal-driven shutdown sequence.
type ShutdownConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
	HookTimeout time.Duration `mapstructure:"hook_timeout" yaml:"hook_timeout"`
}

// SessionConfig configures Redis-backed browser sessions.
type SessionConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	Store          string        `mapstructure:"store" yaml:"store"` // redis, inmemory
	TTL            time.Duration `mapstructure:"ttl" yaml:"ttl"`
	KeyPrefix      string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	UseSigner      bool          `mapstructure:"use_signer" yaml:"use_signer"`
	SecretKey      string        `mapstructure:"secret_key" yaml:"secret_key"`
	Permanent      bool          `mapstructure:"permanent" yaml:"permanent"`
	StaticFile     bool          `mapstructure:"static_file" yaml:"static_file"`
	CookieName     string        `mapstructure:"cookie_name" yaml:"cookie_name"`
	CookiePath     string        `mapstructure:"cookie_path" yaml:"cookie_path"`
	CookieDomain   string        `mapstructure:"cookie_domain" yaml:"cookie_domain"`
	CookieSecure   bool          `mapstructure:"cookie_secure" yaml:"cookie_secure"`
	CookieHTTPOnly bool          `mapstructure:"cookie_http_only" yaml:"cookie_http_only"`
	CookieSameSite string        `mapstructure:"cookie_same_site" yaml:"cookie_same_site"` // lax, strict, none
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
	// Debug is set by --debug; it forces the debug log level.
	Debug bool `mapstructure:"debug" yaml:"debug"`

	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
}

// SuperuserConfig configures the optional bootstrap admin account.
type SuperuserConfig struct {
	Email    string `mapstructure:"email" yaml:"email"`
	Nickname string `mapstructure:"nickname" yaml:"nickname"`
	Password string `mapstructure:"password" yaml:"password"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "docflow-server",
			Environment: "development",
		},
		HTTP: HTTPConfig{
			Port:            9380,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			QueryTimeout:    10 * time.Second,
		},
		Redis: RedisConfig{
			URL:              "redis://localhost:6379/0",
			MaxConns:         10,
			OperationTimeout: 3 * time.Second,
		},
		Lock: LockConfig{
			Provider:         LockProviderRedis,
			Name:             "update_progress",
			Timeout:          60 * time.Second,
			PollInterval:     6 * time.Second,
			Prefix:           "docflow:lock",
			Table:            "docflow_locks",
			OperationTimeout: 3 * time.Second,
		},
		Shutdown: ShutdownConfig{
			GracePeriod: time.Second,
			HookTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			Enabled:        true,
			Store:          "redis",
			TTL:            time.Hour,
			KeyPrefix:      "docflow_session:",
			UseSigner:      true,
			CookieName:     "session",
			CookiePath:     "/",
			CookieHTTPOnly: true,
			CookieSameSite: "lax",
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingEndpoint:   "localhost:4317",
			TracingSampleRate: 0.1,
		},
		Superuser: SuperuserConfig{
			Email:    "admin@docflow.io",
			Nickname: "admin",
		},
	}
}
