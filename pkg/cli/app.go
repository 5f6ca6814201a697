package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nimburion/docflow/pkg/accounts"
	"github.com/nimburion/docflow/pkg/config"
	"github.com/nimburion/docflow/pkg/documents"
	"github.com/nimburion/docflow/pkg/health"
	"github.com/nimburion/docflow/pkg/middleware/session"
	"github.com/nimburion/docflow/pkg/observability/logger"
	"github.com/nimburion/docflow/pkg/observability/metrics"
	"github.com/nimburion/docflow/pkg/observability/tracing"
	"github.com/nimburion/docflow/pkg/scheduler"
	"github.com/nimburion/docflow/pkg/server"
	"github.com/nimburion/docflow/pkg/shutdown"
	"github.com/nimburion/docflow/pkg/store"
	"github.com/nimburion/docflow/pkg/store/postgres"
	"github.com/nimburion/docflow/pkg/store/redis"
	"github.com/nimburion/docflow/pkg/version"
)

const abortGracePeriod = 5 * time.Second

// BuildOptions injects pre-opened connections and process hooks. Nil connections are
// opened from the configuration.
type BuildOptions struct {
	DB            *sql.DB
	Redis         goredis.UniversalClient
	InitSuperuser bool
	// Exit replaces os.Exit at the end of the shutdown sequence.
	Exit func(code int)
}

// App is a fully wired docflow-server process.
type App struct {
	cfg *config.Config
	log logger.Logger

	db           *postgres.Adapter
	redis        *redis.Adapter
	lockProvider scheduler.LockProvider
	runner       *scheduler.Runner
	runnerActive bool
	server       *server.Server
	coordinator  *shutdown.Coordinator
	tracer       *tracing.TracerProvider
	// conns holds every opened connection in open order.
	conns store.Set

	Health  *health.Registry
	Metrics *metrics.Registry
}

// BuildApp connects dependencies in startup order: database, superuser, redis, lock
// provider, sessions, progress runner, HTTP server and shutdown coordinator. A failure
// closes whatever was already opened.
func BuildApp(ctx context.Context, cfg *config.Config, log logger.Logger, opts BuildOptions) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	app := &App{
		cfg:     cfg,
		log:     log,
		Health:  health.NewRegistry(),
		Metrics: metrics.NewRegistry(),
	}
	defer func() {
		if err != nil {
			app.closeAll()
		}
	}()

	if app.tracer, err = tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version.AppVersion,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	}); err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	if app.db, err = openDatabase(cfg, log, opts.DB); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	app.conns.Add("database", app.db)
	app.Health.Register(health.NewDatabaseChecker("database", app.db))

	if opts.InitSuperuser {
		if err = initSuperuser(ctx, cfg, log, app.db.DB()); err != nil {
			return nil, err
		}
	}

	if needsRedis(cfg) {
		if app.redis, err = openRedis(cfg, log, opts.Redis); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.conns.Add("redis", app.redis)
		app.Health.Register(health.NewCacheChecker("redis", app.redis))
	}

	if app.lockProvider, err = newLockProvider(ctx, cfg, log, app); err != nil {
		return nil, fmt.Errorf("create lock provider: %w", err)
	}
	app.conns.Add("lock_provider", app.lockProvider)
	app.Health.Register(scheduler.NewLockProviderHealthChecker("lock_provider", app.lockProvider, cfg.Lock.OperationTimeout))

	sessions, err := newSessionInterface(cfg, app)
	if err != nil {
		return nil, fmt.Errorf("create session interface: %w", err)
	}

	progress, err := documents.NewService(app.db, log)
	if err != nil {
		return nil, err
	}
	app.runner, err = scheduler.NewRunner(app.lockProvider, progress.UpdateProgress, log, scheduler.RunnerConfig{
		Name:         cfg.Lock.Name,
		PollInterval: cfg.Lock.PollInterval,
		LockTimeout:  cfg.Lock.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create runner: %w", err)
	}

	for _, collector := range append(scheduler.Collectors(), session.Collectors()...) {
		if err = app.Metrics.Register(collector); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	router, err := server.NewRouter(server.RouterOptions{
		ServiceName: cfg.Service.Name,
		Logger:      log,
		Health:      app.Health,
		Metrics:     app.Metrics,
		Sessions:    sessions,
	})
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	serverCfg := server.Config{
		Port:            cfg.HTTP.Port,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}
	if cfg.HTTP.TLSCertFile != "" {
		if serverCfg.TLSConfig, err = server.LoadTLSConfig(cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile, cfg.HTTP.TLSCAFile); err != nil {
			return nil, err
		}
	}
	app.server = server.NewServer(serverCfg, router, log)

	coordinatorOpts := []shutdown.Option{shutdown.WithStopper(app.runner)}
	if opts.Exit != nil {
		coordinatorOpts = append(coordinatorOpts, shutdown.WithExit(opts.Exit))
	}
	app.coordinator = shutdown.NewCoordinator(shutdown.Config{
		GracePeriod: cfg.Shutdown.GracePeriod,
		HookTimeout: cfg.Shutdown.HookTimeout,
	}, log, coordinatorOpts...)
	app.coordinator.RegisterHook("http_server", app.server.Shutdown)
	for _, conn := range app.conns.Reverse() {
		app.coordinator.RegisterFinalizer(conn.Name, closeHook(conn.Adapter.Close))
	}
	app.coordinator.RegisterFinalizer("tracer", app.tracer.Shutdown)

	return app, nil
}

// Run starts the progress runner and the HTTP server and blocks until the shutdown
// sequence completes. A server that cannot start stops the runner, closes connections
// and returns the error.
func (a *App) Run(ctx context.Context) error {
	a.coordinator.Listen(ctx)

	if err := a.runner.Start(ctx); err != nil {
		a.abort()
		return fmt.Errorf("start runner: %w", err)
	}
	a.runnerActive = true

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			a.abort()
			return err
		}
	case <-a.coordinator.Done():
		return nil
	case <-ctx.Done():
	}
	a.coordinator.Shutdown()
	return nil
}

// Shutdown runs the coordinated stop sequence, as a signal would.
func (a *App) Shutdown() {
	a.coordinator.Shutdown()
}

// Done is closed when the shutdown sequence has completed.
func (a *App) Done() <-chan struct{} {
	return a.coordinator.Done()
}

// Addr returns the HTTP listen address once the server is up.
func (a *App) Addr() string {
	return a.server.Addr()
}

// Ready is closed once the HTTP server is listening.
func (a *App) Ready() <-chan struct{} {
	return a.server.Ready()
}

// abort releases everything without the shutdown sequence and without exiting.
func (a *App) abort() {
	a.runner.Stop()
	if a.runnerActive {
		select {
		case <-a.runner.Done():
		case <-time.After(abortGracePeriod):
			a.log.Warn("runner still running after abort grace period")
		}
	}
	a.closeAll()
}

func (a *App) closeAll() {
	if err := a.conns.CloseAll(); err != nil {
		a.log.Warn("closing connections failed", "error", err)
	}
	if a.tracer != nil {
		_ = a.tracer.Shutdown(context.Background())
	}
}

func openDatabase(cfg *config.Config, log logger.Logger, db *sql.DB) (*postgres.Adapter, error) {
	pgCfg := postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	}
	if db != nil {
		return postgres.NewAdapterWithDB(db, pgCfg, log)
	}
	return postgres.NewAdapter(pgCfg, log)
}

func openRedis(cfg *config.Config, log logger.Logger, client goredis.UniversalClient) (*redis.Adapter, error) {
	if client != nil {
		return redis.NewAdapterFromClient(client, log)
	}
	return redis.NewAdapter(redis.Config{
		URL:              cfg.Redis.URL,
		MaxConns:         cfg.Redis.MaxConns,
		OperationTimeout: cfg.Redis.OperationTimeout,
	}, log)
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Lock.Provider == config.LockProviderRedis ||
		(cfg.Session.Enabled && cfg.Session.Store == "redis")
}

func initSuperuser(ctx context.Context, cfg *config.Config, log logger.Logger, db *sql.DB) error {
	created, err := accounts.InitSuperuser(ctx, db, accounts.SuperuserOptions{
		Email:    cfg.Superuser.Email,
		Nickname: cfg.Superuser.Nickname,
		Password: cfg.Superuser.Password,
	})
	if err != nil {
		return fmt.Errorf("init superuser: %w", err)
	}
	if created {
		log.Info("superuser created", "email", cfg.Superuser.Email)
	} else {
		log.Info("superuser already exists", "email", cfg.Superuser.Email)
	}
	return nil
}

func newLockProvider(ctx context.Context, cfg *config.Config, log logger.Logger, app *App) (scheduler.LockProvider, error) {
	switch cfg.Lock.Provider {
	case config.LockProviderPostgres:
		return scheduler.NewPostgresLockProvider(ctx, app.db.DB(), scheduler.PostgresLockProviderConfig{
			Table:            cfg.Lock.Table,
			OperationTimeout: cfg.Lock.OperationTimeout,
		}, log)
	case config.LockProviderRedis:
		return scheduler.NewRedisLockProvider(app.redis.Client(), scheduler.RedisLockProviderConfig{
			Prefix:           cfg.Lock.Prefix,
			OperationTimeout: cfg.Lock.OperationTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported lock provider %q", cfg.Lock.Provider)
	}
}

func newSessionInterface(cfg *config.Config, app *App) (*session.Interface, error) {
	if !cfg.Session.Enabled {
		return nil, nil
	}
	var store session.Store
	switch cfg.Session.Store {
	case "redis":
		redisStore, err := session.NewRedisStore(app.redis.Client(), session.RedisConfig{
			OperationTimeout: cfg.Redis.OperationTimeout,
		})
		if err != nil {
			return nil, err
		}
		store = redisStore
		app.Health.Register(health.NewCacheChecker("session_store", redisStore))
	case "inmemory":
		store = session.NewInMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.Session.Store)
	}
	return session.NewInterface(store, session.Config{
		KeyPrefix:      cfg.Session.KeyPrefix,
		UseSigner:      cfg.Session.UseSigner,
		SecretKey:      cfg.Session.SecretKey,
		Permanent:      cfg.Session.Permanent,
		StaticFile:     cfg.Session.StaticFile,
		TTL:            cfg.Session.TTL,
		CookieName:     cfg.Session.CookieName,
		CookiePath:     cfg.Session.CookiePath,
		CookieDomain:   cfg.Session.CookieDomain,
		CookieSecure:   cfg.Session.CookieSecure,
		CookieHTTPOnly: cfg.Session.CookieHTTPOnly,
		CookieSameSite: cfg.Session.CookieSameSite,
	})
}

func closeHook(closeFn func() error) shutdown.HookFunc {
	return func(context.Context) error { return closeFn() }
}
