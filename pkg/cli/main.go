// Package cli builds the docflow-server command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nimburion/docflow/pkg/config"
	"github.com/nimburion/docflow/pkg/observability/logger"
	"github.com/nimburion/docflow/pkg/version"
)

const defaultServiceName = "docflow-server"

// ServerFunc runs the server until shutdown.
type ServerFunc func(ctx context.Context, cfg *config.Config, log logger.Logger, opts BuildOptions) error

// Options configures the root command.
type Options struct {
	ConfigPath string
	EnvPrefix  string
	// RunServer replaces the default bootstrap; tests use it to stop before connecting.
	RunServer ServerFunc
}

// flags holds values bound to the root persistent flags.
type flags struct {
	configPath    string
	secretFile    string
	serviceName   string
	showVersion   bool
	debug         bool
	initSuperuser bool
}

func (f *flags) registerPersistent(pf *pflag.FlagSet, opts Options) {
	pf.StringVarP(&f.configPath, "config-file", "c", opts.ConfigPath, "config file path")
	pf.StringVar(&f.secretFile, "secret-file", "", "path to secrets file (sets "+opts.EnvPrefix+"_SECRETS_FILE)")
	pf.StringVar(&f.serviceName, "service-name", "", "service name override")
	pf.BoolVar(&f.debug, "debug", false, "enable debug mode and debug logging")
}

func (f *flags) registerRoot(fs *pflag.FlagSet) {
	fs.BoolVar(&f.showVersion, "version", false, "print version information and exit")
	fs.BoolVar(&f.initSuperuser, "init-superuser", false, "create the superuser account when it does not exist")
}

// NewRootCommand creates the docflow-server command with version, config and
// healthcheck subcommands. Without a subcommand it runs the server.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}
	if opts.RunServer == nil {
		opts.RunServer = RunServer
	}

	f := &flags{}
	rootCmd := &cobra.Command{
		Use:           defaultServiceName,
		Short:         "docflow document processing server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			cfg, log, err := loadConfigAndLogger(opts.EnvPrefix, f)
			if err != nil {
				return err
			}
			return opts.RunServer(cmd.Context(), cfg, log, BuildOptions{InitSuperuser: f.initSuperuser})
		},
	}

	f.registerPersistent(rootCmd.PersistentFlags(), opts)
	f.registerRoot(rootCmd.Flags())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfigAndLogger(opts.EnvPrefix, f)
			if err != nil {
				return err
			}
			out, err := cfg.Redacted().YAML()
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "healthcheck",
		Short: "Check connectivity to the database, redis and lock provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger(opts.EnvPrefix, f)
			if err != nil {
				return err
			}
			return CheckDependencies(cmd.Context(), cmd.OutOrStdout(), cfg, log, BuildOptions{})
		},
	})

	return rootCmd
}

// loadConfigAndLogger loads and validates configuration, applies flag overrides and
// builds the logger. --debug forces the debug level.
func loadConfigAndLogger(envPrefix string, f *flags) (*config.Config, logger.Logger, error) {
	if err := applySecretFileFlag(envPrefix, f.secretFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.NewViperLoader(f.configPath, envPrefix).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Name = resolveServiceNameValue(cfg.Service.Name, defaultServiceName, f.serviceName)
	if f.debug {
		cfg.Observability.Debug = true
		cfg.Observability.LogLevel = string(logger.DebugLevel)
	}

	level, err := logger.ParseLogLevel(cfg.Observability.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewZapLogger(logger.Config{Level: level, Format: format})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	logConfigIfDebug(log, cfg)
	return cfg, log.With("service", cfg.Service.Name), nil
}

// RunServer builds the application and blocks until it has shut down.
func RunServer(ctx context.Context, cfg *config.Config, log logger.Logger, opts BuildOptions) error {
	info := version.Current(cfg.Service.Name)
	log.Info("starting docflow-server",
		"version", info.Version,
		"commit", info.Commit,
		"build_time", info.BuildTime,
		"debug", cfg.Observability.Debug,
	)
	app, err := BuildApp(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// CheckDependencies connects to every configured dependency, reports each check and
// fails when any is unhealthy.
func CheckDependencies(ctx context.Context, out io.Writer, cfg *config.Config, log logger.Logger, opts BuildOptions) error {
	opts.InitSuperuser = false
	app, err := BuildApp(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer app.abort()

	result := app.Health.Check(ctx)
	for _, check := range result.Checks {
		line := fmt.Sprintf("%-16s %s", check.Name, check.Status)
		if check.Error != "" {
			line += ": " + check.Error
		}
		fmt.Fprintln(out, line)
	}
	if !result.IsHealthy() {
		return fmt.Errorf("dependencies unhealthy: %s", result.Status)
	}
	return nil
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printVersion(out io.Writer) {
	info := version.Current(defaultServiceName)
	fmt.Fprintf(out, "Service:    %s\n", info.Service)
	fmt.Fprintf(out, "Version:    %s\n", info.Version)
	fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
	fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	if secretFilePath == "" {
		return nil
	}
	info, err := os.Stat(secretFilePath)
	if err != nil {
		return fmt.Errorf("secret file %s is not accessible: %w", secretFilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("secret file %s must not be a directory", secretFilePath)
	}
	return os.Setenv(resolveEnvPrefix(envPrefix)+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if log == nil || cfg == nil || !cfg.Observability.Debug {
		return
	}
	out, err := cfg.Redacted().YAML()
	if err != nil {
		log.Warn("failed to render effective configuration", "error", err)
		return
	}
	log.Debug("effective configuration", "config", string(out))
}

func resolveEnvPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return config.DefaultEnvPrefix
	}
	return strings.ToUpper(trimmed)
}

func resolveServiceNameValue(currentConfigName, defaultName, override string) string {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed
	}
	if configured := strings.TrimSpace(currentConfigName); configured != "" {
		return configured
	}
	if fallback := strings.TrimSpace(defaultName); fallback != "" {
		return fallback
	}
	return defaultServiceName
}
