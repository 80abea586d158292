package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/buildandburn/buildandburn/pkg/engine"
	"github.com/buildandburn/buildandburn/pkg/engine/lifecycle"
	"github.com/buildandburn/buildandburn/pkg/policy"
	"github.com/buildandburn/buildandburn/pkg/provision"
	"github.com/buildandburn/buildandburn/pkg/stores"
	"github.com/buildandburn/buildandburn/pkg/telemetry"
)

var (
	// Global flags
	logLevel  string
	logFormat string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "buildandburn",
		Short: "Build and Burn - disposable cloud environments",
		Long: `Build and Burn creates complete disposable environments from a single
manifest: a Kubernetes cluster, managed infrastructure dependencies, and
your services deployed on top. When you are done, burn it all down.

A manifest declares the project, its infrastructure dependencies
(database, queue, redis, kafka), and the services to run. One command
brings everything up, one command tears it down.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")

	rootCmd.AddCommand(newUpCommand())
	rootCmd.AddCommand(newDownCommand())
	rootCmd.AddCommand(newInfoCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}

func setupLogging() error {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  logLevel,
		Format: logFormat,
		Output: "stderr",
	})
	if err != nil {
		return err
	}
	log.Logger = logger
	return nil
}

// telemetryConfig builds the telemetry configuration from the global
// flags and the BB_* environment: tracing and metrics stay off unless
// BB_TRACE_EXPORTER or BB_METRICS_ADDR asks for them.
func telemetryConfig() *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if addr := os.Getenv("BB_METRICS_ADDR"); addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = addr
	}
	if exporter := os.Getenv("BB_TRACE_EXPORTER"); exporter != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = exporter
		cfg.Tracing.Endpoint = os.Getenv("BB_TRACE_ENDPOINT")
	}
	return cfg
}

// newController assembles a lifecycle controller over the environment
// index. The returned cleanup shuts telemetry down and closes the
// store.
func newController(ctx context.Context) (*lifecycle.Controller, func(), error) {
	home, err := engine.Home()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create home directory: %w", err)
	}

	tel, err := telemetry.NewTelemetry(telemetryConfig())
	if err != nil {
		return nil, nil, err
	}
	log.Logger = tel.Logger
	if err := tel.Metrics.StartMetricsServer(); err != nil {
		log.Warn().Err(err).Msg("Failed to start metrics endpoint")
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: engine.IndexPath(home)})
	if err != nil {
		return nil, nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	policies, err := policy.NewEngine(tel.Logger)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	controller := lifecycle.NewController(lifecycle.Config{
		Store:     store,
		Policies:  policies,
		Timeouts:  provision.TimeoutsFromEnv(),
		Home:      home,
		Logger:    tel.Logger,
		Telemetry: tel,
		Confirm:   confirmPrompt,
	})
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
		store.Close()
	}
	return controller, cleanup, nil
}

// confirmPrompt asks a yes/no question on the terminal.
func confirmPrompt(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// maskSensitive hides values whose key suggests a credential.
func maskSensitive(key, value string) string {
	lower := strings.ToLower(key)
	if strings.Contains(lower, "password") || strings.Contains(lower, "secret") || strings.Contains(lower, "token") {
		return "(hidden for security)"
	}
	return value
}
