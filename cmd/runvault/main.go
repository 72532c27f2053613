// runvault is the durable artifact vault server and CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/runvault/runvault/internal/config"
	"github.com/runvault/runvault/internal/nfs"
	"github.com/runvault/runvault/internal/server"
	"github.com/runvault/runvault/internal/storage"
	"github.com/runvault/runvault/internal/svc"
	"github.com/runvault/runvault/internal/tracing"
	"github.com/runvault/runvault/internal/update"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// shutdownTimeout bounds how long a stopping server waits for in-flight
// requests to drain.
const shutdownTimeout = 10 * time.Second

var (
	cfgFile  string
	logLevel string

	// Service mode flag (hidden, used when running as a service)
	serviceRun bool
)

func main() {
	// Remove the .old binary a previous Windows update left behind
	update.CleanupOldBinary()

	// Check if running as a service (invoked by service manager)
	if svc.IsServiceMode(os.Args) {
		runAsService()
		return
	}

	rootCmd := &cobra.Command{
		Use:   "runvault",
		Short: "RunVault - durable artifact storage",
		Long: `RunVault stores job artifacts as objects under logical URIs and serves
them over an authenticated HTTP API, with optional share links, a live
event feed and a read-only NFS browse export.

QUICK START - server:

  # Generate a starter config with a fresh auth token:
  runvault init

  # Start the server:
  runvault serve --config server.yaml

  # Install as system service (optional):
  sudo runvault service install --config /etc/runvault/server.yaml

WORKING WITH OBJECTS (directly against a local store):

  runvault put /jobs/run-1/model model.json --meta round=3
  runvault get /jobs/run-1/model
  runvault list /jobs/run-1
  runvault tag /jobs/run-1/model best

For more help on any command, use: runvault <command> --help`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level")

	// Hidden service mode flag (used when running as a service)
	rootCmd.PersistentFlags().BoolVar(&serviceRun, "service-run", false, "Run as a service (internal use)")
	_ = rootCmd.PersistentFlags().MarkHidden("service-run")

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the vault server",
		Long: `Run the vault server in the foreground.

The server loads its configuration from --config, or from the first of
/etc/runvault/server.yaml, ~/.runvault/server.yaml and ./server.yaml
that exists. Stop it with Ctrl-C or SIGTERM; in-flight requests are
drained before the process exits.`,
		RunE: runServe,
	}
	rootCmd.AddCommand(serveCmd)

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("runvault %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Build Time: %s\n", BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	// Init command - generate starter config
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize runvault (generate a starter config)",
		Long: `Initialize RunVault by generating a server configuration file with a
fresh auth token.

Examples:
  # Write server.yaml into the current directory
  runvault init

  # Write the config somewhere else
  runvault init --output /etc/runvault`,
		RunE: runInit,
	}
	initCmd.Flags().StringP("output", "o", ".", "Output directory for the config file")
	rootCmd.AddCommand(initCmd)

	// Object commands - operate directly on a local store
	rootCmd.AddCommand(newPutCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newMetaCmd())
	rootCmd.AddCommand(newDetailCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newRmCmd())
	rootCmd.AddCommand(newTagCmd())

	// Merge command - ensemble round aggregation
	rootCmd.AddCommand(newMergeCmd())

	// Snapshot command - whole-store export/import
	rootCmd.AddCommand(newSnapshotCmd())

	// Service command - manage system service
	rootCmd.AddCommand(newServiceCmd())

	// Update command - self-update from GitHub releases
	rootCmd.AddCommand(newUpdateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging()
	logStartupBanner()

	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	applyLogConfig(cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutting down...")
		cancel()
	}()

	return runServeWithConfig(ctx, cfg)
}

// runServeWithConfig runs the vault server until ctx is cancelled or the
// listener fails.
func runServeWithConfig(ctx context.Context, cfg *config.ServerConfig) error {
	if cfg.Trace.Enabled {
		if err := tracing.Init(int(cfg.Trace.BufferSize.Bytes())); err != nil {
			log.Warn().Err(err).Msg("failed to start flight recorder")
		} else {
			log.Info().Msg("runtime tracing enabled")
			defer tracing.Stop()
		}
	}

	store, err := storage.Open(cfg.DataDir, cfg.URIRoot)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	srv, err := server.NewServer(cfg, store)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	srv.SetVersion(Version)
	srv.StartCollector(ctx)

	// Optional read-only NFS browse export, sharing the server's audit sink
	var nfsSrv *nfs.Server
	if cfg.NFS.Enabled {
		nfsSrv = nfs.NewServer(store, srv.Audit(), nfs.Config{Address: cfg.NFS.Listen})
		if err := nfsSrv.Start(); err != nil {
			return fmt.Errorf("start nfs gateway: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			if nfsSrv != nil {
				_ = nfsSrv.Stop()
			}
			return fmt.Errorf("vault server: %w", err)
		}
	}

	if nfsSrv != nil {
		if err := nfsSrv.Stop(); err != nil {
			log.Warn().Err(err).Msg("stop nfs gateway")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

// runAsService runs the application as a system service.
// This is called when the service manager starts the application with the
// --service-run flag.
func runAsService() {
	// Set up logging directly to a file since launchd/kardianos-service
	// may not properly redirect stderr
	setupServiceLogging()
	logStartupBanner()

	// Parse the config path manually; cobra never runs in service mode
	var configPath string
	for i, arg := range os.Args {
		if (arg == "--config" || arg == "-c") && i+1 < len(os.Args) {
			configPath = os.Args[i+1]
		}
	}
	if configPath == "" {
		configPath = svc.DefaultConfigPath()
	}

	log.Info().Str("config", configPath).Msg("starting as service")

	cfg := &svc.ServiceConfig{
		Name:        svc.DefaultServiceName(),
		DisplayName: svc.DefaultDisplayName(),
		Description: svc.DefaultDescription(),
		ConfigPath:  configPath,
	}

	prg := &svc.Program{
		ConfigPath: configPath,
		RunServe:   runServeFromService,
	}

	if err := svc.Run(prg, cfg); err != nil {
		log.Fatal().Err(err).Msg("service error")
	}
}

// runServeFromService runs the server from within a service.
func runServeFromService(ctx context.Context, configPath string) error {
	log.Info().Str("config_path", configPath).Msg("runServeFromService starting")

	if configPath == "" {
		return fmt.Errorf("config file required")
	}
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	applyLogConfig(cfg)

	log.Info().
		Str("listen", cfg.Listen).
		Str("data_dir", cfg.DataDir).
		Msg("config loaded")

	return runServeWithConfig(ctx, cfg)
}

// nolint:revive // args required by cobra.Command RunE signature
func runInit(cmd *cobra.Command, args []string) error {
	setupLogging()

	outputDir, _ := cmd.Flags().GetString("output")

	authToken, err := config.GenerateAuthToken()
	if err != nil {
		return fmt.Errorf("generate auth token: %w", err)
	}

	configPath := filepath.Join(outputDir, "server.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}
	if err := writeServerConfig(configPath, authToken); err != nil {
		return fmt.Errorf("write server config: %w", err)
	}
	fmt.Printf("Server config generated: %s\n", configPath)

	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit server.yaml with your settings (data_dir in particular)")
	fmt.Println("  2. runvault serve --config server.yaml")
	fmt.Println("  3. Keep the auth token secret; clients pass it as a Bearer token")

	return nil
}

func writeServerConfig(path, authToken string) error {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "runvault"
	}

	config := fmt.Sprintf(`# RunVault Server Config
name: "%s"
listen: ":8700"
data_dir: "/var/lib/runvault"
auth_token: "%s"
log_level: "info"
log_format: "console"

audit:
  enabled: true

metrics:
  enabled: true

limits:
  requests_per_second: 0
  max_object_size: "512MB"

nfs:
  enabled: false
  listen: ":2049"

shares:
  enabled: true
  default_ttl: "24h"
`, hostname, authToken)

	return os.WriteFile(path, []byte(config), 0600)
}

// loadServerConfig loads the server config from --config or the first
// default location that exists.
func loadServerConfig() (*config.ServerConfig, error) {
	if cfgFile != "" {
		return config.LoadServerConfig(cfgFile)
	}

	candidates := defaultConfigCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			log.Debug().Str("config", path).Msg("using config file")
			return config.LoadServerConfig(path)
		}
	}

	return nil, fmt.Errorf("no config file found (tried %s)\nRun 'runvault init' to generate one, or pass --config", strings.Join(candidates, ", "))
}

func defaultConfigCandidates() []string {
	candidates := []string{svc.DefaultConfigPath()}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".runvault", "server.yaml"))
	}
	return append(candidates, "server.yaml")
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// applyLogConfig reapplies log level and output format from a loaded config.
func applyLogConfig(cfg *config.ServerConfig) {
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
		log.Debug().Str("level", cfg.LogLevel).Msg("log level configured")
	}
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// logStartupBanner logs the application startup banner with version information.
func logStartupBanner() {
	banner := `
╔══════════════════════════════════════════════════╗
║                                                  ║
║   RunVault                                       ║
║   Durable artifact storage for training runs     ║
║                                                  ║
╚══════════════════════════════════════════════════╝`

	fmt.Fprintln(os.Stderr, banner)
	fmt.Fprintf(os.Stderr, "\n  Version:    %s\n", Version)
	fmt.Fprintf(os.Stderr, "  Commit:     %s\n", Commit)
	fmt.Fprintf(os.Stderr, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(os.Stderr, "  Go:         %s\n", runtime.Version())
	fmt.Fprintf(os.Stderr, "  OS/Arch:    %s/%s\n\n", runtime.GOOS, runtime.GOARCH)
}

// setupServiceLogging configures logging for service mode.
// This writes directly to a file because launchd/kardianos-service
// may not properly redirect stderr.
// Default level is Info; the config can override it after loading.
func setupServiceLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Try to open log file for direct writing
	logPath := "/var/log/runvault-service.log"
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		// Fall back to stderr if we can't open the log file
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return
	}

	// Write to both file and stderr
	multi := io.MultiWriter(logFile, os.Stderr)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: multi, TimeFormat: time.RFC3339})
}
