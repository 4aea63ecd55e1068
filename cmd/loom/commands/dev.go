package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomdev/loom/pkg/buildlog"
	"github.com/loomdev/loom/pkg/component"
	"github.com/loomdev/loom/pkg/deps"
	"github.com/loomdev/loom/pkg/devserver"
	"github.com/loomdev/loom/pkg/packaging"
	"github.com/loomdev/loom/pkg/registry"
	"github.com/loomdev/loom/pkg/telemetry"
	"github.com/loomdev/loom/pkg/watch"
)

func newDevCommand() *cobra.Command {
	var (
		rootDir       string
		port          int
		modulesDir    string
		installCmd    string
		packagerCmd   string
		mockConfig    string
		buildLogPath  string
		debounce      time.Duration
		traceEnabled  bool
		traceExport   string
		traceEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Run the local development loop",
		Long: `Discover components, install their dependencies, package them, and serve
the result from a local dev registry. Components are repackaged whenever a
watched file changes, and failed packaging runs retry automatically.`,
		Example: `  # Run the dev loop in the current directory
  loom dev

  # Serve the registry on another port
  loom dev --port 3001

  # Persist packaging outcomes for later inspection with loom status
  loom dev --build-log .loom/build.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := telemetry.DefaultConfig()
			if verbose {
				cfg.Logging.Level = "debug"
			}
			if jsonOutput {
				cfg.Logging.Format = "json"
			}
			cfg.Tracing.Enabled = traceEnabled
			cfg.Tracing.Exporter = traceExport
			cfg.Tracing.Endpoint = traceEndpoint

			logger, err := telemetry.NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to configure logging: %w", err)
			}

			metrics := telemetry.NewMetrics(cfg.Metrics)
			tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
			if err != nil {
				return fmt.Errorf("failed to configure tracing: %w", err)
			}
			defer tracer.Shutdown(cmd.Context())

			installName, installArgs := splitCommand(installCmd)
			packagerName, packagerArgs := splitCommand(packagerCmd)

			discoverer := component.NewFSDiscoverer(logger)
			resolver := deps.NewResolver(logger,
				deps.NewDirLoader(filepath.Join(rootDir, modulesDir)),
				deps.NewExecInstaller(logger, installName, installArgs...),
				rootDir,
				deps.WithMetrics(metrics))

			coordinatorOpts := []packaging.Option{
				packaging.WithMetrics(metrics),
				packaging.WithTracer(tracer),
			}
			if buildLogPath != "" {
				store, err := openBuildLog(cmd.Context(), buildLogPath)
				if err != nil {
					return err
				}
				defer store.Close()
				coordinatorOpts = append(coordinatorOpts, packaging.WithRecorder(store))
			}

			coordinator := packaging.NewCoordinator(logger,
				packaging.NewCommandPackager(logger, packagerName, packagerArgs...),
				rootDir, coordinatorOpts...)

			orchestrator := devserver.New(logger, devserver.Options{
				RootDir:        rootDir,
				Port:           port,
				MockConfigPath: mockConfig,
			}, discoverer, resolver, coordinator,
				watch.NewWatcher(logger, debounce), metrics, tracer)

			return orchestrator.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&rootDir, "root", ".", "component root directory")
	cmd.Flags().IntVar(&port, "port", registry.DefaultPort, "dev registry listen port")
	cmd.Flags().StringVar(&modulesDir, "modules-dir", "node_modules", "installed modules directory, relative to root")
	cmd.Flags().StringVar(&installCmd, "install-cmd", "npm install", "command used to install missing modules")
	cmd.Flags().StringVar(&packagerCmd, "packager-cmd", "npm run package", "command used to package one component")
	cmd.Flags().StringVar(&mockConfig, "mock-config", "", "mock plugins configuration file (default loom.config.json in the working directory)")
	cmd.Flags().StringVar(&buildLogPath, "build-log", "", "SQLite file recording packaging outcomes (disabled when empty)")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "file watch debounce window (default 500ms)")
	cmd.Flags().BoolVar(&traceEnabled, "trace", false, "enable span export")
	cmd.Flags().StringVar(&traceExport, "trace-exporter", "stdout", "span exporter (stdout, otlp)")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP collector endpoint")

	return cmd
}

// splitCommand breaks a command line into its name and arguments.
func splitCommand(s string) (string, []string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// openBuildLog creates the build log store, making the parent directory if
// needed, and runs migrations.
func openBuildLog(ctx context.Context, path string) (*buildlog.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create build log directory: %w", err)
		}
	}
	store, err := buildlog.NewStore(path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open build log: %w", err)
	}
	return store, nil
}
