package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/tether/internal/anchor"
	"github.com/roach88/tether/internal/config"
	"github.com/roach88/tether/internal/orchestrator"
	"github.com/roach88/tether/internal/peersync"
	"github.com/roach88/tether/internal/rtc"
	"github.com/roach88/tether/internal/store"
)

// Config file names looked up in the home directory when --config is unset.
var defaultConfigFiles = []string{"config.yaml", "config.yml", "config.cue"}

// PasswordEnv supplies the export password when --password is not given.
const PasswordEnv = "TETHER_PASSWORD"

// app is everything a command needs: the resolved config, the logger, the
// orchestrator and the output formatter.
type app struct {
	home   string
	cfg    config.Config
	logger *slog.Logger
	orch   *orchestrator.Orchestrator
	out    *OutputFormatter
}

// newFormatter builds the formatter for cmd from the global flags.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openApp resolves the home directory and config, installs the logger and
// builds every enabled component. The caller must Close the app.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := newFormatter(opts, cmd)

	home, err := resolveHome(opts.Home)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resolve home directory", err)
	}
	if err := os.MkdirAll(home, 0o700); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create home directory", err)
	}

	cfg, path, err := loadConfig(opts.Config, home)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	cfg = cfg.Resolve(home)

	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	orch, err := buildOrchestrator(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start tether", err)
	}
	return &app{home: home, cfg: cfg, logger: logger, orch: orch, out: out}, nil
}

// Close releases every component.
func (a *app) Close() {
	if err := a.orch.Close(); err != nil {
		a.logger.Error("error closing tether", "error", err)
	}
}

func resolveHome(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv("TETHER_HOME"); env != "" {
		return filepath.Abs(env)
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userHome, ".tether"), nil
}

// loadConfig reads the explicit config path, or the first default config
// file found in home, or falls back to built-in defaults. It returns the
// path actually read ("" for defaults).
func loadConfig(path, home string) (config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	for _, name := range defaultConfigFiles {
		candidate := filepath.Join(home, name)
		if _, err := os.Stat(candidate); err == nil {
			cfg, err := config.Load(candidate)
			return cfg, candidate, err
		}
	}
	return config.Default(), "", nil
}

func newLogger(verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// buildOrchestrator opens the components cfg enables. Anything opened before
// a failure is closed again.
func buildOrchestrator(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *orchestrator.Orchestrator, err error) {
	deps := orchestrator.Deps{Logger: logger}
	defer func() {
		if err == nil {
			return
		}
		if deps.Peers != nil {
			deps.Peers.Close()
		}
		if deps.Store != nil {
			deps.Store.Close()
		}
		if deps.Anchor != nil {
			deps.Anchor.Close()
		}
	}()

	if cfg.Storage.Enabled {
		deps.Store, err = store.Open(cfg.Storage.Path,
			store.WithLogger(logger),
			store.WithBackupRetention(cfg.Storage.BackupRetention))
		if err != nil {
			return nil, err
		}
	}

	if cfg.Sync.Enabled {
		deps.Peers, err = newPeerEngine(cfg.Sync, logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Anchor.Enabled {
		deps.Anchor, err = openAnchor(ctx, cfg.Anchor)
		if err != nil {
			return nil, err
		}
	}

	return orchestrator.New(orchestrator.Config{
		EnableLocalStore:    cfg.Storage.Enabled,
		EnablePeerSync:      cfg.Sync.Enabled,
		EnableContentAnchor: cfg.Anchor.Enabled,
		AutoSync:            cfg.Sync.AutoSync,
		SyncInterval:        cfg.Sync.Interval.Std(),
		HeartbeatInterval:   cfg.Sync.HeartbeatInterval.Std(),
		EncryptExports:      cfg.Export.Encrypt,
	}, deps)
}

func newPeerEngine(cfg config.SyncConfig, logger *slog.Logger) (*peersync.Engine, error) {
	strategy, err := peersync.ParseStrategy(cfg.ConflictStrategy)
	if err != nil {
		return nil, err
	}

	var transport peersync.Transport
	switch cfg.Transport {
	case config.TransportMemory:
		transport = peersync.NewMemoryNetwork().Transport()
	default:
		transport = rtc.New(rtc.WithICEServers(cfg.ICEServers...), rtc.WithLogger(logger))
	}

	return peersync.New(transport,
		peersync.WithLogger(logger),
		peersync.WithConflictPolicy(peersync.ConflictPolicy{Strategy: strategy, Resolver: peersync.MergeBest}),
	), nil
}

func openAnchor(ctx context.Context, cfg config.AnchorConfig) (anchor.Anchor, error) {
	if cfg.Backend == config.BackendS3 {
		a, err := anchor.NewS3(ctx, anchor.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Prefix:          cfg.S3.Prefix,
			UsePathStyle:    cfg.S3.UsePathStyle,
			GatewayURL:      cfg.S3.GatewayURL,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	}

	a, err := anchor.OpenBolt(cfg.Path)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// password returns the flag value, or the PasswordEnv variable.
func password(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(PasswordEnv)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, or when
// parent is done.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// readInput reads the file at path, or stdin for "" or "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// writeOutput writes data to path with owner-only permissions, or to the
// command's stdout for "" or "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
