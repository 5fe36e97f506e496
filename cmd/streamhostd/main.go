package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"streamhostd/internal/common/fsutil"
	"streamhostd/internal/config"
	"streamhostd/internal/display"
	"streamhostd/internal/httpapi"
	"streamhostd/internal/monitor"
	"streamhostd/internal/reconciler"
	"streamhostd/internal/service"
	"streamhostd/internal/svcconfig"
	"streamhostd/internal/vault"
	"streamhostd/pkg/types"
)

// version is set at build time via -ldflags.
var version = "dev"

// defaultOutputName is the display output the managed app entry is pinned to.
const defaultOutputName = "Virtual Display"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "streamhostd",
		Short:         "Supervises the local streaming service, its credentials and the virtual display driver",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", envStr("STREAMHOSTD_CONFIG", ""), "Path to a yaml/json/toml config file (defaults STREAMHOSTD_CONFIG)")
	root.PersistentFlags().String("addr", envStr("STREAMHOSTD_ADDR", ""), "HTTP listen address (defaults STREAMHOSTD_ADDR or "+config.DefaultAddr+")")
	root.PersistentFlags().String("service-url", envStr("STREAMHOSTD_SERVICE_URL", ""), "Service control endpoint base URL (defaults STREAMHOSTD_SERVICE_URL)")
	root.PersistentFlags().String("log-level", envStr("STREAMHOSTD_LOG_LEVEL", ""), "Log level: debug|info|warn|error (defaults STREAMHOSTD_LOG_LEVEL or info)")

	root.AddCommand(serveCmd(), setupCmd(), changeCredentialsCmd(), statusCmd(), cleanupCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

// loadConfig merges file config with flag/env overrides and fills defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = loaded
	}
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.Addr = v
	}
	if v, _ := cmd.Flags().GetString("service-url"); v != "" {
		cfg.ServiceURL = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	cfg.ApplyDefaults()

	// Path defaults live here, not in the loader: they depend on the host
	// user's home directory.
	if cfg.ServiceConfigPath == "" {
		cfg.ServiceConfigPath = "~/.config/streamhost/config.json"
	}
	if cfg.VaultPath == "" {
		cfg.VaultPath = "~/.config/streamhostd/vault.json"
	}
	if cfg.KeyPath == "" {
		cfg.KeyPath = "~/.config/streamhostd/machine.key"
	}
	if len(cfg.DriverSettingsPaths) == 0 {
		cfg.DriverSettingsPaths = []string{
			"/etc/vdd/vdd_settings.toml",
			"~/.config/vdd/vdd_settings.toml",
		}
	}
	var err error
	if cfg.ServiceConfigPath, err = fsutil.ExpandHome(cfg.ServiceConfigPath); err != nil {
		return cfg, err
	}
	if cfg.VaultPath, err = fsutil.ExpandHome(cfg.VaultPath); err != nil {
		return cfg, err
	}
	if cfg.KeyPath, err = fsutil.ExpandHome(cfg.KeyPath); err != nil {
		return cfg, err
	}
	if cfg.BackupDir != "" {
		if cfg.BackupDir, err = fsutil.ExpandHome(cfg.BackupDir); err != nil {
			return cfg, err
		}
	}
	for i, p := range cfg.DriverSettingsPaths {
		if cfg.DriverSettingsPaths[i], err = fsutil.ExpandHome(p); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var out = zerolog.New(os.Stderr)
	if envStr("STREAMHOSTD_LOG_FORMAT", "") == "console" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return out.Level(lvl).With().Timestamp().Logger()
}

// core holds the wired subsystems shared by the subcommands.
type core struct {
	cfg     config.Config
	log     zerolog.Logger
	client  *service.Client
	vault   *vault.Vault
	store   *svcconfig.Store
	display *display.Controller
	monitor *monitor.Monitor
	rec     *reconciler.Reconciler
}

func buildCore(cmd *cobra.Command) (*core, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.LogLevel)

	client := service.NewClient(cfg.ServiceURL, cfg.ProbeTimeout(), cfg.ProbeTimeout(), log)
	v := vault.Open(cfg.VaultPath, cfg.KeyPath, log)
	client.SetCredentialsProvider(func() (types.Credentials, bool) {
		creds, ok, err := v.LoadCredentials()
		if err != nil || !ok {
			return types.Credentials{}, false
		}
		return creds, true
	})
	store := svcconfig.NewStore(cfg.ServiceConfigPath, cfg.BackupDir, cfg.BackupRetain, log)
	mon := monitor.New(client, monitor.Config{
		Interval:      cfg.PollInterval(),
		DebounceCount: cfg.DebounceCount,
	}, log)

	var disp *display.Controller
	disp, err = display.New(cfg.DriverSettingsPaths, defaultOutputName, store, mon, cfg.SettleDelay(), log)
	if err != nil {
		if !display.IsNotInstalled(err) {
			return nil, err
		}
		log.Warn().Msg("virtual display driver not installed, display control disabled")
		disp = nil
	}

	managed := types.AppEntry{Name: svcconfig.ManagedAppName, Output: defaultOutputName}
	rec := reconciler.New(client, v, mon, nil, store, managed, log)

	return &core{
		cfg:     cfg,
		log:     log,
		client:  client,
		vault:   v,
		store:   store,
		display: disp,
		monitor: mon,
		rec:     rec,
	}, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: poll the service and serve the local HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore(cmd)
			if err != nil {
				return err
			}

			if origins := envStr("STREAMHOSTD_CORS_ORIGINS", ""); origins != "" {
				httpapi.SetCORSOptions(true,
					strings.Split(origins, ","),
					[]string{"GET", "POST", "OPTIONS"},
					[]string{"Content-Type"},
				)
			}

			deps := httpapi.Deps{
				Monitor:    c.monitor,
				Reconciler: c.rec,
				Log:        c.log,
				StartedAt:  time.Now(),
			}
			if c.display != nil {
				deps.Display = c.display
			}
			srv := &http.Server{
				Addr:              c.cfg.Addr,
				Handler:           httpapi.NewMux(deps),
				ReadHeaderTimeout: 5 * time.Second,
			}

			c.monitor.StartPolling()

			errCh := make(chan error, 1)
			go func() {
				c.log.Info().Str("addr", c.cfg.Addr).Str("service_url", c.cfg.ServiceURL).Msg("streamhostd listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				c.monitor.StopPolling()
				return err
			case sig := <-stop:
				c.log.Info().Str("signal", sig.String()).Msg("shutting down")
			}

			c.monitor.StopPolling()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				c.log.Error().Err(err).Msg("graceful shutdown error")
			}
			return nil
		},
	}
	return cmd
}

func setupCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Run the first-time credential setup headlessly",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(username) == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}
			c, err := buildCore(cmd)
			if err != nil {
				return err
			}
			if err := fsutil.EnsureDir(filepath.Dir(c.cfg.VaultPath)); err != nil {
				return err
			}
			creds := types.Credentials{Username: username, Password: password}
			if err := c.rec.FirstTimeSetup(cmd.Context(), creds); err != nil {
				return err
			}
			fmt.Println("setup complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username to initialize the service with")
	cmd.Flags().StringVar(&password, "password", "", "Password to initialize the service with")
	return cmd
}

func changeCredentialsCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "change-credentials",
		Short: "Rotate the service credentials using the vaulted pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(username) == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}
			c, err := buildCore(cmd)
			if err != nil {
				return err
			}
			next := types.Credentials{Username: username, Password: password}
			if err := c.rec.ChangeCredentials(cmd.Context(), next); err != nil {
				return err
			}
			fmt.Println("credentials changed")
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "New username")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	return cmd
}

func cleanupCmd() *cobra.Command {
	var keyPatterns, files, dirs []string
	var purgeCredentials bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove managed config keys, files and credentials (uninstall helper)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore(cmd)
			if err != nil {
				return err
			}
			if len(keyPatterns) > 0 {
				if err := c.store.RemoveKeysMatchingPattern(keyPatterns); err != nil {
					return err
				}
			}
			if len(files) > 0 {
				if err := c.store.RemoveFiles(files); err != nil {
					return err
				}
			}
			if len(dirs) > 0 {
				if err := c.store.RemoveDirectories(dirs); err != nil {
					return err
				}
			}
			if purgeCredentials {
				if err := c.vault.DeleteCredentials(); err != nil {
					return err
				}
			}
			fmt.Println("cleanup complete")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&keyPatterns, "keys", nil, "Shell-style patterns of config keys to remove")
	cmd.Flags().StringSliceVar(&files, "files", nil, "File names under the service config dir to remove")
	cmd.Flags().StringSliceVar(&dirs, "dirs", nil, "Directory names under the service config dir to remove")
	cmd.Flags().BoolVar(&purgeCredentials, "credentials", false, "Also delete the vaulted credential pair")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the service once and print status and sync state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore(cmd)
			if err != nil {
				return err
			}
			status := c.client.Probe(cmd.Context())
			sync, err := c.rec.SyncState(status)
			if err != nil {
				return err
			}
			out := map[string]any{"status": status, "sync_state": sync}
			b, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		},
	}
}
