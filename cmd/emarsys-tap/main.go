package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/emarsys-tap/internal/pipeline"
	"github.com/ajitpratap0/emarsys-tap/pkg/catalog"
	"github.com/ajitpratap0/emarsys-tap/pkg/config"
	"github.com/ajitpratap0/emarsys-tap/pkg/connector/registry"
	"github.com/ajitpratap0/emarsys-tap/pkg/logger"
)

var version = "0.1.0"

// overrides maps viper keys onto the config fields they replace. Each key
// can come from a flag or from EMARSYS_<KEY>.
var overrides = map[string]func(*config.TapConfig, *viper.Viper, string){
	"username":      func(c *config.TapConfig, v *viper.Viper, k string) { c.Credentials.Username = v.GetString(k) },
	"secret":        func(c *config.TapConfig, v *viper.Viper, k string) { c.Credentials.Secret = v.GetString(k) },
	"base_url":      func(c *config.TapConfig, v *viper.Viper, k string) { c.Credentials.BaseURL = v.GetString(k) },
	"start_date":    func(c *config.TapConfig, v *viper.Viper, k string) { c.Sync.StartDate = v.GetString(k) },
	"end_date":      func(c *config.TapConfig, v *viper.Viper, k string) { c.Sync.EndDate = v.GetString(k) },
	"state":         func(c *config.TapConfig, v *viper.Viper, k string) { c.State.Path = v.GetString(k) },
	"state_backend": func(c *config.TapConfig, v *viper.Viper, k string) { c.State.Backend = v.GetString(k) },
	"output":        func(c *config.TapConfig, v *viper.Viper, k string) { c.Output.Mode = v.GetString(k) },
	"output_dir":    func(c *config.TapConfig, v *viper.Viper, k string) { c.Output.Dir = v.GetString(k) },
	"compression":   func(c *config.TapConfig, v *viper.Viper, k string) { c.Output.Compression = v.GetString(k) },
	"log_level":     func(c *config.TapConfig, v *viper.Viper, k string) { c.Observability.LogLevel = v.GetString(k) },
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "emarsys-tap",
		Short: "Incremental extraction of Emarsys contacts, lists, campaigns and metrics",
		Long: `emarsys-tap extracts contacts, contact lists, list memberships, campaigns and
per-contact campaign metrics from the Emarsys API. Records and checkpoints are
written as Singer messages on stdout or as compressed JSON Lines files.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("emarsys-tap v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Printf("Output modes: %s\n", strings.Join(registry.ListSinks(), ", "))
		},
	})

	root.AddCommand(newSyncCommand(), newDiscoverCommand(), newInitCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSyncCommand() *cobra.Command {
	v := newViper()
	var configFile, catalogFile string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the streams selected in a catalog",
		Long: `Sync the streams selected in the catalog, resuming from the last checkpoint.

Example:
  emarsys-tap sync --config tap.yaml --catalog catalog.json > records.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, v)
			if err != nil {
				return err
			}
			log, err := initLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cat, err := catalog.Load(catalogFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := pipeline.NewSyncPipeline(cfg, cat, log, pipeline.WithVersion(version))
			if err := p.Run(ctx); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			summary := p.Metrics()
			log.Info("run summary",
				zap.Any("run_id", summary["run_id"]),
				zap.Any("duration", summary["duration"]),
				zap.Any("total_requests", summary["total_requests"]),
				zap.Any("failed_requests", summary["failed_requests"]))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the tap configuration file (YAML)")
	cmd.Flags().StringVar(&catalogFile, "catalog", "", "Path to the catalog JSON file (required)")
	_ = cmd.MarkFlagRequired("catalog")
	bindOverrides(cmd.Flags(), v)
	return cmd
}

func newDiscoverCommand() *cobra.Command {
	v := newViper()
	var configFile string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Write the catalog of available streams to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, v)
			if err != nil {
				return err
			}
			log, err := initLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := pipeline.NewSyncPipeline(cfg, nil, log, pipeline.WithVersion(version))
			return p.Discover(ctx, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the tap configuration file (YAML)")
	bindOverrides(cmd.Flags(), v)
	return cmd
}

func newInitCommand() *cobra.Command {
	v := newViper()
	var out string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		Long: `Write a configuration file with the default settings, overlaid by any
flags or EMARSYS_* variables given.

Example:
  emarsys-tap init --out tap.yaml --username api_user`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", out)
			}
			cfg := config.NewTapConfig()
			applyOverrides(cfg, v)
			if err := config.Save(out, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "tap.yaml", "Path of the configuration file to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	bindOverrides(cmd.Flags(), v)
	return cmd
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("EMARSYS")
	v.AutomaticEnv()
	return v
}

func bindOverrides(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("username", "", "API username (env EMARSYS_USERNAME)")
	flags.String("secret", "", "API secret (env EMARSYS_SECRET)")
	flags.String("base-url", "", "API base URL (env EMARSYS_BASE_URL)")
	flags.String("start-date", "", "First metric date, YYYY-MM-DD (env EMARSYS_START_DATE)")
	flags.String("end-date", "", "Last metric date, inclusive (env EMARSYS_END_DATE)")
	flags.String("state", "", "Path to the state file for the file backend (env EMARSYS_STATE)")
	flags.String("state-backend", "", "Checkpoint backend: file, redis or postgres (env EMARSYS_STATE_BACKEND)")
	flags.String("output", "", "Output mode: singer or file (env EMARSYS_OUTPUT)")
	flags.String("output-dir", "", "Output directory for file mode (env EMARSYS_OUTPUT_DIR)")
	flags.String("compression", "", "Compression for file mode (env EMARSYS_COMPRESSION)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (env EMARSYS_LOG_LEVEL)")

	for key := range overrides {
		_ = v.BindPFlag(key, flags.Lookup(strings.ReplaceAll(key, "_", "-")))
	}
}

// loadConfig reads the optional config file and applies flag and
// environment overrides on top
func loadConfig(path string, v *viper.Viper) (*config.TapConfig, error) {
	cfg := config.NewTapConfig()
	if path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
	}
	applyOverrides(cfg, v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyOverrides(cfg *config.TapConfig, v *viper.Viper) {
	for key, apply := range overrides {
		if v.GetString(key) != "" {
			apply(cfg, v, key)
		}
	}
}

func initLogger(cfg *config.TapConfig) (*zap.Logger, error) {
	err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogEncoding,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Get().With(zap.String("component", "emarsys-tap"), zap.String("tap", cfg.Name)), nil
}
