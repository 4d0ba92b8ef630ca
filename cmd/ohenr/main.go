// Package main provides the ohenr command for fetching and normalizing Ohio enrollment extracts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ohenr/internal/cache"
	"ohenr/internal/config"
	"ohenr/internal/enrollment"
	"ohenr/internal/export"
	"ohenr/internal/logger"
	"ohenr/internal/schema"
	"ohenr/internal/source"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg   *config.Config
	table *schema.Table
	log   *logger.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "ohenr",
		Short:         "Fetch and normalize Ohio school enrollment extracts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to YAML config file (default: built-in)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	root.AddCommand(
		newFetchCmd(a),
		newFetchMultiCmd(a),
		newTidyCmd(a),
		newYearsCmd(a),
		newResolveCmd(a),
	)

	return root
}

func (a *app) setup() error {
	cfg := config.Default()

	if a.configPath != "" {
		loaded, err := config.LoadConfig(a.configPath)
		if err != nil {
			return err
		}

		cfg = loaded
	}

	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel

		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	table, err := loadTable(cfg.Pipeline.PatternsFile)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.table = table
	a.log = logger.NewLogger(cfg.Logging.Level)

	return nil
}

func loadTable(path string) (*schema.Table, error) {
	if path == "" {
		return schema.Default()
	}

	return schema.LoadTable(path)
}

// newClient wires a client over either a local file pattern or the configured URLs.
// Cache keys do not name the source, so local runs never touch the cache.
// The returned func releases the cache.
func (a *app) newClient(filePattern string, useCache bool) (*enrollment.Client, func()) {
	var src enrollment.GridSource
	if filePattern != "" {
		src = source.NewLocalFetcher(filePattern, a.cfg.Source.SkipRows)
	} else {
		src = source.NewFetcher(&a.cfg.Source, a.cfg.Pipeline.ModernEraStart, a.log)
	}

	var (
		store   cache.Store
		closeFn = func() {}
	)

	if useCache && filePattern == "" && a.cfg.Cache.Enabled {
		db, err := cache.OpenSQLite(a.cfg.Cache.Path, a.cfg.Cache.TTL(), a.log)
		if err != nil {
			a.log.Warn("cache unavailable, continuing without it", "path", a.cfg.Cache.Path, "error", err)
		} else {
			store = db
			closeFn = func() { _ = db.Close() }
		}
	}

	return enrollment.NewClient(a.cfg, a.table, src, store, a.log), closeFn
}

func (a *app) writeOptions() export.WriteOptions {
	return export.WriteOptions{
		Format: a.cfg.Output.Format,
		Pretty: a.cfg.Output.PrettyPrint,
		Backup: a.cfg.Output.CreateBackup,
	}
}
