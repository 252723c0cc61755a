package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/maruel/kvedit/internal/config"
	"github.com/maruel/kvedit/internal/hoststore"
	"github.com/maruel/kvedit/internal/hoststore/filehost"
	"github.com/maruel/kvedit/internal/hoststore/memhost"
	"github.com/maruel/kvedit/internal/hoststore/seed"
	"github.com/maruel/kvedit/internal/hoststore/sqlhost"
)

// app is the state shared by the subcommands once the config is loaded.
type app struct {
	level   *slog.LevelVar
	cfgFile string
	flags   *pflag.FlagSet
	cfg     *config.Config
	host    hoststore.Host
}

func newRootCmd(ll *slog.LevelVar) *cobra.Command {
	a := &app{level: ll}
	root := &cobra.Command{
		Use:   "kvedit",
		Short: "Browse and edit transactional key-value stores",
		Long: `kvedit inspects and mutates databases of object stores holding schemaless
JSON records. It serves an HTTP API for an in-page overlay and offers the
same operations from the command line.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "schema" {
				return nil
			}
			return a.init(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "config file (default: ./kvedit.yaml)")
	f.String("backend", "memory", "host store: memory, file or sqlite")
	f.String("data-dir", "./data", "directory of the file and sqlite backends")
	f.String("seed", "", "YAML fixture to load into the store at startup")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	_ = root.RegisterFlagCompletionFunc("backend", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return config.Backends, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newServeCmd(a),
		newDatabasesCmd(a),
		newStoresCmd(a),
		newScanCmd(a),
		newPutCmd(a),
		newDeleteCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newAutoNavCmd(a),
		newConfigCmd(a),
	)
	return root
}

// init loads the config and opens the host store.
func (a *app) init(cmd *cobra.Command) error {
	a.cfgFile = config.FindFile(a.cfgFile)
	a.flags = cmd.Flags()
	cfg, err := config.Load(a.cfgFile, a.flags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg
	lvl, _ := config.ParseLevel(cfg.LogLevel)
	a.level.Set(lvl)
	ctx := cmd.Context()
	if a.host, err = openHost(ctx, cfg); err != nil {
		return err
	}
	slog.DebugContext(ctx, "kvedit", "msg", "host ready", "backend", cfg.Backend, "config", a.cfgFile)
	return nil
}

// openHost builds the configured host store and applies the seed fixture.
func openHost(ctx context.Context, cfg *config.Config) (hoststore.Host, error) {
	var h hoststore.Host
	var err error
	switch cfg.Backend {
	case "file":
		h, err = filehost.New(cfg.DataDir)
	case "sqlite":
		h, err = sqlhost.New(cfg.DataDir)
	default:
		h = memhost.New()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}
	if cfg.Seed != "" {
		f, err := seed.Load(cfg.Seed)
		if err != nil {
			return nil, err
		}
		if err := seed.Apply(ctx, h, f); err != nil {
			return nil, fmt.Errorf("failed to seed: %w", err)
		}
		slog.InfoContext(ctx, "kvedit", "msg", "seeded", "file", cfg.Seed, "databases", len(f.Databases))
	}
	if !cfg.Enumerate {
		h = hoststore.OpenOnly(h)
	}
	return h, nil
}
