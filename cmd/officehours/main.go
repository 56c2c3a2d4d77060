package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"officehours/internal/config"
	"officehours/internal/engine"
	"officehours/internal/ics"
	appLog "officehours/internal/log"
	"officehours/internal/scheduler"
	"officehours/internal/web"
)

const version = "0.1.0"

// app is everything a subcommand needs once the config is loaded.
type app struct {
	cfg    *config.Config
	store  *ics.Store
	engine *engine.Engine
}

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		appLog.Error("command failed", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "officehours",
		Short:         "Weekly office hours kept in a shared iCalendar file",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/officehours/config.yaml", "Path to config file")

	load := func(ctx context.Context) (*app, error) {
		return setup(ctx, configPath)
	}
	root.AddCommand(
		newServeCmd(load),
		newCreateCmd(load),
		newListCmd(load),
		newEditCmd(load),
		newDeleteCmd(load),
		newPruneCmd(load),
	)
	return root
}

func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	appLog.Init(appLog.Options{
		Level:   appLog.ParseLevel(cfg.LogLevel),
		File:    cfg.LogFile,
		Console: true,
	})

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	opts := []ics.Option{
		ics.WithMetadata(cfg.Metadata()),
		ics.WithWorkers(cfg.Workers),
	}
	if cfg.StoreLock {
		opts = append(opts, ics.WithFileLock())
	}
	store := ics.NewStore(cfg.StorePath, loc, opts...)
	if err := store.Init(ctx); err != nil {
		return nil, err
	}

	appLog.Debug("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"store_path", cfg.StorePath,
		"store_lock", cfg.StoreLock,
		"workers", cfg.Workers,
		"prune", cfg.PruneCron,
		"retention_days", cfg.RetentionDays,
		"metrics", cfg.Metrics,
	)

	return &app{cfg: cfg, store: store, engine: engine.New(store, loc)}, nil
}

func newServeCmd(load func(context.Context) (*app, error)) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the retention scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := load(ctx)
			if err != nil {
				return err
			}
			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				a.cfg.Listen = listen
			}

			if a.cfg.Metrics {
				engine.RegisterMetrics(prometheus.DefaultRegisterer)
			}

			appLog.Info("officehours starting", "version", version, "store", a.store.Path())

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return web.NewServer(a.cfg, a.engine).Run(ctx)
			})

			if a.cfg.RetentionDays > 0 {
				sched, err := scheduler.New(a.cfg.PruneCron, a.engine.Location(), a.cfg.Retention(), a.engine)
				if err != nil {
					return err
				}
				g.Go(func() error {
					sched.Run(ctx)
					return nil
				})
			} else {
				appLog.Info("retention scheduler disabled", "retention_days", a.cfg.RetentionDays)
			}

			err = g.Wait()
			appLog.Info("officehours exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
