package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maruel/kvedit/internal/config"
	"github.com/maruel/kvedit/internal/notify"
	"github.com/maruel/kvedit/internal/overlay"
	"github.com/maruel/kvedit/internal/server"
	"github.com/maruel/kvedit/internal/server/handlers"
	"github.com/maruel/kvedit/internal/server/ratelimit"
	"github.com/maruel/kvedit/internal/storeclient"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the editor API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("http", "localhost:8080", "address to listen on")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	nav, err := cfg.AutoNavConfig()
	if err != nil {
		return err
	}
	center := notify.New(cfg.ToastDuration)
	defer center.Close()
	o := overlay.New(ctx, storeclient.New(a.host), center, nav)
	defer o.Close()
	limits := ratelimit.NewConfig(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst)
	defer limits.Close()

	srv := &http.Server{
		Addr:              cfg.HTTP,
		Handler:           server.NewRouter(handlers.New(o, center), limits),
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.InfoContext(ctx, "Starting server", "addr", cfg.HTTP, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if a.cfgFile != "" {
		eg.Go(func() error {
			return config.Watch(ctx, a.cfgFile, a.flags, func(c *config.Config) {
				a.reload(ctx, c, o, center)
			})
		})
	}
	return eg.Wait()
}

// reload applies the settings that can change while serving. Invalid
// settings are logged and the previous ones stay.
func (a *app) reload(ctx context.Context, c *config.Config, o *overlay.Overlay, center *notify.Center) {
	n, err := c.AutoNavConfig()
	if err != nil {
		slog.WarnContext(ctx, "Ignoring reloaded autonav settings", "file", a.cfgFile, "err", err)
		return
	}
	o.SetAutoNav(n)
	center.SetTTL(c.ToastDuration)
	lvl, err := config.ParseLevel(c.LogLevel)
	if err != nil {
		slog.WarnContext(ctx, "Keeping log level", "file", a.cfgFile, "err", err)
		return
	}
	a.level.Set(lvl)
	slog.InfoContext(ctx, "Config reloaded", "file", a.cfgFile)
}
