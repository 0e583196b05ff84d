package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tripproxy/pkg/tripproxy"
	"github.com/randalmurphal/tripproxy/pkg/tripproxy/config"
	"github.com/randalmurphal/tripproxy/pkg/tripproxy/template"
)

func serveCmd() *cobra.Command {
	var configPath string
	var listen string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(configPath, template.OSLookup)
			if err != nil {
				return err
			}
			if listen != "" {
				settings.Listen = listen
			}

			logger, err := newLogger(settings.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tel, err := setupTelemetry(settings.Telemetry, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := tel.shutdown(context.Background()); err != nil {
					logger.Warn("telemetry shutdown failed", "error", err)
				}
			}()

			srv, closeCache, err := tripproxy.NewServerFromSettings(settings, template.OSLookup,
				tripproxy.WithLogger(logger),
				tripproxy.WithMetrics(tel.metrics),
				tripproxy.WithSpanManager(tel.spans),
			)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeCache(); err != nil {
					logger.Warn("cache close failed", "error", err)
				}
			}()

			logger.Info("starting tripproxy",
				"listen", settings.Listen,
				"cache", settings.Cache.Backend,
				"missing_env", settings.MissingEnv.String(),
				"allowed_hosts", len(settings.Upstream.AllowedHosts),
			)
			return srv.Serve(ctx, settings.Listen)
		},
	}

	c.Flags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml or .json; optional)")
	c.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config and PORT)")
	return c
}

// loadSettings reads the config file when one is given, otherwise the
// defaults, then applies environment overrides.
func loadSettings(path string, lookup template.LookupFunc) (config.Settings, error) {
	settings := config.Defaults()
	if path != "" {
		var err error
		settings, err = config.LoadFile(path, lookup)
		if err != nil {
			return config.Settings{}, fmt.Errorf("load config: %w", err)
		}
	}
	settings.ApplyEnv(lookup)
	return settings, nil
}
