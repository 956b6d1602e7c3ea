package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/memebox/memebox/internal/server"
	"github.com/memebox/memebox/pkg/config"
)

// newServeCmd creates the "serve" command running the HTTP API.
func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP rendering server",
		Long: `Serve starts the memebox HTTP API.

Routes:
  GET /images/{template}/{text...}.{ext}  rendered meme
  GET /images/{template}.{ext}            blank template background
  GET /templates                          catalog listing

The server shuts down gracefully on SIGINT/SIGTERM, letting in-flight
renders finish.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			runner, err := buildRunner(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer runner.Close()

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           server.New(runner, cfg.Render.Watermark, logger).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			logger.Info("serving", "addr", cfg.Server.Addr, "templates", cfg.Templates.Dir)

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")

	return cmd
}
