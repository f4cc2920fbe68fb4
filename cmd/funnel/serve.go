package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"internfunnel/internal/app"
	"internfunnel/internal/engine/auth"
	"internfunnel/internal/logging"
	"internfunnel/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") || cfg.Server.Addr == "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			e, closeFn, err := app.Open(cmd.Context(), cfg, app.Options{Logger: logger, Registry: reg})
			if err != nil {
				return err
			}
			defer closeFn()

			handler, err := server.New(server.Config{
				Engine:       e,
				BasePath:     cfg.Server.BasePath,
				Auth:         auth.NewService(cfg),
				Logger:       logger,
				Gatherer:     reg,
				CORSOrigins:  cfg.Server.CORSOrigins,
				RateLimit:    server.RateLimitFromConfig(cfg),
				SecureCookie: !strings.EqualFold(cfg.Server.Environment, "development"),
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			server.StartWebhookDispatcher(ctx, e, logger)

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer scancel()
				if err := srv.Shutdown(sctx); err != nil {
					logger.Error("shutdown failed", "error", err)
				}
			}()
			display := cfg.Server.BasePath
			if display == "" {
				display = "/api"
			}
			logger.Info("listening", "addr", cfg.Server.Addr, "base_path", display, "environment", cfg.Server.Environment)
			fmt.Printf("Serving funnel API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", cfg.Server.Addr, display, display, display)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	return cmd
}
