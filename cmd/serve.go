package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foundationrisk/soilrisk/internal/api"
	"github.com/foundationrisk/soilrisk/internal/metrics"
	"github.com/foundationrisk/soilrisk/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m := metrics.New(prometheus.DefaultRegisterer)
		ad := newAdapters()

		deps := api.Deps{
			Lookup:         ad.lookupService(st, m),
			Leads:          newLeadService(st, m),
			Catalog:        st,
			Upstreams:      ad.breakers,
			Metrics:        m,
			Gatherer:       prometheus.DefaultGatherer,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AdminSecret:    cfg.Server.AdminSecret,
		}
		if cfg.Server.AdminSecret != "" {
			deps.Ingest = ad.ingestor(st, m)
		} else {
			zap.L().Info("admin ingest disabled: server.admin_secret not set")
		}

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		srv := api.NewServer(fmt.Sprintf(":%d", cfg.Server.Port), api.NewRouter(deps))

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
