package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-tracker/internal/api"
	"github.com/sells-group/policy-tracker/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tracker API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		handler, err := buildHandler(ctx, env)
		if err != nil {
			return err
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildHandler loads reference data and assembles the API around env.
func buildHandler(ctx context.Context, env *appEnv) (http.Handler, error) {
	if err := env.State.Init(ctx); err != nil {
		// The read endpoints retry Init on demand.
		zap.L().Warn("reference data not loaded at startup", zap.Error(err))
	}

	analyzer, err := newExtractor()
	if err != nil {
		return nil, err
	}
	classifier, err := newClassifier()
	if err != nil {
		return nil, err
	}

	srv := api.New(api.Deps{
		Store:          env.Store,
		Classifier:     classifier,
		Limiter:        newLimiter(env.Store),
		Analyzer:       analyzer,
		Pages:          env.Fetcher,
		Gate:           env.Gate,
		Engine:         env.Engine,
		Ledger:         env.Ledger,
		Scheduler:      env.Scheduler,
		State:          env.State,
		Auth:           cfg.Auth,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
	})
	return srv.Handler(), nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
