package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/session"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the identity HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		lg, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer lg.Sync()
		sugar := lg.Sugar()

		// graceful shutdown
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, sugar)
		if err != nil {
			return err
		}
		defer a.Close()

		h := session.NewHandler(a.svc, sugar.Named("http"))
		handler := router.RegisterRoutes(sugar, a.stores.ready, func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				h.Routes(r, router.RequireAuth(a.signer))
			})
		})
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
		sugar.Infow("identity service listening", "addr", cfg.HTTP.Addr, "store", cfg.Store.Backend, "mail", cfg.Mail.Backend)

		select {
		case <-ctx.Done():
		case err := <-errc:
			return fmt.Errorf("http server: %w", err)
		}

		sugar.Info("shutting down")
		doneCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(doneCtx); err != nil {
			sugar.Warnf("http server shutdown failed: %v", err)
		}
		sugar.Info("goodbye")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
