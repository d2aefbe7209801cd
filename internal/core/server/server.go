package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/mercator-pick/internal/core/config"
	"github.com/mohammed-shakir/mercator-pick/internal/core/health"
	middleware "github.com/mohammed-shakir/mercator-pick/internal/core/middleware"
	"github.com/mohammed-shakir/mercator-pick/internal/core/router"
)

// NewHandler mounts the pick api, probes and metrics.
func NewHandler(logger *slog.Logger, d router.Deps, checks ...health.Check) http.Handler {
	if d.Log == nil {
		d.Log = logger
	}
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, checks...))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/pick", router.Instrument("/pick", router.HandlePick(d)))
	r.Get("/layers", router.Instrument("/layers", router.HandleLayers(d)))
	r.Get("/tiles/{z}/{x}/{y}/envelope", router.Instrument("/tiles/envelope", router.HandleTileEnvelope(d)))
	r.Get("/selection", router.Instrument("/selection", router.HandleSelectionGet(d)))
	r.Delete("/selection", router.Instrument("/selection", router.HandleSelectionDelete(d)))
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
