package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/glossary/internal/http/handler"
	"github.com/japaniel/glossary/internal/http/router"
)

func newRouter(a *app) *gin.Engine {
	return router.New(router.Handlers{
		Interactions: handler.NewInteractionHandler(a.recorder, a.holder),
		Quiz:         handler.NewQuizHandler(a.recorder, a.holder, a.agg),
		Analytics:    handler.NewAnalyticsHandler(a.agg, a.holder),
		Search:       handler.NewSearchHandler(a.searcher, a.recorder),
		Annotate:     handler.NewAnnotateHandler(a.holder, a.annotateOptions()),
	}, router.RouterConfig{
		IsProduction: a.cfg.IsProduction(),
		Health:       a.health,
	})
}

// serve runs the HTTP API until ctx is cancelled, then shuts down gracefully.
func serve(ctx context.Context, a *app) error {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "http server starting", "port", a.cfg.Port, "env", a.cfg.Env, "store", a.cfg.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	slog.InfoContext(shutdownCtx, "shutdown complete", "dropped_interactions", a.recorder.Dropped())
	return nil
}
