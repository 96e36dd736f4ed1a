package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"IT_borrowing_system/app"
	"IT_borrowing_system/config"
	"IT_borrowing_system/logging"
	"IT_borrowing_system/routes"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		slog.Error("load .env", "err", err)
		os.Exit(1)
	}
	logging.Setup()

	cfg := app.LoadConfig()
	application := app.MustNew(cfg)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.BootstrapFirstAdmin(ctx, cfg, application.Repo); err != nil {
		slog.Error("bootstrap admin", "err", err)
	}

	routes.RegisterRoutes(application.Router, application)

	go application.Engine.RunSweeper(ctx, cfg.SweepInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
	slog.Info("server stopped")
}
