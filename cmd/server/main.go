package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/levonm80/socapp/internal/config"
	"github.com/levonm80/socapp/internal/factory"
	"github.com/levonm80/socapp/internal/handler"
	"github.com/levonm80/socapp/internal/util"
)

func main() {
	cfg := config.LoadConfig()

	f, err := factory.New(cfg)
	if err != nil {
		util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
		util.Fatal("failed to initialize application", util.ErrorField(err))
	}
	defer f.Close()

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      handler.NewRouter(f.Handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		util.Info("server listening",
			util.String("address", srv.Addr),
			util.String("environment", cfg.Environment),
			util.String("storage_backend", cfg.Storage.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Fatal("server failed", util.ErrorField(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	util.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		util.Error("graceful shutdown failed", util.ErrorField(err))
	}

	// Close (deferred) waits for in-flight ingestion jobs before releasing
	// the clients.
}
