package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/challengeboard/challengeboard/pkg/store"
	"github.com/challengeboard/challengeboard/server/internal/api"
	"github.com/challengeboard/challengeboard/server/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file; empty uses defaults and environment")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	slog.Info("challengeboard-server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"store", cfg.Store.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	handler := api.New(cfg.Server.LogLevel == "debug")

	// The API answers 202 until the store is open.
	opened := make(chan store.Store, 1)
	go func() {
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			if ctx.Err() != nil {
				slog.Warn("store open abandoned on shutdown", "backend", cfg.Store.Backend, "err", err)
				close(opened)
				return
			}
			slog.Error("failed to open store", "backend", cfg.Store.Backend, "err", err)
			os.Exit(1)
		}
		handler.SetSource(st)
		opened <- st
		slog.Info("store connected", "backend", cfg.Store.Backend)
	}()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("challengeboard-server shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer done()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown", "err", err)
	}

	// Cancel so an open still in progress gives up, then close whatever it
	// returned.
	cancel()
	closeWhenOpened(opened, storeOpenGrace)
}

const storeOpenGrace = 5 * time.Second

// closeWhenOpened closes the store sent on opened, waiting up to timeout for
// an open still in flight. A closed channel means the open was abandoned.
func closeWhenOpened(opened <-chan store.Store, timeout time.Duration) bool {
	select {
	case st, ok := <-opened:
		if !ok {
			return false
		}
		if err := st.Close(); err != nil {
			slog.Error("close store", "err", err)
		}
		return true
	case <-time.After(timeout):
		slog.Warn("store still opening at exit", "waited", timeout)
		return false
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
