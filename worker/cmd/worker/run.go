package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/challengeboard/challengeboard/pkg/store"
	"github.com/challengeboard/challengeboard/worker/internal/config"
	"github.com/challengeboard/challengeboard/worker/internal/lock"
	"github.com/challengeboard/challengeboard/worker/internal/metrics"
	"github.com/challengeboard/challengeboard/worker/internal/notify"
	"github.com/challengeboard/challengeboard/worker/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	slog.Info("challengeboard-worker starting",
		"config", a.path,
		"keyword", a.cfg.Worker.Keyword,
		"months", len(a.cfg.Worker.Months),
		"interval", a.cfg.Worker.Interval,
		"schedule", a.cfg.Worker.Schedule,
	)

	if _, err := a.pipeline.Seed(ctx); err != nil {
		return err
	}

	locker, pingLock, err := newLocker(a.cfg.Worker.Lock)
	if err != nil {
		return err
	}

	m := metrics.New()
	sched, err := pipeline.NewScheduler(a.pipeline, pipeline.SchedulerOptions{
		Schedule: a.cfg.Worker.Schedule,
		Interval: a.cfg.Worker.Interval,
		Locker:   locker,
		Metrics:  m,
		Notifier: notify.New(a.cfg.Worker.Notify),
	})
	if err != nil {
		return err
	}

	srv := serveOps(a.cfg.Worker.MetricsPort, m, a.store, pingLock)

	if a.path != "" {
		go func() {
			if err := config.Watch(ctx, a.path, func(updated *config.Config) {
				rules, err := rulesFrom(updated.Worker)
				if err != nil {
					slog.Error("worker: reloaded config rejected", "err", err)
					return
				}
				a.pipeline.SetRules(rules)
				slog.Info("worker: rules updated",
					"keyword", rules.Keyword,
					"passing_score", rules.PassingScore,
					"months", len(rules.Months),
				)
			}); err != nil {
				slog.Error("worker: config watcher stopped", "err", err)
			}
		}()
	}

	sched.Start(ctx)
	<-ctx.Done()
	slog.Info("challengeboard-worker shutting down")

	sched.Stop()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("worker: ops server shutdown", "err", err)
		}
	}
	if c, ok := locker.(*lock.Redis); ok {
		_ = c.Close()
	}
	return nil
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, dryRun)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.pipeline.Seed(ctx); err != nil {
		return err
	}
	rep, err := a.pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("cycle %s: %w", rep.Cycle, err)
	}
	slog.Info("worker: cycle complete",
		"cycle", rep.Cycle,
		"inserted", rep.Inserted,
		"finished", rep.Finished,
		"pending", rep.Pending,
		"dry_run", dryRun,
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep.Rankings)
}

// newLocker returns the Redis lock when configured, else a process-local
// one. ping is nil for the local lock.
func newLocker(cfg config.LockConfig) (lock.Locker, func(context.Context) error, error) {
	if cfg.RedisURL == "" {
		return &lock.Local{}, nil, nil
	}
	r, err := lock.NewRedis(cfg.RedisURL, cfg.Key, cfg.TTL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("worker: using redis cycle lock", "key", cfg.Key, "ttl", cfg.TTL)
	return r, r.Ping, nil
}

// serveOps starts the /metrics and /healthz listener. It returns nil when
// port is 0.
func serveOps(port int, m *metrics.Metrics, st store.Store, pingLock func(context.Context) error) *http.Server {
	if port == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", healthz(st, pingLock))

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker: ops listener started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker: ops listener failed", "err", err)
		}
	}()
	return srv
}

func healthz(st store.Store, pingLock func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			http.Error(w, "store: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if pingLock != nil {
			if err := pingLock(ctx); err != nil {
				http.Error(w, "lock: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}
}
