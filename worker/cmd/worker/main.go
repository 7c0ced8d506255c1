package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/challengeboard/challengeboard/pkg/store"
	"github.com/challengeboard/challengeboard/worker/internal/config"
	"github.com/challengeboard/challengeboard/worker/internal/pipeline"
	"github.com/challengeboard/challengeboard/worker/internal/topcoder"
)

const defaultConfigPath = "config.yaml"

var (
	configPath string
	logLevel   string
	dryRun     bool
)

var rootCmd = &cobra.Command{
	Use:   "challengeboard-worker",
	Short: "Sync keyword challenges and publish the monthly leaderboard",
	Long: `challengeboard-worker polls the challenge listing, stores new keyword
matches, fetches final results and republishes the monthly rankings.

Without a subcommand it behaves like "run".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		setupLogger(logLevel)
		return nil
	},
	RunE: runWorker,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Seed, sync once immediately, then keep syncing on the schedule",
	RunE:  runWorker,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Seed and run a single sync cycle, then print the leaderboard",
	Long: `once runs exactly one cycle and writes the published rankings to stdout
as JSON. With --dry-run the cycle runs against an in-memory store so the
configured database is never touched.`,
	RunE: runOnce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override worker.log_level (debug|info|warn|error)")
	onceCmd.Flags().BoolVar(&dryRun, "dry-run", false, "use an in-memory store")

	rootCmd.AddCommand(runCmd, onceCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("worker: exiting", "err", err)
		os.Exit(1)
	}
}

// setupLogger installs the JSON handler as the default logger.
func setupLogger(level string) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig reads the config file. The default path is optional: when it
// does not exist the built-in defaults and environment apply. The returned
// path is empty when no file backs the config.
func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if logLevel == "" {
		setupLogger(cfg.Worker.LogLevel)
	}
	return cfg, path, nil
}

// rulesFrom builds the pipeline rules from the worker section.
func rulesFrom(w config.WorkerConfig) (pipeline.Rules, error) {
	months, err := w.ParsedMonths()
	if err != nil {
		return pipeline.Rules{}, err
	}
	return pipeline.Rules{
		Keyword:      w.Keyword,
		PassingScore: w.PassingScore,
		Months:       months,
	}, nil
}

// app is the wiring shared by run and once.
type app struct {
	cfg      *config.Config
	path     string
	store    store.Store
	pipeline *pipeline.Pipeline
}

func newApp(ctx context.Context, memory bool) (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if memory {
		cfg.Store.Backend = store.BackendMemory
		cfg.Store.DSN = ""
	}

	rules, err := rulesFrom(cfg.Worker)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	slog.Info("worker: store opened", "backend", cfg.Store.Backend)

	client := topcoder.New(cfg.Worker.Topcoder, cfg.Worker.HTTPTimeout)
	p := pipeline.New(pipeline.Options{
		Source:      client,
		Fetcher:     client,
		Store:       st,
		Rules:       rules,
		Seeds:       cfg.Worker.Seeds,
		Concurrency: cfg.Worker.FetchConcurrency,
	})

	return &app{cfg: cfg, path: path, store: st, pipeline: p}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		slog.Error("worker: close store", "err", err)
	}
}
