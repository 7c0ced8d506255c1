// Package config loads and watches the worker configuration file (config.yaml).
//
// Top-level types:
//   - Config{Worker, Store}: full config tree parsed from YAML
//   - WorkerConfig: interval or cron schedule, keyword, passing_score,
//     fetch_concurrency, http_timeout, metrics_port, log_level, months, seeds
//   - TopcoderConfig: challenge listing URL and filter, per-community result
//     base URLs, and the "not finished" error detail
//   - LockConfig, NotifyConfig: optional Redis lock and failure webhooks
//
// Load(path) applies defaults, the YAML file, then the INTERVAL, KEYWORD and
// DATABASE_URL environment variables, and validates the result. INTERVAL
// accepts a Go duration or a number of milliseconds. A postgres:// DATABASE_URL
// selects the postgres store backend unless store.backend is set.
//
// Watch(ctx, path, onChange) reloads the file on change via fsnotify. Only
// the keyword, passing score and months are applied by the running worker;
// everything else needs a restart.
package config
