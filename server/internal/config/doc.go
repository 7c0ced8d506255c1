// Package config loads the read API configuration from the `server:` and
// `store:` sections of config.yaml (the `worker:` key is ignored here).
//
// Config fields:
//   - Server.HTTPPort               port for GET / (default 3000, env PORT)
//   - Server.LogLevel               debug | info | warn | error
//   - Server.ShutdownTimeoutSeconds drain time for in-flight requests
//   - Store                         shared with the worker, see pkg/store
//
// DATABASE_URL overrides store.dsn and selects postgres when the backend is
// unset and the URL says so.
package config
