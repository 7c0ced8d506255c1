// Package store persists tracked challenges and the published leaderboard.
//
// Store is the single handle both binaries use: the worker seeds, inserts
// newly observed challenges, lists them back and publishes rankings; the
// server only reads the leaderboard. Handles are opened explicitly with
// Open(ctx, Config) and closed on shutdown.
//
// Backends:
//   - sqlite: database/sql over modernc.org/sqlite (pure Go). Default.
//   - postgres: gorm with the pgx-based postgres driver.
//   - memory: mutex-guarded maps, for dry runs and tests.
//
// Every backend honours the same contract:
//   - Seed is idempotent. If all seeds are present it is a no-op, if none
//     are present all are inserted, and a partial set is
//     apperror.ErrCorruptState.
//   - InsertNew is all-or-nothing. A row count that differs from the input
//     (e.g. an id already stored) rolls back and returns ErrPersistence.
//   - Publish replaces the leaderboard wholesale inside one transaction, so
//     readers observe either the previous set or the new one.
package store
