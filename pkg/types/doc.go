// Package types defines shared Go types used by both the worker and server.
// These are the canonical in-memory representations of challenges, results
// and rankings, separate from the remote API payloads and the store schema.
package types
