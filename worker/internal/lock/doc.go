// Package lock guards the sync cycle so only one runs at a time.
//
// Local serialises cycles within one process. Redis extends the guard across
// processes sharing a store: the lock is a key set with SET NX PX holding a
// random token, and release deletes it only if the token still matches, so a
// worker whose lock expired cannot free another worker's lock.
package lock
