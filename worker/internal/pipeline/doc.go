// Package pipeline orchestrates the leaderboard sync cycle.
//
// pipeline.go runs the stages in order, each a barrier for the next:
//
//	fetch candidates → list stored ids → reconcile → insert new
//	→ list stored with community → fetch results → aggregate → publish
//
// The first failing stage aborts the cycle. Keyword, passing score and
// months live behind an atomic pointer so a config reload takes effect on
// the next cycle without locking the running one.
//
// fetch.go bounds concurrent result requests with an errgroup limit.
//
// scheduler.go drives cycles with robfig/cron: one immediately at Start,
// then on the schedule. Overlapping ticks are skipped, panics are recovered,
// and each cycle takes the configured lock.Locker, is timed in metrics and
// reported to notify on failure and recovery.
package pipeline
