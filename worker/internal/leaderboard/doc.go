// Package leaderboard turns challenge results into monthly rankings.
//
// score.go holds the placement formula: 100 for first place, 10 less for each
// place below, never under 10.
//
// aggregate.go buckets results into half-open month windows by end date,
// drops placements under the passing score, sums points per handle and
// orders each month by score descending with the handle as tie-break.
// Aggregate is pure; the same inputs always give the same rankings.
package leaderboard
