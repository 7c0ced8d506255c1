package leaderboard

import (
	"sort"

	"github.com/challengeboard/challengeboard/pkg/types"
)

// Aggregate builds one ranking per month, in the order months are given.
//
// A result counts toward a month when its end date falls in [Start, End).
// Within it, only ranked placements (1 or more) with FinalScore >=
// passingScore earn points, and a participant's points are summed across
// the month's challenges.
// Participants without a passing placement are left out. Scores are sorted
// by score descending, then handle ascending. An empty month has an empty,
// non-nil Scores slice.
func Aggregate(results []types.ChallengeResult, months []types.Month, passingScore float64) []types.MonthlyRanking {
	out := make([]types.MonthlyRanking, 0, len(months))
	for _, m := range months {
		totals := make(map[string]int)
		for _, r := range results {
			if !m.Contains(r.EndDate) {
				continue
			}
			for _, p := range r.Placements {
				if p.Placement < 1 || p.FinalScore < passingScore {
					continue
				}
				totals[p.Handle] += Score(p.Placement)
			}
		}
		out = append(out, types.MonthlyRanking{Month: m.Name, Scores: sortedScores(totals)})
	}
	return out
}

func sortedScores(totals map[string]int) []types.ParticipantScore {
	scores := make([]types.ParticipantScore, 0, len(totals))
	for h, s := range totals {
		scores = append(scores, types.ParticipantScore{Handle: h, Score: s})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Handle < scores[j].Handle
	})
	return scores
}

// Participants counts the ranked participants in each month.
func Participants(rankings []types.MonthlyRanking) map[string]int {
	out := make(map[string]int, len(rankings))
	for _, r := range rankings {
		out[r.Month] = len(r.Scores)
	}
	return out
}
