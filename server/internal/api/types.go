package api

import "github.com/challengeboard/challengeboard/pkg/types"

// MonthResponse is one entry of the GET / payload.
type MonthResponse struct {
	Month  string          `json:"month"`
	Scores []ScoreResponse `json:"scores"`
}

// ScoreResponse is one participant's total for the month.
type ScoreResponse struct {
	Handle string `json:"handle"`
	Score  int    `json:"score"`
}

// toResponse converts rankings to the wire shape. Empty lists encode as []
// rather than null.
func toResponse(rankings []types.MonthlyRanking) []MonthResponse {
	out := make([]MonthResponse, 0, len(rankings))
	for _, r := range rankings {
		scores := make([]ScoreResponse, 0, len(r.Scores))
		for _, s := range r.Scores {
			scores = append(scores, ScoreResponse{Handle: s.Handle, Score: s.Score})
		}
		out = append(out, MonthResponse{Month: r.Month, Scores: scores})
	}
	return out
}
