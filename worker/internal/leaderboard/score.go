package leaderboard

// Constants of the placement score formula.
const (
	// TopScore is awarded for first place.
	TopScore = 100

	// PlacementStep is deducted for each place below first.
	PlacementStep = 10

	// MinScore is the floor every passing placement earns.
	MinScore = 10
)

// Score returns the points a passing submission earns for its placement:
//
//	max(MinScore, TopScore - (placement-1)*PlacementStep)
//
// so 1st → 100, 2nd → 90, 10th and below → 10. A placement below 1 is not
// a ranking and earns 0.
func Score(placement int) int {
	if placement < 1 {
		return 0
	}
	return max(MinScore, TopScore-(placement-1)*PlacementStep)
}
