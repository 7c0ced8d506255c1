package types

import "time"

// Community kinds. The kind selects which result endpoint serves a challenge.
const (
	CommunityDevelop = "develop"
	CommunityDesign  = "design"
)

// Challenge is one contest tracked by the remote platform. It is created once,
// when first observed or seeded, and never mutated afterwards.
type Challenge struct {
	ID     int64  `json:"challengeId" yaml:"challenge_id"`
	Status string `json:"status" yaml:"status"`

	// RegistrationStartDate is kept verbatim; the platform does not use a
	// consistent layout and nothing downstream needs it parsed.
	RegistrationStartDate string `json:"registrationStartDate" yaml:"registration_start_date"`

	Name      string `json:"challengeName" yaml:"challenge_name"`
	Community string `json:"challengeCommunity" yaml:"challenge_community"`
}

// Ref returns the identifying subset of c used to drive result fetching.
func (c Challenge) Ref() ChallengeRef {
	return ChallengeRef{ID: c.ID, Community: c.Community}
}

// ChallengeRef is a stored challenge reduced to what result fetching needs.
// Community is empty when the store was listed without it.
type ChallengeRef struct {
	ID        int64
	Community string
}

// Placement is one participant's outcome in a single challenge.
type Placement struct {
	Handle     string
	Placement  int
	FinalScore float64
}

// ChallengeResult holds the final results of one challenge. It is rebuilt from
// the remote API on every cycle and never persisted.
type ChallengeResult struct {
	ChallengeID int64
	EndDate     time.Time
	Placements  []Placement
}

// Month is one tracked leaderboard period, covering [Start, End).
type Month struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the half-open interval [Start, End).
func (m Month) Contains(t time.Time) bool {
	return !t.Before(m.Start) && t.Before(m.End)
}

// ParticipantScore is a participant's cumulative score for one month.
type ParticipantScore struct {
	Handle string `json:"handle"`
	Score  int    `json:"score"`
}

// MonthlyRanking is the derived leaderboard for one month.
type MonthlyRanking struct {
	Month  string             `json:"month"`
	Scores []ParticipantScore `json:"scores"`
}
