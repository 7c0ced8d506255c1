package reconcile

import "github.com/challengeboard/challengeboard/pkg/types"

// NewChallenges returns the challenges in remote whose id is not in storedIDs,
// in the order they first appear in remote. A challenge listed twice upstream
// is returned once. Only the persisted fields are copied.
func NewChallenges(remote []types.Challenge, storedIDs []int64) []types.Challenge {
	seen := make(map[int64]struct{}, len(storedIDs)+len(remote))
	for _, id := range storedIDs {
		seen[id] = struct{}{}
	}

	var out []types.Challenge
	for _, c := range remote {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, types.Challenge{
			ID:                    c.ID,
			Status:                c.Status,
			RegistrationStartDate: c.RegistrationStartDate,
			Name:                  c.Name,
			Community:             c.Community,
		})
	}
	return out
}

// IDs extracts the ids of refs.
func IDs(refs []types.ChallengeRef) []int64 {
	ids := make([]int64, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}
