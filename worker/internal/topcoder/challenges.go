package topcoder

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/challengeboard/challengeboard/pkg/apperror"
	"github.com/challengeboard/challengeboard/pkg/types"
	"github.com/challengeboard/challengeboard/worker/internal/config"
)

type challengeListDTO struct {
	Data []challengeDTO `json:"data" validate:"required,dive"`
}

type challengeDTO struct {
	ChallengeID           int64  `json:"challengeId" validate:"required,gt=0"`
	Status                string `json:"status"`
	RegistrationStartDate string `json:"registrationStartDate"`
	ChallengeName         string `json:"challengeName" validate:"required"`
	ChallengeCommunity    string `json:"challengeCommunity"`
}

// FetchCandidateChallenges lists active challenges with the configured filter
// and keeps those whose name contains keyword, ignoring case. Records carry
// only the fields the store persists.
func (c *Client) FetchCandidateChallenges(ctx context.Context, keyword string) ([]types.Challenge, error) {
	const op = "fetch challenges"

	u, err := listingURL(c.cfg.ChallengeURL, c.cfg.Filter)
	if err != nil {
		return nil, apperror.Upstream(op, err)
	}
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, apperror.Upstream(op, err)
	}
	if !resp.ok() {
		return nil, apperror.Upstreamf(op, "unexpected status %d", resp.status)
	}

	var list challengeListDTO
	if err := c.decode(resp.body, &list); err != nil {
		return nil, apperror.Upstream(op, err)
	}

	out := make([]types.Challenge, 0, len(list.Data))
	for _, d := range list.Data {
		if !MatchesKeyword(d.ChallengeName, keyword) {
			continue
		}
		out = append(out, types.Challenge{
			ID:                    d.ChallengeID,
			Status:                d.Status,
			RegistrationStartDate: d.RegistrationStartDate,
			Name:                  d.ChallengeName,
			Community:             d.ChallengeCommunity,
		})
	}
	return out, nil
}

// MatchesKeyword reports whether name contains keyword, ignoring case.
func MatchesKeyword(name, keyword string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(keyword))
}

func listingURL(base string, f config.ChallengeFilter) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	setInt := func(k string, v int) {
		if v != 0 {
			q.Set(k, strconv.Itoa(v))
		}
	}
	setStr := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	setInt("pageIndex", f.PageIndex)
	setInt("pageSize", f.PageSize)
	setStr("review", f.Review)
	setStr("sortColumn", f.SortColumn)
	setStr("sortOrder", f.SortOrder)
	setStr("technologies", f.Technologies)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
