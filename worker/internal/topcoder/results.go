package topcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/challengeboard/challengeboard/pkg/apperror"
	"github.com/challengeboard/challengeboard/pkg/types"
)

type resultDTO struct {
	ChallengeEndDate string           `json:"challengeEndDate" validate:"required"`
	Results          []resultEntryDTO `json:"results" validate:"required,dive"`
}

type resultEntryDTO struct {
	Handle     string  `json:"handle" validate:"required"`
	Placement  int     `json:"placement" validate:"gte=1"`
	FinalScore float64 `json:"finalScore"`
}

type errorDTO struct {
	Error struct {
		Details string `json:"details"`
	} `json:"error"`
}

// endDateLayouts are tried in order. The platform mixes RFC 3339 with
// offsets written without a colon.
var endDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FetchResults returns the final results of challenge id. It returns
// (nil, nil) when the platform reports the challenge as not finished or
// cancelled; every other failure is an apperror.ErrUpstream.
func (c *Client) FetchResults(ctx context.Context, id int64, community string) (*types.ChallengeResult, error) {
	op := fmt.Sprintf("fetch results %d", id)

	resp, err := c.get(ctx, c.ResultURL(id, community))
	if err != nil {
		return nil, apperror.Upstream(op, err)
	}
	if !resp.ok() {
		if c.notFinished(resp.body) {
			return nil, nil
		}
		return nil, apperror.Upstreamf(op, "unexpected status %d", resp.status)
	}

	var dto resultDTO
	if err := c.decode(resp.body, &dto); err != nil {
		return nil, apperror.Upstream(op, err)
	}
	end, err := ParseEndDate(dto.ChallengeEndDate)
	if err != nil {
		return nil, apperror.Upstream(op, err)
	}

	res := &types.ChallengeResult{
		ChallengeID: id,
		EndDate:     end,
		Placements:  make([]types.Placement, len(dto.Results)),
	}
	for i, r := range dto.Results {
		res.Placements[i] = types.Placement{Handle: r.Handle, Placement: r.Placement, FinalScore: r.FinalScore}
	}
	return res, nil
}

// ResultURL is the result endpoint for a challenge. Communities without a
// configured base fall back to design.
func (c *Client) ResultURL(id int64, community string) string {
	base, ok := c.cfg.ResultURLs[community]
	if !ok || base == "" {
		base = c.cfg.ResultURLs[types.CommunityDesign]
	}
	return base + strconv.FormatInt(id, 10)
}

func (c *Client) notFinished(body []byte) bool {
	var e errorDTO
	if err := json.Unmarshal(body, &e); err != nil {
		return false
	}
	return e.Error.Details != "" && e.Error.Details == c.cfg.NoResultsMessage
}

// ParseEndDate parses a challengeEndDate value into UTC.
func ParseEndDate(s string) (time.Time, error) {
	for _, layout := range endDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable challengeEndDate %q", s)
}
