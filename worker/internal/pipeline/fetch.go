package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/challengeboard/challengeboard/pkg/types"
)

// FetchAll fetches results for every ref with at most limit requests in
// flight and waits for all of them. Absent results are dropped; the rest are
// returned in ref order. The first hard failure cancels the outstanding
// fetches and is returned.
func FetchAll(ctx context.Context, f ResultFetcher, refs []types.ChallengeRef, limit int) ([]types.ChallengeResult, error) {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	slots := make([]*types.ChallengeResult, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ref := range refs {
		g.Go(func() error {
			res, err := f.FetchResults(gctx, ref.ID, ref.Community)
			if err != nil {
				return err
			}
			if res == nil {
				slog.Debug("pipeline: results not final yet", "challenge", ref.ID)
				return nil
			}
			slots[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]types.ChallengeResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}
