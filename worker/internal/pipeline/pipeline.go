package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/challengeboard/challengeboard/pkg/types"
	"github.com/challengeboard/challengeboard/worker/internal/leaderboard"
	"github.com/challengeboard/challengeboard/worker/internal/reconcile"
)

// DefaultConcurrency bounds result fetches when Options.Concurrency is unset.
const DefaultConcurrency = 5

// Stage names reported in Report.FailedStage.
const (
	StageFetchChallenges = "fetch_challenges"
	StageListStored      = "list_stored"
	StageInsertNew       = "insert_new"
	StageListTracked     = "list_tracked"
	StageFetchResults    = "fetch_results"
	StagePublish         = "publish"
)

// ChallengeSource lists keyword-matching challenges from the remote platform.
type ChallengeSource interface {
	FetchCandidateChallenges(ctx context.Context, keyword string) ([]types.Challenge, error)
}

// ResultFetcher returns a challenge's final results, or nil when they are
// not available yet.
type ResultFetcher interface {
	FetchResults(ctx context.Context, id int64, community string) (*types.ChallengeResult, error)
}

// Store is the persistence the pipeline needs.
type Store interface {
	Seed(ctx context.Context, seeds []types.Challenge) (int, error)
	InsertNew(ctx context.Context, challenges []types.Challenge) error
	ListAll(ctx context.Context, withCommunity bool) ([]types.ChallengeRef, error)
	Publish(ctx context.Context, rankings []types.MonthlyRanking) error
}

// Rules are the cycle parameters that may change while the worker runs.
type Rules struct {
	Keyword      string
	PassingScore float64
	Months       []types.Month
}

// Options configures a Pipeline.
type Options struct {
	Source  ChallengeSource
	Fetcher ResultFetcher
	Store   Store

	Rules Rules

	// Seeds are inserted by Seed.
	Seeds []types.Challenge

	// Concurrency bounds simultaneous result fetches.
	Concurrency int
}

// Report describes one cycle. Counts are filled as stages complete, so a
// failed cycle's report shows how far it got.
type Report struct {
	Cycle       string
	Candidates  int
	Inserted    int
	Stored      int
	Finished    int
	Pending     int
	Rankings    []types.MonthlyRanking
	FailedStage string
}

// Pipeline runs the sync cycle: fetch candidates, store the new ones, fetch
// results for everything stored, aggregate and publish.
type Pipeline struct {
	source      ChallengeSource
	fetcher     ResultFetcher
	store       Store
	seeds       []types.Challenge
	concurrency int

	rules atomic.Pointer[Rules]
}

// New returns a Pipeline. Source, Fetcher and Store are required.
func New(opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	p := &Pipeline{
		source:      opts.Source,
		fetcher:     opts.Fetcher,
		store:       opts.Store,
		seeds:       opts.Seeds,
		concurrency: opts.Concurrency,
	}
	p.SetRules(opts.Rules)
	return p
}

// SetRules replaces the rules used by cycles that start afterwards.
func (p *Pipeline) SetRules(r Rules) {
	months := make([]types.Month, len(r.Months))
	copy(months, r.Months)
	r.Months = months
	p.rules.Store(&r)
}

// Rules returns the rules the next cycle will use.
func (p *Pipeline) Rules() Rules {
	return *p.rules.Load()
}

// Seed inserts the historical challenges unless they are already stored.
func (p *Pipeline) Seed(ctx context.Context) (int, error) {
	n, err := p.store.Seed(ctx, p.seeds)
	if err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	if n > 0 {
		slog.Info("pipeline: seeded historical challenges", "inserted", n)
	} else {
		slog.Debug("pipeline: historical challenges already present", "count", len(p.seeds))
	}
	return n, nil
}

// Run executes one cycle and stops at the first failing stage. Stages that
// committed before the failure stay committed; the published leaderboard is
// only replaced by a cycle that reaches the last stage.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	rules := p.rules.Load()
	rep := &Report{Cycle: uuid.NewString()}
	log := slog.With("cycle", rep.Cycle)

	fail := func(stage string, err error) (*Report, error) {
		rep.FailedStage = stage
		return rep, fmt.Errorf("%s: %w", stage, err)
	}

	log.Debug("pipeline: fetching candidate challenges", "keyword", rules.Keyword)
	remote, err := p.source.FetchCandidateChallenges(ctx, rules.Keyword)
	if err != nil {
		return fail(StageFetchChallenges, err)
	}
	rep.Candidates = len(remote)

	stored, err := p.store.ListAll(ctx, false)
	if err != nil {
		return fail(StageListStored, err)
	}

	fresh := reconcile.NewChallenges(remote, reconcile.IDs(stored))
	if len(fresh) > 0 {
		if err := p.store.InsertNew(ctx, fresh); err != nil {
			return fail(StageInsertNew, err)
		}
		rep.Inserted = len(fresh)
		log.Info("pipeline: stored new challenges", "count", len(fresh))
	} else {
		log.Debug("pipeline: no new challenges")
	}

	tracked, err := p.store.ListAll(ctx, true)
	if err != nil {
		return fail(StageListTracked, err)
	}
	rep.Stored = len(tracked)

	results, err := FetchAll(ctx, p.fetcher, tracked, p.concurrency)
	if err != nil {
		return fail(StageFetchResults, err)
	}
	rep.Finished = len(results)
	rep.Pending = len(tracked) - len(results)

	rep.Rankings = leaderboard.Aggregate(results, rules.Months, rules.PassingScore)
	if err := p.store.Publish(ctx, rep.Rankings); err != nil {
		return fail(StagePublish, err)
	}
	return rep, nil
}
