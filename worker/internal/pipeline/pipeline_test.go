package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/challengeboard/challengeboard/pkg/apperror"
	"github.com/challengeboard/challengeboard/pkg/store"
	"github.com/challengeboard/challengeboard/pkg/types"
	"github.com/challengeboard/challengeboard/worker/internal/topcoder"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource returns a fixed listing filtered by keyword, or err.
type fakeSource struct {
	mu         sync.Mutex
	challenges []types.Challenge
	err        error
	keywords   []string
}

func (f *fakeSource) FetchCandidateChallenges(_ context.Context, keyword string) ([]types.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keywords = append(f.keywords, keyword)
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Challenge
	for _, c := range f.challenges {
		if topcoder.MatchesKeyword(c.Name, keyword) {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeFetcher serves results by id. Ids missing from results are "not
// finished"; ids in errs fail.
type fakeFetcher struct {
	results map[int64]types.ChallengeResult
	errs    map[int64]error
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func (f *fakeFetcher) FetchResults(ctx context.Context, id int64, _ string) (*types.ChallengeResult, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	r, ok := f.results[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

var testMonths = []types.Month{
	{Name: "october", Start: day(2015, 10, 1), End: day(2015, 11, 1)},
	{Name: "november", Start: day(2015, 11, 1), End: day(2015, 12, 1)},
	{Name: "december", Start: day(2015, 12, 1), End: day(2016, 1, 1)},
}

func testRules() Rules {
	return Rules{Keyword: "swiftoberfest", PassingScore: 75, Months: testMonths}
}

func newPipeline(src ChallengeSource, f ResultFetcher, st Store) *Pipeline {
	return New(Options{Source: src, Fetcher: f, Store: st, Rules: testRules()})
}

func TestRun_KeywordFilterAndNotFinished(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	src := &fakeSource{challenges: []types.Challenge{
		{ID: 1, Name: "Swiftoberfest tvOS app", Community: types.CommunityDevelop},
		{ID: 2, Name: "Java batch job", Community: types.CommunityDevelop},
	}}
	p := newPipeline(src, &fakeFetcher{}, st)

	rep, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Candidates)
	assert.Equal(t, 1, rep.Inserted)
	assert.Equal(t, 0, rep.Finished)
	assert.Equal(t, 1, rep.Pending)
	assert.NotEmpty(t, rep.Cycle)

	refs, err := st.ListAll(ctx, true)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, int64(1), refs[0].ID)

	board, err := st.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 3)
	for _, m := range board {
		assert.Empty(t, m.Scores, "month %s", m.Month)
	}
}

func TestRun_SumsScoresWithinMonth(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	src := &fakeSource{challenges: []types.Challenge{
		{ID: 10, Name: "Swiftoberfest A", Community: types.CommunityDevelop},
		{ID: 11, Name: "Swiftoberfest B", Community: types.CommunityDesign},
	}}
	f := &fakeFetcher{results: map[int64]types.ChallengeResult{
		10: {ChallengeID: 10, EndDate: day(2015, 10, 5), Placements: []types.Placement{
			{Handle: "alice", Placement: 1, FinalScore: 97},
			{Handle: "bob", Placement: 2, FinalScore: 50},
		}},
		11: {ChallengeID: 11, EndDate: day(2015, 10, 25), Placements: []types.Placement{
			{Handle: "carol", Placement: 1, FinalScore: 90},
			{Handle: "dave", Placement: 2, FinalScore: 85},
			{Handle: "alice", Placement: 3, FinalScore: 80},
		}},
	}}
	p := newPipeline(src, f, st)

	rep, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Finished)

	board, err := st.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "october", board[0].Month)
	assert.Equal(t, []types.ParticipantScore{
		{Handle: "alice", Score: 180},
		{Handle: "carol", Score: 100},
		{Handle: "dave", Score: 90},
	}, board[0].Scores)
}

func TestRun_SecondCycleInsertsNothing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	src := &fakeSource{challenges: []types.Challenge{{ID: 1, Name: "Swiftoberfest"}}}
	p := newPipeline(src, &fakeFetcher{}, st)

	_, err := p.Run(ctx)
	require.NoError(t, err)
	rep, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Inserted)
	assert.Equal(t, 1, rep.Stored)
}

func TestRun_IncludesSeeds(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seeds := []types.Challenge{{ID: 30051611, Status: "active", Name: "old [Swiftoberfest]"}}
	f := &fakeFetcher{results: map[int64]types.ChallengeResult{
		30051611: {EndDate: day(2015, 10, 9), Placements: []types.Placement{{Handle: "eve", Placement: 1, FinalScore: 99}}},
	}}
	p := New(Options{Source: &fakeSource{}, Fetcher: f, Store: st, Rules: testRules(), Seeds: seeds})

	n, err := p.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = p.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rep, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Finished)
	assert.Equal(t, []types.ParticipantScore{{Handle: "eve", Score: 100}}, rep.Rankings[0].Scores)
}

func TestSeed_CorruptState(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seeds := []types.Challenge{{ID: 1}, {ID: 2}, {ID: 3}}
	require.NoError(t, st.InsertNew(ctx, seeds[:2]))

	p := New(Options{Source: &fakeSource{}, Fetcher: &fakeFetcher{}, Store: st, Rules: testRules(), Seeds: seeds})
	_, err := p.Seed(ctx)
	assert.ErrorIs(t, err, apperror.ErrCorruptState)
}

func TestRun_SourceFailureKeepsLeaderboard(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	previous := []types.MonthlyRanking{{Month: "october", Scores: []types.ParticipantScore{{Handle: "x", Score: 10}}}}
	require.NoError(t, st.Publish(ctx, previous))

	src := &fakeSource{err: apperror.Upstreamf("fetch challenges", "unexpected status %d", 503)}
	p := newPipeline(src, &fakeFetcher{}, st)

	rep, err := p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrUpstream)
	assert.Equal(t, StageFetchChallenges, rep.FailedStage)

	board, err := st.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, previous, board)
}

func TestRun_ResultFailureAbortsAfterInsert(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	src := &fakeSource{challenges: []types.Challenge{
		{ID: 1, Name: "Swiftoberfest 1"},
		{ID: 2, Name: "Swiftoberfest 2"},
	}}
	f := &fakeFetcher{errs: map[int64]error{2: apperror.Upstreamf("fetch results 2", "unexpected status %d", 500)}}
	p := newPipeline(src, f, st)

	rep, err := p.Run(ctx)
	assert.ErrorIs(t, err, apperror.ErrUpstream)
	assert.Equal(t, StageFetchResults, rep.FailedStage)
	assert.Equal(t, 2, rep.Inserted, "insert committed before the failing stage")

	board, err := st.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Empty(t, board, "nothing published")
	assert.Equal(t, 2, st.Count())
}

func TestSetRules_AppliesToNextCycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	src := &fakeSource{challenges: []types.Challenge{
		{ID: 1, Name: "Swiftoberfest"},
		{ID: 2, Name: "Hacktober"},
	}}
	p := newPipeline(src, &fakeFetcher{}, st)

	_, err := p.Run(ctx)
	require.NoError(t, err)

	rules := testRules()
	rules.Keyword = "hacktober"
	rules.Months = testMonths[:1]
	p.SetRules(rules)
	assert.Equal(t, "hacktober", p.Rules().Keyword)

	rep, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Inserted)
	assert.Len(t, rep.Rankings, 1)
	assert.Equal(t, []string{"swiftoberfest", "hacktober"}, src.keywords)
}

// failingStore wraps a Memory store and fails the named operation.
type failingStore struct {
	*store.Memory
	failInsert  bool
	failPublish bool
}

func (s *failingStore) InsertNew(ctx context.Context, cs []types.Challenge) error {
	if s.failInsert {
		return apperror.Persistencef("insert challenges", "inserted %d of %d rows", 0, len(cs))
	}
	return s.Memory.InsertNew(ctx, cs)
}

func (s *failingStore) Publish(ctx context.Context, r []types.MonthlyRanking) error {
	if s.failPublish {
		return apperror.Persistence("publish rankings", errors.New("disk full"))
	}
	return s.Memory.Publish(ctx, r)
}

func TestRun_PersistenceFailures(t *testing.T) {
	tests := []struct {
		name  string
		st    *failingStore
		stage string
	}{
		{"insert", &failingStore{Memory: store.NewMemory(), failInsert: true}, StageInsertNew},
		{"publish", &failingStore{Memory: store.NewMemory(), failPublish: true}, StagePublish},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := &fakeSource{challenges: []types.Challenge{{ID: 1, Name: "Swiftoberfest"}}}
			rep, err := newPipeline(src, &fakeFetcher{}, tc.st).Run(context.Background())
			assert.ErrorIs(t, err, apperror.ErrPersistence)
			assert.Equal(t, tc.stage, rep.FailedStage)
		})
	}
}
