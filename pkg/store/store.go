package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/challengeboard/challengeboard/pkg/apperror"
	"github.com/challengeboard/challengeboard/pkg/types"
)

// Backend names accepted in Config.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultBackend         = BackendSQLite
	DefaultSQLiteDSN       = "challengeboard.db"
	DefaultChallengesTable = "challenges"
	DefaultRankingsTable   = "rankings"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is the durable challenge store plus the published leaderboard.
type Store interface {
	// Seed inserts the known historical challenges unless they are already
	// present. It returns the number of rows inserted.
	Seed(ctx context.Context, seeds []types.Challenge) (int, error)

	// InsertNew stores challenges that are not yet tracked.
	InsertNew(ctx context.Context, challenges []types.Challenge) error

	// ListAll returns every stored challenge ordered by id. Community is only
	// populated when withCommunity is true.
	ListAll(ctx context.Context, withCommunity bool) ([]types.ChallengeRef, error)

	// Publish replaces the published leaderboard with rankings.
	Publish(ctx context.Context, rankings []types.MonthlyRanking) error

	// Leaderboard returns the published rankings in publication order.
	Leaderboard(ctx context.Context) ([]types.MonthlyRanking, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend. It is embedded under the
// `store:` key of config.yaml by both binaries.
type Config struct {
	// Backend is one of: sqlite | postgres | memory.
	Backend string `yaml:"backend"`

	// DSN is the sqlite file path (or ":memory:") or the postgres
	// connection string.
	DSN string `yaml:"dsn"`

	ChallengesTable string `yaml:"challenges_table"`
	RankingsTable   string `yaml:"rankings_table"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.DSN == "" && c.Backend == BackendSQLite {
		c.DSN = DefaultSQLiteDSN
	}
	if c.ChallengesTable == "" {
		c.ChallengesTable = DefaultChallengesTable
	}
	if c.RankingsTable == "" {
		c.RankingsTable = DefaultRankingsTable
	}
	return c
}

// Validate checks the backend name and table identifiers.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("store.dsn is required for backend %q", c.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend %q unknown: want sqlite|postgres|memory", c.Backend)
	}
	if !identRe.MatchString(c.ChallengesTable) {
		return fmt.Errorf("store.challenges_table %q is not a valid identifier", c.ChallengesTable)
	}
	if !identRe.MatchString(c.RankingsTable) {
		return fmt.Errorf("store.rankings_table %q is not a valid identifier", c.RankingsTable)
	}
	if c.ChallengesTable == c.RankingsTable {
		return fmt.Errorf("store.challenges_table and store.rankings_table must differ")
	}
	return nil
}

// IsPostgresDSN reports whether dsn is a postgres connection URL.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open connects to the configured backend and prepares its schema.
// Connection failures are reported as apperror.ErrPersistence.
func Open(ctx context.Context, cfg Config) (Store, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendPostgres:
		return OpenPostgres(ctx, cfg)
	default:
		return OpenSQLite(ctx, cfg)
	}
}

// seedWith implements the Seed contract on top of two backend primitives:
// count reports how many of ids are stored, insert stores all seeds.
func seedWith(
	ctx context.Context,
	seeds []types.Challenge,
	count func(ctx context.Context, ids []int64) (int, error),
	insert func(ctx context.Context, challenges []types.Challenge) error,
) (int, error) {
	if len(seeds) == 0 {
		return 0, nil
	}
	ids := uniqueIDs(seeds)

	present, err := count(ctx, ids)
	if err != nil {
		return 0, apperror.Persistence("seed: count existing", err)
	}

	switch present {
	case len(ids):
		return 0, nil
	case 0:
		if err := insert(ctx, seeds); err != nil {
			return 0, err
		}
		return len(seeds), nil
	default:
		return 0, apperror.CorruptState("seed",
			fmt.Errorf("%d of %d seed challenges already stored", present, len(ids)))
	}
}

func uniqueIDs(cs []types.Challenge) []int64 {
	seen := make(map[int64]struct{}, len(cs))
	ids := make([]int64, 0, len(cs))
	for _, c := range cs {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		ids = append(ids, c.ID)
	}
	return ids
}

// insertMismatch is the error returned when a bulk insert writes fewer rows
// than requested.
func insertMismatch(op string, inserted, want int) error {
	return apperror.Persistencef(op, "inserted %d of %d rows", inserted, want)
}

func cloneRankings(in []types.MonthlyRanking) []types.MonthlyRanking {
	out := make([]types.MonthlyRanking, len(in))
	for i, r := range in {
		scores := make([]types.ParticipantScore, len(r.Scores))
		copy(scores, r.Scores)
		out[i] = types.MonthlyRanking{Month: r.Month, Scores: scores}
	}
	return out
}
