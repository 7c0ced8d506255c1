package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/challengeboard/challengeboard/pkg/apperror"
	"github.com/challengeboard/challengeboard/pkg/types"
)

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db         *sql.DB
	challenges string
	rankings   string
}

// OpenSQLite opens (creating if needed) the database at cfg.DSN and ensures
// both tables exist.
func OpenSQLite(ctx context.Context, cfg Config) (*SQLite, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, apperror.Persistence("open sqlite", err)
	}
	// One connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperror.Persistence("open sqlite", err)
	}
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			slog.Debug("store: sqlite pragma failed", "pragma", pragma, "err", err)
		}
	}

	s := &SQLite{db: db, challenges: cfg.ChallengesTable, rankings: cfg.RankingsTable}
	if err := s.migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("store: sqlite ready", "dsn", cfg.DSN)
	return s, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) migrate(ctx context.Context, db execer) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.challenges+` (
		challenge_id            INTEGER PRIMARY KEY,
		status                  TEXT NOT NULL DEFAULT '',
		registration_start_date TEXT NOT NULL DEFAULT '',
		challenge_name          TEXT NOT NULL DEFAULT '',
		challenge_community     TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		return apperror.Persistence("create challenges table", err)
	}
	if err := s.createRankings(ctx, db); err != nil {
		return apperror.Persistence("create rankings table", err)
	}
	return nil
}

func (s *SQLite) createRankings(ctx context.Context, db execer) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.rankings+` (
		position INTEGER PRIMARY KEY,
		month    TEXT NOT NULL,
		scores   TEXT NOT NULL
	)`)
	return err
}

func (s *SQLite) Seed(ctx context.Context, seeds []types.Challenge) (int, error) {
	return seedWith(ctx, seeds, s.count, s.InsertNew)
}

func (s *SQLite) count(ctx context.Context, ids []int64) (int, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE challenge_id IN (%s)", s.challenges, placeholders(len(ids)))
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// InsertNew inserts challenges in one transaction. Rows whose id is already
// stored are ignored by SQLite; any shortfall rolls the whole batch back.
func (s *SQLite) InsertNew(ctx context.Context, challenges []types.Challenge) error {
	if len(challenges) == 0 {
		return nil
	}
	const op = "insert challenges"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Persistence(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO `+s.challenges+`
		(challenge_id, status, registration_start_date, challenge_name, challenge_community)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return apperror.Persistence(op, err)
	}
	defer stmt.Close()

	var inserted int64
	for _, c := range challenges {
		res, err := stmt.ExecContext(ctx, c.ID, c.Status, c.RegistrationStartDate, c.Name, c.Community)
		if err != nil {
			return apperror.Persistence(op, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperror.Persistence(op, err)
		}
		inserted += n
	}
	if int(inserted) != len(challenges) {
		return insertMismatch(op, int(inserted), len(challenges))
	}
	if err := tx.Commit(); err != nil {
		return apperror.Persistence(op, err)
	}
	return nil
}

func (s *SQLite) ListAll(ctx context.Context, withCommunity bool) ([]types.ChallengeRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT challenge_id, challenge_community FROM `+s.challenges+` ORDER BY challenge_id`)
	if err != nil {
		return nil, apperror.Persistence("list challenges", err)
	}
	defer rows.Close()

	var out []types.ChallengeRef
	for rows.Next() {
		var ref types.ChallengeRef
		var community string
		if err := rows.Scan(&ref.ID, &community); err != nil {
			return nil, apperror.Persistence("list challenges", err)
		}
		if withCommunity {
			ref.Community = community
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Persistence("list challenges", err)
	}
	return out, nil
}

// Publish clears the rankings table and writes rankings in one transaction.
func (s *SQLite) Publish(ctx context.Context, rankings []types.MonthlyRanking) error {
	const op = "publish rankings"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Persistence(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	// The table may have been dropped out of band; nothing to clear is fine.
	if err := s.createRankings(ctx, tx); err != nil {
		return apperror.Persistence(op, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+s.rankings); err != nil {
		return apperror.Persistence(op, err)
	}

	var inserted int64
	for i, r := range rankings {
		scores, err := encodeScores(r.Scores)
		if err != nil {
			return apperror.Persistence(op, err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO `+s.rankings+` (position, month, scores) VALUES (?, ?, ?)`, i, r.Month, scores)
		if err != nil {
			return apperror.Persistence(op, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperror.Persistence(op, err)
		}
		inserted += n
	}
	if int(inserted) != len(rankings) {
		return insertMismatch(op, int(inserted), len(rankings))
	}
	if err := tx.Commit(); err != nil {
		return apperror.Persistence(op, err)
	}
	return nil
}

func (s *SQLite) Leaderboard(ctx context.Context) ([]types.MonthlyRanking, error) {
	const op = "read leaderboard"

	rows, err := s.db.QueryContext(ctx, `SELECT month, scores FROM `+s.rankings+` ORDER BY position`)
	if err != nil {
		return nil, apperror.Persistence(op, err)
	}
	defer rows.Close()

	out := make([]types.MonthlyRanking, 0)
	for rows.Next() {
		var month, raw string
		if err := rows.Scan(&month, &raw); err != nil {
			return nil, apperror.Persistence(op, err)
		}
		scores, err := decodeScores(raw)
		if err != nil {
			return nil, apperror.Persistence(op, err)
		}
		out = append(out, types.MonthlyRanking{Month: month, Scores: scores})
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Persistence(op, err)
	}
	return out, nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// encodeScores serialises a month's scores for the scores column.
// Handles may contain characters that are awkward as column or key names,
// so scores are stored as an ordered list rather than a map.
func encodeScores(scores []types.ParticipantScore) (string, error) {
	if scores == nil {
		scores = []types.ParticipantScore{}
	}
	b, err := json.Marshal(scores)
	if err != nil {
		return "", fmt.Errorf("encode scores: %w", err)
	}
	return string(b), nil
}

func decodeScores(raw string) ([]types.ParticipantScore, error) {
	scores := make([]types.ParticipantScore, 0)
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	return scores, nil
}
