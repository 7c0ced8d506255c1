package store

import (
	"context"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/challengeboard/challengeboard/pkg/apperror"
	"github.com/challengeboard/challengeboard/pkg/types"
)

type challengeRecord struct {
	ChallengeID           int64  `gorm:"column:challenge_id;primaryKey;autoIncrement:false"`
	Status                string `gorm:"column:status"`
	RegistrationStartDate string `gorm:"column:registration_start_date"`
	ChallengeName         string `gorm:"column:challenge_name"`
	ChallengeCommunity    string `gorm:"column:challenge_community"`
}

type rankingRecord struct {
	Position int    `gorm:"column:position;primaryKey;autoIncrement:false"`
	Month    string `gorm:"column:month;not null"`
	Scores   string `gorm:"column:scores;type:text;not null"`
}

// Postgres is a Store backed by PostgreSQL through gorm.
type Postgres struct {
	db         *gorm.DB
	challenges string
	rankings   string
}

// OpenPostgres connects with cfg.DSN and migrates both tables.
func OpenPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, apperror.Persistence("open postgres", err)
	}
	p := &Postgres{db: db, challenges: cfg.ChallengesTable, rankings: cfg.RankingsTable}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, apperror.Persistence("open postgres", err)
	}
	if err := db.WithContext(ctx).Table(p.challenges).AutoMigrate(&challengeRecord{}); err != nil {
		p.Close()
		return nil, apperror.Persistence("migrate challenges table", err)
	}
	if err := db.WithContext(ctx).Table(p.rankings).AutoMigrate(&rankingRecord{}); err != nil {
		p.Close()
		return nil, apperror.Persistence("migrate rankings table", err)
	}
	slog.Info("store: postgres ready", "challenges_table", p.challenges, "rankings_table", p.rankings)
	return p, nil
}

func (p *Postgres) Seed(ctx context.Context, seeds []types.Challenge) (int, error) {
	return seedWith(ctx, seeds, p.count, p.InsertNew)
}

func (p *Postgres) count(ctx context.Context, ids []int64) (int, error) {
	var n int64
	err := p.db.WithContext(ctx).Table(p.challenges).Where("challenge_id IN ?", ids).Count(&n).Error
	return int(n), err
}

// InsertNew inserts challenges in one transaction with ON CONFLICT DO
// NOTHING and rolls back when fewer rows were written than requested.
func (p *Postgres) InsertNew(ctx context.Context, challenges []types.Challenge) error {
	if len(challenges) == 0 {
		return nil
	}
	const op = "insert challenges"

	records := make([]challengeRecord, len(challenges))
	for i, c := range challenges {
		records[i] = challengeRecord{
			ChallengeID:           c.ID,
			Status:                c.Status,
			RegistrationStartDate: c.RegistrationStartDate,
			ChallengeName:         c.Name,
			ChallengeCommunity:    c.Community,
		}
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(p.challenges).Clauses(clause.OnConflict{DoNothing: true}).Create(&records)
		if res.Error != nil {
			return apperror.Persistence(op, res.Error)
		}
		if int(res.RowsAffected) != len(records) {
			return insertMismatch(op, int(res.RowsAffected), len(records))
		}
		return nil
	})
	if err != nil && apperror.KindOf(err) == nil {
		return apperror.Persistence(op, err)
	}
	return err
}

func (p *Postgres) ListAll(ctx context.Context, withCommunity bool) ([]types.ChallengeRef, error) {
	var records []challengeRecord
	err := p.db.WithContext(ctx).Table(p.challenges).
		Select("challenge_id", "challenge_community").
		Order("challenge_id").
		Find(&records).Error
	if err != nil {
		return nil, apperror.Persistence("list challenges", err)
	}
	out := make([]types.ChallengeRef, len(records))
	for i, r := range records {
		out[i].ID = r.ChallengeID
		if withCommunity {
			out[i].Community = r.ChallengeCommunity
		}
	}
	return out, nil
}

// Publish deletes every ranking row and inserts the new set inside one
// transaction.
func (p *Postgres) Publish(ctx context.Context, rankings []types.MonthlyRanking) error {
	const op = "publish rankings"

	records := make([]rankingRecord, len(rankings))
	for i, r := range rankings {
		scores, err := encodeScores(r.Scores)
		if err != nil {
			return apperror.Persistence(op, err)
		}
		records[i] = rankingRecord{Position: i, Month: r.Month, Scores: scores}
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The table may have been dropped since Open.
		if err := tx.Table(p.rankings).AutoMigrate(&rankingRecord{}); err != nil {
			return apperror.Persistence(op, err)
		}
		if err := tx.Exec("DELETE FROM " + p.rankings).Error; err != nil {
			return apperror.Persistence(op, err)
		}
		if len(records) == 0 {
			return nil
		}
		res := tx.Table(p.rankings).Create(&records)
		if res.Error != nil {
			return apperror.Persistence(op, res.Error)
		}
		if int(res.RowsAffected) != len(records) {
			return insertMismatch(op, int(res.RowsAffected), len(records))
		}
		return nil
	})
	if err != nil && apperror.KindOf(err) == nil {
		return apperror.Persistence(op, err)
	}
	return err
}

func (p *Postgres) Leaderboard(ctx context.Context) ([]types.MonthlyRanking, error) {
	const op = "read leaderboard"

	var records []rankingRecord
	if err := p.db.WithContext(ctx).Table(p.rankings).Order("position").Find(&records).Error; err != nil {
		return nil, apperror.Persistence(op, err)
	}
	out := make([]types.MonthlyRanking, 0, len(records))
	for _, r := range records {
		scores, err := decodeScores(r.Scores)
		if err != nil {
			return nil, apperror.Persistence(op, err)
		}
		out = append(out, types.MonthlyRanking{Month: r.Month, Scores: scores})
	}
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
