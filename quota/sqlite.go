package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmgate/migrations"
)

const usageTable = "quota_usage"

// SQLiteLedger keeps usage in a SQLite database.
type SQLiteLedger struct {
	db     *sql.DB
	limits Limits
	logger zerolog.Logger
	now    func() time.Time
}

var _ Consumer = (*SQLiteLedger)(nil)

// OpenSQLite opens the database at dsn, applies pending migrations and
// returns a ledger on it. Close releases the database.
func OpenSQLite(dsn string, limits Limits, logger zerolog.Logger) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open quota database: %w", err)
	}
	// Check-and-increment transactions must not interleave.
	db.SetMaxOpenConns(1)

	if err := migrations.RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLiteLedger(db, limits, logger), nil
}

// NewSQLiteLedger creates a ledger on an already migrated database.
func NewSQLiteLedger(db *sql.DB, limits Limits, logger zerolog.Logger) *SQLiteLedger {
	if limits == nil {
		limits = DefaultLimits
	}
	return &SQLiteLedger{
		db:     db,
		limits: limits,
		logger: logger.With().Str("component", "quota_ledger").Logger(),
		now:    time.Now,
	}
}

// Close closes the underlying database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Consume implements Consumer. The check and the increment run in one
// transaction.
func (l *SQLiteLedger) Consume(ctx context.Context, userID string, feature Feature, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("invalid quota amount %d", amount)
	}
	limit, metered := l.limits[feature]
	if !metered {
		return nil
	}
	p, reset := period(l.now())

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quota transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	used, err := selectUsed(ctx, tx, userID, feature, p)
	if err != nil {
		return err
	}
	if used+amount > limit {
		l.logger.Info().
			Str("user_id", userID).
			Str("feature", string(feature)).
			Int("used", used).
			Int("limit", limit).
			Msg("Quota exceeded")
		return &ExceededError{UserID: userID, Feature: feature, Limit: limit, Used: used, ResetAt: reset}
	}

	query := sq.Insert(usageTable).
		Columns("user_id", "feature", "period", "used", "updated_at").
		Values(userID, string(feature), p, amount, l.now().Unix()).
		Suffix("ON CONFLICT(user_id, feature, period) DO UPDATE SET used = used + excluded.used, updated_at = excluded.updated_at")
	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build quota upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, queryStr, args...); err != nil {
		return fmt.Errorf("record quota usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit quota usage: %w", err)
	}
	l.logger.Debug().
		Str("user_id", userID).
		Str("feature", string(feature)).
		Int("used", used+amount).
		Msg("Quota consumed")
	return nil
}

// Used returns the usage of feature by userID in the current period.
func (l *SQLiteLedger) Used(ctx context.Context, userID string, feature Feature) (int, error) {
	p, _ := period(l.now())
	return selectUsed(ctx, l.db, userID, feature, p)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func selectUsed(ctx context.Context, q queryRower, userID string, feature Feature, p string) (int, error) {
	queryStr, args, err := sq.Select("used").
		From(usageTable).
		Where(sq.Eq{"user_id": userID, "feature": string(feature), "period": p}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build quota query: %w", err)
	}

	var used int
	err = q.QueryRowContext(ctx, queryStr, args...).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota usage: %w", err)
	}
	return used, nil
}
