package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-engine/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"insert_outcome":     `INSERT INTO outcomes (session, sequence, category, value, source, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"insert_prediction":  `INSERT INTO predictions (id, session, pattern_id, recommended, confidence, evidence, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"resolve_prediction": `UPDATE predictions SET status = $1, resolved_at = $2, resolved_by = $3 WHERE id = $4`,
	"insert_accuracy":    `INSERT INTO accuracy_log (id, session, pattern_id, accuracy, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare hot-path statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: closeFn}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS outcomes (
	session     TEXT NOT NULL,
	sequence    BIGINT NOT NULL,
	category    TEXT NOT NULL,
	value       INTEGER NOT NULL,
	source      TEXT,
	occurred_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session, sequence)
);

CREATE TABLE IF NOT EXISTS predictions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session     TEXT NOT NULL,
	pattern_id  TEXT NOT NULL,
	recommended TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	evidence    TEXT,
	status      TEXT NOT NULL DEFAULT 'pending',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at TIMESTAMPTZ,
	resolved_by BIGINT
);

CREATE TABLE IF NOT EXISTS accuracy_log (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session     TEXT NOT NULL,
	pattern_id  TEXT NOT NULL,
	accuracy    DOUBLE PRECISION NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_outcomes_session ON outcomes(session, sequence DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_session ON predictions(session, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_pattern ON predictions(session, pattern_id);
CREATE INDEX IF NOT EXISTS idx_predictions_status ON predictions(status);
CREATE INDEX IF NOT EXISTS idx_accuracy_log_pattern ON accuracy_log(session, pattern_id, recorded_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, session string, ev model.OutcomeEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outcomes (session, sequence, category, value, source, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		session, ev.Sequence, string(ev.Category), ev.Value, ev.Source, ev.Timestamp.UTC(),
	)
	return eris.Wrapf(err, "postgres: record outcome %d", ev.Sequence)
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, session string, limit int) ([]model.OutcomeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT sequence, category, value, source, occurred_at FROM outcomes
		 WHERE session = $1 ORDER BY sequence DESC LIMIT $2`,
		session, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var events []model.OutcomeEvent
	for rows.Next() {
		var ev model.OutcomeEvent
		var cat string
		if err := rows.Scan(&ev.Sequence, &cat, &ev.Value, &ev.Source, &ev.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		ev.Category = model.Category(cat)
		events = append(events, ev)
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

func (s *PostgresStore) SavePrediction(ctx context.Context, p model.Prediction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO predictions (id, session, pattern_id, recommended, confidence, evidence, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.SessionKey, p.PatternID, string(p.Recommended), p.Confidence, p.Evidence, string(p.Status), p.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save prediction %s", p.ID)
}

func (s *PostgresStore) ResolvePrediction(ctx context.Context, p model.Prediction) error {
	var resolvedAt any
	if p.ResolvedAt != nil {
		resolvedAt = p.ResolvedAt.UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE predictions SET status = $1, resolved_at = $2, resolved_by = $3 WHERE id = $4`,
		string(p.Status), resolvedAt, p.ResolvedBy, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve prediction %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("prediction not found: %s", p.ID)
	}
	return nil
}

func (s *PostgresStore) GetPrediction(ctx context.Context, id string) (*model.Prediction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, session, pattern_id, recommended, confidence, evidence, status, created_at, resolved_at, resolved_by
		 FROM predictions WHERE id = $1`,
		id,
	)
	p, err := scanPgPrediction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("prediction not found")
	}
	return p, err
}

func (s *PostgresStore) ListPredictions(ctx context.Context, filter PredictionFilter) ([]model.Prediction, error) {
	query := `SELECT id, session, pattern_id, recommended, confidence, evidence, status, created_at, resolved_at, resolved_by
	          FROM predictions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Session != "" {
		query += ` AND session = ` + arg(filter.Session)
	}
	if filter.PatternID != "" {
		query += ` AND pattern_id = ` + arg(filter.PatternID)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list predictions")
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		p, err := scanPgPrediction(rows)
		if err != nil {
			return nil, err
		}
		preds = append(preds, *p)
	}
	return preds, eris.Wrap(rows.Err(), "postgres: list predictions iterate")
}

func (s *PostgresStore) RecordAccuracy(ctx context.Context, session, patternID string, accuracy float64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accuracy_log (id, session, pattern_id, accuracy, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), session, patternID, accuracy, at.UTC(),
	)
	return eris.Wrapf(err, "postgres: record accuracy for %s", patternID)
}

func (s *PostgresStore) PatternSummaries(ctx context.Context, session string) ([]PatternSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pattern_id,
		        COUNT(*) FILTER (WHERE status = 'hit'),
		        COUNT(*) FILTER (WHERE status = 'miss'),
		        COUNT(*) FILTER (WHERE status = 'expired'),
		        COUNT(*) FILTER (WHERE status = 'pending')
		 FROM predictions WHERE session = $1 GROUP BY pattern_id ORDER BY pattern_id`,
		session,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: pattern summaries")
	}
	defer rows.Close()

	var summaries []PatternSummary
	for rows.Next() {
		var ps PatternSummary
		if err := rows.Scan(&ps.PatternID, &ps.Hits, &ps.Misses, &ps.Expired, &ps.Pending); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		if resolved := ps.Hits + ps.Misses; resolved > 0 {
			ps.Accuracy = float64(ps.Hits) / float64(resolved)
		}
		summaries = append(summaries, ps)
	}
	return summaries, eris.Wrap(rows.Err(), "postgres: pattern summaries iterate")
}

func scanPgPrediction(row pgx.Row) (*model.Prediction, error) {
	var p model.Prediction
	var status, category string
	var evidence *string
	var resolvedAt *time.Time
	var resolvedBy *int64

	err := row.Scan(&p.ID, &p.SessionKey, &p.PatternID, &category, &p.Confidence, &evidence,
		&status, &p.CreatedAt, &resolvedAt, &resolvedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan prediction")
	}

	p.Recommended = model.Category(category)
	p.Status = model.PredictionStatus(status)
	if evidence != nil {
		p.Evidence = *evidence
	}
	p.ResolvedAt = resolvedAt
	if resolvedBy != nil {
		p.ResolvedBy = *resolvedBy
	}
	return &p, nil
}
