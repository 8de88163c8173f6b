package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/signal-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS outcomes (
	session     TEXT NOT NULL,
	sequence    INTEGER NOT NULL,
	category    TEXT NOT NULL,
	value       INTEGER NOT NULL,
	source      TEXT,
	occurred_at DATETIME NOT NULL,
	PRIMARY KEY (session, sequence)
);

CREATE TABLE IF NOT EXISTS predictions (
	id          TEXT PRIMARY KEY,
	session     TEXT NOT NULL,
	pattern_id  TEXT NOT NULL,
	recommended TEXT NOT NULL,
	confidence  REAL NOT NULL,
	evidence    TEXT,
	status      TEXT NOT NULL DEFAULT 'pending',
	created_at  DATETIME NOT NULL,
	resolved_at DATETIME,
	resolved_by INTEGER
);

CREATE TABLE IF NOT EXISTS accuracy_log (
	id          TEXT PRIMARY KEY,
	session     TEXT NOT NULL,
	pattern_id  TEXT NOT NULL,
	accuracy    REAL NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_session ON outcomes(session, sequence DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_session ON predictions(session, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_pattern ON predictions(session, pattern_id);
CREATE INDEX IF NOT EXISTS idx_predictions_status ON predictions(status);
CREATE INDEX IF NOT EXISTS idx_accuracy_log_pattern ON accuracy_log(session, pattern_id, recorded_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordOutcome(ctx context.Context, session string, ev model.OutcomeEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (session, sequence, category, value, source, occurred_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session, ev.Sequence, string(ev.Category), ev.Value, ev.Source, ev.Timestamp.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record outcome %d", ev.Sequence)
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, session string, limit int) ([]model.OutcomeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, category, value, source, occurred_at FROM outcomes
		 WHERE session = ? ORDER BY sequence DESC LIMIT ?`,
		session, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outcomes")
	}
	defer rows.Close()

	var events []model.OutcomeEvent
	for rows.Next() {
		var ev model.OutcomeEvent
		var cat string
		if err := rows.Scan(&ev.Sequence, &cat, &ev.Value, &ev.Source, &ev.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		ev.Category = model.Category(cat)
		events = append(events, ev)
	}
	// Stored newest first; callers expect oldest first.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list outcomes iterate")
}

func (s *SQLiteStore) SavePrediction(ctx context.Context, p model.Prediction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, session, pattern_id, recommended, confidence, evidence, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionKey, p.PatternID, string(p.Recommended), p.Confidence, p.Evidence, string(p.Status), p.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save prediction %s", p.ID)
}

func (s *SQLiteStore) ResolvePrediction(ctx context.Context, p model.Prediction) error {
	var resolvedAt any
	if p.ResolvedAt != nil {
		resolvedAt = p.ResolvedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE predictions SET status = ?, resolved_at = ?, resolved_by = ? WHERE id = ?`,
		string(p.Status), resolvedAt, p.ResolvedBy, p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve prediction %s", p.ID)
	}
	return checkRowsAffected(res, "prediction", p.ID)
}

func (s *SQLiteStore) GetPrediction(ctx context.Context, id string) (*model.Prediction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session, pattern_id, recommended, confidence, evidence, status, created_at, resolved_at, resolved_by
		 FROM predictions WHERE id = ?`,
		id,
	)
	return scanPrediction(row)
}

func (s *SQLiteStore) ListPredictions(ctx context.Context, filter PredictionFilter) ([]model.Prediction, error) {
	query := `SELECT id, session, pattern_id, recommended, confidence, evidence, status, created_at, resolved_at, resolved_by
	          FROM predictions WHERE 1=1`
	var args []any

	if filter.Session != "" {
		query += ` AND session = ?`
		args = append(args, filter.Session)
	}
	if filter.PatternID != "" {
		query += ` AND pattern_id = ?`
		args = append(args, filter.PatternID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list predictions")
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		preds = append(preds, *p)
	}
	return preds, eris.Wrap(rows.Err(), "sqlite: list predictions iterate")
}

func (s *SQLiteStore) RecordAccuracy(ctx context.Context, session, patternID string, accuracy float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accuracy_log (id, session, pattern_id, accuracy, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), session, patternID, accuracy, at.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record accuracy for %s", patternID)
}

func (s *SQLiteStore) PatternSummaries(ctx context.Context, session string) ([]PatternSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern_id,
		        SUM(CASE WHEN status = 'hit' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN status = 'miss' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN status = 'expired' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END)
		 FROM predictions WHERE session = ? GROUP BY pattern_id ORDER BY pattern_id`,
		session,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: pattern summaries")
	}
	defer rows.Close()

	var summaries []PatternSummary
	for rows.Next() {
		var ps PatternSummary
		if err := rows.Scan(&ps.PatternID, &ps.Hits, &ps.Misses, &ps.Expired, &ps.Pending); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		if resolved := ps.Hits + ps.Misses; resolved > 0 {
			ps.Accuracy = float64(ps.Hits) / float64(resolved)
		}
		summaries = append(summaries, ps)
	}
	return summaries, eris.Wrap(rows.Err(), "sqlite: pattern summaries iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPrediction(row scannable) (*model.Prediction, error) {
	var p model.Prediction
	var status string
	var category string
	var resolvedAt sql.NullTime
	var resolvedBy sql.NullInt64

	err := row.Scan(&p.ID, &p.SessionKey, &p.PatternID, &category, &p.Confidence, &p.Evidence,
		&status, &p.CreatedAt, &resolvedAt, &resolvedBy)
	if err == sql.ErrNoRows {
		return nil, eris.New("prediction not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan prediction")
	}

	p.Recommended = model.Category(category)
	p.Status = model.PredictionStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}
	if resolvedBy.Valid {
		p.ResolvedBy = resolvedBy.Int64
	}
	return &p, nil
}
