package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/medcode-cli/internal/db"
	"github.com/sells-group/medcode-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS code_cache (
	family      TEXT NOT NULL,
	code        TEXT NOT NULL,
	description TEXT NOT NULL,
	explanation TEXT NOT NULL DEFAULT '',
	placeholder BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (family, code)
);

CREATE TABLE IF NOT EXISTS performance_logs (
	run_id     TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	body       JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_performance_logs_created_at ON performance_logs(created_at DESC);
`

var codeColumns = []string{"family", "code", "description", "explanation", "placeholder"}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
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

func (s *PostgresStore) LoadCodes(ctx context.Context) (*model.CodeBook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT family, code, description, explanation, placeholder FROM code_cache ORDER BY family, code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load codes")
	}
	defer rows.Close()

	book := model.NewCodeBook()
	for rows.Next() {
		var (
			family string
			e      model.CodeEntry
		)
		if err := rows.Scan(&family, &e.Code, &e.Description, &e.Explanation, &e.Placeholder); err != nil {
			return nil, eris.Wrap(err, "postgres: scan code")
		}
		if err := addRow(book, family, e); err != nil {
			return nil, eris.Wrap(err, "postgres: load codes")
		}
	}
	return book, eris.Wrap(rows.Err(), "postgres: iterate codes")
}

// SaveCodes replaces the stored cache with book: a DELETE followed by a COPY
// in one transaction.
func (s *PostgresStore) SaveCodes(ctx context.Context, book *model.CodeBook) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save codes")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM code_cache`); err != nil {
		return eris.Wrap(err, "postgres: clear codes")
	}

	flat := flatten(book)
	rows := make([][]any, 0, len(flat))
	for _, r := range flat {
		rows = append(rows, []any{string(r.family), r.entry.Code, r.entry.Description, r.entry.Explanation, r.entry.Placeholder})
	}
	if _, err := db.CopyFrom(ctx, tx, "code_cache", codeColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: save codes")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save codes")
}

func (s *PostgresStore) AppendPerformanceLog(ctx context.Context, log model.PerformanceLog) error {
	body, err := json.Marshal(log)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal performance log")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO performance_logs (run_id, created_at, body) VALUES ($1, $2, $3)`,
		log.RunID, log.CreatedAt, body,
	)
	return eris.Wrapf(err, "postgres: insert performance log %s", log.RunID)
}

func (s *PostgresStore) ListPerformanceLogs(ctx context.Context, limit int) ([]model.PerformanceLog, error) {
	query := `SELECT body FROM performance_logs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list performance logs")
	}
	defer rows.Close()

	var out []model.PerformanceLog
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan performance log")
		}
		var log model.PerformanceLog
		if err := json.Unmarshal(body, &log); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal performance log")
		}
		out = append(out, log)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate performance logs")
}
