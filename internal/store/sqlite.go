package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/medcode-cli/internal/model"
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteTimeLayout is fixed-width so created_at sorts lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS code_cache (
	family      TEXT NOT NULL,
	code        TEXT NOT NULL,
	description TEXT NOT NULL,
	explanation TEXT NOT NULL DEFAULT '',
	placeholder INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (family, code)
);

CREATE TABLE IF NOT EXISTS performance_logs (
	run_id     TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL,
	body       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_performance_logs_created_at ON performance_logs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadCodes(ctx context.Context) (*model.CodeBook, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT family, code, description, explanation, placeholder FROM code_cache ORDER BY family, code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load codes")
	}
	defer rows.Close() //nolint:errcheck

	book := model.NewCodeBook()
	for rows.Next() {
		var (
			family string
			e      model.CodeEntry
		)
		if err := rows.Scan(&family, &e.Code, &e.Description, &e.Explanation, &e.Placeholder); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan code")
		}
		if err := addRow(book, family, e); err != nil {
			return nil, eris.Wrap(err, "sqlite: load codes")
		}
	}
	return book, eris.Wrap(rows.Err(), "sqlite: iterate codes")
}

// SaveCodes replaces the stored cache with book in one transaction.
func (s *SQLiteStore) SaveCodes(ctx context.Context, book *model.CodeBook) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save codes")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_cache`); err != nil {
		return eris.Wrap(err, "sqlite: clear codes")
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO code_cache (family, code, description, explanation, placeholder) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert code")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range flatten(book) {
		if _, err := stmt.ExecContext(ctx, string(r.family), r.entry.Code, r.entry.Description, r.entry.Explanation, r.entry.Placeholder); err != nil {
			return eris.Wrapf(err, "sqlite: insert code %s %s", r.family, r.entry.Code)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save codes")
}

func (s *SQLiteStore) AppendPerformanceLog(ctx context.Context, log model.PerformanceLog) error {
	body, err := json.Marshal(log)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal performance log")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO performance_logs (run_id, created_at, body) VALUES (?, ?, ?)`,
		log.RunID, log.CreatedAt.UTC().Format(sqliteTimeLayout), string(body),
	)
	return eris.Wrapf(err, "sqlite: insert performance log %s", log.RunID)
}

func (s *SQLiteStore) ListPerformanceLogs(ctx context.Context, limit int) ([]model.PerformanceLog, error) {
	query := `SELECT body FROM performance_logs ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list performance logs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PerformanceLog
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan performance log")
		}
		var log model.PerformanceLog
		if err := json.Unmarshal([]byte(body), &log); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal performance log")
		}
		out = append(out, log)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate performance logs")
}
