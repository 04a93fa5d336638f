// Package store persists the code cache document and the append-only
// performance history.
package store

import (
	"context"

	"github.com/sells-group/medcode-cli/internal/model"
)

// ErrUnknownFamily is returned when persisted data names a code family the
// cache does not know.
var ErrUnknownFamily = model.ErrUnknownFamily

// Store is the persistence interface shared by the JSON, SQLite, and
// Postgres backends.
type Store interface {
	// Code cache
	LoadCodes(ctx context.Context) (*model.CodeBook, error)
	SaveCodes(ctx context.Context, book *model.CodeBook) error

	// Performance history
	AppendPerformanceLog(ctx context.Context, log model.PerformanceLog) error
	ListPerformanceLogs(ctx context.Context, limit int) ([]model.PerformanceLog, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// codeRow is one flattened cache entry as stored in the SQL backends.
type codeRow struct {
	family model.Family
	entry  model.CodeEntry
}

func flatten(book *model.CodeBook) []codeRow {
	var rows []codeRow
	for _, f := range model.CodeFamilies {
		for _, e := range book.Entries(f) {
			rows = append(rows, codeRow{family: f, entry: e})
		}
	}
	return rows
}

// addRow validates a persisted row and inserts it into book.
func addRow(book *model.CodeBook, family string, e model.CodeEntry) error {
	return book.AddLoaded(model.Family(family), e)
}

// newest trims logs (oldest first) to the last limit entries, newest first.
// limit <= 0 returns all.
func newest(logs []model.PerformanceLog, limit int) []model.PerformanceLog {
	out := make([]model.PerformanceLog, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		out = append(out, logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
