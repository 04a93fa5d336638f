package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/medcode-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var codeRowColumns = []string{"family", "code", "description", "explanation", "placeholder"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS code_cache`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadCodes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT family, code, description, explanation, placeholder FROM code_cache`).
		WillReturnRows(pgxmock.NewRows(codeRowColumns).
			AddRow("CPT", "11400", "Excision, benign lesion, trunk; 0.5 cm or less", "", false).
			AddRow("HCPCS", "J1100", "HCPCS code J1100: description unavailable (could not be resolved)", "", true))

	book, err := s.LoadCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, book.Len())

	e, ok := book.Get(model.FamilyHCPCS, "J1100")
	require.True(t, ok)
	assert.True(t, e.Placeholder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadCodes_UnknownFamily(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT family, code`).
		WillReturnRows(pgxmock.NewRows(codeRowColumns).AddRow("DRG", "470", "Major joint replacement", "", false))

	_, err := s.LoadCodes(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownFamily)
}

func TestPostgresStore_LoadCodes_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT family, code`).WillReturnError(fmt.Errorf("connection reset"))

	_, err := s.LoadCodes(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: load codes")
}

func TestPostgresStore_SaveCodes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	book := model.NewCodeBook()
	require.NoError(t, book.Put(model.FamilyCPT, model.CodeEntry{Code: "11400", Description: "Excision, benign lesion"}))
	require.NoError(t, book.Put(model.FamilyICD10, model.CodeEntry{Code: "E11.9", Description: "Type 2 diabetes mellitus without complications"}))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM code_cache`).WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"code_cache"}, codeRowColumns).WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, s.SaveCodes(context.Background(), book))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCodes_CopyFailureRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	book := model.NewCodeBook()
	require.NoError(t, book.Put(model.FamilyCPT, model.CodeEntry{Code: "11400", Description: "Excision, benign lesion"}))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM code_cache`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"code_cache"}, codeRowColumns).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	err := s.SaveCodes(context.Background(), book)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: save codes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendPerformanceLog(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO performance_logs \(run_id, created_at, body\)`).
		WithArgs("run-1", at, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.AppendPerformanceLog(context.Background(), sampleLog("run-1", at, 7)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPerformanceLogs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	newer, err := json.Marshal(sampleLog("run-2", at.Add(time.Hour), 8))
	require.NoError(t, err)
	older, err := json.Marshal(sampleLog("run-1", at, 6))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT body FROM performance_logs ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow(newer).AddRow(older))

	logs, err := s.ListPerformanceLogs(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "run-2", logs[0].RunID)
	assert.Equal(t, 60, logs[1].Overall.Accuracy)
	assert.NoError(t, mock.ExpectationsWereMet())
}
