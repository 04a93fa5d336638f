package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medcode-cli/internal/model"
)

// JSONStore keeps the code cache and history as JSON documents on disk.
// Writes go to a temp file that is renamed over the target.
type JSONStore struct {
	codesPath   string
	historyPath string

	mu sync.Mutex
}

// NewJSON creates a JSONStore. Missing files read as empty.
func NewJSON(codesPath, historyPath string) *JSONStore {
	return &JSONStore{codesPath: codesPath, historyPath: historyPath}
}

// Migrate creates the parent directories of both files.
func (s *JSONStore) Migrate(_ context.Context) error {
	for _, p := range []string{s.codesPath, s.historyPath} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return eris.Wrapf(err, "jsonstore: create dir for %s", p)
		}
	}
	return nil
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) LoadCodes(_ context.Context) (*model.CodeBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.codesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewCodeBook(), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "jsonstore: read %s", s.codesPath)
	}

	book := model.NewCodeBook()
	if len(strings.TrimSpace(string(data))) == 0 {
		return book, nil
	}
	if err := json.Unmarshal(data, book); err != nil {
		return nil, eris.Wrapf(err, "jsonstore: decode %s", s.codesPath)
	}
	return book, nil
}

func (s *JSONStore) SaveCodes(_ context.Context, book *model.CodeBook) error {
	data, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return eris.Wrap(err, "jsonstore: encode codes")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.codesPath, data)
}

func (s *JSONStore) AppendPerformanceLog(_ context.Context, log model.PerformanceLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs, err := s.readHistory()
	if err != nil {
		return err
	}
	logs = append(logs, log)

	data, err := json.MarshalIndent(logs, "", "  ")
	if err != nil {
		return eris.Wrap(err, "jsonstore: encode history")
	}
	return writeAtomic(s.historyPath, data)
}

func (s *JSONStore) ListPerformanceLogs(_ context.Context, limit int) ([]model.PerformanceLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs, err := s.readHistory()
	if err != nil {
		return nil, err
	}
	return newest(logs, limit), nil
}

func (s *JSONStore) readHistory() ([]model.PerformanceLog, error) {
	data, err := os.ReadFile(s.historyPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "jsonstore: read %s", s.historyPath)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var logs []model.PerformanceLog
	if err := json.Unmarshal(data, &logs); err != nil {
		return nil, eris.Wrapf(err, "jsonstore: decode %s", s.historyPath)
	}
	return logs, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrapf(err, "jsonstore: create temp in %s", dir)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "jsonstore: write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "jsonstore: close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "jsonstore: rename to %s", path)
	}
	return nil
}
