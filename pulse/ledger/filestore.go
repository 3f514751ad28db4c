package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/theimaginaryfoundation/guest-pulse/pulse/fileutils"
)

// FileStore keeps each table as <dir>/<table>.jsonl, one JSON object per row. Every write
// produces a complete staging file that is renamed over the table file.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("NewFileStore: dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewFileStore: mkdir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(table string) (string, error) {
	if _, err := SchemaFor(table); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, table+".jsonl"), nil
}

func (s *FileStore) ReadAll(ctx context.Context, table string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(table)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return readJSONL(p)
}

func readJSONL(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var rows []Row
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var r Row
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		rows = append(rows, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func writeJSONL(path string, rows []Row) error {
	return fileutils.WriteAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *FileStore) ReplaceAll(ctx context.Context, table string, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(table)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONL(p, rows)
}

func (s *FileStore) Append(ctx context.Context, table string, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(table)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := readJSONL(p)
	if err != nil {
		return err
	}
	return writeJSONL(p, append(existing, rows...))
}

// Lock takes the directory's run lock.
func (s *FileStore) Lock(ctx context.Context) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fileutils.AcquireLock(filepath.Join(s.dir, ".ledger.lock"))
}

func (s *FileStore) Close() error { return nil }
