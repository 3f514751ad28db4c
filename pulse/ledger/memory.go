package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps tables in process memory. Used for dry runs without a configured ledger
// and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Row)}
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

func (m *MemoryStore) ReadAll(ctx context.Context, table string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := SchemaFor(table); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRows(m.tables[table]), nil
}

func (m *MemoryStore) ReplaceAll(ctx context.Context, table string, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := SchemaFor(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = cloneRows(rows)
	return nil
}

func (m *MemoryStore) Append(ctx context.Context, table string, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := SchemaFor(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], cloneRows(rows)...)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
