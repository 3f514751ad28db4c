package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/multierr"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"             // registers the "sqlite" database/sql driver
)

// SQLStore keeps each table as a SQL table of TEXT columns plus a seq column that preserves
// row order. Writes run in a single transaction.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	mu       sync.Mutex
}

// OpenSQLite opens (creating if needed) a SQLite ledger file.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		return nil, errors.New("OpenSQLite: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("OpenSQLite: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("OpenSQLite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, false)
}

// OpenPostgres connects to a Postgres ledger through the pgx driver.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("OpenPostgres: dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("OpenPostgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("OpenPostgres: ping: %w", err)
	}
	return newSQLStore(ctx, db, true)
}

func newSQLStore(ctx context.Context, db *sql.DB, postgres bool) (*SQLStore, error) {
	s := &SQLStore{db: db, postgres: postgres}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, sc := range Schemas {
		cols := make([]string, 0, len(sc.Columns)+1)
		cols = append(cols, "seq BIGINT NOT NULL")
		for _, c := range sc.Columns {
			cols = append(cols, quoteIdent(c)+" TEXT NOT NULL DEFAULT ''")
		}
		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quoteIdent(sc.Table), strings.Join(cols, ",\n\t"))
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create %s: %w", sc.Table, err)
		}
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (seq)", quoteIdent(sc.Table+"_seq_idx"), quoteIdent(sc.Table))
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("index %s: %w", sc.Table, err)
		}
	}
	return nil
}

func (s *SQLStore) placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		if s.postgres {
			ph[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ph[i] = "?"
		}
	}
	return strings.Join(ph, ", ")
}

func quotedColumns(sc Schema) string {
	q := make([]string, len(sc.Columns))
	for i, c := range sc.Columns {
		q[i] = quoteIdent(c)
	}
	return strings.Join(q, ", ")
}

func (s *SQLStore) ReadAll(ctx context.Context, table string) ([]Row, error) {
	sc, err := SchemaFor(table)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY seq", quotedColumns(sc), quoteIdent(sc.Table))
	rs, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rs.Close()

	var out []Row
	vals := make([]string, len(sc.Columns))
	ptrs := make([]any, len(sc.Columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rs.Next() {
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		r := make(Row, len(sc.Columns))
		for i, c := range sc.Columns {
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

func (s *SQLStore) ReplaceAll(ctx context.Context, table string, rows []Row) error {
	sc, err := SchemaFor(table)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(sc.Table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
		return s.insertRows(ctx, tx, sc, 0, rows)
	})
}

func (s *SQLStore) Append(ctx context.Context, table string, rows []Row) error {
	sc, err := SchemaFor(table)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var next int64
		q := "SELECT COALESCE(MAX(seq), -1) + 1 FROM " + quoteIdent(sc.Table)
		if err := tx.QueryRowContext(ctx, q).Scan(&next); err != nil {
			return fmt.Errorf("next seq %s: %w", table, err)
		}
		return s.insertRows(ctx, tx, sc, next, rows)
	})
}

func (s *SQLStore) insertRows(ctx context.Context, tx *sql.Tx, sc Schema, seq int64, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (seq, %s) VALUES (%s)",
		quoteIdent(sc.Table), quotedColumns(sc), s.placeholders(len(sc.Columns)+1))
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", sc.Table, err)
	}
	defer stmt.Close()

	args := make([]any, len(sc.Columns)+1)
	for i, r := range rows {
		args[0] = seq + int64(i)
		for j, c := range sc.Columns {
			args[j+1] = r[c]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", sc.Table, i, err)
		}
	}
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// advisoryLockKey is an arbitrary constant shared by every run against the same database.
const advisoryLockKey = 0x67707573

// Lock holds a Postgres session advisory lock for the duration of a run. SQLite serializes
// writers itself, so the lock is a no-op there.
func (s *SQLStore) Lock(ctx context.Context) (func() error, error) {
	if !s.postgres {
		return func() error { return nil }, nil
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock conn: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", advisoryLockKey); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	return func() error {
		_, uerr := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", advisoryLockKey)
		cerr := conn.Close()
		return multierr.Combine(uerr, cerr)
	}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }
