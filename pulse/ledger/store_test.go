package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/theimaginaryfoundation/guest-pulse/pulse/fileutils"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	file, err := NewFileStore(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)

	sqlite, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   file,
		"sqlite": sqlite,
	}
}

func TestStores_ReplaceAppendRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			rows, err := s.ReadAll(ctx, ReviewsTable)
			require.NoError(t, err)
			require.Empty(t, rows)

			first := []Row{
				{"review_key": "k1", "text_trimmed": "Great | stay"},
				{"review_key": "k2", "text_trimmed": "Шумно"},
			}
			require.NoError(t, s.ReplaceAll(ctx, ReviewsTable, first))
			require.NoError(t, s.Append(ctx, ReviewsTable, []Row{{"review_key": "k3"}}))

			rows, err = s.ReadAll(ctx, ReviewsTable)
			require.NoError(t, err)
			require.Len(t, rows, 3)
			require.Equal(t, []string{"k1", "k2", "k3"}, []string{rows[0]["review_key"], rows[1]["review_key"], rows[2]["review_key"]})
			require.Equal(t, "Шумно", rows[1]["text_trimmed"])

			require.NoError(t, s.ReplaceAll(ctx, ReviewsTable, []Row{{"review_key": "k9"}}))
			rows, err = s.ReadAll(ctx, ReviewsTable)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			require.Equal(t, "k9", rows[0]["review_key"])

			other, err := s.ReadAll(ctx, SurveysTable)
			require.NoError(t, err)
			require.Empty(t, other)

			_, err = s.ReadAll(ctx, "users; DROP TABLE x")
			require.Error(t, err)
		})
	}
}

func TestFileStore_ReplaceIsAtomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceAll(ctx, SurveysTable, []Row{{"week_key": "2025-W06", "param": "overall"}}))

	// A failed rewrite leaves the previous table in place and no staging files behind.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, s.ReplaceAll(cancelled, SurveysTable, nil))

	rows, err := s.ReadAll(ctx, SurveysTable)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileStore_Lock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	release, err := s.Lock(ctx)
	require.NoError(t, err)
	_, err = s.Lock(ctx)
	require.True(t, errors.Is(err, fileutils.ErrLocked), "err=%v", err)
	require.NoError(t, release())
}

func TestOpen_UnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Options{Driver: "excel"})
	require.Error(t, err)

	s, err := Open(context.Background(), Options{Driver: DriverMemory})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
