package ledger

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and addresses a backend.
type Options struct {
	Driver string `yaml:"driver"`
	// Path is the directory for the file driver and the database file for sqlite.
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn"`
}

// Open returns the configured store.
func Open(ctx context.Context, o Options) (Store, error) {
	switch o.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		return NewFileStore(o.Path)
	case DriverSQLite:
		return OpenSQLite(ctx, o.Path)
	case DriverPostgres:
		return OpenPostgres(ctx, o.DSN)
	}
	return nil, fmt.Errorf("ledger.Open: unknown driver %q", o.Driver)
}
