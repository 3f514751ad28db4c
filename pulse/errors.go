package pulse

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrSourceData        = errors.New("source data error")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrIdentityCollision = errors.New("identity collision suspected")
)

// ConfigurationError lists every missing or invalid setting found in one validation pass.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	if len(parts) == 0 {
		return "configuration error"
	}
	return "configuration: " + strings.Join(parts, "; ")
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// AddMissing records a required setting that has no value.
func (e *ConfigurationError) AddMissing(name string) { e.Missing = append(e.Missing, name) }

// AddInvalid records a setting whose value was rejected.
func (e *ConfigurationError) AddInvalid(name, reason string) {
	e.Invalid = append(e.Invalid, fmt.Sprintf("%s (%s)", name, reason))
}

// Err returns nil when nothing was recorded.
func (e *ConfigurationError) Err() error {
	if e == nil || (len(e.Missing) == 0 && len(e.Invalid) == 0) {
		return nil
	}
	return e
}

// SourceDataError is one rejected input row.
type SourceDataError struct {
	Source string
	Row    int
	Field  string
	Reason string
}

func (e *SourceDataError) Error() string {
	loc := e.Source
	if e.Row > 0 {
		loc = fmt.Sprintf("%s row %d", loc, e.Row)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", loc, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", loc, e.Reason)
}

func (e *SourceDataError) Is(target error) bool { return target == ErrSourceData }

// LedgerUnavailableError wraps any failure of the history store.
type LedgerUnavailableError struct {
	Table string
	Op    string
	Err   error
}

func (e *LedgerUnavailableError) Error() string {
	return fmt.Sprintf("ledger unavailable: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *LedgerUnavailableError) Unwrap() error { return e.Err }

func (e *LedgerUnavailableError) Is(target error) bool { return target == ErrLedgerUnavailable }

// LedgerUnavailable wraps err unless it is nil or already a ledger failure.
func LedgerUnavailable(table, op string, err error) error {
	if err == nil {
		return nil
	}
	var lu *LedgerUnavailableError
	if errors.As(err, &lu) {
		return err
	}
	return &LedgerUnavailableError{Table: table, Op: op, Err: err}
}

// IdentityCollision flags two records with the same key but different content.
type IdentityCollision struct {
	Key    Identity
	First  string
	Second string
}

func (e *IdentityCollision) Error() string {
	return fmt.Sprintf("identity collision suspected for %s: %q vs %q", e.Key, e.First, e.Second)
}

func (e *IdentityCollision) Is(target error) bool { return target == ErrIdentityCollision }
