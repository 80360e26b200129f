package engine

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by Store lookups when no row matches the natural
// key. Callers classify it into KindParentNotFound with entity context.
var ErrNotFound = errors.New("not found")

// Kind partitions engine failures by how the caller must react.
type Kind string

const (
	// KindValidation: a row is missing a natural key it must supply.
	// The row is skipped; the group continues.
	KindValidation Kind = "validation"

	// KindParentNotFound: a required ancestor could not be resolved.
	// Aborts the row; escalates to group rollback in a mandatory stage.
	KindParentNotFound Kind = "parent_not_found"

	// KindUniqueViolation: a non-key unique constraint collided.
	KindUniqueViolation Kind = "unique_violation"

	// KindForeignKeyViolation: a supplied ancestor id is gone at commit time.
	KindForeignKeyViolation Kind = "foreign_key_violation"

	// KindOptionalSubsystem: a best-effort stage (fee structures) failed.
	// Logged as a warning, never escalated.
	KindOptionalSubsystem Kind = "optional_subsystem"

	// KindInvalidInput: a required numeric field is non-numeric or negative.
	KindInvalidInput Kind = "invalid_input"
)

// Error is a classified engine failure. Entity names the record type being
// processed ("school", "section", ...) and Key carries the natural key that
// identifies the offending row in error reports.
type Error struct {
	Kind   Kind
	Entity string
	Key    string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Entity != "" {
		s += " " + e.Entity
	}
	if e.Key != "" {
		s += " " + e.Key
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classified kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

func validationErr(entity, msg string) error {
	return &Error{Kind: KindValidation, Entity: entity, Msg: msg}
}

func parentNotFound(entity, key string) error {
	return &Error{Kind: KindParentNotFound, Entity: entity, Key: key, Err: ErrNotFound}
}

func invalidInput(field, msg string) error {
	return &Error{Kind: KindInvalidInput, Entity: field, Msg: msg}
}

// Postgres error codes the engine cares about. Everything else stays an
// opaque wrapped driver error.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// classifyStoreErr inspects a store error exactly once and maps constraint
// breaches onto the taxonomy. Nothing above this boundary looks at driver
// codes. pgx.ErrNoRows is mapped to ErrNotFound so lookup callers can treat
// both store implementations alike.
func classifyStoreErr(entity, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, key, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &Error{Kind: KindUniqueViolation, Entity: entity, Key: key, Msg: pgErr.ConstraintName, Err: err}
		case pgForeignKeyViolation:
			return &Error{Kind: KindForeignKeyViolation, Entity: entity, Key: key, Msg: pgErr.ConstraintName, Err: err}
		}
	}
	return fmt.Errorf("%s %s: %w", entity, key, err)
}
