package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors shared by the import pipeline. Callers match them with
// errors.Is; every producer wraps them with context via fmt.Errorf.
var (
	// ErrDuplicateIdentifier means a caller-supplied identifier is already used.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")

	// ErrUnknownKind is returned for an entity kind with no registered definition.
	ErrUnknownKind = errors.New("unknown entity kind")

	// ErrMalformedInput means the source could not be tokenized at all.
	ErrMalformedInput = errors.New("invalid csv")

	// ErrEmptyInput means the source had no header row.
	ErrEmptyInput = errors.New("empty file")

	// ErrImportCancelled is returned when the caller's context ends mid-run.
	ErrImportCancelled = errors.New("import cancelled")

	// ErrQueueClosed is reported on futures enqueued after Close.
	ErrQueueClosed = errors.New("effect queue closed")

	// ErrTooManyImports is returned when no import slot frees up in time.
	ErrTooManyImports = errors.New("too many imports in progress, please try again later")

	// ErrFileTooLarge is returned when a source exceeds the configured size.
	ErrFileTooLarge = errors.New("file too large")

	// ErrRunNotFound is returned for an unknown or expired background run.
	ErrRunNotFound = errors.New("import not found")
)

// RowError attributes one or more validation or persistence failures to a
// single source row.
type RowError struct {
	Row     int      `json:"row"`
	Reasons []string `json:"reasons"`
}

func (e *RowError) Error() string {
	reasons := strings.Join(e.Reasons, "; ")
	if e.Row <= 0 {
		return reasons
	}
	return fmt.Sprintf("Row %d: %s", e.Row, reasons)
}

// newRowError builds a RowError from a single formatted reason.
func newRowError(row int, format string, args ...any) *RowError {
	return &RowError{Row: row, Reasons: []string{fmt.Sprintf(format, args...)}}
}

// ErrorClass groups persistence failures by how the orchestrator reports them.
type ErrorClass int

const (
	ErrorClassOther ErrorClass = iota
	ErrorClassDuplicate
	ErrorClassConstraint
	ErrorClassConnection
	ErrorClassCancelled
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassDuplicate:
		return "duplicate"
	case ErrorClassConstraint:
		return "constraint"
	case ErrorClassConnection:
		return "connection"
	case ErrorClassCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

// classPatterns are consulted when the error carries no driver error code.
// Order matters: the first match wins.
var classPatterns = []struct {
	pattern string
	class   ErrorClass
}{
	{"duplicate key", ErrorClassDuplicate},
	{"unique constraint", ErrorClassDuplicate},
	{"violates unique", ErrorClassDuplicate},
	{"foreign key", ErrorClassConstraint},
	{"not-null constraint", ErrorClassConstraint},
	{"not null constraint", ErrorClassConstraint},
	{"check constraint", ErrorClassConstraint},
	{"connection refused", ErrorClassConnection},
	{"connection reset", ErrorClassConnection},
	{"broken pipe", ErrorClassConnection},
	{"database is locked", ErrorClassConnection},
}

// ClassifyError decides which ErrorClass a persistence error belongs to.
// PostgreSQL error codes are checked first, then message patterns.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassOther
	}
	if errors.Is(err, ErrDuplicateIdentifier) {
		return ErrorClassDuplicate
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassCancelled
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return ErrorClassDuplicate
		case strings.HasPrefix(pgErr.Code, "23"):
			return ErrorClassConstraint
		case strings.HasPrefix(pgErr.Code, "08"):
			return ErrorClassConnection
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range classPatterns {
		if strings.Contains(msg, p.pattern) {
			return p.class
		}
	}
	return ErrorClassOther
}

// IsDuplicate reports whether err is a uniqueness violation of any origin.
func IsDuplicate(err error) bool {
	return ClassifyError(err) == ErrorClassDuplicate
}
