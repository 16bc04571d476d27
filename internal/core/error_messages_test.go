package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "duplicate identifier",
			err:         fmt.Errorf("%w: %q", ErrDuplicateIdentifier, "GRA/0001"),
			wantCode:    "DB001",
			wantMessage: "This identifier is already in use",
		},
		{
			name:        "duplicate key from the database",
			err:         errors.New(`ERROR: duplicate key value violates unique constraint "students_admission_number_key"`),
			wantCode:    "DB001",
			wantMessage: "A record with this identifier already exists",
		},
		{
			name:        "foreign key",
			err:         errors.New("insert or update on table violates foreign key constraint"),
			wantCode:    "DB003",
			wantMessage: "Referenced record does not exist",
		},
		{
			name:        "sqlite busy",
			err:         errors.New("database is locked (5) (SQLITE_BUSY)"),
			wantCode:    "DB006",
			wantMessage: "Database was busy with another operation",
		},
		{
			name:        "row validation",
			err:         &RowError{Row: 2, Reasons: []string{"last name required"}},
			wantCode:    "VAL003",
			wantMessage: "Required field is empty",
		},
		{
			name:        "field count mismatch",
			err:         &RowError{Row: 2, Reasons: []string{"expected 3 fields, got 2"}},
			wantCode:    "VAL006",
			wantMessage: "Row does not match the header",
		},
		{
			name:        "malformed source",
			err:         fmt.Errorf("import students: %w: bare quote", ErrMalformedInput),
			wantCode:    "FILE002",
			wantMessage: "File is not a valid CSV",
		},
		{
			name:        "cancelled run wins over context text",
			err:         fmt.Errorf("%w after 1 of 3 rows: %w", ErrImportCancelled, context.Canceled),
			wantCode:    "IMP001",
			wantMessage: "Import was cancelled",
		},
		{
			name:        "limiter timeout",
			err:         ErrTooManyImports,
			wantCode:    "IMP002",
			wantMessage: "Another import is in progress",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("DUPLICATE KEY value violates"),
			wantCode:    "DB001",
			wantMessage: "A record with this identifier already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrFileTooLarge)
	want := "File exceeds maximum size limit (Code: FILE001). Split the file into smaller chunks"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
	if !IsUserFacing(ErrEmptyInput) {
		t.Error("ErrEmptyInput should be user facing")
	}
	if IsUserFacing(errors.New("segfault in the flux capacitor")) {
		t.Error("unknown errors should not be user facing")
	}
}

func TestNewUserError(t *testing.T) {
	if NewUserError(nil) != nil {
		t.Error("NewUserError(nil) should be nil")
	}

	technical := fmt.Errorf("create parent: %w", errStoreDown)
	ue := NewUserError(technical)
	if ue.Error() != "Unable to connect to database" {
		t.Errorf("Error() = %q", ue.Error())
	}
	if !errors.Is(ue, errStoreDown) {
		t.Error("UserError should unwrap to the technical error")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassOther},
		{"duplicate sentinel", &DuplicateError{Field: "phone", Value: "08011112222"}, ErrorClassDuplicate},
		{"pg unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate"}, ErrorClassDuplicate},
		{"pg not null", &pgconn.PgError{Code: "23502", Message: "null value"}, ErrorClassConstraint},
		{"pg connection", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "08006"}), ErrorClassConnection},
		{"context cancelled", fmt.Errorf("find: %w", context.Canceled), ErrorClassCancelled},
		{"deadline", context.DeadlineExceeded, ErrorClassCancelled},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: parents.phone (2067)"), ErrorClassDuplicate},
		{"sqlite check", errors.New("CHECK constraint failed: capacity"), ErrorClassConstraint},
		{"refused", errStoreDown, ErrorClassConnection},
		{"other", errors.New("disk full"), ErrorClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRowErrorFormat(t *testing.T) {
	err := &RowError{Row: 4, Reasons: []string{"first name required", "invalid email format"}}
	if got := err.Error(); got != "Row 4: first name required; invalid email format" {
		t.Errorf("Error() = %q", got)
	}
	if !strings.HasPrefix(newRowError(7, "duplicate %s", "x").Error(), "Row 7: ") {
		t.Error("newRowError should carry the row number")
	}
}
