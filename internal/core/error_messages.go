package core

// error_messages.go maps technical errors to coded, user-facing messages.
//
// Codes are grouped by category so staff can look them up quickly:
//
//	DB001-DB099   persistence (duplicates, constraints, connectivity)
//	VAL001-VAL099 row validation (dates, emails, phones, enums)
//	FILE001-FILE099 source file problems (size, encoding, shape)
//	IMP001-IMP099 import runs (cancellation, concurrency, kinds)
//	ERR000        fallback when nothing matches
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns precede general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Persistence
	{"duplicate identifier", UserMessage{"This identifier is already in use", "Leave the column empty to generate one, or pick an unused value", "DB001"}},
	{"duplicate key", UserMessage{"A record with this identifier already exists", "Remove rows that were imported before", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for repeated values in your file", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Check for repeated values in your file", "DB002"}},
	{"foreign key", UserMessage{"Referenced record does not exist", "Import classes and teachers before students and subjects", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"database is locked", UserMessage{"Database was busy with another operation", "Please try again", "DB006"}},

	// Validation
	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD, e.g. 2012-09-01", "VAL001"}},
	{"invalid email", UserMessage{"Invalid email address", "Use an address like name@school.edu", "VAL002"}},
	{"required", UserMessage{"Required field is empty", "Ensure all required columns have values", "VAL003"}},
	{"must be one of", UserMessage{"Value is not in the allowed list", "Download the template to see the allowed values", "VAL004"}},
	{"at least 10 digits", UserMessage{"Phone number is too short", "Include the full number with area code", "VAL005"}},
	{"expected", UserMessage{"Row does not match the header", "Check for missing or extra commas in the row", "VAL006"}},

	// Files
	{"file too large", UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{"invalid csv", UserMessage{"File is not a valid CSV", "Ensure file is comma-separated with balanced quotes", "FILE002"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save file as UTF-8 encoding", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV file to import", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Please upload a CSV file with a header and data rows", "FILE005"}},

	// Import runs
	{"import cancelled", UserMessage{"Import was cancelled", "Rows before the cancellation were saved; re-import the rest", "IMP001"}},
	{"too many imports", UserMessage{"Another import is in progress", "Please wait a moment and try again", "IMP002"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "IMP003"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try importing a smaller file", "IMP004"}},
	{"unknown entity kind", UserMessage{"Unknown import type", "Use one of: students, teachers, classes, subjects, parents", "IMP005"}},
	{"import not found", UserMessage{"Import run not found", "Results are kept for a short time after a run ends; start the import again", "IMP007"}},
	{"effect queue closed", UserMessage{"Server is shutting down", "Accounts for this import may be missing; retry later", "IMP006"}},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching pattern, or ERR000 when none match.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError keeps the technical error for logging alongside the message shown
// to users.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
