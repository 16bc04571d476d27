package postgres

// convert.go maps entity field values to pgtype values on the way in and
// normalizes driver values on the way out.
//
// Empty text becomes NULL. Reference columns hold UUIDs and are parsed
// strictly: a non-empty value that is not a UUID is an error rather than a
// silent NULL.

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// refColumns are UUID foreign keys. They are read back as text.
var refColumns = map[string]bool{
	"class_id":         true,
	"parent_id":        true,
	"teacher_id":       true,
	"class_teacher_id": true,
}

func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func toPgBool(b bool) pgtype.Bool {
	return pgtype.Bool{Bool: b, Valid: true}
}

// toPgInt4 returns invalid for zero.
func toPgInt4(i int) pgtype.Int4 {
	if i == 0 {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(i), Valid: true}
}

func toPgUUID(s string) (pgtype.UUID, error) {
	if s == "" {
		return pgtype.UUID{Valid: false}, nil
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

// pgValue converts one entity field for an INSERT parameter.
func pgValue(col string, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if refColumns[col] {
			u, err := toPgUUID(x)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", col, err)
			}
			return u, nil
		}
		return toPgText(x), nil
	case time.Time:
		return toPgDate(x), nil
	case bool:
		return toPgBool(x), nil
	case int:
		return toPgInt4(x), nil
	case []string:
		return x, nil
	default:
		return nil, fmt.Errorf("column %s: unsupported value type %T", col, v)
	}
}

// fromPg normalizes a value returned by rows.Values.
func fromPg(v any) any {
	switch x := v.(type) {
	case int32:
		return int(x)
	case int64:
		return int(x)
	case [16]byte:
		return uuid.UUID(x).String()
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return v
	}
}
