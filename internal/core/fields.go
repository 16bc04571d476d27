package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// FieldType selects how a raw cell is parsed and checked.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldEmail
	FieldPhone
	FieldBool
	FieldList
	FieldInt
)

// DateLayout is the only accepted date format.
const DateLayout = "2006-01-02"

// MinPhoneDigits is the fewest digits a phone number may carry.
const MinPhoneDigits = 10

// FieldSpec declares one source column.
type FieldSpec struct {
	// Name is the template header, e.g. "dateOfBirth".
	Name string `json:"name"`
	// Aliases are alternate headers accepted for the same column.
	Aliases []string `json:"aliases,omitempty"`
	// Label overrides the words used in messages; derived from Name if empty.
	Label      string    `json:"-"`
	Type       FieldType `json:"type"`
	Required   bool      `json:"required"`
	EnumValues []string  `json:"enumValues,omitempty"`
}

// validate is safe for concurrent use once built.
var validate = validator.New()

// label turns "dateOfBirth" into "date of birth".
func (f FieldSpec) label() string {
	if f.Label != "" {
		return f.Label
	}
	var b strings.Builder
	for i, r := range f.Name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte(' ')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lookup returns the first non-empty cell under the field's name or aliases.
func (f FieldSpec) lookup(row RawRow) string {
	if v := strings.TrimSpace(row.Get(f.Name)); v != "" {
		return v
	}
	for _, alias := range f.Aliases {
		if v := strings.TrimSpace(row.Get(alias)); v != "" {
			return v
		}
	}
	return ""
}

// parse converts a trimmed cell into its typed value. A non-empty problem
// describes why the cell was rejected; a nil value with no problem means the
// optional cell was empty.
func (f FieldSpec) parse(raw string) (value any, problem string) {
	if raw == "" {
		if f.Required {
			return nil, f.label() + " required"
		}
		return nil, ""
	}

	switch f.Type {
	case FieldEnum:
		key := canonicalKey(raw)
		for _, allowed := range f.EnumValues {
			if canonicalKey(allowed) == key {
				return allowed, ""
			}
		}
		return nil, fmt.Sprintf("%s must be one of: %s", f.label(), strings.Join(f.EnumValues, ", "))

	case FieldDate:
		t, err := time.Parse(DateLayout, raw)
		if err != nil {
			return nil, fmt.Sprintf("invalid %s (expected YYYY-MM-DD)", f.label())
		}
		return t, ""

	case FieldEmail:
		email := strings.ToLower(raw)
		if err := validate.Var(email, "email"); err != nil {
			return nil, fmt.Sprintf("invalid %s format", f.label())
		}
		return email, ""

	case FieldPhone:
		phone := NormalizePhone(raw)
		if countDigits(phone) < MinPhoneDigits {
			return nil, fmt.Sprintf("%s must contain at least %d digits", f.label(), MinPhoneDigits)
		}
		return phone, ""

	case FieldBool:
		switch strings.ToLower(raw) {
		case "true":
			return true, ""
		case "false":
			return false, ""
		}
		return nil, f.label() + " must be true or false"

	case FieldList:
		var items []string
		for _, part := range strings.Split(raw, ";") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		if len(items) == 0 {
			if f.Required {
				return nil, f.label() + " required"
			}
			return nil, ""
		}
		return items, ""

	case FieldInt:
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, f.label() + " must be a whole number"
		}
		return n, ""

	default:
		return raw, ""
	}
}

// NormalizePhone keeps the digits of a phone number and a leading '+'.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	if strings.HasPrefix(raw, "+") {
		b.WriteByte('+')
	}
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// canonicalKey lowercases s and drops everything but letters and digits, so
// "First Name", "first_name" and "firstName" compare equal.
func canonicalKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cellValues holds the typed values of one validated row keyed by field name.
type cellValues map[string]any

func (v cellValues) text(name string) string {
	s, _ := v[name].(string)
	return s
}

func (v cellValues) textOr(name, fallback string) string {
	if s := v.text(name); s != "" {
		return s
	}
	return fallback
}

func (v cellValues) date(name string) *time.Time {
	t, ok := v[name].(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func (v cellValues) boolean(name string) bool {
	b, _ := v[name].(bool)
	return b
}

func (v cellValues) list(name string) []string {
	l, _ := v[name].([]string)
	return l
}

func (v cellValues) integer(name string) int {
	n, _ := v[name].(int)
	return n
}
