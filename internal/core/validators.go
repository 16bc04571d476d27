package core

import (
	"time"
)

// Validator turns raw rows of one kind into typed records.
// Validators are pure: they hold only immutable specs and a clock, so
// validating the same row twice yields equal records.
type Validator interface {
	Kind() EntityKind
	ValidateRow(row RawRow) (Record, *RowError)
	Validate(rows []RawRow) ([]Record, []RowError)
}

// ValidatorOption configures NewValidator.
type ValidatorOption func(*recordValidator)

// WithValidatorClock sets the clock used for defaults like the academic year.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *recordValidator) {
		v.now = now
	}
}

// WithClassOverride attaches every subject to classID, making the className
// column optional.
func WithClassOverride(classID string) ValidatorOption {
	return func(v *recordValidator) {
		v.classID = classID
	}
}

type recordValidator struct {
	def     KindDefinition
	fields  []FieldSpec
	now     func() time.Time
	classID string
}

// NewValidator returns the validator for kind.
func NewValidator(kind EntityKind, opts ...ValidatorOption) (Validator, error) {
	def, err := Definition(kind)
	if err != nil {
		return nil, err
	}

	v := &recordValidator{def: def, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}

	v.fields = make([]FieldSpec, len(def.Fields))
	copy(v.fields, def.Fields)
	if kind == KindSubject && v.classID != "" {
		for i := range v.fields {
			if v.fields[i].Name == "className" {
				v.fields[i].Required = false
			}
		}
	}
	return v, nil
}

func (v *recordValidator) Kind() EntityKind {
	return v.def.Kind
}

// ValidateRow checks every field of row and reports all violations at once.
func (v *recordValidator) ValidateRow(row RawRow) (Record, *RowError) {
	values := make(cellValues, len(v.fields))
	var reasons []string

	for _, spec := range v.fields {
		value, problem := spec.parse(spec.lookup(row))
		if problem != "" {
			reasons = append(reasons, problem)
			continue
		}
		if value != nil {
			values[spec.Name] = value
		}
	}

	if len(reasons) > 0 {
		return nil, &RowError{Row: row.Number, Reasons: reasons}
	}

	return v.def.build(row.Number, values, buildContext{now: v.now(), classID: v.classID}), nil
}

// Validate runs ValidateRow over rows, keeping both outputs in row order.
func (v *recordValidator) Validate(rows []RawRow) ([]Record, []RowError) {
	var records []Record
	var errs []RowError
	for _, row := range rows {
		rec, rowErr := v.ValidateRow(row)
		if rowErr != nil {
			errs = append(errs, *rowErr)
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}
