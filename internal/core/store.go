package core

import (
	"context"
	"fmt"
)

// Entity is a persisted roster record. Fields are keyed by column name.
type Entity struct {
	ID     string         `json:"id"`
	Kind   EntityKind     `json:"kind"`
	Code   string         `json:"code,omitempty"`
	Fields map[string]any `json:"fields"`
}

// Text returns a field rendered as a string, or "" if absent.
func (e Entity) Text(col string) string {
	v, ok := e.Fields[col]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ExecResult is the outcome of Store.Execute.
type ExecResult struct {
	Rows         []map[string]any
	RowsAffected int64
}

// Store is the persistence collaborator of the import pipeline.
//
// Implementations must be safe for concurrent use: secondary effects call
// Execute from parallel batches while the importer keeps writing rows.
// Statements passed to Execute use PostgreSQL-style $n placeholders.
type Store interface {
	Create(ctx context.Context, kind EntityKind, e Entity) (Entity, error)
	ExistsByCode(ctx context.Context, kind EntityKind, code string) (bool, error)
	ExistsByField(ctx context.Context, kind EntityKind, field, value string) (bool, error)
	FindByField(ctx context.Context, kind EntityKind, field, value string) (Entity, bool, error)
	List(ctx context.Context, kind EntityKind) ([]Entity, error)
	Execute(ctx context.Context, stmt string, params ...any) (ExecResult, error)
}

// optional maps an empty string to SQL NULL.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func optionalInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

type references struct {
	code      string
	classID   string
	parentID  string
	teacherID string
}

func studentEntity(r StudentRecord, refs references) Entity {
	fields := map[string]any{
		"admission_number": refs.code,
		"first_name":       r.FirstName,
		"middle_name":      optional(r.MiddleName),
		"last_name":        r.LastName,
		"gender":           r.Gender,
		"date_of_birth":    nil,
		"class_name":       r.ClassName,
		"class_id":         optional(refs.classID),
		"email":            optional(r.Email),
		"phone":            optional(r.Phone),
		"address":          optional(r.Address),
		"status":           r.Status,
		"academic_year":    r.AcademicYear,
		"is_boarder":       r.IsBoarder,
		"parent_id":        optional(refs.parentID),
	}
	if r.DateOfBirth != nil {
		fields["date_of_birth"] = *r.DateOfBirth
	}
	return Entity{Kind: KindStudent, Code: refs.code, Fields: fields}
}

func teacherEntity(r TeacherRecord, refs references) Entity {
	fields := map[string]any{
		"employee_id":      refs.code,
		"first_name":       r.FirstName,
		"last_name":        r.LastName,
		"email":            r.Email,
		"phone":            r.Phone,
		"gender":           r.Gender,
		"qualification":    optional(r.Qualification),
		"specialization":   r.Specialization,
		"date_of_joining":  nil,
		"status":           r.Status,
		"is_class_teacher": r.IsClassTeacher,
	}
	if r.Specialization == nil {
		fields["specialization"] = []string{}
	}
	if r.DateOfJoining != nil {
		fields["date_of_joining"] = *r.DateOfJoining
	}
	return Entity{Kind: KindTeacher, Code: refs.code, Fields: fields}
}

func classEntity(r ClassRecord, refs references) Entity {
	return Entity{Kind: KindClass, Code: r.Name, Fields: map[string]any{
		"name":             r.Name,
		"level":            r.Level,
		"section":          optional(r.Section),
		"capacity":         optionalInt(r.Capacity),
		"class_teacher_id": optional(refs.teacherID),
		"academic_year":    r.AcademicYear,
		"status":           r.Status,
	}}
}

func subjectEntity(r SubjectRecord, refs references) Entity {
	return Entity{Kind: KindSubject, Code: r.Code, Fields: map[string]any{
		"code":          r.Code,
		"name":          r.Name,
		"category":      r.Category,
		"class_id":      optional(refs.classID),
		"class_name":    optional(r.ClassName),
		"teacher_id":    optional(refs.teacherID),
		"is_compulsory": r.IsCompulsory,
		"description":   optional(r.Description),
	}}
}

func parentEntity(r ParentRecord) Entity {
	return Entity{Kind: KindParent, Code: r.Phone, Fields: map[string]any{
		"first_name":   r.FirstName,
		"last_name":    r.LastName,
		"phone":        r.Phone,
		"email":        optional(r.Email),
		"relationship": optional(r.Relationship),
		"occupation":   optional(r.Occupation),
		"address":      optional(r.Address),
		"status":       r.Status,
	}}
}
