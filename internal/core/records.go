package core

import (
	"fmt"
	"time"
)

// Record is a validated, normalized row of one kind.
type Record interface {
	Kind() EntityKind
	Row() int
}

// buildContext carries run-level inputs into record construction.
type buildContext struct {
	now     time.Time
	classID string
}

// AcademicYear returns the session containing t, e.g. "2026/2027".
// Sessions start in September.
func AcademicYear(t time.Time) string {
	start := t.Year()
	if t.Month() < time.September {
		start--
	}
	return fmt.Sprintf("%d/%d", start, start+1)
}

// ParentRef is the descriptive parent reference carried on a student row.
type ParentRef struct {
	Name         string
	Phone        string
	Email        string
	Relationship string
}

// IsZero reports whether the row named no parent at all.
func (p ParentRef) IsZero() bool {
	return p.Name == "" && p.Phone == "" && p.Email == ""
}

type StudentRecord struct {
	RowNumber       int
	FirstName       string
	MiddleName      string
	LastName        string
	Gender          string
	DateOfBirth     *time.Time
	ClassName       string
	AdmissionNumber string
	Email           string
	Phone           string
	Address         string
	Status          string
	AcademicYear    string
	IsBoarder       bool
	Parent          ParentRef
}

func (StudentRecord) Kind() EntityKind { return KindStudent }
func (r StudentRecord) Row() int       { return r.RowNumber }

type TeacherRecord struct {
	RowNumber      int
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	Gender         string
	EmployeeID     string
	Qualification  string
	Specialization []string
	DateOfJoining  *time.Time
	Status         string
	IsClassTeacher bool
}

func (TeacherRecord) Kind() EntityKind { return KindTeacher }
func (r TeacherRecord) Row() int       { return r.RowNumber }

type ClassRecord struct {
	RowNumber         int
	Name              string
	Level             string
	Section           string
	Capacity          int
	ClassTeacherEmail string
	AcademicYear      string
	Status            string
}

func (ClassRecord) Kind() EntityKind { return KindClass }
func (r ClassRecord) Row() int       { return r.RowNumber }

type SubjectRecord struct {
	RowNumber    int
	Name         string
	Code         string
	Category     string
	ClassName    string
	ClassID      string
	TeacherEmail string
	IsCompulsory bool
	Description  string
}

func (SubjectRecord) Kind() EntityKind { return KindSubject }
func (r SubjectRecord) Row() int       { return r.RowNumber }

type ParentRecord struct {
	RowNumber    int
	FirstName    string
	LastName     string
	Phone        string
	Email        string
	Relationship string
	Occupation   string
	Address      string
	Status       string
}

func (ParentRecord) Kind() EntityKind { return KindParent }
func (r ParentRecord) Row() int       { return r.RowNumber }

func buildStudent(row int, v cellValues, bc buildContext) Record {
	return StudentRecord{
		RowNumber:       row,
		FirstName:       v.text("firstName"),
		MiddleName:      v.text("middleName"),
		LastName:        v.text("lastName"),
		Gender:          v.text("gender"),
		DateOfBirth:     v.date("dateOfBirth"),
		ClassName:       v.text("className"),
		AdmissionNumber: v.text("admissionNumber"),
		Email:           v.text("email"),
		Phone:           v.text("phone"),
		Address:         v.text("address"),
		Status:          v.textOr("status", "Active"),
		AcademicYear:    v.textOr("academicYear", AcademicYear(bc.now)),
		IsBoarder:       v.boolean("isBoarder"),
		Parent: ParentRef{
			Name:         v.text("parentName"),
			Phone:        v.text("parentPhone"),
			Email:        v.text("parentEmail"),
			Relationship: v.text("parentRelationship"),
		},
	}
}

func buildTeacher(row int, v cellValues, _ buildContext) Record {
	return TeacherRecord{
		RowNumber:      row,
		FirstName:      v.text("firstName"),
		LastName:       v.text("lastName"),
		Email:          v.text("email"),
		Phone:          v.text("phone"),
		Gender:         v.text("gender"),
		EmployeeID:     v.text("employeeId"),
		Qualification:  v.text("qualification"),
		Specialization: v.list("specialization"),
		DateOfJoining:  v.date("dateOfJoining"),
		Status:         v.textOr("status", "Active"),
		IsClassTeacher: v.boolean("isClassTeacher"),
	}
}

func buildClass(row int, v cellValues, bc buildContext) Record {
	return ClassRecord{
		RowNumber:         row,
		Name:              v.text("name"),
		Level:             v.text("level"),
		Section:           v.text("section"),
		Capacity:          v.integer("capacity"),
		ClassTeacherEmail: v.text("classTeacherEmail"),
		AcademicYear:      v.textOr("academicYear", AcademicYear(bc.now)),
		Status:            v.textOr("status", "Active"),
	}
}

func buildSubject(row int, v cellValues, bc buildContext) Record {
	return SubjectRecord{
		RowNumber:    row,
		Name:         v.text("name"),
		Code:         v.text("code"),
		Category:     v.text("category"),
		ClassName:    v.text("className"),
		ClassID:      bc.classID,
		TeacherEmail: v.text("teacherEmail"),
		IsCompulsory: v.boolean("isCompulsory"),
		Description:  v.text("description"),
	}
}

func buildParent(row int, v cellValues, _ buildContext) Record {
	return ParentRecord{
		RowNumber:    row,
		FirstName:    v.text("firstName"),
		LastName:     v.text("lastName"),
		Phone:        v.text("phone"),
		Email:        v.text("email"),
		Relationship: v.text("relationship"),
		Occupation:   v.text("occupation"),
		Address:      v.text("address"),
		Status:       v.textOr("status", "Active"),
	}
}
