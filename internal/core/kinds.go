package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// EntityKind names one of the importable roster entities.
type EntityKind string

const (
	KindStudent EntityKind = "student"
	KindTeacher EntityKind = "teacher"
	KindClass   EntityKind = "class"
	KindSubject EntityKind = "subject"
	KindParent  EntityKind = "parent"
)

// KindDefinition is everything the pipeline needs to know about one kind:
// its source columns, its table, and which column carries its identifier.
type KindDefinition struct {
	Kind  EntityKind `json:"kind"`
	Label string     `json:"label"`
	// Plural is the URL and CLI name, e.g. "students".
	Plural string `json:"plural"`
	Table  string `json:"table"`
	// CodeColumn holds the unique identifier column, CodeLabel its words.
	CodeColumn string `json:"codeColumn"`
	CodeLabel  string `json:"codeLabel"`
	// Columns lists every persisted column besides id and created_at.
	Columns []string    `json:"columns"`
	Fields  []FieldSpec `json:"fields"`

	build func(row int, v cellValues, ctx buildContext) Record
}

// HasColumn reports whether col is a persisted column of this kind.
func (d KindDefinition) HasColumn(col string) bool {
	if col == "id" {
		return true
	}
	for _, c := range d.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Headers returns the template header names in declaration order.
func (d KindDefinition) Headers() []string {
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Name
	}
	return out
}

var (
	registry   = make(map[EntityKind]KindDefinition)
	registryMu sync.RWMutex
)

// Register adds a kind definition to the registry.
// Panics if the kind is already registered.
func Register(def KindDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Kind]; exists {
		panic(fmt.Sprintf("kind already registered: %s", def.Kind))
	}
	registry[def.Kind] = def
}

// Lookup returns the definition for kind.
func Lookup(kind EntityKind) (KindDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[kind]
	return def, ok
}

// Definition is Lookup returning ErrUnknownKind when missing.
func Definition(kind EntityKind) (KindDefinition, error) {
	def, ok := Lookup(kind)
	if !ok {
		return KindDefinition{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return def, nil
}

// All returns every registered definition sorted by kind.
func All() []KindDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]KindDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Kind < result[j].Kind
	})
	return result
}

// ParseKind accepts a kind by singular or plural name, case-insensitively.
func ParseKind(name string) (EntityKind, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, def := range All() {
		if key == string(def.Kind) || key == def.Plural {
			return def.Kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Enumerations shared by several kinds.
var (
	genders       = []string{"Male", "Female"}
	relationships = []string{"Father", "Mother", "Guardian", "Other"}
	activeStates  = []string{"Active", "Inactive"}
)

func init() {
	Register(KindDefinition{
		Kind:       KindStudent,
		Label:      "Student",
		Plural:     "students",
		Table:      "students",
		CodeColumn: "admission_number",
		CodeLabel:  "admission number",
		Columns: []string{
			"admission_number", "first_name", "middle_name", "last_name", "gender",
			"date_of_birth", "class_name", "class_id", "email", "phone", "address",
			"status", "academic_year", "is_boarder", "parent_id",
		},
		Fields: []FieldSpec{
			{Name: "firstName", Required: true, Type: FieldText},
			{Name: "lastName", Aliases: []string{"surname"}, Required: true, Type: FieldText},
			{Name: "gender", Aliases: []string{"sex"}, Required: true, Type: FieldEnum, EnumValues: genders},
			{Name: "className", Aliases: []string{"class"}, Required: true, Type: FieldText},
			{Name: "middleName", Aliases: []string{"otherNames"}, Type: FieldText},
			{Name: "dateOfBirth", Aliases: []string{"dob"}, Type: FieldDate},
			{Name: "admissionNumber", Aliases: []string{"admissionNo"}, Type: FieldText},
			{Name: "email", Type: FieldEmail},
			{Name: "phone", Type: FieldPhone},
			{Name: "address", Type: FieldText},
			{Name: "status", Type: FieldEnum, EnumValues: []string{"Active", "Inactive", "Graduated", "Transferred", "Suspended"}},
			{Name: "academicYear", Aliases: []string{"session"}, Type: FieldText},
			{Name: "isBoarder", Aliases: []string{"boarder"}, Type: FieldBool},
			{Name: "parentName", Aliases: []string{"guardianName"}, Type: FieldText},
			{Name: "parentPhone", Aliases: []string{"guardianPhone"}, Type: FieldPhone},
			{Name: "parentEmail", Aliases: []string{"guardianEmail"}, Type: FieldEmail},
			{Name: "parentRelationship", Aliases: []string{"relationship"}, Type: FieldEnum, EnumValues: relationships},
		},
		build: buildStudent,
	})

	Register(KindDefinition{
		Kind:       KindTeacher,
		Label:      "Teacher",
		Plural:     "teachers",
		Table:      "teachers",
		CodeColumn: "employee_id",
		CodeLabel:  "employee ID",
		Columns: []string{
			"employee_id", "first_name", "last_name", "email", "phone", "gender",
			"qualification", "specialization", "date_of_joining", "status", "is_class_teacher",
		},
		Fields: []FieldSpec{
			{Name: "firstName", Required: true, Type: FieldText},
			{Name: "lastName", Aliases: []string{"surname"}, Required: true, Type: FieldText},
			{Name: "email", Required: true, Type: FieldEmail},
			{Name: "phone", Required: true, Type: FieldPhone},
			{Name: "gender", Aliases: []string{"sex"}, Required: true, Type: FieldEnum, EnumValues: genders},
			{Name: "employeeId", Aliases: []string{"staffId"}, Type: FieldText},
			{Name: "qualification", Type: FieldText},
			{Name: "specialization", Aliases: []string{"subjects"}, Type: FieldList},
			{Name: "dateOfJoining", Aliases: []string{"joinDate"}, Type: FieldDate},
			{Name: "status", Type: FieldEnum, EnumValues: []string{"Active", "Inactive", "On Leave"}},
			{Name: "isClassTeacher", Type: FieldBool},
		},
		build: buildTeacher,
	})

	Register(KindDefinition{
		Kind:       KindClass,
		Label:      "Class",
		Plural:     "classes",
		Table:      "classes",
		CodeColumn: "name",
		CodeLabel:  "class name",
		Columns: []string{
			"name", "level", "section", "capacity", "class_teacher_id", "academic_year", "status",
		},
		Fields: []FieldSpec{
			{Name: "name", Aliases: []string{"className"}, Required: true, Type: FieldText},
			{Name: "level", Required: true, Type: FieldEnum, EnumValues: []string{"Nursery", "Primary", "JSS", "SSS"}},
			{Name: "section", Aliases: []string{"arm"}, Type: FieldText},
			{Name: "capacity", Type: FieldInt},
			{Name: "classTeacherEmail", Aliases: []string{"teacherEmail"}, Type: FieldEmail},
			{Name: "academicYear", Aliases: []string{"session"}, Type: FieldText},
			{Name: "status", Type: FieldEnum, EnumValues: activeStates},
		},
		build: buildClass,
	})

	Register(KindDefinition{
		Kind:       KindSubject,
		Label:      "Subject",
		Plural:     "subjects",
		Table:      "subjects",
		CodeColumn: "code",
		CodeLabel:  "subject code",
		Columns: []string{
			"code", "name", "category", "class_id", "class_name", "teacher_id", "is_compulsory", "description",
		},
		Fields: []FieldSpec{
			{Name: "name", Aliases: []string{"subjectName"}, Required: true, Type: FieldText},
			{Name: "code", Aliases: []string{"subjectCode"}, Required: true, Type: FieldText},
			{Name: "category", Required: true, Type: FieldEnum, EnumValues: []string{"Core", "Elective", "Vocational"}},
			{Name: "className", Aliases: []string{"class"}, Required: true, Type: FieldText},
			{Name: "teacherEmail", Type: FieldEmail},
			{Name: "isCompulsory", Aliases: []string{"compulsory"}, Type: FieldBool},
			{Name: "description", Type: FieldText},
		},
		build: buildSubject,
	})

	Register(KindDefinition{
		Kind:       KindParent,
		Label:      "Parent",
		Plural:     "parents",
		Table:      "parents",
		CodeColumn: "phone",
		CodeLabel:  "phone",
		Columns: []string{
			"first_name", "last_name", "phone", "email", "relationship", "occupation", "address", "status",
		},
		Fields: []FieldSpec{
			{Name: "firstName", Required: true, Type: FieldText},
			{Name: "lastName", Aliases: []string{"surname"}, Required: true, Type: FieldText},
			{Name: "phone", Required: true, Type: FieldPhone},
			{Name: "email", Type: FieldEmail},
			{Name: "relationship", Type: FieldEnum, EnumValues: relationships},
			{Name: "occupation", Type: FieldText},
			{Name: "address", Type: FieldText},
			{Name: "status", Type: FieldEnum, EnumValues: activeStates},
		},
		build: buildParent,
	})
}
