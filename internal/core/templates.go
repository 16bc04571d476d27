package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// sampleRows holds one example row per kind, keyed by header name. Every
// sample passes its kind's validator.
var sampleRows = map[EntityKind]map[string]string{
	KindStudent: {
		"firstName":          "Ada",
		"lastName":           "Okafor",
		"gender":             "Female",
		"className":          "JSS1A",
		"middleName":         "Chioma",
		"dateOfBirth":        "2013-04-21",
		"email":              "ada.okafor@example.com",
		"phone":              "08031234567",
		"address":            "12 Marina Road, Lagos",
		"status":             "Active",
		"isBoarder":          "false",
		"parentName":         "Ngozi Okafor",
		"parentPhone":        "08011112222",
		"parentEmail":        "ngozi.okafor@example.com",
		"parentRelationship": "Mother",
	},
	KindTeacher: {
		"firstName":      "Tunde",
		"lastName":       "Bello",
		"email":          "tunde.bello@example.com",
		"phone":          "08055556666",
		"gender":         "Male",
		"qualification":  "B.Sc. Education",
		"specialization": "Mathematics;Further Mathematics",
		"dateOfJoining":  "2019-09-02",
		"status":         "Active",
		"isClassTeacher": "true",
	},
	KindClass: {
		"name":              "JSS1A",
		"level":             "JSS",
		"section":           "A",
		"capacity":          "40",
		"classTeacherEmail": "tunde.bello@example.com",
		"status":            "Active",
	},
	KindSubject: {
		"name":         "Mathematics",
		"code":         "MTH101",
		"category":     "Core",
		"className":    "JSS1A",
		"teacherEmail": "tunde.bello@example.com",
		"isCompulsory": "true",
		"description":  "Number, algebra and geometry",
	},
	KindParent: {
		"firstName":    "Ngozi",
		"lastName":     "Okafor",
		"phone":        "08011112222",
		"email":        "ngozi.okafor@example.com",
		"relationship": "Mother",
		"occupation":   "Engineer",
		"address":      "12 Marina Road, Lagos",
		"status":       "Active",
	},
}

// Template renders the header and one sample row for kind as CSV.
func Template(kind EntityKind) ([]byte, error) {
	def, err := Definition(kind)
	if err != nil {
		return nil, err
	}

	headers := def.Headers()
	sample := make([]string, len(headers))
	for i, h := range headers {
		sample[i] = sampleRows[kind][h]
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll([][]string{headers, sample}); err != nil {
		return nil, fmt.Errorf("write %s template: %w", kind, err)
	}
	return buf.Bytes(), nil
}
