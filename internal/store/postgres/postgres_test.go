package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestPgValue(t *testing.T) {
	id := uuid.New()
	date := time.Date(2012, 9, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		col     string
		in      any
		want    any
		wantErr bool
	}{
		{"nil stays nil", "email", nil, nil, false},
		{"text", "first_name", " Ada ", pgtype.Text{String: "Ada", Valid: true}, false},
		{"blank text is null", "address", "  ", pgtype.Text{Valid: false}, false},
		{"date", "date_of_birth", date, pgtype.Date{Time: date, Valid: true}, false},
		{"bool", "is_boarder", false, pgtype.Bool{Bool: false, Valid: true}, false},
		{"int", "capacity", 40, pgtype.Int4{Int32: 40, Valid: true}, false},
		{"reference uuid", "class_id", id.String(), pgtype.UUID{Bytes: id, Valid: true}, false},
		{"bad reference", "parent_id", "class-42", nil, true},
		{"unsupported", "capacity", 4.5, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pgValue(tt.col, tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("pgValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("pgValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestFromPg(t *testing.T) {
	id := uuid.New()
	if got := fromPg([16]byte(id)); got != id.String() {
		t.Errorf("fromPg(uuid) = %v", got)
	}
	if got := fromPg(int32(40)); got != 40 {
		t.Errorf("fromPg(int32) = %v", got)
	}
	got, ok := fromPg([]any{"Maths", "Physics"}).([]string)
	if !ok || strings.Join(got, ",") != "Maths,Physics" {
		t.Errorf("fromPg(array) = %v", got)
	}
}

func TestStatements(t *testing.T) {
	def, err := core.Definition(core.KindClass)
	if err != nil {
		t.Fatal(err)
	}

	cols, err := insertColumns(def, map[string]any{"level": "JSS", "name": "JSS1A"})
	if err != nil {
		t.Fatalf("insertColumns() error = %v", err)
	}
	want := `INSERT INTO "classes" ("name", "level") VALUES ($1, $2) RETURNING id::text`
	if got := insertStatement(def, cols); got != want {
		t.Errorf("insertStatement() =\n%s\nwant\n%s", got, want)
	}

	if _, err := insertColumns(def, map[string]any{"name; DROP TABLE classes": "x"}); err == nil {
		t.Error("insertColumns() accepted an unknown column")
	}

	sel := selectStatement(def)
	if !strings.Contains(sel, `"class_teacher_id"::text AS "class_teacher_id"`) {
		t.Errorf("selectStatement() does not cast references: %s", sel)
	}
	if whereColumn("parent_id") != `"parent_id"::text` || whereColumn("phone") != `"phone"` {
		t.Error("whereColumn() casts the wrong columns")
	}
}

// TestStore_Integration runs against a real database when
// ROSTER_TEST_DATABASE_URL is set.
func TestStore_Integration(t *testing.T) {
	url := os.Getenv("ROSTER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ROSTER_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, PoolConfig{URL: url, MaxConns: 2})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback(ctx)

	s := New(tx)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	parent := core.Entity{Fields: map[string]any{
		"first_name": "Jane", "last_name": "Smith", "phone": "08011112222", "status": "Active",
	}}
	created, err := s.Create(ctx, core.KindParent, parent)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, ok, err := s.FindByField(ctx, core.KindParent, "phone", "08011112222")
	if err != nil || !ok || found.ID != created.ID {
		t.Fatalf("FindByField() = %+v, %v, %v", found, ok, err)
	}

	// The failed insert aborts the transaction, so it runs last.
	_, err = s.Create(ctx, core.KindParent, parent)
	if !core.IsDuplicate(err) {
		t.Errorf("second Create() error = %v, want duplicate", err)
	}
	if errors.Is(err, core.ErrDuplicateIdentifier) {
		t.Error("driver duplicate should not be the identifier sentinel")
	}
}
