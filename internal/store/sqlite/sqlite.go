// Package sqlite is an embedded, single-file implementation of core.Store
// built on the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

//go:embed schema.sql
var schemaSQL string

// Column codecs. Everything not listed is stored as given.
var (
	boolColumns = map[string]bool{"is_boarder": true, "is_class_teacher": true, "is_compulsory": true}
	dateColumns = map[string]bool{"date_of_birth": true, "date_of_joining": true}
	listColumns = map[string]bool{"specialization": true}
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Store implements core.Store on a SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

var _ core.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "roster.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; parallel effect batches queue on the pool.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the roster tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, kind core.EntityKind, e core.Entity) (core.Entity, error) {
	def, err := core.Definition(kind)
	if err != nil {
		return core.Entity{}, err
	}

	cols := []string{"id"}
	args := []any{uuid.NewString()}
	for col := range e.Fields {
		if col == "id" || !def.HasColumn(col) {
			return core.Entity{}, fmt.Errorf("unknown column %q for %s", col, def.Table)
		}
	}
	for _, col := range def.Columns {
		v, ok := e.Fields[col]
		if !ok {
			continue
		}
		arg, err := toSQLite(col, v)
		if err != nil {
			return core.Entity{}, err
		}
		cols = append(cols, col)
		args = append(args, arg)
	}

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdentifier(col)
		marks[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(def.Table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return core.Entity{}, fmt.Errorf("insert %s: %w", def.Table, err)
	}

	e.ID = args[0].(string)
	e.Kind = kind
	return e, nil
}

func (s *Store) ExistsByCode(ctx context.Context, kind core.EntityKind, code string) (bool, error) {
	def, err := core.Definition(kind)
	if err != nil {
		return false, err
	}
	return s.ExistsByField(ctx, kind, def.CodeColumn, code)
}

func (s *Store) ExistsByField(ctx context.Context, kind core.EntityKind, field, value string) (bool, error) {
	def, err := core.Definition(kind)
	if err != nil {
		return false, err
	}
	if !def.HasColumn(field) {
		return false, fmt.Errorf("unknown column %q for %s", field, def.Table)
	}

	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ?)",
		quoteIdentifier(def.Table), quoteIdentifier(field))

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s.%s: %w", def.Table, field, err)
	}
	return exists, nil
}

func (s *Store) FindByField(ctx context.Context, kind core.EntityKind, field, value string) (core.Entity, bool, error) {
	def, err := core.Definition(kind)
	if err != nil {
		return core.Entity{}, false, err
	}
	if !def.HasColumn(field) {
		return core.Entity{}, false, fmt.Errorf("unknown column %q for %s", field, def.Table)
	}

	query := selectStatement(def) + " WHERE " + quoteIdentifier(field) + " = ? LIMIT 1"
	entities, err := s.query(ctx, def, query, value)
	if err != nil {
		return core.Entity{}, false, err
	}
	if len(entities) == 0 {
		return core.Entity{}, false, nil
	}
	return entities[0], true, nil
}

func (s *Store) List(ctx context.Context, kind core.EntityKind) ([]core.Entity, error) {
	def, err := core.Definition(kind)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, def, selectStatement(def)+" ORDER BY rowid")
}

// Execute runs a statement written with $n placeholders.
func (s *Store) Execute(ctx context.Context, stmt string, params ...any) (core.ExecResult, error) {
	stmt = rewritePlaceholders(stmt)
	args := make([]any, len(params))
	for i, p := range params {
		if t, ok := p.(time.Time); ok {
			p = t.UTC().Format(time.RFC3339Nano)
		}
		args[i] = p
	}

	if !returnsRows(stmt) {
		res, err := s.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return core.ExecResult{}, err
		}
		n, _ := res.RowsAffected()
		return core.ExecResult{RowsAffected: n}, nil
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return core.ExecResult{}, err
	}
	maps, err := scanMaps(rows)
	if err != nil {
		return core.ExecResult{}, err
	}
	return core.ExecResult{Rows: maps, RowsAffected: int64(len(maps))}, nil
}

func (s *Store) query(ctx context.Context, def core.KindDefinition, query string, args ...any) ([]core.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", def.Table, err)
	}
	maps, err := scanMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", def.Table, err)
	}

	out := make([]core.Entity, 0, len(maps))
	for _, m := range maps {
		e := core.Entity{Kind: def.Kind, Fields: make(map[string]any, len(m))}
		for col, v := range m {
			if col == "id" {
				e.ID, _ = v.(string)
				continue
			}
			e.Fields[col] = fromSQLite(col, v)
		}
		e.Code = e.Text(def.CodeColumn)
		out = append(out, e)
	}
	return out, nil
}

func scanMaps(rows *sql.Rows) ([]map[string]any, error) {
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			m[col] = values[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func toSQLite(col string, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if x == "" {
			return nil, nil
		}
		return x, nil
	case time.Time:
		return x.Format(core.DateLayout), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case int:
		return x, nil
	case []string:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("column %s: unsupported value type %T", col, v)
	}
}

func fromSQLite(col string, v any) any {
	switch {
	case v == nil:
		return nil
	case boolColumns[col]:
		n, _ := v.(int64)
		return n != 0
	case dateColumns[col]:
		s, _ := v.(string)
		if t, err := time.Parse(core.DateLayout, s); err == nil {
			return t
		}
		return s
	case listColumns[col]:
		s, _ := v.(string)
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err != nil || list == nil {
			return []string{}
		}
		return list
	}
	if n, ok := v.(int64); ok {
		return int(n)
	}
	return v
}

func selectStatement(def core.KindDefinition) string {
	cols := make([]string, 0, len(def.Columns)+1)
	cols = append(cols, "id")
	for _, col := range def.Columns {
		cols = append(cols, quoteIdentifier(col))
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), quoteIdentifier(def.Table))
}

// rewritePlaceholders turns $1 into ?1, which SQLite binds by position.
func rewritePlaceholders(stmt string) string {
	return placeholderRe.ReplaceAllString(stmt, "?$1")
}

func returnsRows(stmt string) bool {
	s := strings.ToUpper(strings.TrimSpace(stmt))
	return strings.HasPrefix(s, "SELECT") || strings.HasPrefix(s, "WITH") || strings.Contains(s, "RETURNING")
}

// splitStatements breaks a schema file into single statements, dropping
// comment lines.
func splitStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
