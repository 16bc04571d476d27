// Package memory is an in-process core.Store used by tests, dry runs and
// STORE_DRIVER=memory deployments.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/google/uuid"
)

// insertRe matches the single-row INSERT statements issued through Execute.
var insertRe = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+(\w+)\s*\(([^)]*)\)\s*VALUES\s*\(([^)]*)\)\s*;?\s*$`)

// deleteRe matches an unconditional DELETE of a whole table.
var deleteRe = regexp.MustCompile(`(?is)^\s*DELETE\s+FROM\s+(\w+)\s*;?\s*$`)

var placeholderRe = regexp.MustCompile(`^\$(\d+)$`)

// Store keeps entities and raw table rows in maps.
type Store struct {
	mu       sync.RWMutex
	entities map[core.EntityKind][]core.Entity
	tables   map[string][]map[string]any
	unique   map[string][]string
}

var _ core.Store = (*Store)(nil)

// Option configures New.
type Option func(*Store)

// WithUniqueColumn enforces uniqueness of column in a table written through
// Execute.
func WithUniqueColumn(table, column string) Option {
	return func(s *Store) {
		s.unique[table] = append(s.unique[table], column)
	}
}

// New returns an empty store. user_accounts.username is unique by default.
func New(opts ...Option) *Store {
	s := &Store{
		entities: make(map[core.EntityKind][]core.Entity),
		tables:   make(map[string][]map[string]any),
		unique:   map[string][]string{"user_accounts": {"username"}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate is a no-op so the memory store can stand in for the SQL ones.
func (s *Store) Migrate(context.Context) error { return nil }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Create(ctx context.Context, kind core.EntityKind, e core.Entity) (core.Entity, error) {
	if err := ctx.Err(); err != nil {
		return core.Entity{}, err
	}
	def, err := core.Definition(kind)
	if err != nil {
		return core.Entity{}, err
	}
	for col := range e.Fields {
		if col == "id" || !def.HasColumn(col) {
			return core.Entity{}, fmt.Errorf("unknown column %q for %s", col, def.Table)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, col := range uniqueColumns(def) {
		v := e.Fields[col]
		if v == nil {
			continue
		}
		for _, existing := range s.entities[kind] {
			if sameValue(existing.Fields[col], v) {
				return core.Entity{}, fmt.Errorf("insert %s: duplicate key value violates unique constraint %q",
					def.Table, def.Table+"_"+col+"_key")
			}
		}
	}

	stored := core.Entity{ID: uuid.NewString(), Kind: kind, Code: e.Code, Fields: make(map[string]any, len(e.Fields))}
	for k, v := range e.Fields {
		stored.Fields[k] = v
	}
	if stored.Code == "" {
		stored.Code = stored.Text(def.CodeColumn)
	}
	s.entities[kind] = append(s.entities[kind], stored)
	return copyEntity(stored), nil
}

func (s *Store) ExistsByCode(ctx context.Context, kind core.EntityKind, code string) (bool, error) {
	def, err := core.Definition(kind)
	if err != nil {
		return false, err
	}
	return s.ExistsByField(ctx, kind, def.CodeColumn, code)
}

func (s *Store) ExistsByField(ctx context.Context, kind core.EntityKind, field, value string) (bool, error) {
	_, found, err := s.FindByField(ctx, kind, field, value)
	return found, err
}

func (s *Store) FindByField(ctx context.Context, kind core.EntityKind, field, value string) (core.Entity, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Entity{}, false, err
	}
	def, err := core.Definition(kind)
	if err != nil {
		return core.Entity{}, false, err
	}
	if !def.HasColumn(field) {
		return core.Entity{}, false, fmt.Errorf("unknown column %q for %s", field, def.Table)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entities[kind] {
		v := e.Fields[field]
		if field == "id" {
			v = e.ID
		}
		if v != nil && fmt.Sprint(v) == value {
			return copyEntity(e), true, nil
		}
	}
	return core.Entity{}, false, nil
}

func (s *Store) List(ctx context.Context, kind core.EntityKind) ([]core.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Entity, 0, len(s.entities[kind]))
	for _, e := range s.entities[kind] {
		out = append(out, copyEntity(e))
	}
	return out, nil
}

// Execute supports single-row INSERT statements with $n placeholders and
// unconditional DELETE FROM. Anything else is an error.
func (s *Store) Execute(ctx context.Context, stmt string, params ...any) (core.ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return core.ExecResult{}, err
	}

	if m := deleteRe.FindStringSubmatch(stmt); m != nil {
		return s.deleteAll(strings.ToLower(m[1])), nil
	}

	m := insertRe.FindStringSubmatch(stmt)
	if m == nil {
		return core.ExecResult{}, fmt.Errorf("memory store: unsupported statement: %.40s", strings.TrimSpace(stmt))
	}
	table := strings.ToLower(m[1])
	cols := splitList(m[2])
	vals := splitList(m[3])
	if len(cols) != len(vals) {
		return core.ExecResult{}, fmt.Errorf("memory store: %d columns but %d values", len(cols), len(vals))
	}

	row := make(map[string]any, len(cols))
	for i, col := range cols {
		pm := placeholderRe.FindStringSubmatch(vals[i])
		if pm == nil {
			return core.ExecResult{}, fmt.Errorf("memory store: value %q is not a placeholder", vals[i])
		}
		idx, _ := strconv.Atoi(pm[1])
		if idx < 1 || idx > len(params) {
			return core.ExecResult{}, fmt.Errorf("memory store: placeholder $%d out of range", idx)
		}
		row[strings.ToLower(col)] = params[idx-1]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, col := range s.unique[table] {
		for _, existing := range s.tables[table] {
			if sameValue(existing[col], row[col]) {
				return core.ExecResult{}, fmt.Errorf("duplicate key value violates unique constraint %q", table+"_"+col+"_key")
			}
		}
	}
	s.tables[table] = append(s.tables[table], row)
	return core.ExecResult{RowsAffected: 1}, nil
}

func (s *Store) deleteAll(table string) core.ExecResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.tables[table])
	delete(s.tables, table)
	for _, def := range core.All() {
		if def.Table == table {
			n += len(s.entities[def.Kind])
			delete(s.entities, def.Kind)
		}
	}
	return core.ExecResult{RowsAffected: int64(n)}
}

// Rows returns a copy of the rows written to table through Execute.
func (s *Store) Rows(table string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]map[string]any, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		cp := make(map[string]any, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// Count returns the number of stored entities of kind.
func (s *Store) Count(kind core.EntityKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities[kind])
}

// uniqueColumns mirrors the UNIQUE constraints of the SQL schema.
func uniqueColumns(def core.KindDefinition) []string {
	if def.Kind == core.KindTeacher {
		return []string{def.CodeColumn, "email"}
	}
	return []string{def.CodeColumn}
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func copyEntity(e core.Entity) core.Entity {
	fields := make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	e.Fields = fields
	return e
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
