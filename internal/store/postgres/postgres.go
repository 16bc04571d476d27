// Package postgres is the PostgreSQL implementation of core.Store.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PoolConfig holds the connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MinConns = int32(cfg.MinConns)
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store implements core.Store on PostgreSQL.
type Store struct {
	db DBTX
}

var _ core.Store = (*Store)(nil)

func New(db DBTX) *Store {
	return &Store{db: db}
}

// Migrate creates the roster tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity when the underlying handle supports it.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.db.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, kind core.EntityKind, e core.Entity) (core.Entity, error) {
	def, err := core.Definition(kind)
	if err != nil {
		return core.Entity{}, err
	}

	cols, err := insertColumns(def, e.Fields)
	if err != nil {
		return core.Entity{}, err
	}
	args := make([]any, len(cols))
	for i, col := range cols {
		if args[i], err = pgValue(col, e.Fields[col]); err != nil {
			return core.Entity{}, err
		}
	}

	var id string
	if err := s.db.QueryRow(ctx, insertStatement(def, cols), args...).Scan(&id); err != nil {
		return core.Entity{}, fmt.Errorf("insert %s: %w", def.Table, err)
	}

	e.ID = id
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

	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)",
		quoteIdentifier(def.Table), whereColumn(field))

	var exists bool
	if err := s.db.QueryRow(ctx, query, value).Scan(&exists); err != nil {
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

	query := selectStatement(def) + " WHERE " + whereColumn(field) + " = $1 LIMIT 1"
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
	return s.query(ctx, def, selectStatement(def)+" ORDER BY created_at, id")
}

// Execute runs stmt and collects any returned rows.
func (s *Store) Execute(ctx context.Context, stmt string, params ...any) (core.ExecResult, error) {
	rows, err := s.db.Query(ctx, stmt, params...)
	if err != nil {
		return core.ExecResult{}, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return core.ExecResult{}, err
	}
	for _, m := range maps {
		for k, v := range m {
			m[k] = fromPg(v)
		}
	}
	return core.ExecResult{Rows: maps, RowsAffected: rows.CommandTag().RowsAffected()}, nil
}

func (s *Store) query(ctx context.Context, def core.KindDefinition, query string, args ...any) ([]core.Entity, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", def.Table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", def.Table, err)
	}

	out := make([]core.Entity, 0, len(maps))
	for _, m := range maps {
		out = append(out, toEntity(def, m))
	}
	return out, nil
}

func toEntity(def core.KindDefinition, m map[string]any) core.Entity {
	e := core.Entity{Kind: def.Kind, Fields: make(map[string]any, len(m))}
	for k, v := range m {
		v = fromPg(v)
		if k == "id" {
			e.ID, _ = v.(string)
			continue
		}
		e.Fields[k] = v
	}
	e.Code = e.Text(def.CodeColumn)
	return e
}

// insertColumns returns the persisted columns present in fields, in
// definition order. Unknown keys are rejected.
func insertColumns(def core.KindDefinition, fields map[string]any) ([]string, error) {
	for col := range fields {
		if col == "id" || !def.HasColumn(col) {
			return nil, fmt.Errorf("unknown column %q for %s", col, def.Table)
		}
	}
	cols := make([]string, 0, len(fields))
	for _, col := range def.Columns {
		if _, ok := fields[col]; ok {
			cols = append(cols, col)
		}
	}
	return cols, nil
}

func insertStatement(def core.KindDefinition, cols []string) string {
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id::text",
		quoteIdentifier(def.Table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}

func selectStatement(def core.KindDefinition) string {
	cols := make([]string, 0, len(def.Columns)+1)
	cols = append(cols, "id::text AS id")
	for _, col := range def.Columns {
		q := quoteIdentifier(col)
		if refColumns[col] {
			cols = append(cols, q+"::text AS "+q)
			continue
		}
		cols = append(cols, q)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), quoteIdentifier(def.Table))
}

// whereColumn compares UUID columns as text so callers can pass strings.
func whereColumn(col string) string {
	if col == "id" || refColumns[col] {
		return quoteIdentifier(col) + "::text"
	}
	return quoteIdentifier(col)
}

// quoteIdentifier quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
