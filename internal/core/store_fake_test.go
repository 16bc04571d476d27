package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	mu       sync.Mutex
	entities map[EntityKind][]Entity
	execs    []string
	nextID   int

	// failCreate makes Create fail for matching entities.
	failCreate func(kind EntityKind, e Entity) error
	// existing codes reported taken without being stored.
	taken map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities: make(map[EntityKind][]Entity),
		taken:    make(map[string]bool),
	}
}

func (s *fakeStore) Create(ctx context.Context, kind EntityKind, e Entity) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCreate != nil {
		if err := s.failCreate(kind, e); err != nil {
			return Entity{}, err
		}
	}
	def, _ := Lookup(kind)
	if v := e.Fields[def.CodeColumn]; v != nil {
		code := fmt.Sprint(v)
		for _, existing := range s.entities[kind] {
			if fmt.Sprint(existing.Fields[def.CodeColumn]) == code {
				return Entity{}, fmt.Errorf("duplicate key value violates unique constraint %q", def.Table+"_"+def.CodeColumn+"_key")
			}
		}
	}

	s.nextID++
	e.ID = fmt.Sprintf("%s-%d", kind, s.nextID)
	e.Kind = kind
	s.entities[kind] = append(s.entities[kind], e)
	return e, nil
}

func (s *fakeStore) ExistsByCode(ctx context.Context, kind EntityKind, code string) (bool, error) {
	def, _ := Lookup(kind)
	return s.ExistsByField(ctx, kind, def.CodeColumn, code)
}

func (s *fakeStore) ExistsByField(ctx context.Context, kind EntityKind, field, value string) (bool, error) {
	_, found, err := s.FindByField(ctx, kind, field, value)
	return found, err
}

func (s *fakeStore) FindByField(ctx context.Context, kind EntityKind, field, value string) (Entity, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.taken[value] {
		return Entity{ID: "taken", Kind: kind}, true, nil
	}
	for _, e := range s.entities[kind] {
		if v, ok := e.Fields[field]; ok && v != nil && fmt.Sprint(v) == value {
			return e, true, nil
		}
	}
	return Entity{}, false, nil
}

func (s *fakeStore) List(ctx context.Context, kind EntityKind) ([]Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entity(nil), s.entities[kind]...), nil
}

func (s *fakeStore) Execute(ctx context.Context, stmt string, params ...any) (ExecResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, stmt)
	return ExecResult{RowsAffected: 1}, nil
}

func (s *fakeStore) count(kind EntityKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities[kind])
}

var errStoreDown = errors.New("connection refused")
