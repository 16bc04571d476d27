package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

// PlaceholderEmailDomain is used for parents created without an email.
const PlaceholderEmailDomain = "parents.invalid"

// ParentResolution is the outcome of ResolveParent. An empty ID means the
// reference could not be resolved.
type ParentResolution struct {
	ID      string
	Created bool
	Entity  Entity
}

// Resolver turns descriptive references (a parent's name and phone, a class
// name, a teacher email) into entity ids. Its caches live for one import run;
// create a new Resolver for every run.
type Resolver struct {
	store Store
	log   *slog.Logger

	parents  map[string]string
	classes  map[string]string
	teachers map[string]string
}

func NewResolver(store Store, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:    store,
		log:      log,
		parents:  make(map[string]string),
		classes:  make(map[string]string),
		teachers: make(map[string]string),
	}
}

// ResolveParent finds the parent with ref's phone, creating one if none
// exists and ref carries a name. Two rows citing the same phone in one run
// resolve to the same parent.
func (r *Resolver) ResolveParent(ctx context.Context, ref ParentRef) (ParentResolution, error) {
	phone := NormalizePhone(ref.Phone)
	if phone == "" {
		return ParentResolution{}, nil
	}
	if id, ok := r.parents[phone]; ok {
		return ParentResolution{ID: id}, nil
	}

	existing, found, err := r.store.FindByField(ctx, KindParent, "phone", phone)
	if err != nil {
		return ParentResolution{}, fmt.Errorf("find parent by phone: %w", err)
	}
	if found {
		r.parents[phone] = existing.ID
		return ParentResolution{ID: existing.ID}, nil
	}

	first, last := SplitName(ref.Name)
	if first == "" {
		return ParentResolution{}, nil
	}

	email := strings.ToLower(strings.TrimSpace(ref.Email))
	if email == "" {
		email = PlaceholderEmail(first, last)
	}

	created, err := r.store.Create(ctx, KindParent, parentEntity(ParentRecord{
		FirstName:    first,
		LastName:     last,
		Phone:        phone,
		Email:        email,
		Relationship: ref.Relationship,
		Status:       "Active",
	}))
	if err != nil {
		return ParentResolution{}, fmt.Errorf("create parent %q: %w", ref.Name, err)
	}

	r.parents[phone] = created.ID
	r.log.Debug("parent created on demand", "parent_id", created.ID, "phone", phone)
	return ParentResolution{ID: created.ID, Created: true, Entity: created}, nil
}

// ResolveClass looks up a class by name. It never creates one.
func (r *Resolver) ResolveClass(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	// Keyed by the exact name: stores match class names case-sensitively.
	if id, ok := r.classes[name]; ok {
		return id, nil
	}

	class, found, err := r.store.FindByField(ctx, KindClass, "name", name)
	if err != nil {
		return "", fmt.Errorf("find class %q: %w", name, err)
	}
	if !found {
		return "", nil
	}
	r.classes[name] = class.ID
	return class.ID, nil
}

// ResolveTeacher looks up a teacher by email. It never creates one.
func (r *Resolver) ResolveTeacher(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil
	}
	if id, ok := r.teachers[email]; ok {
		return id, nil
	}

	teacher, found, err := r.store.FindByField(ctx, KindTeacher, "email", email)
	if err != nil {
		return "", fmt.Errorf("find teacher %q: %w", email, err)
	}
	if !found {
		return "", nil
	}
	r.teachers[email] = teacher.ID
	return teacher.ID, nil
}

// SplitName splits at the first whitespace; a single token has no last name.
func SplitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	i := strings.IndexFunc(name, unicode.IsSpace)
	if i < 0 {
		return name, ""
	}
	return name[:i], strings.TrimSpace(name[i:])
}

// PlaceholderEmail builds first.last@parents.invalid from a name.
func PlaceholderEmail(first, last string) string {
	local := canonicalKey(first)
	if l := canonicalKey(last); l != "" {
		local += "." + l
	}
	if local == "" {
		local = "parent"
	}
	return local + "@" + PlaceholderEmailDomain
}
