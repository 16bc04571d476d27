package core

import (
	"context"
	"errors"
	"testing"
)

func TestResolver_ParentReusedWithinRun(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store, nil)
	ctx := context.Background()
	ref := ParentRef{Name: "Jane Smith", Phone: "08011112222"}

	first, err := r.ResolveParent(ctx, ref)
	if err != nil {
		t.Fatalf("first ResolveParent() error = %v", err)
	}
	if !first.Created || first.ID == "" {
		t.Fatalf("first resolution = %+v, want a created parent", first)
	}

	second, err := r.ResolveParent(ctx, ParentRef{Name: "Jane Smith", Phone: "0801 111 2222"})
	if err != nil {
		t.Fatalf("second ResolveParent() error = %v", err)
	}
	if second.Created || second.ID != first.ID {
		t.Errorf("second resolution = %+v, want reuse of %s", second, first.ID)
	}
	if n := store.count(KindParent); n != 1 {
		t.Errorf("store holds %d parents, want 1", n)
	}

	parent := first.Entity
	if parent.Text("first_name") != "Jane" || parent.Text("last_name") != "Smith" {
		t.Errorf("parent name = %q %q", parent.Text("first_name"), parent.Text("last_name"))
	}
	if got := parent.Text("email"); got != "jane.smith@parents.invalid" {
		t.Errorf("placeholder email = %q", got)
	}
}

func TestResolver_ParentFoundInStore(t *testing.T) {
	store := newFakeStore()
	existing, _ := store.Create(context.Background(), KindParent, parentEntity(ParentRecord{
		FirstName: "Jane", LastName: "Smith", Phone: "08011112222", Status: "Active",
	}))

	res, err := NewResolver(store, nil).ResolveParent(context.Background(), ParentRef{Phone: "08011112222"})
	if err != nil {
		t.Fatalf("ResolveParent() error = %v", err)
	}
	if res.ID != existing.ID || res.Created {
		t.Errorf("resolution = %+v, want existing %s", res, existing.ID)
	}
}

func TestResolver_ParentUnresolved(t *testing.T) {
	tests := []struct {
		name string
		ref  ParentRef
	}{
		{"no phone", ParentRef{Name: "Jane Smith"}},
		{"no name and unknown phone", ParentRef{Phone: "08011112222"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			res, err := NewResolver(store, nil).ResolveParent(context.Background(), tt.ref)
			if err != nil {
				t.Fatalf("ResolveParent() error = %v", err)
			}
			if res.ID != "" || store.count(KindParent) != 0 {
				t.Errorf("resolution = %+v, want unresolved without creation", res)
			}
		})
	}
}

func TestResolver_ParentCreateFails(t *testing.T) {
	store := newFakeStore()
	store.failCreate = func(EntityKind, Entity) error { return errStoreDown }

	_, err := NewResolver(store, nil).ResolveParent(context.Background(), ParentRef{Name: "Jane", Phone: "08011112222"})
	if !errors.Is(err, errStoreDown) {
		t.Errorf("ResolveParent() error = %v, want store error", err)
	}
}

func TestResolver_LookupOnly(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	class, _ := store.Create(ctx, KindClass, classEntity(ClassRecord{Name: "JSS1A", Level: "JSS"}, references{}))
	teacher, _ := store.Create(ctx, KindTeacher, teacherEntity(TeacherRecord{Email: "tunde@example.com"}, references{code: "EMP/2026/0001"}))

	r := NewResolver(store, nil)
	if id, err := r.ResolveClass(ctx, " JSS1A "); err != nil || id != class.ID {
		t.Errorf("ResolveClass() = %q, %v; want %s", id, err, class.ID)
	}
	if id, err := r.ResolveTeacher(ctx, "Tunde@Example.com"); err != nil || id != teacher.ID {
		t.Errorf("ResolveTeacher() = %q, %v; want %s", id, err, teacher.ID)
	}
	if id, err := r.ResolveClass(ctx, "SSS3C"); err != nil || id != "" {
		t.Errorf("ResolveClass(missing) = %q, %v; want empty", id, err)
	}
	if n := store.count(KindClass); n != 1 {
		t.Errorf("lookup created classes: %d", n)
	}
}

func TestResolver_ClassLookupIgnoresRowOrder(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		order []string
	}{
		{"exact first", []string{"JSS1A", "jss1a"}},
		{"other case first", []string{"jss1a", "JSS1A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			class, _ := store.Create(ctx, KindClass, classEntity(ClassRecord{Name: "JSS1A", Level: "JSS"}, references{}))
			r := NewResolver(store, nil)

			got := map[string]string{}
			for _, name := range tt.order {
				id, err := r.ResolveClass(ctx, name)
				if err != nil {
					t.Fatalf("ResolveClass(%q) error = %v", name, err)
				}
				got[name] = id
			}
			if got["JSS1A"] != class.ID || got["jss1a"] != "" {
				t.Errorf("resolved = %v, want only JSS1A -> %s", got, class.ID)
			}
		})
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Jane Smith", "Jane", "Smith"},
		{"  Mary Ann  Lee ", "Mary", "Ann  Lee"},
		{"Cher", "Cher", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		if first != tt.first || last != tt.last {
			t.Errorf("SplitName(%q) = %q, %q; want %q, %q", tt.in, first, last, tt.first, tt.last)
		}
	}
}
