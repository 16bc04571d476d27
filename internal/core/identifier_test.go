package core

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
)

var generatedID = regexp.MustCompile(`^STU/2026/\d{4}$`)

func TestIdentifierGenerator_Generate(t *testing.T) {
	g := NewIdentifierGenerator(WithIdentifierClock(clock), WithIdentifierSeed(1))

	if got := g.Generate(KindStudent); !generatedID.MatchString(got) {
		t.Errorf("Generate(student) = %q, want STU/2026/NNNN", got)
	}
	if got := g.Generate(KindTeacher); !regexp.MustCompile(`^EMP/2026/\d{4}$`).MatchString(got) {
		t.Errorf("Generate(teacher) = %q, want EMP/2026/NNNN", got)
	}
}

func TestIdentifierGenerator_Candidate(t *testing.T) {
	g := NewIdentifierGenerator(WithIdentifierClock(clock))
	ctx := context.Background()
	used := map[string]bool{"GRA/0001": true}
	exists := func(_ context.Context, code string) (bool, error) { return used[code], nil }

	got, err := g.EnsureUnique(ctx, KindStudent, "GRA/0002", exists)
	if err != nil || got != "GRA/0002" {
		t.Errorf("EnsureUnique(free) = %q, %v; want GRA/0002", got, err)
	}

	_, err = g.EnsureUnique(ctx, KindStudent, "GRA/0001", exists)
	if !errors.Is(err, ErrDuplicateIdentifier) {
		t.Errorf("EnsureUnique(taken) error = %v, want ErrDuplicateIdentifier", err)
	}
}

func TestIdentifierGenerator_DistinctUnderCollisions(t *testing.T) {
	const rows = 40
	const rejectFirst = 5

	g := NewIdentifierGenerator(WithIdentifierClock(clock), WithIdentifierSeed(42))
	ctx := context.Background()
	issued := make(map[string]bool)

	for i := 0; i < rows; i++ {
		calls := 0
		exists := func(_ context.Context, code string) (bool, error) {
			calls++
			if calls <= rejectFirst {
				return true, nil
			}
			return issued[code], nil
		}

		code, err := g.EnsureUnique(ctx, KindStudent, "", exists)
		if err != nil {
			t.Fatalf("row %d: EnsureUnique() error = %v", i, err)
		}
		if issued[code] {
			t.Fatalf("row %d: identifier %q issued twice", i, code)
		}
		if calls <= rejectFirst {
			t.Fatalf("row %d: accepted after %d checks, want more than %d", i, calls, rejectFirst)
		}
		issued[code] = true
	}
}

func TestIdentifierGenerator_Fallback(t *testing.T) {
	g := NewIdentifierGenerator(WithIdentifierClock(clock), WithMaxAttempts(3))
	calls := 0
	exists := func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	}

	code, err := g.EnsureUnique(context.Background(), KindTeacher, "", exists)
	if err != nil {
		t.Fatalf("EnsureUnique() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("exists called %d times, want 3", calls)
	}
	if !regexp.MustCompile(`^EMP/2026/T\d{6}$`).MatchString(code) {
		t.Errorf("fallback = %q, want EMP/2026/Tnnnnnn", code)
	}
}

func TestIdentifierGenerator_ExistsError(t *testing.T) {
	g := NewIdentifierGenerator()
	exists := func(context.Context, string) (bool, error) { return false, errStoreDown }

	for _, candidate := range []string{"", "GRA/0001"} {
		if _, err := g.EnsureUnique(context.Background(), KindStudent, candidate, exists); !errors.Is(err, errStoreDown) {
			t.Errorf("EnsureUnique(%q) error = %v, want wrapped store error", candidate, err)
		}
	}
}

func TestIdentifierGenerator_ConcurrentGenerate(t *testing.T) {
	g := NewIdentifierGenerator(WithIdentifierClock(clock))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if code := g.Generate(KindStudent); !generatedID.MatchString(code) {
					t.Errorf("Generate() = %q", code)
				}
			}
		}()
	}
	wg.Wait()
}
