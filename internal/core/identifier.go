package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// DefaultMaxIdentifierAttempts bounds generate-and-check rounds per row.
const DefaultMaxIdentifierAttempts = 100

// ExistsFunc reports whether code is already used.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

var identifierPrefixes = map[EntityKind]string{
	KindStudent: "STU",
	KindTeacher: "EMP",
}

// IdentifierPrefix returns the prefix used for generated identifiers of kind.
func IdentifierPrefix(kind EntityKind) string {
	if p, ok := identifierPrefixes[kind]; ok {
		return p
	}
	p := strings.ToUpper(string(kind))
	if len(p) > 3 {
		p = p[:3]
	}
	return p
}

// IdentifierGenerator issues human-readable identifiers such as STU/2026/0042.
// It is safe for concurrent use.
type IdentifierGenerator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	now         func() time.Time
	maxAttempts int
	log         *slog.Logger
}

// IdentifierOption configures NewIdentifierGenerator.
type IdentifierOption func(*IdentifierGenerator)

// WithIdentifierClock sets the clock that supplies the year segment.
func WithIdentifierClock(now func() time.Time) IdentifierOption {
	return func(g *IdentifierGenerator) {
		g.now = now
	}
}

// WithIdentifierSeed makes the random suffix sequence reproducible.
func WithIdentifierSeed(seed int64) IdentifierOption {
	return func(g *IdentifierGenerator) {
		g.rng = rand.New(rand.NewSource(seed))
	}
}

// WithMaxAttempts overrides DefaultMaxIdentifierAttempts.
func WithMaxAttempts(n int) IdentifierOption {
	return func(g *IdentifierGenerator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithIdentifierLogger sets the logger used for fallback warnings.
func WithIdentifierLogger(log *slog.Logger) IdentifierOption {
	return func(g *IdentifierGenerator) {
		g.log = log
	}
}

func NewIdentifierGenerator(opts ...IdentifierOption) *IdentifierGenerator {
	g := &IdentifierGenerator{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
		maxAttempts: DefaultMaxIdentifierAttempts,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a fresh candidate <PREFIX>/<YEAR>/<NNNN>. Uniqueness is
// not checked; see EnsureUnique.
func (g *IdentifierGenerator) Generate(kind EntityKind) string {
	g.mu.Lock()
	suffix := g.rng.Intn(10000)
	g.mu.Unlock()
	return fmt.Sprintf("%s/%d/%04d", IdentifierPrefix(kind), g.now().Year(), suffix)
}

// EnsureUnique returns an identifier that exists reports as unused.
//
// A non-empty candidate is checked once: if taken, the result wraps
// ErrDuplicateIdentifier. An empty candidate is generated and checked up to
// the configured number of attempts, after which a timestamp-based fallback
// is returned without a check.
func (g *IdentifierGenerator) EnsureUnique(ctx context.Context, kind EntityKind, candidate string, exists ExistsFunc) (string, error) {
	if candidate = strings.TrimSpace(candidate); candidate != "" {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check identifier %q: %w", candidate, err)
		}
		if taken {
			return "", fmt.Errorf("%w: %q", ErrDuplicateIdentifier, candidate)
		}
		return candidate, nil
	}

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code := g.Generate(kind)
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check identifier %q: %w", code, err)
		}
		if !taken {
			return code, nil
		}
	}

	code := g.fallback(kind)
	recordIdentifierFallback(kind)
	g.log.Warn("identifier attempts exhausted, using timestamp fallback",
		"kind", kind,
		"attempts", g.maxAttempts,
		"identifier", code,
	)
	return code, nil
}

// fallback builds <PREFIX>/<YEAR>/T<last 6 digits of the nanosecond clock>.
func (g *IdentifierGenerator) fallback(kind EntityKind) string {
	now := g.now()
	nanos := fmt.Sprintf("%06d", now.UnixNano())
	return fmt.Sprintf("%s/%d/T%s", IdentifierPrefix(kind), now.Year(), nanos[len(nanos)-6:])
}
