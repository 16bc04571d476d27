// Package accounts provisions login accounts for imported people. It plugs
// into the import pipeline as a core.EffectFactory, so accounts are created
// on the throttled effect queue after each row is saved.
package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Role is the access role given to a provisioned account.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
)

// DefaultPassword is used when no initial password is configured.
const DefaultPassword = "ChangeMe@2026"

// Account is one login to create.
type Account struct {
	EntityKind core.EntityKind
	EntityID   string
	Username   string
	Role       Role
}

const insertAccount = `INSERT INTO user_accounts (id, entity_kind, entity_id, username, role, password_hash, must_change_password)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Provisioner writes accounts through core.Store.Execute.
type Provisioner struct {
	store    core.Store
	password string
	cost     int
	log      *slog.Logger
}

var _ core.EffectFactory = (*Provisioner)(nil)

// Option configures NewProvisioner.
type Option func(*Provisioner)

// WithPassword sets the initial password. Users must change it on first login.
func WithPassword(password string) Option {
	return func(p *Provisioner) {
		if password != "" {
			p.password = password
		}
	}
}

// WithCost sets the bcrypt cost.
func WithCost(cost int) Option {
	return func(p *Provisioner) {
		p.cost = cost
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(p *Provisioner) {
		p.log = log
	}
}

func NewProvisioner(store core.Store, opts ...Option) *Provisioner {
	p := &Provisioner{
		store:    store,
		password: DefaultPassword,
		cost:     bcrypt.DefaultCost,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision hashes the initial password and inserts the account.
func (p *Provisioner) Provision(ctx context.Context, a Account) error {
	if a.Username == "" {
		return fmt.Errorf("provision %s account: username required", a.Role)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.password), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = p.store.Execute(ctx, insertAccount,
		uuid.NewString(), string(a.EntityKind), a.EntityID, a.Username, string(a.Role), string(hash), true)
	if err != nil {
		return fmt.Errorf("provision %s account %q: %w", a.Role, a.Username, err)
	}

	p.log.Debug("account provisioned", "role", a.Role, "username", a.Username, "entity_id", a.EntityID)
	return nil
}

// AccountFor derives the account of an entity. Classes and subjects have none.
func AccountFor(e core.Entity) (Account, bool) {
	a := Account{EntityKind: e.Kind, EntityID: e.ID}
	switch e.Kind {
	case core.KindStudent:
		a.Role, a.Username = RoleStudent, e.Code
	case core.KindTeacher:
		a.Role, a.Username = RoleTeacher, strings.ToLower(e.Text("email"))
	case core.KindParent:
		a.Role, a.Username = RoleParent, e.Text("phone")
	default:
		return Account{}, false
	}
	if a.Username == "" || a.EntityID == "" {
		return Account{}, false
	}
	return a, true
}

// EffectsFor implements core.EffectFactory.
func (p *Provisioner) EffectsFor(e core.Entity) []core.NamedEffect {
	a, ok := AccountFor(e)
	if !ok {
		return nil
	}
	return []core.NamedEffect{{
		Name: fmt.Sprintf("%s account %s", a.Role, a.Username),
		Job: func(ctx context.Context) error {
			return p.Provision(ctx, a)
		},
	}}
}

// CheckPassword reports whether password matches a stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
