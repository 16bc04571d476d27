package admin

import (
	"context"
	"strings"
	"testing"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/JonMunkholm/rosterimport/internal/store/memory"
)

func TestResetAll(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	for _, phone := range []string{"08011112222", "08033334444"} {
		_, err := store.Create(ctx, core.KindParent, core.Entity{
			Code:   phone,
			Fields: map[string]any{"first_name": "Ada", "last_name": "Obi", "phone": phone},
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if _, err := store.Execute(ctx, "INSERT INTO user_accounts (username) VALUES ($1)", "08011112222"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	deleted, err := (&Reset{Store: store}).ResetAll(ctx)
	if err != nil {
		t.Fatalf("ResetAll() error = %v", err)
	}
	if deleted["parents"] != 2 || deleted["user_accounts"] != 1 {
		t.Errorf("deleted = %v", deleted)
	}
	if store.Count(core.KindParent) != 0 || len(store.Rows("user_accounts")) != 0 {
		t.Error("rows left after reset")
	}
}

type failingStore struct {
	core.Store
	failOn string
}

func (f failingStore) Execute(ctx context.Context, stmt string, params ...any) (core.ExecResult, error) {
	if strings.HasSuffix(stmt, f.failOn) {
		return core.ExecResult{}, context.DeadlineExceeded
	}
	return core.ExecResult{}, nil
}

func TestResetAll_StopsOnError(t *testing.T) {
	deleted, err := (&Reset{Store: failingStore{failOn: "classes"}}).ResetAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "reset classes") {
		t.Fatalf("ResetAll() error = %v", err)
	}
	if _, ok := deleted["parents"]; ok {
		t.Error("reset continued past the failing table")
	}
	if _, ok := deleted["subjects"]; !ok {
		t.Error("tables before the failure were not reported")
	}
}
