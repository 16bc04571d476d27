// Package admin provides administrative operations for store management.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/rosterimport/internal/core"
)

// ResetTimeout is the maximum duration for reset operations.
const ResetTimeout = 30 * time.Second

// resetOrder lists tables children first so foreign keys never block a delete.
var resetOrder = []string{
	"user_accounts",
	"import_runs",
	"students",
	"subjects",
	"classes",
	"parents",
	"teachers",
}

// Reset deletes every roster row, provisioned account and run summary.
// This is a destructive operation - use with caution.
type Reset struct {
	Store core.Store
	Log   *slog.Logger
}

// ResetAll empties all tables and reports how many rows each one lost.
func (r *Reset) ResetAll(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	deleted := make(map[string]int64, len(resetOrder))
	for _, table := range resetOrder {
		res, err := r.Store.Execute(ctx, "DELETE FROM "+table)
		if err != nil {
			return deleted, fmt.Errorf("reset %s: %w", table, err)
		}
		deleted[table] = res.RowsAffected
		log.Info("table reset", "table", table, "rows", res.RowsAffected)
	}
	return deleted, nil
}

// Tables returns the tables ResetAll clears, in order.
func Tables() []string {
	return append([]string(nil), resetOrder...)
}
