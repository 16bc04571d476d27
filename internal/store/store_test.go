package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/rosterimport/internal/config"
	"github.com/JonMunkholm/rosterimport/internal/core"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		wantErr bool
	}{
		{"memory", config.DatabaseConfig{Driver: "memory", AutoMigrate: true}, false},
		{"sqlite", config.DatabaseConfig{Driver: "SQLite", SQLitePath: filepath.Join(t.TempDir(), "r.db"), AutoMigrate: true}, false},
		{"unknown", config.DatabaseConfig{Driver: "mongo"}, true},
		{"bad postgres url", config.DatabaseConfig{Driver: "postgres", URL: "::not a url::"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Open(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer b.Close()

			if err := b.Ping(context.Background()); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
			if _, err := b.Create(context.Background(), core.KindParent, core.Entity{Fields: map[string]any{
				"first_name": "Jane", "last_name": "Smith", "phone": "08011112222", "status": "Active",
			}}); err != nil {
				t.Errorf("Create() error = %v", err)
			}
		})
	}
}
