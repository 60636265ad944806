package db

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationFS_Paired(t *testing.T) {
	entries, err := fs.ReadDir(MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %q", name)
		}
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for v := range ups {
		if !downs[v] {
			t.Errorf("migration %s has no down file", v)
		}
	}
}

func TestMigrationFS_ActiveDeviceIndex(t *testing.T) {
	b, err := fs.ReadFile(MigrationFS, "migrations/000002_customer_sessions.up.sql")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	sql := string(b)
	if !strings.Contains(sql, "(customer_id, device_id) WHERE revoked_at IS NULL") {
		t.Error("customer_sessions needs the partial unique index the upsert conflicts on")
	}
}
