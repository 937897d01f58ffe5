package database

import (
	"context"
	"embed"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"
)

//go:embed testdata/*.sql
var testdataFS embed.FS

func testMigrations(t *testing.T) fs.FS {
	t.Helper()
	sub, err := fs.Sub(testdataFS, "testdata")
	if err != nil {
		t.Fatalf("fs.Sub() error = %v", err)
	}
	return sub
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := db.Migrate(ctx, testMigrations(t))
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Migrate() applied %d, want 2", n)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO widgets (name, colour) VALUES (?, ?)", "a", "red"); err != nil {
		t.Errorf("schema not applied: %v", err)
	}

	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations() error = %v", err)
	}
	if len(applied) != 2 || applied[0].Version != "20260101_000000" || applied[1].Version != "20260102_000000" {
		t.Errorf("AppliedMigrations() = %+v", applied)
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}

	// Idempotent.
	n, err = db.Migrate(ctx, testMigrations(t))
	if err != nil || n != 0 {
		t.Errorf("second Migrate() = %d, %v; want 0, nil", n, err)
	}
}

func TestMigrate_StopsAtFailure(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE broken (;")},
		"20260103_000000_later.up.sql":  {Data: []byte("CREATE TABLE later (id INTEGER);")},
	}

	n, err := db.Migrate(ctx, fsys)
	if err == nil {
		t.Fatal("Migrate() expected error")
	}
	if n != 1 {
		t.Errorf("Migrate() applied %d before failure, want 1", n)
	}

	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations() error = %v", err)
	}
	if len(applied) != 1 || applied[0].Version != "20260101_000000" {
		t.Errorf("AppliedMigrations() = %+v, want only the first", applied)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='later'",
	).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("migration after the failure was applied")
	}
}

func TestLoadMigrations_IgnoresOtherFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"20260102_000000_b.up.sql":     {Data: []byte("B")},
		"20260101_000000_a.up.sql":     {Data: []byte("A")},
		"20260101_000000_a.down.sql":   {Data: []byte("DROP")},
		"README.md":                    {Data: []byte("docs")},
		"nounderscore.up.sql":          {Data: []byte("X")},
		"sub/20260103_000000_c.up.sql": {Data: []byte("C")},
	}

	got, err := LoadMigrations(fsys)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadMigrations() = %+v, want 2 entries", got)
	}
	if got[0].Name != "a" || got[0].SQL != "A" || got[1].Name != "b" {
		t.Errorf("LoadMigrations() = %+v", got)
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		file        string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20261001_120000_session_events.up.sql", "20261001_120000", "session_events", true},
		{"20261001_120000.up.sql", "20261001_120000", "20261001_120000", true},
		{"20261001_120000_x.down.sql", "", "", false},
		{"20261001.up.sql", "", "", false},
		{"schema.sql", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			v, n, ok := parseMigrationName(tt.file)
			if v != tt.wantVersion || n != tt.wantName || ok != tt.wantOK {
				t.Errorf("parseMigrationName() = %q, %q, %v; want %q, %q, %v",
					v, n, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}
