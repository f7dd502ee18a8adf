package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"migrations/0001_widgets.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY, name TEXT)"),
		},
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := ApplyMigrations(ctx, db, fsys, "migrations"); err != nil {
			t.Fatalf("apply migrations (round %d): %v", i+1, err)
		}
	}

	if _, err := db.Exec("INSERT INTO widgets (id, name) VALUES ('a', 'b')"); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(1) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("recorded migrations = %d, want 1", count)
	}
}

func TestParseTimeRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	parsed := ParseTime(sql.NullString{String: FormatTime(now), Valid: true})
	if parsed == nil || !parsed.Equal(now) {
		t.Fatalf("round trip: got %v, want %v", parsed, now)
	}
	if ParseTime(sql.NullString{}) != nil {
		t.Fatal("null should parse to nil")
	}
	if ParseTime(sql.NullString{String: "garbage", Valid: true}) != nil {
		t.Fatal("unparseable should yield nil")
	}
}

func TestNullableHelpers(t *testing.T) {
	if NullableString("  ") != nil {
		t.Fatal("blank string should map to NULL")
	}
	if NullableString("x") != "x" {
		t.Fatal("non-empty string should pass through")
	}
	if NullableTime(nil) != nil {
		t.Fatal("nil time should map to NULL")
	}
	if BoolToInt(true) != 1 || BoolToInt(false) != 0 {
		t.Fatal("bool mapping wrong")
	}
}
