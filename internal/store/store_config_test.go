package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inkboard/internal/models"
)

func TestPoolSettingsFromEnv(t *testing.T) {
	intCases := []struct {
		raw  string
		want int
	}{
		{"", defaultMaxOpenConns},
		{"4", 4},
		{" 2 ", 2},
		{"bad", defaultMaxOpenConns},
		{"0", defaultMaxOpenConns},
		{"-3", defaultMaxOpenConns},
	}
	for _, tc := range intCases {
		t.Setenv(maxOpenConnsEnvKey, tc.raw)
		if got := intFromEnv(maxOpenConnsEnvKey, defaultMaxOpenConns); got != tc.want {
			t.Fatalf("%s=%q: expected %d, got %d", maxOpenConnsEnvKey, tc.raw, tc.want, got)
		}
	}

	durationCases := []struct {
		raw  string
		want time.Duration
	}{
		{"", defaultConnMaxLifetime},
		{"45s", 45 * time.Second},
		{"90", 90 * time.Second},
		{"0", defaultConnMaxLifetime},
		{"-1m", defaultConnMaxLifetime},
		{"soon", defaultConnMaxLifetime},
	}
	for _, tc := range durationCases {
		t.Setenv(connMaxLifetimeEnvKey, tc.raw)
		if got := durationFromEnv(connMaxLifetimeEnvKey, defaultConnMaxLifetime); got != tc.want {
			t.Fatalf("%s=%q: expected %v, got %v", connMaxLifetimeEnvKey, tc.raw, tc.want, got)
		}
	}
}

func TestSQLiteDSN(t *testing.T) {
	if _, err := sqliteDSN(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	dsn, err := sqliteDSN("/tmp/ink board.db")
	if err != nil {
		t.Fatalf("sqliteDSN: %v", err)
	}
	if !strings.HasPrefix(dsn, "file://") || strings.Contains(dsn, " ") {
		t.Fatalf("expected escaped file URL, got %q", dsn)
	}
	if !strings.Contains(dsn, "_pragma=foreign_keys(1)") || !strings.Contains(dsn, "_pragma=busy_timeout(") {
		t.Fatalf("expected per-connection pragmas in %q", dsn)
	}
}

func TestOpenRawAppliesPragmas(t *testing.T) {
	db, err := OpenRaw(filepath.Join(t.TempDir(), "pragmas.db"))
	if err != nil {
		t.Fatalf("OpenRaw: %v", err)
	}
	defer db.Close()

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Fatalf("expected foreign keys on, got %d", foreignKeys)
	}

	var journal string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journal); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if !strings.EqualFold(journal, "wal") {
		t.Fatalf("expected WAL journal, got %q", journal)
	}
}

func TestCascadeSurvivesConnectionRecycle(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	owner := createTestUser(t, st, "ada")
	if err := st.CreateBoard(ctx, &models.Board{ID: "bd-recycle1", OwnerID: owner.ID, Title: "Sketch", Scene: models.EmptyScene()}); err != nil {
		t.Fatalf("create board: %v", err)
	}

	st.db.SetConnMaxLifetime(10 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	// Force the pool to open a fresh connection.
	if err := st.db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	var foreignKeys int
	if err := st.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Fatalf("expected foreign keys on after recycle, got %d", foreignKeys)
	}

	deleted, err := st.DeleteUser(ctx, "ada")
	if err != nil || !deleted {
		t.Fatalf("delete user: deleted=%v err=%v", deleted, err)
	}
	board, err := st.GetBoard(ctx, "bd-recycle1")
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if board != nil {
		t.Fatalf("expected board to cascade with its owner, got %+v", board)
	}
}
