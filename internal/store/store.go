package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS          = 5000
	defaultMaxOpenConns    = 1
	defaultConnMaxLifetime = 5 * time.Minute

	maxOpenConnsEnvKey    = "INKBOARD_DB_MAX_OPEN_CONNS"
	connMaxLifetimeEnvKey = "INKBOARD_DB_CONN_MAX_LIFETIME"
)

var (
	// ErrNotFound is returned by mutations that target a missing row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique column already holds the value.
	ErrDuplicate = errors.New("already exists")
	// ErrVersionConflict is returned when an optimistic board save loses.
	ErrVersionConflict = errors.New("version conflict")
	// ErrUsersExist is returned when a first-user-only insert finds users.
	ErrUsersExist = errors.New("users already exist")
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Info summarizes store contents for the info endpoint.
type Info struct {
	SchemaVersion int `json:"schema_version"`
	Users         int `json:"users"`
	Boards        int `json:"boards"`
	Logs          int `json:"logs"`
}

// Open opens the SQLite database and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenRaw opens the database with pragmas applied but without migrating.
func OpenRaw(path string) (*sql.DB, error) {
	return openDB(path)
}

func openDB(path string) (*sql.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StoreInfo returns row counts and the applied schema version.
func (s *Store) StoreInfo(ctx context.Context) (*Info, error) {
	info := &Info{}
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&info.SchemaVersion); err != nil {
		return nil, err
	}
	counts := []struct {
		table string
		dst   *int
	}{
		{"users", &info.Users},
		{"boards", &info.Boards},
		{"logs", &info.Logs},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return info, nil
}

func configureDB(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return err
	}

	// SQLite serializes writers; one connection by default.
	maxOpen := intFromEnv(maxOpenConnsEnvKey, defaultMaxOpenConns)
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(durationFromEnv(connMaxLifetimeEnvKey, defaultConnMaxLifetime))

	return nil
}

func intFromEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// durationFromEnv accepts Go durations or a bare number of seconds.
func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return fallback
		}
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// connPragmas run on every new connection, so pool recycling keeps them.
var connPragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS),
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	params := make([]string, 0, len(connPragmas))
	for _, pragma := range connPragmas {
		params = append(params, "_pragma="+pragma)
	}
	u := url.URL{Scheme: "file", Path: path, RawQuery: strings.Join(params, "&")}
	return u.String(), nil
}

const dbTimeLayout = time.RFC3339Nano

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func dbParseTime(value string) (time.Time, error) {
	t, err := time.Parse(dbTimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", value, err)
	}
	return t.UTC(), nil
}

func dbNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := dbParseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}
