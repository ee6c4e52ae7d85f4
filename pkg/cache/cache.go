// Package cache keeps downloaded enrollment exports in a local SQLite
// database so repeated fetches of the same school year stay offline.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"

	// SQLite driver
	_ "modernc.org/sqlite"
)

const (
	// DefaultMaxAge is how long a cached export is served before it is
	// fetched again.
	DefaultMaxAge = 30 * 24 * time.Hour

	memoryPath = ":memory:"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrMiss is returned by Get when no fresh payload exists for a year.
var ErrMiss = errors.New("cache miss")

// Config holds the cache location and expiry.
type Config struct {
	Path   string
	MaxAge time.Duration
}

// Entry describes one cached export.
type Entry struct {
	EndYear   int
	Size      int
	FetchedAt time.Time
	Expired   bool
}

// Store is a SQLite backed payload cache.
type Store struct {
	db     *sql.DB
	maxAge time.Duration
	now    func() time.Time
}

// Open creates (if needed) and migrates the cache database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	dsn := cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if cfg.Path == memoryPath {
		// every connection to :memory: is its own database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	s := &Store{db: db, maxAge: cfg.MaxAge, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("Cache opened: ", cfg.Path)
	return s, nil
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	drv, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the payload cached for endYear if it is younger than the
// configured maximum age.
func (s *Store) Get(ctx context.Context, endYear int) ([]byte, error) {
	var (
		payload   []byte
		fetchedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM enrollment_payloads WHERE end_year = ?`,
		endYear,
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %d: %w", endYear, err)
	}
	if s.expired(time.Unix(0, fetchedAt)) {
		log.Debug("Cache entry expired: ", endYear)
		return nil, ErrMiss
	}
	return payload, nil
}

// Put stores payload for endYear, replacing any previous entry.
func (s *Store) Put(ctx context.Context, endYear int, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollment_payloads (end_year, payload, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(end_year) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at
	`, endYear, payload, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write cache entry %d: %w", endYear, err)
	}
	return nil
}

// Status lists every cached entry in ascending year order, expired ones
// included.
func (s *Store) Status(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT end_year, length(payload), fetched_at FROM enrollment_payloads ORDER BY end_year`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			fetchedAt int64
		)
		if err := rows.Scan(&e.EndYear, &e.Size, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		e.FetchedAt = time.Unix(0, fetchedAt)
		e.Expired = s.expired(e.FetchedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear removes the entries for the given years, or every entry when no
// year is given. It returns the number of entries removed.
func (s *Store) Clear(ctx context.Context, endYears ...int) (int64, error) {
	query := `DELETE FROM enrollment_payloads`
	args := make([]interface{}, 0, len(endYears))
	if len(endYears) > 0 {
		marks := make([]string, len(endYears))
		for i, y := range endYears {
			marks[i] = "?"
			args = append(args, y)
		}
		query += ` WHERE end_year IN (` + strings.Join(marks, ",") + `)`
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) expired(fetchedAt time.Time) bool {
	return s.now().Sub(fetchedAt) > s.maxAge
}
