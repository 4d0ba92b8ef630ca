package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ohenr/internal/logger"
	"ohenr/pkg/metadata"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS batches (
	key       TEXT PRIMARY KEY,
	blob      BLOB NOT NULL,
	hash      TEXT NOT NULL,
	version   TEXT NOT NULL,
	stored_at INTEGER NOT NULL
);
`

// SQLite is a Store persisted in a single SQLite file.
type SQLite struct {
	db   *sql.DB
	path string
	ttl  time.Duration
	log  *logger.Logger
	now  func() time.Time
}

// OpenSQLite opens or creates the cache database at path.
func OpenSQLite(path string, ttl time.Duration, log *logger.Logger) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &SQLite{db: db, path: path, ttl: ttl, log: log, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the blob stored under key. Expired and corrupt entries are misses.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	var (
		blob     []byte
		meta     metadata.Metadata
		storedAt int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT blob, hash, version, stored_at FROM batches WHERE key = ?`, key,
	).Scan(&blob, &meta.Hash, &meta.Version, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}

	meta.StoredAt = time.Unix(0, storedAt).UTC()

	if meta.Expired(s.ttl, s.now()) {
		s.log.Debug("cache entry expired", "key", key, "stored_at", meta.StoredAt)

		return nil, false, nil
	}

	if err := metadata.Verify(blob, meta); err != nil {
		s.log.Warn("discarding corrupt cache entry", "key", key, "error", err)

		return nil, false, nil
	}

	return blob, true, nil
}

// Put stores blob under key, replacing any previous entry.
func (s *SQLite) Put(ctx context.Context, key string, blob []byte, storedAt time.Time) error {
	if key == "" {
		return ErrEmptyKey
	}

	meta := metadata.Sign(blob, envelopeVersion(), true, storedAt)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO batches (key, blob, hash, version, stored_at) VALUES (?, ?, ?, ?, ?)`,
		key, blob, meta.Hash, meta.Version, meta.StoredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}

	return nil
}

// Purge removes entries stored before cutoff and returns how many were removed.
func (s *SQLite) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batches WHERE stored_at < ?`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged entries: %w", err)
	}

	return n, nil
}
