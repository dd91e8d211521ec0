package cas

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps artifact bytes and metadata records in a single-file database.
// Designed for:
//   - Development and testing with zero setup
//   - Single-process pipelines requiring durable artifacts
//   - Prototyping before migrating to a shared MySQL store
//
// SQLiteStore uses WAL mode for concurrent reads and transactional writes.
//
// Schema:
//   - artifacts: content hash -> bytes (deduplicated, INSERT OR IGNORE)
//   - artifact_metadata: append-only metadata records per hash
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a SQLite-backed store at path.
//
// The path may be a file ("./artifacts.db"), an absolute path, or
// ":memory:" for an in-memory database that is lost on Close.
//
// The store automatically creates the database file and schema, enables
// WAL mode and sets a 5s busy timeout.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	artifactsTable := `
		CREATE TABLE IF NOT EXISTS artifacts (
			hash TEXT NOT NULL PRIMARY KEY,
			data BLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, artifactsTable); err != nil {
		return fmt.Errorf("failed to create artifacts table: %w", err)
	}

	metadataTable := `
		CREATE TABLE IF NOT EXISTS artifact_metadata (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hash TEXT NOT NULL,
			meta TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, metadataTable); err != nil {
		return fmt.Errorf("failed to create artifact_metadata table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_metadata_hash ON artifact_metadata(hash)"); err != nil {
		return fmt.Errorf("failed to create idx_metadata_hash: %w", err)
	}
	return nil
}

// Put stores data under its content hash inside one transaction.
//
// INSERT OR IGNORE on the artifacts table makes the byte write
// idempotent; the metadata record is always inserted.
func (s *SQLiteStore) Put(ctx context.Context, data []byte, meta Metadata) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", fmt.Errorf("store is closed")
	}

	hash := HashBytes(data)
	metaJSON, err := json.Marshal(cloneMetadata(meta))
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO artifacts (hash, data) VALUES (?, ?)", hash, data); err != nil {
		return "", fmt.Errorf("failed to insert artifact: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO artifact_metadata (hash, meta) VALUES (?, ?)", hash, string(metaJSON)); err != nil {
		return "", fmt.Errorf("failed to insert metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit artifact: %w", err)
	}
	return hash, nil
}

// Get retrieves and verifies the bytes for a content hash.
func (s *SQLiteStore) Get(ctx context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM artifacts WHERE hash = ?", hash).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query artifact: %w", err)
	}

	if HashBytes(data) != hash {
		return nil, fmt.Errorf("object %s: %w", hash, ErrCorrupt)
	}
	return data, nil
}

// FindByMetadata returns matching hashes in first-insertion order.
//
// Metadata rows are scanned in insertion order and matched in Go; the
// query is an exact match over every key/value pair.
func (s *SQLiteStore) FindByMetadata(ctx context.Context, query Metadata) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT hash, meta FROM artifact_metadata ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	result := []string{}
	seen := make(map[string]bool)
	for rows.Next() {
		var hash, metaJSON string
		if err := rows.Scan(&hash, &metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		if seen[hash] {
			continue
		}
		var record Metadata
		if err := json.Unmarshal([]byte(metaJSON), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", hash, err)
		}
		if matches(record, query) {
			result = append(result, hash)
			seen[hash] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metadata rows: %w", err)
	}
	return result, nil
}

// GetMetadata returns all metadata records for a hash in insertion order.
func (s *SQLiteStore) GetMetadata(ctx context.Context, hash string) ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT meta FROM artifact_metadata WHERE hash = ? ORDER BY id", hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	var result []Metadata
	for rows.Next() {
		var metaJSON string
		if err := rows.Scan(&metaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		var record Metadata
		if err := json.Unmarshal([]byte(metaJSON), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", hash, err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metadata rows: %w", err)
	}
	if result == nil {
		return nil, ErrNotFound
	}
	return result, nil
}

// Close closes the database connection. The store cannot be used after Close.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
