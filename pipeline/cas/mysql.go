package cas

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// Designed for:
//   - Shared artifact stores used by multiple workers or machines
//   - Long-lived research corpora that outlive any single run
//   - Audit trails over artifact metadata
//
// MySQLStore uses connection pooling and transactions for reliability.
//
// Schema:
//   - artifacts: content hash -> bytes (deduplicated, INSERT IGNORE)
//   - artifact_metadata: append-only metadata records per hash
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a MySQL-backed store from a DSN.
//
// DSN format:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Example: "user:password@tcp(localhost:3306)/artifacts?parseTime=true"
//
// Never hardcode credentials; read the DSN from the environment:
//
//	dsn := os.Getenv("MYSQL_DSN")
//
// The store automatically creates required tables, configures the
// connection pool and verifies connectivity.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store := &MySQLStore{db: db}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	artifactsTable := `
		CREATE TABLE IF NOT EXISTS artifacts (
			hash VARCHAR(64) NOT NULL PRIMARY KEY,
			data MEDIUMBLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, artifactsTable); err != nil {
		return fmt.Errorf("failed to create artifacts table: %w", err)
	}

	metadataTable := `
		CREATE TABLE IF NOT EXISTS artifact_metadata (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			hash VARCHAR(64) NOT NULL,
			meta JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_metadata_hash (hash)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, metadataTable); err != nil {
		return fmt.Errorf("failed to create artifact_metadata table: %w", err)
	}
	return nil
}

// Put stores data under its content hash inside one transaction.
// INSERT IGNORE makes the byte write idempotent under concurrent Puts
// of identical content.
func (m *MySQLStore) Put(ctx context.Context, data []byte, meta Metadata) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", fmt.Errorf("store is closed")
	}

	hash := HashBytes(data)
	metaJSON, err := json.Marshal(cloneMetadata(meta))
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT IGNORE INTO artifacts (hash, data) VALUES (?, ?)", hash, data); err != nil {
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
func (m *MySQLStore) Get(ctx context.Context, hash string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var data []byte
	err := m.db.QueryRowContext(ctx,
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
func (m *MySQLStore) FindByMetadata(ctx context.Context, query Metadata) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := m.db.QueryContext(ctx,
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
func (m *MySQLStore) GetMetadata(ctx context.Context, hash string) ([]Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := m.db.QueryContext(ctx,
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

// Close closes the database connection pool.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
