// Package cas provides content-addressable artifact storage for pipelines.
package cas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrNotFound is returned when a requested content hash does not exist in the store.
var ErrNotFound = errors.New("artifact not found")

// ErrCorrupt is returned when an artifact's bytes no longer hash to its
// storage key. Corruption is scoped to the single artifact; every other
// artifact in the store remains readable.
var ErrCorrupt = errors.New("artifact corrupt: content hash mismatch")

// Metadata is a flat string-keyed tag map attached to an artifact,
// e.g. {"type": "analysis_result", "phase": "score"}.
type Metadata map[string]string

// Store provides deduplicated, immutable blob storage keyed by content hash.
//
// Identical bytes always hash identically, so storing the same content
// twice never duplicates the underlying bytes. Each Put additionally
// records its metadata as an independent, queryable record for the hash;
// repeated Puts of the same content accumulate metadata records rather
// than overwriting them.
//
// Implementations must tolerate concurrent Put/Get from multiple callers
// (e.g., a handler fanning out sub-tasks that write artifacts). Concurrent
// Puts of identical content are safe because the operation is idempotent
// on the underlying bytes. Get requires no locking against concurrent
// Puts of other content.
//
// Implementations:
//   - In-memory (memory.go): testing and single-process runs
//   - Filesystem (fs.go): durable local storage with sharded object dirs
//   - SQLite (sqlite.go): single-file database, zero setup
//   - MySQL (mysql.go): shared store for multiple workers
type Store interface {
	// Put stores data under its content hash and records meta as an
	// additional metadata record for that hash. Returns the hex-encoded
	// hash. Idempotent with respect to the bytes: a hash that already
	// exists is not rewritten.
	Put(ctx context.Context, data []byte, meta Metadata) (string, error)

	// Get retrieves the bytes for a content hash.
	// Returns ErrNotFound for an unknown hash and ErrCorrupt when the
	// stored bytes no longer match the hash.
	Get(ctx context.Context, hash string) ([]byte, error)

	// FindByMetadata returns the hashes of all artifacts with at least
	// one metadata record matching every key/value pair in query,
	// in first-insertion order. Returns an empty (never nil) slice when
	// nothing matches.
	FindByMetadata(ctx context.Context, query Metadata) ([]string, error)

	// GetMetadata returns all metadata records recorded for a hash, in
	// insertion order. Returns ErrNotFound for an unknown hash.
	GetMetadata(ctx context.Context, hash string) ([]Metadata, error)
}

// HashBytes computes the hex-encoded SHA-256 content hash used as the
// storage key for data. Exposed so callers can derive an artifact's key
// without storing it.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// matches reports whether record contains every key/value pair in query.
func matches(record, query Metadata) bool {
	for k, v := range query {
		if record[k] != v {
			return false
		}
	}
	return true
}

// cloneMetadata copies a metadata map so stored records cannot be
// mutated through the caller's reference.
func cloneMetadata(meta Metadata) Metadata {
	if meta == nil {
		return Metadata{}
	}
	clone := make(Metadata, len(meta))
	for k, v := range meta {
		clone[k] = v
	}
	return clone
}
