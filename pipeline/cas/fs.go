package cas

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FSStore is a filesystem implementation of Store.
//
// Layout under the root directory:
//
//	<root>/objects/<hh>/<hash>   artifact bytes, sharded by first hash byte
//	<root>/metadata.jsonl        append-only metadata log, one record per line
//
// Object writes go through a temp file plus rename in the objects
// directory, so a crash mid-write never leaves a readable half-object
// under a final name. Because the filename is the content hash,
// concurrent Puts of identical content race benignly: both rename the
// same bytes onto the same name.
//
// Get re-hashes the bytes it read and returns ErrCorrupt on mismatch;
// corruption of one object never affects any other object.
type FSStore struct {
	root string

	// metaMu serializes appends to and scans of the metadata log.
	// Object reads/writes need no lock: objects are immutable once
	// renamed into place.
	metaMu sync.Mutex
}

// metaRecord is one line of the metadata log.
type metaRecord struct {
	Hash string   `json:"hash"`
	Meta Metadata `json:"meta"`
}

// NewFSStore creates a filesystem store rooted at dir, creating the
// directory layout if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store root directory cannot be empty")
	}
	if err := os.MkdirAll(filepath.Join(dir, "objects"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create objects directory: %w", err)
	}
	return &FSStore{root: dir}, nil
}

func (f *FSStore) objectPath(hash string) string {
	shard := hash
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(f.root, "objects", shard, hash)
}

func (f *FSStore) metaPath() string {
	return filepath.Join(f.root, "metadata.jsonl")
}

// Put stores data under its content hash and appends meta to the
// metadata log. The object write is skipped when the hash already
// exists; the metadata record is always appended.
func (f *FSStore) Put(ctx context.Context, data []byte, meta Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	hash := HashBytes(data)
	path := f.objectPath(hash)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := f.writeObject(path, data); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to stat object %s: %w", hash, err)
	}

	if err := f.appendMeta(metaRecord{Hash: hash, Meta: cloneMetadata(meta)}); err != nil {
		return "", err
	}
	return hash, nil
}

// writeObject writes data to path atomically: temp file in the same
// directory, full write, sync, then rename onto the final name.
func (f *FSStore) writeObject(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-object-*")
	if err != nil {
		return fmt.Errorf("failed to create temp object: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp object: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit object: %w", err)
	}
	return nil
}

func (f *FSStore) appendMeta(record metaRecord) error {
	f.metaMu.Lock()
	defer f.metaMu.Unlock()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata record: %w", err)
	}

	file, err := os.OpenFile(f.metaPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open metadata log: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append metadata record: %w", err)
	}
	return file.Sync()
}

// Get retrieves and verifies the bytes for a content hash.
func (f *FSStore) Get(ctx context.Context, hash string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.objectPath(hash))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", hash, err)
	}

	if HashBytes(data) != hash {
		return nil, fmt.Errorf("object %s: %w", hash, ErrCorrupt)
	}
	return data, nil
}

// FindByMetadata scans the metadata log and returns matching hashes in
// first-insertion order.
func (f *FSStore) FindByMetadata(ctx context.Context, query Metadata) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := f.readMeta()
	if err != nil {
		return nil, err
	}

	result := []string{}
	seen := make(map[string]bool)
	for _, record := range records {
		if seen[record.Hash] {
			continue
		}
		if matches(record.Meta, query) {
			result = append(result, record.Hash)
			seen[record.Hash] = true
		}
	}
	return result, nil
}

// GetMetadata returns all metadata records for a hash in insertion order.
func (f *FSStore) GetMetadata(ctx context.Context, hash string) ([]Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := f.readMeta()
	if err != nil {
		return nil, err
	}

	var result []Metadata
	for _, record := range records {
		if record.Hash == hash {
			result = append(result, record.Meta)
		}
	}
	if result == nil {
		return nil, ErrNotFound
	}
	return result, nil
}

func (f *FSStore) readMeta() ([]metaRecord, error) {
	f.metaMu.Lock()
	defer f.metaMu.Unlock()

	file, err := os.Open(f.metaPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata log: %w", err)
	}
	defer file.Close()

	var records []metaRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record metaRecord
		if err := json.Unmarshal(line, &record); err != nil {
			// A torn trailing line from a crash is skipped; complete
			// records before it stay readable.
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan metadata log: %w", err)
	}
	return records, nil
}
