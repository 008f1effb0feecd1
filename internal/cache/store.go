// Package cache persists the document table between runs. Two artifacts are
// written per data directory: a snapshot of the document table and a
// modification-time table used for change detection. Posting lists are never
// persisted; they are derived on load.
//
// The snapshot is a binary envelope: fixed header (magic, version, document
// count, payload length), JSON-encoded document table, CRC32 footer. Any
// mismatch loads as ErrCacheCorrupt and callers fall back to a full rebuild.
package cache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	farmhash "github.com/leemcloughlin/gofarmhash"

	"github.com/docscout/docscout/internal/index"
	apperrors "github.com/docscout/docscout/pkg/errors"
)

const (
	magicBytes    uint32 = 0x44534E50 // "DSNP"
	formatVersion uint32 = 1
	headerSize           = 20
	footerSize           = 4
)

// Store reads and writes cache artifacts under a single directory.
type Store struct {
	dir string
}

// NewStore creates the cache directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Namespace derives the stable short hash identifying a data directory, so
// different datasets never collide on cache files.
func Namespace(dataDir string) string {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		abs = dataDir
	}
	return fmt.Sprintf("%08x", farmhash.Hash32([]byte(abs)))
}

func (s *Store) snapshotPath(ns string) string {
	return filepath.Join(s.dir, "docs_"+ns+".snap")
}

func (s *Store) modTimesPath(ns string) string {
	return filepath.Join(s.dir, "mtimes_"+ns+".json")
}

// SaveSnapshot atomically writes the document table for the given namespace.
func (s *Store) SaveSnapshot(ns string, docs []index.Document) error {
	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshaling document table: %w", err)
	}
	buf := make([]byte, headerSize+len(payload)+footerSize)
	binary.LittleEndian.PutUint32(buf[0:4], magicBytes)
	binary.LittleEndian.PutUint32(buf[4:8], formatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(docs)))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(len(payload)))
	copy(buf[headerSize:], payload)
	crc := crc32.ChecksumIEEE(payload)
	binary.LittleEndian.PutUint32(buf[headerSize+len(payload):], crc)
	return s.writeAtomic(s.snapshotPath(ns), buf)
}

// LoadSnapshot reads and validates the document table for the namespace.
func (s *Store) LoadSnapshot(ns string) ([]index.Document, error) {
	data, err := os.ReadFile(s.snapshotPath(ns))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) < headerSize+footerSize {
		return nil, fmt.Errorf("%w: snapshot truncated (%d bytes)", apperrors.ErrCacheCorrupt, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != magicBytes {
		return nil, fmt.Errorf("%w: bad magic %#x", apperrors.ErrCacheCorrupt, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", apperrors.ErrCacheCorrupt, version)
	}
	docCount := binary.LittleEndian.Uint32(data[8:12])
	payloadLen := binary.LittleEndian.Uint64(data[12:20])
	if uint64(len(data)) != headerSize+payloadLen+footerSize {
		return nil, fmt.Errorf("%w: payload length mismatch", apperrors.ErrCacheCorrupt)
	}
	payload := data[headerSize : headerSize+payloadLen]
	crc := binary.LittleEndian.Uint32(data[headerSize+payloadLen:])
	if crc32.ChecksumIEEE(payload) != crc {
		return nil, fmt.Errorf("%w: checksum mismatch", apperrors.ErrCacheCorrupt)
	}
	var docs []index.Document
	if err := json.Unmarshal(payload, &docs); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCacheCorrupt, err)
	}
	if uint32(len(docs)) != docCount {
		return nil, fmt.Errorf("%w: document count mismatch", apperrors.ErrCacheCorrupt)
	}
	return docs, nil
}

// SaveModTimes atomically writes the path → mtime table as JSON (UnixNano).
func (s *Store) SaveModTimes(ns string, modTimes map[string]time.Time) error {
	table := make(map[string]int64, len(modTimes))
	for path, mt := range modTimes {
		table[path] = mt.UnixNano()
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling mtime table: %w", err)
	}
	return s.writeAtomic(s.modTimesPath(ns), data)
}

// LoadModTimes reads the path → mtime table for the namespace.
func (s *Store) LoadModTimes(ns string) (map[string]time.Time, error) {
	data, err := os.ReadFile(s.modTimesPath(ns))
	if err != nil {
		return nil, fmt.Errorf("reading mtime table: %w", err)
	}
	var table map[string]int64
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCacheCorrupt, err)
	}
	modTimes := make(map[string]time.Time, len(table))
	for path, nanos := range table {
		modTimes[path] = time.Unix(0, nanos)
	}
	return modTimes, nil
}

// writeAtomic writes to a temp file in the same directory and renames it over
// the target, so readers never observe a partial file.
func (s *Store) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}
