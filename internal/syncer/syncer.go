// Package syncer keeps the index in step with the data directory. At startup
// it either loads a valid cache directly (fast path) or converges via a
// full or delta build; afterwards a scheduler can re-run the reconciliation
// at a fixed interval.
//
// Synchronization never mutates the live index: it works on a clone and the
// handle swaps the index pointer atomically once the run completes, so
// concurrent queries always see a consistent table.
package syncer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docscout/docscout/internal/cache"
	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/pkg/config"
	"github.com/docscout/docscout/pkg/logger"
)

// Startup paths taken by Initialize.
const (
	LoadFast  = "fast"
	LoadDelta = "delta"
	LoadFull  = "full"
)

// Handle owns the process-lifetime index reference. Queries read through it;
// the synchronizer replaces the index it points to.
type Handle struct {
	current atomic.Pointer[index.Index]

	cfg   config.IndexConfig
	store *cache.Store
	ns    string
	log   *slog.Logger

	// syncMu serializes synchronizer runs; a sync over a large corpus can
	// outlive the scheduling interval.
	syncMu     sync.Mutex
	generation atomic.Int64

	schedMu     sync.Mutex
	schedCancel context.CancelFunc

	startupPath string

	// OnSync, when set before the scheduler starts, is invoked after every
	// synchronizer run.
	OnSync func(changed bool, took time.Duration)
}

// Initialize applies the startup policy and returns the live index handle:
// no cache → full build; cache matching the current file state → fast-path
// load without reading any file; stale cache → load then delta sync;
// unreadable or corrupt cache → treated as a miss, full build.
func Initialize(cfg config.IndexConfig, store *cache.Store) (*Handle, error) {
	h := &Handle{
		cfg:   cfg,
		store: store,
		ns:    cache.Namespace(cfg.DataDir),
		log:   logger.WithComponent("syncer"),
	}

	currentState := Scan(cfg.DataDir, cfg.Extensions)
	idx := index.New(cfg.PageSize, cfg.MaxHits)

	persisted, mtErr := store.LoadModTimes(h.ns)
	var docs []index.Document
	var snapErr error
	if mtErr == nil {
		docs, snapErr = store.LoadSnapshot(h.ns)
	}

	switch {
	case mtErr == nil && snapErr == nil && sameState(persisted, currentState):
		for _, doc := range docs {
			idx.Add(doc.Path, doc.Name, doc.Content, doc.ModTime)
		}
		h.startupPath = LoadFast
		h.log.Info("cache up to date, loaded without rescan", "docs", idx.Len())

	case mtErr == nil && snapErr == nil:
		for _, doc := range docs {
			idx.Add(doc.Path, doc.Name, doc.Content, doc.ModTime)
		}
		changed := h.applyDelta(idx, currentState)
		h.startupPath = LoadDelta
		h.log.Info("cache stale, delta sync applied", "docs", idx.Len(), "changed", changed)
		if changed {
			h.persist(idx)
		}

	default:
		if err := firstErr(mtErr, snapErr); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.log.Warn("cache unreadable, rebuilding from scratch", "error", err)
		}
		h.applyDelta(idx, currentState)
		h.startupPath = LoadFull
		h.log.Info("full index build complete", "docs", idx.Len())
		h.persist(idx)
	}

	h.current.Store(idx)
	if cfg.AutoRebuildHours > 0 {
		h.StartScheduler(time.Duration(cfg.AutoRebuildHours) * time.Hour)
	}
	return h, nil
}

// Index returns the live index.
func (h *Handle) Index() *index.Index {
	return h.current.Load()
}

// Query runs a search against the live index. Empty or whitespace-only text
// returns the empty result without touching the index.
func (h *Handle) Query(text string, page int) index.Result {
	return h.current.Load().Search(text, page)
}

// Generation increments every time a sync swaps in a changed index. The
// query cache keys on it so stale entries stop being served.
func (h *Handle) Generation() int64 {
	return h.generation.Load()
}

// StartupPath reports which load path Initialize took.
func (h *Handle) StartupPath() string {
	return h.startupPath
}

// Sync reconciles the on-disk state against the index and reports whether
// anything changed. It clones the live index, applies the delta, then swaps.
// Cache write failures are logged and non-fatal; the next run retries.
func (h *Handle) Sync() bool {
	h.syncMu.Lock()
	defer h.syncMu.Unlock()

	start := time.Now()
	scratch := h.current.Load().Clone()
	changed := h.applyDelta(scratch, Scan(h.cfg.DataDir, h.cfg.Extensions))
	if changed {
		h.current.Store(scratch)
		h.generation.Add(1)
		h.persist(scratch)
	}
	took := time.Since(start)
	h.log.Debug("sync finished", "changed", changed, "docs", h.current.Load().Len(), "took", took)
	if h.OnSync != nil {
		h.OnSync(changed, took)
	}
	return changed
}

// applyDelta runs the two reconciliation passes against idx: new or changed
// files are removed and re-read, vanished files are removed. Unreadable files
// are logged and skipped; they stay out of the persisted mtime table so the
// next sync retries them.
func (h *Handle) applyDelta(idx *index.Index, currentState map[string]time.Time) bool {
	changed := false
	known := idx.ModTimes()

	for path, modTime := range currentState {
		if old, ok := known[path]; ok && old.Equal(modTime) {
			continue
		}
		removed := idx.Remove(path)
		data, err := os.ReadFile(path)
		if err != nil {
			h.log.Warn("skipping unreadable file", "path", path, "error", err)
			changed = changed || removed
			continue
		}
		idx.Add(path, filepath.Base(path), string(data), modTime)
		changed = true
	}

	for path := range known {
		if _, ok := currentState[path]; !ok {
			idx.Remove(path)
			changed = true
		}
	}
	return changed
}

// persist writes both cache artifacts. Failures leave the in-memory index
// fully usable.
func (h *Handle) persist(idx *index.Index) {
	if err := h.store.SaveSnapshot(h.ns, idx.Documents()); err != nil {
		h.log.Warn("snapshot write failed", "error", err)
		return
	}
	if err := h.store.SaveModTimes(h.ns, idx.ModTimes()); err != nil {
		h.log.Warn("mtime table write failed", "error", err)
	}
}

// Scan enumerates files under root matching the extension filter and records
// their modification times. Enumeration errors are swallowed; a missing root
// yields an empty table rather than a failure.
func Scan(root string, exts []string) map[string]time.Time {
	state := make(map[string]time.Time)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !matchesExt(path, exts) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[path] = info.ModTime()
		return nil
	})
	return state
}

func matchesExt(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func sameState(a, b map[string]time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for path, mt := range a {
		other, ok := b[path]
		if !ok || !other.Equal(mt) {
			return false
		}
	}
	return true
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
