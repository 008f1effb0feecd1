package syncer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/cache"
	"github.com/docscout/docscout/pkg/config"
)

func testConfig(dataDir string) config.IndexConfig {
	return config.IndexConfig{
		DataDir:    dataDir,
		Extensions: []string{".md"},
		PageSize:   15,
		MaxHits:    3,
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func modTime(t *testing.T, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.ModTime()
}

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestInitializeFullBuild(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "a.md", "alpha content")
	writeFile(t, dataDir, "b.md", "beta content")
	writeFile(t, dataDir, "ignored.log", "not indexed")

	h, err := Initialize(testConfig(dataDir), newStore(t))
	require.NoError(t, err)

	assert.Equal(t, LoadFull, h.StartupPath())
	assert.Equal(t, 2, h.Index().Len())
	assert.Equal(t, 1, h.Query("alpha", 1).Total)
	assert.Equal(t, 0, h.Query("ignored", 1).Total)
}

func TestInitializeMissingRoot(t *testing.T) {
	h, err := Initialize(testConfig(filepath.Join(t.TempDir(), "nope")), newStore(t))
	require.NoError(t, err)
	assert.Equal(t, 0, h.Index().Len())
	res := h.Query("anything", 1)
	assert.Equal(t, 0, res.Total)
	assert.Equal(t, 1, res.Page)
}

func TestFastPathSkipsFileReads(t *testing.T) {
	dataDir := t.TempDir()
	store := newStore(t)
	path := writeFile(t, dataDir, "a.md", "original content")

	h1, err := Initialize(testConfig(dataDir), store)
	require.NoError(t, err)
	require.Equal(t, LoadFull, h1.StartupPath())

	// Rewrite the file but restore its mtime: a fast-path load must serve
	// the cached content because it never re-reads the file.
	mt := modTime(t, path)
	require.NoError(t, os.WriteFile(path, []byte("rewritten behind the cache"), 0o644))
	require.NoError(t, os.Chtimes(path, mt, mt))

	h2, err := Initialize(testConfig(dataDir), store)
	require.NoError(t, err)
	assert.Equal(t, LoadFast, h2.StartupPath())

	doc, ok := h2.Index().Lookup(path)
	require.True(t, ok)
	assert.Equal(t, "original content", doc.Content)
}

func TestInitializeDeltaSync(t *testing.T) {
	dataDir := t.TempDir()
	store := newStore(t)
	aPath := writeFile(t, dataDir, "a.md", "alpha original")
	bPath := writeFile(t, dataDir, "b.md", "beta original")

	h1, err := Initialize(testConfig(dataDir), store)
	require.NoError(t, err)
	require.Equal(t, 2, h1.Index().Len())

	// b deleted, c new, a untouched (content rewritten but mtime restored,
	// so the delta pass must not re-read it).
	aMt := modTime(t, aPath)
	require.NoError(t, os.WriteFile(aPath, []byte("alpha rewritten"), 0o644))
	require.NoError(t, os.Chtimes(aPath, aMt, aMt))
	require.NoError(t, os.Remove(bPath))
	cPath := writeFile(t, dataDir, "c.md", "charlie fresh")

	h2, err := Initialize(testConfig(dataDir), store)
	require.NoError(t, err)
	assert.Equal(t, LoadDelta, h2.StartupPath())
	assert.Equal(t, 2, h2.Index().Len())

	aDoc, ok := h2.Index().Lookup(aPath)
	require.True(t, ok)
	assert.Equal(t, "alpha original", aDoc.Content, "unchanged file must not be re-read")

	_, ok = h2.Index().Lookup(bPath)
	assert.False(t, ok, "deleted file must leave the index")

	cDoc, ok := h2.Index().Lookup(cPath)
	require.True(t, ok)
	assert.Equal(t, "charlie fresh", cDoc.Content)
}

func TestInitializeChangedFileReindexed(t *testing.T) {
	dataDir := t.TempDir()
	store := newStore(t)
	path := writeFile(t, dataDir, "a.md", "first version")

	_, err := Initialize(testConfig(dataDir), store)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("second version"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	h, err := Initialize(testConfig(dataDir), store)
	require.NoError(t, err)
	assert.Equal(t, LoadDelta, h.StartupPath())

	doc, ok := h.Index().Lookup(path)
	require.True(t, ok)
	assert.Equal(t, "second version", doc.Content)
	assert.Equal(t, 1, h.Index().Len())
}

func TestCorruptCacheFallsBackToFullBuild(t *testing.T) {
	dataDir := t.TempDir()
	cacheDir := t.TempDir()
	store, err := cache.NewStore(cacheDir)
	require.NoError(t, err)
	writeFile(t, dataDir, "a.md", "alpha content")

	_, err = Initialize(testConfig(dataDir), store)
	require.NoError(t, err)

	// Trash the snapshot; the next startup must treat it as a miss.
	ns := cache.Namespace(dataDir)
	snapPath := filepath.Join(cacheDir, "docs_"+ns+".snap")
	require.NoError(t, os.WriteFile(snapPath, []byte("garbage"), 0o644))

	h, err := Initialize(testConfig(dataDir), store)
	require.NoError(t, err)
	assert.Equal(t, LoadFull, h.StartupPath())
	assert.Equal(t, 1, h.Query("alpha", 1).Total)
}

func TestSyncDetectsNewAndDeletedFiles(t *testing.T) {
	dataDir := t.TempDir()
	h, err := Initialize(testConfig(dataDir), newStore(t))
	require.NoError(t, err)
	require.Equal(t, int64(0), h.Generation())

	assert.False(t, h.Sync(), "no changes yet")
	assert.Equal(t, int64(0), h.Generation())

	path := writeFile(t, dataDir, "new.md", "fresh words")
	assert.True(t, h.Sync())
	assert.Equal(t, int64(1), h.Generation())
	assert.Equal(t, 1, h.Query("fresh", 1).Total)

	require.NoError(t, os.Remove(path))
	assert.True(t, h.Sync())
	assert.Equal(t, int64(2), h.Generation())
	assert.Equal(t, 0, h.Query("fresh", 1).Total)
}

func TestSyncSwapsIndexAtomically(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "a.md", "alpha")
	h, err := Initialize(testConfig(dataDir), newStore(t))
	require.NoError(t, err)

	before := h.Index()
	assert.False(t, h.Sync())
	assert.Same(t, before, h.Index(), "unchanged sync must keep the live index")

	writeFile(t, dataDir, "b.md", "bravo")
	assert.True(t, h.Sync())
	assert.NotSame(t, before, h.Index(), "changed sync must swap in a new index")
	assert.Equal(t, 1, before.Len(), "old snapshot stays consistent for in-flight readers")
}

func TestUnreadableFileSkipped(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "good.md", "readable content")
	// Dangling symlink: enumerated, unreadable.
	require.NoError(t, os.Symlink(filepath.Join(dataDir, "missing-target"), filepath.Join(dataDir, "broken.md")))

	h, err := Initialize(testConfig(dataDir), newStore(t))
	require.NoError(t, err)
	assert.Equal(t, 1, h.Index().Len())
	assert.Equal(t, 1, h.Query("readable", 1).Total)
}

func TestScanFiltersAndRecurses(t *testing.T) {
	dataDir := t.TempDir()
	sub := filepath.Join(dataDir, "nested", "deep")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	top := writeFile(t, dataDir, "top.md", "x")
	inner := writeFile(t, sub, "inner.md", "y")
	writeFile(t, dataDir, "skip.log", "z")

	state := Scan(dataDir, []string{".md"})
	assert.Len(t, state, 2)
	assert.Contains(t, state, top)
	assert.Contains(t, state, inner)
}

func TestScanMissingRoot(t *testing.T) {
	state := Scan(filepath.Join(t.TempDir(), "absent"), []string{".md"})
	assert.Empty(t, state)
}

func TestSchedulerRunsAndRestarts(t *testing.T) {
	dataDir := t.TempDir()
	h, err := Initialize(testConfig(dataDir), newStore(t))
	require.NoError(t, err)
	defer h.StopScheduler()

	h.StartScheduler(20 * time.Millisecond)
	// Restart replaces the pending timer instead of stacking a second one.
	h.StartScheduler(20 * time.Millisecond)

	writeFile(t, dataDir, "late.md", "arrived later")
	require.Eventually(t, func() bool {
		return h.Index().Len() == 1
	}, 3*time.Second, 10*time.Millisecond, "scheduled sync never picked up the new file")

	h.StopScheduler()
	// Non-positive interval only disables.
	h.StartScheduler(0)
}
