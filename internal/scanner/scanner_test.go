package scanner

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photocore/phashcore/internal/catalog"
	"github.com/photocore/phashcore/internal/config"
	"github.com/photocore/phashcore/internal/media"
	"github.com/photocore/phashcore/internal/phash"
	"github.com/photocore/phashcore/internal/storage"
	"github.com/photocore/phashcore/internal/worker"
)

func writePNG(t *testing.T, path string, v uint8) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	img := imaging.New(40, 40, color.NRGBA{R: v, G: v, B: v, A: 255})
	require.NoError(t, imaging.Save(img, path))
}

// mediaTree создает директорию с двумя изображениями, подделкой и лишними файлами
func mediaTree(t *testing.T) string {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 30)
	writePNG(t, filepath.Join(dir, "sub", "b.png"), 220)
	writePNG(t, filepath.Join(dir, ".hidden", "c.png"), 90)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fake.png"), []byte("not an image at all"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))
	return dir
}

func TestScannerQueuesAndSkipsUnchanged(t *testing.T) {
	dir := mediaTree(t)
	cfg := config.Default()
	cfg.Storage.MediaPaths = []string{dir}

	store, err := storage.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	cat := catalog.New(phash.New(media.NewPreprocessor(), cfg.HashOptions()), store, nil)
	pool := worker.NewPool(2, 4)
	svc := worker.NewHashService(pool, cat)
	s := NewScanner(cfg, cat, svc)
	pool.OnResult(s.HandleResult)
	pool.Start()
	defer pool.Stop()

	progress, err := s.Run(context.Background())
	require.NoError(t, err)
	pool.Wait()

	// результаты приходят асинхронно после Wait
	assert.Eventually(t, func() bool {
		return s.Progress().Hashed == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, s.Progress().Failed)

	assert.False(t, progress.Running)
	assert.Equal(t, 3, progress.TotalFiles)
	assert.Equal(t, 2, progress.Queued)
	assert.Equal(t, 1, progress.Skipped)
	assert.Zero(t, progress.Unchanged)
	assert.False(t, s.IsScanning())

	r, err := cat.LookupPath(filepath.Join(dir, "sub", "b.png"))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Len(t, r.Hash, 64)

	again, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, again.Unchanged)
	assert.Zero(t, again.Queued)
}

type recordingQueue struct {
	mu       sync.Mutex
	changed  []string
	removed  []string
	blocking []string
}

func (q *recordingQueue) QueueFile(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.changed = append(q.changed, path)
	return true
}

func (q *recordingQueue) QueueForget(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, path)
	return true
}

func (q *recordingQueue) QueueFileBlocking(_ context.Context, path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocking = append(q.blocking, path)
	return true
}

func (q *recordingQueue) snapshot() (changed, removed []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.changed...), append([]string(nil), q.removed...)
}

func TestHandleResultIgnoresForeignTasks(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.MediaPaths = []string{mediaTree(t)}
	cat := catalog.New(phash.New(media.NewPreprocessor(), cfg.HashOptions()), nil, nil)
	q := &recordingQueue{}
	s := NewScanner(cfg, cat, q)

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, q.blocking, 2)

	s.HandleResult(&worker.TaskResult{Path: "/elsewhere.png", Success: true})
	s.HandleResult(&worker.TaskResult{Path: q.blocking[0], Success: true})
	s.HandleResult(&worker.TaskResult{Path: q.blocking[0], Success: true})
	s.HandleResult(&worker.TaskResult{Path: q.blocking[1], Success: false})

	p := s.Progress()
	assert.Equal(t, 1, p.Hashed)
	assert.Equal(t, 1, p.Failed)
}

func TestScannerWithoutStore(t *testing.T) {
	dir := mediaTree(t)
	cfg := config.Default()
	cfg.Storage.MediaPaths = []string{dir}

	q := &recordingQueue{}
	cat := catalog.New(phash.New(media.NewPreprocessor(), cfg.HashOptions()), nil, nil)
	s := NewScanner(cfg, cat, q)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	s.Wait()

	p := s.Progress()
	assert.Equal(t, 2, p.Queued)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "sub", "b.png"),
	}, q.blocking)
}

func TestScannerStop(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.MediaPaths = []string{mediaTree(t)}
	cat := catalog.New(phash.New(media.NewPreprocessor(), cfg.HashOptions()), nil, nil)
	s := NewScanner(cfg, cat, &recordingQueue{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, p.Queued)
	assert.NotPanics(t, s.Stop)
}

func TestWatcherQueuesChanges(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.MediaPaths = []string{dir}

	q := &recordingQueue{}
	w, err := NewWatcher(cfg, q)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()
	assert.NotEmpty(t, w.WatchedPaths())

	path := filepath.Join(dir, "new.png")
	writePNG(t, path, 120)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0644))

	assert.Eventually(t, func() bool {
		changed, _ := q.snapshot()
		return len(changed) == 1 && changed[0] == path
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		_, removed := q.snapshot()
		return len(removed) == 1 && removed[0] == path
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
