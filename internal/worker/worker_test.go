package worker

import (
	"context"
	"errors"
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
	"github.com/photocore/phashcore/internal/media"
	"github.com/photocore/phashcore/internal/phash"
	"github.com/photocore/phashcore/internal/storage"
)

func TestPoolRunsHandlers(t *testing.T) {
	p := NewPool(2, 10)
	var mu sync.Mutex
	seen := map[string]bool{}
	p.RegisterHandler(TaskHashFile, func(ctx context.Context, task *Task) (*TaskResult, error) {
		mu.Lock()
		seen[task.Path] = true
		mu.Unlock()
		return nil, nil
	})
	p.RegisterHandler(TaskForgetFile, func(ctx context.Context, task *Task) (*TaskResult, error) {
		return nil, errors.New("nope")
	})
	p.Start()
	defer p.Stop()

	for _, path := range []string{"a", "b", "c"} {
		require.True(t, p.Submit(&Task{ID: path, Type: TaskHashFile, Path: path}))
	}
	require.True(t, p.SubmitBlocking(context.Background(), &Task{ID: "d", Type: TaskForgetFile, Path: "d"}))
	require.True(t, p.Submit(&Task{ID: "e", Type: "unknown", Path: "e"}))
	p.Wait()

	mu.Lock()
	assert.Len(t, seen, 3)
	mu.Unlock()

	stats := p.Stats()
	assert.Equal(t, int64(5), stats.TotalTasks)
	assert.Equal(t, int64(3), stats.CompletedTasks)
	assert.Equal(t, int64(2), stats.FailedTasks)
	assert.Equal(t, int64(0), stats.QueuedTasks)
}

func TestPoolRejectsAfterStop(t *testing.T) {
	p := NewPool(1, 1)
	p.Start()
	p.Stop()
	assert.False(t, p.Submit(&Task{ID: "x", Type: TaskHashFile}))
	assert.NotPanics(t, p.Stop)
}

func TestPoolQueueFull(t *testing.T) {
	// пул не запущен, очередь никто не разбирает
	p := NewPool(1, 1)
	assert.True(t, p.Submit(&Task{ID: "1", Type: TaskHashFile}))
	assert.False(t, p.Submit(&Task{ID: "2", Type: TaskHashFile}))
	assert.Equal(t, 1, p.QueueLength())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.False(t, p.SubmitBlocking(ctx, &Task{ID: "3", Type: TaskHashFile}))
}

func writePNG(t *testing.T, path string, v uint8) {
	t.Helper()
	img := imaging.New(48, 48, color.NRGBA{R: v, G: v, B: v, A: 255})
	for i := 0; i < 48; i++ {
		img.Set(i, i, color.NRGBA{R: 255 - v, A: 255})
	}
	require.NoError(t, imaging.Save(img, path))
}

func TestHashServiceHashesFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	writePNG(t, a, 40)
	writePNG(t, b, 200)

	store, err := storage.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	hasher := phash.New(media.NewPreprocessor(), phash.DefaultOptions())
	cat := catalog.New(hasher, store, nil)

	p := NewPool(2, 10)
	svc := NewHashService(p, cat)
	p.Start()
	defer p.Stop()

	assert.True(t, svc.QueueFile(a))
	assert.True(t, svc.QueueFileBlocking(context.Background(), b))
	assert.True(t, svc.QueueFile(filepath.Join(dir, "missing.png")))
	p.Wait()
	assert.Zero(t, svc.ProcessingCount())

	for _, path := range []string{a, b} {
		r, err := cat.LookupPath(path)
		require.NoError(t, err)
		require.NotNil(t, r, path)
		assert.Len(t, r.Hash, 64)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, info.Size(), r.Size)
	}

	assert.Equal(t, int64(1), p.Stats().FailedTasks)

	assert.True(t, svc.QueueForget(a))
	p.Wait()
	r, err := cat.LookupPath(a)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestHashServiceRequeuesFileChangedWhileHashing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, 70)

	store, err := storage.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	cat := catalog.New(phash.New(media.NewPreprocessor(), phash.DefaultOptions()), store, nil)

	// пул не запущен: задачи остаются в очереди, обработчик вызываем сами
	p := NewPool(1, 10)
	svc := NewHashService(p, cat)

	require.True(t, svc.QueueFile(path))
	assert.False(t, svc.QueueFile(path), "queued file is not queued twice")
	assert.Equal(t, 1, p.QueueLength())

	// воркер начал читать файл, а файл снова изменился
	svc.markRunning(path)
	assert.True(t, svc.QueueFile(path))
	assert.Equal(t, 1, p.QueueLength())

	res, err := svc.handleHash(context.Background(), &Task{ID: "t1", Type: TaskHashFile, Path: path})
	require.NoError(t, err)
	assert.True(t, res.Success)

	// после завершения файл поставлен повторно
	assert.Equal(t, 2, p.QueueLength())
	assert.Equal(t, 1, svc.ProcessingCount())
}

func TestHashServiceNoRequeueWithoutChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b.png")
	writePNG(t, path, 150)

	cat := catalog.New(phash.New(media.NewPreprocessor(), phash.DefaultOptions()), nil, nil)
	p := NewPool(1, 10)
	svc := NewHashService(p, cat)

	require.True(t, svc.QueueFile(path))
	_, err := svc.handleHash(context.Background(), &Task{ID: "t1", Type: TaskHashFile, Path: path})
	require.NoError(t, err)

	assert.Equal(t, 1, p.QueueLength())
	assert.Zero(t, svc.ProcessingCount())
}
