package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photocore/phashcore/internal/cache"
	"github.com/photocore/phashcore/internal/phash"
	"github.com/photocore/phashcore/internal/storage"
)

var errTooShort = errors.New("too short")

// countingPreprocessor читает байты как одноканальный кадр и считает вызовы
type countingPreprocessor struct {
	calls atomic.Int32
}

func (p *countingPreprocessor) Preprocess(_ context.Context, data []byte, size int) (*phash.Frame, error) {
	p.calls.Add(1)
	if len(data) < size*size {
		return nil, errTooShort
	}
	return &phash.Frame{Size: size, Channels: 1, Pix: data[:size*size]}, nil
}

func image(fill byte) []byte {
	data := make([]byte, 32*32)
	for i := range data {
		data[i] = fill + byte(i%7)
	}
	return data
}

func newCatalog(t *testing.T) (*Catalog, *countingPreprocessor) {
	t.Helper()
	pre := &countingPreprocessor{}
	hasher := phash.New(pre, phash.Options{Addressing: phash.AddressingRowMajor})

	store, err := storage.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hc := cache.NewHashCache(time.Minute, 100)
	t.Cleanup(hc.Stop)

	return New(hasher, store, hc), pre
}

func TestResolveComputesOnce(t *testing.T) {
	c, pre := newCatalog(t)
	ctx := context.Background()
	data := image(10)

	first, err := c.Resolve(ctx, data)
	require.NoError(t, err)
	assert.Len(t, first.Hash, 64)
	assert.Equal(t, "dct-32-8-row_major", first.Signature)
	assert.Equal(t, storage.Checksum(data), first.Checksum)

	second, err := c.Resolve(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, int32(1), pre.calls.Load())

	stored, err := c.Lookup(first.Checksum)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, stored.Hash)
}

func TestResolveFallsBackToStore(t *testing.T) {
	c, pre := newCatalog(t)
	ctx := context.Background()
	data := image(50)

	r, err := c.Resolve(ctx, data)
	require.NoError(t, err)

	c.ClearCache()
	again, err := c.Resolve(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, r.Hash, again.Hash)
	assert.Equal(t, int32(1), pre.calls.Load())
}

func TestLookupNotFound(t *testing.T) {
	c, _ := newCatalog(t)
	_, err := c.Lookup("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	bare := New(phash.New(&countingPreprocessor{}, phash.DefaultOptions()), nil, nil)
	_, err = bare.Lookup("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompare(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	same, err := c.Compare(ctx, image(1), image(1), true)
	require.NoError(t, err)
	assert.Equal(t, 0, same.Distance)
	assert.Equal(t, phash.Identical, same.Similarity)

	_, err = c.Compare(ctx, image(1), []byte{1}, false)
	assert.ErrorIs(t, err, errTooShort)
}

func TestResolveWithoutCache(t *testing.T) {
	pre := &countingPreprocessor{}
	store, err := storage.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	c := New(phash.New(pre, phash.DefaultOptions()), store, nil)
	ctx := context.Background()

	first, err := c.Resolve(ctx, image(3))
	require.NoError(t, err)
	second, err := c.Resolve(ctx, image(3))
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, int32(1), pre.calls.Load())
}

func TestListAndClearCache(t *testing.T) {
	c, pre := newCatalog(t)
	ctx := context.Background()

	for _, fill := range []byte{1, 20, 40} {
		_, err := c.Resolve(ctx, image(fill))
		require.NoError(t, err)
	}

	records, err := c.List()
	require.NoError(t, err)
	assert.Len(t, records, 3)

	c.ClearCache()
	assert.Zero(t, c.cache.Stats().Items)

	// после сброса кэша отпечаток берется из хранилища, а не пересчитывается
	_, err = c.Resolve(ctx, image(1))
	require.NoError(t, err)
	assert.Equal(t, int32(3), pre.calls.Load())
	assert.Equal(t, 1, c.cache.Stats().Items)
}
