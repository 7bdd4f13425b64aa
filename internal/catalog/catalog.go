// Package catalog сопоставляет содержимое изображений их отпечаткам.
// Отпечаток вычисляется один раз на контрольную сумму и формат,
// дальше берется из кэша или BadgerDB.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/photocore/phashcore/internal/cache"
	"github.com/photocore/phashcore/internal/logger"
	"github.com/photocore/phashcore/internal/phash"
	"github.com/photocore/phashcore/internal/storage"
)

// ErrNotFound — отпечаток с такой контрольной суммой не сохранен
var ErrNotFound = errors.New("fingerprint not found")

// Catalog объединяет хешер, кэш и хранилище
type Catalog struct {
	hasher    *phash.Hasher
	store     *storage.Store
	cache     *cache.HashCache
	signature string
}

// New создает каталог. store и hashCache могут быть nil.
func New(hasher *phash.Hasher, store *storage.Store, hashCache *cache.HashCache) *Catalog {
	return &Catalog{
		hasher:    hasher,
		store:     store,
		cache:     hashCache,
		signature: hasher.Options().Signature(),
	}
}

// Signature возвращает формат хешей каталога
func (c *Catalog) Signature() string {
	return c.signature
}

// Resolve возвращает отпечаток содержимого, вычисляя его при необходимости
func (c *Catalog) Resolve(ctx context.Context, data []byte) (*storage.Record, error) {
	checksum := storage.Checksum(data)
	if c.cache == nil {
		return c.load(ctx, checksum, data)
	}

	// Промах кэша идет в хранилище, затем в хешер
	var loaded *storage.Record
	hash, err := c.cache.GetOrCompute(c.signature, checksum, func() (string, error) {
		r, err := c.load(ctx, checksum, data)
		if err != nil {
			return "", err
		}
		loaded = r
		return r.Hash, nil
	})
	if err != nil {
		return nil, err
	}
	if loaded != nil {
		return loaded, nil
	}
	return c.record(checksum, hash, int64(len(data))), nil
}

// load берет отпечаток из хранилища или вычисляет и сохраняет его
func (c *Catalog) load(ctx context.Context, checksum string, data []byte) (*storage.Record, error) {
	if c.store != nil {
		r, err := c.store.GetRecord(c.signature, checksum)
		if err != nil {
			return nil, fmt.Errorf("failed to load fingerprint: %w", err)
		}
		if r != nil {
			return r, nil
		}
	}

	start := time.Now()
	hash, err := c.hasher.ComputeHash(ctx, data)
	if err != nil {
		return nil, err
	}
	logger.Entry(ctx).WithFields(logrus.Fields{
		"checksum": checksum,
		"took":     time.Since(start),
	}).Debug("Fingerprint computed")

	r := c.record(checksum, hash, int64(len(data)))
	if c.store != nil {
		if err := c.store.SaveRecord(r); err != nil {
			return nil, fmt.Errorf("failed to save fingerprint: %w", err)
		}
	}
	return r, nil
}

// Save сохраняет запись в хранилище и кэш
func (c *Catalog) Save(r *storage.Record) error {
	if c.store != nil {
		if err := c.store.SaveRecord(r); err != nil {
			return fmt.Errorf("failed to save fingerprint: %w", err)
		}
	}
	c.remember(r)
	return nil
}

// Lookup ищет сохраненный отпечаток по контрольной сумме
func (c *Catalog) Lookup(checksum string) (*storage.Record, error) {
	// Без хранилища полной записи нет, отдаем то, что есть в кэше
	if c.store == nil {
		if c.cache != nil {
			if hash, ok := c.cache.Get(c.signature, checksum); ok {
				return c.record(checksum, hash, 0), nil
			}
		}
		return nil, ErrNotFound
	}

	r, err := c.store.GetRecord(c.signature, checksum)
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprint: %w", err)
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// LookupPath возвращает отпечаток, сохраненный для файла; nil если файл не хешировался
func (c *Catalog) LookupPath(path string) (*storage.Record, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.GetRecordByPath(c.signature, path)
}

// List возвращает все сохраненные отпечатки формата каталога
func (c *Catalog) List() ([]*storage.Record, error) {
	if c.store == nil {
		return nil, nil
	}
	records, err := c.store.ListRecords(c.signature)
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	return records, nil
}

// ClearCache сбрасывает кэш отпечатков; хранилище не затрагивается
func (c *Catalog) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// Forget убирает файл из индекса путей
func (c *Catalog) Forget(path string) error {
	if c.store == nil {
		return nil
	}
	return c.store.DeleteByPath(c.signature, path)
}

// Compare вычисляет отпечатки двух изображений параллельно и сравнивает их
func (c *Catalog) Compare(ctx context.Context, imageA, imageB []byte, humanize bool) (*phash.DistanceResult, error) {
	var a, b *storage.Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a, err = c.Resolve(gctx, imageA)
		return err
	})
	g.Go(func() error {
		var err error
		b, err = c.Resolve(gctx, imageB)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return phash.NewDistanceResult(a.Hash, b.Hash, humanize)
}

func (c *Catalog) remember(r *storage.Record) {
	if c.cache != nil {
		c.cache.Set(c.signature, r.Checksum, r.Hash)
	}
}

func (c *Catalog) record(checksum, hash string, size int64) *storage.Record {
	return &storage.Record{
		Checksum:  checksum,
		Signature: c.signature,
		Hash:      hash,
		Size:      size,
		CreatedAt: time.Now(),
	}
}
