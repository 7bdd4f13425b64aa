package cache

import (
	"time"
)

// HashCache кэширует отпечатки по контрольной сумме содержимого.
// Ключ включает сигнатуру формата, чтобы хеши разных форматов не смешивались.
type HashCache struct {
	hashes *Cache[string]
}

// NewHashCache создает кэш отпечатков
func NewHashCache(ttl time.Duration, maxItems int) *HashCache {
	return &HashCache{
		hashes: New[string](Config{
			DefaultExpiration: ttl,
			CleanupInterval:   ttl / 2,
			MaxItems:          maxItems,
		}),
	}
}

func hashKey(signature, checksum string) string {
	return signature + ":" + checksum
}

// Get получает отпечаток из кэша
func (hc *HashCache) Get(signature, checksum string) (string, bool) {
	return hc.hashes.Get(hashKey(signature, checksum))
}

// Set сохраняет отпечаток в кэш
func (hc *HashCache) Set(signature, checksum, hash string) {
	hc.hashes.Set(hashKey(signature, checksum), hash)
}

// GetOrCompute возвращает отпечаток из кэша или вычисляет и запоминает его через fn
func (hc *HashCache) GetOrCompute(signature, checksum string, fn func() (string, error)) (string, error) {
	return hc.hashes.GetOrSet(hashKey(signature, checksum), fn)
}

// Clear очищает кэш
func (hc *HashCache) Clear() {
	hc.hashes.Clear()
}

// Stats возвращает статистику
func (hc *HashCache) Stats() Stats {
	return hc.hashes.Stats()
}

// Stop останавливает фоновую очистку
func (hc *HashCache) Stop() {
	hc.hashes.Stop()
}
