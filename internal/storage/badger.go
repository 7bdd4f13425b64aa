package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// Префиксы ключей для разных типов данных
const (
	prefixRecord = "fp:"   // fp:{signature}:{checksum} -> Record
	prefixPath   = "path:" // path:{signature}:{pathID} -> pathEntry
)

func recordKey(signature, checksum string) []byte {
	return []byte(prefixRecord + signature + ":" + checksum)
}

func pathKey(signature, path string) []byte {
	return []byte(prefixPath + signature + ":" + GenerateID(path))
}

// Store обертка над BadgerDB
type Store struct {
	db *badger.DB
}

// NewStore создает новое хранилище
func NewStore(dbPath string) (*Store, error) {
	// Создаем директорию для БД если не существует
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Store{db: db}, nil
}

// NewMemoryStore создает хранилище без файлов на диске
func NewMemoryStore() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close закрывает хранилище
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecord сохраняет отпечаток и, если указан путь, индекс путь -> checksum
func (s *Store) SaveRecord(r *Record) error {
	if r.Checksum == "" || r.Signature == "" {
		return fmt.Errorf("record requires checksum and signature")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}

		if err := txn.Set(recordKey(r.Signature, r.Checksum), data); err != nil {
			return err
		}

		if r.Path == "" {
			return nil
		}
		entry, err := json.Marshal(pathEntry{
			Checksum:   r.Checksum,
			Size:       r.Size,
			ModifiedAt: r.ModifiedAt,
		})
		if err != nil {
			return err
		}
		return txn.Set(pathKey(r.Signature, r.Path), entry)
	})
}

// GetRecord получает отпечаток по контрольной сумме; nil если не найден
func (s *Store) GetRecord(signature, checksum string) (*Record, error) {
	var record *Record
	err := s.db.View(func(txn *badger.Txn) error {
		r, err := getRecord(txn, signature, checksum)
		record = r
		return err
	})
	return record, err
}

func getRecord(txn *badger.Txn, signature, checksum string) (*Record, error) {
	item, err := txn.Get(recordKey(signature, checksum))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetRecordByPath получает отпечаток файла по пути; nil если путь не индексирован
func (s *Store) GetRecordByPath(signature, path string) (*Record, error) {
	var record *Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pathKey(signature, path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var entry pathEntry
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
		if err != nil {
			return err
		}

		r, err := getRecord(txn, signature, entry.Checksum)
		if err != nil || r == nil {
			return err
		}
		// Запись по checksum общая для одинаковых файлов, атрибуты файла берем из индекса
		r.Path = path
		r.Size = entry.Size
		r.ModifiedAt = entry.ModifiedAt
		record = r
		return nil
	})
	return record, err
}

// DeleteByPath удаляет индекс пути. Запись отпечатка остается: ее может разделять другой файл.
func (s *Store) DeleteByPath(signature, path string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(pathKey(signature, path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// ListRecords возвращает все отпечатки указанного формата
func (s *Store) ListRecords(signature string) ([]*Record, error) {
	var records []*Record
	prefix := []byte(prefixRecord + signature + ":")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			records = append(records, &r)
		}
		return nil
	})
	return records, err
}

// Stats считает записи и пути по всем форматам
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		records := []byte(prefixRecord)
		for it.Seek(records); it.ValidForPrefix(records); it.Next() {
			stats.Records++
		}

		paths := []byte(prefixPath)
		for it.Seek(paths); it.ValidForPrefix(paths); it.Next() {
			stats.Paths++
		}
		return nil
	})
	return stats, err
}
