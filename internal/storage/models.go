package storage

import (
	"time"
)

// Record — сохраненный отпечаток изображения
type Record struct {
	Checksum   string    `json:"checksum"`              // SHA256 содержимого
	Signature  string    `json:"signature"`             // Формат хеша (dct-32-8-legacy)
	Hash       string    `json:"hash"`                  // Строка из '0' и '1'
	Path       string    `json:"path,omitempty"`        // Путь к файлу, если хешировался файл
	Size       int64     `json:"size"`                  // Размер в байтах
	ModifiedAt time.Time `json:"modified_at,omitempty"` // Дата модификации файла
	CreatedAt  time.Time `json:"created_at"`            // Дата добавления в БД
}

// pathEntry — индекс файла: что в нем лежало на момент хеширования
type pathEntry struct {
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Stats статистика хранилища
type Stats struct {
	Records int `json:"records"`
	Paths   int `json:"paths"`
}
