package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/photocore/phashcore/internal/auth"
	"github.com/photocore/phashcore/internal/cache"
	"github.com/photocore/phashcore/internal/catalog"
	"github.com/photocore/phashcore/internal/config"
	"github.com/photocore/phashcore/internal/logger"
	"github.com/photocore/phashcore/internal/media"
	"github.com/photocore/phashcore/internal/phash"
	"github.com/photocore/phashcore/internal/scanner"
	"github.com/photocore/phashcore/internal/storage"
	"github.com/photocore/phashcore/internal/worker"
)

// Handlers содержит все HTTP-обработчики
type Handlers struct {
	cfg        *config.Config
	catalog    *catalog.Catalog
	store      *storage.Store
	scanner    *scanner.Scanner
	cache      *cache.HashCache
	workerPool *worker.Pool
}

// NewHandlers создает новый экземпляр обработчиков.
// store, scanner, cache и workerPool могут быть nil: тогда соответствующие разделы
// статистики пустые, а запуск сканирования недоступен.
func NewHandlers(
	cfg *config.Config,
	cat *catalog.Catalog,
	store *storage.Store,
	scanner *scanner.Scanner,
	hashCache *cache.HashCache,
	workerPool *worker.Pool,
) *Handlers {
	return &Handlers{
		cfg:        cfg,
		catalog:    cat,
		store:      store,
		scanner:    scanner,
		cache:      hashCache,
		workerPool: workerPool,
	}
}

// HashResponse — ответ на запрос хеша
type HashResponse struct {
	Hash      string `json:"hash"`
	Checksum  string `json:"checksum"`
	Signature string `json:"signature"`
}

// HammingRequest — два готовых хеша для сравнения
type HammingRequest struct {
	HashA    string `json:"hash_a"`
	HashB    string `json:"hash_b"`
	Humanize bool   `json:"humanize"`
}

// === API хеширования ===

// Health возвращает состояние сервиса
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]interface{}{
		"status":    "ok",
		"signature": h.catalog.Signature(),
	})
}

// Hash вычисляет перцептивный хеш загруженного изображения
func (h *Handlers) Hash(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxUploadSize)

	data, err := readUpload(r, "image")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	record, err := h.catalog.Resolve(r.Context(), data)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.jsonResponse(w, HashResponse{
		Hash:      record.Hash,
		Checksum:  record.Checksum,
		Signature: record.Signature,
	})
}

// Distance сравнивает два загруженных изображения
func (h *Handlers) Distance(w http.ResponseWriter, r *http.Request) {
	// Два файла в одном запросе
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.cfg.Server.MaxUploadSize)

	imageA, err := readUpload(r, "image_a")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	imageB, err := readUpload(r, "image_b")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	humanize, err := parseBool(r.FormValue("humanize"))
	if err != nil {
		h.jsonError(w, "invalid humanize value", http.StatusBadRequest)
		return
	}

	result, err := h.catalog.Compare(r.Context(), imageA, imageB, humanize)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.jsonResponse(w, result)
}

// Hamming сравнивает два готовых хеша
func (h *Handlers) Hamming(w http.ResponseWriter, r *http.Request) {
	var req HammingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request", http.StatusBadRequest)
		return
	}

	result, err := phash.CompareHashes(req.HashA, req.HashB, req.Humanize)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.jsonResponse(w, result)
}

// Fingerprint возвращает сохраненный отпечаток по контрольной сумме
func (h *Handlers) Fingerprint(w http.ResponseWriter, r *http.Request) {
	checksum := chi.URLParam(r, "checksum")

	record, err := h.catalog.Lookup(checksum)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.jsonResponse(w, record)
}

// === Административные API ===

// StartScan запускает сканирование медиа-директорий
func (h *Handlers) StartScan(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		h.jsonError(w, "scanner is not configured", http.StatusServiceUnavailable)
		return
	}

	// Сканирование переживает запрос, поэтому контекст не из r
	if err := h.scanner.Start(context.Background()); err != nil {
		h.jsonError(w, err.Error(), http.StatusConflict)
		return
	}

	logger.Entry(r.Context()).WithField("user", auth.GetUser(r)).Info("Scan started")
	h.jsonStatus(w, http.StatusAccepted, map[string]interface{}{
		"status":  "started",
		"message": "Scan started",
	})
}

// ListFingerprints возвращает все сохраненные отпечатки текущего формата
func (h *Handlers) ListFingerprints(w http.ResponseWriter, r *http.Request) {
	records, err := h.catalog.List()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if records == nil {
		records = []*storage.Record{}
	}

	h.jsonResponse(w, map[string]interface{}{
		"signature":    h.catalog.Signature(),
		"count":        len(records),
		"fingerprints": records,
	})
}

// ClearCache сбрасывает кэш отпечатков
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.catalog.ClearCache()
	logger.Entry(r.Context()).WithField("user", auth.GetUser(r)).Info("Fingerprint cache cleared")
	h.jsonResponse(w, map[string]string{"status": "cleared"})
}

// ScanProgress возвращает прогресс сканирования
func (h *Handlers) ScanProgress(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		h.jsonResponse(w, scanner.ScanProgress{})
		return
	}
	h.jsonResponse(w, h.scanner.Progress())
}

// Stats возвращает статистику хранилища, кэша и очереди
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"signature": h.catalog.Signature(),
	}

	if h.scanner != nil {
		stats["scanning"] = h.scanner.IsScanning()
	}
	if h.store != nil {
		storeStats, err := h.store.Stats()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		stats["storage"] = storeStats
	}
	if h.cache != nil {
		stats["cache"] = h.cache.Stats()
	}
	if h.workerPool != nil {
		queue := h.workerPool.Stats()
		stats["queue"] = map[string]interface{}{
			"total_tasks":     queue.TotalTasks,
			"completed_tasks": queue.CompletedTasks,
			"failed_tasks":    queue.FailedTasks,
			"queued_tasks":    queue.QueuedTasks,
			"active_workers":  queue.ActiveWorkers,
			"queue_length":    h.workerPool.QueueLength(),
		}
	}

	h.jsonResponse(w, stats)
}

// === Helpers ===

func readUpload(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, &requestError{fmt.Errorf("missing file %q: %w", field, err)}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, &requestError{fmt.Errorf("failed to read %q: %w", field, err)}
	}
	if len(data) == 0 {
		return nil, &requestError{fmt.Errorf("file %q is empty", field)}
	}
	return data, nil
}

func parseBool(value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	return strconv.ParseBool(value)
}

// requestError — ошибка в самом запросе
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// fail переводит ошибку в HTTP-статус
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		decodeErr *media.DecodeError
		reqErr    *requestError
		tooLarge  *http.MaxBytesError
	)

	switch {
	case errors.As(err, &tooLarge):
		h.jsonError(w, "upload too large", http.StatusRequestEntityTooLarge)
	case errors.As(err, &decodeErr):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &reqErr):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, phash.ErrLengthMismatch), errors.Is(err, phash.ErrInvalidHash):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, catalog.ErrNotFound):
		h.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.jsonError(w, "request canceled", http.StatusServiceUnavailable)
	default:
		logger.ErrorLog.WithFields(logger.Entry(r.Context()).Data).WithError(err).Error("Request failed")
		h.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handlers) jsonResponse(w http.ResponseWriter, data interface{}) {
	h.jsonStatus(w, http.StatusOK, data)
}

func (h *Handlers) jsonStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, message string, code int) {
	h.jsonStatus(w, code, map[string]string{"error": message})
}
