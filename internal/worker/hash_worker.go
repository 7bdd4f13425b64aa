package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/photocore/phashcore/internal/catalog"
	"github.com/photocore/phashcore/internal/logger"
)

// fileState — состояние файла в очереди хеширования
type fileState int

const (
	stateQueued  fileState = iota // ждет воркера
	stateRunning                  // файл уже читается
	stateRerun                    // файл изменился во время хеширования, нужен повтор
)

// HashService хеширует файлы в пуле воркеров
type HashService struct {
	pool    *Pool
	catalog *catalog.Catalog

	// Отслеживание задач в процессе
	mu         sync.Mutex
	processing map[string]fileState
}

// NewHashService создает сервис и регистрирует обработчики в пуле
func NewHashService(pool *Pool, cat *catalog.Catalog) *HashService {
	svc := &HashService{
		pool:       pool,
		catalog:    cat,
		processing: make(map[string]fileState),
	}

	pool.RegisterHandler(TaskHashFile, svc.handleHash)
	pool.RegisterHandler(TaskForgetFile, svc.handleForget)

	return svc
}

// QueueFile добавляет файл на хеширование. false — файл уже ждет в очереди или очередь полна.
// Если файл сейчас хешируется, он будет поставлен повторно после завершения.
func (s *HashService) QueueFile(path string) bool {
	return s.queue(path, func(t *Task) bool { return s.pool.Submit(t) })
}

// QueueFileBlocking добавляет файл, ожидая места в очереди
func (s *HashService) QueueFileBlocking(ctx context.Context, path string) bool {
	return s.queue(path, func(t *Task) bool { return s.pool.SubmitBlocking(ctx, t) })
}

func (s *HashService) queue(path string, submit func(*Task) bool) bool {
	s.mu.Lock()
	if state, ok := s.processing[path]; ok {
		if state == stateQueued {
			s.mu.Unlock()
			return false // Уже в очереди
		}
		// Содержимое могло поменяться после чтения
		s.processing[path] = stateRerun
		s.mu.Unlock()
		return true
	}
	s.processing[path] = stateQueued
	s.mu.Unlock()

	task := &Task{
		ID:        generateTaskID(),
		Type:      TaskHashFile,
		Path:      path,
		CreatedAt: time.Now(),
	}

	if !submit(task) {
		s.mu.Lock()
		delete(s.processing, path)
		s.mu.Unlock()
		return false
	}
	return true
}

// QueueForget удаляет файл из индекса в порядке общей очереди
func (s *HashService) QueueForget(path string) bool {
	return s.pool.Submit(&Task{
		ID:        generateTaskID(),
		Type:      TaskForgetFile,
		Path:      path,
		CreatedAt: time.Now(),
	})
}

// ProcessingCount возвращает количество файлов в обработке
func (s *HashService) ProcessingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processing)
}

// markRunning отмечает, что воркер начал читать файл
func (s *HashService) markRunning(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.processing[path]; ok && state == stateQueued {
		s.processing[path] = stateRunning
	}
}

// finish снимает файл с учета и ставит его повторно, если он менялся во время хеширования
func (s *HashService) finish(path string) {
	s.mu.Lock()
	rerun := s.processing[path] == stateRerun
	delete(s.processing, path)
	s.mu.Unlock()

	if rerun && !s.QueueFile(path) {
		logger.ErrorLog.Warnf("Failed to requeue changed file %s", path)
	}
}

func (s *HashService) handleHash(ctx context.Context, task *Task) (*TaskResult, error) {
	s.markRunning(task.Path)
	defer s.finish(task.Path)

	start := time.Now()
	fail := func(err error) (*TaskResult, error) {
		return &TaskResult{
			TaskID:   task.ID,
			Path:     task.Path,
			Success:  false,
			Error:    err,
			Duration: time.Since(start),
		}, err
	}

	info, err := os.Stat(task.Path)
	if err != nil {
		return fail(fmt.Errorf("failed to stat file: %w", err))
	}

	data, err := os.ReadFile(task.Path)
	if err != nil {
		return fail(fmt.Errorf("failed to read file: %w", err))
	}

	// Проверяем контекст
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	record, err := s.catalog.Resolve(ctx, data)
	if err != nil {
		return fail(err)
	}

	record.Path = task.Path
	record.Size = info.Size()
	record.ModifiedAt = info.ModTime()
	if err := s.catalog.Save(record); err != nil {
		return fail(err)
	}

	logger.Entry(ctx).WithField("path", task.Path).Debugf("Hashed %s", record.Hash)

	return &TaskResult{
		TaskID:   task.ID,
		Path:     task.Path,
		Success:  true,
		Duration: time.Since(start),
		Hash:     record.Hash,
	}, nil
}

func (s *HashService) handleForget(ctx context.Context, task *Task) (*TaskResult, error) {
	return nil, s.catalog.Forget(task.Path)
}

var taskSeq atomic.Uint64

func generateTaskID() string {
	data := fmt.Sprintf("%d-%d", time.Now().UnixNano(), taskSeq.Add(1))
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
