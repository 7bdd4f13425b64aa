package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/photocore/phashcore/internal/catalog"
	"github.com/photocore/phashcore/internal/config"
	"github.com/photocore/phashcore/internal/logger"
	"github.com/photocore/phashcore/internal/media"
	"github.com/photocore/phashcore/internal/worker"
)

var errScanStopped = errors.New("scan stopped")

// Queue принимает файлы на хеширование
type Queue interface {
	QueueFileBlocking(ctx context.Context, path string) bool
}

// Scanner обходит медиа-директории и ставит изображения в очередь на хеширование
type Scanner struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	queue   Queue

	mu       sync.RWMutex
	scanning bool
	progress ScanProgress
	inFlight map[string]bool // поставленные этим сканированием и еще не обработанные
	cancel   context.CancelFunc
	done     chan struct{}
}

// ScanProgress содержит информацию о прогрессе сканирования
type ScanProgress struct {
	Running     bool      `json:"running"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	TotalFiles  int       `json:"total_files"`
	Queued      int       `json:"queued"`
	Unchanged   int       `json:"unchanged"`
	Skipped     int       `json:"skipped"`
	Errors      int       `json:"errors"`
	Hashed      int       `json:"hashed"`
	Failed      int       `json:"failed"`
	CurrentPath string    `json:"current_path"`
}

// NewScanner создает новый сканер
func NewScanner(cfg *config.Config, cat *catalog.Catalog, queue Queue) *Scanner {
	return &Scanner{
		cfg:     cfg,
		catalog: cat,
		queue:   queue,
	}
}

// Start запускает сканирование всех медиа-путей в фоне
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return fmt.Errorf("scan already in progress")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.scanning = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.progress = ScanProgress{
		Running:   true,
		StartedAt: time.Now(),
	}
	s.inFlight = make(map[string]bool)
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.scan(ctx)
	}()
	return nil
}

// Run сканирует синхронно
func (s *Scanner) Run(ctx context.Context) (ScanProgress, error) {
	if err := s.Start(ctx); err != nil {
		return ScanProgress{}, err
	}
	s.Wait()
	return s.Progress(), nil
}

// Wait ждет окончания текущего сканирования
func (s *Scanner) Wait() {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// Stop останавливает текущее сканирование
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning && s.cancel != nil {
		s.cancel()
	}
}

// Progress возвращает текущий прогресс сканирования
func (s *Scanner) Progress() ScanProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// HandleResult учитывает результат хеширования файла, поставленного сканером.
// Подключается к пулу через Pool.OnResult.
func (s *Scanner) HandleResult(result *worker.TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inFlight[result.Path] {
		return
	}
	delete(s.inFlight, result.Path)
	if result.Success {
		s.progress.Hashed++
	} else {
		s.progress.Failed++
	}
}

// IsScanning возвращает true, если сканирование в процессе
func (s *Scanner) IsScanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanning
}

func (s *Scanner) update(fn func(p *ScanProgress)) {
	s.mu.Lock()
	fn(&s.progress)
	s.mu.Unlock()
}

func (s *Scanner) scan(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.cancel()
		s.progress.Running = false
		s.progress.FinishedAt = time.Now()
		s.mu.Unlock()
	}()

	for _, mediaPath := range s.cfg.Storage.MediaPaths {
		if ctx.Err() != nil {
			return
		}

		absPath, err := filepath.Abs(mediaPath)
		if err != nil {
			logger.ErrorLog.Errorf("Error resolving path %s: %v", mediaPath, err)
			continue
		}

		err = filepath.Walk(absPath, func(path string, info os.FileInfo, err error) error {
			if ctx.Err() != nil {
				return errScanStopped
			}

			if err != nil {
				s.update(func(p *ScanProgress) { p.Errors++ })
				return nil // Продолжаем сканирование
			}

			if info.IsDir() {
				// Пропускаем скрытые директории
				if strings.HasPrefix(info.Name(), ".") && path != absPath {
					return filepath.SkipDir
				}
				return nil
			}

			if !s.cfg.IsImage(filepath.Ext(path)) {
				return nil
			}

			s.update(func(p *ScanProgress) {
				p.TotalFiles++
				p.CurrentPath = path
			})
			s.visit(ctx, path, info)
			return nil
		})

		if err != nil && !errors.Is(err, errScanStopped) {
			logger.ErrorLog.Errorf("Error walking path %s: %v", mediaPath, err)
		}
	}

	p := s.Progress()
	logger.InfoLog.Infof("Scan completed: %d files, %d queued, %d unchanged, %d skipped, %d errors",
		p.TotalFiles, p.Queued, p.Unchanged, p.Skipped, p.Errors)
}

func (s *Scanner) visit(ctx context.Context, path string, info os.FileInfo) {
	// Если файл есть в БД и не изменился, пропускаем
	existing, err := s.catalog.LookupPath(path)
	if err != nil {
		logger.ErrorLog.Errorf("Error checking %s: %v", path, err)
		s.update(func(p *ScanProgress) { p.Errors++ })
		return
	}
	if existing != nil && existing.ModifiedAt.Equal(info.ModTime()) && existing.Size == info.Size() {
		s.update(func(p *ScanProgress) { p.Unchanged++ })
		return
	}

	if err := media.ValidateImageFile(path); err != nil {
		logger.InfoLog.Warnf("Skipping %s: %v", path, err)
		s.update(func(p *ScanProgress) { p.Skipped++ })
		return
	}

	// Отмечаем до постановки: результат может прийти раньше, чем вернется QueueFileBlocking
	s.update(func(*ScanProgress) { s.inFlight[path] = true })
	if s.queue.QueueFileBlocking(ctx, path) {
		s.update(func(p *ScanProgress) { p.Queued++ })
		return
	}
	s.update(func(*ScanProgress) { delete(s.inFlight, path) })
}
