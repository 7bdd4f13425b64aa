package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/photocore/phashcore/internal/config"
	"github.com/photocore/phashcore/internal/logger"
)

const debounceDelay = 500 * time.Millisecond

// Operation — тип изменения файла
type Operation string

const (
	OpChanged Operation = "changed" // создан или изменен
	OpRemoved Operation = "removed" // удален или переименован
)

// FileEvent представляет событие файловой системы после группировки
type FileEvent struct {
	Path      string
	Operation Operation
	Time      time.Time
}

// FileQueue принимает изменения файлов
type FileQueue interface {
	QueueFile(path string) bool
	QueueForget(path string) bool
}

// Watcher наблюдает за медиа-директориями и ставит измененные изображения в очередь
type Watcher struct {
	cfg     *config.Config
	queue   FileQueue
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}

	// Debouncing - группировка событий
	pendingEvents map[string]*FileEvent
	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher создает новый наблюдатель
func NewWatcher(cfg *config.Config, queue FileQueue) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		cfg:           cfg,
		queue:         queue,
		watcher:       fsWatcher,
		stopChan:      make(chan struct{}),
		pendingEvents: make(map[string]*FileEvent),
	}, nil
}

// Start запускает наблюдение за директориями
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, path := range w.cfg.Storage.MediaPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			logger.ErrorLog.Errorf("Watcher: error resolving path %s: %v", path, err)
			continue
		}

		if err := w.addRecursive(absPath); err != nil {
			logger.ErrorLog.Errorf("Watcher: error adding path %s: %v", absPath, err)
		}
	}

	go w.eventLoop()

	logger.InfoLog.Infof("File watcher started, watching %d directories", len(w.WatchedPaths()))
	return nil
}

// Stop останавливает наблюдение
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	logger.InfoLog.Info("File watcher stopped")
	return w.watcher.Close()
}

// addRecursive добавляет директорию и все поддиректории
func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Продолжаем при ошибках доступа
		}

		if info.IsDir() {
			// Пропускаем скрытые директории
			if strings.HasPrefix(info.Name(), ".") && path != root {
				return filepath.SkipDir
			}

			if err := w.watcher.Add(path); err != nil {
				logger.ErrorLog.Errorf("Watcher: failed to watch %s: %v", path, err)
			}
		}

		return nil
	})
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.ErrorLog.Errorf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	var op Operation
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		op = OpChanged
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpRemoved
	default:
		return
	}

	// Новая директория — наблюдаем и за ней
	if op == OpChanged {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				logger.ErrorLog.Errorf("Watcher: failed to add new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	if !w.cfg.IsImage(filepath.Ext(event.Name)) {
		return
	}

	// Debouncing - откладываем обработку для группировки событий
	w.debounceMu.Lock()
	w.pendingEvents[event.Name] = &FileEvent{
		Path:      event.Name,
		Operation: op,
		Time:      time.Now(),
	}

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(debounceDelay, w.processPendingEvents)
	w.debounceMu.Unlock()
}

func (w *Watcher) processPendingEvents() {
	w.debounceMu.Lock()
	events := w.pendingEvents
	w.pendingEvents = make(map[string]*FileEvent)
	w.debounceMu.Unlock()

	for _, event := range events {
		logger.InfoLog.Infof("Watcher: %s %s", event.Operation, event.Path)

		switch event.Operation {
		case OpChanged:
			w.queue.QueueFile(event.Path)
		case OpRemoved:
			w.queue.QueueForget(event.Path)
		}
	}
}

// WatchedPaths возвращает список наблюдаемых путей
func (w *Watcher) WatchedPaths() []string {
	return w.watcher.WatchList()
}
