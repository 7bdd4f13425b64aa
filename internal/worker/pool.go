package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/photocore/phashcore/internal/logger"
)

// TaskType определяет тип задачи
type TaskType string

const (
	TaskHashFile   TaskType = "hash_file"
	TaskForgetFile TaskType = "forget_file"
)

// Task представляет задачу для обработки
type Task struct {
	ID        string
	Type      TaskType
	Path      string
	CreatedAt time.Time
}

// TaskResult содержит результат выполнения задачи
type TaskResult struct {
	TaskID   string
	Path     string
	Success  bool
	Error    error
	Duration time.Duration
	Hash     string
}

// Handler обрабатывает задачи определенного типа
type Handler func(ctx context.Context, task *Task) (*TaskResult, error)

// Pool управляет пулом воркеров
type Pool struct {
	numWorkers  int
	taskTimeout time.Duration
	taskQueue   chan *Task
	resultQueue chan *TaskResult
	handlers    map[TaskType]Handler
	wg          sync.WaitGroup
	pending     sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	stopOnce    sync.Once
	onResult    func(*TaskResult)

	// Статистика
	stats Stats
}

// Stats содержит статистику пула
type Stats struct {
	TotalTasks     int64 `json:"total_tasks"`
	CompletedTasks int64 `json:"completed_tasks"`
	FailedTasks    int64 `json:"failed_tasks"`
	QueuedTasks    int64 `json:"queued_tasks"`
	ActiveWorkers  int64 `json:"active_workers"`
}

// NewPool создает новый пул воркеров
func NewPool(numWorkers int, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		numWorkers:  numWorkers,
		taskTimeout: time.Minute,
		taskQueue:   make(chan *Task, queueSize),
		resultQueue: make(chan *TaskResult, queueSize),
		handlers:    make(map[TaskType]Handler),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// RegisterHandler регистрирует обработчик для типа задачи
func (p *Pool) RegisterHandler(taskType TaskType, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[taskType] = handler
}

// OnResult задает функцию, которая получает каждый результат. Вызывать до Start.
func (p *Pool) OnResult(fn func(*TaskResult)) {
	p.onResult = fn
}

// Start запускает воркеры
func (p *Pool) Start() {
	logger.InfoLog.Infof("Starting worker pool with %d workers", p.numWorkers)

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	// Горутина для обработки результатов
	go p.processResults()
}

// Stop останавливает пул; задачи, оставшиеся в очереди, отбрасываются
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		logger.InfoLog.Info("Stopping worker pool...")
		p.cancel()
		p.wg.Wait()
		close(p.resultQueue)
		logger.InfoLog.Info("Worker pool stopped")
	})
}

// Submit добавляет задачу в очередь без ожидания
func (p *Pool) Submit(task *Task) bool {
	if p.ctx.Err() != nil {
		return false
	}
	p.pending.Add(1)
	select {
	case p.taskQueue <- task:
		atomic.AddInt64(&p.stats.TotalTasks, 1)
		atomic.AddInt64(&p.stats.QueuedTasks, 1)
		return true
	default:
		// Очередь переполнена
		p.pending.Done()
		logger.ErrorLog.Warnf("Task queue full, dropping task %s (%s)", task.ID, task.Path)
		return false
	}
}

// SubmitBlocking добавляет задачу, ожидая места в очереди
func (p *Pool) SubmitBlocking(ctx context.Context, task *Task) bool {
	p.pending.Add(1)
	select {
	case <-p.ctx.Done():
	case <-ctx.Done():
	case p.taskQueue <- task:
		atomic.AddInt64(&p.stats.TotalTasks, 1)
		atomic.AddInt64(&p.stats.QueuedTasks, 1)
		return true
	}
	p.pending.Done()
	return false
}

// Wait ждет завершения всех принятых задач
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Stats возвращает статистику пула
func (p *Pool) Stats() Stats {
	return Stats{
		TotalTasks:     atomic.LoadInt64(&p.stats.TotalTasks),
		CompletedTasks: atomic.LoadInt64(&p.stats.CompletedTasks),
		FailedTasks:    atomic.LoadInt64(&p.stats.FailedTasks),
		QueuedTasks:    atomic.LoadInt64(&p.stats.QueuedTasks),
		ActiveWorkers:  atomic.LoadInt64(&p.stats.ActiveWorkers),
	}
}

// QueueLength возвращает текущую длину очереди
func (p *Pool) QueueLength() int {
	return len(p.taskQueue)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			p.drain()
			return
		case task := <-p.taskQueue:
			p.processTask(id, task)
		}
	}
}

// drain снимает оставшиеся задачи, чтобы Wait не зависал после Stop
func (p *Pool) drain() {
	for {
		select {
		case <-p.taskQueue:
			atomic.AddInt64(&p.stats.QueuedTasks, -1)
			p.pending.Done()
		default:
			return
		}
	}
}

func (p *Pool) processTask(workerID int, task *Task) {
	atomic.AddInt64(&p.stats.ActiveWorkers, 1)
	atomic.AddInt64(&p.stats.QueuedTasks, -1)
	defer atomic.AddInt64(&p.stats.ActiveWorkers, -1)
	defer p.pending.Done()

	start := time.Now()

	p.mu.RLock()
	handler, ok := p.handlers[task.Type]
	p.mu.RUnlock()

	var result *TaskResult

	if !ok {
		result = &TaskResult{
			TaskID:   task.ID,
			Path:     task.Path,
			Success:  false,
			Duration: time.Since(start),
		}
		logger.ErrorLog.Errorf("Worker %d: no handler for task type %s", workerID, task.Type)
	} else {
		ctx, cancel := context.WithTimeout(p.ctx, p.taskTimeout)
		res, err := handler(ctx, task)
		cancel()

		if res != nil {
			result = res
		} else {
			result = &TaskResult{
				TaskID:   task.ID,
				Path:     task.Path,
				Success:  err == nil,
				Error:    err,
				Duration: time.Since(start),
			}
		}
	}

	if result.Success {
		atomic.AddInt64(&p.stats.CompletedTasks, 1)
	} else {
		atomic.AddInt64(&p.stats.FailedTasks, 1)
	}

	// Отправляем результат
	select {
	case p.resultQueue <- result:
	default:
		// Очередь результатов переполнена, результат только в статистике
	}
}

func (p *Pool) processResults() {
	for result := range p.resultQueue {
		if !result.Success && result.Error != nil {
			logger.ErrorLog.Errorf("Task %s (%s) failed: %v (took %v)", result.TaskID, result.Path, result.Error, result.Duration)
		}
		if p.onResult != nil {
			p.onResult(result)
		}
	}
}
