package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// WorkerPool 协程池
//
// 用于限制并发协程数量，后台任务（如新留言通知）不会拖慢请求处理
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
	log        *zap.Logger

	stopOnce  sync.Once
	completed atomic.Int64
	panicked  atomic.Int64
}

// Stats 协程池运行统计
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Capacity  int   `json:"capacity"`
	Completed int64 `json:"completed"`
	Panicked  int64 `json:"panicked"`
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - maxWorkers: 最大协程数
//   - queueSize: 任务队列大小
//   - log: 记录任务 panic，可为 nil
func NewWorkerPool(maxWorkers, queueSize int, log *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		log:        log,
	}
}

// Start 启动协程池
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit 提交任务
//
// 如果队列已满，会阻塞直到有空位或 ctx 结束
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	select {
	case p.taskQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 尝试提交任务
//
// 如果队列已满，立即返回 false
func (p *WorkerPool) TrySubmit(task func()) bool {
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop 停止接收任务并等待队列中的任务执行完
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.taskQueue)
	})
	p.wg.Wait()
}

// Stats 返回运行统计
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Workers:   p.maxWorkers,
		Queued:    len(p.taskQueue),
		Capacity:  cap(p.taskQueue),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Saturated 队列是否已满
func (p *WorkerPool) Saturated() bool {
	return cap(p.taskQueue) > 0 && len(p.taskQueue) >= cap(p.taskQueue)
}

// worker 工作协程，ctx 结束后先执行完已排队的任务再退出
func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// drain 执行队列中剩余的任务，不等待新任务
func (p *WorkerPool) drain() {
	for {
		select {
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		default:
			return
		}
	}
}

// run 执行任务（捕获 panic）
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.log.Error("worker task panicked", zap.Any("panic", r))
			return
		}
		p.completed.Add(1)
	}()
	task()
}
