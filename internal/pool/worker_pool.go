// Package pool 提供一个有界协程池，用于通知分发等旁路任务，
// 隔离外部平台的延迟，避免拖慢摄取主路径。
package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPool 固定大小的协程池。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
	log        *zap.Logger
}

// NewWorkerPool 创建协程池。
//
// 参数:
//   - maxWorkers: 工作协程数
//   - queueSize: 任务队列容量
func NewWorkerPool(maxWorkers, queueSize int, log *zap.Logger) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		log:        log,
	}
}

// Start 启动全部工作协程。
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit 提交任务，队列满时阻塞。
func (p *WorkerPool) Submit(task func()) {
	p.taskQueue <- task
}

// TrySubmit 尝试提交任务，队列满时立即返回 false。
func (p *WorkerPool) TrySubmit(task func()) bool {
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop 关闭队列并等待在途任务完成。
func (p *WorkerPool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// run 执行单个任务并吸收 panic。
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
