package task

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue 使用带缓冲的 channel 实现进程内执行队列，适用于单进程
// 部署；多实例共享队列时换用 Redis 或 RabbitMQ 驱动。
type MemoryQueue struct {
	tasks  chan string
	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue 创建一个容量为 size 的内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{tasks: make(chan string, size)}
}

// Publish 将任务投递到队列，队列已关闭时拒绝投递。
func (q *MemoryQueue) Publish(ctx context.Context, taskID string) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return errors.New("队列已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.tasks <- taskID:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费任务。处理失败不重投，失败的
// 任务仍保留在存储中等待调用方重新构建后再投递。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case taskID, ok := <-q.tasks:
					if !ok {
						return
					}
					_ = handler(ctx, taskID)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭内存队列，之后的 Publish 将被拒绝。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		close(q.tasks)
		q.closed = true
	}
	q.mu.Unlock()
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
