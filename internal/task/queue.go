package task

import (
	"context"
)

// Handler 处理来自执行队列的任务 ID。
type Handler func(ctx context.Context, taskID string) error

// Producer 负责向执行队列投递任务。
type Producer interface {
	Publish(ctx context.Context, taskID string) error
	Close() error
}

// Consumer 负责从执行队列消费任务。处理失败的任务不会被重新投递：
// 失败的任务保留在存储中，重试由调用方重新发起。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
