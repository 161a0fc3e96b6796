package task

import (
	"context"
	"log/slog"

	xerrors "github.com/NectaFi/necta-agents/internal/errors"
	"github.com/NectaFi/necta-agents/pkg/logger"
)

// Runner 定义处理器所需的执行能力：对一个已落库的任务完成
// 模拟加执行的完整流程。
type Runner interface {
	Run(ctx context.Context, taskID string) error
}

// Processor 从执行队列消费任务 ID 并交给 Runner。每个任务至多被一次
// 投递处理一次；失败不自动重试，由调用方重新构建后再投递。
type Processor struct {
	runner      Runner
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(runner Runner, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		runner:      runner,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，直到上下文取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil || p.runner == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if err := p.runner.Run(ctx, taskID); err != nil {
		p.log().Warn("任务处理失败",
			slog.String("task_id", taskID),
			slog.String("error_code", string(xerrors.CodeOf(err))),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

func (p *Processor) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return logger.L()
}
