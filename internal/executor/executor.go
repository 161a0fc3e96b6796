package executor

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "github.com/NectaFi/necta-agents/internal/errors"
	"github.com/NectaFi/necta-agents/internal/task"
	"github.com/NectaFi/necta-agents/internal/wallet"
	"github.com/NectaFi/necta-agents/pkg/logger"
)

// Indexer 是执行成功后的交易回报端,通常由交易构建服务提供。
type Indexer interface {
	IndexTransaction(ctx context.Context, transactionHash string) error
}

// Result 汇报一次执行的结局。失败时 Hashes 仍包含失败前已确认的交易,
// 任务本身保持原样以便重试;成功时任务已从存储中删除。
type Result struct {
	TaskID      string
	Description string
	Success     bool
	Hashes      []string
	Message     string
	FailedStep  int
}

// Option 配置 Executor 的可选项。
type Option func(*Executor)

// WithIndexer 注入交易回报端,执行成功后逐笔上报交易哈希。
func WithIndexer(indexer Indexer) Option {
	return func(e *Executor) {
		e.indexer = indexer
	}
}

// WithReceiptTimeout 设置单笔交易等待回执的上限。
func WithReceiptTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.receiptTimeout = d
		}
	}
}

// WithLogger 注入自定义日志器。
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// Executor 顺序执行任务步骤:逐笔发送、等待确认,首个失败即停。
type Executor struct {
	store          task.Store
	client         wallet.Client
	indexer        Indexer
	receiptTimeout time.Duration
	logger         *slog.Logger
}

// New 创建执行器。
func New(store task.Store, client wallet.Client, opts ...Option) *Executor {
	e := &Executor{
		store:          store,
		client:         client,
		receiptTimeout: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Named("executor")
	}
	return e
}

// Execute 执行指定任务。任务不存在时返回友好结果而非错误,
// 并发执行同一任务的第二个调用会落到这个分支。
func (e *Executor) Execute(ctx context.Context, taskID string) (Result, error) {
	t, err := e.store.Get(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, task.ErrTaskNotFound) {
			return Result{
				TaskID:  taskID,
				Message: fmt.Sprintf("Task %s not found; it may have already been executed.", taskID),
			}, nil
		}
		return Result{}, err
	}

	result := Result{TaskID: t.ID, Description: t.Description}
	for i, step := range t.Steps {
		hash, err := e.executeStep(ctx, step)
		if err != nil {
			result.FailedStep = i + 1
			result.Message = failureMessage(t, i+1, result.Hashes, err)
			e.logger.Warn("任务执行中断",
				slog.String("task_id", t.ID),
				slog.Int("failed_step", i+1),
				slog.String("error", err.Error()),
			)
			logger.Audit().Warn("task_execution_failed",
				slog.String("task_id", t.ID),
				slog.Int("failed_step", i+1),
				slog.Int("confirmed", len(result.Hashes)),
			)
			return result, nil
		}
		result.Hashes = append(result.Hashes, hash)
		e.logger.Info("任务步骤已确认",
			slog.String("task_id", t.ID),
			slog.Int("step", i+1),
			slog.String("tx_hash", hash),
		)
	}

	if err := e.store.Delete(ctx, t.ID); err != nil {
		return Result{}, xerrors.Wrap(xerrors.CodeStoreFailure, err,
			fmt.Sprintf("任务 %s 执行完成但删除失败", t.ID))
	}

	e.reportHashes(ctx, t.ID, result.Hashes)

	result.Success = true
	result.Message = successMessage(t, result.Hashes)
	logger.Audit().Info("task_executed",
		slog.String("task_id", t.ID),
		slog.Int("steps", len(result.Hashes)),
	)
	return result, nil
}

// executeStep 发送单个步骤并等待回执,返回交易哈希。
func (e *Executor) executeStep(ctx context.Context, step task.Step) (string, error) {
	msg, err := callMessage(e.client.Address(), step)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeExecutionFailed, err, "任务步骤无法解码")
	}

	hash, err := e.client.SendTransaction(ctx, *msg.To, msg.Value, msg.Data)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeExecutionFailed, err, "发送交易失败")
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.receiptTimeout)
	defer cancel()
	if _, err := e.client.WaitReceipt(waitCtx, hash); err != nil {
		return "", xerrors.Wrap(xerrors.CodeExecutionFailed, err,
			fmt.Sprintf("交易 %s 未确认", hash.Hex()))
	}
	return hash.Hex(), nil
}

// reportHashes 把已确认的交易上报给回报端。上报失败只记日志,
// 不影响执行结果。
func (e *Executor) reportHashes(ctx context.Context, taskID string, hashes []string) {
	if e.indexer == nil {
		return
	}
	for _, hash := range hashes {
		if err := e.indexer.IndexTransaction(ctx, hash); err != nil {
			e.logger.Warn("交易上报失败",
				slog.String("task_id", taskID),
				slog.String("tx_hash", hash),
				slog.String("error", err.Error()),
			)
		}
	}
}

func successMessage(t *task.Task, hashes []string) string {
	return fmt.Sprintf("Task completed at %s: %s. Transactions: %s",
		time.Now().UTC().Format(time.RFC3339), t.Description, strings.Join(hashes, ", "))
}

func failureMessage(t *task.Task, failedStep int, hashes []string, cause error) string {
	confirmed := "none"
	if len(hashes) > 0 {
		confirmed = strings.Join(hashes, ", ")
	}
	return fmt.Sprintf("Task failed at step %d of %d at %s: %s. Confirmed transactions: %s. Reason: %v",
		failedStep, len(t.Steps), time.Now().UTC().Format(time.RFC3339), t.Description, confirmed, cause)
}
