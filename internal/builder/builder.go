// Package builder 将自由文本的交易意图转换为可执行的任务。
// 流程为:解析意图 -> 解析协议地址 -> 调用交易构建服务 -> 持久化任务。
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/NectaFi/necta-agents/internal/chain"
	"github.com/NectaFi/necta-agents/internal/console"
	xerrors "github.com/NectaFi/necta-agents/internal/errors"
	"github.com/NectaFi/necta-agents/internal/intent"
	"github.com/NectaFi/necta-agents/internal/protocol"
	"github.com/NectaFi/necta-agents/internal/task"
	"github.com/NectaFi/necta-agents/pkg/logger"
)

// ConsoleBuilder 抽象交易构建服务,便于测试替换。
type ConsoleBuilder interface {
	BuildTransaction(ctx context.Context, req console.BuildRequest) (*console.BuildResponse, error)
}

// Option 配置 Builder 的可选项。
type Option func(*Builder)

// WithLogger 注入自定义日志器。
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// Builder 负责把一条意图文本变成一个已持久化的任务。
type Builder struct {
	resolver *protocol.Resolver
	console  ConsoleBuilder
	store    task.Store
	def      chain.Definition
	account  string
	logger   *slog.Logger
}

// New 创建 Builder。account 为执行账户地址,写入构建请求。
func New(resolver *protocol.Resolver, consoleClient ConsoleBuilder, store task.Store, def chain.Definition, account string, opts ...Option) *Builder {
	b := &Builder{
		resolver: resolver,
		console:  consoleClient,
		store:    store,
		def:      def,
		account:  account,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Named("builder")
	}
	return b
}

// Build 处理一条意图文本。taskID 非空时更新已有任务,否则创建新任务。
// 构建结果为空步骤时不落库,直接返回构建失败。
func (b *Builder) Build(ctx context.Context, text string, taskID string) (*task.Task, error) {
	parsed, err := intent.Parse(text)
	if err != nil {
		return nil, err
	}

	resolution, err := b.resolver.Resolve(ctx, parsed.Target, parsed.SourceToken)
	if err != nil {
		return nil, err
	}

	scaled, err := scaleAmount(parsed.Amount, b.def.USDCDecimal)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("金额 %q 无法换算", parsed.Amount))
	}

	resp, err := b.console.BuildTransaction(ctx, console.BuildRequest{
		AccountAddress:  b.account,
		Type:            strings.ToLower(string(parsed.Type)),
		ProtocolAddress: resolution.Address.Hex(),
		TokenAddress:    b.def.USDCAddress,
		Amount:          scaled,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Transactions) == 0 {
		return nil, xerrors.New(xerrors.CodeBuildFailed, fmt.Sprintf("意图 %q 未生成任何交易步骤", text))
	}

	steps := make([]task.Step, 0, len(resp.Transactions))
	for _, tx := range resp.Transactions {
		steps = append(steps, task.Step{
			To:        tx.To,
			Data:      tx.Data,
			Value:     tx.Value,
			Operation: tx.Operation,
		})
	}

	candidate := &task.Task{
		ID:          taskID,
		Description: text,
		Steps:       steps,
		FromToken: task.TokenInfo{
			Symbol:   parsed.SourceToken,
			Decimals: b.def.USDCDecimal,
			Address:  b.def.USDCAddress,
		},
		ToToken: task.TokenInfo{
			Symbol:   targetSymbol(parsed),
			Decimals: b.def.USDCDecimal,
			Address:  resolution.Address.Hex(),
		},
		// 任务记录保留人类可读的金额,缩放后的整数只进构建请求。
		FromAmount:   parsed.Amount,
		OutputAmount: parsed.Amount,
	}

	var persisted *task.Task
	if taskID != "" {
		persisted, err = b.store.Update(ctx, candidate)
	} else {
		persisted, err = b.store.Create(ctx, candidate)
	}
	if err != nil {
		return nil, err
	}
	if persisted == nil || persisted.ID == "" {
		return nil, xerrors.New(xerrors.CodeStoreFailure, "任务存储未返回有效的任务标识")
	}

	b.logger.Info("任务构建完成",
		slog.String("task_id", persisted.ID),
		slog.String("protocol", resolution.Opportunity.Name),
		slog.Int("steps", len(persisted.Steps)),
	)
	return persisted, nil
}

// Request 是批量构建的一项输入。TaskID 非空时更新既有任务。
type Request struct {
	Text   string
	TaskID string
}

// Outcome 记录批量构建中单条意图的结果,Task 与 Err 互斥。
type Outcome struct {
	Input Request
	Task  *task.Task
	Err   error
}

// BuildBatch 并发构建多条意图。任意一条失败不影响其余,
// 返回的结果与输入顺序一一对应,以及成功数量。
func (b *Builder) BuildBatch(ctx context.Context, reqs []Request) ([]Outcome, int) {
	outcomes := make([]Outcome, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(idx int, input Request) {
			defer wg.Done()
			t, err := b.Build(ctx, input.Text, input.TaskID)
			outcomes[idx] = Outcome{Input: input, Task: t, Err: err}
		}(i, req)
	}
	wg.Wait()

	succeeded := 0
	for _, out := range outcomes {
		if out.Err == nil {
			succeeded++
		}
	}
	return outcomes, succeeded
}

// targetSymbol 给出报告用的目标符号:无目标的 swap 等场景退回机会名称。
func targetSymbol(parsed intent.ParsedIntent) string {
	if parsed.Target != "" {
		return parsed.Target
	}
	return parsed.SourceToken
}

// scaleAmount 把十进制金额换算为链上最小单位的整数字符串。
func scaleAmount(amount string, decimals int) (string, error) {
	rat, ok := new(big.Rat).SetString(amount)
	if !ok {
		return "", fmt.Errorf("金额 %q 不是合法的十进制数", amount)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat.Mul(rat, new(big.Rat).SetInt(scale))
	if !rat.IsInt() {
		return "", fmt.Errorf("金额 %q 的精度超过 %d 位小数", amount, decimals)
	}
	return rat.Num().String(), nil
}
