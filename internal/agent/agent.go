// Package agent 把解析、构建、预演与执行串联成完整的任务流水线，
// 是系统的业务核心。
package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/NectaFi/necta-agents/internal/builder"
	xerrors "github.com/NectaFi/necta-agents/internal/errors"
	"github.com/NectaFi/necta-agents/internal/executor"
	"github.com/NectaFi/necta-agents/internal/llm"
	"github.com/NectaFi/necta-agents/internal/market"
	"github.com/NectaFi/necta-agents/internal/task"
	"github.com/NectaFi/necta-agents/pkg/logger"
)

// MarketProvider 是智能体需要的行情能力。
type MarketProvider interface {
	GetMarketData(ctx context.Context, network string) (market.Snapshot, error)
	GetPositionData(ctx context.Context, network string, queries []market.PositionQuery) ([]market.PositionData, error)
}

// SimulationOutcome 汇总一次预演以及可能的任务改写结果。
type SimulationOutcome struct {
	Simulation executor.Simulation
	Revised    string
	Thought    string
}

// Agent 协调任务构建、预演、改写与链上执行。
type Agent struct {
	builder    *builder.Builder
	simulator  *executor.Simulator
	executor   *executor.Executor
	store      task.Store
	market     MarketProvider
	network    string
	llmClient  llm.Client
	llmTimeout time.Duration
	logger     *slog.Logger
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithLLMClient 配置大模型客户端，预演失败时用于改写任务。
func WithLLMClient(client llm.Client) Option {
	return func(a *Agent) {
		a.llmClient = client
	}
}

// WithLLMTimeout 设置调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.llmTimeout = 0
			return
		}
		a.llmTimeout = timeout
	}
}

// WithLogger 注入自定义日志器。
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = l
	}
}

// New 创建一个 Agent。
func New(b *builder.Builder, sim *executor.Simulator, exec *executor.Executor, store task.Store, provider MarketProvider, network string, opts ...Option) *Agent {
	ag := &Agent{
		builder:   b,
		simulator: sim,
		executor:  exec,
		store:     store,
		market:    provider,
		network:   network,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	if ag.logger == nil {
		ag.logger = logger.Named("agent")
	}
	return ag
}

// BuildTransactions 并发处理多条意图，逐条隔离失败。
func (a *Agent) BuildTransactions(ctx context.Context, reqs []builder.Request) ([]builder.Outcome, int, error) {
	if a.builder == nil {
		return nil, 0, xerrors.New(xerrors.CodeInitializationFailure, "未配置任务构建器")
	}
	if len(reqs) == 0 {
		return nil, 0, xerrors.New(xerrors.CodeInvalidArgument, "意图列表不能为空")
	}
	outcomes, succeeded := a.builder.BuildBatch(ctx, reqs)
	a.logger.Info("批量构建完成",
		slog.Int("total", len(reqs)),
		slog.Int("succeeded", succeeded),
	)
	return outcomes, succeeded, nil
}

// Simulate 预演指定任务。预演失败且配置了大模型时，会用诊断信息
// 改写任务文本并就地重建任务，供下一轮预演使用。
func (a *Agent) Simulate(ctx context.Context, taskID string) (SimulationOutcome, error) {
	if a.simulator == nil {
		return SimulationOutcome{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置预演器")
	}

	t, err := a.store.Get(ctx, taskID)
	if err != nil {
		return SimulationOutcome{}, err
	}

	sim, err := a.simulator.Simulate(ctx, t)
	if err != nil {
		return SimulationOutcome{}, err
	}

	outcome := SimulationOutcome{Simulation: sim}
	if sim.Passed || a.llmClient == nil {
		return outcome, nil
	}

	revised, thought, err := a.refine(ctx, t, sim.Diagnosis)
	if err != nil {
		a.logger.Warn("任务改写失败",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()),
		)
		return outcome, nil
	}
	outcome.Revised = revised
	outcome.Thought = thought

	if _, err := a.builder.Build(ctx, revised, t.ID); err != nil {
		a.logger.Warn("改写后的任务重建失败",
			slog.String("task_id", t.ID),
			slog.String("revised", revised),
			slog.String("error", err.Error()),
		)
	}
	return outcome, nil
}

// SimulateAll 并发预演存储中的全部任务。单个任务的失败只记日志,
// 不影响其余任务的预演结果。
func (a *Agent) SimulateAll(ctx context.Context) ([]SimulationOutcome, error) {
	tasks, err := a.store.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SimulationOutcome, len(tasks))
	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(idx int, taskID string) {
			defer wg.Done()
			results[idx], errs[idx] = a.Simulate(ctx, taskID)
		}(i, t.ID)
	}
	wg.Wait()

	outcomes := make([]SimulationOutcome, 0, len(tasks))
	for i, err := range errs {
		if err != nil {
			if !stdErrors.Is(err, task.ErrTaskNotFound) {
				a.logger.Warn("任务预演失败",
					slog.String("task_id", tasks[i].ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		outcomes = append(outcomes, results[i])
	}
	return outcomes, nil
}

// Execute 执行指定任务。
func (a *Agent) Execute(ctx context.Context, taskID string) (executor.Result, error) {
	if a.executor == nil {
		return executor.Result{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置执行器")
	}
	return a.executor.Execute(ctx, taskID)
}

// Run 实现任务队列的处理回调:先预演再执行,预演未通过时阻止执行。
func (a *Agent) Run(ctx context.Context, taskID string) error {
	outcome, err := a.Simulate(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, task.ErrTaskNotFound) {
			return nil
		}
		return err
	}
	if !outcome.Simulation.Passed {
		return xerrors.New(xerrors.CodeSimulationFailed,
			fmt.Sprintf("任务 %s 预演未通过: %s", taskID, outcome.Simulation.Diagnosis))
	}

	result, err := a.Execute(ctx, taskID)
	if err != nil {
		return err
	}
	if !result.Success && result.FailedStep > 0 {
		return xerrors.New(xerrors.CodeExecutionFailed, result.Message)
	}
	return nil
}

// YieldOpportunities 返回收益率不低于 minAPY 的机会列表。
// minAPY 与行情数据同为基点表示。
func (a *Agent) YieldOpportunities(ctx context.Context, minAPY float64) ([]market.YieldOpportunity, error) {
	if a.market == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置行情客户端")
	}
	snapshot, err := a.market.GetMarketData(ctx, a.network)
	if err != nil {
		return nil, err
	}

	filtered := make([]market.YieldOpportunity, 0, len(snapshot.Tokens))
	for _, opp := range snapshot.Tokens {
		if opp.APY >= minAPY {
			filtered = append(filtered, opp)
		}
	}
	return filtered, nil
}

// ValidatePositions 校验一组持仓在当前行情下是否仍然合理。
func (a *Agent) ValidatePositions(ctx context.Context, queries []market.PositionQuery) ([]market.PositionData, error) {
	if a.market == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置行情客户端")
	}
	return a.market.GetPositionData(ctx, a.network, queries)
}

// refine 调用大模型把预演失败的任务改写为新的意图文本。
func (a *Agent) refine(ctx context.Context, t *task.Task, diagnosis string) (string, string, error) {
	llmCtx := ctx
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}

	opportunities := a.opportunityHints(ctx)
	resp, err := a.llmClient.Refine(llmCtx, llm.Request{
		Description:   t.Description,
		Diagnosis:     diagnosis,
		Opportunities: opportunities,
	})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return "", "", xerrors.Wrap(xerrors.CodeTimeout, err, "大模型改写超时")
		}
		return "", "", err
	}

	revised := strings.TrimSpace(resp.Revised)
	if revised == "" {
		return "", "", xerrors.New(xerrors.CodeParseFailed, "大模型未给出改写后的任务")
	}
	return revised, resp.Thought, nil
}

// opportunityHints 收集当前行情作为改写提示。行情获取失败时返回空。
func (a *Agent) opportunityHints(ctx context.Context) []llm.Opportunity {
	if a.market == nil {
		return nil
	}
	snapshot, err := a.market.GetMarketData(ctx, a.network)
	if err != nil {
		return nil
	}
	hints := make([]llm.Opportunity, 0, len(snapshot.Tokens))
	for _, opp := range snapshot.Tokens {
		hints = append(hints, llm.Opportunity{Name: opp.Name, APY: opp.APY})
	}
	return hints
}

var _ task.Runner = (*Agent)(nil)
