package builder

import (
	"context"
	stdErrors "errors"
	"testing"

	"github.com/NectaFi/necta-agents/internal/chain"
	"github.com/NectaFi/necta-agents/internal/console"
	xerrors "github.com/NectaFi/necta-agents/internal/errors"
	"github.com/NectaFi/necta-agents/internal/market"
	"github.com/NectaFi/necta-agents/internal/protocol"
	"github.com/NectaFi/necta-agents/internal/task"
)

const testAccount = "0x1111111111111111111111111111111111111111"

var testDefinition = chain.Definition{
	ChainID:     8453,
	Name:        "base",
	USDCAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	USDCDecimal: 6,
	Protocols: map[string]string{
		"aave": "0x0595D1Df64279ddB51F1bdC405Fe2D0b4Cc86681",
	},
}

type stubMarket struct{}

func (stubMarket) GetMarketData(ctx context.Context, network string) (market.Snapshot, error) {
	return market.Snapshot{Tokens: []market.YieldOpportunity{
		{Name: "aave-v3 usdc lending", APY: 512.0},
	}}, nil
}

type stubConsole struct {
	steps    int
	requests []console.BuildRequest
}

func (s *stubConsole) BuildTransaction(ctx context.Context, req console.BuildRequest) (*console.BuildResponse, error) {
	s.requests = append(s.requests, req)
	resp := &console.BuildResponse{}
	for i := 0; i < s.steps; i++ {
		resp.Transactions = append(resp.Transactions, console.Transaction{
			To:        "0x0595D1Df64279ddB51F1bdC405Fe2D0b4Cc86681",
			Data:      "0xdeadbeef",
			Value:     "0",
			Operation: 0,
		})
	}
	return resp, nil
}

func newTestBuilder(consoleClient ConsoleBuilder, store task.Store) *Builder {
	resolver := protocol.NewResolver(stubMarket{}, testDefinition)
	return New(resolver, consoleClient, store, testDefinition, testAccount)
}

func TestBuildCreatesTask(t *testing.T) {
	store := task.NewMemoryStore()
	consoleClient := &stubConsole{steps: 2}
	b := newTestBuilder(consoleClient, store)

	built, err := b.Build(context.Background(), "Deposit 10.5 USDC into Aave", "")
	if err != nil {
		t.Fatalf("构建失败: %v", err)
	}
	if built.ID == "" {
		t.Fatalf("任务未分配标识")
	}
	if len(built.Steps) != 2 {
		t.Fatalf("步骤数量不符, got %d", len(built.Steps))
	}
	if built.FromAmount != "10.5" {
		t.Fatalf("任务金额应保留原样, got %s", built.FromAmount)
	}
	if built.ToToken.Symbol != "Aave" {
		t.Fatalf("目标符号不符, got %s", built.ToToken.Symbol)
	}
	if len(consoleClient.requests) != 1 {
		t.Fatalf("构建服务调用次数不符, got %d", len(consoleClient.requests))
	}
	req := consoleClient.requests[0]
	if req.AccountAddress != testAccount || req.Type != "deposit" || req.Amount != "10500000" {
		t.Fatalf("构建请求不符: %+v", req)
	}

	stored, err := store.Get(context.Background(), built.ID)
	if err != nil {
		t.Fatalf("读取任务失败: %v", err)
	}
	if stored.Description != "Deposit 10.5 USDC into Aave" {
		t.Fatalf("任务描述不符: %s", stored.Description)
	}
}

func TestBuildUpdatesExistingTask(t *testing.T) {
	store := task.NewMemoryStore()
	b := newTestBuilder(&stubConsole{steps: 1}, store)

	first, err := b.Build(context.Background(), "Deposit 10 USDC into Aave", "")
	if err != nil {
		t.Fatalf("首次构建失败: %v", err)
	}

	second, err := b.Build(context.Background(), "Deposit 20 USDC into Aave", first.ID)
	if err != nil {
		t.Fatalf("更新构建失败: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("更新后任务标识变化: %s -> %s", first.ID, second.ID)
	}
	if second.CreatedAt != first.CreatedAt {
		t.Fatalf("更新后创建时间变化")
	}
	if second.FromAmount != "20" {
		t.Fatalf("更新后金额不符: %s", second.FromAmount)
	}

	all, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("列举任务失败: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("更新不应产生新任务, got %d", len(all))
	}
}

func TestBuildZeroStepsNotPersisted(t *testing.T) {
	store := task.NewMemoryStore()
	b := newTestBuilder(&stubConsole{steps: 0}, store)

	_, err := b.Build(context.Background(), "Deposit 10 USDC into Aave", "")
	if !stdErrors.Is(err, xerrors.New(xerrors.CodeBuildFailed, "")) {
		t.Fatalf("期望 BUILD_FAILED, got %v", err)
	}

	all, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("列举任务失败: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("空步骤任务不应落库, got %d", len(all))
	}
}

func TestBuildRejectsExcessPrecision(t *testing.T) {
	store := task.NewMemoryStore()
	b := newTestBuilder(&stubConsole{steps: 1}, store)

	_, err := b.Build(context.Background(), "Deposit 1.0000001 USDC into Aave", "")
	if !stdErrors.Is(err, xerrors.New(xerrors.CodeInvalidArgument, "")) {
		t.Fatalf("期望 INVALID_ARGUMENT, got %v", err)
	}
}

func TestBuildBatchIsolatesFailures(t *testing.T) {
	store := task.NewMemoryStore()
	b := newTestBuilder(&stubConsole{steps: 1}, store)

	reqs := []Request{
		{Text: "Deposit 10 USDC into Aave"},
		{Text: "do something vague"},
		{Text: "Withdraw 5 USDC from Aave"},
	}
	outcomes, succeeded := b.BuildBatch(context.Background(), reqs)
	if succeeded != 2 {
		t.Fatalf("成功数量不符, got %d", succeeded)
	}
	if len(outcomes) != len(reqs) {
		t.Fatalf("结果数量不符, got %d", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[0].Task == nil {
		t.Fatalf("第一条应成功: %v", outcomes[0].Err)
	}
	if outcomes[1].Err == nil || outcomes[1].Task != nil {
		t.Fatalf("第二条应失败")
	}
	if !stdErrors.Is(outcomes[1].Err, xerrors.New(xerrors.CodeParseFailed, "")) {
		t.Fatalf("期望 PARSE_FAILED, got %v", outcomes[1].Err)
	}
	if outcomes[2].Err != nil {
		t.Fatalf("第三条应成功: %v", outcomes[2].Err)
	}
}
