package executor

import (
	"context"
	stdErrors "errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/NectaFi/necta-agents/internal/task"
)

type fakeChain struct {
	sent       []common.Hash
	failSendAt int
	revertAt   int
}

func (f *fakeChain) Address() common.Address {
	return common.HexToAddress("0x1111111111111111111111111111111111111111")
}

func (f *fakeChain) SendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	next := len(f.sent) + 1
	if f.failSendAt == next {
		return common.Hash{}, fmt.Errorf("insufficient funds")
	}
	hash := common.BigToHash(big.NewInt(int64(next)))
	f.sent = append(f.sent, hash)
	return hash, nil
}

func (f *fakeChain) WaitReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	if f.revertAt == len(f.sent) {
		return nil, fmt.Errorf("交易 %s 已回滚", hash.Hex())
	}
	return &coretypes.Receipt{Status: coretypes.ReceiptStatusSuccessful, TxHash: hash}, nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error) {
	return 21000, nil
}

func (f *fakeChain) CallContract(ctx context.Context, msg gethcore.CallMsg) ([]byte, error) {
	return nil, nil
}

func (f *fakeChain) Close() {}

type recordingIndexer struct {
	hashes []string
}

func (r *recordingIndexer) IndexTransaction(ctx context.Context, transactionHash string) error {
	r.hashes = append(r.hashes, transactionHash)
	return nil
}

func seedTask(t *testing.T, store task.Store, steps int) *task.Task {
	t.Helper()
	candidate := &task.Task{
		Description: "Deposit 10 USDC into Aave",
	}
	for i := 0; i < steps; i++ {
		candidate.Steps = append(candidate.Steps, task.Step{
			To:    "0x0595D1Df64279ddB51F1bdC405Fe2D0b4Cc86681",
			Data:  "0xdeadbeef",
			Value: "0",
		})
	}
	created, err := store.Create(context.Background(), candidate)
	if err != nil {
		t.Fatalf("准备任务失败: %v", err)
	}
	return created
}

func TestExecuteDeletesTaskOnSuccess(t *testing.T) {
	store := task.NewMemoryStore()
	chain := &fakeChain{}
	indexer := &recordingIndexer{}
	seeded := seedTask(t, store, 3)

	e := New(store, chain, WithIndexer(indexer))
	result, err := e.Execute(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}
	if !result.Success {
		t.Fatalf("期望执行成功: %s", result.Message)
	}
	if len(result.Hashes) != 3 {
		t.Fatalf("确认交易数量不符, got %d", len(result.Hashes))
	}
	if len(indexer.hashes) != 3 {
		t.Fatalf("上报交易数量不符, got %d", len(indexer.hashes))
	}
	if _, err := store.Get(context.Background(), seeded.ID); !stdErrors.Is(err, task.ErrTaskNotFound) {
		t.Fatalf("成功后任务应已删除, got %v", err)
	}
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	store := task.NewMemoryStore()
	chain := &fakeChain{failSendAt: 2}
	seeded := seedTask(t, store, 3)

	e := New(store, chain)
	result, err := e.Execute(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("执行报告失败: %v", err)
	}
	if result.Success {
		t.Fatalf("期望执行失败")
	}
	if result.FailedStep != 2 {
		t.Fatalf("失败步骤不符, got %d", result.FailedStep)
	}
	if len(result.Hashes) != 1 {
		t.Fatalf("失败前确认交易数量不符, got %d", len(result.Hashes))
	}
	if len(chain.sent) != 1 {
		t.Fatalf("失败后不应继续发送, sent %d", len(chain.sent))
	}
	if !strings.Contains(result.Message, "step 2 of 3") {
		t.Fatalf("失败消息不符: %s", result.Message)
	}

	preserved, err := store.Get(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("失败后任务应保留: %v", err)
	}
	if len(preserved.Steps) != 3 {
		t.Fatalf("失败后任务被改动")
	}
}

func TestExecuteRevertedReceiptFails(t *testing.T) {
	store := task.NewMemoryStore()
	chain := &fakeChain{revertAt: 2}
	seeded := seedTask(t, store, 2)

	e := New(store, chain)
	result, err := e.Execute(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("执行报告失败: %v", err)
	}
	if result.Success {
		t.Fatalf("回滚后不应成功")
	}
	if result.FailedStep != 2 || len(result.Hashes) != 1 {
		t.Fatalf("回滚结果不符: step=%d hashes=%d", result.FailedStep, len(result.Hashes))
	}
}

func TestExecuteMissingTaskIsBenign(t *testing.T) {
	store := task.NewMemoryStore()
	e := New(store, &fakeChain{})

	result, err := e.Execute(context.Background(), "missing-id")
	if err != nil {
		t.Fatalf("缺失任务不应返回错误: %v", err)
	}
	if result.Success {
		t.Fatalf("缺失任务不应标记成功")
	}
	if !strings.Contains(result.Message, "not found") {
		t.Fatalf("缺失消息不符: %s", result.Message)
	}
}
