// Package executor 负责任务的链上预演与顺序执行。
package executor

import (
	"context"
	"fmt"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "github.com/NectaFi/necta-agents/internal/errors"
	"github.com/NectaFi/necta-agents/internal/task"
	"github.com/NectaFi/necta-agents/internal/wallet"
)

// Simulation 记录一次预演结果。Passed 为 false 时 Diagnosis 给出
// 可读的失败描述,供改写任务或人工排查使用。
type Simulation struct {
	TaskID      string
	Passed      bool
	Diagnosis   string
	GasEstimate uint64
}

// Simulator 在不上链的前提下逐步预演任务步骤。
type Simulator struct {
	client wallet.ReadClient
}

// NewSimulator 创建预演器。
func NewSimulator(client wallet.ReadClient) *Simulator {
	return &Simulator{client: client}
}

// Simulate 对任务的每个步骤做 gas 估算与只读调用。任一步骤失败即停,
// 返回的 Simulation 标记未通过;error 只在任务本身不合法时返回。
func (s *Simulator) Simulate(ctx context.Context, t *task.Task) (Simulation, error) {
	if err := t.Validate(); err != nil {
		return Simulation{}, err
	}

	result := Simulation{TaskID: t.ID}
	for i, step := range t.Steps {
		msg, err := callMessage(s.client.Address(), step)
		if err != nil {
			return Simulation{}, xerrors.Wrap(xerrors.CodeSimulationFailed, err,
				fmt.Sprintf("任务 %s 第 %d 步无法解码", t.ID, i+1))
		}

		gas, err := s.client.EstimateGas(ctx, msg)
		if err != nil {
			result.Diagnosis = fmt.Sprintf("step %d (%s): gas estimation failed: %v", i+1, step.To, err)
			return result, nil
		}
		result.GasEstimate += gas

		if _, err := s.client.CallContract(ctx, msg); err != nil {
			result.Diagnosis = fmt.Sprintf("step %d (%s): call reverted: %v", i+1, step.To, err)
			return result, nil
		}
	}

	result.Passed = true
	return result, nil
}

// callMessage 将任务步骤转为以太坊调用消息。
func callMessage(from common.Address, step task.Step) (gethcore.CallMsg, error) {
	if !common.IsHexAddress(step.To) {
		return gethcore.CallMsg{}, fmt.Errorf("目标地址 %q 不合法", step.To)
	}
	to := common.HexToAddress(step.To)

	var data []byte
	if step.Data != "" && step.Data != "0x" {
		decoded, err := hexutil.Decode(step.Data)
		if err != nil {
			return gethcore.CallMsg{}, fmt.Errorf("调用数据不合法: %w", err)
		}
		data = decoded
	}

	value := new(big.Int)
	if step.Value != "" {
		if _, ok := value.SetString(step.Value, 10); !ok {
			return gethcore.CallMsg{}, fmt.Errorf("转账金额 %q 不合法", step.Value)
		}
	}

	return gethcore.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	}, nil
}
