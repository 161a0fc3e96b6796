package task

import (
	xerrors "github.com/NectaFi/necta-agents/internal/errors"
)

// Step 是任务交易包中的一条原始链上交易，按数组顺序执行。
type Step struct {
	To        string `json:"to"`
	Data      string `json:"data"`
	Value     string `json:"value"`
	Operation int    `json:"operation"`
}

// TokenInfo 描述代币，仅用于报告与金额格式化。
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Address  string `json:"address,omitempty"`
}

// Task 表示一条待执行或执行中的交易意图。任务存在于存储中即意味着
// 它尚未完整执行：全部步骤确认后由执行器删除记录。
type Task struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	Steps        []Step    `json:"steps"`
	FromToken    TokenInfo `json:"from_token"`
	ToToken      TokenInfo `json:"to_token"`
	FromAmount   string    `json:"from_amount"`
	OutputAmount string    `json:"output_amount,omitempty"`
	CreatedAt    int64     `json:"created_at"`
	UpdatedAt    int64     `json:"updated_at"`
}

var (
	// ErrTaskNotFound 表示指定的任务不存在。对调用方而言这是常态：
	// 任务可能已经执行完成并被删除。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
)

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "task not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:     "task validation failed",
		Severity:    xerrors.SeverityInfo,
		UserFixable: true,
	})
}

// Validate 检查任务在落库前的基本约束。
func (t *Task) Validate() error {
	if t == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if t.Description == "" {
		return xerrors.New(CodeTaskValidation, "任务描述不能为空")
	}
	if len(t.Steps) == 0 {
		return xerrors.New(CodeTaskValidation, "任务步骤不能为空")
	}
	return nil
}

func cloneTask(t *Task) *Task {
	clone := *t
	if t.Steps != nil {
		clone.Steps = make([]Step, len(t.Steps))
		copy(clone.Steps, t.Steps)
	}
	return &clone
}
