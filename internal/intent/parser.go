package intent

import (
	"regexp"
	"strings"

	xerrors "github.com/NectaFi/necta-agents/internal/errors"
)

// ActionType 表示任务意图的动作类型。
type ActionType string

const (
	ActionDeposit  ActionType = "DEPOSIT"
	ActionWithdraw ActionType = "WITHDRAW"
	ActionSwap     ActionType = "SWAP"
)

// ParsedIntent 是任务文本解析后的结构化意图。Target 对于
// deposit/withdraw 是协议名，对于 swap 是目标代币；没有介词短语时为空。
type ParsedIntent struct {
	Type        ActionType
	Amount      string
	SourceToken string
	Target      string
}

// 文法固定为 "<Verb> <amount> <token> [for|into|from <target>]"。
// 动词表与捕获模式分开维护，新增动作只需要扩展 verbActions。
var (
	verbActions = map[string]ActionType{
		"deposit":  ActionDeposit,
		"withdraw": ActionWithdraw,
		"swap":     ActionSwap,
	}
	intentPattern = regexp.MustCompile(
		`(?i)^\s*(deposit|withdraw|swap)\s+(\d+(?:\.\d+)?)\s+([A-Za-z][A-Za-z0-9.]*)(?:\s+(?:for|into|from)\s+(\w+))?`)
)

// Parse 将任务描述解析为结构化意图。解析失败返回 PARSE_FAILED，调用方
// 应将其视为「任务文本需要改写」，而不是系统故障。纯函数，无副作用。
func Parse(description string) (ParsedIntent, error) {
	match := intentPattern.FindStringSubmatch(description)
	if match == nil {
		return ParsedIntent{}, xerrors.New(xerrors.CodeParseFailed,
			"无法从任务文本中识别动作与金额",
			xerrors.WithMetadata("description", description))
	}

	action, ok := verbActions[strings.ToLower(match[1])]
	if !ok {
		// 正则与动词表不同步属于编程错误，仍按解析失败上报。
		return ParsedIntent{}, xerrors.New(xerrors.CodeParseFailed,
			"不支持的任务动作: "+match[1])
	}

	return ParsedIntent{
		Type:        action,
		Amount:      match[2],
		SourceToken: strings.ToUpper(match[3]),
		Target:      match[4],
	}, nil
}
