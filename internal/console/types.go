package console

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "github.com/NectaFi/necta-agents/internal/errors"
)

// Transaction 是交易构建服务返回的一条原始交易。Value 保持十进制
// 字符串，Operation 0 表示普通 CALL。
type Transaction struct {
	To        string `json:"to"`
	Data      string `json:"data"`
	Value     string `json:"value"`
	Operation int    `json:"operation"`
}

// Validate 在边界处校验交易字段，内部代码不再处理畸形数据。
func (t Transaction) Validate() error {
	if !common.IsHexAddress(t.To) {
		return xerrors.New(xerrors.CodeBuildFailed, "交易 to 字段不是合法地址: "+t.To)
	}
	if t.Data != "" && t.Data != "0x" {
		if _, err := hexutil.Decode(t.Data); err != nil {
			return xerrors.Wrap(xerrors.CodeBuildFailed, err, "交易 data 字段不是合法十六进制")
		}
	}
	return nil
}

// BuildRequest 描述一次交易构建请求。ProtocolAddress 与 TokenAddress
// 都必须是已解析的链上地址，Amount 是按代币精度缩放后的整数字符串。
type BuildRequest struct {
	AccountAddress  string `json:"accountAddress"`
	Type            string `json:"type"`
	ProtocolAddress string `json:"protocolAddress"`
	TokenAddress    string `json:"tokenAddress"`
	Amount          string `json:"amount"`
}

// Validate 校验请求字段。
func (r BuildRequest) Validate() error {
	if !common.IsHexAddress(r.AccountAddress) {
		return xerrors.New(xerrors.CodeInvalidArgument, "账户地址不合法: "+r.AccountAddress)
	}
	if !common.IsHexAddress(r.ProtocolAddress) {
		return xerrors.New(xerrors.CodeInvalidArgument, "协议地址不合法: "+r.ProtocolAddress)
	}
	if !common.IsHexAddress(r.TokenAddress) {
		return xerrors.New(xerrors.CodeInvalidArgument, "代币地址不合法: "+r.TokenAddress)
	}
	if strings.TrimSpace(r.Amount) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "金额不能为空")
	}
	return nil
}

// BuildResponse 是交易构建服务的响应。
type BuildResponse struct {
	Transactions []Transaction     `json:"transactions"`
	Metadata     map[string]string `json:"metadata"`
}

// RegistrationConfig 描述执行器注册参数。注册在任何构建/执行调用之前
// 必须完成一次。
type RegistrationConfig struct {
	ClientID string
	Name     string
	Logo     string
}
