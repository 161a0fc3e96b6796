package market

// YieldOpportunity 描述一条收益机会。Address 可能是链上地址，也可能只是
// 行情源给出的标识符，由协议解析器决定如何落到具体合约。
type YieldOpportunity struct {
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	APY      float64 `json:"apy"`
	Volume1D string  `json:"volume_usd_1d"`
	Volume7D string  `json:"volume_usd_7d"`
}

// Snapshot 是一次行情抓取的结果，目前只覆盖 USDC 计价的机会。
type Snapshot struct {
	Tokens []YieldOpportunity `json:"tokens"`
}

// PositionQuery 描述一次持仓核对请求。
type PositionQuery struct {
	Protocol string `json:"protocol"`
	Token    string `json:"token"`
}

// PositionData 是针对单个 protocol/token 组合的收益数据。
type PositionData struct {
	Protocol string             `json:"protocol"`
	Token    string             `json:"token"`
	Data     []YieldOpportunity `json:"data"`
}

// stakeKitEnvelope 是行情源分页响应的外层结构，仅在边界处使用。
type stakeKitEnvelope struct {
	Data        []stakeKitYield `json:"data"`
	HasNextPage bool            `json:"hasNextPage"`
	Limit       int             `json:"limit"`
	Page        int             `json:"page"`
}

type stakeKitYield struct {
	ID       string  `json:"id"`
	APY      float64 `json:"apy"`
	Token    struct {
		Symbol  string `json:"symbol"`
		Address string `json:"address"`
	} `json:"token"`
	Metadata struct {
		Provider struct {
			Name string `json:"name"`
			TVL  string `json:"tvl"`
		} `json:"provider"`
	} `json:"metadata"`
}
