package protocol

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/NectaFi/necta-agents/internal/chain"
	xerrors "github.com/NectaFi/necta-agents/internal/errors"
	"github.com/NectaFi/necta-agents/internal/market"
)

// MarketSource 是解析器需要的行情能力子集。
type MarketSource interface {
	GetMarketData(ctx context.Context, network string) (market.Snapshot, error)
}

// Resolution 是一次协议解析的结果。
type Resolution struct {
	Address     common.Address
	Opportunity market.YieldOpportunity
}

// Resolver 将目标名称解析为链上协议合约地址。解析依赖实时行情快照，
// 行情条目本身不带地址时退回到链定义表中的静态映射。
type Resolver struct {
	source MarketSource
	def    chain.Definition

	// 同一批任务构建会重复解析相同目标，按 (target, token) 记忆化，
	// 解析器实例生命周期即缓存生命周期。
	mu    sync.Mutex
	cache map[string]Resolution
}

// NewResolver 创建协议解析器。
func NewResolver(source MarketSource, def chain.Definition) *Resolver {
	return &Resolver{
		source: source,
		def:    def,
		cache:  make(map[string]Resolution),
	}
}

// Resolve 将目标名称与代币符号解析为协议地址。找不到匹配的机会返回
// PROTOCOL_NOT_FOUND；匹配到机会但无法得到地址返回
// ADDRESS_RESOLUTION_FAILED。两者都应回报给调用方改写任务，而不是重试。
func (r *Resolver) Resolve(ctx context.Context, target, token string) (Resolution, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Resolution{}, xerrors.New(xerrors.CodeProtocolNotFound, "未指定目标协议")
	}

	cacheKey := strings.ToLower(target) + "/" + strings.ToLower(token)
	r.mu.Lock()
	if cached, ok := r.cache[cacheKey]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	snapshot, err := r.source.GetMarketData(ctx, r.def.Name)
	if err != nil {
		return Resolution{}, xerrors.Wrap(xerrors.CodeProtocolNotFound, err, "获取行情快照失败")
	}

	matched, ok := matchOpportunity(snapshot.Tokens, target)
	if !ok {
		return Resolution{}, xerrors.New(xerrors.CodeProtocolNotFound,
			"行情中没有与目标匹配的协议: "+target,
			xerrors.WithMetadata("token", token))
	}

	address, ok := r.deriveAddress(matched, target)
	if !ok {
		return Resolution{}, xerrors.New(xerrors.CodeAddressResolution,
			"无法为协议推导链上地址: "+matched.Name,
			xerrors.WithMetadata("target", target))
	}

	resolution := Resolution{Address: address, Opportunity: matched}
	r.mu.Lock()
	r.cache[cacheKey] = resolution
	r.mu.Unlock()
	return resolution, nil
}

// matchOpportunity 优先精确匹配机会名称，其次子串包含。
func matchOpportunity(opportunities []market.YieldOpportunity, target string) (market.YieldOpportunity, bool) {
	lowered := strings.ToLower(target)
	for _, opp := range opportunities {
		if strings.ToLower(opp.Name) == lowered {
			return opp, true
		}
	}
	for _, opp := range opportunities {
		if strings.Contains(strings.ToLower(opp.Name), lowered) {
			return opp, true
		}
	}
	return market.YieldOpportunity{}, false
}

func (r *Resolver) deriveAddress(opp market.YieldOpportunity, target string) (common.Address, bool) {
	if common.IsHexAddress(opp.Address) {
		return common.HexToAddress(opp.Address), true
	}
	if addr, ok := r.def.ProtocolAddress(target); ok && common.IsHexAddress(addr) {
		return common.HexToAddress(addr), true
	}
	return common.Address{}, false
}
