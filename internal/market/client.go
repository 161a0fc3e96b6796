package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/NectaFi/necta-agents/pkg/logger"
)

const defaultTimeout = 15 * time.Second

// Config 描述行情数据服务的访问方式。
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client 通过 HTTP 访问行情数据服务（StakeKit 风格的 yields API）。
// 行情只用于筛选与报告，瞬时网络错误降级为空结果而不是失败。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 根据配置创建行情客户端。
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("未配置行情服务地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// usdcSymbols 覆盖各链上 USDC 的常见变体。
var usdcSymbols = map[string]bool{
	"usdc": true, "usdbc": true, "usdc.e": true,
}

// GetMarketData 拉取指定网络上 USDC 计价的收益机会，按 APY 降序。
// 行情源不可用时记一条告警并返回空快照，由调用方决定如何提示用户。
func (c *Client) GetMarketData(ctx context.Context, network string) (Snapshot, error) {
	envelope, err := c.fetchYields(ctx, network)
	if err != nil {
		logger.Named("market").Warn("行情拉取失败，降级为空快照",
			slog.String("network", network),
			slog.String("error", err.Error()),
		)
		return Snapshot{}, nil
	}

	opportunities := make([]YieldOpportunity, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		if !usdcSymbols[strings.ToLower(item.Token.Symbol)] {
			continue
		}
		opportunities = append(opportunities, YieldOpportunity{
			Name:     fmt.Sprintf("%s %s", item.Metadata.Provider.Name, item.Token.Symbol),
			Address:  item.Token.Address,
			APY:      item.APY * 100,
			Volume1D: orZero(item.Metadata.Provider.TVL),
			Volume7D: orZero(item.Metadata.Provider.TVL),
		})
	}
	sortByAPYDesc(opportunities)
	return Snapshot{Tokens: opportunities}, nil
}

// 持仓核对的默认 APY 区间，过滤掉明显异常的行情条目。
const (
	positionMinAPY = 3.0
	positionMaxAPY = 60.0
)

// GetPositionData 针对每个 protocol/token 组合返回匹配的收益数据，
// 用于在执行前核对协议是否真实存在。
func (c *Client) GetPositionData(ctx context.Context, network string, queries []PositionQuery) ([]PositionData, error) {
	results := make([]PositionData, 0, len(queries))
	for _, query := range queries {
		envelope, err := c.fetchYields(ctx, network)
		if err != nil {
			results = append(results, PositionData{Protocol: query.Protocol, Token: query.Token})
			continue
		}

		matched := make([]YieldOpportunity, 0, 4)
		for _, item := range envelope.Data {
			apy := item.APY * 100
			if apy < positionMinAPY || apy > positionMaxAPY {
				continue
			}
			if !strings.Contains(strings.ToLower(item.Metadata.Provider.Name), strings.ToLower(query.Protocol)) {
				continue
			}
			if !strings.Contains(strings.ToLower(item.Token.Symbol), strings.ToLower(query.Token)) {
				continue
			}
			matched = append(matched, YieldOpportunity{
				Name:     item.Metadata.Provider.Name,
				Address:  item.Token.Address,
				APY:      apy,
				Volume1D: orZero(item.Metadata.Provider.TVL),
				Volume7D: orZero(item.Metadata.Provider.TVL),
			})
		}
		results = append(results, PositionData{
			Protocol: query.Protocol,
			Token:    query.Token,
			Data:     matched,
		})
	}
	return results, nil
}

func (c *Client) fetchYields(ctx context.Context, network string) (*stakeKitEnvelope, error) {
	endpoint := fmt.Sprintf("%s/v2/yields?type=lending&network=%s", c.baseURL, url.QueryEscape(network))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构建行情请求失败: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求行情服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("行情服务返回错误状态 %d", resp.StatusCode)
	}

	var envelope stakeKitEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("解析行情响应失败: %w", err)
	}
	return &envelope, nil
}

func sortByAPYDesc(items []YieldOpportunity) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].APY > items[j].APY
	})
}

func orZero(value string) string {
	if strings.TrimSpace(value) == "" {
		return "0"
	}
	return value
}
