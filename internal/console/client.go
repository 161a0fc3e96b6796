package console

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	xerrors "github.com/NectaFi/necta-agents/internal/errors"
)

const defaultTimeout = 30 * time.Second

// Config 描述交易构建服务（Console）的访问方式。
type Config struct {
	BaseURL    string
	APIKey     string
	ChainID    int64
	RegistryID string
	Timeout    time.Duration
}

// Client 通过 HTTP 访问交易构建服务。服务是交易内容的唯一权威，
// 本地从不自行拼装 calldata。
type Client struct {
	baseURL    string
	apiKey     string
	chainID    int64
	httpClient *http.Client

	mu         sync.Mutex
	registryID string
}

// NewClient 根据配置创建 Console 客户端。
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("未配置 Console 服务地址")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("未配置 Console API Key")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		chainID:    cfg.ChainID,
		registryID: strings.TrimSpace(cfg.RegistryID),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// RegistryID 返回当前执行器的注册标识，未注册时为空。
func (c *Client) RegistryID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registryID
}

// RegisterExecutor 用执行器私钥签署 EIP-712 注册消息并提交。注册成功
// 后保存返回的 registry id，供后续构建与执行调用使用。已注册时直接
// 返回现有 id。
func (c *Client) RegisterExecutor(ctx context.Context, key *ecdsa.PrivateKey, cfg RegistrationConfig) (string, error) {
	if existing := c.RegistryID(); existing != "" {
		return existing, nil
	}
	if key == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "未提供执行器私钥")
	}

	executor := crypto.PubkeyToAddress(key.PublicKey)
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ExecutorRegistration": []apitypes.Type{
				{Name: "executor", Type: "address"},
				{Name: "clientId", Type: "string"},
			},
		},
		PrimaryType: "ExecutorRegistration",
		Domain: apitypes.TypedDataDomain{
			Name:    "Console",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(c.chainID),
		},
		Message: apitypes.TypedDataMessage{
			"executor": executor.Hex(),
			"clientId": cfg.ClientID,
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("计算注册消息摘要失败: %w", err)
	}
	signature, err := crypto.Sign(digest, key)
	if err != nil {
		return "", fmt.Errorf("签署注册消息失败: %w", err)
	}

	payload := map[string]any{
		"chainId":   c.chainID,
		"executor":  executor.Hex(),
		"clientId":  cfg.ClientID,
		"name":      cfg.Name,
		"logo":      cfg.Logo,
		"signature": hexutil.Encode(signature),
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/executor/register", payload, &decoded); err != nil {
		return "", err
	}
	if decoded.ID == "" {
		return "", errors.New("Console 未返回 registry id")
	}

	c.mu.Lock()
	c.registryID = decoded.ID
	c.mu.Unlock()
	return decoded.ID, nil
}

// BuildTransaction 请求服务将解析后的意图编译为一组有序交易。
func (c *Client) BuildTransaction(ctx context.Context, req BuildRequest) (*BuildResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"chainId":         c.chainID,
		"accountAddress":  req.AccountAddress,
		"type":            req.Type,
		"protocolAddress": req.ProtocolAddress,
		"tokenAddress":    req.TokenAddress,
		"amount":          req.Amount,
	}

	var decoded BuildResponse
	if err := c.post(ctx, "/builder/build", payload, &decoded); err != nil {
		return nil, err
	}
	for i, tx := range decoded.Transactions {
		if tx.Value == "" {
			decoded.Transactions[i].Value = "0"
		}
		if err := decoded.Transactions[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &decoded, nil
}

// IndexTransaction 将已确认的交易哈希回报给 Console 做记账。这是对
// 外部服务的副作用，不影响本地执行状态机。
func (c *Client) IndexTransaction(ctx context.Context, transactionHash string) error {
	payload := map[string]any{
		"chainId":         c.chainID,
		"transactionHash": transactionHash,
	}
	return c.post(ctx, "/indexer/transactions", payload, nil)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 Console 请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("构建 Console 请求失败: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("请求 Console 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("Console 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析 Console 响应失败: %w", err)
	}
	return nil
}
