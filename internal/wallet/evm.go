package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Config describes how to construct an EVM wallet client.
type Config struct {
	RPCURL       string
	PrivateKey   string
	ChainID      int64
	PollInterval time.Duration
}

// EVMClient implements Client on top of go-ethereum's ethclient.
type EVMClient struct {
	eth          *ethclient.Client
	key          *ecdsa.PrivateKey
	address      common.Address
	chainID      *big.Int
	signer       coretypes.Signer
	pollInterval time.Duration
}

// NewEVMClient dials the configured RPC endpoint and derives the executor
// account from the private key.
func NewEVMClient(ctx context.Context, cfg Config) (*EVMClient, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	keyHex := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")
	if keyHex == "" {
		return nil, errors.New("未配置执行器私钥")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("解析执行器私钥失败: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("获取链 ID 失败: %w", err)
		}
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	return &EVMClient{
		eth:          eth,
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:      chainID,
		signer:       coretypes.LatestSignerForChainID(chainID),
		pollInterval: pollInterval,
	}, nil
}

// Address returns the executor account address.
func (c *EVMClient) Address() common.Address {
	return c.address
}

// PrivateKey exposes the signing key for EIP-712 registration messages.
func (c *EVMClient) PrivateKey() *ecdsa.PrivateKey {
	return c.key
}

// SendTransaction signs and broadcasts a legacy transaction. Nonce and gas
// parameters are fetched per call; the pipeline executes steps strictly in
// sequence so there is no nonce contention within a task.
func (c *EVMClient) SendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("查询交易计数失败: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("查询 gas 价格失败: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, gethcore.CallMsg{
		From:  c.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("估算 gas 失败: %w", err)
	}

	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := coretypes.SignTx(tx, c.signer, c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("签署交易失败: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("发送交易失败: %w", err)
	}
	return signed.Hash(), nil
}

// WaitReceipt polls for the transaction receipt until the context is done.
// Callers bound the wait with a context timeout.
func (c *EVMClient) WaitReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != coretypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("交易 %s 已回滚", hash.Hex())
			}
			return receipt, nil
		}
		if !errors.Is(err, gethcore.NotFound) {
			return nil, fmt.Errorf("查询交易回执失败: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("等待交易回执超时: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// EstimateGas runs gas estimation for the call message.
func (c *EVMClient) EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error) {
	return c.eth.EstimateGas(ctx, msg)
}

// CallContract executes a read-only call against the latest block.
func (c *EVMClient) CallContract(ctx context.Context, msg gethcore.CallMsg) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, nil)
}

// Close releases the underlying RPC connection.
func (c *EVMClient) Close() {
	if c != nil && c.eth != nil {
		c.eth.Close()
	}
}

var _ Client = (*EVMClient)(nil)
