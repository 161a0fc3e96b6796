package wallet

import (
	"context"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

// Client defines the chain capabilities the pipeline relies on: sending a
// signed transaction, waiting for its receipt, and the read-only calls used
// by simulation. Implementations must be safe for concurrent use.
type Client interface {
	// Address returns the executor account address.
	Address() common.Address
	// SendTransaction signs and broadcasts a transaction to the given
	// recipient and returns its hash.
	SendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error)
	// WaitReceipt blocks until the transaction receipt is observed or the
	// context is cancelled. A receipt with a failed status is returned as
	// an error.
	WaitReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error)
	// EstimateGas runs gas estimation for the call message.
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
	// CallContract executes a read-only call against the latest block.
	CallContract(ctx context.Context, msg gethcore.CallMsg) ([]byte, error)
	// Close releases network connections held by the client.
	Close()
}

// ReadClient is the read-only subset used by the simulator.
type ReadClient interface {
	Address() common.Address
	EstimateGas(ctx context.Context, msg gethcore.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg gethcore.CallMsg) ([]byte, error)
}
