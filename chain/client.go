// Package chain is a thin adapter over the EVM JSON-RPC endpoint.
package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/sponsorlabs/gasrelay"
	"github.com/sponsorlabs/gasrelay/logging"
)

// Client is the chain surface the relay depends on. All methods are safe for
// concurrent use.
type Client interface {
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	SendRaw(ctx context.Context, rawHex string) (common.Hash, error)
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	NetworkGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	NonceAt(ctx context.Context, addr common.Address) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// RPCClient implements Client over a shared go-ethereum rpc.Client. The
// underlying transport multiplexes concurrent calls.
type RPCClient struct {
	rpc    *rpc.Client
	eth    *ethclient.Client
	logger logging.Logger
}

// Dial connects to the JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*RPCClient, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, gasrelay.Wrap(gasrelay.KindChainRPC, err, "failed to dial %s", url)
	}
	return &RPCClient{
		rpc:    rc,
		eth:    ethclient.NewClient(rc),
		logger: logging.New("chain"),
	}, nil
}

// Balance returns the latest native-coin balance of addr.
func (c *RPCClient) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, gasrelay.Wrap(gasrelay.KindChainRPC, err, "balance lookup for %s failed", addr.Hex())
	}
	return bal, nil
}

// SendRaw submits the client-supplied hex through eth_sendRawTransaction.
// The payload is forwarded as given; only a missing 0x prefix is added, the
// transaction bytes are never re-encoded.
func (c *RPCClient) SendRaw(ctx context.Context, rawHex string) (common.Hash, error) {
	if !strings.HasPrefix(rawHex, "0x") && !strings.HasPrefix(rawHex, "0X") {
		rawHex = "0x" + rawHex
	}
	var txHash common.Hash
	if err := c.rpc.CallContext(ctx, &txHash, "eth_sendRawTransaction", rawHex); err != nil {
		return common.Hash{}, gasrelay.Wrap(gasrelay.KindChainRPC, err, "eth_sendRawTransaction failed")
	}
	return txHash, nil
}

// Receipt returns the receipt for txHash, or nil while the transaction is
// unmined.
func (c *RPCClient) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, gasrelay.Wrap(gasrelay.KindChainRPC, err, "receipt lookup for %s failed", txHash.Hex())
	}
	return receipt, nil
}

// NetworkGasPrice returns the node's suggested gas price.
func (c *RPCClient) NetworkGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, gasrelay.Wrap(gasrelay.KindChainRPC, err, "gas price query failed")
	}
	return price, nil
}

// ChainID returns the chain id reported by the node.
func (c *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, gasrelay.Wrap(gasrelay.KindChainRPC, err, "chain id query failed")
	}
	return id, nil
}

// EstimateGas estimates the gas needed for call.
func (c *RPCClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	gas, err := c.eth.EstimateGas(ctx, call)
	if err != nil {
		return 0, gasrelay.Wrap(gasrelay.KindChainRPC, err, "gas estimation failed")
	}
	return gas, nil
}

// NonceAt returns the pending nonce of addr.
func (c *RPCClient) NonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, gasrelay.Wrap(gasrelay.KindChainRPC, err, "nonce lookup for %s failed", addr.Hex())
	}
	return nonce, nil
}

// CallContract executes a read-only contract call at the latest block.
func (c *RPCClient) CallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, call, nil)
	if err != nil {
		return nil, gasrelay.Wrap(gasrelay.KindChainRPC, err, "contract call failed")
	}
	return out, nil
}

// SendTransaction submits a locally signed transaction.
func (c *RPCClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return gasrelay.Wrap(gasrelay.KindChainRPC, err, "transaction submit failed")
	}
	return nil
}

// Close releases the underlying RPC connection.
func (c *RPCClient) Close() {
	c.rpc.Close()
}
