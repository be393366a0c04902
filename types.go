// Package gasrelay contains the core types shared by the relay service:
// tenant identity, wallet bindings, plugin gas budgets, and the relay
// request/outcome pair exchanged with clients.
package gasrelay

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// WalletBinding is the funding wallet bound to a single API key. The private
// key is parsed once at config load; the address is derived from the key when
// the config does not state it.
type WalletBinding struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// NewWalletBinding parses a hex private key (0x-prefixed or bare) and an
// optional address. A stated address that does not match the key is an error.
func NewWalletBinding(privateKeyHex, addressHex string) (*WalletBinding, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet private key: %w", err)
	}
	derived := crypto.PubkeyToAddress(key.PublicKey)
	if addressHex != "" {
		stated := common.HexToAddress(addressHex)
		if stated != derived {
			return nil, fmt.Errorf("wallet address %s does not match private key (derived %s)", stated.Hex(), derived.Hex())
		}
	}
	return &WalletBinding{PrivateKey: key, Address: derived}, nil
}

// TenantContext is the request-scoped identity attached by the auth gate.
// Wallet is nil for tenants that cannot fund transactions.
type TenantContext struct {
	APIKeyName string
	ClientIP   string
	Wallet     *WalletBinding
}

// CanFund reports whether the tenant has a funding wallet bound.
func (t *TenantContext) CanFund() bool {
	return t != nil && t.Wallet != nil
}

// OperationBudget declares the expected gas cost of one plugin operation.
// GasLimit is the expected value; validation adds a 20% buffer on top.
type OperationBudget struct {
	Operation   string `json:"operation"`
	GasLimit    uint64 `json:"gasLimit"`
	FunctionTag string `json:"functionTag"`
}

// RelayRequest is the body accepted by the relay endpoints. The wallet
// address is a hint used for logging only; the authoritative sender is always
// recovered from the signature.
type RelayRequest struct {
	UserWalletAddress    string `json:"userWalletAddress"`
	SignedTransactionHex string `json:"signedTransactionHex"`
	OperationName        string `json:"operationName"`
	ExpectedGasLimit     uint64 `json:"expectedGasLimit,omitempty"`
}

// RelayOutcome is the terminal result of one relay call.
type RelayOutcome struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	ContractAddress string `json:"contractAddress,omitempty"`
	Error           string `json:"error,omitempty"`
}
