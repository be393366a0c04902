// Package gaspayer encodes and sends calls to the on-chain Gas Payer
// Contract, which forwards native coin to a user address and retains a
// service fee.
package gaspayer

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sponsorlabs/gasrelay"
	"github.com/sponsorlabs/gasrelay/chain"
	"github.com/sponsorlabs/gasrelay/logging"
)

// gasPayerABI is the contract surface the relay uses.
const gasPayerABI = `[
	{"name":"calculateFee","type":"function","stateMutability":"view",
	 "inputs":[{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"fee","type":"uint256"}]},
	{"name":"fundAndRelay","type":"function","stateMutability":"payable",
	 "inputs":[{"name":"user","type":"address"},{"name":"gasAmount","type":"uint256"}],
	 "outputs":[]}
]`

// fundGasFallback is used when gas estimation for the funding call fails.
const fundGasFallback = 200_000

// fundReceiptAttempts bounds the receipt poll for the funding transaction.
const (
	fundReceiptAttempts = 30
	fundReceiptInterval = 2 * time.Second
)

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(gasPayerABI))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Adapter talks to one gas payer contract on behalf of one tenant wallet.
// Adapters are constructed per request so the wallet binding never outlives
// the tenant that owns it.
type Adapter struct {
	contract common.Address
	wallet   *gasrelay.WalletBinding
	client   chain.Client
	chainID  *big.Int
	logger   logging.Logger
}

// New creates an adapter bound to the tenant wallet. wallet may be nil for
// read-only use (CalculateFee).
func New(contract common.Address, wallet *gasrelay.WalletBinding, client chain.Client, chainID *big.Int) *Adapter {
	return &Adapter{
		contract: contract,
		wallet:   wallet,
		client:   client,
		chainID:  chainID,
		logger:   logging.New("gaspayer"),
	}
}

// CalculateFee asks the contract what fee it will retain for funding amount
// wei. This is a pure view call.
func (a *Adapter) CalculateFee(ctx context.Context, amount *big.Int) (*big.Int, error) {
	input, err := parsedABI.Pack("calculateFee", amount)
	if err != nil {
		return nil, gasrelay.Wrap(gasrelay.KindFeeEstimate, err, "failed to encode calculateFee")
	}
	out, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &a.contract, Data: input})
	if err != nil {
		return nil, gasrelay.Wrap(gasrelay.KindFeeEstimate, err, "calculateFee call failed")
	}
	results, err := parsedABI.Unpack("calculateFee", out)
	if err != nil || len(results) != 1 {
		return nil, gasrelay.Wrap(gasrelay.KindFeeEstimate, err, "unexpected calculateFee return data")
	}
	fee, ok := results[0].(*big.Int)
	if !ok {
		return nil, gasrelay.E(gasrelay.KindFeeEstimate, "calculateFee returned a non-integer value")
	}
	return fee, nil
}

// FundAndRelay sends the state-changing funding call: the contract receives
// totalValue wei, forwards gasAmount to user, and retains the rest as fee.
// The call is signed with the tenant wallet and only succeeds when the
// receipt status is OK.
func (a *Adapter) FundAndRelay(ctx context.Context, user common.Address, gasAmount, totalValue *big.Int) (common.Hash, error) {
	if a.wallet == nil {
		return common.Hash{}, gasrelay.E(gasrelay.KindNoTenantWallet, "no funding wallet bound to this adapter")
	}

	input, err := parsedABI.Pack("fundAndRelay", user, gasAmount)
	if err != nil {
		return common.Hash{}, gasrelay.Wrap(gasrelay.KindFundingFailed, err, "failed to encode fundAndRelay")
	}

	nonce, err := a.client.NonceAt(ctx, a.wallet.Address)
	if err != nil {
		return common.Hash{}, gasrelay.Wrap(gasrelay.KindFundingFailed, err, "funding nonce lookup failed")
	}
	gasPrice, err := a.client.NetworkGasPrice(ctx)
	if err != nil {
		return common.Hash{}, gasrelay.Wrap(gasrelay.KindFundingFailed, err, "funding gas price lookup failed")
	}

	gasLimit, err := a.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  a.wallet.Address,
		To:    &a.contract,
		Value: totalValue,
		Data:  input,
	})
	if err != nil {
		gasLimit = fundGasFallback
		a.logger.Warnf("funding gas estimate failed, using fallback %d: %v", gasLimit, err)
	}

	tx := types.NewTransaction(nonce, a.contract, totalValue, gasLimit, gasPrice, input)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.wallet.PrivateKey)
	if err != nil {
		return common.Hash{}, gasrelay.Wrap(gasrelay.KindFundingFailed, err, "failed to sign funding transaction")
	}
	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, gasrelay.Wrap(gasrelay.KindFundingFailed, err, "failed to submit funding transaction")
	}

	txHash := signed.Hash()
	a.logger.Infof("funding tx %s: %s wei to %s via %s (fee retained: %s wei)",
		txHash.Hex(), gasAmount, user.Hex(), a.contract.Hex(), new(big.Int).Sub(totalValue, gasAmount))

	receipt, err := a.waitReceipt(ctx, txHash)
	if err != nil {
		return txHash, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, gasrelay.E(gasrelay.KindFundingFailed, "funding transaction %s reverted", txHash.Hex())
	}
	return txHash, nil
}

func (a *Adapter) waitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	for i := 0; i < fundReceiptAttempts; i++ {
		receipt, err := a.client.Receipt(ctx, txHash)
		if err != nil {
			a.logger.Warnf("funding receipt poll %d/%d failed: %v", i+1, fundReceiptAttempts, err)
		} else if receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, gasrelay.Wrap(gasrelay.KindFundingFailed, ctx.Err(),
				"funding transaction %s still pending", txHash.Hex())
		case <-time.After(fundReceiptInterval):
		}
	}
	return nil, gasrelay.E(gasrelay.KindFundingFailed,
		"funding transaction %s was not mined within %d polls", txHash.Hex(), fundReceiptAttempts)
}
