// Package relay orchestrates the transaction pipeline: decode, validate,
// fund when the sender is short, forward the user's bytes unchanged, and
// await the receipt.
package relay

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sponsorlabs/gasrelay"
	"github.com/sponsorlabs/gasrelay/chain"
	"github.com/sponsorlabs/gasrelay/gas"
	"github.com/sponsorlabs/gasrelay/history"
	"github.com/sponsorlabs/gasrelay/logging"
	"github.com/sponsorlabs/gasrelay/txdecoder"
)

// Funder is the per-tenant slice of the gas payer adapter.
type Funder interface {
	CalculateFee(ctx context.Context, amount *big.Int) (*big.Int, error)
	FundAndRelay(ctx context.Context, user common.Address, gasAmount, totalValue *big.Int) (common.Hash, error)
}

// FunderFactory builds a funder bound to one tenant wallet. wallet may be
// nil; such a funder can estimate fees but not fund.
type FunderFactory func(wallet *gasrelay.WalletBinding) Funder

// Formatter renders wei amounts for logs. The oracle implements it; a nil
// formatter renders plain wei.
type Formatter interface {
	FormatWei(ctx context.Context, chainID uint64, wei *big.Int) string
}

// Recorder persists relay outcomes for auditing. Recording failures never
// affect the outcome.
type Recorder interface {
	Record(entry history.Entry) error
}

// Config carries the engine knobs.
type Config struct {
	ChainID *big.Int
	// ReceiptAttempts and ReceiptInterval bound the user-tx receipt poll.
	ReceiptAttempts int
	ReceiptInterval time.Duration
}

// DefaultConfig returns the stock engine settings for the given chain.
func DefaultConfig(chainID *big.Int) Config {
	return Config{
		ChainID:         chainID,
		ReceiptAttempts: 30,
		ReceiptInterval: 2 * time.Second,
	}
}

// Engine runs the relay pipeline. All methods are safe for concurrent use;
// each request is strictly sequential internally.
type Engine struct {
	cfg       Config
	client    chain.Client
	decoder   *txdecoder.Decoder
	policy    *gas.Policy
	funders   FunderFactory
	formatter Formatter
	recorder  Recorder
	logger    logging.Logger
}

// New creates an engine. formatter and recorder may be nil.
func New(cfg Config, client chain.Client, policy *gas.Policy, funders FunderFactory, formatter Formatter, recorder Recorder) *Engine {
	if cfg.ReceiptAttempts <= 0 {
		cfg.ReceiptAttempts = 30
	}
	if cfg.ReceiptInterval <= 0 {
		cfg.ReceiptInterval = 2 * time.Second
	}
	return &Engine{
		cfg:       cfg,
		client:    client,
		decoder:   txdecoder.New(cfg.ChainID),
		policy:    policy,
		funders:   funders,
		formatter: formatter,
		recorder:  recorder,
		logger:    logging.New("relay"),
	}
}

// Process relays one signed transaction. The sender recovered from the
// signature is authoritative; the request's wallet address is a hint used
// for logging only. The signed hex reaches the chain byte-for-byte as
// supplied.
func (e *Engine) Process(ctx context.Context, tenant *gasrelay.TenantContext, req gasrelay.RelayRequest) (outcome gasrelay.RelayOutcome) {
	requestID := RequestIDFrom(ctx)
	log := e.logger.With("request", requestID, "operation", req.OperationName)

	var fundingTx common.Hash
	var senderHex string
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("relay panic recovered: %v", r)
			outcome = gasrelay.RelayOutcome{Success: false, Error: fmt.Sprintf("internal error: %v", r)}
		}
		e.record(requestID, tenant, req, senderHex, fundingTx, outcome)
	}()

	// Step 1: decode and recover the sender.
	decoded, err := e.decoder.Decode(req.SignedTransactionHex)
	if err != nil {
		log.Warnf("decode failed: %v", err)
		return gasrelay.RelayOutcome{Success: false, Error: err.Error()}
	}
	sender := decoded.Sender
	senderHex = sender.Hex()

	// Step 2: sender reconciliation. The hint never overrides recovery.
	if req.UserWalletAddress != "" && common.HexToAddress(req.UserWalletAddress) != sender {
		log.Warnf("wallet hint %s differs from recovered sender %s", req.UserWalletAddress, sender.Hex())
	}

	// Step 3: validate against the gas ceilings.
	networkGasPrice, err := e.client.NetworkGasPrice(ctx)
	if err != nil {
		log.Errorf("network gas price unavailable: %v", err)
		return gasrelay.RelayOutcome{Success: false, Error: err.Error(), ContractAddress: decoded.ToAddressHex()}
	}
	if err := e.policy.Validate(decoded, req.OperationName, req.ExpectedGasLimit, networkGasPrice); err != nil {
		log.Warnf("validation failed for sender %s: %v", sender.Hex(), err)
		return gasrelay.RelayOutcome{Success: false, Error: err.Error(), ContractAddress: decoded.ToAddressHex()}
	}

	// Step 4: funding decision.
	balance, err := e.client.Balance(ctx, sender)
	if err != nil {
		log.Errorf("balance lookup failed for %s: %v", sender.Hex(), err)
		return gasrelay.RelayOutcome{Success: false, Error: err.Error(), ContractAddress: decoded.ToAddressHex()}
	}
	funder := e.funders(tenantWallet(tenant))
	decision := e.policy.DecideFunding(ctx, decoded, balance, funder)

	if decision.Skip {
		log.Infof("sender %s holds %s, no funding needed", sender.Hex(), e.formatWei(ctx, balance))
	} else {
		if !tenant.CanFund() {
			err := gasrelay.E(gasrelay.KindNoTenantWallet,
				"funding of %s wei required but tenant %q has no funding wallet", decision.Deficit, tenantName(tenant))
			log.Warnf("%v", err)
			return gasrelay.RelayOutcome{Success: false, Error: err.Error(), ContractAddress: decoded.ToAddressHex()}
		}

		// Step 5: fund through the gas payer contract.
		log.Infof("funding sender %s: deficit %s, fee %s",
			sender.Hex(), e.formatWei(ctx, decision.Deficit), e.formatWei(ctx, decision.Fee))
		fundingTx, err = funder.FundAndRelay(ctx, sender, decision.Deficit, decision.Transfer)
		if err != nil {
			log.Errorf("funding failed: %v", err)
			return gasrelay.RelayOutcome{Success: false, Error: err.Error(), ContractAddress: decoded.ToAddressHex()}
		}

		// Step 6: wait for the balance to reflect the transfer.
		if err := e.policy.WaitForBalance(ctx, e.client, sender, decision.Needed); err != nil {
			log.Errorf("funding wait failed: %v", err)
			return gasrelay.RelayOutcome{Success: false, Error: err.Error(), ContractAddress: decoded.ToAddressHex()}
		}
	}

	// Step 7: forward the user's bytes exactly as supplied.
	txHash, err := e.client.SendRaw(ctx, decoded.RawHex)
	if err != nil {
		log.Errorf("forward failed: %v", err)
		fwdErr := gasrelay.Wrap(gasrelay.KindForwardFailed, err, "node rejected the transaction")
		return gasrelay.RelayOutcome{Success: false, Error: fwdErr.Error(), ContractAddress: decoded.ToAddressHex()}
	}
	log.Infof("forwarded tx %s for sender %s (funding tx: %s)", txHash.Hex(), sender.Hex(), fundingHashForLog(fundingTx))

	// Step 8: await the receipt.
	receipt, err := e.waitReceipt(ctx, txHash)
	if err != nil {
		log.Warnf("receipt wait for %s: %v", txHash.Hex(), err)
		return gasrelay.RelayOutcome{
			Success:         false,
			TransactionHash: txHash.Hex(),
			ContractAddress: decoded.ToAddressHex(),
			Error:           err.Error(),
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Warnf("tx %s mined but reverted", txHash.Hex())
		return gasrelay.RelayOutcome{
			Success:         false,
			TransactionHash: txHash.Hex(),
			ContractAddress: decoded.ToAddressHex(),
			Error:           "Transaction failed on blockchain",
		}
	}

	log.Infof("tx %s confirmed in block %s", txHash.Hex(), receipt.BlockNumber)
	return gasrelay.RelayOutcome{
		Success:         true,
		TransactionHash: txHash.Hex(),
		ContractAddress: decoded.ToAddressHex(),
	}
}

// waitReceipt polls for the user-tx receipt within the configured budget.
func (e *Engine) waitReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	for i := 0; i < e.cfg.ReceiptAttempts; i++ {
		receipt, err := e.client.Receipt(ctx, txHash)
		if err != nil {
			e.logger.Warnf("receipt poll %d/%d for %s failed: %v", i+1, e.cfg.ReceiptAttempts, txHash.Hex(), err)
		} else if receipt != nil {
			return receipt, nil
		}
		if i == e.cfg.ReceiptAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, gasrelay.Wrap(gasrelay.KindChainRPC, ctx.Err(),
				"request deadline reached while awaiting receipt")
		case <-time.After(e.cfg.ReceiptInterval):
		}
	}
	return nil, gasrelay.E(gasrelay.KindChainRPC,
		"transaction not confirmed within %d polls", e.cfg.ReceiptAttempts)
}

func (e *Engine) record(requestID string, tenant *gasrelay.TenantContext, req gasrelay.RelayRequest, senderHex string, fundingTx common.Hash, outcome gasrelay.RelayOutcome) {
	if e.recorder == nil {
		return
	}
	entry := history.Entry{
		RequestID:  requestID,
		APIKeyName: tenantName(tenant),
		Operation:  req.OperationName,
		Sender:     senderHex,
		TxHash:     outcome.TransactionHash,
		Funded:     fundingTx != (common.Hash{}),
		FundingTx:  fundingHashOrEmpty(fundingTx),
		Success:    outcome.Success,
		Error:      outcome.Error,
		At:         time.Now().UTC(),
	}
	if err := e.recorder.Record(entry); err != nil {
		e.logger.Warnf("failed to record relay history: %v", err)
	}
}

func fundingHashOrEmpty(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}

func (e *Engine) formatWei(ctx context.Context, wei *big.Int) string {
	if e.formatter == nil || e.cfg.ChainID == nil {
		return fmt.Sprintf("%s wei", wei)
	}
	return e.formatter.FormatWei(ctx, e.cfg.ChainID.Uint64(), wei)
}

func tenantName(tenant *gasrelay.TenantContext) string {
	if tenant == nil {
		return ""
	}
	return tenant.APIKeyName
}

func tenantWallet(tenant *gasrelay.TenantContext) *gasrelay.WalletBinding {
	if tenant == nil {
		return nil
	}
	return tenant.Wallet
}

func fundingHashForLog(h common.Hash) string {
	if h == (common.Hash{}) {
		return "none"
	}
	return h.Hex()
}
