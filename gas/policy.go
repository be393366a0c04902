// Package gas implements the relay's gas policy: ceiling validation of user
// transactions, funding-amount computation, and the balance-update wait.
package gas

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sponsorlabs/gasrelay"
	"github.com/sponsorlabs/gasrelay/logging"
	"github.com/sponsorlabs/gasrelay/txdecoder"
)

// Config carries the policy knobs. Multipliers are fractional in config and
// converted to integer percent factors internally so wei arithmetic never
// touches floating point.
type Config struct {
	PriceMultiplier       float64
	MinimumGasPriceWei    *big.Int
	MaxTotalCostWei       *big.Int
	MaxGasLimit           uint64
	MaxGasPriceMultiplier float64
	BalanceWaitAttempts   int
	BalanceWaitInterval   time.Duration
}

// DefaultConfig returns the stock policy settings.
func DefaultConfig() Config {
	return Config{
		PriceMultiplier:       1.20,
		MinimumGasPriceWei:    big.NewInt(6),
		MaxTotalCostWei:       big.NewInt(540_000_000),
		MaxGasLimit:           1_000_000,
		MaxGasPriceMultiplier: 3.0,
		BalanceWaitAttempts:   15,
		BalanceWaitInterval:   2 * time.Second,
	}
}

// FeeEstimator is the slice of the gas payer adapter the policy needs.
type FeeEstimator interface {
	CalculateFee(ctx context.Context, amount *big.Int) (*big.Int, error)
}

// BalanceReader is the slice of the chain client the balance wait needs.
type BalanceReader interface {
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
}

// FundingDecision is the outcome of the funding computation. When Skip is
// true all amounts are nil and no contract call may be made.
type FundingDecision struct {
	Skip bool
	// Needed is padded gas cost plus transaction value.
	Needed *big.Int
	// Deficit is what the user must receive: needed minus current balance.
	Deficit *big.Int
	// Fee is the service fee retained by the contract.
	Fee *big.Int
	// Transfer is deficit plus fee, the value sent to the contract.
	Transfer *big.Int
}

// expectedGasBufferPct is the buffer applied to plugin-declared gas limits.
const expectedGasBufferPct = 120

// fallbackFeePct is used when the contract fee estimate is unavailable.
const fallbackFeePct = 5

// Policy validates transactions and computes funding amounts.
type Policy struct {
	cfg                Config
	priceMultiplierPct int64
	maxGasPriceMultPct int64
	logger             logging.Logger
}

// New creates a policy from cfg.
func New(cfg Config) *Policy {
	return &Policy{
		cfg:                cfg,
		priceMultiplierPct: pctFactor(cfg.PriceMultiplier),
		maxGasPriceMultPct: pctFactor(cfg.MaxGasPriceMultiplier),
		logger:             logging.New("gas"),
	}
}

// pctFactor converts a fractional multiplier to an integer percent factor,
// e.g. 1.2 -> 120.
func pctFactor(mult float64) int64 {
	return int64(math.Round(mult * 100))
}

// mulPct multiplies a wei amount by an integer percent factor.
func mulPct(x *big.Int, pct int64) *big.Int {
	out := new(big.Int).Mul(x, big.NewInt(pct))
	return out.Div(out, big.NewInt(100))
}

// Validate checks the decoded transaction against the gas ceilings. When
// expectedGasLimit is non-zero the limit ceiling is the expected value plus a
// 20% buffer; otherwise the configured maximum applies and the total-cost
// ceiling is additionally enforced. networkGasPrice caps the price via the
// configured multiplier.
func (p *Policy) Validate(decoded *txdecoder.DecodedTx, operation string, expectedGasLimit uint64, networkGasPrice *big.Int) error {
	gasLimitCeiling := p.cfg.MaxGasLimit
	if expectedGasLimit > 0 {
		gasLimitCeiling = expectedGasLimit * expectedGasBufferPct / 100
	}
	if decoded.GasLimit > gasLimitCeiling {
		return gasrelay.E(gasrelay.KindValidation,
			"gas limit %d exceeds ceiling %d for operation %q",
			decoded.GasLimit, gasLimitCeiling, operation)
	}

	priceCeiling := mulPct(networkGasPrice, p.maxGasPriceMultPct)
	if decoded.EffectiveGasPrice.Cmp(priceCeiling) > 0 {
		return gasrelay.E(gasrelay.KindValidation,
			"gas price %s wei exceeds ceiling %s wei (network price %s wei) for operation %q",
			decoded.EffectiveGasPrice, priceCeiling, networkGasPrice, operation)
	}

	if expectedGasLimit == 0 {
		totalCost := new(big.Int).Mul(new(big.Int).SetUint64(decoded.GasLimit), decoded.EffectiveGasPrice)
		if totalCost.Cmp(p.cfg.MaxTotalCostWei) > 0 {
			return gasrelay.E(gasrelay.KindValidation,
				"total cost %s wei exceeds maximum %s wei for operation %q",
				totalCost, p.cfg.MaxTotalCostWei, operation)
		}
	}
	return nil
}

// Needed returns the funding target for a transaction: padded gas cost plus
// transaction value.
func (p *Policy) Needed(decoded *txdecoder.DecodedTx) *big.Int {
	baseCost := new(big.Int).Mul(new(big.Int).SetUint64(decoded.GasLimit), decoded.EffectiveGasPrice)
	padded := mulPct(baseCost, p.priceMultiplierPct)
	return padded.Add(padded, decoded.Value)
}

// DecideFunding compares the sender balance against the funding target and,
// when short, asks the estimator for the service fee. Estimator failures are
// soft: the fee falls back to a fixed percentage of the deficit.
func (p *Policy) DecideFunding(ctx context.Context, decoded *txdecoder.DecodedTx, balance *big.Int, estimator FeeEstimator) *FundingDecision {
	needed := p.Needed(decoded)
	if balance.Cmp(needed) >= 0 {
		return &FundingDecision{Skip: true}
	}
	deficit := new(big.Int).Sub(needed, balance)

	fee, err := estimator.CalculateFee(ctx, deficit)
	if err != nil {
		fee = mulPct(deficit, fallbackFeePct)
		p.logger.Warnf("fee estimate unavailable, falling back to %d%% (%s wei): %v", fallbackFeePct, fee, err)
	}

	return &FundingDecision{
		Needed:   needed,
		Deficit:  deficit,
		Fee:      fee,
		Transfer: new(big.Int).Add(deficit, fee),
	}
}

// WaitForBalance polls the sender balance until it reaches needed or the
// attempt budget (or ctx) runs out. It returns as soon as the balance meets
// the target; exact equality is not required.
func (p *Policy) WaitForBalance(ctx context.Context, reader BalanceReader, addr common.Address, needed *big.Int) error {
	attempts := p.cfg.BalanceWaitAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		balance, err := reader.Balance(ctx, addr)
		if err != nil {
			p.logger.Warnf("balance poll %d/%d for %s failed: %v", i+1, attempts, addr.Hex(), err)
		} else if balance.Cmp(needed) >= 0 {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return gasrelay.Wrap(gasrelay.KindFundingTimeout, ctx.Err(),
				"funding wait for %s cancelled", addr.Hex())
		case <-time.After(p.cfg.BalanceWaitInterval):
		}
	}
	return gasrelay.E(gasrelay.KindFundingTimeout,
		"balance of %s did not reach %s wei within %d polls", addr.Hex(), needed, attempts)
}

// GasPriceFloor applies the configured minimum to a network gas price.
func (p *Policy) GasPriceFloor(networkGasPrice *big.Int) *big.Int {
	if p.cfg.MinimumGasPriceWei != nil && networkGasPrice.Cmp(p.cfg.MinimumGasPriceWei) < 0 {
		return new(big.Int).Set(p.cfg.MinimumGasPriceWei)
	}
	return networkGasPrice
}
