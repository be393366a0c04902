// Package txdecoder parses signed EVM transactions and recovers their sender.
package txdecoder

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sponsorlabs/gasrelay"
)

// TxType distinguishes the supported transaction encodings.
type TxType string

const (
	TxTypeLegacy  TxType = "legacy"
	TxTypeEIP1559 TxType = "eip1559"
)

// DecodedTx is the read-only view of one signed transaction. RawHex is the
// exact string the client supplied; the forwarder sends it unchanged.
type DecodedTx struct {
	Sender            common.Address
	To                *common.Address
	Value             *big.Int
	Data              []byte
	GasLimit          uint64
	EffectiveGasPrice *big.Int
	Type              TxType
	Hash              common.Hash
	RawHex            string
}

// Decoder parses signed transaction hex. Decoding is pure: the same hex
// always yields the same DecodedTx.
type Decoder struct {
	signer types.Signer
}

// New creates a decoder for the given chain id. The latest signer accepts
// both legacy and typed envelopes.
func New(chainID *big.Int) *Decoder {
	return &Decoder{signer: types.LatestSignerForChainID(chainID)}
}

// Decode parses a hex-encoded signed transaction (0x-prefixed or bare) and
// recovers the sender from the signature. Sender recovery failure fails the
// whole decode.
func (d *Decoder) Decode(rawHex string) (*DecodedTx, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(rawHex), "0x"), "0X")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, gasrelay.Wrap(gasrelay.KindDecode, err, "malformed transaction hex")
	}
	if len(raw) == 0 {
		return nil, gasrelay.E(gasrelay.KindDecode, "empty transaction hex")
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, gasrelay.Wrap(gasrelay.KindDecode, err, "failed to parse signed transaction")
	}

	var txType TxType
	switch tx.Type() {
	case types.LegacyTxType, types.AccessListTxType:
		txType = TxTypeLegacy
	case types.DynamicFeeTxType:
		txType = TxTypeEIP1559
	default:
		return nil, gasrelay.E(gasrelay.KindDecode, "unsupported transaction type %d", tx.Type())
	}

	sender, err := types.Sender(d.signer, tx)
	if err != nil {
		return nil, gasrelay.Wrap(gasrelay.KindDecode, err, "failed to recover transaction sender")
	}

	return &DecodedTx{
		Sender:            sender,
		To:                tx.To(),
		Value:             tx.Value(),
		Data:              tx.Data(),
		GasLimit:          tx.Gas(),
		EffectiveGasPrice: effectiveGasPrice(tx),
		Type:              txType,
		Hash:              tx.Hash(),
		RawHex:            rawHex,
	}, nil
}

// effectiveGasPrice is the gasPrice field for legacy transactions and the
// maxFeePerGas field for dynamic-fee transactions.
func effectiveGasPrice(tx *types.Transaction) *big.Int {
	if tx.Type() == types.DynamicFeeTxType {
		return tx.GasFeeCap()
	}
	return tx.GasPrice()
}

// ToAddressHex returns the destination address as hex, or the empty string
// for contract-creation transactions.
func (d *DecodedTx) ToAddressHex() string {
	if d.To == nil {
		return ""
	}
	return d.To.Hex()
}
