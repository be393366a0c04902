package txdecoder

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sponsorlabs/gasrelay"
)

var testChainID = big.NewInt(1337)

// signTestTx signs an inner transaction and returns its hex plus the signer
// address.
func signTestTx(t *testing.T, inner types.TxData) (string, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	signed, err := types.SignTx(types.NewTx(inner), types.LatestSignerForChainID(testChainID), key)
	if err != nil {
		t.Fatalf("Failed to sign transaction: %v", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		t.Fatalf("Failed to encode transaction: %v", err)
	}
	return hexutil.Encode(raw), crypto.PubkeyToAddress(key.PublicKey)
}

func TestDecode_Legacy(t *testing.T) {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	rawHex, sender := signTestTx(t, &types.LegacyTx{
		Nonce:    7,
		GasPrice: big.NewInt(25_000_000_000),
		Gas:      100_000,
		To:       &to,
		Value:    big.NewInt(12345),
		Data:     []byte{0xde, 0xad},
	})

	decoded, err := New(testChainID).Decode(rawHex)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Sender != sender {
		t.Errorf("Recovered sender %s, expected %s", decoded.Sender.Hex(), sender.Hex())
	}
	if decoded.Type != TxTypeLegacy {
		t.Errorf("Expected legacy type, got %s", decoded.Type)
	}
	if decoded.GasLimit != 100_000 {
		t.Errorf("Gas limit %d, expected 100000", decoded.GasLimit)
	}
	if decoded.EffectiveGasPrice.Cmp(big.NewInt(25_000_000_000)) != 0 {
		t.Errorf("Effective gas price %s, expected 25000000000", decoded.EffectiveGasPrice)
	}
	if decoded.Value.Cmp(big.NewInt(12345)) != 0 {
		t.Errorf("Value %s, expected 12345", decoded.Value)
	}
	if *decoded.To != to {
		t.Errorf("To %s, expected %s", decoded.To.Hex(), to.Hex())
	}
	if decoded.RawHex != rawHex {
		t.Error("RawHex must be the exact input string")
	}
}

func TestDecode_EIP1559(t *testing.T) {
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	rawHex, sender := signTestTx(t, &types.DynamicFeeTx{
		ChainID:   testChainID,
		Nonce:     1,
		GasTipCap: big.NewInt(2_000_000_000),
		GasFeeCap: big.NewInt(40_000_000_000),
		Gas:       60_000,
		To:        &to,
		Value:     big.NewInt(0),
	})

	decoded, err := New(testChainID).Decode(rawHex)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Type != TxTypeEIP1559 {
		t.Errorf("Expected eip1559 type, got %s", decoded.Type)
	}
	// The effective price of a dynamic-fee tx is its fee cap.
	if decoded.EffectiveGasPrice.Cmp(big.NewInt(40_000_000_000)) != 0 {
		t.Errorf("Effective gas price %s, expected maxFeePerGas 40000000000", decoded.EffectiveGasPrice)
	}
	if decoded.Sender != sender {
		t.Errorf("Recovered sender %s, expected %s", decoded.Sender.Hex(), sender.Hex())
	}
}

func TestDecode_BarePrefixEquivalent(t *testing.T) {
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	rawHex, _ := signTestTx(t, &types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      21_000,
		To:       &to,
		Value:    big.NewInt(1),
	})

	d := New(testChainID)
	withPrefix, err := d.Decode(rawHex)
	if err != nil {
		t.Fatalf("Decode with prefix failed: %v", err)
	}
	bare, err := d.Decode(rawHex[2:])
	if err != nil {
		t.Fatalf("Decode without prefix failed: %v", err)
	}
	if withPrefix.Hash != bare.Hash {
		t.Error("Prefix handling changed the decoded transaction")
	}
}

func TestDecode_Deterministic(t *testing.T) {
	to := common.HexToAddress("0x4444444444444444444444444444444444444444")
	rawHex, _ := signTestTx(t, &types.LegacyTx{
		Nonce:    3,
		GasPrice: big.NewInt(5_000_000_000),
		Gas:      50_000,
		To:       &to,
		Value:    big.NewInt(99),
	})

	d := New(testChainID)
	first, err := d.Decode(rawHex)
	if err != nil {
		t.Fatalf("First decode failed: %v", err)
	}
	second, err := d.Decode(rawHex)
	if err != nil {
		t.Fatalf("Second decode failed: %v", err)
	}
	if first.Hash != second.Hash || first.Sender != second.Sender || first.GasLimit != second.GasLimit {
		t.Error("Decoding the same hex twice produced different results")
	}
}

func TestDecode_Errors(t *testing.T) {
	d := New(testChainID)
	cases := []struct {
		name string
		hex  string
	}{
		{"empty", ""},
		{"not hex", "0xzzzz"},
		{"odd length", "0xabc"},
		{"not a transaction", "0xdeadbeef"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Decode(tc.hex)
			if err == nil {
				t.Fatal("Expected a decode error")
			}
			if gasrelay.KindOf(err) != gasrelay.KindDecode {
				t.Errorf("Expected decode kind, got %s", gasrelay.KindOf(err))
			}
		})
	}
}
