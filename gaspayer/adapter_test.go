package gaspayer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sponsorlabs/gasrelay"
)

var (
	testChainID  = big.NewInt(1337)
	testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

// fakeClient serves the calls the adapter makes. The calculateFee result is
// ABI-encoded on the fly; sent transactions get an immediate receipt.
type fakeClient struct {
	mu       sync.Mutex
	fee      *big.Int
	callErr  error
	sent     []*types.Transaction
	status   uint64
	estimate uint64
}

func (f *fakeClient) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeClient) SendRaw(ctx context.Context, rawHex string) (common.Hash, error) {
	return common.Hash{}, nil
}

func (f *fakeClient) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: f.status, BlockNumber: big.NewInt(1)}, nil
}

func (f *fakeClient) NetworkGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) { return testChainID, nil }

func (f *fakeClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if f.estimate == 0 {
		return 0, errors.New("estimate failed")
	}
	return f.estimate, nil
}

func (f *fakeClient) NonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeClient) CallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return parsedABI.Methods["calculateFee"].Outputs.Pack(f.fee)
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeClient) Close() {}

func testWallet(t *testing.T) *gasrelay.WalletBinding {
	t.Helper()
	wallet, err := gasrelay.NewWalletBinding("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", "")
	if err != nil {
		t.Fatalf("Failed to build wallet: %v", err)
	}
	return wallet
}

func TestCalculateFee(t *testing.T) {
	client := &fakeClient{fee: big.NewInt(42_000)}
	adapter := New(testContract, nil, client, testChainID)

	fee, err := adapter.CalculateFee(context.Background(), big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("CalculateFee failed: %v", err)
	}
	if fee.Cmp(big.NewInt(42_000)) != 0 {
		t.Errorf("Fee = %s, expected 42000", fee)
	}
}

func TestCalculateFee_CallError(t *testing.T) {
	client := &fakeClient{callErr: errors.New("execution reverted")}
	adapter := New(testContract, nil, client, testChainID)

	_, err := adapter.CalculateFee(context.Background(), big.NewInt(1))
	if err == nil {
		t.Fatal("Expected an error")
	}
	if gasrelay.KindOf(err) != gasrelay.KindFeeEstimate {
		t.Errorf("Expected fee-estimate kind, got %s", gasrelay.KindOf(err))
	}
}

func TestFundAndRelay(t *testing.T) {
	client := &fakeClient{fee: big.NewInt(0), status: types.ReceiptStatusSuccessful, estimate: 90_000}
	wallet := testWallet(t)
	adapter := New(testContract, wallet, client, testChainID)

	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	gasAmount := big.NewInt(3_000_000_000_000_000)
	total := big.NewInt(3_150_000_000_000_000)

	txHash, err := adapter.FundAndRelay(context.Background(), user, gasAmount, total)
	if err != nil {
		t.Fatalf("FundAndRelay failed: %v", err)
	}
	if txHash == (common.Hash{}) {
		t.Error("Expected a funding tx hash")
	}
	if len(client.sent) != 1 {
		t.Fatalf("Expected one submitted transaction, got %d", len(client.sent))
	}
	sent := client.sent[0]
	if *sent.To() != testContract {
		t.Errorf("Funding tx to %s, expected the contract %s", sent.To().Hex(), testContract.Hex())
	}
	if sent.Value().Cmp(total) != 0 {
		t.Errorf("Funding tx value %s, expected %s", sent.Value(), total)
	}
	if sent.Nonce() != 7 {
		t.Errorf("Funding tx nonce %d, expected 7", sent.Nonce())
	}
	sender, err := types.Sender(types.LatestSignerForChainID(testChainID), sent)
	if err != nil {
		t.Fatalf("Failed to recover funding tx sender: %v", err)
	}
	if sender != wallet.Address {
		t.Errorf("Funding tx signed by %s, expected the tenant wallet %s", sender.Hex(), wallet.Address.Hex())
	}
}

func TestFundAndRelay_GasEstimateFallback(t *testing.T) {
	client := &fakeClient{fee: big.NewInt(0), status: types.ReceiptStatusSuccessful}
	adapter := New(testContract, testWallet(t), client, testChainID)

	_, err := adapter.FundAndRelay(context.Background(),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(100), big.NewInt(105))
	if err != nil {
		t.Fatalf("FundAndRelay should survive a failed gas estimate: %v", err)
	}
	if client.sent[0].Gas() != fundGasFallback {
		t.Errorf("Gas limit %d, expected the fallback %d", client.sent[0].Gas(), fundGasFallback)
	}
}

func TestFundAndRelay_RevertedReceipt(t *testing.T) {
	client := &fakeClient{fee: big.NewInt(0), status: types.ReceiptStatusFailed, estimate: 90_000}
	adapter := New(testContract, testWallet(t), client, testChainID)

	_, err := adapter.FundAndRelay(context.Background(),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
		big.NewInt(100), big.NewInt(105))
	if err == nil {
		t.Fatal("A reverted funding receipt must fail")
	}
	if gasrelay.KindOf(err) != gasrelay.KindFundingFailed {
		t.Errorf("Expected funding-failed kind, got %s", gasrelay.KindOf(err))
	}
}

func TestFundAndRelay_NoWallet(t *testing.T) {
	adapter := New(testContract, nil, &fakeClient{}, testChainID)
	_, err := adapter.FundAndRelay(context.Background(), common.Address{}, big.NewInt(1), big.NewInt(1))
	if err == nil {
		t.Fatal("Expected an error without a wallet")
	}
	if gasrelay.KindOf(err) != gasrelay.KindNoTenantWallet {
		t.Errorf("Expected no-tenant-wallet kind, got %s", gasrelay.KindOf(err))
	}
}
