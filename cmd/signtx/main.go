// Command signtx signs a transaction with a local key and prints the raw
// hex, ready to be posted to a relay endpoint. Useful for trying the service
// against a devnet.
package main

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	var (
		to         = flag.String("to", "", "Recipient address (empty for contract creation)")
		value      = flag.String("value", "0", "Value to send in wei")
		gasLimit   = flag.Uint64("gas", 21000, "Gas limit")
		gasPrice   = flag.String("gasPrice", "1000000000", "Gas price in wei (legacy)")
		maxFee     = flag.String("maxFee", "", "Max fee per gas in wei (switches to EIP-1559)")
		maxTip     = flag.String("maxTip", "1000000000", "Max priority fee per gas in wei (EIP-1559)")
		data       = flag.String("data", "", "Transaction data (hex)")
		nonce      = flag.Uint64("nonce", 0, "Transaction nonce")
		chainID    = flag.Int64("chainId", 1337, "Chain ID")
		genKey     = flag.Bool("genkey", false, "Generate a new key pair")
		privKeyHex = flag.String("key", "", "Private key (hex)")
	)
	flag.Parse()

	if *genKey {
		generateKeyPair()
		return
	}

	if *privKeyHex == "" {
		fmt.Println("Error: Private key is required. Use -key flag or -genkey to generate a new key.")
		os.Exit(1)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(*privKeyHex, "0x"))
	if err != nil {
		log.Fatalf("Invalid private key: %v", err)
	}
	from := crypto.PubkeyToAddress(privateKey.Public().(*ecdsa.PublicKey))
	fmt.Printf("From address: %s\n", from.Hex())

	valueBig := mustBig(*value, "value")
	payload, err := parseData(*data)
	if err != nil {
		log.Fatalf("Invalid data: %v", err)
	}

	var toAddr *common.Address
	if *to != "" {
		addr := common.HexToAddress(*to)
		toAddr = &addr
	}

	var tx *types.Transaction
	if *maxFee != "" {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   big.NewInt(*chainID),
			Nonce:     *nonce,
			GasTipCap: mustBig(*maxTip, "maxTip"),
			GasFeeCap: mustBig(*maxFee, "maxFee"),
			Gas:       *gasLimit,
			To:        toAddr,
			Value:     valueBig,
			Data:      payload,
		})
	} else {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    *nonce,
			GasPrice: mustBig(*gasPrice, "gasPrice"),
			Gas:      *gasLimit,
			To:       toAddr,
			Value:    valueBig,
			Data:     payload,
		})
	}

	signer := types.LatestSignerForChainID(big.NewInt(*chainID))
	signed, err := types.SignTx(tx, signer, privateKey)
	if err != nil {
		log.Fatalf("Failed to sign transaction: %v", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		log.Fatalf("Failed to encode transaction: %v", err)
	}

	fmt.Printf("Transaction hash: %s\n", signed.Hash().Hex())
	fmt.Printf("Signed hex:\n%s\n", hexutil.Encode(raw))
}

func generateKeyPair() {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}
	fmt.Printf("Private key: %x\n", crypto.FromECDSA(key))
	fmt.Printf("Address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func mustBig(s, name string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		log.Fatalf("Invalid %s: %s", name, s)
	}
	return v
}

func parseData(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
