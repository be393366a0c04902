package cli

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sponsorlabs/gasrelay"
	"github.com/sponsorlabs/gasrelay/api"
	"github.com/sponsorlabs/gasrelay/auth"
	"github.com/sponsorlabs/gasrelay/chain"
	"github.com/sponsorlabs/gasrelay/gas"
	"github.com/sponsorlabs/gasrelay/gaspayer"
	"github.com/sponsorlabs/gasrelay/history"
	"github.com/sponsorlabs/gasrelay/internal/config"
	"github.com/sponsorlabs/gasrelay/logging"
	"github.com/sponsorlabs/gasrelay/oracle"
	"github.com/sponsorlabs/gasrelay/plugin"
	"github.com/sponsorlabs/gasrelay/plugins/nft"
	"github.com/sponsorlabs/gasrelay/relay"
	"github.com/sponsorlabs/gasrelay/security"
)

// runServer assembles and runs the relay service until SIGINT/SIGTERM.
func runServer() {
	cfg, err := config.NewViper(cfgFile)
	if err != nil {
		logging.New("main").Fatalf("configuration error: %v", err)
	}
	logging.SetLogLevel(cfg.LogLevel)
	logger := logging.New("main")

	// Security store and hot-reload watcher.
	store, err := security.NewStore(cfg.SecurityConfigPath)
	if err != nil {
		logger.Fatalf("failed to load security config: %v", err)
	}
	if err := store.Watch(); err != nil {
		logger.Fatalf("failed to watch security config: %v", err)
	}
	defer store.Close()

	// Chain client and chain id.
	dialCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	client, err := chain.Dial(dialCtx, cfg.RPCURL)
	cancel()
	if err != nil {
		logger.Fatalf("failed to connect to RPC endpoint: %v", err)
	}
	defer client.Close()

	chainID := new(big.Int).SetUint64(cfg.ChainID)
	if cfg.ChainID == 0 {
		probeCtx, probeCancel := context.WithTimeout(context.Background(), 15*time.Second)
		chainID, err = client.ChainID(probeCtx)
		probeCancel()
		if err != nil {
			logger.Fatalf("chain_id not configured and RPC probe failed: %v", err)
		}
	}
	logger.Infof("connected to %s (chain id %s)", cfg.RPCURL, chainID)

	// Gas policy.
	policy := gas.New(gas.Config{
		PriceMultiplier:       cfg.GasPriceMultiplier,
		MinimumGasPriceWei:    cfg.MinimumGasPriceWei,
		MaxTotalCostWei:       cfg.MaxTotalCostWei,
		MaxGasLimit:           cfg.MaxGasLimit,
		MaxGasPriceMultiplier: cfg.MaxGasPriceMultiplier,
		BalanceWaitAttempts:   cfg.BalanceWaitAttempts,
		BalanceWaitInterval:   cfg.BalanceWaitInterval,
	})

	// Optional price oracle for human-readable amounts.
	var formatter relay.Formatter
	if cfg.OracleEnabled {
		formatter = oracle.New(oracle.WithTTL(cfg.OracleCacheTTL))
	}

	// Optional relay history.
	var recorder relay.Recorder
	var hist *history.Store
	if cfg.HistoryEnabled {
		hist, err = history.Open(filepath.Join(cfg.HistoryDataDir, "history.db"))
		if err != nil {
			logger.Fatalf("failed to open history store: %v", err)
		}
		defer hist.Close()
		recorder = hist
	}

	// Relay engine with per-tenant gas payer adapters.
	contract := cfg.GasPayerContractAddr
	funders := relay.FunderFactory(func(wallet *gasrelay.WalletBinding) relay.Funder {
		return gaspayer.New(contract, wallet, client, chainID)
	})
	engine := relay.New(relay.DefaultConfig(chainID), client, policy, funders, formatter, recorder)

	// Plugins.
	registry := plugin.NewRegistry()
	if err := registry.Register(nft.New()); err != nil {
		logger.Fatalf("plugin registration failed: %v", err)
	}
	if err := registry.Initialize(engine); err != nil {
		logger.Fatalf("plugin initialization failed: %v", err)
	}

	// HTTP surface.
	gate := auth.NewGate(store, cfg.SecurityEnabled)
	handlers := api.NewHandlers(registry, client, policy, hist)
	server := api.NewServer(cfg.ListenAddr, gate, handlers, registry)
	server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Infof("received %s, shutting down", sig)

	if err := server.Stop(); err != nil {
		logger.Errorf("HTTP shutdown error: %v", err)
	}
}
