// Package config builds the service configuration from viper: defaults,
// an optional config file, and GASRELAY_-prefixed environment variables.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the resolved service configuration.
type Config struct {
	ListenAddr string
	LogLevel   string

	RPCURL               string
	ChainID              uint64
	GasPayerContractAddr common.Address

	GasPriceMultiplier    float64
	MinimumGasPriceWei    *big.Int
	MaxTotalCostWei       *big.Int
	MaxGasLimit           uint64
	MaxGasPriceMultiplier float64
	BalanceWaitAttempts   int
	BalanceWaitInterval   time.Duration

	SecurityEnabled    bool
	SecurityConfigPath string

	OracleEnabled  bool
	OracleCacheTTL time.Duration

	HistoryEnabled bool
	HistoryDataDir string
}

// setDefaults registers every default on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("chain_id", 0)
	v.SetDefault("gas.price_multiplier", 1.20)
	v.SetDefault("gas.minimum_gas_price_wei", "6")
	v.SetDefault("gas.max_total_cost_wei", "540000000")
	v.SetDefault("gas.max_gas_limit", 1_000_000)
	v.SetDefault("gas.max_gas_price_multiplier", 3.0)
	v.SetDefault("gas.balance_wait_attempts", 15)
	v.SetDefault("gas.balance_wait_interval", "2s")
	v.SetDefault("security.enabled", true)
	v.SetDefault("security.config_path", "./config/security-config.json")
	v.SetDefault("oracle.enabled", true)
	v.SetDefault("oracle.cache_ttl", "5m")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.data_dir", "./data")
}

// NewViper loads the configuration. cfgFile may be empty; ~ is expanded.
func NewViper(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GASRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		ListenAddr:            v.GetString("listen_addr"),
		LogLevel:              v.GetString("log_level"),
		RPCURL:                v.GetString("rpc_url"),
		ChainID:               v.GetUint64("chain_id"),
		GasPriceMultiplier:    v.GetFloat64("gas.price_multiplier"),
		MaxGasLimit:           v.GetUint64("gas.max_gas_limit"),
		MaxGasPriceMultiplier: v.GetFloat64("gas.max_gas_price_multiplier"),
		BalanceWaitAttempts:   v.GetInt("gas.balance_wait_attempts"),
		BalanceWaitInterval:   v.GetDuration("gas.balance_wait_interval"),
		SecurityEnabled:       v.GetBool("security.enabled"),
		SecurityConfigPath:    v.GetString("security.config_path"),
		OracleEnabled:         v.GetBool("oracle.enabled"),
		OracleCacheTTL:        v.GetDuration("oracle.cache_ttl"),
		HistoryEnabled:        v.GetBool("history.enabled"),
		HistoryDataDir:        v.GetString("history.data_dir"),
	}

	var err error
	if cfg.MinimumGasPriceWei, err = weiValue(v, "gas.minimum_gas_price_wei"); err != nil {
		return nil, err
	}
	if cfg.MaxTotalCostWei, err = weiValue(v, "gas.max_total_cost_wei"); err != nil {
		return nil, err
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc_url is required")
	}
	contractHex := v.GetString("gas_payer_contract_address")
	if !common.IsHexAddress(contractHex) {
		return nil, fmt.Errorf("gas_payer_contract_address %q is not a valid address", contractHex)
	}
	cfg.GasPayerContractAddr = common.HexToAddress(contractHex)

	return cfg, nil
}

// weiValue parses a decimal wei amount that may exceed uint64.
func weiValue(v *viper.Viper, key string) (*big.Int, error) {
	raw := v.GetString(key)
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%s: %q is not a valid wei amount", key, raw)
	}
	return value, nil
}
