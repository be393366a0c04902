// Package security loads and serves the API-key configuration: key records,
// IP allow-lists, per-key wallet bindings, and the hot-reload watcher.
package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sponsorlabs/gasrelay"
)

// WalletConfig is the on-disk form of a tenant funding wallet.
type WalletConfig struct {
	PrivateKey string `json:"privateKey"`
	Address    string `json:"address,omitempty"`
}

// APIKeyConfig is the on-disk form of one API key record.
type APIKeyConfig struct {
	Key          string        `json:"key"`
	Name         string        `json:"name"`
	AllowedIPs   []string      `json:"allowedIps"`
	Enabled      bool          `json:"enabled"`
	Description  string        `json:"description,omitempty"`
	WalletConfig *WalletConfig `json:"walletConfig,omitempty"`
}

// Settings are the global security toggles.
type Settings struct {
	RequireAPIKey              bool `json:"requireApiKey"`
	EnforceIPWhitelist         bool `json:"enforceIpWhitelist"`
	LogFailedAttempts          bool `json:"logFailedAttempts"`
	RateLimitEnabled           bool `json:"rateLimitEnabled"`
	RateLimitRequestsPerMinute int  `json:"rateLimitRequestsPerMinute"`
}

// FileConfig is the full on-disk security configuration.
type FileConfig struct {
	APIKeys           []APIKeyConfig `json:"apiKeys"`
	GlobalIPWhitelist []string       `json:"globalIpWhitelist"`
	Settings          Settings       `json:"settings"`
}

// APIKeyRecord is the in-memory form of an enabled API key, with the wallet
// binding parsed. Records are immutable once published in a snapshot.
type APIKeyRecord struct {
	Key         string
	Name        string
	AllowedIPs  []string
	Description string
	Wallet      *gasrelay.WalletBinding

	matchers []ipMatcher
}

// Snapshot is an immutable view of the security configuration. Readers load
// it once per request; the watcher replaces it wholesale.
type Snapshot struct {
	Index           map[string]*APIKeyRecord
	GlobalWhitelist []ipMatcher
	Settings        Settings
	LoadedAt        time.Time
}

// DefaultFileConfig is written when the configured file does not exist.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		APIKeys: []APIKeyConfig{{
			Key:         "example-api-key-change-me",
			Name:        "example",
			AllowedIPs:  []string{"127.0.0.1", "::1"},
			Enabled:     true,
			Description: "Example key created on first start. Replace before use.",
		}},
		GlobalIPWhitelist: []string{"127.0.0.1", "::1"},
		Settings: Settings{
			RequireAPIKey:              true,
			EnforceIPWhitelist:         true,
			LogFailedAttempts:          true,
			RateLimitEnabled:           false,
			RateLimitRequestsPerMinute: 60,
		},
	}
}

// buildSnapshot parses and indexes a file config. Disabled keys are not
// indexed. A key with an unparseable wallet is rejected so a bad edit cannot
// silently strip funding from a tenant.
func buildSnapshot(cfg *FileConfig) (*Snapshot, error) {
	snap := &Snapshot{
		Index:    make(map[string]*APIKeyRecord, len(cfg.APIKeys)),
		Settings: cfg.Settings,
		LoadedAt: time.Now(),
	}
	for _, pattern := range cfg.GlobalIPWhitelist {
		snap.GlobalWhitelist = append(snap.GlobalWhitelist, newIPMatcher(pattern))
	}
	for _, kc := range cfg.APIKeys {
		if !kc.Enabled {
			continue
		}
		if kc.Key == "" {
			return nil, fmt.Errorf("api key %q has an empty key string", kc.Name)
		}
		rec := &APIKeyRecord{
			Key:         kc.Key,
			Name:        kc.Name,
			AllowedIPs:  kc.AllowedIPs,
			Description: kc.Description,
		}
		for _, pattern := range kc.AllowedIPs {
			rec.matchers = append(rec.matchers, newIPMatcher(pattern))
		}
		if kc.WalletConfig != nil && kc.WalletConfig.PrivateKey != "" {
			wallet, err := gasrelay.NewWalletBinding(kc.WalletConfig.PrivateKey, kc.WalletConfig.Address)
			if err != nil {
				return nil, fmt.Errorf("api key %q: %w", kc.Name, err)
			}
			rec.Wallet = wallet
		}
		snap.Index[kc.Key] = rec
	}
	return snap, nil
}

// loadFile reads and parses the security config file.
func loadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid security config %s: %w", path, err)
	}
	return &cfg, nil
}

// writeDefaultFile creates path (and its directory) with the default
// pretty-printed config.
func writeDefaultFile(path string) (*FileConfig, error) {
	cfg := DefaultFileConfig()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return nil, err
	}
	return cfg, nil
}
