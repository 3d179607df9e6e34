package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"medalchain/internal/chain"
)

// DeploymentConfig represents deployments.json.
type DeploymentConfig struct {
	ChainID     int64  `json:"chainId"`
	Distributor string `json:"distributor"`
	Minter      string `json:"minter"`
	Contracts   struct {
		MedalSystem   string `json:"MedalSystem"`
		NftCollection string `json:"NftCollection"`
	} `json:"contracts"`
	ImageServerURL string `json:"imageServerUrl"`
}

// AppConfig ties together deployment info and derived values.
type AppConfig struct {
	Deployment DeploymentConfig
	Service    ServiceConfig
	Chain      ChainConfig
}

type ServiceConfig struct {
	HTTPPort             int
	HMACSecret           string
	HMACClockSkew        time.Duration
	IdempotencyWindow    time.Duration
	IdempotencyStorePath string
	AccountStorePath     string
	DLQPath              string
	PostgresDSN          string
	LogLevel             string
	// SyncInterval of zero disables the medal sync scheduler.
	SyncInterval   time.Duration
	ImageServerURL string
}

type ChainConfig struct {
	RPCURL             string
	RPCTimeout         time.Duration
	PollInterval       time.Duration
	MaxAttempts        int
	DistributeGasLimit uint64
	MintGasLimit       uint64
	NftMaxSupply       uint64

	// Addresses are normalized by Validate.
	Distributor   chain.Address
	Minter        chain.Address
	MedalContract chain.Address
	NftContract   chain.Address
}

const defaultDeploymentsPath = "../deployments.json"

// Load aggregates configuration from disk and environment. Environment values win over deployments.json.
func Load() (*AppConfig, error) {
	deploymentsPath := envOr("DEPLOYMENTS_PATH", defaultDeploymentsPath)

	deployCfg, err := loadDeployments(deploymentsPath)
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}

	serviceCfg := ServiceConfig{
		HTTPPort:             envOrInt("API_HTTP_PORT", 3000),
		HMACSecret:           envOr("API_HMAC_SECRET", ""),
		HMACClockSkew:        time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		IdempotencyWindow:    time.Duration(envOrInt("IDEMPOTENCY_WINDOW_SECONDS", 86400)) * time.Second,
		IdempotencyStorePath: envOr("IDEMPOTENCY_STORE_PATH", filepath.Join(os.TempDir(), "medalchain-idem.json")),
		AccountStorePath:     envOr("ACCOUNT_STORE_PATH", filepath.Join(os.TempDir(), "medalchain-accounts.json")),
		DLQPath:              envOr("DLQ_PATH", ""),
		PostgresDSN:          envOr("POSTGRES_DSN", ""),
		LogLevel:             envOr("LOG_LEVEL", "info"),
		SyncInterval:         time.Duration(envOrInt("SYNC_INTERVAL_SECONDS", 300)) * time.Second,
		ImageServerURL:       envOr("IMAGE_SERVER_URL", deployCfg.ImageServerURL),
	}

	chainCfg := ChainConfig{
		RPCURL:             envOr("CHAIN_RPC_URL", "http://127.0.0.1:8545"),
		RPCTimeout:         envOrMillis("CHAIN_RPC_TIMEOUT_MS", 10*time.Second),
		PollInterval:       envOrMillis("CONFIRM_POLL_INTERVAL_MS", chain.DefaultPollInterval),
		MaxAttempts:        envOrInt("CONFIRM_MAX_ATTEMPTS", chain.DefaultMaxAttempts),
		DistributeGasLimit: envOrUint64("DISTRIBUTE_GAS_LIMIT", 300_000),
		MintGasLimit:       envOrUint64("MINT_GAS_LIMIT", 3_000_000),
		NftMaxSupply:       envOrUint64("NFT_MAX_SUPPLY", 10_000),
		Distributor:        chain.Address(envOr("DISTRIBUTOR_ADDRESS", deployCfg.Distributor)),
		Minter:             chain.Address(envOr("MINTER_ADDRESS", deployCfg.Minter)),
		MedalContract:      chain.Address(envOr("MEDAL_CONTRACT_ADDRESS", deployCfg.Contracts.MedalSystem)),
		NftContract:        chain.Address(envOr("NFT_CONTRACT_ADDRESS", deployCfg.Contracts.NftCollection)),
	}

	cfg := &AppConfig{
		Deployment: *deployCfg,
		Service:    serviceCfg,
		Chain:      chainCfg,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes every configured address. The minter defaults to the distributor account.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("%w: CHAIN_RPC_URL is required", chain.ErrValidation)
	}
	if c.Chain.Minter == "" {
		c.Chain.Minter = c.Chain.Distributor
	}

	fields := []struct {
		name string
		addr *chain.Address
	}{
		{"distributor", &c.Chain.Distributor},
		{"minter", &c.Chain.Minter},
		{"MedalSystem contract", &c.Chain.MedalContract},
		{"NftCollection contract", &c.Chain.NftContract},
	}
	for _, f := range fields {
		if *f.addr == "" {
			return fmt.Errorf("%w: %s address is required", chain.ErrValidation, f.name)
		}
		norm, err := chain.Normalize(string(*f.addr))
		if err != nil {
			return fmt.Errorf("%s address: %w", f.name, err)
		}
		*f.addr = norm
	}

	if c.Chain.MaxAttempts <= 0 {
		return fmt.Errorf("%w: CONFIRM_MAX_ATTEMPTS must be positive", chain.ErrValidation)
	}
	if c.Chain.PollInterval <= 0 {
		return fmt.Errorf("%w: CONFIRM_POLL_INTERVAL_MS must be positive", chain.ErrValidation)
	}
	if c.Service.SyncInterval < 0 {
		return fmt.Errorf("%w: SYNC_INTERVAL_SECONDS must not be negative", chain.ErrValidation)
	}
	return nil
}

// loadDeployments reads deployments.json. A missing file yields an empty config so env can supply everything.
func loadDeployments(path string) (*DeploymentConfig, error) {
	var cfg DeploymentConfig
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrUint64(key string, fallback uint64) uint64 {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed uint64
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrMillis(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int64
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return fallback
}
