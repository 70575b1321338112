package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Engine   EngineConfig
	Gateway  GatewayConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	SeedDemoWallets bool
}

// EngineConfig holds worker loop settings
type EngineConfig struct {
	PollingInterval   time.Duration
	BatchSize         int
	StaleJobThreshold time.Duration
	SendLockTimeout   time.Duration

	// SettlementAsset is the currency balances are denominated in (SOL).
	// IntermediateAsset is the privacy hop for two-leg bridges (XMR).
	SettlementAsset     string
	IntermediateAsset   string
	IntermediateAddress string
	TreasuryAddress     string

	// IntermediateMinBalance is the on-chain balance above which a stuck
	// deposit with no recorded exchange is assumed to have been funded.
	IntermediateMinBalance decimal.Decimal

	AssetsFile string
}

// GatewayConfig holds external gateway endpoints
type GatewayConfig struct {
	SwapBaseUrl    string
	BridgeBaseUrl  string
	ChainRpcUrl    string
	MaxSlippageBps int
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Enabled bool
	Addr    string
}
