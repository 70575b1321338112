/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"veilswap/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	pollingInterval, err := getEnvDuration("ENGINE_POLLING_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}

	staleJobThreshold, err := getEnvDuration("ENGINE_STALE_JOB_THRESHOLD", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	sendLockTimeout, err := getEnvDuration("ENGINE_SEND_LOCK_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	intermediateMinBalance, err := getEnvDecimal("ENGINE_INTERMEDIATE_MIN_BALANCE", decimal.NewFromFloat(0.001))
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "veilswap.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			SeedDemoWallets: getEnvBool("SEED_DEMO_WALLETS", false),
		},
		Engine: models.EngineConfig{
			PollingInterval:        pollingInterval,
			BatchSize:              getEnvInt("ENGINE_BATCH_SIZE", 20),
			StaleJobThreshold:      staleJobThreshold,
			SendLockTimeout:        sendLockTimeout,
			SettlementAsset:        getEnvString("SETTLEMENT_ASSET", "SOL"),
			IntermediateAsset:      getEnvString("INTERMEDIATE_ASSET", "XMR"),
			IntermediateAddress:    getEnvString("INTERMEDIATE_ADDRESS", ""),
			TreasuryAddress:        getEnvString("TREASURY_ADDRESS", ""),
			IntermediateMinBalance: intermediateMinBalance,
			AssetsFile:             getEnvString("ASSETS_FILE", "assets.yaml"),
		},
		Gateway: models.GatewayConfig{
			SwapBaseUrl:    getEnvString("SWAP_GATEWAY_URL", "https://quote-api.jup.ag/v6"),
			BridgeBaseUrl:  getEnvString("BRIDGE_GATEWAY_URL", ""),
			ChainRpcUrl:    getEnvString("CHAIN_RPC_URL", ""),
			MaxSlippageBps: getEnvInt("SWAP_MAX_SLIPPAGE_BPS", 100),
		},
		Server: models.ServerConfig{
			Enabled: getEnvBool("SERVER_ENABLED", true),
			Addr:    getEnvString("SERVER_ADDR", ":8080"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
