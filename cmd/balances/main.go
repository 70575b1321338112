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

package main

import (
	"context"
	"flag"
	"fmt"

	"veilswap/internal/common"
	"veilswap/internal/config"
	"veilswap/internal/ledger"
	"veilswap/internal/models"

	"go.uber.org/zap"
)

func printHolding(holding models.Holding, isLast bool) {
	prefix := common.BoxPrefix(isLast)
	fmt.Printf("%s %-10s: %20s settled, %14s pending (avg entry %s, v%d)\n",
		prefix,
		holding.Asset,
		holding.Amount.String(),
		holding.PendingAmount.String(),
		holding.AverageEntryPrice.StringFixed(6),
		holding.Version)
}

func printWallet(ctx context.Context, dbService *ledger.Service, walletId string) error {
	wallet, err := dbService.GetWallet(ctx, walletId)
	if err != nil {
		return err
	}

	balance, err := dbService.GetBalance(ctx, walletId)
	if err != nil {
		return err
	}

	holdings, err := dbService.ListHoldings(ctx, walletId)
	if err != nil {
		return err
	}

	fmt.Printf("\n┌─ Wallet: %s (%s)\n", wallet.Label, wallet.Id)
	fmt.Printf("│  Balance: %s\n", balance.String())
	fmt.Printf("│  Holdings: %d\n", len(holdings))
	for i, holding := range holdings {
		printHolding(holding, i == len(holdings)-1)
	}
	return nil
}

func main() {
	walletFlag := flag.String("wallet", "", "Wallet id to query (required)")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if *walletFlag == "" {
		logger.Fatal("Missing required -wallet flag")
	}

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	common.PrintHeader("WALLET BALANCE REPORT", common.DefaultWidth)

	if err := printWallet(ctx, dbService, *walletFlag); err != nil {
		logger.Fatal("Failed to query wallet",
			zap.String("wallet_id", *walletFlag),
			zap.Error(err))
	}

	common.PrintFooter("Report complete", common.DefaultWidth)
}
