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
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"veilswap/internal/bridge"
	"veilswap/internal/common"
	"veilswap/internal/config"
	"veilswap/internal/notify"
	"veilswap/internal/order"
	"veilswap/internal/server"
	"veilswap/internal/worker"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting settlement engine")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	notifier := notify.NewLogNotifier()

	orderSvc, err := order.NewService(services.DbService, services.Swaps, services.Bridge, services.Catalog, cfg.Engine)
	if err != nil {
		zap.L().Fatal("Failed to initialize order service", zap.Error(err))
	}

	processor := worker.NewProcessor(worker.ProcessorConfig{
		DbService:         services.DbService,
		Executor:          services.Swaps,
		Notifier:          notifier,
		PollingInterval:   cfg.Engine.PollingInterval,
		BatchSize:         cfg.Engine.BatchSize,
		StaleJobThreshold: cfg.Engine.StaleJobThreshold,
	})
	processor.Start(ctx)

	orchestrator := bridge.NewOrchestrator(bridge.OrchestratorConfig{
		DbService:              services.DbService,
		Bridge:                 services.Bridge,
		Chain:                  services.Chain,
		Notifier:               notifier,
		PollingInterval:        cfg.Engine.PollingInterval,
		BatchSize:              cfg.Engine.BatchSize,
		SendLockTimeout:        cfg.Engine.SendLockTimeout,
		SettlementAsset:        cfg.Engine.SettlementAsset,
		IntermediateAsset:      cfg.Engine.IntermediateAsset,
		IntermediateAddress:    cfg.Engine.IntermediateAddress,
		TreasuryAddress:        cfg.Engine.TreasuryAddress,
		IntermediateMinBalance: cfg.Engine.IntermediateMinBalance,
	})
	orchestrator.Start(ctx)

	var apiServer *server.Server
	if cfg.Server.Enabled {
		apiServer = server.New(cfg.Server, orderSvc, services.DbService)
		apiServer.Start()
	}

	zap.L().Info("Settlement engine running")
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if apiServer != nil {
		apiServer.Stop(shutdownCtx)
	}

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			processor.Stop()
		}()
		go func() {
			defer wg.Done()
			orchestrator.Stop()
		}()
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("All workers stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
