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

package bridge

import (
	"context"
	"time"

	"veilswap/internal/gateway"
	"veilswap/internal/models"
	"veilswap/internal/notify"
	"veilswap/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrchestratorConfig contains configuration for Orchestrator
type OrchestratorConfig struct {
	DbService store.LedgerStore
	Bridge    gateway.BridgeGateway
	Chain     gateway.ChainGateway
	Notifier  notify.Notifier

	PollingInterval time.Duration
	BatchSize       int
	SendLockTimeout time.Duration

	SettlementAsset        string
	IntermediateAsset      string
	IntermediateAddress    string
	TreasuryAddress        string
	IntermediateMinBalance decimal.Decimal
}

// Orchestrator advances two-leg bridge operations by polling the external
// gateways. Each operation is a small state machine persisted in the store;
// every transition is a conditional update, so concurrent orchestrators and
// crashes cannot double-apply a step.
type Orchestrator struct {
	dbService store.LedgerStore
	bridge    gateway.BridgeGateway
	chain     gateway.ChainGateway
	notifier  notify.Notifier

	pollingInterval time.Duration
	batchSize       int
	sendLockTimeout time.Duration

	settlementAsset        string
	intermediateAsset      string
	intermediateAddress    string
	treasuryAddress        string
	intermediateMinBalance decimal.Decimal

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		dbService:              cfg.DbService,
		bridge:                 cfg.Bridge,
		chain:                  cfg.Chain,
		notifier:               cfg.Notifier,
		pollingInterval:        cfg.PollingInterval,
		batchSize:              cfg.BatchSize,
		sendLockTimeout:        cfg.SendLockTimeout,
		settlementAsset:        cfg.SettlementAsset,
		intermediateAsset:      cfg.IntermediateAsset,
		intermediateAddress:    cfg.IntermediateAddress,
		treasuryAddress:        cfg.TreasuryAddress,
		intermediateMinBalance: cfg.IntermediateMinBalance,
		stopChan:               make(chan struct{}),
		doneChan:               make(chan struct{}),
	}
}

// Start begins the orchestration loop
func (o *Orchestrator) Start(ctx context.Context) {
	zap.L().Info("Starting bridge orchestrator",
		zap.Duration("polling_interval", o.pollingInterval),
		zap.String("intermediate_asset", o.intermediateAsset))

	go o.pollLoop(ctx)
}

// Stop gracefully stops the orchestrator
func (o *Orchestrator) Stop() {
	zap.L().Info("Stopping bridge orchestrator")
	close(o.stopChan)
	<-o.doneChan
	zap.L().Info("Bridge orchestrator stopped")
}

func (o *Orchestrator) pollLoop(ctx context.Context) {
	defer close(o.doneChan)

	ticker := time.NewTicker(o.pollingInterval)
	defer ticker.Stop()

	o.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			o.runOnce(ctx)
		case <-o.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) runOnce(ctx context.Context) {
	if _, err := o.dbService.ReleaseStaleSendLocks(ctx, o.sendLockTimeout); err != nil {
		zap.L().Error("Failed to release stale send locks", zap.Error(err))
	}

	ops, err := o.dbService.ActiveBridgeOperations(ctx, o.batchSize)
	if err != nil {
		zap.L().Error("Failed to query active bridge operations", zap.Error(err))
		return
	}

	for _, op := range ops {
		select {
		case <-o.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := o.advance(ctx, op); err != nil {
			zap.L().Error("Failed to advance bridge operation",
				zap.String("operation_id", op.Id),
				zap.String("direction", op.Direction),
				zap.String("status", op.Status),
				zap.Error(err))
		}
	}
}

func (o *Orchestrator) advance(ctx context.Context, op models.BridgeOperation) error {
	switch op.Direction {
	case models.BridgeDeposit:
		return o.advanceDeposit(ctx, op)
	case models.BridgeWithdrawal:
		return o.advanceWithdrawal(ctx, op)
	default:
		zap.L().Error("Bridge operation has unknown direction",
			zap.String("operation_id", op.Id),
			zap.String("direction", op.Direction))
		return nil
	}
}

// failOperation flips the operation to failed from its current status and
// notifies. A false flip means another orchestrator handled it.
func (o *Orchestrator) failOperation(ctx context.Context, op models.BridgeOperation, reason string) error {
	failed, err := o.dbService.FailBridgeOperation(ctx, op.Id, op.Status, reason)
	if err != nil {
		return err
	}
	if failed && o.notifier != nil {
		o.notifier.BridgeFailed(ctx, op, reason)
	}
	return nil
}
