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

package worker

import (
	"context"
	"fmt"
	"time"

	"veilswap/internal/models"
	"veilswap/internal/notify"
	"veilswap/internal/store"

	"go.uber.org/zap"
)

const maxMintDecimals = 18

// SwapExecutor is the single external call the processor makes. Execute
// submits a pre-quoted route and returns a settlement reference.
type SwapExecutor interface {
	Execute(ctx context.Context, payload string) (string, error)
}

// ProcessorConfig contains configuration for Processor
type ProcessorConfig struct {
	DbService store.LedgerStore
	Executor  SwapExecutor
	Notifier  notify.Notifier

	PollingInterval   time.Duration
	BatchSize         int
	StaleJobThreshold time.Duration
}

// Processor drains the swap job queue: claim, execute, record the settlement
// reference, settle. Multiple processors can run against the same store; the
// claim and the reference write are the two conditional updates that keep
// execution at most once.
type Processor struct {
	dbService store.LedgerStore
	executor  SwapExecutor
	notifier  notify.Notifier

	pollingInterval   time.Duration
	batchSize         int
	staleJobThreshold time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		dbService:         cfg.DbService,
		executor:          cfg.Executor,
		notifier:          cfg.Notifier,
		pollingInterval:   cfg.PollingInterval,
		batchSize:         cfg.BatchSize,
		staleJobThreshold: cfg.StaleJobThreshold,
		stopChan:          make(chan struct{}),
		doneChan:          make(chan struct{}),
	}
}

// Start begins the processing loop
func (p *Processor) Start(ctx context.Context) {
	zap.L().Info("Starting swap job processor",
		zap.Duration("polling_interval", p.pollingInterval),
		zap.Int("batch_size", p.batchSize))

	go p.pollLoop(ctx)
}

// Stop gracefully stops the processor
func (p *Processor) Stop() {
	zap.L().Info("Stopping swap job processor")
	close(p.stopChan)
	<-p.doneChan
	zap.L().Info("Swap job processor stopped")
}

func (p *Processor) pollLoop(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	p.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.runOnce(ctx)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runOnce performs one pass: recovery first, then fresh work.
func (p *Processor) runOnce(ctx context.Context) {
	if _, err := p.dbService.RequeueStaleJobs(ctx, p.staleJobThreshold); err != nil {
		zap.L().Error("Failed to requeue stale jobs", zap.Error(err))
	}

	p.resumeInterrupted(ctx)
	p.processPending(ctx)
}

// resumeInterrupted finishes jobs whose external swap already happened but
// whose worker died before settling. These resume at the settlement step and
// never touch the executor again.
func (p *Processor) resumeInterrupted(ctx context.Context) {
	jobs, err := p.dbService.ResumableJobs(ctx, p.staleJobThreshold, p.batchSize)
	if err != nil {
		zap.L().Error("Failed to query resumable jobs", zap.Error(err))
		return
	}

	for _, job := range jobs {
		zap.L().Info("Resuming interrupted job at settlement step",
			zap.String("job_id", job.Id),
			zap.String("settlement_ref", job.SettlementRef))
		if err := p.settle(ctx, job); err != nil {
			zap.L().Error("Failed to settle resumed job",
				zap.String("job_id", job.Id),
				zap.Error(err))
		}
	}
}

func (p *Processor) processPending(ctx context.Context) {
	jobs, err := p.dbService.PendingJobs(ctx, p.batchSize)
	if err != nil {
		zap.L().Error("Failed to query pending jobs", zap.Error(err))
		return
	}

	for _, job := range jobs {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := p.processJob(ctx, job); err != nil {
			zap.L().Error("Failed to process job",
				zap.String("job_id", job.Id),
				zap.String("wallet_id", job.WalletId),
				zap.Error(err))
		}
	}
}

func (p *Processor) processJob(ctx context.Context, job models.SwapJob) error {
	claimed, err := p.dbService.ClaimJob(ctx, job.Id)
	if err != nil {
		return err
	}
	if !claimed {
		// Another processor got there first.
		return nil
	}
	job.Status = models.JobStatusProcessing

	// Corrupt job data fails fast, before any external call.
	if job.Decimals < 0 || job.Decimals > maxMintDecimals {
		reason := fmt.Sprintf("invalid mint decimals %d", job.Decimals)
		return p.rollback(ctx, job, reason)
	}
	if job.QuotePayload == "" {
		return p.rollback(ctx, job, "missing quote payload")
	}

	settlementRef, err := p.executor.Execute(ctx, job.QuotePayload)
	if err != nil {
		zap.L().Warn("Swap execution failed, rolling back reservation",
			zap.String("job_id", job.Id),
			zap.String("wallet_id", job.WalletId),
			zap.Error(err))
		return p.rollback(ctx, job, fmt.Sprintf("execution failed: %v", err))
	}

	recorded, err := p.dbService.RecordSettlementRef(ctx, job.Id, settlementRef)
	if err != nil {
		return err
	}
	if !recorded {
		// A concurrent worker already executed this job. Settling with our
		// reference would double-credit; the earlier reference wins and its
		// owner settles. This should not happen under the claim protocol.
		zap.L().Error("Settlement reference already recorded, abandoning settlement",
			zap.String("job_id", job.Id),
			zap.String("wallet_id", job.WalletId),
			zap.String("orphaned_ref", settlementRef))
		return nil
	}
	job.SettlementRef = settlementRef

	return p.settle(ctx, job)
}

func (p *Processor) settle(ctx context.Context, job models.SwapJob) error {
	var err error
	switch job.Side {
	case models.SwapSideBuy:
		err = p.dbService.SettleBuy(ctx, job)
	case models.SwapSideSell:
		err = p.dbService.SettleSell(ctx, job)
	default:
		err = fmt.Errorf("job %s has unknown side %q", job.Id, job.Side)
	}
	if err != nil {
		return err
	}

	if p.notifier != nil {
		p.notifier.SwapSettled(ctx, job)
	}
	return nil
}

func (p *Processor) rollback(ctx context.Context, job models.SwapJob, reason string) error {
	if err := p.dbService.RollbackJob(ctx, job, reason); err != nil {
		return fmt.Errorf("rollback failed for job %s: %w", job.Id, err)
	}
	if p.notifier != nil {
		p.notifier.SwapFailed(ctx, job, reason)
	}
	return nil
}
