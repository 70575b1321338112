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

package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"veilswap/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettleBuy finalizes a successfully executed buy: the received asset moves
// from pending into the settled position, the weighted average entry price
// and cost basis are recomputed, and the transaction and job flip to
// completed. The whole unit is guarded by the job's processing status; if
// another worker already settled, this is a no-op.
func (s *Service) SettleBuy(ctx context.Context, job models.SwapJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	finished, err := finishJobTx(ctx, tx, job.Id, models.JobStatusCompleted, "")
	if err != nil {
		return err
	}
	if !finished {
		zap.L().Debug("Buy job already settled elsewhere, skipping", zap.String("job_id", job.Id))
		return nil
	}

	holding, found, err := getHoldingTx(ctx, tx, job.WalletId, job.Asset)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("holding %s/%s missing at settlement", job.WalletId, job.Asset)
	}

	holding.Amount = holding.Amount.Add(job.QuoteOutput)
	holding.PendingAmount = holding.PendingAmount.Sub(job.QuoteOutput)
	if holding.PendingAmount.IsNegative() {
		holding.PendingAmount = decimal.Zero
	}
	holding.TotalCostBasis = holding.TotalCostBasis.Add(job.AmountIn)
	if holding.Amount.IsPositive() {
		holding.AverageEntryPrice = holding.TotalCostBasis.Div(holding.Amount)
	}
	if err := updateHoldingTx(ctx, tx, holding); err != nil {
		return err
	}

	if err := completeTransactionTx(ctx, tx, job.TransactionId, job.QuoteOutput, decimal.NullDecimal{}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit buy settlement: %w", err)
	}

	zap.L().Info("Buy settled",
		zap.String("job_id", job.Id),
		zap.String("wallet_id", job.WalletId),
		zap.String("asset", job.Asset),
		zap.String("received", job.QuoteOutput.String()),
		zap.String("settlement_ref", job.SettlementRef))
	return nil
}

// SettleSell finalizes a successfully executed sell: the settlement currency
// is credited, realized P&L is computed against the cost-basis snapshot
// taken at reservation time, and a fully liquidated holding is deleted.
func (s *Service) SettleSell(ctx context.Context, job models.SwapJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	finished, err := finishJobTx(ctx, tx, job.Id, models.JobStatusCompleted, "")
	if err != nil {
		return err
	}
	if !finished {
		zap.L().Debug("Sell job already settled elsewhere, skipping", zap.String("job_id", job.Id))
		return nil
	}

	if err := adjustBalanceTx(ctx, tx, job.WalletId, job.TransactionId, job.QuoteOutput); err != nil {
		return err
	}

	var costBasisStr sql.NullString
	if err := tx.QueryRowContext(ctx, queryGetTransactionCostBasis, job.TransactionId).Scan(&costBasisStr); err != nil {
		return fmt.Errorf("failed to read cost basis snapshot: %w", err)
	}
	costBasis, err := nullDecimal(costBasisStr)
	if err != nil {
		return err
	}
	realizedPnl := decimal.NullDecimal{Decimal: job.QuoteOutput, Valid: true}
	if costBasis.Valid {
		realizedPnl.Decimal = job.QuoteOutput.Sub(costBasis.Decimal)
	}

	// The sold amount left the holding at reservation; drop the row if
	// nothing remains settled or pending.
	holding, found, err := getHoldingTx(ctx, tx, job.WalletId, job.Asset)
	if err != nil {
		return err
	}
	if found && holding.Amount.IsZero() && holding.PendingAmount.IsZero() {
		if err := deleteHoldingTx(ctx, tx, holding); err != nil {
			return err
		}
	}

	if err := completeTransactionTx(ctx, tx, job.TransactionId, job.AmountIn, realizedPnl); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sell settlement: %w", err)
	}

	zap.L().Info("Sell settled",
		zap.String("job_id", job.Id),
		zap.String("wallet_id", job.WalletId),
		zap.String("asset", job.Asset),
		zap.String("proceeds", job.QuoteOutput.String()),
		zap.String("realized_pnl", realizedPnl.Decimal.String()),
		zap.String("settlement_ref", job.SettlementRef))
	return nil
}

// RollbackJob undoes a reservation after a failed external execution. The
// undo is the exact structural inverse of the reservation: a buy credits the
// reserved settlement amount back, a sell restores the captured holding
// snapshot bit for bit. Snapshot restoration, not recomputation, so repeated
// retries never compound rounding error.
func (s *Service) RollbackJob(ctx context.Context, job models.SwapJob, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	finished, err := finishJobTx(ctx, tx, job.Id, models.JobStatusFailed, reason)
	if err != nil {
		return err
	}
	if !finished {
		zap.L().Debug("Job already finished elsewhere, skipping rollback", zap.String("job_id", job.Id))
		return nil
	}

	if err := failTransactionTx(ctx, tx, job.TransactionId, reason); err != nil {
		return err
	}

	switch job.Snapshot.Kind {
	case models.RestorePartial:
		// Buy: refund the reserved settlement amount, clear the pending position.
		if err := adjustBalanceTx(ctx, tx, job.WalletId, job.TransactionId, job.Snapshot.Amount); err != nil {
			return err
		}
		holding, found, err := getHoldingTx(ctx, tx, job.WalletId, job.Asset)
		if err != nil {
			return err
		}
		if found {
			holding.PendingAmount = holding.PendingAmount.Sub(job.QuoteOutput)
			if holding.PendingAmount.IsNegative() {
				holding.PendingAmount = decimal.Zero
			}
			if holding.Amount.IsZero() && holding.PendingAmount.IsZero() && holding.TotalCostBasis.IsZero() {
				err = deleteHoldingTx(ctx, tx, holding)
			} else {
				err = updateHoldingTx(ctx, tx, holding)
			}
			if err != nil {
				return err
			}
		}

	case models.RestoreFull:
		// Sell: restore the exact pre-reservation holding row.
		if job.Snapshot.Holding == nil {
			return fmt.Errorf("job %s has full-restore snapshot with no holding", job.Id)
		}
		holding, found, err := getHoldingTx(ctx, tx, job.WalletId, job.Asset)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("holding %s/%s missing at rollback", job.WalletId, job.Asset)
		}
		holding.Amount = job.Snapshot.Holding.Amount
		holding.PendingAmount = job.Snapshot.Holding.PendingAmount
		holding.TotalCostBasis = job.Snapshot.Holding.TotalCostBasis
		holding.AverageEntryPrice = job.Snapshot.Holding.AverageEntryPrice
		if err := updateHoldingTx(ctx, tx, holding); err != nil {
			return err
		}

	default:
		return fmt.Errorf("job %s has unknown restore snapshot kind %q", job.Id, job.Snapshot.Kind)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	zap.L().Info("Swap job rolled back",
		zap.String("job_id", job.Id),
		zap.String("wallet_id", job.WalletId),
		zap.String("side", job.Side),
		zap.String("reason", reason))
	return nil
}
