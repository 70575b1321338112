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
	"encoding/json"
	"fmt"
	"time"

	"veilswap/internal/models"
	"veilswap/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReserveBuy performs the buy-side reservation in one atomic unit: pending
// transaction, guarded balance debit, pending-position bump, and job enqueue.
// Either all of it commits or none of it does.
func (s *Service) ReserveBuy(ctx context.Context, params store.ReserveBuyParams) (*models.SwapJob, error) {
	zap.L().Info("Reserving buy order",
		zap.String("wallet_id", params.WalletId),
		zap.String("asset", params.Asset),
		zap.String("amount_in", params.AmountIn.String()),
		zap.String("quote_output", params.Quote.OutputAmount.String()))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txn := &models.LedgerTransaction{
		Id:        uuid.New().String(),
		Reference: orderReference(params.Reference),
		WalletId:  params.WalletId,
		Kind:      models.TxKindBuy,
		Asset:     params.Asset,
		Amount:    params.Quote.OutputAmount,
		Value:     params.AmountIn,
	}
	if err := insertPendingTransactionTx(ctx, tx, txn); err != nil {
		return nil, err
	}

	if err := adjustBalanceTx(ctx, tx, params.WalletId, txn.Id, params.AmountIn.Neg()); err != nil {
		return nil, err
	}

	// The user sees an instant pending position.
	holding, found, err := getHoldingTx(ctx, tx, params.WalletId, params.Asset)
	if err != nil {
		return nil, err
	}
	if found {
		holding.PendingAmount = holding.PendingAmount.Add(params.Quote.OutputAmount)
		if err := updateHoldingTx(ctx, tx, holding); err != nil {
			return nil, err
		}
	} else {
		holding = &models.Holding{
			WalletId:      params.WalletId,
			Asset:         params.Asset,
			PendingAmount: params.Quote.OutputAmount,
		}
		if err := insertHoldingTx(ctx, tx, holding); err != nil {
			return nil, err
		}
	}

	job, err := insertSwapJobTx(ctx, tx, params.WalletId, txn.Id, models.SwapSideBuy, params.Asset, params.Mint,
		params.Decimals, params.AmountIn, params.Quote, models.RestoreSnapshot{
			Kind:   models.RestorePartial,
			Amount: params.AmountIn,
		})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return job, nil
}

// ReserveSell debits the holding up front and captures the exact
// pre-reservation row so a failed execution restores it bit for bit.
func (s *Service) ReserveSell(ctx context.Context, params store.ReserveSellParams) (*models.SwapJob, error) {
	zap.L().Info("Reserving sell order",
		zap.String("wallet_id", params.WalletId),
		zap.String("asset", params.Asset),
		zap.String("sell_amount", params.SellAmount.String()),
		zap.String("quote_output", params.Quote.OutputAmount.String()))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	holding, found, err := getHoldingTx(ctx, tx, params.WalletId, params.Asset)
	if err != nil {
		return nil, err
	}
	if !found || holding.Amount.LessThan(params.SellAmount) {
		held := decimal.Zero
		if found {
			held = holding.Amount
		}
		return nil, fmt.Errorf("%w: wallet %s holds %s %s, requested %s",
			store.ErrInsufficientFunds, params.WalletId, held.String(), params.Asset, params.SellAmount.String())
	}

	snapshot := models.RestoreSnapshot{
		Kind: models.RestoreFull,
		Holding: &models.HoldingSnapshot{
			Amount:            holding.Amount,
			PendingAmount:     holding.PendingAmount,
			TotalCostBasis:    holding.TotalCostBasis,
			AverageEntryPrice: holding.AverageEntryPrice,
		},
	}

	// Cost basis is reduced in proportion to the amount sold.
	costBasisPortion := decimal.Zero
	if holding.Amount.IsPositive() {
		costBasisPortion = holding.TotalCostBasis.Mul(params.SellAmount).Div(holding.Amount)
	}

	txn := &models.LedgerTransaction{
		Id:                uuid.New().String(),
		Reference:         orderReference(params.Reference),
		WalletId:          params.WalletId,
		Kind:              models.TxKindSell,
		Asset:             params.Asset,
		Amount:            params.SellAmount,
		Value:             params.Quote.OutputAmount,
		CostBasisSnapshot: decimal.NullDecimal{Decimal: costBasisPortion, Valid: true},
	}
	if err := insertPendingTransactionTx(ctx, tx, txn); err != nil {
		return nil, err
	}

	holding.Amount = holding.Amount.Sub(params.SellAmount)
	holding.TotalCostBasis = holding.TotalCostBasis.Sub(costBasisPortion)
	if err := updateHoldingTx(ctx, tx, holding); err != nil {
		return nil, err
	}

	job, err := insertSwapJobTx(ctx, tx, params.WalletId, txn.Id, models.SwapSideSell, params.Asset, params.Mint,
		params.Decimals, params.SellAmount, params.Quote, snapshot)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return job, nil
}

func orderReference(reference string) string {
	if reference != "" {
		return reference
	}
	return uuid.New().String()
}

func insertSwapJobTx(ctx context.Context, tx *sql.Tx, walletId, transactionId, side, asset, mint string,
	decimals int64, amountIn decimal.Decimal, quote models.Quote, snapshot models.RestoreSnapshot) (*models.SwapJob, error) {

	snapshotJson, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode restore snapshot: %w", err)
	}

	now := time.Now().UTC()
	job := &models.SwapJob{
		Id:            uuid.New().String(),
		TransactionId: transactionId,
		WalletId:      walletId,
		Side:          side,
		Asset:         asset,
		Mint:          mint,
		Decimals:      decimals,
		AmountIn:      amountIn,
		QuoteOutput:   quote.OutputAmount,
		QuotePayload:  quote.Payload,
		Snapshot:      snapshot,
		Status:        models.JobStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = tx.ExecContext(ctx, queryInsertSwapJob,
		job.Id, job.TransactionId, job.WalletId, job.Side, job.Asset, job.Mint, job.Decimals,
		job.AmountIn.String(), job.QuoteOutput.String(), job.QuotePayload, string(snapshotJson), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue swap job: %w", err)
	}
	return job, nil
}
