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
	"errors"
	"fmt"
	"time"

	"veilswap/internal/models"
	"veilswap/internal/store"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func (s *Service) GetTransactionByReference(ctx context.Context, reference string) (*models.LedgerTransaction, error) {
	t, found, err := scanTransaction(s.db.QueryRowContext(ctx, queryGetTransactionByReference, reference))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return t, nil
}

// insertPendingTransactionTx creates the pending audit row for a reservation.
// The partial unique index on (wallet_id, kind) WHERE status='pending' turns
// a concurrent duplicate into ErrDuplicatePendingOrder.
func insertPendingTransactionTx(ctx context.Context, tx *sql.Tx, t *models.LedgerTransaction) error {
	var costBasis interface{}
	if t.CostBasisSnapshot.Valid {
		costBasis = t.CostBasisSnapshot.Decimal.String()
	}

	_, err := tx.ExecContext(ctx, queryInsertTransaction,
		t.Id, t.Reference, t.WalletId, t.Kind, t.Asset,
		t.Amount.String(), t.Value.String(), costBasis, time.Now().UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: a pending %s order already exists for wallet %s",
				store.ErrDuplicatePendingOrder, t.Kind, t.WalletId)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// completeTransactionTx flips a pending transaction to completed, recording
// the final amount and optional realized P&L. Guarded by status='pending'.
func completeTransactionTx(ctx context.Context, tx *sql.Tx, transactionId string, amount decimal.Decimal, realizedPnl decimal.NullDecimal) error {
	var pnl interface{}
	if realizedPnl.Valid {
		pnl = realizedPnl.Decimal.String()
	}

	result, err := tx.ExecContext(ctx, queryCompleteTransaction, amount.String(), pnl, time.Now().UTC(), transactionId)
	if err != nil {
		return fmt.Errorf("failed to complete transaction: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s not pending - %w", transactionId, store.ErrConcurrentModification)
	}
	return nil
}

func failTransactionTx(ctx context.Context, tx *sql.Tx, transactionId, reason string) error {
	result, err := tx.ExecContext(ctx, queryFailTransaction, reason, time.Now().UTC(), transactionId)
	if err != nil {
		return fmt.Errorf("failed to fail transaction: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s not pending - %w", transactionId, store.ErrConcurrentModification)
	}
	return nil
}

func scanTransaction(row rowScanner) (*models.LedgerTransaction, bool, error) {
	var t models.LedgerTransaction
	var amount, value string
	var realizedPnl, costBasis sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&t.Id, &t.Reference, &t.WalletId, &t.Kind, &t.Asset, &amount, &value,
		&t.Status, &realizedPnl, &costBasis, &t.FailureReason, &t.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan transaction: %w", err)
	}

	if t.Amount, err = parseDecimal(amount); err != nil {
		return nil, false, err
	}
	if t.Value, err = parseDecimal(value); err != nil {
		return nil, false, err
	}
	if t.RealizedPnl, err = nullDecimal(realizedPnl); err != nil {
		return nil, false, err
	}
	if t.CostBasisSnapshot, err = nullDecimal(costBasis); err != nil {
		return nil, false, err
	}
	if completedAt.Valid {
		t.CompletedAt = completedAt.Time
	}
	return &t, true, nil
}
