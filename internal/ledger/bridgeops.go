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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateDepositOperation opens an inbound two-leg operation together with its
// pending deposit transaction. The exchange handle is attached afterwards via
// SetLeg1Exchange; an operation left without one is picked up by the
// orchestrator's recovery path.
func (s *Service) CreateDepositOperation(ctx context.Context, params store.CreateDepositParams) (*models.BridgeOperation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txn := &models.LedgerTransaction{
		Id:        uuid.New().String(),
		Reference: uuid.New().String(),
		WalletId:  params.WalletId,
		Kind:      models.TxKindDeposit,
		Asset:     params.ExternalAsset,
		Amount:    params.RequestedAmount,
		Value:     decimal.Zero,
	}
	if err := insertPendingTransactionTx(ctx, tx, txn); err != nil {
		return nil, err
	}

	op, err := insertBridgeOperationTx(ctx, tx, params.WalletId, txn.Id, models.BridgeDeposit,
		params.ExternalAsset, params.RequestedAmount, "", "", "")
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deposit operation: %w", err)
	}
	return op, nil
}

// ReserveWithdrawal debits the settlement balance and opens the outbound
// operation in one atomic unit. The leg-1 exchange is created by the caller
// before reserving, so a gateway failure mutates nothing.
func (s *Service) ReserveWithdrawal(ctx context.Context, params store.ReserveWithdrawalParams) (*models.BridgeOperation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txn := &models.LedgerTransaction{
		Id:        uuid.New().String(),
		Reference: uuid.New().String(),
		WalletId:  params.WalletId,
		Kind:      models.TxKindWithdraw,
		Asset:     params.ExternalAsset,
		Amount:    params.Amount,
		Value:     params.Amount,
	}
	if err := insertPendingTransactionTx(ctx, tx, txn); err != nil {
		return nil, err
	}

	if err := adjustBalanceTx(ctx, tx, params.WalletId, txn.Id, params.Amount.Neg()); err != nil {
		return nil, err
	}

	op, err := insertBridgeOperationTx(ctx, tx, params.WalletId, txn.Id, models.BridgeWithdrawal,
		params.ExternalAsset, params.Amount, params.Leg1Id, params.DepositAddress, params.DestinationAddress)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit withdrawal reservation: %w", err)
	}
	return op, nil
}

func insertBridgeOperationTx(ctx context.Context, tx *sql.Tx, walletId, transactionId, direction,
	externalAsset string, requestedAmount decimal.Decimal, leg1Id, depositAddress, destinationAddress string) (*models.BridgeOperation, error) {

	now := time.Now().UTC()
	op := &models.BridgeOperation{
		Id:                 uuid.New().String(),
		WalletId:           walletId,
		TransactionId:      transactionId,
		Direction:          direction,
		ExternalAsset:      externalAsset,
		RequestedAmount:    requestedAmount,
		Leg1Id:             leg1Id,
		Status:             models.BridgeWaitingLeg1,
		DepositAddress:     depositAddress,
		DestinationAddress: destinationAddress,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_, err := tx.ExecContext(ctx, queryInsertBridgeOperation,
		op.Id, op.WalletId, op.TransactionId, op.Direction, op.ExternalAsset,
		op.RequestedAmount.String(), op.Leg1Id, op.DepositAddress, op.DestinationAddress, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert bridge operation: %w", err)
	}
	return op, nil
}

func (s *Service) GetBridgeOperation(ctx context.Context, opId string) (*models.BridgeOperation, error) {
	op, found, err := scanBridgeOperation(s.db.QueryRowContext(ctx, queryGetBridgeOperation, opId))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return op, nil
}

func (s *Service) ActiveBridgeOperations(ctx context.Context, limit int) ([]models.BridgeOperation, error) {
	rows, err := s.db.QueryContext(ctx, queryActiveBridgeOperations, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query active operations: %w", err)
	}
	defer rows.Close()

	var ops []models.BridgeOperation
	for rows.Next() {
		op, _, err := scanBridgeOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operation rows: %w", err)
	}
	return ops, nil
}

// SetLeg1Exchange attaches the leg-1 exchange handle to an operation that
// does not have one yet (initial creation, or retry after a failed call).
func (s *Service) SetLeg1Exchange(ctx context.Context, opId, leg1Id, depositAddress string) (bool, error) {
	result, err := s.db.ExecContext(ctx, querySetLeg1Exchange, leg1Id, depositAddress, time.Now().UTC(), opId)
	if err != nil {
		return false, fmt.Errorf("failed to set leg1 exchange: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// AdvanceToLeg2 flips waiting_leg1 -> waiting_leg2 after the leg-2 exchange
// was created and funded. Conditioned on both the prior status and the
// caller's send-lock marker, so only the worker that performed the send can
// advance, and only once.
func (s *Service) AdvanceToLeg2(ctx context.Context, opId, marker, leg2Id, sendRef string, leg1Received decimal.Decimal) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, queryAdvanceToLeg2,
		leg2Id, sendRef, leg1Received.String(), now, now, opId, marker)
	if err != nil {
		return false, fmt.Errorf("failed to advance to leg2: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// FinishDeposit credits the ledger exactly once: the balance credit and the
// transaction completion commit in the same unit as the status flip, and the
// flip is conditioned on waiting_leg2. A second poll of an already-finished
// operation affects zero rows and credits nothing.
func (s *Service) FinishDeposit(ctx context.Context, opId string, received decimal.Decimal) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	op, found, err := scanBridgeOperation(tx.QueryRowContext(ctx, queryGetBridgeOperation, opId))
	if err != nil {
		return false, err
	}
	if !found {
		return false, store.ErrNotFound
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, queryFinishBridgeOperation, received.String(), now, now, opId)
	if err != nil {
		return false, fmt.Errorf("failed to finish operation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := adjustBalanceTx(ctx, tx, op.WalletId, op.TransactionId, received); err != nil {
		return false, err
	}
	if err := completeTransactionTx(ctx, tx, op.TransactionId, received, decimal.NullDecimal{}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit deposit finish: %w", err)
	}

	zap.L().Info("Deposit finished",
		zap.String("operation_id", opId),
		zap.String("wallet_id", op.WalletId),
		zap.String("credited", received.String()))
	return true, nil
}

// FinishWithdrawal completes the pending withdraw transaction; the balance
// was already debited at reservation time.
func (s *Service) FinishWithdrawal(ctx context.Context, opId string, received decimal.Decimal) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	op, found, err := scanBridgeOperation(tx.QueryRowContext(ctx, queryGetBridgeOperation, opId))
	if err != nil {
		return false, err
	}
	if !found {
		return false, store.ErrNotFound
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, queryFinishBridgeOperation, received.String(), now, now, opId)
	if err != nil {
		return false, fmt.Errorf("failed to finish operation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := completeTransactionTx(ctx, tx, op.TransactionId, op.RequestedAmount, decimal.NullDecimal{}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit withdrawal finish: %w", err)
	}

	zap.L().Info("Withdrawal finished",
		zap.String("operation_id", opId),
		zap.String("wallet_id", op.WalletId),
		zap.String("sent", received.String()))
	return true, nil
}

// FailBridgeOperation marks an operation failed from an expected prior
// status. For withdrawals the reserved settlement amount is refunded in the
// same unit; the status condition makes the refund happen at most once.
func (s *Service) FailBridgeOperation(ctx context.Context, opId, fromStatus, reason string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	op, found, err := scanBridgeOperation(tx.QueryRowContext(ctx, queryGetBridgeOperation, opId))
	if err != nil {
		return false, err
	}
	if !found {
		return false, store.ErrNotFound
	}

	result, err := tx.ExecContext(ctx, queryFailBridgeOperation, reason, time.Now().UTC(), opId, fromStatus)
	if err != nil {
		return false, fmt.Errorf("failed to fail operation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := failTransactionTx(ctx, tx, op.TransactionId, reason); err != nil {
		return false, err
	}

	if op.Direction == models.BridgeWithdrawal {
		if err := adjustBalanceTx(ctx, tx, op.WalletId, op.TransactionId, op.RequestedAmount); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit operation failure: %w", err)
	}

	zap.L().Warn("Bridge operation failed",
		zap.String("operation_id", opId),
		zap.String("direction", op.Direction),
		zap.String("from_status", fromStatus),
		zap.String("reason", reason))
	return true, nil
}

// --- outbound-send locking ---

func (s *Service) AcquireSendLock(ctx context.Context, opId, marker string) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, queryAcquireSendLock, marker, now, now, opId)
	if err != nil {
		return false, fmt.Errorf("failed to acquire send lock: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (s *Service) ReleaseSendLock(ctx context.Context, opId, marker string) error {
	if _, err := s.db.ExecContext(ctx, queryReleaseSendLock, time.Now().UTC(), opId, marker); err != nil {
		return fmt.Errorf("failed to release send lock: %w", err)
	}
	return nil
}

// CommitLeg1Send records the funding transfer for leg 1 of a withdrawal and
// releases the lock, conditioned on the caller still holding the marker.
func (s *Service) CommitLeg1Send(ctx context.Context, opId, marker, sendRef string) (bool, error) {
	result, err := s.db.ExecContext(ctx, queryCommitLeg1Send, sendRef, time.Now().UTC(), opId, marker)
	if err != nil {
		return false, fmt.Errorf("failed to commit leg1 send: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// ReleaseStaleSendLocks force-releases markers older than the timeout,
// assumed abandoned by crashed workers.
func (s *Service) ReleaseStaleSendLocks(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, queryReleaseStaleSendLocks, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale send locks: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		zap.L().Warn("Released stale send locks",
			zap.Int64("count", rowsAffected),
			zap.Duration("timeout", olderThan))
	}
	return int(rowsAffected), nil
}

func scanBridgeOperation(row rowScanner) (*models.BridgeOperation, bool, error) {
	var op models.BridgeOperation
	var requested, leg1Received, received string
	var leg1CompletedAt, leg2CompletedAt, sendLockAt sql.NullTime

	err := row.Scan(&op.Id, &op.WalletId, &op.TransactionId, &op.Direction, &op.ExternalAsset,
		&requested, &leg1Received, &received, &op.Leg1Id, &op.Leg2Id, &op.Leg1SendRef, &op.Leg2SendRef,
		&leg1CompletedAt, &leg2CompletedAt, &op.Status, &op.DepositAddress, &op.DestinationAddress,
		&op.SendLock, &sendLockAt, &op.FailureReason, &op.CreatedAt, &op.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan bridge operation: %w", err)
	}

	if op.RequestedAmount, err = parseDecimal(requested); err != nil {
		return nil, false, err
	}
	if op.Leg1Received, err = parseDecimal(leg1Received); err != nil {
		return nil, false, err
	}
	if op.ReceivedAmount, err = parseDecimal(received); err != nil {
		return nil, false, err
	}
	if leg1CompletedAt.Valid {
		op.Leg1CompletedAt = leg1CompletedAt.Time
	}
	if leg2CompletedAt.Valid {
		op.Leg2CompletedAt = leg2CompletedAt.Time
	}
	if sendLockAt.Valid {
		op.SendLockAt = sendLockAt.Time
	}
	return &op, true, nil
}
