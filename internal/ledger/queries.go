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

const (
	// Wallet queries
	queryInsertWallet = `
		INSERT OR IGNORE INTO wallets (id, owner_id, label) VALUES (?, ?, ?)`

	queryGetWallet = `
		SELECT id, owner_id, label, created_at
		FROM wallets
		WHERE id = ?`

	// Balance queries
	queryGetBalance = `
		SELECT amount
		FROM balances
		WHERE wallet_id = ?`

	queryGetBalanceForUpdate = `
		SELECT amount, version
		FROM balances
		WHERE wallet_id = ?`

	queryInsertBalance = `
		INSERT INTO balances (wallet_id, amount, version)
		VALUES (?, ?, 1)`

	queryUpdateBalance = `
		UPDATE balances
		SET amount = ?, last_transaction_id = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE wallet_id = ? AND version = ?`

	// Holding queries
	queryGetHolding = `
		SELECT id, wallet_id, asset, amount, pending_amount, total_cost_basis,
		       average_entry_price, last_price_usd, version, updated_at
		FROM holdings
		WHERE wallet_id = ? AND asset = ?`

	queryListHoldings = `
		SELECT id, wallet_id, asset, amount, pending_amount, total_cost_basis,
		       average_entry_price, last_price_usd, version, updated_at
		FROM holdings
		WHERE wallet_id = ?
		ORDER BY asset`

	queryInsertHolding = `
		INSERT INTO holdings (id, wallet_id, asset, amount, pending_amount, total_cost_basis, average_entry_price, last_price_usd, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`

	queryUpdateHolding = `
		UPDATE holdings
		SET amount = ?, pending_amount = ?, total_cost_basis = ?, average_entry_price = ?,
		    version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE wallet_id = ? AND asset = ? AND version = ?`

	queryDeleteHolding = `
		DELETE FROM holdings
		WHERE wallet_id = ? AND asset = ? AND version = ?`

	// Transaction queries
	queryInsertTransaction = `
		INSERT INTO transactions (id, reference, wallet_id, kind, asset, amount, value, status, cost_basis_snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`

	queryGetTransactionByReference = `
		SELECT id, reference, wallet_id, kind, asset, amount, value, status,
		       realized_pnl, cost_basis_snapshot, failure_reason, created_at, completed_at
		FROM transactions
		WHERE reference = ?`

	queryGetTransactionCostBasis = `
		SELECT cost_basis_snapshot
		FROM transactions
		WHERE id = ?`

	queryCompleteTransaction = `
		UPDATE transactions
		SET status = 'completed', amount = ?, realized_pnl = ?, completed_at = ?
		WHERE id = ? AND status = 'pending'`

	queryFailTransaction = `
		UPDATE transactions
		SET status = 'failed', failure_reason = ?, completed_at = ?
		WHERE id = ? AND status = 'pending'`

	// Swap job queries
	queryInsertSwapJob = `
		INSERT INTO swap_jobs (id, transaction_id, wallet_id, side, asset, mint, decimals,
		                       amount_in, quote_output, quote_payload, restore_snapshot, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`

	querySelectSwapJob = `
		SELECT id, transaction_id, wallet_id, side, asset, mint, decimals,
		       amount_in, quote_output, quote_payload, restore_snapshot, status,
		       settlement_ref, failure_reason, claimed_at, created_at, updated_at
		FROM swap_jobs`

	queryGetJob = querySelectSwapJob + `
		WHERE id = ?`

	queryPendingJobs = querySelectSwapJob + `
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT ?`

	queryResumableJobs = querySelectSwapJob + `
		WHERE status = 'processing' AND settlement_ref IS NOT NULL AND claimed_at < ?
		ORDER BY claimed_at
		LIMIT ?`

	// Atomic claim: zero rows affected means another worker got there first.
	queryClaimJob = `
		UPDATE swap_jobs
		SET status = 'processing', claimed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`

	// Jobs stuck processing with no settlement reference crashed before the
	// external call; safe to requeue.
	queryRequeueStaleJobs = `
		UPDATE swap_jobs
		SET status = 'pending', claimed_at = NULL, updated_at = ?
		WHERE status = 'processing' AND settlement_ref IS NULL AND claimed_at < ?`

	// Reference is recorded at most once; a zero-row update means a
	// concurrent worker already executed this job.
	queryRecordSettlementRef = `
		UPDATE swap_jobs
		SET settlement_ref = ?, updated_at = ?
		WHERE id = ? AND settlement_ref IS NULL`

	queryFinishJob = `
		UPDATE swap_jobs
		SET status = ?, failure_reason = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`

	// Bridge operation queries
	queryInsertBridgeOperation = `
		INSERT INTO bridge_operations (id, wallet_id, transaction_id, direction, external_asset,
		                               requested_amount, leg1_id, deposit_address, destination_address,
		                               status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'waiting_leg1', ?, ?)`

	querySelectBridgeOperation = `
		SELECT id, wallet_id, transaction_id, direction, external_asset, requested_amount,
		       leg1_received, received_amount, leg1_id, leg2_id, leg1_send_ref, leg2_send_ref,
		       leg1_completed_at, leg2_completed_at, status, deposit_address, destination_address,
		       send_lock, send_lock_at, failure_reason, created_at, updated_at
		FROM bridge_operations`

	queryGetBridgeOperation = querySelectBridgeOperation + `
		WHERE id = ?`

	queryActiveBridgeOperations = querySelectBridgeOperation + `
		WHERE status IN ('waiting_leg1', 'waiting_leg2')
		ORDER BY created_at
		LIMIT ?`

	querySetLeg1Exchange = `
		UPDATE bridge_operations
		SET leg1_id = ?, deposit_address = ?, updated_at = ?
		WHERE id = ? AND status = 'waiting_leg1' AND leg1_id = ''`

	queryAdvanceToLeg2 = `
		UPDATE bridge_operations
		SET status = 'waiting_leg2', leg2_id = ?, leg2_send_ref = ?, leg1_received = ?,
		    leg1_completed_at = ?, send_lock = '', send_lock_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'waiting_leg1' AND send_lock = ?`

	queryFinishBridgeOperation = `
		UPDATE bridge_operations
		SET status = 'finished', received_amount = ?, leg2_completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'waiting_leg2'`

	queryFailBridgeOperation = `
		UPDATE bridge_operations
		SET status = 'failed', failure_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	// Outbound-send lock: only the marker holder performs the send.
	queryAcquireSendLock = `
		UPDATE bridge_operations
		SET send_lock = ?, send_lock_at = ?, updated_at = ?
		WHERE id = ? AND send_lock = ''`

	queryReleaseSendLock = `
		UPDATE bridge_operations
		SET send_lock = '', send_lock_at = NULL, updated_at = ?
		WHERE id = ? AND send_lock = ?`

	queryCommitLeg1Send = `
		UPDATE bridge_operations
		SET leg1_send_ref = ?, send_lock = '', send_lock_at = NULL, updated_at = ?
		WHERE id = ? AND send_lock = ? AND status = 'waiting_leg1'`

	queryReleaseStaleSendLocks = `
		UPDATE bridge_operations
		SET send_lock = '', send_lock_at = NULL, updated_at = ?
		WHERE send_lock != '' AND send_lock_at < ?`
)
