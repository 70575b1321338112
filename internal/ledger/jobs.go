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
	"errors"
	"fmt"
	"time"

	"veilswap/internal/models"
	"veilswap/internal/store"

	"go.uber.org/zap"
)

func (s *Service) GetJob(ctx context.Context, jobId string) (*models.SwapJob, error) {
	job, found, err := scanSwapJob(s.db.QueryRowContext(ctx, queryGetJob, jobId))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (s *Service) PendingJobs(ctx context.Context, limit int) ([]models.SwapJob, error) {
	return s.queryJobs(ctx, queryPendingJobs, limit)
}

// ResumableJobs returns jobs stuck in processing with a settlement reference
// already recorded: the external call happened, the worker died before
// settling. These resume at the settlement step, never re-execute.
func (s *Service) ResumableJobs(ctx context.Context, olderThan time.Duration, limit int) ([]models.SwapJob, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.QueryContext(ctx, queryResumableJobs, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query resumable jobs: %w", err)
	}
	return collectJobs(rows)
}

func (s *Service) queryJobs(ctx context.Context, query string, args ...interface{}) ([]models.SwapJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	return collectJobs(rows)
}

// ClaimJob atomically claims a pending job. A false return means another
// worker already claimed it; the caller skips silently.
func (s *Service) ClaimJob(ctx context.Context, jobId string) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, queryClaimJob, now, now, jobId)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// RequeueStaleJobs reverts jobs left processing with no settlement reference
// past the stale threshold. No external side effect occurred for these, so a
// re-claim is safe.
func (s *Service) RequeueStaleJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, queryRequeueStaleJobs, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		zap.L().Warn("Requeued stale swap jobs",
			zap.Int64("count", rowsAffected),
			zap.Duration("threshold", olderThan))
	}
	return int(rowsAffected), nil
}

// RecordSettlementRef writes the externally-issued settlement reference at
// most once. A false return means a concurrent worker already executed this
// job; the caller must abandon settlement rather than risk double-crediting.
func (s *Service) RecordSettlementRef(ctx context.Context, jobId, settlementRef string) (bool, error) {
	result, err := s.db.ExecContext(ctx, queryRecordSettlementRef, settlementRef, time.Now().UTC(), jobId)
	if err != nil {
		return false, fmt.Errorf("failed to record settlement reference: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// finishJobTx flips a processing job to its terminal status. Guarded by
// status='processing' so two settlement attempts cannot both commit.
func finishJobTx(ctx context.Context, tx *sql.Tx, jobId, status, reason string) (bool, error) {
	result, err := tx.ExecContext(ctx, queryFinishJob, status, reason, time.Now().UTC(), jobId)
	if err != nil {
		return false, fmt.Errorf("failed to finish job: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func collectJobs(rows *sql.Rows) ([]models.SwapJob, error) {
	defer rows.Close()

	var jobs []models.SwapJob
	for rows.Next() {
		job, _, err := scanSwapJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}
	return jobs, nil
}

func scanSwapJob(row rowScanner) (*models.SwapJob, bool, error) {
	var job models.SwapJob
	var amountIn, quoteOutput, snapshotJson string
	var settlementRef sql.NullString
	var claimedAt sql.NullTime

	err := row.Scan(&job.Id, &job.TransactionId, &job.WalletId, &job.Side, &job.Asset, &job.Mint,
		&job.Decimals, &amountIn, &quoteOutput, &job.QuotePayload, &snapshotJson, &job.Status,
		&settlementRef, &job.FailureReason, &claimedAt, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan swap job: %w", err)
	}

	if job.AmountIn, err = parseDecimal(amountIn); err != nil {
		return nil, false, err
	}
	if job.QuoteOutput, err = parseDecimal(quoteOutput); err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal([]byte(snapshotJson), &job.Snapshot); err != nil {
		return nil, false, fmt.Errorf("failed to decode restore snapshot: %w", err)
	}
	if settlementRef.Valid {
		job.SettlementRef = settlementRef.String
	}
	if claimedAt.Valid {
		job.ClaimedAt = claimedAt.Time
	}
	return &job, true, nil
}
