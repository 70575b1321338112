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

	"veilswap/internal/models"
	"veilswap/internal/store"

	"github.com/shopspring/decimal"
)

func (s *Service) GetBalance(ctx context.Context, walletId string) (decimal.Decimal, error) {
	var amountStr string
	err := s.db.QueryRowContext(ctx, queryGetBalance, walletId).Scan(&amountStr)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return parseDecimal(amountStr)
}

func (s *Service) GetHolding(ctx context.Context, walletId, asset string) (*models.Holding, error) {
	h, found, err := scanHolding(s.db.QueryRowContext(ctx, queryGetHolding, walletId, asset))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return h, nil
}

func (s *Service) ListHoldings(ctx context.Context, walletId string) ([]models.Holding, error) {
	rows, err := s.db.QueryContext(ctx, queryListHoldings, walletId)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		h, _, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holding rows: %w", err)
	}
	return holdings, nil
}

// --- transactional mutation helpers ---

// adjustBalanceTx applies delta to a wallet balance inside tx. The row is
// re-read inside the write transaction and updated under a version guard, so
// two writers can never both pass the non-negativity check against the same
// stale snapshot. A negative result returns ErrInsufficientFunds with no
// mutation.
func adjustBalanceTx(ctx context.Context, tx *sql.Tx, walletId, transactionId string, delta decimal.Decimal) error {
	var amountStr string
	var version int64

	err := tx.QueryRowContext(ctx, queryGetBalanceForUpdate, walletId).Scan(&amountStr, &version)
	if errors.Is(err, sql.ErrNoRows) {
		if delta.IsNegative() {
			return fmt.Errorf("%w: wallet %s has no balance", store.ErrInsufficientFunds, walletId)
		}
		if _, err := tx.ExecContext(ctx, queryInsertBalance, walletId, delta.String()); err != nil {
			return fmt.Errorf("failed to create balance: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}

	current, err := parseDecimal(amountStr)
	if err != nil {
		return err
	}

	newAmount := current.Add(delta)
	if newAmount.IsNegative() {
		return fmt.Errorf("%w: wallet %s balance %s, requested %s",
			store.ErrInsufficientFunds, walletId, current.String(), delta.Neg().String())
	}

	result, err := tx.ExecContext(ctx, queryUpdateBalance, newAmount.String(), transactionId, walletId, version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}
	return nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHolding(row rowScanner) (*models.Holding, bool, error) {
	var h models.Holding
	var amount, pending, costBasis, avgEntry, lastPrice string

	err := row.Scan(&h.Id, &h.WalletId, &h.Asset, &amount, &pending, &costBasis,
		&avgEntry, &lastPrice, &h.Version, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan holding: %w", err)
	}

	for _, pair := range []struct {
		src string
		dst *decimal.Decimal
	}{
		{amount, &h.Amount},
		{pending, &h.PendingAmount},
		{costBasis, &h.TotalCostBasis},
		{avgEntry, &h.AverageEntryPrice},
		{lastPrice, &h.LastPriceUsd},
	} {
		d, err := parseDecimal(pair.src)
		if err != nil {
			return nil, false, err
		}
		*pair.dst = d
	}
	return &h, true, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse decimal %q: %w", s, err)
	}
	return d, nil
}

func nullDecimal(ns sql.NullString) (decimal.NullDecimal, error) {
	if !ns.Valid || ns.String == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDecimal(ns.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
