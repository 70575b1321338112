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
)

func (s *Service) CreateWallet(ctx context.Context, walletId, ownerId, label string) (*models.Wallet, error) {
	if _, err := s.db.ExecContext(ctx, queryInsertWallet, walletId, ownerId, label); err != nil {
		return nil, fmt.Errorf("failed to insert wallet: %w", err)
	}
	return s.GetWallet(ctx, walletId)
}

func (s *Service) GetWallet(ctx context.Context, walletId string) (*models.Wallet, error) {
	var w models.Wallet
	err := s.db.QueryRowContext(ctx, queryGetWallet, walletId).
		Scan(&w.Id, &w.OwnerId, &w.Label, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}
