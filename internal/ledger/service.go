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
	"veilswap/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

// Service is the SQLite-backed ledger store. All multi-step mutations run in
// BEGIN IMMEDIATE transactions (_txlock=immediate) so a writer holds the
// write lock from the first statement; conditional updates inside those
// transactions are the engine's only synchronization primitive.
type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.InitSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Ledger store initialized successfully")
	return service, nil
}

// NewServiceWithDB wraps an existing connection. Used by tests and cmd/setup.
func NewServiceWithDB(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) InitSchema() error {
	schema := `
	-- Wallets
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_wallets_owner ON wallets(owner_id);

	-- Settlement-currency balances (hot data). Amounts are decimal strings;
	-- all arithmetic happens in the application under a version guard.
	CREATE TABLE IF NOT EXISTS balances (
		wallet_id TEXT PRIMARY KEY REFERENCES wallets(id),
		amount TEXT NOT NULL DEFAULT '0',
		last_transaction_id TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Per-asset holdings
	CREATE TABLE IF NOT EXISTS holdings (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		pending_amount TEXT NOT NULL DEFAULT '0',
		total_cost_basis TEXT NOT NULL DEFAULT '0',
		average_entry_price TEXT NOT NULL DEFAULT '0',
		last_price_usd TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(wallet_id, asset)
	);
	CREATE INDEX IF NOT EXISTS idx_holdings_wallet ON holdings(wallet_id);

	-- Transactions (audit trail - cold data). Never deleted.
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		wallet_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'pending',
		realized_pnl TEXT,
		cost_basis_snapshot TEXT,
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	-- One pending order per (wallet, kind): the duplicate-order guard.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_pending_unique
		ON transactions(wallet_id, kind) WHERE status = 'pending';

	-- Swap job queue
	CREATE TABLE IF NOT EXISTS swap_jobs (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		wallet_id TEXT NOT NULL,
		side TEXT NOT NULL,
		asset TEXT NOT NULL,
		mint TEXT NOT NULL DEFAULT '',
		decimals INTEGER NOT NULL,
		amount_in TEXT NOT NULL,
		quote_output TEXT NOT NULL,
		quote_payload TEXT NOT NULL,
		restore_snapshot TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		settlement_ref TEXT,
		failure_reason TEXT NOT NULL DEFAULT '',
		claimed_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_swap_jobs_status ON swap_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_swap_jobs_wallet ON swap_jobs(wallet_id);

	-- Two-leg bridge operations
	CREATE TABLE IF NOT EXISTS bridge_operations (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		direction TEXT NOT NULL,
		external_asset TEXT NOT NULL,
		requested_amount TEXT NOT NULL,
		leg1_received TEXT NOT NULL DEFAULT '0',
		received_amount TEXT NOT NULL DEFAULT '0',
		leg1_id TEXT NOT NULL DEFAULT '',
		leg2_id TEXT NOT NULL DEFAULT '',
		leg1_send_ref TEXT NOT NULL DEFAULT '',
		leg2_send_ref TEXT NOT NULL DEFAULT '',
		leg1_completed_at TIMESTAMP,
		leg2_completed_at TIMESTAMP,
		status TEXT NOT NULL DEFAULT 'waiting_leg1',
		deposit_address TEXT NOT NULL DEFAULT '',
		destination_address TEXT NOT NULL DEFAULT '',
		send_lock TEXT NOT NULL DEFAULT '',
		send_lock_at TIMESTAMP,
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_bridge_operations_status ON bridge_operations(status);
	CREATE INDEX IF NOT EXISTS idx_bridge_operations_wallet ON bridge_operations(wallet_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SeedDemoWallets inserts a few wallets for local testing.
func (s *Service) SeedDemoWallets(ctx context.Context) error {
	wallets := []struct {
		id    string
		owner string
		label string
	}{
		{"demo-wallet-1", "demo-user-1", "Alice"},
		{"demo-wallet-2", "demo-user-2", "Bob"},
		{"demo-wallet-3", "demo-user-3", "Carol"},
	}

	for _, w := range wallets {
		if _, err := s.db.ExecContext(ctx, queryInsertWallet, w.id, w.owner, w.label); err != nil {
			zap.L().Error("Failed to insert demo wallet", zap.String("wallet_id", w.id), zap.Error(err))
		} else {
			zap.L().Info("Demo wallet created", zap.String("wallet_id", w.id), zap.String("label", w.label))
		}
	}
	return nil
}
