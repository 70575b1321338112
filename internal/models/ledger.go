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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet represents a user's trading wallet
type Wallet struct {
	Id        string    `db:"id"`
	OwnerId   string    `db:"owner_id"`
	Label     string    `db:"label"`
	CreatedAt time.Time `db:"created_at"`
}

// Balance represents the settlement-currency balance of a wallet (hot data)
type Balance struct {
	WalletId          string          `db:"wallet_id"`
	Amount            decimal.Decimal `db:"amount"`
	LastTransactionId string          `db:"last_transaction_id"`
	Version           int64           `db:"version"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Holding represents a wallet's position in a single asset
type Holding struct {
	Id                string          `db:"id"`
	WalletId          string          `db:"wallet_id"`
	Asset             string          `db:"asset"`
	Amount            decimal.Decimal `db:"amount"`
	PendingAmount     decimal.Decimal `db:"pending_amount"`
	TotalCostBasis    decimal.Decimal `db:"total_cost_basis"`
	AverageEntryPrice decimal.Decimal `db:"average_entry_price"`
	LastPriceUsd      decimal.Decimal `db:"last_price_usd"`
	Version           int64           `db:"version"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Transaction kinds
const (
	TxKindDeposit  = "deposit"
	TxKindWithdraw = "withdraw"
	TxKindBuy      = "buy"
	TxKindSell     = "sell"
)

// Transaction statuses
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// LedgerTransaction represents immutable transaction history (cold data).
// Rows transition pending -> completed/failed and are never deleted.
type LedgerTransaction struct {
	Id                string              `db:"id"`
	Reference         string              `db:"reference"`
	WalletId          string              `db:"wallet_id"`
	Kind              string              `db:"kind"`
	Asset             string              `db:"asset"`
	Amount            decimal.Decimal     `db:"amount"`
	Value             decimal.Decimal     `db:"value"`
	Status            string              `db:"status"`
	RealizedPnl       decimal.NullDecimal `db:"realized_pnl"`
	CostBasisSnapshot decimal.NullDecimal `db:"cost_basis_snapshot"`
	FailureReason     string              `db:"failure_reason"`
	CreatedAt         time.Time           `db:"created_at"`
	CompletedAt       time.Time           `db:"completed_at"`
}

// Swap job sides and statuses
const (
	SwapSideBuy  = "buy"
	SwapSideSell = "sell"

	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Restore snapshot kinds (typed rollback variants)
const (
	RestoreFull    = "full_restore"
	RestorePartial = "partial_restore"
)

// HoldingSnapshot is the exact pre-reservation holding row captured for a
// sell order so a failed execution restores it without recomputation.
type HoldingSnapshot struct {
	Amount            decimal.Decimal `json:"amount"`
	PendingAmount     decimal.Decimal `json:"pending_amount"`
	TotalCostBasis    decimal.Decimal `json:"total_cost_basis"`
	AverageEntryPrice decimal.Decimal `json:"average_entry_price"`
}

// RestoreSnapshot is the tagged rollback record stored on every swap job.
// Kind RestorePartial carries the reserved settlement amount to credit back
// (buy); kind RestoreFull carries the full pre-reservation holding (sell).
type RestoreSnapshot struct {
	Kind    string           `json:"kind"`
	Amount  decimal.Decimal  `json:"amount"`
	Holding *HoldingSnapshot `json:"holding,omitempty"`
}

// SwapJob is a work-queue entry consumed by the swap job processor
type SwapJob struct {
	Id            string          `db:"id"`
	TransactionId string          `db:"transaction_id"`
	WalletId      string          `db:"wallet_id"`
	Side          string          `db:"side"`
	Asset         string          `db:"asset"`
	Mint          string          `db:"mint"`
	Decimals      int64           `db:"decimals"`
	AmountIn      decimal.Decimal `db:"amount_in"`
	QuoteOutput   decimal.Decimal `db:"quote_output"`
	QuotePayload  string          `db:"quote_payload"`
	Snapshot      RestoreSnapshot `db:"restore_snapshot"`
	Status        string          `db:"status"`
	SettlementRef string          `db:"settlement_ref"`
	FailureReason string          `db:"failure_reason"`
	ClaimedAt     time.Time       `db:"claimed_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Bridge operation directions and statuses
const (
	BridgeDeposit    = "deposit"
	BridgeWithdrawal = "withdrawal"

	BridgeWaitingLeg1 = "waiting_leg1"
	BridgeWaitingLeg2 = "waiting_leg2"
	BridgeFinished    = "finished"
	BridgeFailed      = "failed"
)

// BridgeOperation is a two-leg deposit or withdrawal advanced by polling
type BridgeOperation struct {
	Id                 string          `db:"id"`
	WalletId           string          `db:"wallet_id"`
	TransactionId      string          `db:"transaction_id"`
	Direction          string          `db:"direction"`
	ExternalAsset      string          `db:"external_asset"`
	RequestedAmount    decimal.Decimal `db:"requested_amount"`
	Leg1Received       decimal.Decimal `db:"leg1_received"`
	ReceivedAmount     decimal.Decimal `db:"received_amount"`
	Leg1Id             string          `db:"leg1_id"`
	Leg2Id             string          `db:"leg2_id"`
	Leg1SendRef        string          `db:"leg1_send_ref"`
	Leg2SendRef        string          `db:"leg2_send_ref"`
	Leg1CompletedAt    time.Time       `db:"leg1_completed_at"`
	Leg2CompletedAt    time.Time       `db:"leg2_completed_at"`
	Status             string          `db:"status"`
	DepositAddress     string          `db:"deposit_address"`
	DestinationAddress string          `db:"destination_address"`
	SendLock           string          `db:"send_lock"`
	SendLockAt         time.Time       `db:"send_lock_at"`
	FailureReason      string          `db:"failure_reason"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}
