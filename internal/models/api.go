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

// OrderResult is returned synchronously from PlaceOrder
type OrderResult struct {
	TrackingRef     string          `json:"tracking_ref"`
	EstimatedOutput decimal.Decimal `json:"estimated_output"`
}

// OrderStatus is the queryable state of an order by tracking reference
type OrderStatus struct {
	TrackingRef string              `json:"tracking_ref"`
	Kind        string              `json:"kind"`
	Asset       string              `json:"asset"`
	Amount      decimal.Decimal     `json:"amount"`
	Value       decimal.Decimal     `json:"value"`
	Status      string              `json:"status"`
	RealizedPnl decimal.NullDecimal `json:"realized_pnl,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt time.Time           `json:"completed_at,omitempty"`
}

// DepositResult is returned synchronously from InitiateDeposit
type DepositResult struct {
	TrackingRef    string `json:"tracking_ref"`
	DepositAddress string `json:"deposit_address,omitempty"`
}

// WithdrawalResult is returned synchronously from InitiateWithdrawal
type WithdrawalResult struct {
	TrackingRef string `json:"tracking_ref"`
}

// OperationStatus is the queryable state of a bridge operation
type OperationStatus struct {
	TrackingRef     string          `json:"tracking_ref"`
	Direction       string          `json:"direction"`
	ExternalAsset   string          `json:"external_asset"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	ReceivedAmount  decimal.Decimal `json:"received_amount"`
	Status          string          `json:"status"`
	DepositAddress  string          `json:"deposit_address,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
