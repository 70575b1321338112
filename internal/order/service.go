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

package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"veilswap/internal/common"
	"veilswap/internal/gateway"
	"veilswap/internal/models"
	"veilswap/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrUnknownAsset     = errors.New("unknown asset")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidSide      = errors.New("side must be buy or sell")
	ErrQuoteUnavailable = errors.New("quote unavailable")
)

// Service is the synchronous half of the trading flow: it validates the
// request, obtains a quote, and reserves funds. Everything after the
// reservation commits happens asynchronously in the worker.
type Service struct {
	store   store.LedgerStore
	swaps   gateway.SwapGateway
	bridge  gateway.BridgeGateway
	catalog *common.AssetCatalog

	settlementAsset  common.AssetConfig
	intermediate     string
	intermediateAddr string
}

func NewService(ledgerStore store.LedgerStore, swaps gateway.SwapGateway, bridge gateway.BridgeGateway,
	catalog *common.AssetCatalog, cfg models.EngineConfig) (*Service, error) {

	settlement, ok := catalog.Lookup(cfg.SettlementAsset)
	if !ok {
		return nil, fmt.Errorf("settlement asset %s not present in asset catalog", cfg.SettlementAsset)
	}

	return &Service{
		store:            ledgerStore,
		swaps:            swaps,
		bridge:           bridge,
		catalog:          catalog,
		settlementAsset:  settlement,
		intermediate:     cfg.IntermediateAsset,
		intermediateAddr: cfg.IntermediateAddress,
	}, nil
}

type PlaceOrderParams struct {
	WalletId string
	Side     string
	Asset    string
	// Amount is settlement currency to spend for a buy, asset quantity to
	// sell for a sell.
	Amount decimal.Decimal
}

// PlaceOrder validates, quotes, and reserves. On return the caller's funds
// are locked and a swap job is queued; execution is the worker's problem.
func (s *Service) PlaceOrder(ctx context.Context, params PlaceOrderParams) (*models.OrderResult, error) {
	if !params.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	if _, err := s.store.GetWallet(ctx, params.WalletId); err != nil {
		return nil, err
	}

	asset, ok := s.catalog.Lookup(params.Asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, params.Asset)
	}
	if strings.EqualFold(asset.Symbol, s.settlementAsset.Symbol) {
		return nil, fmt.Errorf("%w: cannot trade the settlement currency against itself", ErrUnknownAsset)
	}

	switch params.Side {
	case models.SwapSideBuy:
		return s.placeBuy(ctx, params.WalletId, asset, params.Amount)
	case models.SwapSideSell:
		return s.placeSell(ctx, params.WalletId, asset, params.Amount)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, params.Side)
	}
}

func (s *Service) placeBuy(ctx context.Context, walletId string, asset common.AssetConfig, amountIn decimal.Decimal) (*models.OrderResult, error) {
	quote, err := s.swaps.Quote(ctx, gateway.QuoteParams{
		InputAsset:     s.settlementAsset.Symbol,
		OutputAsset:    asset.Symbol,
		InputMint:      s.settlementAsset.Mint,
		OutputMint:     asset.Mint,
		Amount:         amountIn,
		InputDecimals:  s.settlementAsset.Decimals,
		OutputDecimals: asset.Decimals,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrQuoteUnavailable, err)
	}

	reference := uuid.New().String()
	if _, err := s.store.ReserveBuy(ctx, store.ReserveBuyParams{
		WalletId:  walletId,
		Reference: reference,
		Asset:     asset.Symbol,
		Mint:      asset.Mint,
		Decimals:  asset.Decimals,
		AmountIn:  amountIn,
		Quote:     *quote,
	}); err != nil {
		return nil, err
	}

	return &models.OrderResult{
		TrackingRef:     reference,
		EstimatedOutput: quote.OutputAmount,
	}, nil
}

func (s *Service) placeSell(ctx context.Context, walletId string, asset common.AssetConfig, sellAmount decimal.Decimal) (*models.OrderResult, error) {
	quote, err := s.swaps.Quote(ctx, gateway.QuoteParams{
		InputAsset:     asset.Symbol,
		OutputAsset:    s.settlementAsset.Symbol,
		InputMint:      asset.Mint,
		OutputMint:     s.settlementAsset.Mint,
		Amount:         sellAmount,
		InputDecimals:  asset.Decimals,
		OutputDecimals: s.settlementAsset.Decimals,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrQuoteUnavailable, err)
	}

	reference := uuid.New().String()
	if _, err := s.store.ReserveSell(ctx, store.ReserveSellParams{
		WalletId:   walletId,
		Reference:  reference,
		Asset:      asset.Symbol,
		Mint:       asset.Mint,
		Decimals:   asset.Decimals,
		SellAmount: sellAmount,
		Quote:      *quote,
	}); err != nil {
		return nil, err
	}

	return &models.OrderResult{
		TrackingRef:     reference,
		EstimatedOutput: quote.OutputAmount,
	}, nil
}

// GetOrderStatus looks up an order by its tracking reference, scoped to the
// requesting wallet.
func (s *Service) GetOrderStatus(ctx context.Context, walletId, trackingRef string) (*models.OrderStatus, error) {
	txn, err := s.store.GetTransactionByReference(ctx, trackingRef)
	if err != nil {
		return nil, err
	}
	if txn.WalletId != walletId {
		return nil, store.ErrNotFound
	}

	return &models.OrderStatus{
		TrackingRef: txn.Reference,
		Kind:        txn.Kind,
		Asset:       txn.Asset,
		Amount:      txn.Amount,
		Value:       txn.Value,
		Status:      txn.Status,
		RealizedPnl: txn.RealizedPnl,
		CreatedAt:   txn.CreatedAt,
		CompletedAt: txn.CompletedAt,
	}, nil
}

// InitiateDeposit opens an inbound bridge operation. The returned deposit
// address is where the user sends the external asset; the orchestrator
// advances the operation from there.
func (s *Service) InitiateDeposit(ctx context.Context, walletId, externalAsset string, amount decimal.Decimal) (*models.DepositResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if _, err := s.store.GetWallet(ctx, walletId); err != nil {
		return nil, err
	}

	op, err := s.store.CreateDepositOperation(ctx, store.CreateDepositParams{
		WalletId:        walletId,
		ExternalAsset:   externalAsset,
		RequestedAmount: amount,
	})
	if err != nil {
		return nil, err
	}

	// Leg 1 converts the user's external asset into the privacy
	// intermediate, delivered to our intermediate address. A gateway
	// failure here is recoverable: the operation stays without a leg-1
	// exchange and the orchestrator retries creation.
	exchange, err := s.bridge.CreateExchange(ctx, gateway.CreateExchangeParams{
		FromAsset:          externalAsset,
		ToAsset:            s.intermediate,
		DestinationAddress: s.intermediateAddr,
	})
	if err != nil {
		zap.L().Warn("Leg1 exchange creation failed at initiation, deferring to orchestrator",
			zap.String("operation_id", op.Id),
			zap.Error(err))
		return &models.DepositResult{TrackingRef: op.Id}, nil
	}

	if _, err := s.store.SetLeg1Exchange(ctx, op.Id, exchange.Id, exchange.DepositAddress); err != nil {
		return nil, err
	}

	return &models.DepositResult{
		TrackingRef:    op.Id,
		DepositAddress: exchange.DepositAddress,
	}, nil
}

// InitiateWithdrawal reserves the settlement amount and opens an outbound
// bridge operation. The leg-1 exchange is created before reserving so a
// gateway failure leaves the ledger untouched.
func (s *Service) InitiateWithdrawal(ctx context.Context, walletId, externalAsset string, amount decimal.Decimal, destinationAddress string) (*models.WithdrawalResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if destinationAddress == "" {
		return nil, errors.New("destination address is required")
	}
	if _, err := s.store.GetWallet(ctx, walletId); err != nil {
		return nil, err
	}

	exchange, err := s.bridge.CreateExchange(ctx, gateway.CreateExchangeParams{
		FromAsset:          s.settlementAsset.Symbol,
		ToAsset:            s.intermediate,
		DestinationAddress: s.intermediateAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create withdrawal exchange: %w", err)
	}

	op, err := s.store.ReserveWithdrawal(ctx, store.ReserveWithdrawalParams{
		WalletId:           walletId,
		ExternalAsset:      externalAsset,
		Amount:             amount,
		DestinationAddress: destinationAddress,
		Leg1Id:             exchange.Id,
		DepositAddress:     exchange.DepositAddress,
	})
	if err != nil {
		return nil, err
	}

	return &models.WithdrawalResult{TrackingRef: op.Id}, nil
}

// GetOperationStatus looks up a bridge operation by its tracking reference,
// scoped to the requesting wallet.
func (s *Service) GetOperationStatus(ctx context.Context, walletId, trackingRef string) (*models.OperationStatus, error) {
	op, err := s.store.GetBridgeOperation(ctx, trackingRef)
	if err != nil {
		return nil, err
	}
	if op.WalletId != walletId {
		return nil, store.ErrNotFound
	}

	return &models.OperationStatus{
		TrackingRef:     op.Id,
		Direction:       op.Direction,
		ExternalAsset:   op.ExternalAsset,
		RequestedAmount: op.RequestedAmount,
		ReceivedAmount:  op.ReceivedAmount,
		Status:          op.Status,
		DepositAddress:  op.DepositAddress,
		CreatedAt:       op.CreatedAt,
	}, nil
}
