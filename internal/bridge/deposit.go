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

package bridge

import (
	"context"
	"fmt"

	"veilswap/internal/gateway"
	"veilswap/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// advanceDeposit moves an inbound operation forward one step. Leg 1 converts
// the user's external asset into the intermediate at our intermediate
// address; leg 2 converts the intermediate into settlement currency at the
// treasury, and only then is the user credited.
func (o *Orchestrator) advanceDeposit(ctx context.Context, op models.BridgeOperation) error {
	switch op.Status {
	case models.BridgeWaitingLeg1:
		return o.advanceDepositLeg1(ctx, op)
	case models.BridgeWaitingLeg2:
		return o.advanceDepositLeg2(ctx, op)
	}
	return nil
}

func (o *Orchestrator) advanceDepositLeg1(ctx context.Context, op models.BridgeOperation) error {
	// Initiation can fail after the operation row commits, leaving no
	// exchange handle. If the intermediate address already holds funds above
	// the threshold, treat them as the leg-1 proceeds and skip straight to
	// leg 2; otherwise keep recreating the exchange until one sticks.
	if op.Leg1Id == "" {
		balance, err := o.chain.AddressBalance(ctx, o.intermediateAsset, o.intermediateAddress)
		if err != nil {
			return fmt.Errorf("intermediate balance check failed: %w", err)
		}
		if balance.GreaterThanOrEqual(o.intermediateMinBalance) {
			zap.L().Warn("Deposit has no leg1 exchange but intermediate address is funded, proceeding to leg2",
				zap.String("operation_id", op.Id),
				zap.String("intermediate_balance", balance.String()))
			return o.startDepositLeg2(ctx, op, balance)
		}
		return o.recreateDepositLeg1(ctx, op)
	}

	state, err := o.bridge.GetStatus(ctx, op.Leg1Id)
	if err != nil {
		return fmt.Errorf("leg1 status lookup failed: %w", err)
	}

	switch {
	case state.Status == models.ExchangeFinished:
		return o.startDepositLeg2(ctx, op, state.AmountReceived)

	case models.IsTerminalFailure(state.Status):
		// The exchange gave up, but the user's funds may still have made it
		// to the intermediate address (gateways sometimes expire an exchange
		// after paying out). A funded intermediate address means the deposit
		// is recoverable: proceed to leg 2 with the observed balance.
		balance, balErr := o.chain.AddressBalance(ctx, o.intermediateAsset, o.intermediateAddress)
		if balErr != nil {
			return fmt.Errorf("intermediate balance check failed: %w", balErr)
		}
		if balance.GreaterThanOrEqual(o.intermediateMinBalance) {
			zap.L().Warn("Leg1 exchange failed but intermediate address is funded, proceeding to leg2",
				zap.String("operation_id", op.Id),
				zap.String("leg1_status", state.Status),
				zap.String("intermediate_balance", balance.String()))
			return o.startDepositLeg2(ctx, op, balance)
		}
		return o.failOperation(ctx, op, fmt.Sprintf("leg1 exchange %s", state.Status))
	}

	// waiting / confirming / exchanging / sending: nothing to do yet.
	return nil
}

func (o *Orchestrator) recreateDepositLeg1(ctx context.Context, op models.BridgeOperation) error {
	exchange, err := o.bridge.CreateExchange(ctx, gateway.CreateExchangeParams{
		FromAsset:          op.ExternalAsset,
		ToAsset:            o.intermediateAsset,
		DestinationAddress: o.intermediateAddress,
	})
	if err != nil {
		return fmt.Errorf("leg1 exchange recreation failed: %w", err)
	}

	attached, err := o.dbService.SetLeg1Exchange(ctx, op.Id, exchange.Id, exchange.DepositAddress)
	if err != nil {
		return err
	}
	if !attached {
		zap.L().Debug("Leg1 exchange already attached elsewhere",
			zap.String("operation_id", op.Id))
		return nil
	}

	zap.L().Info("Recreated leg1 exchange for deposit",
		zap.String("operation_id", op.Id),
		zap.String("exchange_id", exchange.Id))
	return nil
}

// startDepositLeg2 creates the intermediate-to-settlement exchange and funds
// it from the intermediate address. The send lock guards the on-chain
// transfer: acquire, send, then advance atomically.
func (o *Orchestrator) startDepositLeg2(ctx context.Context, op models.BridgeOperation, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return o.failOperation(ctx, op, "leg1 completed with zero received amount")
	}

	marker := uuid.New().String()
	locked, err := o.dbService.AcquireSendLock(ctx, op.Id, marker)
	if err != nil {
		return err
	}
	if !locked {
		// Another orchestrator holds the lock; it will advance or the stale
		// release will free it.
		return nil
	}

	exchange, err := o.bridge.CreateExchange(ctx, gateway.CreateExchangeParams{
		FromAsset:          o.intermediateAsset,
		ToAsset:            o.settlementAsset,
		DestinationAddress: o.treasuryAddress,
	})
	if err != nil {
		if relErr := o.dbService.ReleaseSendLock(ctx, op.Id, marker); relErr != nil {
			zap.L().Error("Failed to release send lock after exchange creation failure",
				zap.String("operation_id", op.Id), zap.Error(relErr))
		}
		return fmt.Errorf("leg2 exchange creation failed: %w", err)
	}

	sendRef, err := o.chain.Send(ctx, gateway.SendParams{
		Asset:     o.intermediateAsset,
		Amount:    amount,
		ToAddress: exchange.DepositAddress,
	})
	if err != nil {
		// The send may or may not have been broadcast. Keeping the lock
		// until the stale release prevents an immediate re-send; the next
		// attempt happens after the lock timeout.
		return fmt.Errorf("leg2 funding send failed: %w", err)
	}

	advanced, err := o.dbService.AdvanceToLeg2(ctx, op.Id, marker, exchange.Id, sendRef, amount)
	if err != nil {
		return err
	}
	if !advanced {
		zap.L().Error("Funded leg2 exchange but could not advance operation",
			zap.String("operation_id", op.Id),
			zap.String("exchange_id", exchange.Id),
			zap.String("send_ref", sendRef))
		return nil
	}

	zap.L().Info("Deposit advanced to leg2",
		zap.String("operation_id", op.Id),
		zap.String("leg2_id", exchange.Id),
		zap.String("amount", amount.String()))
	return nil
}

func (o *Orchestrator) advanceDepositLeg2(ctx context.Context, op models.BridgeOperation) error {
	state, err := o.bridge.GetStatus(ctx, op.Leg2Id)
	if err != nil {
		return fmt.Errorf("leg2 status lookup failed: %w", err)
	}

	switch {
	case state.Status == models.ExchangeFinished:
		finished, err := o.dbService.FinishDeposit(ctx, op.Id, state.AmountReceived)
		if err != nil {
			return err
		}
		if finished && o.notifier != nil {
			op.ReceivedAmount = state.AmountReceived
			o.notifier.BridgeFinished(ctx, op)
		}
		return nil

	case models.IsTerminalFailure(state.Status):
		return o.failOperation(ctx, op, fmt.Sprintf("leg2 exchange %s", state.Status))
	}

	return nil
}
