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

// advanceWithdrawal moves an outbound operation forward one step. Leg 1
// converts reserved settlement currency into the intermediate at our
// intermediate address; leg 2 converts the intermediate into the requested
// external asset at the user's destination address.
func (o *Orchestrator) advanceWithdrawal(ctx context.Context, op models.BridgeOperation) error {
	switch op.Status {
	case models.BridgeWaitingLeg1:
		return o.advanceWithdrawalLeg1(ctx, op)
	case models.BridgeWaitingLeg2:
		return o.advanceWithdrawalLeg2(ctx, op)
	}
	return nil
}

func (o *Orchestrator) advanceWithdrawalLeg1(ctx context.Context, op models.BridgeOperation) error {
	// The leg-1 exchange exists from initiation but has not been funded
	// from the treasury yet.
	if op.Leg1SendRef == "" {
		return o.fundWithdrawalLeg1(ctx, op)
	}

	state, err := o.bridge.GetStatus(ctx, op.Leg1Id)
	if err != nil {
		return fmt.Errorf("leg1 status lookup failed: %w", err)
	}

	switch {
	case state.Status == models.ExchangeFinished:
		return o.startWithdrawalLeg2(ctx, op, state.AmountReceived)

	case models.IsTerminalFailure(state.Status):
		// Failure before or during leg 1 refunds the user's reservation;
		// any funds the exchange refunds land back at the treasury.
		return o.failOperation(ctx, op, fmt.Sprintf("leg1 exchange %s", state.Status))
	}

	return nil
}

// fundWithdrawalLeg1 sends the reserved settlement amount from the treasury
// into the leg-1 exchange. The send reference commits under the lock marker,
// so a crash between send and commit leaves the lock held until the stale
// release rather than risking a second send.
func (o *Orchestrator) fundWithdrawalLeg1(ctx context.Context, op models.BridgeOperation) error {
	if op.DepositAddress == "" {
		return fmt.Errorf("withdrawal operation %s has no leg1 deposit address", op.Id)
	}

	marker := uuid.New().String()
	locked, err := o.dbService.AcquireSendLock(ctx, op.Id, marker)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}

	sendRef, err := o.chain.Send(ctx, gateway.SendParams{
		Asset:     o.settlementAsset,
		Amount:    op.RequestedAmount,
		ToAddress: op.DepositAddress,
	})
	if err != nil {
		// Ambiguous: the transfer may have been broadcast. Hold the lock so
		// no re-send happens before the stale-lock timeout.
		return fmt.Errorf("leg1 funding send failed: %w", err)
	}

	committed, err := o.dbService.CommitLeg1Send(ctx, op.Id, marker, sendRef)
	if err != nil {
		return err
	}
	if !committed {
		zap.L().Error("Funded leg1 exchange but could not commit send reference",
			zap.String("operation_id", op.Id),
			zap.String("send_ref", sendRef))
		return nil
	}

	zap.L().Info("Withdrawal leg1 funded from treasury",
		zap.String("operation_id", op.Id),
		zap.String("amount", op.RequestedAmount.String()),
		zap.String("send_ref", sendRef))
	return nil
}

func (o *Orchestrator) startWithdrawalLeg2(ctx context.Context, op models.BridgeOperation, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return o.failOperation(ctx, op, "leg1 completed with zero received amount")
	}

	marker := uuid.New().String()
	locked, err := o.dbService.AcquireSendLock(ctx, op.Id, marker)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}

	exchange, err := o.bridge.CreateExchange(ctx, gateway.CreateExchangeParams{
		FromAsset:          o.intermediateAsset,
		ToAsset:            op.ExternalAsset,
		DestinationAddress: op.DestinationAddress,
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

	zap.L().Info("Withdrawal advanced to leg2",
		zap.String("operation_id", op.Id),
		zap.String("leg2_id", exchange.Id),
		zap.String("destination", op.DestinationAddress))
	return nil
}

func (o *Orchestrator) advanceWithdrawalLeg2(ctx context.Context, op models.BridgeOperation) error {
	state, err := o.bridge.GetStatus(ctx, op.Leg2Id)
	if err != nil {
		return fmt.Errorf("leg2 status lookup failed: %w", err)
	}

	switch {
	case state.Status == models.ExchangeFinished:
		finished, err := o.dbService.FinishWithdrawal(ctx, op.Id, state.AmountReceived)
		if err != nil {
			return err
		}
		if finished && o.notifier != nil {
			op.ReceivedAmount = state.AmountReceived
			o.notifier.BridgeFinished(ctx, op)
		}
		return nil

	case models.IsTerminalFailure(state.Status):
		// Leg 2 failed after the user's funds converted. The reservation is
		// refunded so the user is whole; the intermediate refund from the
		// exchange is recovered to the treasury out of band.
		return o.failOperation(ctx, op, fmt.Sprintf("leg2 exchange %s", state.Status))
	}

	return nil
}
