package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"veilswap/internal/models"
	"veilswap/internal/store"

	"github.com/google/uuid"
)

// Holding mutations only happen inside reservation/settlement transactions,
// always under the version guard.

func getHoldingTx(ctx context.Context, tx *sql.Tx, walletId, asset string) (*models.Holding, bool, error) {
	return scanHolding(tx.QueryRowContext(ctx, queryGetHolding, walletId, asset))
}

func insertHoldingTx(ctx context.Context, tx *sql.Tx, h *models.Holding) error {
	if h.Id == "" {
		h.Id = uuid.New().String()
	}
	_, err := tx.ExecContext(ctx, queryInsertHolding,
		h.Id, h.WalletId, h.Asset,
		h.Amount.String(), h.PendingAmount.String(), h.TotalCostBasis.String(),
		h.AverageEntryPrice.String(), h.LastPriceUsd.String())
	if err != nil {
		return fmt.Errorf("failed to insert holding: %w", err)
	}
	return nil
}

func updateHoldingTx(ctx context.Context, tx *sql.Tx, h *models.Holding) error {
	result, err := tx.ExecContext(ctx, queryUpdateHolding,
		h.Amount.String(), h.PendingAmount.String(), h.TotalCostBasis.String(),
		h.AverageEntryPrice.String(), h.WalletId, h.Asset, h.Version)
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("holding update failed - %w", store.ErrConcurrentModification)
	}
	return nil
}

func deleteHoldingTx(ctx context.Context, tx *sql.Tx, h *models.Holding) error {
	result, err := tx.ExecContext(ctx, queryDeleteHolding, h.WalletId, h.Asset, h.Version)
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("holding delete failed - %w", store.ErrConcurrentModification)
	}
	return nil
}
