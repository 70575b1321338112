package ledger

import (
	"context"
	"errors"
	"testing"

	"veilswap/internal/models"
	"veilswap/internal/store"
)

func TestReserveBuy_DebitsBalanceAndQueuesJob(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestWallet(t, service, "wallet1")
	fundBalance(t, service, "wallet1", "10.0")

	job, err := service.ReserveBuy(ctx, store.ReserveBuyParams{
		WalletId: "wallet1",
		Asset:    "PRIVY",
		Mint:     "mint-privy",
		Decimals: 6,
		AmountIn: mustDecimal("3.0"),
		Quote:    testQuote("3.0", "120"),
	})
	if err != nil {
		t.Fatalf("ReserveBuy failed: %v", err)
	}

	balance, err := service.GetBalance(ctx, "wallet1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Equal(mustDecimal("7")) {
		t.Errorf("Expected balance 7, got %s", balance.String())
	}

	holding, err := service.GetHolding(ctx, "wallet1", "PRIVY")
	if err != nil {
		t.Fatalf("GetHolding failed: %v", err)
	}
	if !holding.PendingAmount.Equal(mustDecimal("120")) {
		t.Errorf("Expected pending amount 120, got %s", holding.PendingAmount.String())
	}
	if !holding.Amount.IsZero() {
		t.Errorf("Expected settled amount 0, got %s", holding.Amount.String())
	}

	got, err := service.GetJob(ctx, job.Id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != models.JobStatusPending {
		t.Errorf("Expected job status pending, got %s", got.Status)
	}
	if got.Snapshot.Kind != models.RestorePartial {
		t.Errorf("Expected partial restore snapshot, got %s", got.Snapshot.Kind)
	}
	if !got.Snapshot.Amount.Equal(mustDecimal("3.0")) {
		t.Errorf("Expected snapshot amount 3.0, got %s", got.Snapshot.Amount.String())
	}
}

func TestReserveBuy_InsufficientFunds(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestWallet(t, service, "wallet1")
	fundBalance(t, service, "wallet1", "1.0")

	_, err := service.ReserveBuy(ctx, store.ReserveBuyParams{
		WalletId: "wallet1",
		Asset:    "PRIVY",
		Decimals: 6,
		AmountIn: mustDecimal("3.0"),
		Quote:    testQuote("3.0", "120"),
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	// Nothing committed.
	balance, _ := service.GetBalance(ctx, "wallet1")
	if !balance.Equal(mustDecimal("1.0")) {
		t.Errorf("Expected balance unchanged at 1.0, got %s", balance.String())
	}
	if _, err := service.GetHolding(ctx, "wallet1", "PRIVY"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected no holding row, got %v", err)
	}
}

func TestReserveBuy_DuplicatePendingOrder(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestWallet(t, service, "wallet1")
	fundBalance(t, service, "wallet1", "10.0")

	params := store.ReserveBuyParams{
		WalletId: "wallet1",
		Asset:    "PRIVY",
		Decimals: 6,
		AmountIn: mustDecimal("2.0"),
		Quote:    testQuote("2.0", "80"),
	}
	if _, err := service.ReserveBuy(ctx, params); err != nil {
		t.Fatalf("First ReserveBuy failed: %v", err)
	}

	_, err := service.ReserveBuy(ctx, params)
	if !errors.Is(err, store.ErrDuplicatePendingOrder) {
		t.Fatalf("Expected ErrDuplicatePendingOrder, got %v", err)
	}

	// Only the first reservation debited.
	balance, _ := service.GetBalance(ctx, "wallet1")
	if !balance.Equal(mustDecimal("8")) {
		t.Errorf("Expected balance 8, got %s", balance.String())
	}
}

func TestReserveSell_InsufficientHolding(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestWallet(t, service, "wallet1")

	_, err := service.ReserveSell(ctx, store.ReserveSellParams{
		WalletId:   "wallet1",
		Asset:      "PRIVY",
		Decimals:   6,
		SellAmount: mustDecimal("5"),
		Quote:      testQuote("5", "0.2"),
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
}

func TestReserveSell_DebitsHoldingAndCapturesSnapshot(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestWallet(t, service, "wallet1")
	seedHolding(t, service, "wallet1", "PRIVY", "100", "0", "2.5", "0.025")

	job, err := service.ReserveSell(ctx, store.ReserveSellParams{
		WalletId:   "wallet1",
		Asset:      "PRIVY",
		Decimals:   6,
		SellAmount: mustDecimal("40"),
		Quote:      testQuote("40", "1.1"),
	})
	if err != nil {
		t.Fatalf("ReserveSell failed: %v", err)
	}

	holding, err := service.GetHolding(ctx, "wallet1", "PRIVY")
	if err != nil {
		t.Fatalf("GetHolding failed: %v", err)
	}
	if !holding.Amount.Equal(mustDecimal("60")) {
		t.Errorf("Expected settled amount 60, got %s", holding.Amount.String())
	}
	// 2.5 * 40 / 100 = 1 removed from cost basis.
	if !holding.TotalCostBasis.Equal(mustDecimal("1.5")) {
		t.Errorf("Expected cost basis 1.5, got %s", holding.TotalCostBasis.String())
	}

	if job.Snapshot.Kind != models.RestoreFull {
		t.Fatalf("Expected full restore snapshot, got %s", job.Snapshot.Kind)
	}
	if job.Snapshot.Holding == nil {
		t.Fatal("Expected holding snapshot, got nil")
	}
	if !job.Snapshot.Holding.Amount.Equal(mustDecimal("100")) {
		t.Errorf("Expected snapshot amount 100, got %s", job.Snapshot.Holding.Amount.String())
	}
	if !job.Snapshot.Holding.TotalCostBasis.Equal(mustDecimal("2.5")) {
		t.Errorf("Expected snapshot cost basis 2.5, got %s", job.Snapshot.Holding.TotalCostBasis.String())
	}
}
