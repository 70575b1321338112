package ledger

import (
	"context"
	"database/sql"
	"testing"

	"veilswap/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestService(t *testing.T) (*Service, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_txlock=immediate")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// A second connection to :memory: would see a different database.
	db.SetMaxOpenConns(1)

	service := NewServiceWithDB(db)
	if err := service.InitSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}
	return service, cleanup
}

func createTestWallet(t *testing.T, service *Service, walletId string) {
	t.Helper()
	if _, err := service.CreateWallet(context.Background(), walletId, "owner-"+walletId, walletId); err != nil {
		t.Fatalf("Failed to create wallet %s: %v", walletId, err)
	}
}

func fundBalance(t *testing.T, service *Service, walletId, amount string) {
	t.Helper()
	_, err := service.db.Exec(queryInsertBalance, walletId, amount)
	if err != nil {
		t.Fatalf("Failed to fund balance for %s: %v", walletId, err)
	}
}

func seedHolding(t *testing.T, service *Service, walletId, asset, amount, pending, costBasis, avgEntry string) {
	t.Helper()
	_, err := service.db.Exec(queryInsertHolding,
		"holding-"+walletId+"-"+asset, walletId, asset, amount, pending, costBasis, avgEntry, "0")
	if err != nil {
		t.Fatalf("Failed to seed holding %s/%s: %v", walletId, asset, err)
	}
}

func transactionReference(t *testing.T, service *Service, transactionId string) string {
	t.Helper()
	var reference string
	err := service.db.QueryRow("SELECT reference FROM transactions WHERE id = ?", transactionId).Scan(&reference)
	if err != nil {
		t.Fatalf("Failed to look up transaction reference: %v", err)
	}
	return reference
}

func testQuote(inputAmount, outputAmount string) models.Quote {
	return models.Quote{
		InputAsset:   "SOL",
		OutputAsset:  "PRIVY",
		InputAmount:  mustDecimal(inputAmount),
		OutputAmount: mustDecimal(outputAmount),
		Payload:      `{"route":"direct"}`,
		ReferenceId:  "quote-1",
	}
}

func mustDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}
