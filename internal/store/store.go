package store

import (
	"context"
	"errors"
	"time"

	"veilswap/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across the engine. Callers branch with errors.Is;
// all of these mean "no state was mutated".
var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrDuplicatePendingOrder  = errors.New("duplicate pending order")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrNotFound               = errors.New("record not found")
)

// ReserveBuyParams reserves settlement currency for an asynchronous buy.
// Reference becomes the order's tracking reference; the store generates one
// when it is empty.
type ReserveBuyParams struct {
	WalletId  string
	Reference string
	Asset     string
	Mint      string
	Decimals  int64
	AmountIn  decimal.Decimal // settlement currency debited up front
	Quote     models.Quote
}

// ReserveSellParams reserves asset holdings for an asynchronous sell.
type ReserveSellParams struct {
	WalletId   string
	Reference  string
	Asset      string
	Mint       string
	Decimals   int64
	SellAmount decimal.Decimal // asset units debited up front
	Quote      models.Quote
}

// CreateDepositParams opens a two-leg inbound bridge operation.
type CreateDepositParams struct {
	WalletId        string
	ExternalAsset   string
	RequestedAmount decimal.Decimal
}

// ReserveWithdrawalParams debits settlement currency and opens a two-leg
// outbound bridge operation in one atomic unit.
type ReserveWithdrawalParams struct {
	WalletId           string
	ExternalAsset      string
	Amount             decimal.Decimal
	DestinationAddress string
	Leg1Id             string
	DepositAddress     string
}

// LedgerStore is the single source of truth and sole synchronization point.
// Every mutation that must happen at most once is a conditional update; zero
// affected rows signals precondition failure, reported as (false, nil) or a
// sentinel error depending on the call.
type LedgerStore interface {
	// --- Wallets ---
	CreateWallet(ctx context.Context, walletId, ownerId, label string) (*models.Wallet, error)
	GetWallet(ctx context.Context, walletId string) (*models.Wallet, error)

	// --- Balances & holdings ---
	GetBalance(ctx context.Context, walletId string) (decimal.Decimal, error)
	GetHolding(ctx context.Context, walletId, asset string) (*models.Holding, error)
	ListHoldings(ctx context.Context, walletId string) ([]models.Holding, error)

	// --- Order reservation ---
	ReserveBuy(ctx context.Context, params ReserveBuyParams) (*models.SwapJob, error)
	ReserveSell(ctx context.Context, params ReserveSellParams) (*models.SwapJob, error)
	GetTransactionByReference(ctx context.Context, reference string) (*models.LedgerTransaction, error)

	// --- Swap jobs ---
	GetJob(ctx context.Context, jobId string) (*models.SwapJob, error)
	PendingJobs(ctx context.Context, limit int) ([]models.SwapJob, error)
	ResumableJobs(ctx context.Context, olderThan time.Duration, limit int) ([]models.SwapJob, error)
	ClaimJob(ctx context.Context, jobId string) (bool, error)
	RequeueStaleJobs(ctx context.Context, olderThan time.Duration) (int, error)
	RecordSettlementRef(ctx context.Context, jobId, settlementRef string) (bool, error)
	SettleBuy(ctx context.Context, job models.SwapJob) error
	SettleSell(ctx context.Context, job models.SwapJob) error
	RollbackJob(ctx context.Context, job models.SwapJob, reason string) error

	// --- Bridge operations ---
	CreateDepositOperation(ctx context.Context, params CreateDepositParams) (*models.BridgeOperation, error)
	ReserveWithdrawal(ctx context.Context, params ReserveWithdrawalParams) (*models.BridgeOperation, error)
	GetBridgeOperation(ctx context.Context, opId string) (*models.BridgeOperation, error)
	ActiveBridgeOperations(ctx context.Context, limit int) ([]models.BridgeOperation, error)
	SetLeg1Exchange(ctx context.Context, opId, leg1Id, depositAddress string) (bool, error)
	AdvanceToLeg2(ctx context.Context, opId, marker, leg2Id, sendRef string, leg1Received decimal.Decimal) (bool, error)
	FinishDeposit(ctx context.Context, opId string, received decimal.Decimal) (bool, error)
	FinishWithdrawal(ctx context.Context, opId string, received decimal.Decimal) (bool, error)
	FailBridgeOperation(ctx context.Context, opId, fromStatus, reason string) (bool, error)

	// --- Outbound-send locking ---
	AcquireSendLock(ctx context.Context, opId, marker string) (bool, error)
	ReleaseSendLock(ctx context.Context, opId, marker string) error
	CommitLeg1Send(ctx context.Context, opId, marker, sendRef string) (bool, error)
	ReleaseStaleSendLocks(ctx context.Context, olderThan time.Duration) (int, error)

	// --- Lifecycle ---
	Close()
}
