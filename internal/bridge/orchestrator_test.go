package bridge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"veilswap/internal/gateway"
	"veilswap/internal/ledger"
	"veilswap/internal/models"
	"veilswap/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBridgeGateway struct {
	states    map[string]*models.ExchangeState
	created   []gateway.CreateExchangeParams
	nextId    int
	createErr error
}

func newFakeBridgeGateway() *fakeBridgeGateway {
	return &fakeBridgeGateway{states: make(map[string]*models.ExchangeState)}
}

func (f *fakeBridgeGateway) CreateExchange(_ context.Context, params gateway.CreateExchangeParams) (*models.Exchange, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextId++
	id := fmt.Sprintf("exch-%d", f.nextId)
	f.created = append(f.created, params)
	return &models.Exchange{Id: id, DepositAddress: "deposit-" + id}, nil
}

func (f *fakeBridgeGateway) GetStatus(_ context.Context, exchangeId string) (*models.ExchangeState, error) {
	if state, ok := f.states[exchangeId]; ok {
		return state, nil
	}
	return &models.ExchangeState{Status: models.ExchangeWaiting}, nil
}

type fakeChainGateway struct {
	sends     []gateway.SendParams
	sendCalls int
	sendErr   error
	balances  map[string]decimal.Decimal
}

func newFakeChainGateway() *fakeChainGateway {
	return &fakeChainGateway{balances: make(map[string]decimal.Decimal)}
}

func (f *fakeChainGateway) Send(_ context.Context, params gateway.SendParams) (string, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sends = append(f.sends, params)
	return fmt.Sprintf("chain-tx-%d", f.sendCalls), nil
}

func (f *fakeChainGateway) AddressBalance(_ context.Context, asset, address string) (decimal.Decimal, error) {
	return f.balances[asset+"/"+address], nil
}

type fakeBridgeNotifier struct {
	finished []models.BridgeOperation
	failed   []models.BridgeOperation
}

func (f *fakeBridgeNotifier) SwapSettled(_ context.Context, _ models.SwapJob)          {}
func (f *fakeBridgeNotifier) SwapFailed(_ context.Context, _ models.SwapJob, _ string) {}

func (f *fakeBridgeNotifier) BridgeFinished(_ context.Context, op models.BridgeOperation) {
	f.finished = append(f.finished, op)
}

func (f *fakeBridgeNotifier) BridgeFailed(_ context.Context, op models.BridgeOperation, _ string) {
	f.failed = append(f.failed, op)
}

func newTestStore(t *testing.T) (*ledger.Service, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_txlock=immediate")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	service := ledger.NewServiceWithDB(db)
	require.NoError(t, service.InitSchema())

	_, err = service.CreateWallet(context.Background(), "wallet1", "owner1", "Alice")
	require.NoError(t, err)

	return service, db
}

func fundWallet(t *testing.T, db *sql.DB, walletId, amount string) {
	t.Helper()
	_, err := db.Exec("INSERT INTO balances (wallet_id, amount, version) VALUES (?, ?, 1)", walletId, amount)
	require.NoError(t, err)
}

func newTestOrchestrator(dbService store.LedgerStore, fb *fakeBridgeGateway, fc *fakeChainGateway, fn *fakeBridgeNotifier) *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		DbService:              dbService,
		Bridge:                 fb,
		Chain:                  fc,
		Notifier:               fn,
		PollingInterval:        time.Second,
		BatchSize:              10,
		SendLockTimeout:        2 * time.Minute,
		SettlementAsset:        "SOL",
		IntermediateAsset:      "XMR",
		IntermediateAddress:    "intermediate-addr",
		TreasuryAddress:        "treasury-addr",
		IntermediateMinBalance: decimal.RequireFromString("0.001"),
	})
}

func TestDepositAdvancesAndCreditsOnce(t *testing.T) {
	service, _ := newTestStore(t)
	fb := newFakeBridgeGateway()
	fc := newFakeChainGateway()
	fn := &fakeBridgeNotifier{}
	o := newTestOrchestrator(service, fb, fc, fn)

	ctx := context.Background()
	op, err := service.CreateDepositOperation(ctx, store.CreateDepositParams{
		WalletId:        "wallet1",
		ExternalAsset:   "BTC",
		RequestedAmount: decimal.RequireFromString("1.0"),
	})
	require.NoError(t, err)
	attached, err := service.SetLeg1Exchange(ctx, op.Id, "exch-leg1", "user-deposit-addr")
	require.NoError(t, err)
	require.True(t, attached)

	// Leg 1 pays out 500 intermediate units.
	fb.states["exch-leg1"] = &models.ExchangeState{
		Status:         models.ExchangeFinished,
		AmountReceived: decimal.RequireFromString("500"),
	}

	o.runOnce(ctx)

	got, err := service.GetBridgeOperation(ctx, op.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BridgeWaitingLeg2, got.Status)
	assert.Empty(t, got.SendLock, "lock must clear when the operation advances")

	require.Len(t, fb.created, 1)
	assert.Equal(t, "XMR", fb.created[0].FromAsset)
	assert.Equal(t, "SOL", fb.created[0].ToAsset)
	assert.Equal(t, "treasury-addr", fb.created[0].DestinationAddress)

	require.Len(t, fc.sends, 1)
	assert.Equal(t, "XMR", fc.sends[0].Asset)
	assert.True(t, fc.sends[0].Amount.Equal(decimal.RequireFromString("500")))
	assert.Equal(t, "deposit-exch-1", fc.sends[0].ToAddress)

	// Leg 2 settles 0.98 SOL into the treasury.
	fb.states["exch-1"] = &models.ExchangeState{
		Status:         models.ExchangeFinished,
		AmountReceived: decimal.RequireFromString("0.98"),
	}

	o.runOnce(ctx)

	balance, err := service.GetBalance(ctx, "wallet1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("0.98")), "balance: %s", balance)

	// Finished operations drop out of the active set; nothing to re-apply.
	o.runOnce(ctx)

	balance, err = service.GetBalance(ctx, "wallet1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("0.98")))
	require.Len(t, fn.finished, 1)
	assert.Empty(t, fn.failed)
	assert.Equal(t, 1, fc.sendCalls)
}

func TestDepositRecreatesMissingLeg1Exchange(t *testing.T) {
	service, _ := newTestStore(t)
	fb := newFakeBridgeGateway()
	fc := newFakeChainGateway()
	fn := &fakeBridgeNotifier{}
	o := newTestOrchestrator(service, fb, fc, fn)

	ctx := context.Background()
	// Initiation crashed after the row committed but before the exchange
	// handle stuck.
	op, err := service.CreateDepositOperation(ctx, store.CreateDepositParams{
		WalletId:        "wallet1",
		ExternalAsset:   "BTC",
		RequestedAmount: decimal.RequireFromString("1.0"),
	})
	require.NoError(t, err)

	o.runOnce(ctx)

	require.Len(t, fb.created, 1)
	assert.Equal(t, "BTC", fb.created[0].FromAsset)
	assert.Equal(t, "XMR", fb.created[0].ToAsset)
	assert.Equal(t, "intermediate-addr", fb.created[0].DestinationAddress)

	got, err := service.GetBridgeOperation(ctx, op.Id)
	require.NoError(t, err)
	assert.Equal(t, "exch-1", got.Leg1Id)
	assert.Equal(t, "deposit-exch-1", got.DepositAddress)
	assert.Equal(t, models.BridgeWaitingLeg1, got.Status)
}

func TestDepositWithoutLeg1ExchangeProceedsWhenIntermediateFunded(t *testing.T) {
	service, _ := newTestStore(t)
	fb := newFakeBridgeGateway()
	fc := newFakeChainGateway()
	fn := &fakeBridgeNotifier{}
	o := newTestOrchestrator(service, fb, fc, fn)

	ctx := context.Background()
	// No exchange handle ever stuck, but the user's funds made it to the
	// intermediate address anyway.
	op, err := service.CreateDepositOperation(ctx, store.CreateDepositParams{
		WalletId:        "wallet1",
		ExternalAsset:   "BTC",
		RequestedAmount: decimal.RequireFromString("1.0"),
	})
	require.NoError(t, err)
	fc.balances["XMR/intermediate-addr"] = decimal.RequireFromString("0.75")

	o.runOnce(ctx)

	got, err := service.GetBridgeOperation(ctx, op.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BridgeWaitingLeg2, got.Status)
	assert.Empty(t, got.Leg1Id, "no leg1 exchange should be opened for recovered funds")

	// Only the leg2 exchange gets created: intermediate to settlement, at
	// the treasury.
	require.Len(t, fb.created, 1)
	assert.Equal(t, "XMR", fb.created[0].FromAsset)
	assert.Equal(t, "SOL", fb.created[0].ToAsset)
	assert.Equal(t, "treasury-addr", fb.created[0].DestinationAddress)

	require.Len(t, fc.sends, 1)
	assert.True(t, fc.sends[0].Amount.Equal(decimal.RequireFromString("0.75")),
		"leg2 funded with the observed balance, got %s", fc.sends[0].Amount)
	assert.Empty(t, fn.failed)
}

func TestDepositWithoutLeg1ExchangeRecreatesWhenUnfunded(t *testing.T) {
	service, _ := newTestStore(t)
	fb := newFakeBridgeGateway()
	fc := newFakeChainGateway()
	fn := &fakeBridgeNotifier{}
	o := newTestOrchestrator(service, fb, fc, fn)

	ctx := context.Background()
	op, err := service.CreateDepositOperation(ctx, store.CreateDepositParams{
		WalletId:        "wallet1",
		ExternalAsset:   "BTC",
		RequestedAmount: decimal.RequireFromString("1.0"),
	})
	require.NoError(t, err)
	// Below the threshold: dust at the shared address is not someone's
	// deposit.
	fc.balances["XMR/intermediate-addr"] = decimal.RequireFromString("0.0001")

	o.runOnce(ctx)

	got, err := service.GetBridgeOperation(ctx, op.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BridgeWaitingLeg1, got.Status)
	assert.Equal(t, "exch-1", got.Leg1Id)

	require.Len(t, fb.created, 1)
	assert.Equal(t, "BTC", fb.created[0].FromAsset)
	assert.Equal(t, "XMR", fb.created[0].ToAsset)
	assert.Equal(t, 0, fc.sendCalls)
}

func TestDepositProceedsWhenIntermediateFundedDespiteLeg1Failure(t *testing.T) {
	service, _ := newTestStore(t)
	fb := newFakeBridgeGateway()
	fc := newFakeChainGateway()
	fn := &fakeBridgeNotifier{}
	o := newTestOrchestrator(service, fb, fc, fn)

	ctx := context.Background()
	op, err := service.CreateDepositOperation(ctx, store.CreateDepositParams{
		WalletId:        "wallet1",
		ExternalAsset:   "BTC",
		RequestedAmount: decimal.RequireFromString("1.0"),
	})
	require.NoError(t, err)
	service.SetLeg1Exchange(ctx, op.Id, "exch-leg1", "user-deposit-addr")

	// The exchange expired, but the payout reached the intermediate address.
	fb.states["exch-leg1"] = &models.ExchangeState{Status: models.ExchangeExpired}
	fc.balances["XMR/intermediate-addr"] = decimal.RequireFromString("0.75")

	o.runOnce(ctx)

	got, err := service.GetBridgeOperation(ctx, op.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BridgeWaitingLeg2, got.Status)

	require.Len(t, fc.sends, 1)
	assert.True(t, fc.sends[0].Amount.Equal(decimal.RequireFromString("0.75")),
		"leg2 funded with the observed balance, got %s", fc.sends[0].Amount)
	assert.Empty(t, fn.failed)
}

func TestDepositFailsWhenLeg1FailsUnfunded(t *testing.T) {
	service, _ := newTestStore(t)
	fb := newFakeBridgeGateway()
	fc := newFakeChainGateway()
	fn := &fakeBridgeNotifier{}
	o := newTestOrchestrator(service, fb, fc, fn)

	ctx := context.Background()
	op, err := service.CreateDepositOperation(ctx, store.CreateDepositParams{
		WalletId:        "wallet1",
		ExternalAsset:   "BTC",
		RequestedAmount: decimal.RequireFromString("1.0"),
	})
	require.NoError(t, err)
	service.SetLeg1Exchange(ctx, op.Id, "exch-leg1", "user-deposit-addr")

	fb.states["exch-leg1"] = &models.ExchangeState{Status: models.ExchangeRefunded}

	o.runOnce(ctx)

	got, err := service.GetBridgeOperation(ctx, op.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BridgeFailed, got.Status)
	assert.Contains(t, got.FailureReason, models.ExchangeRefunded)

	assert.Equal(t, 0, fc.sendCalls)
	require.Len(t, fn.failed, 1)

	balance, err := service.GetBalance(ctx, "wallet1")
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "nothing to credit on a failed deposit")
}

func TestDepositHoldsLockAfterAmbiguousSendFailure(t *testing.T) {
	service, _ := newTestStore(t)
	fb := newFakeBridgeGateway()
	fc := newFakeChainGateway()
	fn := &fakeBridgeNotifier{}
	o := newTestOrchestrator(service, fb, fc, fn)

	ctx := context.Background()
	op, err := service.CreateDepositOperation(ctx, store.CreateDepositParams{
		WalletId:        "wallet1",
		ExternalAsset:   "BTC",
		RequestedAmount: decimal.RequireFromString("1.0"),
	})
	require.NoError(t, err)
	service.SetLeg1Exchange(ctx, op.Id, "exch-leg1", "user-deposit-addr")

	fb.states["exch-leg1"] = &models.ExchangeState{
		Status:         models.ExchangeFinished,
		AmountReceived: decimal.RequireFromString("500"),
	}
	fc.sendErr = errors.New("rpc timeout")

	o.runOnce(ctx)

	got, err := service.GetBridgeOperation(ctx, op.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BridgeWaitingLeg1, got.Status)
	assert.NotEmpty(t, got.SendLock, "lock must stay held after an ambiguous send")

	// The held lock blocks a retry until the stale release fires.
	o.runOnce(ctx)
	assert.Equal(t, 1, fc.sendCalls)
}

func TestWithdrawalAdvancesThroughBothLegs(t *testing.T) {
	service, db := newTestStore(t)
	fb := newFakeBridgeGateway()
	fc := newFakeChainGateway()
	fn := &fakeBridgeNotifier{}
	o := newTestOrchestrator(service, fb, fc, fn)

	ctx := context.Background()
	fundWallet(t, db, "wallet1", "5.0")

	op, err := service.ReserveWithdrawal(ctx, store.ReserveWithdrawalParams{
		WalletId:           "wallet1",
		ExternalAsset:      "BTC",
		Amount:             decimal.RequireFromString("2.0"),
		DestinationAddress: "bc1-user-address",
		Leg1Id:             "exch-leg1",
		DepositAddress:     "deposit-exch-leg1",
	})
	require.NoError(t, err)

	// First pass funds leg 1 from the treasury.
	o.runOnce(ctx)

	got, err := service.GetBridgeOperation(ctx, op.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BridgeWaitingLeg1, got.Status)
	assert.Equal(t, "chain-tx-1", got.Leg1SendRef)
	assert.Empty(t, got.SendLock)

	require.Len(t, fc.sends, 1)
	assert.Equal(t, "SOL", fc.sends[0].Asset)
	assert.True(t, fc.sends[0].Amount.Equal(decimal.RequireFromString("2.0")))
	assert.Equal(t, "deposit-exch-leg1", fc.sends[0].ToAddress)

	// Leg 1 converts to 495 intermediate units.
	fb.states["exch-leg1"] = &models.ExchangeState{
		Status:         models.ExchangeFinished,
		AmountReceived: decimal.RequireFromString("495"),
	}

	o.runOnce(ctx)

	got, err = service.GetBridgeOperation(ctx, op.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BridgeWaitingLeg2, got.Status)

	require.Len(t, fb.created, 1)
	assert.Equal(t, "XMR", fb.created[0].FromAsset)
	assert.Equal(t, "BTC", fb.created[0].ToAsset)
	assert.Equal(t, "bc1-user-address", fb.created[0].DestinationAddress)

	require.Len(t, fc.sends, 2)
	assert.True(t, fc.sends[1].Amount.Equal(decimal.RequireFromString("495")))
	assert.Equal(t, "deposit-exch-1", fc.sends[1].ToAddress)

	// Leg 2 pays out to the user.
	fb.states["exch-1"] = &models.ExchangeState{
		Status:         models.ExchangeFinished,
		AmountReceived: decimal.RequireFromString("0.11"),
	}

	o.runOnce(ctx)

	got, err = service.GetBridgeOperation(ctx, op.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BridgeFinished, got.Status)
	require.Len(t, fn.finished, 1)

	// The reserved amount stays debited.
	balance, err := service.GetBalance(ctx, "wallet1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("3")), "balance: %s", balance)
}

func TestWithdrawalLeg1FailureRefundsReservation(t *testing.T) {
	service, db := newTestStore(t)
	fb := newFakeBridgeGateway()
	fc := newFakeChainGateway()
	fn := &fakeBridgeNotifier{}
	o := newTestOrchestrator(service, fb, fc, fn)

	ctx := context.Background()
	fundWallet(t, db, "wallet1", "5.0")

	op, err := service.ReserveWithdrawal(ctx, store.ReserveWithdrawalParams{
		WalletId:           "wallet1",
		ExternalAsset:      "BTC",
		Amount:             decimal.RequireFromString("2.0"),
		DestinationAddress: "bc1-user-address",
		Leg1Id:             "exch-leg1",
		DepositAddress:     "deposit-exch-leg1",
	})
	require.NoError(t, err)

	// Fund leg 1, then have the exchange expire.
	o.runOnce(ctx)
	fb.states["exch-leg1"] = &models.ExchangeState{Status: models.ExchangeExpired}

	o.runOnce(ctx)

	got, err := service.GetBridgeOperation(ctx, op.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BridgeFailed, got.Status)

	balance, err := service.GetBalance(ctx, "wallet1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("5")), "balance: %s", balance)
	require.Len(t, fn.failed, 1)

	// The failed operation left the active set; no further refunds.
	o.runOnce(ctx)
	balance, err = service.GetBalance(ctx, "wallet1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("5")))
}
