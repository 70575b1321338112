package ledger

import (
	"context"
	"testing"
	"time"

	"veilswap/internal/models"
	"veilswap/internal/store"
)

func reserveTestBuy(t *testing.T, service *Service) *models.SwapJob {
	t.Helper()
	job, err := service.ReserveBuy(context.Background(), store.ReserveBuyParams{
		WalletId: "wallet1",
		Asset:    "PRIVY",
		Decimals: 6,
		AmountIn: mustDecimal("1.0"),
		Quote:    testQuote("1.0", "40"),
	})
	if err != nil {
		t.Fatalf("ReserveBuy failed: %v", err)
	}
	return job
}

func TestClaimJob_OnlyOnce(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestWallet(t, service, "wallet1")
	fundBalance(t, service, "wallet1", "5.0")
	job := reserveTestBuy(t, service)

	claimed, err := service.ClaimJob(ctx, job.Id)
	if err != nil {
		t.Fatalf("First ClaimJob failed: %v", err)
	}
	if !claimed {
		t.Fatal("Expected first claim to succeed")
	}

	claimed, err = service.ClaimJob(ctx, job.Id)
	if err != nil {
		t.Fatalf("Second ClaimJob failed: %v", err)
	}
	if claimed {
		t.Fatal("Expected second claim to fail")
	}
}

func TestRecordSettlementRef_OnlyOnce(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestWallet(t, service, "wallet1")
	fundBalance(t, service, "wallet1", "5.0")
	job := reserveTestBuy(t, service)
	service.ClaimJob(ctx, job.Id)

	recorded, err := service.RecordSettlementRef(ctx, job.Id, "sig-first")
	if err != nil || !recorded {
		t.Fatalf("First RecordSettlementRef failed: recorded=%v err=%v", recorded, err)
	}

	recorded, err = service.RecordSettlementRef(ctx, job.Id, "sig-second")
	if err != nil {
		t.Fatalf("Second RecordSettlementRef errored: %v", err)
	}
	if recorded {
		t.Fatal("Expected second settlement reference write to be rejected")
	}

	got, _ := service.GetJob(ctx, job.Id)
	if got.SettlementRef != "sig-first" {
		t.Errorf("Expected first reference to win, got %s", got.SettlementRef)
	}
}

func TestRequeueStaleJobs_OnlyWithoutSettlementRef(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestWallet(t, service, "wallet1")
	fundBalance(t, service, "wallet1", "5.0")
	job := reserveTestBuy(t, service)
	service.ClaimJob(ctx, job.Id)

	// Backdate the claim past any threshold.
	stale := time.Now().UTC().Add(-10 * time.Minute)
	if _, err := service.db.Exec("UPDATE swap_jobs SET claimed_at = ? WHERE id = ?", stale, job.Id); err != nil {
		t.Fatalf("Failed to backdate claim: %v", err)
	}

	count, err := service.RequeueStaleJobs(ctx, 2*time.Minute)
	if err != nil {
		t.Fatalf("RequeueStaleJobs failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected 1 requeued job, got %d", count)
	}

	got, _ := service.GetJob(ctx, job.Id)
	if got.Status != models.JobStatusPending {
		t.Errorf("Expected job back to pending, got %s", got.Status)
	}

	// With a settlement reference recorded the job must NOT be requeued:
	// the external swap already happened.
	service.ClaimJob(ctx, job.Id)
	service.RecordSettlementRef(ctx, job.Id, "sig-1")
	service.db.Exec("UPDATE swap_jobs SET claimed_at = ? WHERE id = ?", stale, job.Id)

	count, err = service.RequeueStaleJobs(ctx, 2*time.Minute)
	if err != nil {
		t.Fatalf("RequeueStaleJobs failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("Expected 0 requeued jobs for executed job, got %d", count)
	}
}

func TestResumableJobs_ReturnsExecutedStaleJobs(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestWallet(t, service, "wallet1")
	fundBalance(t, service, "wallet1", "5.0")
	job := reserveTestBuy(t, service)
	service.ClaimJob(ctx, job.Id)
	service.RecordSettlementRef(ctx, job.Id, "sig-1")

	// Fresh claim: not resumable yet.
	jobs, err := service.ResumableJobs(ctx, 2*time.Minute, 10)
	if err != nil {
		t.Fatalf("ResumableJobs failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("Expected no resumable jobs for fresh claim, got %d", len(jobs))
	}

	stale := time.Now().UTC().Add(-10 * time.Minute)
	service.db.Exec("UPDATE swap_jobs SET claimed_at = ? WHERE id = ?", stale, job.Id)

	jobs, err = service.ResumableJobs(ctx, 2*time.Minute, 10)
	if err != nil {
		t.Fatalf("ResumableJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 resumable job, got %d", len(jobs))
	}
	if jobs[0].SettlementRef != "sig-1" {
		t.Errorf("Expected settlement ref carried on resumable job, got %s", jobs[0].SettlementRef)
	}
}

func TestPendingJobs_OrderedAndLimited(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestWallet(t, service, "wallet1")
	createTestWallet(t, service, "wallet2")
	fundBalance(t, service, "wallet1", "5.0")
	fundBalance(t, service, "wallet2", "5.0")

	first := reserveTestBuy(t, service)
	_, err := service.ReserveBuy(ctx, store.ReserveBuyParams{
		WalletId: "wallet2",
		Asset:    "PRIVY",
		Decimals: 6,
		AmountIn: mustDecimal("1.0"),
		Quote:    testQuote("1.0", "40"),
	})
	if err != nil {
		t.Fatalf("Second ReserveBuy failed: %v", err)
	}

	jobs, err := service.PendingJobs(ctx, 1)
	if err != nil {
		t.Fatalf("PendingJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("Expected limit to apply, got %d jobs", len(jobs))
	}
	if jobs[0].Id != first.Id {
		t.Errorf("Expected oldest job first, got %s", jobs[0].Id)
	}
}
