package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"referral-engine/internal/models"
)

func TestDistributeCommissionsStopsAtFiveLevels(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// chain of eight pro accounts: 1 <- 2 <- ... <- 8, account 8 subscribes
	for id := uint(1); id <= 8; id++ {
		referredBy := ""
		if id > 1 {
			referredBy = fmt.Sprintf("CODE%04d", id-1)
		}
		seedAccount(t, repo, id, fmt.Sprintf("CODE%04d", id), referredBy, models.PlanPro)
	}

	svc := newTestCommissionService(repo)
	result, err := svc.DistributeCommissions(ctx, DistributionInput{SubscriberID: 8, Plan: models.PlanPro, EventID: "evt-long"})
	if err != nil {
		t.Fatalf("DistributeCommissions failed: %v", err)
	}
	if len(result.Entries) != MaxCommissionLevels {
		t.Fatalf("expected %d commissions, got %d", MaxCommissionLevels, len(result.Entries))
	}

	for i, e := range result.Entries {
		level := i + 1
		want, _ := LookupCommission(models.PlanPro, level)
		if e.Level != level || e.ReferrerID != uint(8-level) {
			t.Errorf("entry %d: level %d referrer %d", i, e.Level, e.ReferrerID)
		}
		if !e.Amount.Equal(want.Amount) {
			t.Errorf("level %d: amount %s, want %s", level, e.Amount, want.Amount)
		}
		if !e.PayoutEligibleDate.Equal(testNow.Add(DefaultHoldPeriod)) {
			t.Errorf("level %d: eligible %s", level, e.PayoutEligibleDate)
		}
	}
	if got := result.Total().StringFixed(2); got != "15.00" {
		t.Errorf("expected total 15.00, got %s", got)
	}

	stored, err := repo.GetCommissionsByEvent(ctx, "evt-long")
	if err != nil {
		t.Fatalf("GetCommissionsByEvent failed: %v", err)
	}
	if len(stored) != MaxCommissionLevels {
		t.Errorf("expected %d stored commissions, got %d", MaxCommissionLevels, len(stored))
	}

	// account 2 is six hops away and must not be paid
	if earned := mustAccount(t, repo, 2).TotalReferralEarnings.StringFixed(2); earned != "0.00" {
		t.Errorf("account beyond level 5 earned %s", earned)
	}
	level1 := mustAccount(t, repo, 7)
	if level1.TotalReferralEarnings.StringFixed(2) != "6.00" || level1.HeldBalance.StringFixed(2) != "6.00" {
		t.Errorf("level 1 referrer: total %s held %s", level1.TotalReferralEarnings, level1.HeldBalance)
	}
	if !level1.AvailableBalance().IsZero() {
		t.Errorf("held commission must not be available, got %s", level1.AvailableBalance())
	}
}

func TestDistributeCommissionsSkipsFreeReferrer(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// A <- B <- C(free) <- D
	seedAccount(t, repo, 1, "AAAA1111", "", models.PlanPlus)
	seedAccount(t, repo, 2, "BBBB2222", "AAAA1111", models.PlanPlus)
	seedAccount(t, repo, 3, "CCCC3333", "BBBB2222", models.PlanFree)
	seedAccount(t, repo, 4, "DDDD4444", "CCCC3333", models.PlanPro)

	svc := newTestCommissionService(repo)
	result, err := svc.DistributeCommissions(ctx, DistributionInput{SubscriberID: 4, Plan: models.PlanPro, EventID: "evt-skip"})
	if err != nil {
		t.Fatalf("DistributeCommissions failed: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 commissions, got %d", len(result.Entries))
	}

	b, a := result.Entries[0], result.Entries[1]
	if b.ReferrerID != 2 || b.Level != 2 || b.Amount.StringFixed(2) != "4.05" {
		t.Errorf("B: referrer %d level %d amount %s", b.ReferrerID, b.Level, b.Amount)
	}
	if a.ReferrerID != 1 || a.Level != 3 || a.Amount.StringFixed(2) != "2.40" {
		t.Errorf("A: referrer %d level %d amount %s", a.ReferrerID, a.Level, a.Amount)
	}
	if earned := mustAccount(t, repo, 3).TotalReferralEarnings; !earned.IsZero() {
		t.Errorf("free referrer earned %s", earned)
	}
}

func TestDistributeCommissionsWithoutReferrer(t *testing.T) {
	repo := newTestRepo(t)
	seedAccount(t, repo, 1, "SOLO1234", "", models.PlanPlus)

	svc := newTestCommissionService(repo)
	result, err := svc.DistributeCommissions(context.Background(), DistributionInput{SubscriberID: 1, Plan: models.PlanPlus, EventID: "evt-solo"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("expected no commissions, got %d", len(result.Entries))
	}
}

func TestDistributeCommissionsBrokenChain(t *testing.T) {
	repo := newTestRepo(t)
	seedAccount(t, repo, 1, "LVL11111", "GHOST999", models.PlanPro)
	seedAccount(t, repo, 2, "SUBS2222", "LVL11111", models.PlanPlus)

	svc := newTestCommissionService(repo)
	result, err := svc.DistributeCommissions(context.Background(), DistributionInput{SubscriberID: 2, Plan: models.PlanPlus, EventID: "evt-broken"})
	if err != nil {
		t.Fatalf("broken chain must not be an error: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected 1 commission, got %d", len(result.Entries))
	}
	if e := result.Entries[0]; e.Level != 1 || e.Amount.StringFixed(2) != "2.00" {
		t.Errorf("unexpected entry: level %d amount %s", e.Level, e.Amount)
	}
}

func TestDistributeCommissionsReplayIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, 1, "UPLINE11", "", models.PlanPro)
	seedAccount(t, repo, 2, "SUBS2222", "UPLINE11", models.PlanPro)

	svc := newTestCommissionService(repo)
	input := DistributionInput{SubscriberID: 2, Plan: models.PlanPro, EventID: "evt-replay"}

	first, err := svc.DistributeCommissions(ctx, input)
	if err != nil {
		t.Fatalf("first distribution failed: %v", err)
	}
	second, err := svc.DistributeCommissions(ctx, input)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if first.Replayed || !second.Replayed {
		t.Errorf("replayed flags: first %v second %v", first.Replayed, second.Replayed)
	}
	if len(second.Entries) != len(first.Entries) {
		t.Errorf("replay returned %d entries, first call %d", len(second.Entries), len(first.Entries))
	}
	if earned := mustAccount(t, repo, 1).TotalReferralEarnings.StringFixed(2); earned != "6.00" {
		t.Errorf("replay must not credit twice, total is %s", earned)
	}
}

func TestDistributeCommissionsReplayCarriesReferrerEmail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, 1, "UPLINE11", "", models.PlanPro)
	seedAccount(t, repo, 2, "SUBS2222", "UPLINE11", models.PlanPro)

	svc := newTestCommissionService(repo)
	input := DistributionInput{SubscriberID: 2, Plan: models.PlanPro, EventID: "evt-email"}
	if _, err := svc.DistributeCommissions(ctx, input); err != nil {
		t.Fatalf("first distribution failed: %v", err)
	}

	// detach the subscriber so the replay resolves the stored referrer by id
	if err := repo.DB().Model(&models.Account{}).Where("id = ?", 2).Update("referred_by", nil).Error; err != nil {
		t.Fatalf("failed to detach subscriber: %v", err)
	}
	replay, err := svc.DistributeCommissions(ctx, input)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !replay.Replayed || len(replay.Entries) != 1 {
		t.Fatalf("expected replay with 1 entry, got replayed=%v entries=%d", replay.Replayed, len(replay.Entries))
	}
	if replay.Entries[0].ReferrerEmail != "user1@example.com" {
		t.Errorf("replayed entry email = %q", replay.Entries[0].ReferrerEmail)
	}
}

func TestDistributeCommissionsRetryWritesMissingLevels(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, 1, "LEVELTWO", "", models.PlanPro)
	seedAccount(t, repo, 2, "LEVELONE", "LEVELTWO", models.PlanPro)
	seedAccount(t, repo, 3, "SUBS3333", "LEVELONE", models.PlanPro)

	failed := false
	err := repo.DB().Callback().Create().Before("gorm:create").Register("fail_level_two_once", func(db *gorm.DB) {
		if c, ok := db.Statement.Dest.(*models.Commission); ok && c.Level == 2 && !failed {
			failed = true
			db.AddError(errors.New("transient write failure"))
		}
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	svc := newTestCommissionService(repo)
	input := DistributionInput{SubscriberID: 3, Plan: models.PlanPro, EventID: "evt-retry"}

	first, err := svc.DistributeCommissions(ctx, input)
	if err == nil {
		t.Fatal("expected level 2 write to fail")
	}
	if len(first.Entries) != 1 || first.Entries[0].Level != 1 {
		t.Fatalf("expected only level 1 written, got %+v", first.Entries)
	}
	if earned := mustAccount(t, repo, 1).TotalReferralEarnings.StringFixed(2); earned != "0.00" {
		t.Fatalf("failed level must roll back, total is %s", earned)
	}

	retry, err := svc.DistributeCommissions(ctx, input)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if retry.Replayed {
		t.Error("retry wrote a new level and must not be reported as replayed")
	}
	if len(retry.Entries) != 2 || retry.Entries[0].Level != 1 || retry.Entries[1].Level != 2 {
		t.Fatalf("expected levels 1 and 2 in retry result, got %+v", retry.Entries)
	}
	if retry.Entries[0].CommissionID != first.Entries[0].CommissionID {
		t.Error("retry must return the stored level 1 commission")
	}

	rate, _ := LookupCommission(models.PlanPro, 2)
	if earned := mustAccount(t, repo, 1).TotalReferralEarnings.StringFixed(2); earned != rate.Amount.StringFixed(2) {
		t.Errorf("level 2 referrer total = %s, want %s", earned, rate.Amount.StringFixed(2))
	}
	if earned := mustAccount(t, repo, 2).TotalReferralEarnings.StringFixed(2); earned != "6.00" {
		t.Errorf("level 1 referrer credited twice, total is %s", earned)
	}

	third, err := svc.DistributeCommissions(ctx, input)
	if err != nil {
		t.Fatalf("third call failed: %v", err)
	}
	if !third.Replayed || len(third.Entries) != 2 {
		t.Errorf("expected full replay, got replayed=%v entries=%d", third.Replayed, len(third.Entries))
	}
}

func TestDistributeCommissionsStopsOnCycle(t *testing.T) {
	repo := newTestRepo(t)
	// A and B refer each other; S is referred by A
	seedAccount(t, repo, 1, "CYCLEAAA", "CYCLEBBB", models.PlanPro)
	seedAccount(t, repo, 2, "CYCLEBBB", "CYCLEAAA", models.PlanPro)
	seedAccount(t, repo, 3, "SUBS3333", "CYCLEAAA", models.PlanPro)

	svc := newTestCommissionService(repo)
	result, err := svc.DistributeCommissions(context.Background(), DistributionInput{SubscriberID: 3, Plan: models.PlanPro, EventID: "evt-cycle"})
	if err != nil {
		t.Fatalf("DistributeCommissions failed: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected walk to stop after 2 levels, got %d", len(result.Entries))
	}
	if result.Entries[0].ReferrerID != 1 || result.Entries[1].ReferrerID != 2 {
		t.Errorf("unexpected referrers %d, %d", result.Entries[0].ReferrerID, result.Entries[1].ReferrerID)
	}
}

func TestDistributeCommissionsNeverPaysSubscriber(t *testing.T) {
	repo := newTestRepo(t)
	seedAccount(t, repo, 1, "LOOPAAAA", "LOOPSSSS", models.PlanPro)
	seedAccount(t, repo, 2, "LOOPSSSS", "LOOPAAAA", models.PlanPro)

	svc := newTestCommissionService(repo)
	result, err := svc.DistributeCommissions(context.Background(), DistributionInput{SubscriberID: 2, Plan: models.PlanPro, EventID: "evt-self"})
	if err != nil {
		t.Fatalf("DistributeCommissions failed: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].ReferrerID != 1 {
		t.Fatalf("expected a single commission for account 1, got %+v", result.Entries)
	}
	if earned := mustAccount(t, repo, 2).TotalReferralEarnings; !earned.IsZero() {
		t.Errorf("subscriber earned from own subscription: %s", earned)
	}
}

func TestDistributeCommissionsValidation(t *testing.T) {
	repo := newTestRepo(t)
	svc := newTestCommissionService(repo)
	ctx := context.Background()

	tests := []struct {
		name  string
		input DistributionInput
	}{
		{"free plan", DistributionInput{SubscriberID: 1, Plan: models.PlanFree, EventID: "evt"}},
		{"unknown plan", DistributionInput{SubscriberID: 1, Plan: "gold", EventID: "evt"}},
		{"missing event", DistributionInput{SubscriberID: 1, Plan: models.PlanPlus, EventID: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.DistributeCommissions(ctx, tt.input)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	_, err := svc.DistributeCommissions(ctx, DistributionInput{SubscriberID: 42, Plan: models.PlanPlus, EventID: "evt-missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown subscriber, got %v", err)
	}
}

type recordingNotifier struct {
	results chan *DistributionResult
}

func (n *recordingNotifier) NotifyCommissions(_ context.Context, result *DistributionResult) error {
	n.results <- result
	return nil
}

func TestDistributeCommissionsNotifiesUpline(t *testing.T) {
	repo := newTestRepo(t)
	seedAccount(t, repo, 1, "NOTIFY11", "", models.PlanPlus)
	seedAccount(t, repo, 2, "SUBS2222", "NOTIFY11", models.PlanPlus)

	notifier := &recordingNotifier{results: make(chan *DistributionResult, 1)}
	svc := NewCommissionService(repo, notifier, DefaultHoldPeriod, time.Second)
	svc.now = fixedClock(testNow)

	if _, err := svc.DistributeCommissions(context.Background(), DistributionInput{SubscriberID: 2, Plan: models.PlanPlus, EventID: "evt-notify"}); err != nil {
		t.Fatalf("DistributeCommissions failed: %v", err)
	}

	select {
	case got := <-notifier.results:
		if len(got.Entries) != 1 || got.Entries[0].ReferrerEmail != "user1@example.com" {
			t.Errorf("unexpected notification %+v", got.Entries)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not called")
	}
}

func TestDistributeCommissionsHonorsCancellation(t *testing.T) {
	repo := newTestRepo(t)
	seedAccount(t, repo, 1, "UPLINE11", "", models.PlanPro)
	seedAccount(t, repo, 2, "SUBS2222", "UPLINE11", models.PlanPro)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestCommissionService(repo)
	_, err := svc.DistributeCommissions(ctx, DistributionInput{SubscriberID: 2, Plan: models.PlanPro, EventID: "evt-cancel"})
	if err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
	if earned := mustAccount(t, repo, 1).TotalReferralEarnings; !earned.IsZero() {
		t.Errorf("cancelled walk credited %s", earned)
	}
}
