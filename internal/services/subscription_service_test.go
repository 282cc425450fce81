package services

import (
	"context"
	"errors"
	"testing"

	"referral-engine/internal/models"
)

func TestActivateSubscription(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, 1, "UPPER111", "", models.PlanPlus)
	seedAccount(t, repo, 2, "LOWER222", "UPPER111", models.PlanFree)

	svc := NewSubscriptionService(repo, newTestCommissionService(repo))

	result, err := svc.ActivateSubscription(ctx, SubscriptionEvent{AccountID: 2, Plan: "PRO", EventID: "inv-001"})
	if err != nil {
		t.Fatalf("ActivateSubscription failed: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Amount.StringFixed(2) != "6.00" {
		t.Errorf("unexpected result %+v", result.Entries)
	}
	if plan := mustAccount(t, repo, 2).SubscriptionPlan; plan != models.PlanPro {
		t.Errorf("expected plan pro, got %s", plan)
	}

	// downgrade: plan changes, nothing distributed
	result, err = svc.ActivateSubscription(ctx, SubscriptionEvent{AccountID: 2, Plan: models.PlanFree})
	if err != nil {
		t.Fatalf("downgrade failed: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("free plan must not distribute, got %d entries", len(result.Entries))
	}
	if plan := mustAccount(t, repo, 2).SubscriptionPlan; plan != models.PlanFree {
		t.Errorf("expected plan free, got %s", plan)
	}
}

func TestActivateSubscriptionErrors(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, 1, "ONLY1111", "", models.PlanFree)
	svc := NewSubscriptionService(repo, newTestCommissionService(repo))

	var verr *ValidationError
	if _, err := svc.ActivateSubscription(ctx, SubscriptionEvent{AccountID: 1, Plan: "gold", EventID: "x"}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for unknown plan, got %v", err)
	}
	if _, err := svc.ActivateSubscription(ctx, SubscriptionEvent{AccountID: 1, Plan: models.PlanPlus}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for missing event id, got %v", err)
	}
	if plan := mustAccount(t, repo, 1).SubscriptionPlan; plan != models.PlanFree {
		t.Errorf("rejected event changed plan to %s", plan)
	}
	if _, err := svc.ActivateSubscription(ctx, SubscriptionEvent{AccountID: 77, Plan: models.PlanPlus, EventID: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
