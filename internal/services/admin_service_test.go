package services

import (
	"context"
	"errors"
	"testing"

	"referral-engine/internal/models"
)

func TestPromoteAccountAndAuthorize(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, 1, "BOSS1111", "", models.PlanFree)
	seedAccount(t, repo, 2, "OPER2222", "", models.PlanFree)
	seedAccount(t, repo, 3, "USER3333", "", models.PlanFree)
	svc := NewAdminService(repo)

	boss, err := svc.PromoteAccount(ctx, 1, "super_admin", 0)
	if err != nil {
		t.Fatalf("PromoteAccount failed: %v", err)
	}
	if boss.Role != models.RoleSuperAdmin {
		t.Errorf("expected SUPER_ADMIN, got %s", boss.Role)
	}
	if _, err := svc.PromoteAccount(ctx, 2, models.RoleOperator, boss.ID); err != nil {
		t.Fatalf("PromoteAccount failed: %v", err)
	}

	if _, err := svc.Authorize(ctx, 1, models.PermManageAdmins); err != nil {
		t.Errorf("super admin must hold every permission: %v", err)
	}
	if _, err := svc.Authorize(ctx, 2, models.PermManageReferrals); err != nil {
		t.Errorf("operator must manage referrals: %v", err)
	}
	if _, err := svc.Authorize(ctx, 2, models.PermTriggerCommissions); !errors.Is(err, ErrForbidden) {
		t.Errorf("operator must not trigger commissions, got %v", err)
	}
	if _, err := svc.Authorize(ctx, 3, models.PermManageReferrals); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-admin must be forbidden, got %v", err)
	}
	if !svc.IsAdmin(ctx, 2) || svc.IsAdmin(ctx, 3) {
		t.Error("IsAdmin mismatch")
	}

	logs, err := svc.GetAdminLogs(ctx, 10, 0)
	if err != nil {
		t.Fatalf("GetAdminLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "PROMOTE_ADMIN" || logs[0].Admin == nil || logs[0].Admin.ID != boss.ID {
		t.Errorf("unexpected logs %+v", logs)
	}
	if role, _ := logs[0].Details["role"].(string); role != models.RoleOperator {
		t.Errorf("expected role detail OPERATOR, got %v", logs[0].Details["role"])
	}
}

func TestPromoteAccountRejections(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, 1, "ONCE1111", "", models.PlanFree)
	svc := NewAdminService(repo)

	var verr *ValidationError
	if _, err := svc.PromoteAccount(ctx, 1, "OWNER", 0); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for unknown role, got %v", err)
	}
	if _, err := svc.PromoteAccount(ctx, 9, models.RoleBilling, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown account, got %v", err)
	}
	if _, err := svc.PromoteAccount(ctx, 1, models.RoleBilling, 0); err != nil {
		t.Fatalf("PromoteAccount failed: %v", err)
	}
	if _, err := svc.PromoteAccount(ctx, 1, models.RoleOperator, 0); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for second promotion, got %v", err)
	}
}
