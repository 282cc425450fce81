package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"referral-engine/internal/database"
	"referral-engine/internal/models"
	"referral-engine/internal/repository"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// newTestRepo opens a private in-memory SQLite database with the full schema
func newTestRepo(t *testing.T) *repository.Repository {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), database.Config())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return repository.NewRepository(db)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// seedAccount inserts an account; empty code or referredBy are stored as NULL
func seedAccount(t *testing.T, repo *repository.Repository, id uint, code, referredBy string, plan models.SubscriptionPlan) *models.Account {
	t.Helper()

	account := &models.Account{
		ID:               id,
		Email:            fmt.Sprintf("user%d@example.com", id),
		ReferralCode:     strPtr(code),
		ReferredBy:       strPtr(referredBy),
		SubscriptionPlan: plan,
	}
	if err := repo.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("failed to seed account %d: %v", id, err)
	}
	return account
}

func mustAccount(t *testing.T, repo *repository.Repository, id uint) *models.Account {
	t.Helper()
	account, err := repo.GetAccountByID(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load account %d: %v", id, err)
	}
	return account
}

func newTestCommissionService(repo *repository.Repository) *CommissionService {
	svc := NewCommissionService(repo, nil, DefaultHoldPeriod, time.Second)
	svc.now = fixedClock(testNow)
	return svc
}
