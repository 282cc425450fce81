package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MIN_PAYOUT_USD", "")
	t.Setenv("COMMISSION_HOLD_PERIOD", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Referral.MinimumPayout.String() != "25" {
		t.Errorf("expected minimum payout 25, got %s", cfg.Referral.MinimumPayout)
	}
	if cfg.Referral.HoldPeriod != 7*24*time.Hour {
		t.Errorf("expected 7 day hold, got %s", cfg.Referral.HoldPeriod)
	}
	if cfg.Jobs.ReleaseSchedule != "@every 1h" {
		t.Errorf("unexpected release schedule %q", cfg.Jobs.ReleaseSchedule)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
	if _, err := LoadCLI(); err != nil {
		t.Fatalf("LoadCLI should not need JWT_SECRET: %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("COMMISSION_WALK_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestGetDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "require",
	}}
	want := "host=db port=5432 user=u password=p dbname=n sslmode=require"
	if got := cfg.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
