package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/xuri/excelize/v2"

	"referral-engine/internal/models"
	"referral-engine/internal/utils"
)

func newTestIntegrityService(t *testing.T) *IntegrityService {
	svc := NewIntegrityService(newTestRepo(t))
	svc.now = fixedClock(testNow)
	return svc
}

func TestScanDuplicateCodes(t *testing.T) {
	svc := newTestIntegrityService(t)
	seedAccount(t, svc.repo, 1, "DUPE1234", "", models.PlanFree)
	seedAccount(t, svc.repo, 2, "UNIQ5678", "", models.PlanFree)
	seedAccount(t, svc.repo, 3, "DUPE1234", "", models.PlanFree)

	groups, err := svc.ScanDuplicateCodes(context.Background())
	if err != nil {
		t.Fatalf("ScanDuplicateCodes failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 duplicate group, got %d", len(groups))
	}
	g := groups[0]
	if g.Code != "DUPE1234" || len(g.AccountIDs) != 2 || g.AccountIDs[0] != 1 || g.AccountIDs[1] != 3 {
		t.Errorf("unexpected group %+v", g)
	}
}

func TestAnalyzeChainDepthTerminatesOnCycle(t *testing.T) {
	svc := newTestIntegrityService(t)
	seedAccount(t, svc.repo, 1, "CYCA1111", "CYCB2222", models.PlanPro)
	seedAccount(t, svc.repo, 2, "CYCB2222", "CYCA1111", models.PlanPro)

	stats, err := svc.AnalyzeChainDepth(context.Background())
	if err != nil {
		t.Fatalf("AnalyzeChainDepth failed: %v", err)
	}
	if stats.ChainCount != 2 || stats.MaxDepth != MaxAuditDepth || stats.TruncatedChains != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestAnalyzeChainDepth(t *testing.T) {
	svc := newTestIntegrityService(t)
	// linear chain 1 <- 2 <- ... <- 7, plus a broken referral on 8
	for id := uint(1); id <= 7; id++ {
		referredBy := ""
		if id > 1 {
			referredBy = fmt.Sprintf("LINE%04d", id-1)
		}
		seedAccount(t, svc.repo, id, fmt.Sprintf("LINE%04d", id), referredBy, models.PlanPlus)
	}
	seedAccount(t, svc.repo, 8, "ORPH0008", "MISSING1", models.PlanPlus)

	stats, err := svc.AnalyzeChainDepth(context.Background())
	if err != nil {
		t.Fatalf("AnalyzeChainDepth failed: %v", err)
	}
	// depths 1..6 for accounts 2..7
	if stats.ChainCount != 6 || stats.MaxDepth != 6 {
		t.Errorf("chains %d max %d", stats.ChainCount, stats.MaxDepth)
	}
	if stats.AverageDepth != 3.5 {
		t.Errorf("expected average 3.5, got %v", stats.AverageDepth)
	}
	if stats.FullWindowChains != 2 {
		t.Errorf("expected 2 chains reaching 5 levels, got %d", stats.FullWindowChains)
	}
	if stats.TruncatedChains != 0 {
		t.Errorf("expected no truncated chains, got %d", stats.TruncatedChains)
	}
}

func TestRunAuditFindings(t *testing.T) {
	svc := newTestIntegrityService(t)
	seedAccount(t, svc.repo, 1, "GOOD1111", "", models.PlanPro)
	seedAccount(t, svc.repo, 2, "", "GOOD1111", models.PlanFree)
	seedAccount(t, svc.repo, 3, "bad-code", "", models.PlanFree)
	seedAccount(t, svc.repo, 4, "GOOD4444", "GONE0000", models.PlanFree)

	report, err := svc.RunAudit(context.Background())
	if err != nil {
		t.Fatalf("RunAudit failed: %v", err)
	}
	if report.TotalAccounts != 4 {
		t.Errorf("expected 4 accounts, got %d", report.TotalAccounts)
	}
	if len(report.MissingCodes) != 1 || report.MissingCodes[0].AccountID != 2 {
		t.Errorf("missing %+v", report.MissingCodes)
	}
	if len(report.Malformed) != 1 || report.Malformed[0].Code != "bad-code" {
		t.Errorf("malformed %+v", report.Malformed)
	}
	if len(report.Broken) != 1 || report.Broken[0].AccountID != 4 || report.Broken[0].ReferredBy != "GONE0000" {
		t.Errorf("broken %+v", report.Broken)
	}
	if len(report.Duplicates) != 0 {
		t.Errorf("duplicates %+v", report.Duplicates)
	}
	if report.Healthy {
		t.Error("report with findings must not be healthy")
	}
}

func TestRunAuditHealthy(t *testing.T) {
	svc := newTestIntegrityService(t)
	seedAccount(t, svc.repo, 1, "HLTH1111", "", models.PlanPro)
	seedAccount(t, svc.repo, 2, "HLTH2222", "HLTH1111", models.PlanPro)

	report, err := svc.RunAudit(context.Background())
	if err != nil {
		t.Fatalf("RunAudit failed: %v", err)
	}
	if !report.Healthy {
		t.Errorf("expected healthy report, got %+v", report)
	}
}

func TestValidateChain(t *testing.T) {
	svc := newTestIntegrityService(t)
	ctx := context.Background()
	seedAccount(t, svc.repo, 1, "ROOT0001", "", models.PlanPro)
	seedAccount(t, svc.repo, 2, "CHLD0002", "ROOT0001", models.PlanPro)
	seedAccount(t, svc.repo, 3, "LOST0003", "NOWHERE1", models.PlanPro)
	seedAccount(t, svc.repo, 4, "LOOP0004", "LOOP0005", models.PlanPro)
	seedAccount(t, svc.repo, 5, "LOOP0005", "LOOP0004", models.PlanPro)

	tests := []struct {
		id     uint
		status string
		depth  int
	}{
		{1, ChainComplete, 0},
		{2, ChainComplete, 1},
		{3, ChainBroken, 0},
		{4, ChainCycle, 1},
	}
	for _, tt := range tests {
		chain, err := svc.ValidateChain(ctx, tt.id)
		if err != nil {
			t.Fatalf("ValidateChain(%d) failed: %v", tt.id, err)
		}
		if chain.Status != tt.status || chain.Depth != tt.depth {
			t.Errorf("account %d: status %s depth %d, want %s %d", tt.id, chain.Status, chain.Depth, tt.status, tt.depth)
		}
	}

	if _, err := svc.ValidateChain(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFixMissingCodes(t *testing.T) {
	svc := newTestIntegrityService(t)
	ctx := context.Background()
	seedAccount(t, svc.repo, 1, "", "", models.PlanFree)
	seedAccount(t, svc.repo, 2, "", "", models.PlanFree)
	seedAccount(t, svc.repo, 3, "KEEP3333", "", models.PlanFree)

	results, err := svc.FixMissingCodes(ctx)
	if err != nil {
		t.Fatalf("FixMissingCodes failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Success || !utils.ValidReferralCode(r.Code) {
			t.Errorf("unexpected result %+v", r)
		}
	}

	missing, err := svc.ScanMissingCodes(ctx)
	if err != nil || len(missing) != 0 {
		t.Errorf("expected no missing codes after repair, got %d (%v)", len(missing), err)
	}
	if code := mustAccount(t, svc.repo, 3).Code(); code != "KEEP3333" {
		t.Errorf("existing code was changed to %s", code)
	}
}

func TestRegenerateCodesContinuesAfterFailure(t *testing.T) {
	svc := newTestIntegrityService(t)
	ctx := context.Background()
	seedAccount(t, svc.repo, 1, "SAME1234", "", models.PlanFree)
	seedAccount(t, svc.repo, 2, "SAME1234", "", models.PlanFree)

	results, err := svc.RegenerateCodes(ctx, []uint{1, 999, 2})
	if err != nil {
		t.Fatalf("RegenerateCodes failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Errorf("unexpected results %+v", results)
	}
	if results[1].Error == "" {
		t.Error("failed result must carry an error")
	}

	groups, err := svc.ScanDuplicateCodes(ctx)
	if err != nil || len(groups) != 0 {
		t.Errorf("duplicates remain after regeneration: %+v (%v)", groups, err)
	}

	if _, err := svc.RegenerateCodes(ctx, nil); err == nil {
		t.Error("expected error for empty id list")
	}
}

func TestSnapshotAudit(t *testing.T) {
	svc := newTestIntegrityService(t)
	ctx := context.Background()
	seedAccount(t, svc.repo, 1, "SNAP1111", "", models.PlanFree)
	seedAccount(t, svc.repo, 2, "SNAP1111", "", models.PlanFree)

	if _, err := svc.LatestSnapshot(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound before any snapshot, got %v", err)
	}

	saved, err := svc.SnapshotAudit(ctx)
	if err != nil {
		t.Fatalf("SnapshotAudit failed: %v", err)
	}
	if saved.DuplicateGroups != 1 || saved.Healthy {
		t.Errorf("unexpected snapshot %+v", saved)
	}

	latest, err := svc.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if latest.ID != saved.ID || latest.Healthy {
		t.Errorf("latest snapshot %+v", latest)
	}
}

func TestExportAuditWorkbook(t *testing.T) {
	svc := newTestIntegrityService(t)
	seedAccount(t, svc.repo, 1, "XLSX1111", "", models.PlanFree)
	seedAccount(t, svc.repo, 2, "XLSX1111", "", models.PlanFree)

	report, err := svc.RunAudit(context.Background())
	if err != nil {
		t.Fatalf("RunAudit failed: %v", err)
	}
	data, err := ExportAuditWorkbook(report)
	if err != nil {
		t.Fatalf("ExportAuditWorkbook failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	value, err := f.GetCellValue("Summary", "B3")
	if err != nil || value != "2" {
		t.Errorf("expected total accounts 2 in Summary!B3, got %q (%v)", value, err)
	}
	code, err := f.GetCellValue("Duplicates", "A2")
	if err != nil || code != "XLSX1111" {
		t.Errorf("expected duplicate code in Duplicates!A2, got %q (%v)", code, err)
	}
}
