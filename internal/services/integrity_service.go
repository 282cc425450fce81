package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"referral-engine/internal/logging"
	"referral-engine/internal/models"
	"referral-engine/internal/monitoring"
	"referral-engine/internal/repository"
	"referral-engine/internal/utils"
)

// Chain validation outcomes
const (
	ChainComplete  = "complete"
	ChainBroken    = "broken"
	ChainCycle     = "cycle"
	ChainTruncated = "truncated"
)

type MissingCode struct {
	AccountID uint   `json:"account_id"`
	Email     string `json:"email"`
}

type DuplicateCode struct {
	Code       string `json:"code"`
	AccountIDs []uint `json:"account_ids"`
}

type MalformedCode struct {
	AccountID uint   `json:"account_id"`
	Code      string `json:"code"`
}

type BrokenReferral struct {
	AccountID  uint   `json:"account_id"`
	ReferredBy string `json:"referred_by"`
}

// DepthStats describes the upward chains of all referred accounts
type DepthStats struct {
	ChainCount       int         `json:"chain_count"`
	AverageDepth     float64     `json:"average_depth"`
	MaxDepth         int         `json:"max_depth"`
	FullWindowChains int         `json:"full_window_chains"`
	TruncatedChains  int         `json:"truncated_chains"`
	Distribution     map[int]int `json:"distribution"`
}

// AuditReport collects every finding of a full network scan. Findings are
// data, not errors.
type AuditReport struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	TotalAccounts int64            `json:"total_accounts"`
	MissingCodes  []MissingCode    `json:"missing_codes"`
	Duplicates    []DuplicateCode  `json:"duplicates"`
	Malformed     []MalformedCode  `json:"malformed"`
	Broken        []BrokenReferral `json:"broken"`
	Depth         DepthStats       `json:"depth"`
	Healthy       bool             `json:"healthy"`
}

type ChainNode struct {
	AccountID uint   `json:"account_id"`
	Code      string `json:"code"`
}

// ChainValidation is the upward path of one account
type ChainValidation struct {
	AccountID uint        `json:"account_id"`
	Path      []ChainNode `json:"path"`
	Depth     int         `json:"depth"`
	Status    string      `json:"status"`
	BrokenAt  string      `json:"broken_at,omitempty"`
}

// RepairResult reports the outcome of a repair for one account
type RepairResult struct {
	AccountID uint   `json:"account_id"`
	Code      string `json:"code,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type IntegrityService struct {
	repo *repository.Repository
	now  func() time.Time
}

func NewIntegrityService(repo *repository.Repository) *IntegrityService {
	return &IntegrityService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ScanMissingCodes lists accounts without a referral code
func (s *IntegrityService) ScanMissingCodes(ctx context.Context) ([]MissingCode, error) {
	accounts, err := s.repo.ListAccountsMissingCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan missing codes: %w", err)
	}
	findings := make([]MissingCode, 0, len(accounts))
	for _, a := range accounts {
		findings = append(findings, MissingCode{AccountID: a.ID, Email: a.Email})
	}
	return findings, nil
}

// ScanDuplicateCodes groups accounts sharing a code
func (s *IntegrityService) ScanDuplicateCodes(ctx context.Context) ([]DuplicateCode, error) {
	codes, err := s.repo.FindDuplicateCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan duplicate codes: %w", err)
	}
	findings := make([]DuplicateCode, 0, len(codes))
	for _, c := range codes {
		ids, err := s.repo.ListAccountIDsByCode(ctx, c.ReferralCode)
		if err != nil {
			return nil, fmt.Errorf("failed to list holders of %s: %w", c.ReferralCode, err)
		}
		findings = append(findings, DuplicateCode{Code: c.ReferralCode, AccountIDs: ids})
	}
	return findings, nil
}

// ScanMalformedCodes lists codes outside the 4-12 uppercase alphanumeric format
func (s *IntegrityService) ScanMalformedCodes(ctx context.Context) ([]MalformedCode, error) {
	links, err := s.repo.ListCodedAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan codes: %w", err)
	}
	findings := []MalformedCode{}
	for _, l := range links {
		if !utils.ValidReferralCode(*l.ReferralCode) {
			findings = append(findings, MalformedCode{AccountID: l.ID, Code: *l.ReferralCode})
		}
	}
	return findings, nil
}

// ScanBrokenChains lists accounts whose referrer code resolves to nobody
func (s *IntegrityService) ScanBrokenChains(ctx context.Context) ([]BrokenReferral, error) {
	accounts, err := s.repo.ListBrokenReferrals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan broken chains: %w", err)
	}
	findings := make([]BrokenReferral, 0, len(accounts))
	for _, a := range accounts {
		findings = append(findings, BrokenReferral{AccountID: a.ID, ReferredBy: a.Referrer()})
	}
	return findings, nil
}

// AnalyzeChainDepth rebuilds the upward chain of every referred account in
// memory. Walks stop after MaxAuditDepth hops so a cycle cannot loop forever.
func (s *IntegrityService) AnalyzeChainDepth(ctx context.Context) (*DepthStats, error) {
	links, err := s.repo.ListReferralLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load referral graph: %w", err)
	}

	// duplicates resolve to the oldest holder, like the distributor does
	owner := make(map[string]int, len(links))
	for i, l := range links {
		if l.ReferralCode == nil || *l.ReferralCode == "" {
			continue
		}
		if _, seen := owner[*l.ReferralCode]; !seen {
			owner[*l.ReferralCode] = i
		}
	}

	stats := &DepthStats{Distribution: map[int]int{}}
	totalDepth := 0
	for _, l := range links {
		if l.ReferredBy == nil || *l.ReferredBy == "" {
			continue
		}

		depth := 0
		code := *l.ReferredBy
		for code != "" && depth < MaxAuditDepth {
			idx, ok := owner[code]
			if !ok {
				break
			}
			depth++
			code = ""
			if next := links[idx].ReferredBy; next != nil {
				code = *next
			}
		}
		if depth == 0 {
			// referrer does not resolve; reported by the broken-chain scan
			continue
		}

		stats.ChainCount++
		totalDepth += depth
		stats.Distribution[depth]++
		if depth > stats.MaxDepth {
			stats.MaxDepth = depth
		}
		if depth >= MaxCommissionLevels {
			stats.FullWindowChains++
		}
		if depth == MaxAuditDepth && code != "" {
			if _, ok := owner[code]; ok {
				stats.TruncatedChains++
			}
		}
	}

	if stats.ChainCount > 0 {
		stats.AverageDepth = float64(totalDepth) / float64(stats.ChainCount)
	}
	return stats, nil
}

// RunAudit runs every scan and combines the findings
func (s *IntegrityService) RunAudit(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{GeneratedAt: s.now()}
	var err error

	if report.TotalAccounts, err = s.repo.CountAccounts(ctx); err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	if report.MissingCodes, err = s.ScanMissingCodes(ctx); err != nil {
		return nil, err
	}
	if report.Duplicates, err = s.ScanDuplicateCodes(ctx); err != nil {
		return nil, err
	}
	if report.Malformed, err = s.ScanMalformedCodes(ctx); err != nil {
		return nil, err
	}
	if report.Broken, err = s.ScanBrokenChains(ctx); err != nil {
		return nil, err
	}
	depth, err := s.AnalyzeChainDepth(ctx)
	if err != nil {
		return nil, err
	}
	report.Depth = *depth

	report.Healthy = len(report.MissingCodes) == 0 &&
		len(report.Duplicates) == 0 &&
		len(report.Malformed) == 0 &&
		len(report.Broken) == 0 &&
		report.Depth.TruncatedChains == 0

	logging.Logger.Info("integrity audit finished",
		zap.Int64("accounts", report.TotalAccounts),
		zap.Int("missing", len(report.MissingCodes)),
		zap.Int("duplicates", len(report.Duplicates)),
		zap.Int("malformed", len(report.Malformed)),
		zap.Int("broken", len(report.Broken)),
		zap.Int("truncated", report.Depth.TruncatedChains),
		zap.Bool("healthy", report.Healthy))

	return report, nil
}

// ValidateChain re-walks one account's upline against the live store
func (s *IntegrityService) ValidateChain(ctx context.Context, accountID uint) (*ChainValidation, error) {
	account, err := s.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("account %d", accountID))
	}

	result := &ChainValidation{
		AccountID: account.ID,
		Path:      []ChainNode{},
		Status:    ChainComplete,
	}
	visited := map[uint]bool{account.ID: true}
	code := account.Referrer()

	for code != "" {
		if result.Depth == MaxAuditDepth {
			result.Status = ChainTruncated
			break
		}
		referrer, err := s.repo.GetAccountByCode(ctx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Status = ChainBroken
			result.BrokenAt = code
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", code, err)
		}
		if visited[referrer.ID] {
			result.Status = ChainCycle
			break
		}
		visited[referrer.ID] = true
		result.Path = append(result.Path, ChainNode{AccountID: referrer.ID, Code: referrer.Code()})
		result.Depth++
		code = referrer.Referrer()
	}

	return result, nil
}

// FixMissingCodes assigns a fresh code to every account that has none
func (s *IntegrityService) FixMissingCodes(ctx context.Context) ([]RepairResult, error) {
	accounts, err := s.repo.ListAccountsMissingCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts missing codes: %w", err)
	}

	results := make([]RepairResult, 0, len(accounts))
	for _, a := range accounts {
		results = append(results, s.writeCode(ctx, a.ID, a.Email, true))
	}
	logRepair("fix_missing_codes", results)
	return results, nil
}

// RegenerateCodes force-replaces the codes of the given accounts. A failure on
// one account is reported and the batch carries on. Accounts referred by the
// old code keep pointing at it.
func (s *IntegrityService) RegenerateCodes(ctx context.Context, accountIDs []uint) ([]RepairResult, error) {
	if len(accountIDs) == 0 {
		return nil, invalid("account_ids", "at least one account id is required")
	}

	results := make([]RepairResult, 0, len(accountIDs))
	for _, id := range accountIDs {
		account, err := s.repo.GetAccountByID(ctx, id)
		if err != nil {
			msg := err.Error()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				msg = "account not found"
			}
			results = append(results, RepairResult{AccountID: id, Error: msg})
			continue
		}
		results = append(results, s.writeCode(ctx, account.ID, account.Email, false))
	}
	logRepair("regenerate_codes", results)
	return results, nil
}

func (s *IntegrityService) writeCode(ctx context.Context, accountID uint, email string, onlyIfMissing bool) RepairResult {
	result := RepairResult{AccountID: accountID}

	code, err := allocateReferralCode(ctx, s.repo, email, s.now())
	if err != nil {
		result.Error = err.Error()
		return result
	}
	rows, err := s.repo.SetReferralCode(ctx, accountID, code, onlyIfMissing)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if rows == 0 {
		result.Error = "account already has a code"
		return result
	}

	result.Code = code
	result.Success = true
	return result
}

func logRepair(action string, results []RepairResult) {
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	logging.Logger.Info("referral code repair finished",
		zap.String("action", action),
		zap.Int("accounts", len(results)),
		zap.Int("failed", failed))
}

// SnapshotAudit runs a full audit, persists its summary and publishes the
// finding counts as metrics.
func (s *IntegrityService) SnapshotAudit(ctx context.Context) (*models.IntegritySnapshot, error) {
	report, err := s.RunAudit(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &models.IntegritySnapshot{
		TotalAccounts:    report.TotalAccounts,
		MissingCodes:     len(report.MissingCodes),
		DuplicateGroups:  len(report.Duplicates),
		MalformedCodes:   len(report.Malformed),
		BrokenChains:     len(report.Broken),
		ChainCount:       report.Depth.ChainCount,
		AverageDepth:     report.Depth.AverageDepth,
		MaxDepth:         report.Depth.MaxDepth,
		FullWindowChains: report.Depth.FullWindowChains,
		TruncatedChains:  report.Depth.TruncatedChains,
		Healthy:          report.Healthy,
		CreatedAt:        report.GeneratedAt,
	}
	if err := s.repo.CreateIntegritySnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to store integrity snapshot: %w", err)
	}

	monitoring.IntegrityFindings.WithLabelValues("missing").Set(float64(snapshot.MissingCodes))
	monitoring.IntegrityFindings.WithLabelValues("duplicate").Set(float64(snapshot.DuplicateGroups))
	monitoring.IntegrityFindings.WithLabelValues("malformed").Set(float64(snapshot.MalformedCodes))
	monitoring.IntegrityFindings.WithLabelValues("broken").Set(float64(snapshot.BrokenChains))
	monitoring.IntegrityFindings.WithLabelValues("truncated").Set(float64(snapshot.TruncatedChains))

	return snapshot, nil
}

// LatestSnapshot returns the most recent stored audit summary
func (s *IntegrityService) LatestSnapshot(ctx context.Context) (*models.IntegritySnapshot, error) {
	snapshot, err := s.repo.LatestIntegritySnapshot(ctx)
	if err != nil {
		return nil, notFound(err, "integrity snapshot")
	}
	return snapshot, nil
}
