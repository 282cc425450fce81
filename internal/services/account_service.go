package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"referral-engine/internal/logging"
	"referral-engine/internal/models"
	"referral-engine/internal/repository"
	"referral-engine/internal/utils"
)

// maxCodeAttempts bounds retries when a generated code collides
const maxCodeAttempts = 5

type AccountService struct {
	repo    *repository.Repository
	baseURL string
	now     func() time.Time
}

func NewAccountService(repo *repository.Repository, baseURL string) *AccountService {
	return &AccountService{
		repo:    repo,
		baseURL: baseURL,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ReferralStats summarizes an account's position in the network
type ReferralStats struct {
	AccountID        uint                  `json:"account_id"`
	ReferralCode     string                `json:"referral_code"`
	ReferredBy       string                `json:"referred_by,omitempty"`
	SubscriptionPlan string                `json:"subscription_plan"`
	DirectReferrals  int64                 `json:"direct_referrals"`
	Levels           []models.LevelSummary `json:"levels"`
	TotalEarnings    decimal.Decimal       `json:"total_referral_earnings"`
	HeldBalance      decimal.Decimal       `json:"held_balance"`
	ReservedBalance  decimal.Decimal       `json:"reserved_balance"`
	WithdrawnTotal   decimal.Decimal       `json:"withdrawn_total"`
	PendingPayout    decimal.Decimal       `json:"pending_payout"`
	AvailableBalance decimal.Decimal       `json:"available_balance"`
}

// EnsureAccount returns the account for id, creating it on first sight.
// Every account leaves here holding a referral code.
func (s *AccountService) EnsureAccount(ctx context.Context, id uint, email string) (*models.Account, error) {
	if id == 0 {
		return nil, invalid("account_id", "is required")
	}

	account, err := s.repo.GetAccountByID(ctx, id)
	if err == nil {
		if account.Code() == "" {
			return s.assignCode(ctx, account)
		}
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load account %d: %w", id, err)
	}

	code, err := allocateReferralCode(ctx, s.repo, email, s.now())
	if err != nil {
		return nil, err
	}

	account = &models.Account{
		ID:               id,
		Email:            strings.TrimSpace(email),
		ReferralCode:     &code,
		SubscriptionPlan: models.PlanFree,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// created concurrently by another request
			return s.repo.GetAccountByID(ctx, id)
		}
		return nil, fmt.Errorf("failed to create account %d: %w", id, err)
	}

	logging.Logger.Info("account created",
		zap.Uint("account_id", id),
		zap.String("referral_code", code))
	return account, nil
}

// GetAccount loads an account by id
func (s *AccountService) GetAccount(ctx context.Context, id uint) (*models.Account, error) {
	account, err := s.repo.GetAccountByID(ctx, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("account %d", id))
	}
	return account, nil
}

// GetReferralCode returns the account's code, generating one when missing
func (s *AccountService) GetReferralCode(ctx context.Context, accountID uint) (string, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if code := account.Code(); code != "" {
		return code, nil
	}
	account, err = s.assignCode(ctx, account)
	if err != nil {
		return "", err
	}
	return account.Code(), nil
}

func (s *AccountService) assignCode(ctx context.Context, account *models.Account) (*models.Account, error) {
	code, err := allocateReferralCode(ctx, s.repo, account.Email, s.now())
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.SetReferralCode(ctx, account.ID, code, true); err != nil {
		return nil, fmt.Errorf("failed to store referral code for account %d: %w", account.ID, err)
	}
	// re-read: a concurrent writer may have won
	return s.repo.GetAccountByID(ctx, account.ID)
}

// GetReferralLink returns the shareable signup link for the account's code
func (s *AccountService) GetReferralLink(ctx context.Context, accountID uint) (string, error) {
	code, err := s.GetReferralCode(ctx, accountID)
	if err != nil {
		return "", err
	}
	return utils.BuildReferralLink(s.baseURL, code)
}

// GetReferralQRCode renders the referral link as a PNG
func (s *AccountService) GetReferralQRCode(ctx context.Context, accountID uint) ([]byte, error) {
	code, err := s.GetReferralCode(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return utils.GenerateReferralQRCode(s.baseURL, code)
}

// ApplyReferralCode attaches the account to the referrer owning code. It can
// only happen once, and never to the account itself or to anyone in its own
// downline.
func (s *AccountService) ApplyReferralCode(ctx context.Context, accountID uint, code string) (*models.Account, error) {
	code = utils.NormalizeReferralCode(code)
	if !utils.ValidReferralCode(code) {
		return nil, invalid("code", "must be 4-12 uppercase letters or digits")
	}

	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Referrer() != "" {
		return nil, invalid("code", "a referral code was already applied")
	}

	referrer, err := s.repo.GetAccountByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid("code", "unknown referral code %s", code)
		}
		return nil, fmt.Errorf("failed to resolve referral code %s: %w", code, err)
	}
	if referrer.ID == account.ID || code == account.Code() {
		return nil, invalid("code", "cannot apply your own referral code")
	}

	// walk the referrer's upline: meeting this account means a cycle
	current := referrer
	for depth := 0; depth < MaxAuditDepth; depth++ {
		next := current.Referrer()
		if next == "" {
			break
		}
		if account.Code() != "" && next == account.Code() {
			return nil, invalid("code", "referral would create a cycle")
		}
		current, err = s.repo.GetAccountByCode(ctx, next)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to walk upline of %s: %w", code, err)
		}
		if current.ID == account.ID {
			return nil, invalid("code", "referral would create a cycle")
		}
	}

	rows, err := s.repo.SetReferredBy(ctx, account.ID, code)
	if err != nil {
		return nil, fmt.Errorf("failed to apply referral code: %w", err)
	}
	if rows == 0 {
		return nil, invalid("code", "a referral code was already applied")
	}

	logging.Logger.Info("referral code applied",
		zap.Uint("account_id", account.ID),
		zap.Uint("referrer_id", referrer.ID),
		zap.String("code", code))

	return s.repo.GetAccountByID(ctx, account.ID)
}

// GetReferralStats reports direct referrals, per-level commissions and balances
func (s *AccountService) GetReferralStats(ctx context.Context, accountID uint) (*ReferralStats, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	stats := &ReferralStats{
		AccountID:        account.ID,
		ReferralCode:     account.Code(),
		ReferredBy:       account.Referrer(),
		SubscriptionPlan: string(account.SubscriptionPlan),
		TotalEarnings:    account.TotalReferralEarnings,
		HeldBalance:      account.HeldBalance,
		ReservedBalance:  account.ReservedBalance,
		WithdrawnTotal:   account.WithdrawnTotal,
		PendingPayout:    account.PendingPayout(),
		AvailableBalance: account.AvailableBalance(),
	}

	if stats.ReferralCode != "" {
		stats.DirectReferrals, err = s.repo.CountDirectReferrals(ctx, stats.ReferralCode)
		if err != nil {
			return nil, fmt.Errorf("failed to count referrals: %w", err)
		}
	}

	stats.Levels, err = s.repo.SummarizeCommissionsByLevel(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize commissions: %w", err)
	}

	return stats, nil
}

// allocateReferralCode generates a code no account currently holds
func allocateReferralCode(ctx context.Context, repo *repository.Repository, email string, now time.Time) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := utils.GenerateReferralCode(email, now)
		if err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}
		exists, err := repo.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check referral code: %w", err)
		}
		if !exists {
			return code, nil
		}
		logging.Logger.Debug("referral code collision", zap.String("code", code), zap.Int("attempt", attempt+1))
	}
	return "", fmt.Errorf("could not find a free referral code after %d attempts", maxCodeAttempts)
}
