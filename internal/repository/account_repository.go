package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"referral-engine/internal/models"
)

// ReferralLink is the minimal projection used to rebuild chains in memory
type ReferralLink struct {
	ID           uint
	ReferralCode *string
	ReferredBy   *string
}

// CodeCount is a referral code and the number of accounts holding it
type CodeCount struct {
	ReferralCode string
	Total        int64
}

// CreateAccount inserts a new account
func (r *Repository) CreateAccount(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetAccountByID retrieves an account by ID
func (r *Repository) GetAccountByID(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByCode resolves a referral code. When a code is duplicated the
// oldest account wins so resolution stays deterministic.
func (r *Repository) GetAccountByCode(ctx context.Context, code string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Where("referral_code = ?", code).
		Order("id ASC").
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CodeExists reports whether any account holds the code
func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("referral_code = ?", code).
		Count(&count).Error
	return count > 0, err
}

// CountAccounts returns the number of accounts
func (r *Repository) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Account{}).Count(&count).Error
	return count, err
}

// SetReferredBy links an account to a referrer code, only if it has none yet
func (r *Repository) SetReferredBy(ctx context.Context, accountID uint, code string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND (referred_by IS NULL OR referred_by = '')", accountID).
		Update("referred_by", code)
	return result.RowsAffected, result.Error
}

// UpdatePlan changes the subscription plan of an account
func (r *Repository) UpdatePlan(ctx context.Context, accountID uint, plan models.SubscriptionPlan) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("subscription_plan", plan)
	return result.RowsAffected, result.Error
}

// SetReferralCode writes a code. With onlyIfMissing the write is skipped
// for accounts that already hold one.
func (r *Repository) SetReferralCode(ctx context.Context, accountID uint, code string, onlyIfMissing bool) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", accountID)
	if onlyIfMissing {
		query = query.Where("referral_code IS NULL OR referral_code = ''")
	}
	result := query.Update("referral_code", code)
	return result.RowsAffected, result.Error
}

// AddEarnings credits a commission: lifetime earnings and the held balance grow together
func (r *Repository) AddEarnings(ctx context.Context, accountID uint, amount decimal.Decimal) error {
	return r.mustAffect(r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"total_referral_earnings": gorm.Expr("total_referral_earnings + ?", amount),
			"held_balance":            gorm.Expr("held_balance + ?", amount),
		}))
}

// ReleaseHeld moves a matured commission out of the held balance
func (r *Repository) ReleaseHeld(ctx context.Context, accountID uint, amount decimal.Decimal) error {
	return r.mustAffect(r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("held_balance", gorm.Expr("held_balance - ?", amount)))
}

// ReserveFunds atomically reserves amount if it fits in the available balance.
// It returns false when the balance was insufficient at write time.
func (r *Repository) ReserveFunds(ctx context.Context, accountID uint, amount decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Where("total_referral_earnings - held_balance - reserved_balance - withdrawn_total >= CAST(? AS NUMERIC)", amount).
		Update("reserved_balance", gorm.Expr("reserved_balance + ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseReservation returns a failed payout's reservation to the available balance
func (r *Repository) ReleaseReservation(ctx context.Context, accountID uint, amount decimal.Decimal) error {
	return r.mustAffect(r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("reserved_balance", gorm.Expr("reserved_balance - ?", amount)))
}

// SettleReservation turns a reservation into a completed withdrawal
func (r *Repository) SettleReservation(ctx context.Context, accountID uint, amount decimal.Decimal) error {
	return r.mustAffect(r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"reserved_balance": gorm.Expr("reserved_balance - ?", amount),
			"withdrawn_total":  gorm.Expr("withdrawn_total + ?", amount),
		}))
}

// ListAccountsMissingCode returns accounts without a referral code
func (r *Repository) ListAccountsMissingCode(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.WithContext(ctx).
		Where("referral_code IS NULL OR referral_code = ''").
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

// FindDuplicateCodes returns every code held by more than one account
func (r *Repository) FindDuplicateCodes(ctx context.Context) ([]CodeCount, error) {
	var rows []CodeCount
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Select("referral_code, COUNT(*) AS total").
		Where("referral_code IS NOT NULL AND referral_code <> ''").
		Group("referral_code").
		Having("COUNT(*) > 1").
		Order("referral_code ASC").
		Scan(&rows).Error
	return rows, err
}

// ListAccountIDsByCode returns the ids of all accounts holding code
func (r *Repository) ListAccountIDsByCode(ctx context.Context, code string) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("referral_code = ?", code).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ListCodedAccounts returns id and code of every account holding a code
func (r *Repository) ListCodedAccounts(ctx context.Context) ([]ReferralLink, error) {
	var links []ReferralLink
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Select("id, referral_code, referred_by").
		Where("referral_code IS NOT NULL AND referral_code <> ''").
		Order("id ASC").
		Scan(&links).Error
	return links, err
}

// ListBrokenReferrals returns accounts whose referred_by resolves to no account
func (r *Repository) ListBrokenReferrals(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.WithContext(ctx).
		Where("referred_by IS NOT NULL AND referred_by <> ''").
		Where("NOT EXISTS (SELECT 1 FROM accounts AS ref WHERE ref.referral_code = accounts.referred_by)").
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

// ListReferralLinks returns the whole referral graph as links
func (r *Repository) ListReferralLinks(ctx context.Context) ([]ReferralLink, error) {
	var links []ReferralLink
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Select("id, referral_code, referred_by").
		Order("id ASC").
		Scan(&links).Error
	return links, err
}

// CountDirectReferrals counts accounts referred by code
func (r *Repository) CountDirectReferrals(ctx context.Context, code string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("referred_by = ?", code).
		Count(&count).Error
	return count, err
}

func (r *Repository) mustAffect(result *gorm.DB) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
