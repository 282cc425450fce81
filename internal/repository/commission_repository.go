package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"referral-engine/internal/models"
)

// CreateCommission inserts a commission record
func (r *Repository) CreateCommission(ctx context.Context, commission *models.Commission) error {
	return r.db.WithContext(ctx).Create(commission).Error
}

// GetCommissionsByEvent returns the commissions written for a billing event
func (r *Repository) GetCommissionsByEvent(ctx context.Context, eventID string) ([]models.Commission, error) {
	var commissions []models.Commission
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("level ASC").
		Find(&commissions).Error
	return commissions, err
}

// ListCommissionsByReferrer returns a referrer's commissions, newest first
func (r *Repository) ListCommissionsByReferrer(ctx context.Context, referrerID uint, limit, offset int) ([]models.Commission, error) {
	var commissions []models.Commission
	err := r.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&commissions).Error
	return commissions, err
}

// ListMaturedCommissions returns commissions whose hold expired but were not released.
// A nil accountID scans every account.
func (r *Repository) ListMaturedCommissions(ctx context.Context, accountID *uint, now time.Time) ([]models.Commission, error) {
	var commissions []models.Commission
	query := r.db.WithContext(ctx).
		Where("released_at IS NULL AND payout_eligible_date <= ?", now)
	if accountID != nil {
		query = query.Where("referrer_id = ?", *accountID)
	}
	err := query.Order("id ASC").Find(&commissions).Error
	return commissions, err
}

// MarkCommissionReleased stamps released_at once; it reports how many rows changed
func (r *Repository) MarkCommissionReleased(ctx context.Context, commissionID uint, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Commission{}).
		Where("id = ? AND released_at IS NULL", commissionID).
		Update("released_at", now)
	return result.RowsAffected, result.Error
}

// ListPayableCommissions returns released, unpaid commissions, oldest first
func (r *Repository) ListPayableCommissions(ctx context.Context, referrerID uint) ([]models.Commission, error) {
	var commissions []models.Commission
	err := r.db.WithContext(ctx).
		Where("referrer_id = ? AND released_at IS NOT NULL AND paid_out = ?", referrerID, false).
		Order("created_at ASC, id ASC").
		Find(&commissions).Error
	return commissions, err
}

// MarkCommissionsPaid flips paid_out for the given commissions
func (r *Repository) MarkCommissionsPaid(ctx context.Context, ids []uint, payoutID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Commission{}).
		Where("id IN ? AND paid_out = ?", ids, false).
		Updates(map[string]interface{}{
			"paid_out":          true,
			"payout_request_id": payoutID,
		}).Error
}

// SummarizeCommissionsByLevel groups a referrer's commissions by chain level
func (r *Repository) SummarizeCommissionsByLevel(ctx context.Context, referrerID uint) ([]models.LevelSummary, error) {
	var rows []models.LevelSummary
	err := r.db.WithContext(ctx).Model(&models.Commission{}).
		Select("level, COUNT(*) AS count, COALESCE(SUM(commission_amount), 0) AS amount").
		Where("referrer_id = ?", referrerID).
		Group("level").
		Order("level ASC").
		Scan(&rows).Error
	return rows, err
}
