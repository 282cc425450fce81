package repository

import (
	"context"

	"github.com/google/uuid"

	"referral-engine/internal/models"
)

// CreatePayoutRequest inserts a payout request
func (r *Repository) CreatePayoutRequest(ctx context.Context, request *models.PayoutRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

// GetPayoutRequest retrieves a payout request by ID
func (r *Repository) GetPayoutRequest(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	var request models.PayoutRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ListPayoutRequests returns an account's payout requests, newest first
func (r *Repository) ListPayoutRequests(ctx context.Context, accountID uint) ([]models.PayoutRequest, error) {
	var requests []models.PayoutRequest
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("requested_at DESC").
		Find(&requests).Error
	return requests, err
}

// ListPayoutRequestsByStatus returns requests in a status, oldest first.
// An empty status matches every request.
func (r *Repository) ListPayoutRequestsByStatus(ctx context.Context, status models.PayoutStatus, limit, offset int) ([]models.PayoutRequest, error) {
	var requests []models.PayoutRequest
	query := r.db.WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.
		Order("requested_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&requests).Error
	return requests, err
}

// TransitionPayout moves a request to a new status only from one of the allowed
// current statuses. It reports how many rows changed.
func (r *Repository) TransitionPayout(
	ctx context.Context,
	id uuid.UUID,
	from []models.PayoutStatus,
	updates map[string]interface{},
) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.PayoutRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}
