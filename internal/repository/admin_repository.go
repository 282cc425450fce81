package repository

import (
	"context"

	"referral-engine/internal/models"
)

// GetAdminByAccountID gets admin by account ID
func (r *Repository) GetAdminByAccountID(ctx context.Context, accountID uint) (*models.AdminUser, error) {
	var admin models.AdminUser
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&admin).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}

// CreateAdmin inserts an admin grant
func (r *Repository) CreateAdmin(ctx context.Context, admin *models.AdminUser) error {
	return r.db.WithContext(ctx).Create(admin).Error
}

// CreateAdminLog appends to the admin audit trail
func (r *Repository) CreateAdminLog(ctx context.Context, entry *models.AdminLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListAdminLogs returns admin activity logs, newest first
func (r *Repository) ListAdminLogs(ctx context.Context, limit, offset int) ([]models.AdminLog, error) {
	var logs []models.AdminLog
	err := r.db.WithContext(ctx).
		Preload("Admin").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	return logs, err
}

// CreateIntegritySnapshot stores an audit summary
func (r *Repository) CreateIntegritySnapshot(ctx context.Context, snapshot *models.IntegritySnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

// LatestIntegritySnapshot returns the most recent audit summary
func (r *Repository) LatestIntegritySnapshot(ctx context.Context) (*models.IntegritySnapshot, error) {
	var snapshot models.IntegritySnapshot
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
