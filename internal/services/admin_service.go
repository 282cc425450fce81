package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"referral-engine/internal/logging"
	"referral-engine/internal/models"
	"referral-engine/internal/repository"
)

type AdminService struct {
	repo *repository.Repository
}

func NewAdminService(repo *repository.Repository) *AdminService {
	return &AdminService{
		repo: repo,
	}
}

// rolePermissions is the permission set granted on promotion
var rolePermissions = map[string]models.JSONB{
	models.RoleSuperAdmin: {
		models.PermManageReferrals:    true,
		models.PermManagePayouts:      true,
		models.PermTriggerCommissions: true,
		models.PermManageAdmins:       true,
	},
	models.RoleOperator: {
		models.PermManageReferrals:    true,
		models.PermManagePayouts:      true,
		models.PermTriggerCommissions: false,
		models.PermManageAdmins:       false,
	},
	models.RoleBilling: {
		models.PermManageReferrals:    false,
		models.PermManagePayouts:      false,
		models.PermTriggerCommissions: true,
		models.PermManageAdmins:       false,
	},
}

// IsAdmin checks if an account is an admin
func (s *AdminService) IsAdmin(ctx context.Context, accountID uint) bool {
	_, err := s.repo.GetAdminByAccountID(ctx, accountID)
	return err == nil
}

// GetAdminByAccountID gets admin by account ID
func (s *AdminService) GetAdminByAccountID(ctx context.Context, accountID uint) (*models.AdminUser, error) {
	admin, err := s.repo.GetAdminByAccountID(ctx, accountID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("admin for account %d", accountID))
	}
	return admin, nil
}

// Authorize returns the admin behind accountID if it holds permission
func (s *AdminService) Authorize(ctx context.Context, accountID uint, permission string) (*models.AdminUser, error) {
	admin, err := s.repo.GetAdminByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %d is not an admin: %w", accountID, ErrForbidden)
		}
		return nil, err
	}
	if !admin.Can(permission) {
		return nil, fmt.Errorf("admin %d lacks %s: %w", admin.ID, permission, ErrForbidden)
	}
	return admin, nil
}

// PromoteAccount grants an account admin privileges. promotedBy is the admin
// id recorded in the log; zero means a bootstrap from the CLI.
func (s *AdminService) PromoteAccount(ctx context.Context, accountID uint, role string, promotedBy uint) (*models.AdminUser, error) {
	role = strings.ToUpper(strings.TrimSpace(role))
	permissions, ok := rolePermissions[role]
	if !ok {
		return nil, invalid("role", "must be SUPER_ADMIN, OPERATOR or BILLING")
	}

	if _, err := s.repo.GetAccountByID(ctx, accountID); err != nil {
		return nil, notFound(err, fmt.Sprintf("account %d", accountID))
	}

	granted := make(models.JSONB, len(permissions))
	for k, v := range permissions {
		granted[k] = v
	}
	admin := &models.AdminUser{
		AccountID:   accountID,
		Role:        role,
		Permissions: granted,
	}
	if err := s.repo.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, invalid("account_id", "account %d is already an admin", accountID)
		}
		return nil, fmt.Errorf("failed to promote account: %w", err)
	}

	if promotedBy != 0 {
		s.LogAdminAction(ctx, promotedBy, "PROMOTE_ADMIN", "ACCOUNT", fmt.Sprint(accountID), map[string]interface{}{
			"role": role,
		})
	}

	logging.Logger.Info("account promoted", zap.Uint("account_id", accountID), zap.String("role", role))
	return admin, nil
}

// LogAdminAction logs an admin action. Failures are logged, never returned:
// the action itself already happened.
func (s *AdminService) LogAdminAction(ctx context.Context, adminID uint, action, resourceType, resourceID string,
	details map[string]interface{}) {

	entry := models.AdminLog{
		AdminID:      adminID,
		Action:       action,
		ResourceType: resourceType,
		Details:      models.JSONB(details),
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}

	if err := s.repo.CreateAdminLog(ctx, &entry); err != nil {
		logging.Logger.Error("failed to write admin log",
			zap.Uint("admin_id", adminID),
			zap.String("action", action),
			zap.Error(err))
	}
}

// GetAdminLogs returns admin activity logs, newest first
func (s *AdminService) GetAdminLogs(ctx context.Context, limit, offset int) ([]models.AdminLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAdminLogs(ctx, limit, offset)
}
