package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB for PostgreSQL JSON support
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source %T", value)
	}
	return json.Unmarshal(bytes, j)
}

// Admin roles
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleOperator   = "OPERATOR"
	RoleBilling    = "BILLING"
)

// Admin permissions
const (
	PermManageReferrals    = "manage_referrals"
	PermManagePayouts      = "manage_payouts"
	PermTriggerCommissions = "trigger_commissions"
	PermManageAdmins       = "manage_admins"
)

// AdminUser grants an account operator privileges
type AdminUser struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AccountID   uint      `gorm:"uniqueIndex;not null" json:"account_id"`
	Role        string    `gorm:"size:20;not null" json:"role"` // SUPER_ADMIN, OPERATOR, BILLING
	Permissions JSONB     `gorm:"type:jsonb" json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (AdminUser) TableName() string {
	return "admin_users"
}

// Can reports whether the admin holds a permission
func (a *AdminUser) Can(permission string) bool {
	if a.Role == RoleSuperAdmin {
		return true
	}
	granted, ok := a.Permissions[permission].(bool)
	return ok && granted
}

// AdminLog records admin actions for audit trail
type AdminLog struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	AdminID      uint       `gorm:"not null;index" json:"admin_id"`
	Admin        *AdminUser `gorm:"foreignKey:AdminID" json:"admin,omitempty"`
	Action       string     `gorm:"size:50;not null;index" json:"action"`
	ResourceType string     `gorm:"size:50" json:"resource_type"`
	ResourceID   *string    `gorm:"size:64" json:"resource_id,omitempty"`
	Details      JSONB      `gorm:"type:jsonb" json:"details"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
}

func (AdminLog) TableName() string {
	return "admin_logs"
}

// IntegritySnapshot stores the summary of a scheduled network audit
type IntegritySnapshot struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	TotalAccounts    int64     `gorm:"default:0" json:"total_accounts"`
	MissingCodes     int       `gorm:"default:0" json:"missing_codes"`
	DuplicateGroups  int       `gorm:"default:0" json:"duplicate_groups"`
	MalformedCodes   int       `gorm:"default:0" json:"malformed_codes"`
	BrokenChains     int       `gorm:"default:0" json:"broken_chains"`
	ChainCount       int       `gorm:"default:0" json:"chain_count"`
	AverageDepth     float64   `gorm:"default:0" json:"average_depth"`
	MaxDepth         int       `gorm:"default:0" json:"max_depth"`
	FullWindowChains int       `gorm:"default:0" json:"full_window_chains"`
	TruncatedChains  int       `gorm:"default:0" json:"truncated_chains"`
	Healthy          bool      `json:"healthy"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

func (IntegritySnapshot) TableName() string {
	return "integrity_snapshots"
}
