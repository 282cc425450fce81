package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionPlan is the billing tier of an account
type SubscriptionPlan string

const (
	PlanFree SubscriptionPlan = "free"
	PlanPlus SubscriptionPlan = "plus"
	PlanPro  SubscriptionPlan = "pro"
)

// IsValid reports whether p is a known plan
func (p SubscriptionPlan) IsValid() bool {
	switch p {
	case PlanFree, PlanPlus, PlanPro:
		return true
	}
	return false
}

// CommissionEligible reports whether accounts on this plan earn referral commissions
func (p SubscriptionPlan) CommissionEligible() bool {
	return p == PlanPlus || p == PlanPro
}

// Account is a platform account as seen by the referral network.
// ReferredBy holds the referrer's code, not its id, and is allowed to dangle.
type Account struct {
	ID                    uint             `gorm:"primaryKey" json:"id"`
	Email                 string           `gorm:"size:255;not null" json:"email"`
	ReferralCode          *string          `gorm:"size:20;index" json:"referral_code,omitempty"`
	ReferredBy            *string          `gorm:"size:20;index" json:"referred_by,omitempty"`
	SubscriptionPlan      SubscriptionPlan `gorm:"size:10;not null;default:free" json:"subscription_plan"`
	TotalReferralEarnings decimal.Decimal  `gorm:"type:decimal(18,2);not null;default:0" json:"total_referral_earnings"`
	HeldBalance           decimal.Decimal  `gorm:"type:decimal(18,2);not null;default:0" json:"held_balance"`
	ReservedBalance       decimal.Decimal  `gorm:"type:decimal(18,2);not null;default:0" json:"reserved_balance"`
	WithdrawnTotal        decimal.Decimal  `gorm:"type:decimal(18,2);not null;default:0" json:"withdrawn_total"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// TableName specifies the table name for Account model
func (Account) TableName() string {
	return "accounts"
}

// Code returns the referral code or "" when none is assigned
func (a *Account) Code() string {
	if a.ReferralCode == nil {
		return ""
	}
	return *a.ReferralCode
}

// Referrer returns the referred_by code or "" when the account has no referrer
func (a *Account) Referrer() string {
	if a.ReferredBy == nil {
		return ""
	}
	return *a.ReferredBy
}

// PendingPayout is held plus reserved funds, the single figure older clients expect
func (a *Account) PendingPayout() decimal.Decimal {
	return a.HeldBalance.Add(a.ReservedBalance)
}

// AvailableBalance is what can still be requested as a payout
func (a *Account) AvailableBalance() decimal.Decimal {
	return a.TotalReferralEarnings.
		Sub(a.HeldBalance).
		Sub(a.ReservedBalance).
		Sub(a.WithdrawnTotal)
}
