package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Commission is one referrer's share of a single billing event
type Commission struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	EventID            string           `gorm:"size:64;not null;uniqueIndex:idx_commission_event_level" json:"event_id"`
	ReferrerID         uint             `gorm:"not null;index" json:"referrer_id"`
	ReferredID         uint             `gorm:"not null;index" json:"referred_id"`
	Level              int              `gorm:"not null;uniqueIndex:idx_commission_event_level" json:"level"`
	SubscriptionPlan   SubscriptionPlan `gorm:"size:10;not null" json:"subscription_plan"`
	CommissionAmount   decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"commission_amount"`
	CommissionPercent  decimal.Decimal  `gorm:"type:decimal(5,2);not null" json:"commission_percent"`
	PayoutEligibleDate time.Time        `gorm:"not null;index" json:"payout_eligible_date"`
	ReleasedAt         *time.Time       `gorm:"index" json:"released_at,omitempty"`
	PaidOut            bool             `gorm:"not null;default:false;index" json:"paid_out"`
	PayoutRequestID    *uuid.UUID       `gorm:"type:uuid;index" json:"payout_request_id,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

func (Commission) TableName() string {
	return "referral_commissions"
}

// LevelSummary aggregates a referrer's commissions for one chain level
type LevelSummary struct {
	Level  int             `json:"level"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}
