package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// IsValid reports whether s is a known payout status
func (s PayoutStatus) IsValid() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusProcessing, PayoutStatusCompleted, PayoutStatusFailed:
		return true
	}
	return false
}

// PayoutRequest is a user-initiated withdrawal. Funds move outside the platform;
// the row only tracks the reservation and its outcome.
type PayoutRequest struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID        uint            `gorm:"not null;index" json:"account_id"`
	AmountUSD        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount_usd"`
	DestinationEmail string          `gorm:"size:255;not null" json:"destination_email"`
	Status           PayoutStatus    `gorm:"size:20;not null;default:pending;index" json:"status"`
	FailureReason    *string         `gorm:"type:text" json:"failure_reason,omitempty"`
	TransactionID    *string         `gorm:"size:255" json:"transaction_id,omitempty"`
	RequestedAt      time.Time       `gorm:"not null" json:"requested_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
}

func (PayoutRequest) TableName() string {
	return "payout_requests"
}
