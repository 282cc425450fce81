package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"referral-engine/internal/logging"
	"referral-engine/internal/models"
	"referral-engine/internal/repository"
)

// SubscriptionEvent is a billing notification from the subscription provider
type SubscriptionEvent struct {
	AccountID uint                    `json:"account_id"`
	Plan      models.SubscriptionPlan `json:"plan"`
	EventID   string                  `json:"event_id"`
}

type SubscriptionService struct {
	repo        *repository.Repository
	commissions *CommissionService
}

func NewSubscriptionService(repo *repository.Repository, commissions *CommissionService) *SubscriptionService {
	return &SubscriptionService{
		repo:        repo,
		commissions: commissions,
	}
}

// ActivateSubscription records the subscriber's plan and, for paying plans,
// distributes commissions up the referral chain.
func (s *SubscriptionService) ActivateSubscription(ctx context.Context, event SubscriptionEvent) (*DistributionResult, error) {
	event.Plan = models.SubscriptionPlan(strings.ToLower(strings.TrimSpace(string(event.Plan))))
	if event.AccountID == 0 {
		return nil, invalid("account_id", "is required")
	}
	if !event.Plan.IsValid() {
		return nil, invalid("plan", "unknown subscription plan %q", event.Plan)
	}
	event.EventID = strings.TrimSpace(event.EventID)
	if event.Plan.CommissionEligible() && event.EventID == "" {
		return nil, invalid("event_id", "is required for paid plans")
	}

	rows, err := s.repo.UpdatePlan(ctx, event.AccountID, event.Plan)
	if err != nil {
		return nil, fmt.Errorf("failed to update plan for account %d: %w", event.AccountID, err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("account %d: %w", event.AccountID, ErrNotFound)
	}

	logging.Logger.Info("subscription updated",
		zap.Uint("account_id", event.AccountID),
		zap.String("plan", string(event.Plan)),
		zap.String("event_id", event.EventID))

	if !event.Plan.CommissionEligible() {
		return &DistributionResult{
			EventID:      event.EventID,
			SubscriberID: event.AccountID,
			Plan:         event.Plan,
			Entries:      []CommissionEntry{},
		}, nil
	}

	return s.commissions.DistributeCommissions(ctx, DistributionInput{
		SubscriberID: event.AccountID,
		Plan:         event.Plan,
		EventID:      event.EventID,
	})
}
