package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"referral-engine/internal/logging"
	"referral-engine/internal/models"
	"referral-engine/internal/monitoring"
	"referral-engine/internal/repository"
)

// PayoutInput is a user's withdrawal request
type PayoutInput struct {
	AccountID        uint            `validate:"required"`
	Amount           decimal.Decimal `validate:"-"`
	DestinationEmail string          `validate:"required,email"`
}

// StatusUpdate moves a payout request through its lifecycle
type StatusUpdate struct {
	Status        models.PayoutStatus `json:"status"`
	TransactionID string              `json:"transaction_id"`
	Reason        string              `json:"reason"`
}

type PayoutService struct {
	repo          *repository.Repository
	validate      *validator.Validate
	minimumPayout decimal.Decimal
	now           func() time.Time
}

func NewPayoutService(repo *repository.Repository, minimumPayout decimal.Decimal) *PayoutService {
	if !minimumPayout.IsPositive() {
		minimumPayout = DefaultMinimumPayout
	}
	return &PayoutService{
		repo:          repo,
		validate:      validator.New(),
		minimumPayout: minimumPayout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// MinimumPayout is the smallest amount a user may withdraw
func (s *PayoutService) MinimumPayout() decimal.Decimal {
	return s.minimumPayout
}

// RequestPayout reserves amount out of the available balance and records a
// pending request. The reservation is a conditional update, so two concurrent
// requests can never reserve more than is available.
func (s *PayoutService) RequestPayout(ctx context.Context, input PayoutInput) (*models.PayoutRequest, error) {
	input.DestinationEmail = strings.TrimSpace(input.DestinationEmail)
	if err := s.validate.Struct(input); err != nil {
		monitoring.PayoutRequestsTotal.WithLabelValues("rejected").Inc()
		return nil, fromValidator(err)
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		monitoring.PayoutRequestsTotal.WithLabelValues("rejected").Inc()
		return nil, invalid("amount", "must have at most two decimal places")
	}
	if input.Amount.LessThan(s.minimumPayout) {
		monitoring.PayoutRequestsTotal.WithLabelValues("rejected").Inc()
		return nil, invalid("amount", "minimum payout is $%s", s.minimumPayout.StringFixed(2))
	}

	if _, err := s.ReleaseMaturedCommissions(ctx, &input.AccountID); err != nil {
		return nil, err
	}

	account, err := s.repo.GetAccountByID(ctx, input.AccountID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("account %d", input.AccountID))
	}

	available := account.AvailableBalance()
	if input.Amount.GreaterThan(available) {
		monitoring.PayoutRequestsTotal.WithLabelValues("insufficient_funds").Inc()
		return nil, &InsufficientFundsError{Requested: input.Amount, Available: available}
	}

	request := &models.PayoutRequest{
		ID:               uuid.New(),
		AccountID:        account.ID,
		AmountUSD:        input.Amount,
		DestinationEmail: input.DestinationEmail,
		Status:           models.PayoutStatusPending,
		RequestedAt:      s.now(),
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		reserved, err := tx.ReserveFunds(ctx, account.ID, input.Amount)
		if err != nil {
			return err
		}
		if !reserved {
			return &InsufficientFundsError{Requested: input.Amount, Available: available}
		}
		return tx.CreatePayoutRequest(ctx, request)
	})
	if err != nil {
		var insufficient *InsufficientFundsError
		if errors.As(err, &insufficient) {
			monitoring.PayoutRequestsTotal.WithLabelValues("insufficient_funds").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("failed to create payout request: %w", err)
	}

	monitoring.PayoutRequestsTotal.WithLabelValues("accepted").Inc()
	logging.Logger.Info("payout requested",
		zap.Uint("account_id", account.ID),
		zap.String("payout_id", request.ID.String()),
		zap.String("amount", input.Amount.StringFixed(2)))

	return request, nil
}

// UpdatePayoutStatus applies an operator decision to a payout request.
// Completing settles the reservation into withdrawn_total; failing returns
// it to the available balance.
func (s *PayoutService) UpdatePayoutStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (*models.PayoutRequest, error) {
	var from []models.PayoutStatus
	switch update.Status {
	case models.PayoutStatusProcessing:
		from = []models.PayoutStatus{models.PayoutStatusPending}
	case models.PayoutStatusCompleted, models.PayoutStatusFailed:
		from = []models.PayoutStatus{models.PayoutStatusPending, models.PayoutStatusProcessing}
	default:
		return nil, invalid("status", "must be processing, completed or failed")
	}

	request, err := s.repo.GetPayoutRequest(ctx, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("payout %s", id))
	}

	now := s.now()
	updates := map[string]interface{}{"status": update.Status}
	if update.Status != models.PayoutStatusProcessing {
		updates["processed_at"] = now
	}
	if update.TransactionID != "" {
		updates["transaction_id"] = update.TransactionID
	}
	if update.Status == models.PayoutStatusFailed {
		reason := strings.TrimSpace(update.Reason)
		if reason == "" {
			reason = "unspecified"
		}
		updates["failure_reason"] = reason
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		rows, err := tx.TransitionPayout(ctx, id, from, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return invalid("status", "cannot move payout from %s to %s", request.Status, update.Status)
		}

		switch update.Status {
		case models.PayoutStatusCompleted:
			if err := tx.SettleReservation(ctx, request.AccountID, request.AmountUSD); err != nil {
				return err
			}
			return markCommissionsPaid(ctx, tx, request)
		case models.PayoutStatusFailed:
			return tx.ReleaseReservation(ctx, request.AccountID, request.AmountUSD)
		}
		return nil
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update payout %s: %w", id, err)
	}

	logging.Logger.Info("payout status changed",
		zap.String("payout_id", id.String()),
		zap.String("from", string(request.Status)),
		zap.String("to", string(update.Status)))

	return s.repo.GetPayoutRequest(ctx, id)
}

// markCommissionsPaid attributes released commissions to a completed payout,
// oldest first, for as long as they fit in the paid amount.
func markCommissionsPaid(ctx context.Context, tx *repository.Repository, request *models.PayoutRequest) error {
	payable, err := tx.ListPayableCommissions(ctx, request.AccountID)
	if err != nil {
		return err
	}

	remaining := request.AmountUSD
	var ids []uint
	for _, c := range payable {
		if c.CommissionAmount.GreaterThan(remaining) {
			break
		}
		remaining = remaining.Sub(c.CommissionAmount)
		ids = append(ids, c.ID)
	}
	return tx.MarkCommissionsPaid(ctx, ids, request.ID)
}

// ReleaseMaturedCommissions moves commissions whose hold has expired out of
// held_balance. A nil accountID releases for every account. Each commission is
// released at most once even with concurrent callers.
func (s *PayoutService) ReleaseMaturedCommissions(ctx context.Context, accountID *uint) (int, error) {
	now := s.now()
	matured, err := s.repo.ListMaturedCommissions(ctx, accountID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list matured commissions: %w", err)
	}

	released := 0
	for _, c := range matured {
		commission := c
		var done bool
		err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
			rows, err := tx.MarkCommissionReleased(ctx, commission.ID, now)
			if err != nil || rows == 0 {
				return err
			}
			done = true
			return tx.ReleaseHeld(ctx, commission.ReferrerID, commission.CommissionAmount)
		})
		if err != nil {
			return released, fmt.Errorf("failed to release commission %d: %w", commission.ID, err)
		}
		if done {
			released++
		}
	}

	if released > 0 {
		logging.Logger.Info("matured commissions released", zap.Int("count", released))
	}
	return released, nil
}

// ListPayouts returns an account's payout requests, newest first
func (s *PayoutService) ListPayouts(ctx context.Context, accountID uint) ([]models.PayoutRequest, error) {
	return s.repo.ListPayoutRequests(ctx, accountID)
}

// ListPayoutsByStatus returns payout requests for operators; an empty status lists all
func (s *PayoutService) ListPayoutsByStatus(ctx context.Context, status models.PayoutStatus, limit, offset int) ([]models.PayoutRequest, error) {
	if status != "" && !status.IsValid() {
		return nil, invalid("status", "unknown payout status %q", status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPayoutRequestsByStatus(ctx, status, limit, offset)
}
