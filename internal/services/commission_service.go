package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"referral-engine/internal/logging"
	"referral-engine/internal/models"
	"referral-engine/internal/monitoring"
	"referral-engine/internal/repository"
)

// DistributionInput identifies one billing event of a paying subscriber
type DistributionInput struct {
	SubscriberID uint                    `json:"subscriber_id"`
	Plan         models.SubscriptionPlan `json:"plan"`
	EventID      string                  `json:"event_id"`
}

// CommissionEntry is one commission created for a billing event
type CommissionEntry struct {
	CommissionID       uint            `json:"commission_id"`
	ReferrerID         uint            `json:"referrer_id"`
	ReferrerEmail      string          `json:"referrer_email,omitempty"`
	Level              int             `json:"level"`
	Amount             decimal.Decimal `json:"amount"`
	Percent            decimal.Decimal `json:"percent"`
	PayoutEligibleDate time.Time       `json:"payout_eligible_date"`
}

// DistributionResult lists the commissions of a billing event. Replayed is set
// when the event had already been processed and nothing new was written.
type DistributionResult struct {
	EventID      string                  `json:"event_id"`
	SubscriberID uint                    `json:"subscriber_id"`
	Plan         models.SubscriptionPlan `json:"plan"`
	Entries      []CommissionEntry       `json:"entries"`
	Replayed     bool                    `json:"replayed"`
}

// Total sums the commission amounts of the result
func (r *DistributionResult) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range r.Entries {
		total = total.Add(e.Amount)
	}
	return total
}

type CommissionService struct {
	repo        *repository.Repository
	notifier    Notifier
	holdPeriod  time.Duration
	walkTimeout time.Duration
	now         func() time.Time
}

func NewCommissionService(
	repo *repository.Repository,
	notifier Notifier,
	holdPeriod time.Duration,
	walkTimeout time.Duration,
) *CommissionService {
	if holdPeriod <= 0 {
		holdPeriod = DefaultHoldPeriod
	}
	if walkTimeout <= 0 {
		walkTimeout = 5 * time.Second
	}
	return &CommissionService{
		repo:        repo,
		notifier:    notifier,
		holdPeriod:  holdPeriod,
		walkTimeout: walkTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// DistributeCommissions walks the subscriber's referral chain upward, at most
// MaxCommissionLevels steps, and credits every plus/pro referrer on the way.
// Level is the distance from the subscriber: free referrers are skipped but
// still consume their level. An unresolvable code ends the walk quietly. Each
// level is written in its own transaction, so a later failure leaves earlier
// levels in place; the partial result is returned together with the error.
// Calling again with the same event re-walks the chain and only writes the
// levels still missing; Replayed is set when nothing new was written.
func (s *CommissionService) DistributeCommissions(ctx context.Context, input DistributionInput) (*DistributionResult, error) {
	if !input.Plan.CommissionEligible() {
		return nil, invalid("plan", "commissions are only distributed for plus and pro, got %q", input.Plan)
	}
	input.EventID = strings.TrimSpace(input.EventID)
	if input.EventID == "" {
		return nil, invalid("event_id", "is required")
	}

	result := &DistributionResult{
		EventID:      input.EventID,
		SubscriberID: input.SubscriberID,
		Plan:         input.Plan,
		Entries:      []CommissionEntry{},
	}

	existing, err := s.repo.GetCommissionsByEvent(ctx, input.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to check billing event %s: %w", input.EventID, err)
	}
	stored := make(map[int]models.Commission, len(existing))
	for _, c := range existing {
		stored[c.Level] = c
	}
	var fresh []CommissionEntry
	defer func() {
		// levels written by an earlier run that this walk did not reach
		for _, c := range stored {
			result.Entries = append(result.Entries, s.storedEntry(ctx, c, nil))
		}
		sort.Slice(result.Entries, func(i, j int) bool { return result.Entries[i].Level < result.Entries[j].Level })
		result.Replayed = len(existing) > 0 && len(fresh) == 0
	}()

	subscriber, err := s.repo.GetAccountByID(ctx, input.SubscriberID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("subscriber %d", input.SubscriberID))
	}

	code := subscriber.Referrer()
	if code == "" {
		logging.Logger.Debug("subscriber has no referrer", zap.Uint("subscriber_id", subscriber.ID))
		return result, nil
	}

	walkCtx, cancel := context.WithTimeout(ctx, s.walkTimeout)
	defer cancel()

	now := s.now()
	visited := map[uint]bool{subscriber.ID: true}
	stop := "chain_end"

	for level := 1; code != ""; level++ {
		if level > MaxCommissionLevels {
			stop = "max_level"
			break
		}
		if err := walkCtx.Err(); err != nil {
			monitoring.ChainWalkStops.WithLabelValues("timeout").Inc()
			return result, fmt.Errorf("commission walk for event %s interrupted at level %d: %w", input.EventID, level, err)
		}

		referrer, err := s.repo.GetAccountByCode(walkCtx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logging.Logger.Warn("broken referral chain",
				zap.String("event_id", input.EventID),
				zap.String("code", code),
				zap.Int("level", level))
			stop = "broken_chain"
			break
		}
		if err != nil {
			return result, fmt.Errorf("failed to resolve referral code %s at level %d: %w", code, level, err)
		}

		if visited[referrer.ID] {
			logging.Logger.Warn("referral cycle detected",
				zap.String("event_id", input.EventID),
				zap.Uint("account_id", referrer.ID),
				zap.Int("level", level))
			stop = "cycle"
			break
		}
		visited[referrer.ID] = true

		if c, ok := stored[level]; ok {
			result.Entries = append(result.Entries, s.storedEntry(walkCtx, c, referrer))
			delete(stored, level)
		} else if referrer.SubscriptionPlan.CommissionEligible() {
			entry, err := s.recordCommission(walkCtx, input, referrer, level, now)
			switch {
			case errors.Is(err, gorm.ErrDuplicatedKey):
				// a concurrent run wrote this level first
				logging.Logger.Warn("commission already recorded for level",
					zap.String("event_id", input.EventID),
					zap.Int("level", level))
				if c, ok := s.commissionAtLevel(walkCtx, input.EventID, level); ok {
					result.Entries = append(result.Entries, s.storedEntry(walkCtx, c, referrer))
				}
			case err != nil:
				monitoring.ChainWalkStops.WithLabelValues("write_failed").Inc()
				return result, fmt.Errorf("failed to record level %d commission for event %s: %w", level, input.EventID, err)
			default:
				result.Entries = append(result.Entries, *entry)
				fresh = append(fresh, *entry)
			}
		} else {
			logging.Logger.Debug("referrer not commission eligible",
				zap.Uint("account_id", referrer.ID),
				zap.String("plan", string(referrer.SubscriptionPlan)),
				zap.Int("level", level))
		}

		code = referrer.Referrer()
	}

	monitoring.ChainWalkStops.WithLabelValues(stop).Inc()
	logging.Logger.Info("commissions distributed",
		zap.String("event_id", input.EventID),
		zap.Uint("subscriber_id", subscriber.ID),
		zap.String("plan", string(input.Plan)),
		zap.Int("commissions", len(fresh)),
		zap.Int("already_recorded", len(existing)),
		zap.String("stop", stop))

	if len(fresh) > 0 && s.notifier != nil {
		s.notifyAsync(&DistributionResult{
			EventID:      result.EventID,
			SubscriberID: result.SubscriberID,
			Plan:         result.Plan,
			Entries:      fresh,
		})
	}

	return result, nil
}

func (s *CommissionService) recordCommission(
	ctx context.Context,
	input DistributionInput,
	referrer *models.Account,
	level int,
	now time.Time,
) (*CommissionEntry, error) {
	rate, ok := LookupCommission(input.Plan, level)
	if !ok {
		return nil, fmt.Errorf("no commission rate for %s level %d", input.Plan, level)
	}

	commission := &models.Commission{
		EventID:            input.EventID,
		ReferrerID:         referrer.ID,
		ReferredID:         input.SubscriberID,
		Level:              level,
		SubscriptionPlan:   input.Plan,
		CommissionAmount:   rate.Amount,
		CommissionPercent:  rate.Percent,
		PayoutEligibleDate: now.Add(s.holdPeriod),
		CreatedAt:          now,
	}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateCommission(ctx, commission); err != nil {
			return err
		}
		return tx.AddEarnings(ctx, referrer.ID, rate.Amount)
	})
	if err != nil {
		return nil, err
	}

	amount, _ := rate.Amount.Float64()
	monitoring.CommissionsCreatedTotal.WithLabelValues(string(input.Plan), strconv.Itoa(level)).Inc()
	monitoring.CommissionAmountTotal.WithLabelValues(string(input.Plan)).Add(amount)

	return &CommissionEntry{
		CommissionID:       commission.ID,
		ReferrerID:         referrer.ID,
		ReferrerEmail:      referrer.Email,
		Level:              level,
		Amount:             rate.Amount,
		Percent:            rate.Percent,
		PayoutEligibleDate: commission.PayoutEligibleDate,
	}, nil
}

// storedEntry rebuilds the entry of a commission written by an earlier run.
// The referrer is loaded when the walk did not pass through it.
func (s *CommissionService) storedEntry(ctx context.Context, c models.Commission, referrer *models.Account) CommissionEntry {
	entry := CommissionEntry{
		CommissionID:       c.ID,
		ReferrerID:         c.ReferrerID,
		Level:              c.Level,
		Amount:             c.CommissionAmount,
		Percent:            c.CommissionPercent,
		PayoutEligibleDate: c.PayoutEligibleDate,
	}
	if referrer == nil || referrer.ID != c.ReferrerID {
		loaded, err := s.repo.GetAccountByID(ctx, c.ReferrerID)
		if err != nil {
			logging.Logger.Warn("failed to load commission referrer",
				zap.Uint("commission_id", c.ID),
				zap.Uint("referrer_id", c.ReferrerID),
				zap.Error(err))
			return entry
		}
		referrer = loaded
	}
	entry.ReferrerEmail = referrer.Email
	return entry
}

func (s *CommissionService) commissionAtLevel(ctx context.Context, eventID string, level int) (models.Commission, bool) {
	commissions, err := s.repo.GetCommissionsByEvent(ctx, eventID)
	if err != nil {
		return models.Commission{}, false
	}
	for _, c := range commissions {
		if c.Level == level {
			return c, true
		}
	}
	return models.Commission{}, false
}

// notifyAsync tells the upline about new commissions without blocking the caller
func (s *CommissionService) notifyAsync(result *DistributionResult) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.notifier.NotifyCommissions(ctx, result); err != nil {
			logging.Logger.Warn("commission notification failed",
				zap.String("event_id", result.EventID),
				zap.Error(err))
		}
	}()
}

// ListCommissions returns a referrer's commissions, newest first
func (s *CommissionService) ListCommissions(ctx context.Context, referrerID uint, limit, offset int) ([]models.Commission, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListCommissionsByReferrer(ctx, referrerID, limit, offset)
}
