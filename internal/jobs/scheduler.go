package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"referral-engine/internal/logging"
	"referral-engine/internal/models"
	"referral-engine/internal/services"
)

// Releaser moves matured commissions out of their hold
type Releaser interface {
	ReleaseMaturedCommissions(ctx context.Context, accountID *uint) (int, error)
}

// Auditor persists a network integrity snapshot
type Auditor interface {
	SnapshotAudit(ctx context.Context) (*models.IntegritySnapshot, error)
}

// Scheduler runs the periodic maintenance jobs
type Scheduler struct {
	cron     *cron.Cron
	releaser Releaser
	auditor  Auditor
	timeout  time.Duration
}

// NewScheduler creates a scheduler; call Start to begin running jobs
func NewScheduler(releaser Releaser, auditor Auditor) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		releaser: releaser,
		auditor:  auditor,
		timeout:  5 * time.Minute,
	}
}

// Register adds both jobs with their cron specs
func (s *Scheduler) Register(releaseSpec, auditSpec string) error {
	if _, err := s.cron.AddFunc(releaseSpec, func() { s.ReleaseCommissions() }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(auditSpec, func() { s.SnapshotIntegrity() }); err != nil {
		return err
	}
	logging.Logger.Info("maintenance jobs scheduled",
		zap.String("release", releaseSpec),
		zap.String("audit", auditSpec))
	return nil
}

// Start begins the cron loop in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// ReleaseCommissions releases every matured commission
func (s *Scheduler) ReleaseCommissions() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	released, err := s.releaser.ReleaseMaturedCommissions(ctx, nil)
	if err != nil {
		logging.Logger.Error("[CommissionRelease] job failed",
			zap.Int("released", released),
			zap.Error(err))
		return
	}
	logging.Logger.Info("[CommissionRelease] job finished",
		zap.Int("released", released),
		zap.Duration("took", time.Since(start)))
}

// SnapshotIntegrity audits the referral network and stores the summary
func (s *Scheduler) SnapshotIntegrity() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	snapshot, err := s.auditor.SnapshotAudit(ctx)
	if err != nil {
		logging.Logger.Error("[IntegrityAudit] job failed", zap.Error(err))
		return
	}
	if !snapshot.Healthy {
		logging.Logger.Warn("[IntegrityAudit] referral network has findings",
			zap.Int("missing", snapshot.MissingCodes),
			zap.Int("duplicates", snapshot.DuplicateGroups),
			zap.Int("malformed", snapshot.MalformedCodes),
			zap.Int("broken", snapshot.BrokenChains),
			zap.Int("truncated", snapshot.TruncatedChains))
	}
}

var (
	_ Releaser = (*services.PayoutService)(nil)
	_ Auditor  = (*services.IntegrityService)(nil)
)
