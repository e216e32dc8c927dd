// Package scheduler runs the proactive refresh loop: every tick it scans for
// active credentials entering the expiry lookahead window and refreshes them
// before callers ever see a stale token. Housekeeping (state nonce purge,
// audit retention) rides the same loop on longer cadences.
package scheduler

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/adsboard/adsboard/internal/audit/domain"
	"github.com/adsboard/adsboard/internal/clock"
	credentialdomain "github.com/adsboard/adsboard/internal/credential/domain"
	obsmetrics "github.com/adsboard/adsboard/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrInvalidConfig is returned when the scheduler is constructed without its
// required collaborators.
var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log       *zap.Logger
	Repo      credentialdomain.Repository
	Refresher credentialdomain.Refresher
	AuditSvc  auditdomain.Service
	Clock     clock.Clock
	Config    Config `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	repo      credentialdomain.Repository
	refresher credentialdomain.Refresher
	auditSvc  auditdomain.Service
	clock     clock.Clock

	nextStatePurge time.Time
	nextRetention  time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Repo == nil || p.Refresher == nil || p.AuditSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		repo:      p.Repo,
		refresher: p.Refresher,
		auditSvc:  p.AuditSvc,
		clock:     p.Clock,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	s.log.Warn("job failed", zap.String("job", name), zap.Error(err))
	return err
}

// RunOnce executes one scan iteration. Errors are joined, never fatal: the
// next tick always runs.
func (s *Scheduler) RunOnce(parent context.Context) error {
	obsmetrics.Token().SchedulerRuns.Inc()
	now := s.clock.Now()

	err := s.runJob(parent, "refresh_scan", s.RefreshScanJob)

	if !now.Before(s.nextStatePurge) {
		err = errors.Join(err, s.runJob(parent, "purge_states", s.PurgeStatesJob))
		s.nextStatePurge = now.Add(s.cfg.StatePurgeEvery)
	}
	if !now.Before(s.nextRetention) {
		err = errors.Join(err, s.runJob(parent, "audit_retention", s.AuditRetentionJob))
		s.nextRetention = now.Add(s.cfg.RetentionEvery)
	}

	if err != nil {
		obsmetrics.Token().SchedulerErrors.Inc()
	}
	return err
}

// RefreshScanJob refreshes every active credential whose expiry falls inside
// the lookahead window. A credential that needs reauthorization is left in
// place: its failure is already recorded and the operator has to reconnect.
func (s *Scheduler) RefreshScanJob(ctx context.Context) error {
	cutoff := s.clock.Now().Add(s.cfg.LookaheadWindow)
	creds, err := s.repo.ListActiveExpiringBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	var jobErr error
	for i := range creds {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		cred := &creds[i]

		s.log.Info("refreshing expiring credential",
			zap.Int64("credential_id", int64(cred.ID)),
			zap.Time("expires_at", cred.ExpiresAt),
		)
		if _, err := s.refresher.RefreshCredential(ctx, cred); err != nil {
			if errors.Is(err, credentialdomain.ErrReauthorizationRequired) {
				s.log.Warn("credential needs reauthorization; skipping until reconnected",
					zap.Int64("credential_id", int64(cred.ID)),
				)
				continue
			}
			jobErr = errors.Join(jobErr, err)
		}
	}
	return jobErr
}

// PurgeStatesJob deletes consumed and expired authorization nonces.
func (s *Scheduler) PurgeStatesJob(ctx context.Context) error {
	deleted, err := s.repo.PurgeExpiredStates(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.log.Debug("purged oauth states", zap.Int64("deleted", deleted))
	}
	return nil
}

// AuditRetentionJob trims audit rows older than the retention horizon.
func (s *Scheduler) AuditRetentionJob(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.AuditRetention)
	deleted, err := s.auditSvc.Purge(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.log.Info("audit retention purge", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return nil
}

// RunForever ticks RunOnce until the context is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
