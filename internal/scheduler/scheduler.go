// Package scheduler runs the recurring billing sweeps in process.
// Deployments that trigger sweeps externally leave it disabled and call the
// cron endpoints instead.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"

	"github.com/memberbill/memberbill/internal/config"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/service"
	"github.com/memberbill/memberbill/internal/types"
)

type Scheduler struct {
	cfg     *config.Configuration
	logger  *logger.Logger
	cron    *cron.Cron
	billing service.BillingCycleService
	renewal service.RenewalService
}

func New(
	cfg *config.Configuration,
	logger *logger.Logger,
	billing service.BillingCycleService,
	renewal service.RenewalService,
) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		logger:  logger,
		cron:    cron.New(),
		billing: billing,
		renewal: renewal,
	}
}

// Start registers the configured jobs and launches the scheduler. An empty
// spec disables its job.
func (s *Scheduler) Start() error {
	if !s.cfg.Cron.Enabled {
		s.logger.Infow("in process scheduler disabled")
		return nil
	}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"scheduled_billings", s.cfg.Cron.ScheduledBillingsSpec, s.runScheduledBillings},
		{"automatic_renewals", s.cfg.Cron.AutomaticRenewalsSpec, s.runAutomaticRenewals},
		{"scheduled_reminders", s.cfg.Cron.ScheduledRemindersSpec, s.runScheduledReminders},
		{"overdue_renewals", s.cfg.Cron.OverdueRenewalsSpec, s.runOverdueRenewals},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}

		job := job
		if _, err := s.cron.AddFunc(job.spec, func() {
			ctx := s.jobContext()
			s.logger.Infow("starting cron job", "job", job.name)
			if err := job.run(ctx); err != nil {
				s.logger.Errorw("cron job failed", "job", job.name, "error", err)
			}
		}); err != nil {
			return ierr.WithError(err).
				WithHint("Invalid cron spec for job " + job.name).
				Mark(ierr.ErrConfiguration)
		}

		s.logger.Infow("registered cron job", "job", job.name, "spec", job.spec)
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// jobContext builds the tenant scoped context sweeps run under
func (s *Scheduler) jobContext() context.Context {
	tenantID := s.cfg.Cron.TenantID
	if tenantID == "" {
		tenantID = types.DefaultTenantID
	}

	ctx := types.SetTenantID(context.Background(), tenantID)
	ctx = types.SetUserID(ctx, types.DefaultUserID)
	if s.cfg.Cron.EnvironmentID != "" {
		ctx = types.SetEnvironmentID(ctx, s.cfg.Cron.EnvironmentID)
	}
	return ctx
}

func (s *Scheduler) runScheduledBillings(ctx context.Context) error {
	resp, err := s.billing.ProcessScheduledBillings(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	s.logger.Infow("scheduled billings sweep completed",
		"processed", resp.Processed,
		"succeeded", resp.Succeeded,
		"failed", resp.Failed)
	return nil
}

func (s *Scheduler) runAutomaticRenewals(ctx context.Context) error {
	resp, err := s.renewal.ProcessAutomaticRenewals(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	s.logger.Infow("automatic renewals sweep completed",
		"processed", resp.Processed,
		"succeeded", resp.Succeeded,
		"failed", resp.Failed)
	return nil
}

func (s *Scheduler) runScheduledReminders(ctx context.Context) error {
	resp, err := s.renewal.SendScheduledReminders(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	s.logger.Infow("scheduled reminders sweep completed",
		"sent", resp.Sent,
		"skipped", resp.Skipped,
		"failed", resp.Failed)
	return nil
}

func (s *Scheduler) runOverdueRenewals(ctx context.Context) error {
	resp, err := s.renewal.UpdateOverdueRenewals(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	s.logger.Infow("overdue renewals sweep completed",
		"moved_to_grace", resp.MovedToGrace,
		"expired", resp.Expired,
		"unchanged", resp.Unchanged)
	return nil
}

// RegisterHooks ties the scheduler to the application lifecycle
func RegisterHooks(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
}
