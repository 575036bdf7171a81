package service

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"dedicated/internal/redis"
	"dedicated/internal/repository"
)

// SchedulerLockName is the redis lock that keeps sweeps to one replica.
const SchedulerLockName = "scheduler:autocomplete"

// SweepReport counts what a single sweep did.
type SweepReport struct {
	Completed int
	Expired   int
	Captured  int
	Failed    int
	Skipped   bool // Another replica held the lock
}

// AutoCompleteScheduler periodically ends ACTIVE bookings whose reserved
// duration has elapsed, expires bookings nobody picked up and retries
// payment captures that failed when a booking ended.
type AutoCompleteScheduler struct {
	bookings    repository.BookingRepository
	lifecycle   *BookingService
	locks       redis.LockStoreInterface
	nr          *newrelic.Application
	interval    time.Duration
	expireGrace time.Duration
	log         logrus.FieldLogger
	now         func() time.Time
}

// NewAutoCompleteScheduler creates a new AutoCompleteScheduler. locks and
// nr may be nil.
func NewAutoCompleteScheduler(
	bookings repository.BookingRepository,
	lifecycle *BookingService,
	locks redis.LockStoreInterface,
	nr *newrelic.Application,
	interval time.Duration,
	expireGrace time.Duration,
	log logrus.FieldLogger,
) *AutoCompleteScheduler {
	return &AutoCompleteScheduler{
		bookings:    bookings,
		lifecycle:   lifecycle,
		locks:       locks,
		nr:          nr,
		interval:    interval,
		expireGrace: expireGrace,
		log:         log,
		now:         time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *AutoCompleteScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("auto-complete scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("auto-complete scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. A failure on one booking is logged and the pass
// continues; the booking is retried on the next tick.
func (s *AutoCompleteScheduler) Sweep(ctx context.Context) SweepReport {
	txn := s.nr.StartTransaction("scheduler/auto-complete")
	defer txn.End()
	ctx = newrelic.NewContext(ctx, txn)

	var report SweepReport

	if s.locks != nil {
		token, err := s.locks.Acquire(ctx, SchedulerLockName, s.lockTTL())
		switch {
		case err != nil:
			// Ending is idempotent, so sweeping without the lock is safe.
			s.log.WithError(err).Warn("scheduler lock unavailable, sweeping anyway")
		case token == "":
			report.Skipped = true
			return report
		default:
			defer func() {
				if err := s.locks.Release(context.WithoutCancel(ctx), SchedulerLockName, token); err != nil {
					s.log.WithError(err).Warn("failed to release scheduler lock")
				}
			}()
		}
	}

	s.recoverCaptures(ctx, &report)
	s.completeOverdue(ctx, &report)
	s.expireUnassigned(ctx, &report)

	if report.Completed > 0 || report.Expired > 0 || report.Captured > 0 || report.Failed > 0 {
		s.log.WithFields(logrus.Fields{
			"completed": report.Completed,
			"expired":   report.Expired,
			"captured":  report.Captured,
			"failed":    report.Failed,
		}).Info("scheduler sweep finished")
	}
	return report
}

func (s *AutoCompleteScheduler) lockTTL() time.Duration {
	ttl := s.interval / 2
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// recoverCaptures runs before completeOverdue so a capture that fails during
// this sweep is first retried on the next one.
func (s *AutoCompleteScheduler) recoverCaptures(ctx context.Context, report *SweepReport) {
	pending, err := s.bookings.ListUncapturedCompleted(ctx)
	if err != nil {
		report.Failed++
		s.log.WithError(err).Error("failed to list uncaptured bookings")
		return
	}

	for _, b := range pending {
		if _, err := s.lifecycle.RecoverCapture(ctx, b.ID); err != nil {
			report.Failed++
			s.log.WithError(err).WithField("booking_id", b.ID).Warn("payment capture retry failed")
			continue
		}
		report.Captured++
	}
}

func (s *AutoCompleteScheduler) completeOverdue(ctx context.Context, report *SweepReport) {
	active, err := s.bookings.ListActiveStarted(ctx)
	if err != nil {
		report.Failed++
		s.log.WithError(err).Error("failed to list active bookings")
		return
	}

	now := s.now()
	for _, b := range active {
		if b.StartedAt.IsZero() || now.Before(b.StartedAt.Add(b.Duration())) {
			continue
		}

		result, err := s.lifecycle.End(ctx, b.ID, "")
		if result != nil {
			// Completed even when settlement failed; captures are retried
			// by recoverCaptures.
			report.Completed++
		}
		if err != nil {
			report.Failed++
			s.log.WithError(err).WithField("booking_id", b.ID).Error("auto-complete failed")
		}
	}
}

func (s *AutoCompleteScheduler) expireUnassigned(ctx context.Context, report *SweepReport) {
	if s.expireGrace <= 0 {
		return
	}

	stale, err := s.bookings.ListUnassignedStartingBefore(ctx, s.now().Add(-s.expireGrace))
	if err != nil {
		report.Failed++
		s.log.WithError(err).Error("failed to list unassigned bookings")
		return
	}

	for _, b := range stale {
		if _, err := s.lifecycle.Expire(ctx, b.ID); err != nil {
			report.Failed++
			s.log.WithError(err).WithField("booking_id", b.ID).Error("expiry failed")
			continue
		}
		report.Expired++
	}
}
