package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/escalation"
	"github.com/spec-kit/service-desk/internal/observability"
	"github.com/spec-kit/service-desk/internal/persistence"
	"github.com/spec-kit/service-desk/internal/sla"
)

// JobCheckSla runs the breach scan followed by the near-breach scan.
const JobCheckSla = "check-sla"

// SlaScanner is the part of the SLA engine the jobs drive.
type SlaScanner interface {
	CheckBreaches(ctx context.Context) (domain.ScanReport, error)
	CheckNearBreaches(ctx context.Context) (domain.ScanReport, error)
	Recalculate(ctx context.Context, policyID *string) (domain.ScanReport, error)
}

// EscalationProcessor runs the escalation scan.
type EscalationProcessor interface {
	ProcessPendingEscalations(ctx context.Context) (domain.ScanReport, error)
}

// Jobs runs the scheduled SLA jobs under a per-job scan lock. Both the CLI and
// the admin API call into it.
type Jobs struct {
	scanner    SlaScanner
	escalation EscalationProcessor
	locker     persistence.Locker
	lockTTL    time.Duration
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// JobsDependencies bundles collaborators for Jobs.
type JobsDependencies struct {
	Scanner    SlaScanner
	Escalation EscalationProcessor
	Locker     persistence.Locker
	LockTTL    time.Duration
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewJobs constructs the job runner.
func NewJobs(deps JobsDependencies) *Jobs {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Jobs{
		scanner:    deps.Scanner,
		escalation: deps.Escalation,
		locker:     deps.Locker,
		lockTTL:    ttl,
		metrics:    deps.Metrics,
		logger:     logger.Named("jobs"),
	}
}

// CheckSla flags breaches, then emits near-breach signals. The near-breach
// scan still runs when the breach scan fails to list candidates.
func (j *Jobs) CheckSla(ctx context.Context) (domain.ScanReport, error) {
	return j.locked(ctx, JobCheckSla, func(ctx context.Context) (domain.ScanReport, error) {
		report := domain.ScanReport{Job: JobCheckSla}
		breaches, breachErr := j.scanner.CheckBreaches(ctx)
		report.Merge(breaches)
		near, nearErr := j.scanner.CheckNearBreaches(ctx)
		report.Merge(near)
		return report, errors.Join(breachErr, nearErr)
	})
}

// ProcessEscalations evaluates escalation rules for open tickets.
func (j *Jobs) ProcessEscalations(ctx context.Context) (domain.ScanReport, error) {
	return j.locked(ctx, escalation.JobProcessEscalations, j.escalation.ProcessPendingEscalations)
}

// RecalculateSla re-applies stored policies, optionally for one policy only.
func (j *Jobs) RecalculateSla(ctx context.Context, policyID *string) (domain.ScanReport, error) {
	return j.locked(ctx, sla.JobRecalculate, func(ctx context.Context) (domain.ScanReport, error) {
		return j.scanner.Recalculate(ctx, policyID)
	})
}

func (j *Jobs) locked(ctx context.Context, name string, run func(context.Context) (domain.ScanReport, error)) (domain.ScanReport, error) {
	release := func() {}
	if j.locker != nil {
		var err error
		release, err = j.locker.Acquire(ctx, name, j.lockTTL)
		if errors.Is(err, persistence.ErrLockHeld) {
			j.metrics.RecordLockSkip(name)
			j.logger.Info("job already running elsewhere; skipping", zap.String("job", name))
			return domain.ScanReport{Job: name, Skipped: true}, nil
		}
		if err != nil {
			return domain.ScanReport{Job: name}, fmt.Errorf("acquire %s lock: %w", name, err)
		}
	}
	defer release()

	started := time.Now()
	report, err := run(ctx)
	report.Job = name

	fields := []zap.Field{
		zap.String("job", name),
		zap.Int("scanned", report.Scanned),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", time.Since(started)),
	}
	if err != nil {
		j.logger.Error("job failed", append(fields, zap.Error(err))...)
		return report, err
	}
	j.logger.Info("job finished", fields...)
	return report, nil
}
