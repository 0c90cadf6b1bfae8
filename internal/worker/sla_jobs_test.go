package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/persistence"
)

type fakeScanner struct {
	calls         []string
	breachErr     error
	recalculateOf *string
}

func (f *fakeScanner) CheckBreaches(context.Context) (domain.ScanReport, error) {
	f.calls = append(f.calls, "breaches")
	return domain.ScanReport{Scanned: 3, Flagged: 2, Failed: 1}, f.breachErr
}

func (f *fakeScanner) CheckNearBreaches(context.Context) (domain.ScanReport, error) {
	f.calls = append(f.calls, "near")
	return domain.ScanReport{Scanned: 4, Emitted: 1}, nil
}

func (f *fakeScanner) Recalculate(_ context.Context, policyID *string) (domain.ScanReport, error) {
	f.calls = append(f.calls, "recalculate")
	f.recalculateOf = policyID
	return domain.ScanReport{Scanned: 5, Recalculated: 5}, nil
}

type fakeEscalations struct{ runs int }

func (f *fakeEscalations) ProcessPendingEscalations(context.Context) (domain.ScanReport, error) {
	f.runs++
	return domain.ScanReport{Scanned: 2, Triggered: 1}, nil
}

type fakeLocker struct {
	held     map[string]bool
	err      error
	released []string
}

func (l *fakeLocker) Acquire(_ context.Context, name string, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held[name] {
		return nil, fmt.Errorf("%s: %w", name, persistence.ErrLockHeld)
	}
	return func() { l.released = append(l.released, name) }, nil
}

func newJobs(t *testing.T, scanner *fakeScanner, esc *fakeEscalations, locker persistence.Locker) *Jobs {
	return NewJobs(JobsDependencies{
		Scanner:    scanner,
		Escalation: esc,
		Locker:     locker,
		Logger:     zaptest.NewLogger(t),
	})
}

func TestCheckSla_RunsBothScansAndMergesReports(t *testing.T) {
	scanner := &fakeScanner{}
	locker := &fakeLocker{}
	jobs := newJobs(t, scanner, &fakeEscalations{}, locker)

	report, err := jobs.CheckSla(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"breaches", "near"}, scanner.calls)
	assert.Equal(t, domain.ScanReport{Job: JobCheckSla, Scanned: 7, Flagged: 2, Emitted: 1, Failed: 1}, report)
	assert.Equal(t, []string{JobCheckSla}, locker.released)
}

func TestCheckSla_NearBreachRunsAfterBreachFailure(t *testing.T) {
	scanner := &fakeScanner{breachErr: errors.New("list failed")}
	jobs := newJobs(t, scanner, &fakeEscalations{}, nil)

	_, err := jobs.CheckSla(context.Background())

	require.Error(t, err)
	assert.Equal(t, []string{"breaches", "near"}, scanner.calls)
}

func TestJobs_SkipWhenLockHeld(t *testing.T) {
	scanner := &fakeScanner{}
	esc := &fakeEscalations{}
	locker := &fakeLocker{held: map[string]bool{"process-escalations": true}}
	jobs := newJobs(t, scanner, esc, locker)

	report, err := jobs.ProcessEscalations(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, 0, esc.runs)

	// Other jobs use their own lock.
	_, err = jobs.CheckSla(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, scanner.calls)
}

func TestJobs_LockerFailureIsReturned(t *testing.T) {
	jobs := newJobs(t, &fakeScanner{}, &fakeEscalations{}, &fakeLocker{err: errors.New("boom")})

	_, err := jobs.ProcessEscalations(context.Background())
	assert.Error(t, err)
}

func TestRecalculateSla_PassesPolicyFilter(t *testing.T) {
	scanner := &fakeScanner{}
	jobs := newJobs(t, scanner, &fakeEscalations{}, &fakeLocker{})
	policyID := "p-1"

	report, err := jobs.RecalculateSla(context.Background(), &policyID)
	require.NoError(t, err)

	require.NotNil(t, scanner.recalculateOf)
	assert.Equal(t, "p-1", *scanner.recalculateOf)
	assert.Equal(t, "recalculate-sla", report.Job)
	assert.Equal(t, 5, report.Recalculated)
}
