package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/spec-kit/service-desk/internal/domain"
)

// jobRunner is the slice of worker.Jobs the CLI drives.
type jobRunner interface {
	CheckSla(ctx context.Context) (domain.ScanReport, error)
	ProcessEscalations(ctx context.Context) (domain.ScanReport, error)
	RecalculateSla(ctx context.Context, policyID *string) (domain.ScanReport, error)
}

// runnerFactory builds the runner lazily so --help works without storage.
type runnerFactory func(ctx context.Context) (jobRunner, func(), error)

func newRootCmd(factory runnerFactory) *cobra.Command {
	root := &cobra.Command{
		Use:   "slactl",
		Short: "Run service desk SLA jobs",
		Long: `slactl runs the periodic SLA jobs once and prints a JSON report.

Schedule it from cron or a Kubernetes CronJob. Every job is idempotent and
concurrent invocations of the same job skip while another holds its lock.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "check-sla",
		Short: "Flag breached milestones, then emit near-breach signals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, factory, func(ctx context.Context, jobs jobRunner) (domain.ScanReport, error) {
				return jobs.CheckSla(ctx)
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "process-escalations",
		Short: "Evaluate escalation rules and run triggered actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, factory, func(ctx context.Context, jobs jobRunner) (domain.ScanReport, error) {
				return jobs.ProcessEscalations(ctx)
			})
		},
	})

	var policyID string
	recalculate := &cobra.Command{
		Use:   "recalculate-sla",
		Short: "Recompute due dates of open tickets from their stored policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter *string
			if policyID != "" {
				filter = &policyID
			}
			return runJob(cmd, factory, func(ctx context.Context, jobs jobRunner) (domain.ScanReport, error) {
				return jobs.RecalculateSla(ctx, filter)
			})
		},
	}
	recalculate.Flags().StringVar(&policyID, "policy", "", "only recalculate tickets of this SLA policy")
	root.AddCommand(recalculate)

	return root
}

func runJob(cmd *cobra.Command, factory runnerFactory, run func(context.Context, jobRunner) (domain.ScanReport, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	jobs, cleanup, err := factory(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	report, runErr := run(ctx, jobs)
	if err := printReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("%s: %w", report.Job, runErr)
	}
	return nil
}

func printReport(w io.Writer, report domain.ScanReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
