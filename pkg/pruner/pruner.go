// Package pruner drives one pruning invocation: list the remote snapshots,
// evaluate the retention policy, build the deletion plan, execute it. The
// whole decision is made against one consistent listing; no stage re-queries
// the store mid-plan.
package pruner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/snapsync/snap-prune/pkg/catalog"
	"github.com/snapsync/snap-prune/pkg/executor"
	"github.com/snapsync/snap-prune/pkg/plan"
	"github.com/snapsync/snap-prune/pkg/retention"
	"github.com/snapsync/snap-prune/pkg/transport"
)

// Runner holds everything one invocation needs. Each host's pruning decision
// is independent; there is no cross-host atomicity.
type Runner struct {
	Transport transport.Transport
	Policy    *retention.Policy
	Hosts     []string
	Datasets  []string
	DryRun    bool

	Concurrency int64
	OpTimeout   time.Duration

	logger *zap.Logger
}

// HostReport is the outcome for one host.
type HostReport struct {
	Host     string
	Unparsed int
	Summary  *executor.RunSummary
	Plan     *plan.Plan
}

// Report is the outcome of one invocation, in host order.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Hosts      []*HostReport
}

// TotalFailed counts failed deletions across all hosts.
func (r *Report) TotalFailed() int {
	n := 0
	for _, h := range r.Hosts {
		n += h.Summary.TotalFailed()
	}
	return n
}

// New returns a runner with defaults applied.
func New(tr transport.Transport, policy *retention.Policy, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Transport:   tr,
		Policy:      policy,
		Concurrency: executor.DefaultConcurrency,
		OpTimeout:   executor.DefaultOpTimeout,
		logger:      logger,
	}
}

// Run prunes every configured (host, dataset) pair. Configuration errors
// surface before any remote access; catalog errors and safety violations
// abort before any deletion. Per-snapshot delete failures are collected into
// the report instead.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := r.Policy.Validate(); err != nil {
		return nil, err
	}
	if len(r.Hosts) == 0 {
		return nil, &retention.PolicyError{Reason: "no hosts configured"}
	}
	if len(r.Datasets) == 0 {
		return nil, &retention.PolicyError{Reason: "no datasets configured"}
	}

	report := &Report{StartedAt: time.Now().UTC(), DryRun: r.DryRun}
	exec := executor.New(r.Transport, r.logger)
	exec.Concurrency = r.Concurrency
	exec.OpTimeout = r.OpTimeout

	for _, host := range r.Hosts {
		hr, err := r.runHost(ctx, exec, host)
		if err != nil {
			return nil, err
		}
		report.Hosts = append(report.Hosts, hr)
		if ctx.Err() != nil {
			// Partial report; stop starting new hosts.
			break
		}
	}
	report.FinishedAt = time.Now().UTC()
	return report, nil
}

func (r *Runner) runHost(ctx context.Context, exec *executor.Executor, host string) (*HostReport, error) {
	cat, err := r.listHost(ctx, host)
	if err != nil {
		return nil, err
	}

	p := plan.New(host)
	policyDesc := r.Policy.String()
	for _, dataset := range cat.DatasetNames() {
		existing := cat.Datasets[dataset]
		retained := r.Policy.Evaluate(existing)
		dp, err := plan.Build(dataset, existing, retained, r.Policy.MinimumRetain, policyDesc)
		if err != nil {
			return nil, err
		}
		p.Add(dp)
	}

	r.logger.Info("deletion plan ready",
		zap.String("host", host),
		zap.Int("datasets", len(p.Datasets)),
		zap.Int("deletions", p.TotalDeletions()),
		zap.Bool("dry_run", r.DryRun))

	// Execute's only error is the run context's cancellation; the partial
	// summary still belongs in the report, and Run stops after this host.
	summary, _ := exec.Execute(ctx, p, r.DryRun)
	return &HostReport{Host: host, Unparsed: cat.Unparsed, Summary: summary, Plan: p}, nil
}

// listHost gathers the listings of every configured dataset on host into one
// catalog. Each list call runs under the per-operation timeout.
func (r *Runner) listHost(ctx context.Context, host string) (*catalog.Catalog, error) {
	timeout := r.OpTimeout
	if timeout <= 0 {
		timeout = executor.DefaultOpTimeout
	}
	var lines []string
	for _, dataset := range r.Datasets {
		listCtx, cancel := context.WithTimeout(ctx, timeout)
		dsLines, err := r.Transport.List(listCtx, host, dataset)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("pruner: listing %s:%s: %w", host, dataset, err)
		}
		lines = append(lines, dsLines...)
	}
	return catalog.Parse(host, lines)
}
