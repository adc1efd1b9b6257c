// Package executor issues the deletions of a plan against the remote
// transport, isolating per-item failures and producing a run summary.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/snapsync/snap-prune/pkg/plan"
	"github.com/snapsync/snap-prune/pkg/transport"
)

const (
	// DefaultConcurrency bounds parallel dataset workers.
	DefaultConcurrency = 4

	// DefaultOpTimeout bounds one remote delete call.
	DefaultOpTimeout = 2 * time.Minute
)

// Executor runs deletion plans. Datasets run concurrently up to Concurrency;
// the deletion sequence within one dataset stays strictly ordered, oldest
// first.
type Executor struct {
	Transport   transport.Transport
	Concurrency int64
	OpTimeout   time.Duration

	logger *zap.Logger
}

// New returns an executor with defaults applied.
func New(tr transport.Transport, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Transport:   tr,
		Concurrency: DefaultConcurrency,
		OpTimeout:   DefaultOpTimeout,
		logger:      logger,
	}
}

// Execute runs one plan. With dryRun set, no delete call is issued and the
// summary reports what would be deleted. Cancelling ctx stops new delete
// calls promptly; in-flight calls finish and the partial summary is still
// returned alongside the context error.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, dryRun bool) (*RunSummary, error) {
	summary := NewRunSummary(p.Host, dryRun)

	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	sem := semaphore.NewWeighted(concurrency)

	names := p.DatasetNames()
	partials := make([]*DatasetSummary, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		if err := sem.Acquire(gctx, 1); err != nil {
			// Cancelled before this dataset started; report it untouched.
			partials[i] = untouchedSummary(p.Datasets[name])
			continue
		}
		i, dp := i, p.Datasets[name]
		g.Go(func() error {
			defer sem.Release(1)
			partials[i] = e.executeDataset(gctx, p.Host, dp, dryRun)
			return nil
		})
	}
	_ = g.Wait()

	for _, ds := range partials {
		summary.Merge(ds)
	}
	return summary, ctx.Err()
}

// executeDataset walks one dataset's deletions in order. A cancelled context
// stops before the next call; the call already underway is never interrupted
// because each delete runs under its own timeout context.
func (e *Executor) executeDataset(ctx context.Context, host string, dp *plan.DatasetPlan, dryRun bool) *DatasetSummary {
	ds := &DatasetSummary{
		Dataset:   dp.Dataset,
		Evaluated: dp.Evaluated,
		Retained:  dp.Retained,
		Planned:   len(dp.Deletions),
	}

	for _, del := range dp.Deletions {
		if ctx.Err() != nil {
			e.logger.Warn("cancelled, leaving remaining deletions unattempted",
				zap.String("host", host),
				zap.String("dataset", dp.Dataset),
				zap.Int("remaining", ds.Planned-ds.Deleted-ds.Failed))
			break
		}

		snap := del.Snapshot
		if dryRun {
			e.logger.Info("would delete snapshot",
				zap.String("host", host),
				zap.String("dataset", dp.Dataset),
				zap.String("snapshot", snap.Name),
				zap.String("reason", del.Reason))
			ds.Deleted++
			ds.BytesReclaimed += uint64(snap.Size)
			continue
		}

		err := e.deleteOne(host, dp.Dataset, snap.Name)
		switch {
		case err == nil:
			ds.Deleted++
			ds.BytesReclaimed += uint64(snap.Size)
			e.logger.Info("deleted snapshot",
				zap.String("host", host),
				zap.String("dataset", dp.Dataset),
				zap.String("snapshot", snap.Name))
		case transport.IsNotFound(err):
			// Already gone, e.g. a concurrent run got there first. Counts as
			// deleted so repeated runs converge.
			ds.Deleted++
		default:
			ds.Failed++
			ds.Failures = append(ds.Failures, fmt.Sprintf("%s: %v", snap.Name, err))
			e.logger.Error("failed to delete snapshot",
				zap.String("host", host),
				zap.String("dataset", dp.Dataset),
				zap.String("snapshot", snap.Name),
				zap.Error(err))
		}
	}
	return ds
}

// deleteOne issues a single delete under its own timeout, detached from the
// run context so cancellation lets it finish.
func (e *Executor) deleteOne(host, dataset, name string) error {
	timeout := e.OpTimeout
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	opCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return e.Transport.Delete(opCtx, host, dataset, name)
}

func untouchedSummary(dp *plan.DatasetPlan) *DatasetSummary {
	return &DatasetSummary{
		Dataset:   dp.Dataset,
		Evaluated: dp.Evaluated,
		Retained:  dp.Retained,
		Planned:   len(dp.Deletions),
	}
}
