package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapsync/snap-prune/pkg/catalog"
	"github.com/snapsync/snap-prune/pkg/plan"
	"github.com/snapsync/snap-prune/pkg/transport"
)

func planWith(host string, datasets map[string][]string) *plan.Plan {
	p := plan.New(host)
	for dataset, names := range datasets {
		dp := &plan.DatasetPlan{Dataset: dataset, Evaluated: len(names) + 2, Retained: 2}
		for i, name := range names {
			dp.Deletions = append(dp.Deletions, plan.Deletion{
				Snapshot: catalog.Snapshot{
					Host:      host,
					Dataset:   dataset,
					Name:      name,
					CreatedAt: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
					Size:      100,
				},
				Reason: "not selected by any retention rule (test)",
			})
		}
		p.Add(dp)
	}
	return p
}

func TestExecute_deletesOldestFirst(t *testing.T) {
	fake := transport.NewFake()
	p := planWith("backup01", map[string][]string{
		"home": {"home-2024-01-01", "home-2024-01-02", "home-2024-01-03"},
	})

	summary, err := New(fake, nil).Execute(context.Background(), p, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"home-2024-01-01", "home-2024-01-02", "home-2024-01-03"}, fake.Deleted())
	ds := summary.Datasets["home"]
	require.NotNil(t, ds)
	assert.Equal(t, 3, ds.Deleted)
	assert.Equal(t, 0, ds.Failed)
	assert.Equal(t, uint64(300), ds.BytesReclaimed)
	assert.Equal(t, 5, ds.Evaluated)
	assert.Equal(t, 2, ds.Retained)
}

func TestExecute_dryRunIssuesNoDeletes(t *testing.T) {
	fake := transport.NewFake()
	p := planWith("backup01", map[string][]string{
		"home": {"home-2024-01-01", "home-2024-01-02"},
	})

	summary, err := New(fake, nil).Execute(context.Background(), p, true)
	require.NoError(t, err)

	assert.Equal(t, 0, fake.DeleteCalls())
	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.TotalDeleted())
}

func TestExecute_notFoundCountsAsDeleted(t *testing.T) {
	fake := transport.NewFake()
	fake.SetMissing("home-2024-01-01")
	p := planWith("backup01", map[string][]string{
		"home": {"home-2024-01-01", "home-2024-01-02"},
	})

	summary, err := New(fake, nil).Execute(context.Background(), p, false)
	require.NoError(t, err)

	ds := summary.Datasets["home"]
	assert.Equal(t, 2, ds.Deleted)
	assert.Equal(t, 0, ds.Failed)
}

func TestExecute_failureIsolation(t *testing.T) {
	fake := transport.NewFake()
	fake.SetDeleteError("home-2024-01-02", errors.New("btrfs: transaction aborted"))
	p := planWith("backup01", map[string][]string{
		"home":    {"home-2024-01-01", "home-2024-01-02", "home-2024-01-03"},
		"var-log": {"var-log-2024-01-01"},
	})

	summary, err := New(fake, nil).Execute(context.Background(), p, false)
	require.NoError(t, err)

	home := summary.Datasets["home"]
	assert.Equal(t, 2, home.Deleted)
	assert.Equal(t, 1, home.Failed)
	require.Len(t, home.Failures, 1)
	assert.Contains(t, home.Failures[0], "home-2024-01-02")

	// The failure aborted neither the rest of home nor the other dataset.
	assert.Contains(t, fake.Deleted(), "home-2024-01-03")
	assert.Equal(t, 1, summary.Datasets["var-log"].Deleted)
	assert.Equal(t, 1, summary.TotalFailed())
}

func TestExecute_orderWithinDatasetUnderConcurrency(t *testing.T) {
	fake := transport.NewFake()
	datasets := map[string][]string{}
	for d := 0; d < 8; d++ {
		dataset := fmt.Sprintf("ds%d", d)
		var names []string
		for i := 1; i <= 5; i++ {
			names = append(names, fmt.Sprintf("%s-2024-01-0%d", dataset, i))
		}
		datasets[dataset] = names
	}

	e := New(fake, nil)
	e.Concurrency = 4
	_, err := e.Execute(context.Background(), planWith("backup01", datasets), false)
	require.NoError(t, err)

	// Deletes of different datasets interleave, but each dataset's own
	// sequence must stay oldest first.
	perDataset := map[string][]string{}
	for _, name := range fake.Deleted() {
		dataset := name[:3]
		perDataset[dataset] = append(perDataset[dataset], name)
	}
	for dataset, order := range perDataset {
		assert.True(t, sort.StringsAreSorted(order), "dataset %s deleted out of order: %v", dataset, order)
	}
	assert.Equal(t, 40, fake.DeleteCalls())
}

func TestExecute_cancelReturnsPartialSummary(t *testing.T) {
	fake := transport.NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := planWith("backup01", map[string][]string{
		"home": {"home-2024-01-01", "home-2024-01-02"},
	})

	summary, err := New(fake, nil).Execute(ctx, p, false)
	require.Error(t, err)
	require.NotNil(t, summary)

	ds := summary.Datasets["home"]
	require.NotNil(t, ds)
	assert.Equal(t, 2, ds.Planned)
	assert.Equal(t, 0, ds.Failed)
	assert.Equal(t, 0, fake.DeleteCalls())
}
