package executor

import "sort"

// DatasetSummary is the outcome of one dataset's deletion sequence.
type DatasetSummary struct {
	Dataset        string
	Evaluated      int
	Retained       int
	Planned        int
	Deleted        int
	Failed         int
	BytesReclaimed uint64

	// Failures holds one line per failed deletion for the run report.
	Failures []string
}

// RunSummary aggregates the per-dataset outcomes of one invocation. Workers
// produce partial summaries that are merged once, after the pool drains, so
// no locking is needed here.
type RunSummary struct {
	Host     string
	DryRun   bool
	Datasets map[string]*DatasetSummary
}

// NewRunSummary returns an empty summary for host.
func NewRunSummary(host string, dryRun bool) *RunSummary {
	return &RunSummary{Host: host, DryRun: dryRun, Datasets: map[string]*DatasetSummary{}}
}

// Merge folds a per-worker partial summary into the run summary.
func (s *RunSummary) Merge(ds *DatasetSummary) {
	if ds == nil {
		return
	}
	s.Datasets[ds.Dataset] = ds
}

// DatasetNames returns the summarized datasets in stable order.
func (s *RunSummary) DatasetNames() []string {
	names := make([]string, 0, len(s.Datasets))
	for name := range s.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalFailed counts failed deletions across all datasets.
func (s *RunSummary) TotalFailed() int {
	n := 0
	for _, ds := range s.Datasets {
		n += ds.Failed
	}
	return n
}

// TotalDeleted counts deleted snapshots across all datasets.
func (s *RunSummary) TotalDeleted() int {
	n := 0
	for _, ds := range s.Datasets {
		n += ds.Deleted
	}
	return n
}

// BytesReclaimed sums reclaimed bytes across all datasets.
func (s *RunSummary) BytesReclaimed() uint64 {
	var n uint64
	for _, ds := range s.Datasets {
		n += ds.BytesReclaimed
	}
	return n
}
