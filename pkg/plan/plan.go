package plan

import (
	"fmt"
	"sort"

	"github.com/snapsync/snap-prune/pkg/catalog"
)

// Deletion is one snapshot slated for removal, with the reason it was not
// retained for audit output.
type Deletion struct {
	Snapshot catalog.Snapshot
	Reason   string
}

// DatasetPlan is the ordered deletion sequence for one dataset, oldest first,
// together with the evaluation counts the planner saw. Oldest-first ordering
// means a partial run makes maximal safe progress.
type DatasetPlan struct {
	Dataset   string
	Evaluated int
	Retained  int
	Deletions []Deletion
}

// Plan maps every dataset of one host to its deletion sequence. A plan is a
// value, constructed fresh per run and never persisted.
type Plan struct {
	Host     string
	Datasets map[string]*DatasetPlan
}

// SafetyViolation means a dataset plan would breach the retention floor. This
// is a broken invariant, not a recoverable condition; no deletion may proceed.
type SafetyViolation struct {
	Dataset  string
	Existing int
	Kept     int
	Minimum  int
}

func (e *SafetyViolation) Error() string {
	return fmt.Sprintf("plan: refusing to delete below retention floor for dataset %q: %d of %d kept, minimum %d",
		e.Dataset, e.Kept, e.Existing, e.Minimum)
}

// New returns an empty plan for host.
func New(host string) *Plan {
	return &Plan{Host: host, Datasets: map[string]*DatasetPlan{}}
}

// Add registers a dataset plan.
func (p *Plan) Add(dp *DatasetPlan) {
	p.Datasets[dp.Dataset] = dp
}

// DatasetNames returns the planned datasets in stable order.
func (p *Plan) DatasetNames() []string {
	names := make([]string, 0, len(p.Datasets))
	for name := range p.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalDeletions counts deletions across all datasets.
func (p *Plan) TotalDeletions() int {
	n := 0
	for _, dp := range p.Datasets {
		n += len(dp.Deletions)
	}
	return n
}

// Build diffs existing against retained for one dataset. Candidates are
// existing minus retained, ordered oldest first. Independent of the policy's
// own floor logic, Build refuses with a SafetyViolation when the result would
// keep fewer than minimumRetain snapshots while at least that many exist.
func Build(dataset string, existing, retained []catalog.Snapshot, minimumRetain int, policyDesc string) (*DatasetPlan, error) {
	keep := map[string]bool{}
	for _, s := range retained {
		keep[s.Name] = true
	}

	dp := &DatasetPlan{
		Dataset:   dataset,
		Evaluated: len(existing),
	}

	for _, s := range existing {
		if keep[s.Name] {
			continue
		}
		dp.Deletions = append(dp.Deletions, Deletion{
			Snapshot: s,
			Reason:   fmt.Sprintf("not selected by any retention rule (%s)", policyDesc),
		})
	}

	kept := len(existing) - len(dp.Deletions)
	dp.Retained = kept
	if kept < minimumRetain && len(existing) >= minimumRetain {
		return nil, &SafetyViolation{
			Dataset:  dataset,
			Existing: len(existing),
			Kept:     kept,
			Minimum:  minimumRetain,
		}
	}
	return dp, nil
}
