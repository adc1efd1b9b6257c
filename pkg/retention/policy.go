package retention

import (
	"fmt"
	"strings"

	"github.com/snapsync/snap-prune/pkg/catalog"
)

// PolicyError reports an invalid retention configuration. It is raised before
// any remote access occurs.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return "retention: invalid policy: " + e.Reason
}

// Policy is an ordered set of retention rules plus a global floor. A snapshot
// is retained when any rule selects it; evaluation never keeps fewer than
// MinimumRetain snapshots of a dataset when at least that many exist.
type Policy struct {
	Rules         []Rule
	MinimumRetain int
}

// Validate checks every rule parameter and the floor. Configuration errors
// must surface before any remote access.
func (p *Policy) Validate() error {
	if p.MinimumRetain < 0 {
		return &PolicyError{Reason: fmt.Sprintf("minimum retain count must not be negative, got %d", p.MinimumRetain)}
	}
	for _, r := range p.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate computes the retained subset of one dataset's timeline. The input
// must be ordered ascending by (creation time, name); the result preserves
// that order.
//
// The union of the rule selections is extended with the next-most-recent
// unselected snapshots whenever it falls short of the floor, and a dataset
// with fewer snapshots than the floor is retained whole.
func (p *Policy) Evaluate(snaps []catalog.Snapshot) []catalog.Snapshot {
	if len(snaps) == 0 {
		return nil
	}
	if len(snaps) <= p.MinimumRetain {
		return append([]catalog.Snapshot(nil), snaps...)
	}

	selected := map[string]bool{}
	for _, rule := range p.Rules {
		for _, s := range rule.Select(snaps) {
			selected[s.Name] = true
		}
	}

	// Floor extension, newest unselected first.
	for i := len(snaps) - 1; i >= 0 && len(selected) < p.MinimumRetain; i-- {
		selected[snaps[i].Name] = true
	}

	retained := make([]catalog.Snapshot, 0, len(selected))
	for _, s := range snaps {
		if selected[s.Name] {
			retained = append(retained, s)
		}
	}
	return retained
}

// String renders the policy for audit output, e.g. "last=5 daily=7 min=3".
func (p *Policy) String() string {
	parts := make([]string, 0, len(p.Rules)+1)
	for _, r := range p.Rules {
		parts = append(parts, r.String())
	}
	parts = append(parts, fmt.Sprintf("min=%d", p.MinimumRetain))
	return strings.Join(parts, " ")
}

// Counts is the flag-level description of a policy; zero fields contribute no
// rule.
type Counts struct {
	Last    int
	Hourly  int
	Daily   int
	Weekly  int
	Monthly int
	Yearly  int
}

// FromCounts builds a policy from per-bucket keep counts.
func FromCounts(c Counts, minimumRetain int) *Policy {
	p := &Policy{MinimumRetain: minimumRetain}
	if c.Last > 0 {
		p.Rules = append(p.Rules, MostRecent{N: c.Last})
	}
	if c.Hourly > 0 {
		p.Rules = append(p.Rules, PerHour{Hours: c.Hourly})
	}
	if c.Daily > 0 {
		p.Rules = append(p.Rules, PerDay{Days: c.Daily})
	}
	if c.Weekly > 0 {
		p.Rules = append(p.Rules, PerWeek{Weeks: c.Weekly})
	}
	if c.Monthly > 0 {
		p.Rules = append(p.Rules, PerMonth{Months: c.Monthly})
	}
	if c.Yearly > 0 {
		p.Rules = append(p.Rules, PerYear{Years: c.Yearly})
	}
	return p
}
