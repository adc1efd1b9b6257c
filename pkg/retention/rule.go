package retention

import (
	"fmt"
	"time"

	"github.com/snapsync/snap-prune/pkg/catalog"
)

// Rule is one clause of a retention policy. Select reports the snapshots the
// rule keeps out of a timeline ordered ascending by creation time; rules are
// combined by union.
type Rule interface {
	Select(snaps []catalog.Snapshot) []catalog.Snapshot
	Validate() error
	String() string
}

// MostRecent keeps the N newest snapshots regardless of spacing.
type MostRecent struct {
	N int
}

func (r MostRecent) Select(snaps []catalog.Snapshot) []catalog.Snapshot {
	if len(snaps) <= r.N {
		return append([]catalog.Snapshot(nil), snaps...)
	}
	return append([]catalog.Snapshot(nil), snaps[len(snaps)-r.N:]...)
}

func (r MostRecent) Validate() error { return validateCount("last", r.N) }
func (r MostRecent) String() string  { return fmt.Sprintf("last=%d", r.N) }

// PerHour keeps the newest snapshot in each of the most recent Hours distinct
// clock hours (UTC) that contain snapshots.
type PerHour struct {
	Hours int
}

func (r PerHour) Select(snaps []catalog.Snapshot) []catalog.Snapshot {
	return selectBuckets(snaps, r.Hours, func(t time.Time) string {
		return t.Format("2006-01-02T15")
	})
}

func (r PerHour) Validate() error { return validateCount("hourly", r.Hours) }
func (r PerHour) String() string  { return fmt.Sprintf("hourly=%d", r.Hours) }

// PerDay keeps the newest snapshot in each of the most recent Days distinct
// UTC calendar days that contain snapshots.
type PerDay struct {
	Days int
}

func (r PerDay) Select(snaps []catalog.Snapshot) []catalog.Snapshot {
	return selectBuckets(snaps, r.Days, func(t time.Time) string {
		return t.Format("2006-01-02")
	})
}

func (r PerDay) Validate() error { return validateCount("daily", r.Days) }
func (r PerDay) String() string  { return fmt.Sprintf("daily=%d", r.Days) }

// PerWeek buckets by ISO week.
type PerWeek struct {
	Weeks int
}

func (r PerWeek) Select(snaps []catalog.Snapshot) []catalog.Snapshot {
	return selectBuckets(snaps, r.Weeks, func(t time.Time) string {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	})
}

func (r PerWeek) Validate() error { return validateCount("weekly", r.Weeks) }
func (r PerWeek) String() string  { return fmt.Sprintf("weekly=%d", r.Weeks) }

// PerMonth buckets by calendar month.
type PerMonth struct {
	Months int
}

func (r PerMonth) Select(snaps []catalog.Snapshot) []catalog.Snapshot {
	return selectBuckets(snaps, r.Months, func(t time.Time) string {
		return t.Format("2006-01")
	})
}

func (r PerMonth) Validate() error { return validateCount("monthly", r.Months) }
func (r PerMonth) String() string  { return fmt.Sprintf("monthly=%d", r.Months) }

// PerYear buckets by calendar year.
type PerYear struct {
	Years int
}

func (r PerYear) Select(snaps []catalog.Snapshot) []catalog.Snapshot {
	return selectBuckets(snaps, r.Years, func(t time.Time) string {
		return t.Format("2006")
	})
}

func (r PerYear) Validate() error { return validateCount("yearly", r.Years) }
func (r PerYear) String() string  { return fmt.Sprintf("yearly=%d", r.Years) }

// selectBuckets walks the timeline newest-first and keeps the first snapshot
// seen in each distinct bucket, stopping after max buckets. Because the input
// orders duplicate timestamps by name ascending, the lexicographically
// greatest name is seen first and wins its bucket.
func selectBuckets(snaps []catalog.Snapshot, max int, key func(time.Time) string) []catalog.Snapshot {
	var kept []catalog.Snapshot
	seen := map[string]bool{}
	for i := len(snaps) - 1; i >= 0; i-- {
		k := key(snaps[i].CreatedAt)
		if seen[k] {
			continue
		}
		if len(seen) == max {
			break
		}
		seen[k] = true
		kept = append(kept, snaps[i])
	}
	return kept
}

func validateCount(kind string, n int) error {
	if n <= 0 {
		return &PolicyError{Reason: fmt.Sprintf("rule %s requires a positive count, got %d", kind, n)}
	}
	return nil
}
