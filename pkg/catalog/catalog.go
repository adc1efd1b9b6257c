package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Snapshot is a single remote snapshot as observed in a listing. It is
// identified by (Host, Dataset, Name) and never mutated after parsing.
type Snapshot struct {
	Host      string
	Dataset   string
	Name      string
	CreatedAt time.Time
	Size      int64
}

// Catalog groups the snapshots of one host by dataset. Snapshots within a
// dataset are ordered by creation time ascending; retention bucketing relies
// on this ordering.
type Catalog struct {
	Host     string
	Datasets map[string][]Snapshot

	// Unparsed counts listing lines that did not match the snapshot
	// naming schema. They are skipped, never fatal.
	Unparsed int
}

// CatalogError reports a listing that yielded zero recognizable snapshots.
// This signals a wrong target or broken transport rather than bad snapshots,
// so callers must abort before any deletion.
type CatalogError struct {
	Host  string
	Lines int
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog: no snapshots recognized in listing for host %q (%d lines)", e.Host, e.Lines)
}

// Snapshot names embed the dataset and a UTC timestamp:
// <dataset>-2006-01-02 or <dataset>-2006-01-02T15-04-05.
var nameRe = regexp.MustCompile(`^(.+)-(\d{4}-\d{2}-\d{2}(?:T\d{2}-\d{2}-\d{2})?)$`)

const (
	dayLayout  = "2006-01-02"
	fullLayout = "2006-01-02T15-04-05"
)

// ParseName splits a snapshot name into dataset and creation time. It returns
// false for names outside the schema.
func ParseName(name string) (dataset string, createdAt time.Time, ok bool) {
	m := nameRe.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, false
	}
	layout := dayLayout
	if strings.ContainsRune(m[2], 'T') {
		layout = fullLayout
	}
	t, err := time.Parse(layout, m[2])
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], t.UTC(), true
}

// Parse builds a Catalog from raw listing lines. Each line carries a snapshot
// name and an optional byte size, whitespace separated. Blank lines are
// ignored; lines outside the schema are counted as unparsed. Parse fails only
// when the whole listing produced zero datasets.
func Parse(host string, lines []string) (*Catalog, error) {
	c := &Catalog{Host: host, Datasets: map[string][]Snapshot{}}
	total := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		fields := strings.Fields(line)
		dataset, createdAt, ok := ParseName(fields[0])
		if !ok {
			c.Unparsed++
			continue
		}
		snap := Snapshot{
			Host:      host,
			Dataset:   dataset,
			Name:      fields[0],
			CreatedAt: createdAt,
		}
		if len(fields) > 1 {
			if size, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
				snap.Size = size
			}
		}
		c.Datasets[dataset] = append(c.Datasets[dataset], snap)
	}

	if len(c.Datasets) == 0 {
		return nil, &CatalogError{Host: host, Lines: total}
	}

	for _, snaps := range c.Datasets {
		sortSnapshots(snaps)
	}
	return c, nil
}

// sortSnapshots orders ascending by creation time, name breaking ties so the
// lexicographically greatest name sorts last (treated as newest).
func sortSnapshots(snaps []Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
		}
		return snaps[i].Name < snaps[j].Name
	})
}

// DatasetNames returns the datasets of the catalog in stable order.
func (c *Catalog) DatasetNames() []string {
	names := make([]string, 0, len(c.Datasets))
	for name := range c.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
