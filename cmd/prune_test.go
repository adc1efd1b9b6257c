// This file is part of snap-prune
//
// Copyright (C) 2026  The snap-prune authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapsync/snap-prune/pkg/executor"
	"github.com/snapsync/snap-prune/pkg/plan"
	"github.com/snapsync/snap-prune/pkg/pruner"
	"github.com/snapsync/snap-prune/pkg/retention"
)

func TestBuildPolicy(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		counts    retention.Counts
		minRetain int
		wantRules int
		wantErr   bool
	}{
		{
			name:      "flags only",
			counts:    retention.Counts{Last: 5, Daily: 7},
			minRetain: 3,
			wantRules: 2,
		},
		{
			name:    "no rules at all",
			wantErr: true,
		},
		{
			name:      "zero floor is allowed",
			counts:    retention.Counts{Last: 5},
			wantRules: 1,
		},
		{
			name:    "file and flags are exclusive",
			file:    "policy.yaml",
			counts:  retention.Counts{Last: 1},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := buildPolicy(tt.file, tt.counts, tt.minRetain)
			if tt.wantErr {
				var pe *retention.PolicyError
				require.True(t, errors.As(err, &pe))
				return
			}
			require.NoError(t, err)
			if tt.wantRules > 0 {
				assert.Len(t, p.Rules, tt.wantRules)
			}
			assert.Equal(t, tt.minRetain, p.MinimumRetain)
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFatal, exitCode(&retention.PolicyError{Reason: "x"}))
	assert.Equal(t, exitFatal, exitCode(&plan.SafetyViolation{}))
	assert.Equal(t, exitFatal, exitCode(errors.New("anything else")))
	assert.Equal(t, exitDeletionsFailed, exitCode(fmt.Errorf("%w: 3 snapshots", errDeletionsFailed)))
}

func TestBuildTransport(t *testing.T) {
	tr, err := buildTransport("dir", "/srv/snapshots")
	require.NoError(t, err)
	assert.NotNil(t, tr)

	tr, err = buildTransport("ssh", "/srv/snapshots")
	require.NoError(t, err)
	assert.NotNil(t, tr)

	_, err = buildTransport("carrier-pigeon", "/srv/snapshots")
	assert.Error(t, err)
}

func TestRenderReport(t *testing.T) {
	report := &pruner.Report{
		Hosts: []*pruner.HostReport{
			{
				Host:     "backup01",
				Unparsed: 1,
				Plan:     plan.New("backup01"),
				Summary: &executor.RunSummary{
					Host: "backup01",
					Datasets: map[string]*executor.DatasetSummary{
						"home": {
							Dataset:        "home",
							Evaluated:      10,
							Retained:       5,
							Planned:        5,
							Deleted:        4,
							Failed:         1,
							BytesReclaimed: 4096,
							Failures:       []string{"home-2024-01-02: btrfs: transaction aborted"},
						},
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	renderReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "Host backup01:")
	assert.Contains(t, out, "home")
	assert.Contains(t, out, "4.1 kB")
	assert.Contains(t, out, "1 listing lines did not match")
	assert.Contains(t, out, "failed: home/home-2024-01-02")
}
