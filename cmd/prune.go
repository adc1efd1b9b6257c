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
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/snapsync/snap-prune/pkg/pruner"
	"github.com/snapsync/snap-prune/pkg/retention"
	"github.com/snapsync/snap-prune/pkg/transport"
)

var (
	pruneHosts    []string
	pruneDatasets []string
	keepCounts    retention.Counts
	minRetain     int
	policyFile    string
	dryRun        bool
	concurrency   int64
	opTimeout     time.Duration
)

// pruneCmd represents the prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Evaluate the retention policy and delete expired snapshots.",
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := buildPolicy(policyFile, keepCounts, minRetain)
		if err != nil {
			return err
		}

		tr, err := buildTransport(viper.GetString("target"), viper.GetString("snapshot_root"))
		if err != nil {
			return err
		}

		runner := pruner.New(tr, policy, logger)
		runner.Hosts = pruneHosts
		runner.Datasets = pruneDatasets
		runner.DryRun = dryRun
		runner.Concurrency = concurrency
		runner.OpTimeout = opTimeout

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report, err := runner.Run(ctx)
		if err != nil {
			return err
		}

		renderReport(cmd.OutOrStdout(), report)

		if report.TotalFailed() > 0 {
			return fmt.Errorf("%w: %d snapshots", errDeletionsFailed, report.TotalFailed())
		}
		if ctx.Err() != nil {
			logger.Warn("run interrupted, summary is partial")
		}
		return nil
	},
}

// buildPolicy assembles the retention policy from a policy file or the
// keep-count flags. The two sources are exclusive.
func buildPolicy(file string, counts retention.Counts, minimumRetain int) (*retention.Policy, error) {
	if file != "" {
		if counts != (retention.Counts{}) {
			return nil, &retention.PolicyError{Reason: "--policy-file and --keep-* flags are mutually exclusive"}
		}
		return retention.LoadFile(file)
	}
	if counts == (retention.Counts{}) {
		return nil, &retention.PolicyError{Reason: "no retention rules given; pass --policy-file or at least one --keep-* flag"}
	}
	p := retention.FromCounts(counts, minimumRetain)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func buildTransport(target, snapshotRoot string) (transport.Transport, error) {
	switch target {
	case "ssh":
		return transport.NewSSHExec(snapshotRoot, logger), nil
	case "dir":
		return transport.NewLocalDir(snapshotRoot, logger), nil
	default:
		return nil, &retention.PolicyError{Reason: fmt.Sprintf("unknown target %q (want ssh or dir)", target)}
	}
}

// renderReport prints the per-dataset run summary, plus the deletion detail
// on dry runs so operators can audit what a real run would remove.
func renderReport(out io.Writer, report *pruner.Report) {
	for _, hr := range report.Hosts {
		fmt.Fprintf(out, "Host %s:\n", hr.Host)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DATASET\tEVALUATED\tRETAINED\tDELETED\tFAILED\tRECLAIMED")
		for _, name := range hr.Summary.DatasetNames() {
			ds := hr.Summary.Datasets[name]
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n",
				ds.Dataset, ds.Evaluated, ds.Retained, ds.Deleted, ds.Failed,
				humanize.Bytes(ds.BytesReclaimed))
		}
		_ = tw.Flush()

		if hr.Unparsed > 0 {
			fmt.Fprintf(out, "%d listing lines did not match the snapshot schema and were skipped\n", hr.Unparsed)
		}

		if report.DryRun {
			for _, name := range hr.Plan.DatasetNames() {
				for _, del := range hr.Plan.Datasets[name].Deletions {
					fmt.Fprintf(out, "would delete %s/%s (%s)\n", name, del.Snapshot.Name, del.Reason)
				}
			}
		}

		for _, name := range hr.Summary.DatasetNames() {
			for _, failure := range hr.Summary.Datasets[name].Failures {
				fmt.Fprintf(out, "failed: %s/%s\n", name, failure)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().StringSliceVar(&pruneHosts, "host", nil, "remote host to prune (repeatable)")
	pruneCmd.Flags().StringSliceVar(&pruneDatasets, "dataset", nil, "dataset to prune (repeatable)")
	pruneCmd.Flags().IntVar(&keepCounts.Last, "keep-last", 0, "keep the N most recent snapshots")
	pruneCmd.Flags().IntVar(&keepCounts.Hourly, "keep-hourly", 0, "keep one snapshot per hour for N hours")
	pruneCmd.Flags().IntVar(&keepCounts.Daily, "keep-daily", 0, "keep one snapshot per day for N days")
	pruneCmd.Flags().IntVar(&keepCounts.Weekly, "keep-weekly", 0, "keep one snapshot per week for N weeks")
	pruneCmd.Flags().IntVar(&keepCounts.Monthly, "keep-monthly", 0, "keep one snapshot per month for N months")
	pruneCmd.Flags().IntVar(&keepCounts.Yearly, "keep-yearly", 0, "keep one snapshot per year for N years")
	pruneCmd.Flags().IntVar(&minRetain, "min-retain", 0, "never delete below this many snapshots per dataset")
	pruneCmd.Flags().StringVar(&policyFile, "policy-file", "", "YAML retention policy file")
	pruneCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	pruneCmd.Flags().Int64Var(&concurrency, "concurrency", 4, "max datasets pruned in parallel")
	pruneCmd.Flags().DurationVar(&opTimeout, "timeout", 2*time.Minute, "timeout for one remote call")
	pruneCmd.Flags().String("target", "", "snapshot store access: ssh or dir")
	pruneCmd.Flags().String("snapshot-root", "", "root path of the snapshot store")

	_ = viper.BindPFlag("target", pruneCmd.Flags().Lookup("target"))
	_ = viper.BindPFlag("snapshot_root", pruneCmd.Flags().Lookup("snapshot-root"))

	_ = pruneCmd.MarkFlagRequired("host")
	_ = pruneCmd.MarkFlagRequired("dataset")
}
