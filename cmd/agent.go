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
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/snapsync/snap-prune/pkg/pruner"
	"github.com/snapsync/snap-prune/pkg/retention"
	"github.com/snapsync/snap-prune/pkg/server"
)

var (
	agentAddr   string
	defaultAddr = "unix://" + filepath.Join(os.TempDir(), "snap-prune.sock")
)

// agentCmd represents the agent command
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the pruning agent.",
	Long:  `Run a long-lived agent that prunes on a cron schedule and exposes an HTTP control API.`,
	Run: func(cmd *cobra.Command, args []string) {
		policy := retention.FromCounts(retention.Counts{
			Last:    viper.GetInt("keep_last"),
			Hourly:  viper.GetInt("keep_hourly"),
			Daily:   viper.GetInt("keep_daily"),
			Weekly:  viper.GetInt("keep_weekly"),
			Monthly: viper.GetInt("keep_monthly"),
			Yearly:  viper.GetInt("keep_yearly"),
		}, viper.GetInt("min_retain"))
		if err := policy.Validate(); err != nil {
			logger.Fatal("invalid retention configuration", zap.Error(err))
		}

		tr, err := buildTransport(viper.GetString("target"), viper.GetString("snapshot_root"))
		if err != nil {
			logger.Fatal("invalid transport configuration", zap.Error(err))
		}

		runner := pruner.New(tr, policy, logger)
		runner.Hosts = viper.GetStringSlice("hosts")
		runner.Datasets = viper.GetStringSlice("datasets")
		runner.DryRun = viper.GetBool("dry_run")

		logger.Debug("Listening address: " + agentAddr)
		s, err := server.New(
			server.WithAddr(agentAddr),
			server.WithRunner(runner),
			server.WithSchedule(viper.GetString("schedule_pattern")),
			server.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal("failed to create new server", zap.Error(err))
		}
		if err := s.Run(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server run failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.PersistentFlags().StringVar(&agentAddr, "addr", defaultAddr, "listening address of the agent server.")
}
