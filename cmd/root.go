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
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Exit codes: fatal configuration, catalog, and safety errors must stay
// distinguishable from runs where deletions failed.
const (
	exitOK              = 0
	exitFatal           = 1
	exitDeletionsFailed = 2
)

// errDeletionsFailed marks a run that finished but left failed deletions in
// the summary.
var errDeletionsFailed = errors.New("one or more deletions failed")

var (
	cfgFile string
	debug   bool
	logger  *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "snap-prune",
	Short: "Prune remote filesystem snapshots.",
	Long: `snap-prune applies a generational retention policy to the snapshots of
remote datasets and deletes everything the policy does not keep.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Println(err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto process exit codes. Catalog, policy
// and safety errors are all fatal; only completed runs with failed deletions
// get their own code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errDeletionsFailed) {
		return exitDeletionsFailed
	}
	return exitFatal
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.snap-prune.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug (default is false)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	newLogger := zap.NewProduction
	if debug {
		newLogger = zap.NewDevelopment
	}
	var err error
	if logger, err = newLogger(); err != nil {
		panic(err)
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			logger.Error(err.Error())
			os.Exit(exitFatal)
		}

		// Search config in home directory with name ".snap-prune" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".snap-prune")
	}

	viper.SetDefault("target", "ssh")
	viper.SetDefault("snapshot_root", "/var/lib/snap-sync")

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		logger.Info("Using config file: " + viper.ConfigFileUsed())
	}
}
