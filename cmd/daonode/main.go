// Copyright 2025 The bisq-core Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	dao "github.com/aejontargaryen/bisq-core"
	"github.com/aejontargaryen/bisq-core/internal/config"
	"github.com/aejontargaryen/bisq-core/internal/version"
	"github.com/aejontargaryen/bisq-core/period"
)

const (
	programName = "daonode"
)

func slogPrintf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...),
		"component", programName,
	)
}

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

func commonRun() *slog.Logger {
	// Configure logger
	logLevel := slog.LevelInfo
	addSource := false
	if globalFlags.debug {
		logLevel = slog.LevelDebug
		addSource = true
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: addSource,
			Level:     logLevel,
		}),
	)
	slog.SetDefault(logger)
	// Configure max processes with our logger wrapper, toss undo func
	_, err := maxprocs.Set(maxprocs.Logger(slogPrintf))
	if err != nil {
		// If we hit this, something really wrong happened
		slog.Error(err.Error())
		os.Exit(1)
	}
	logger.Info(
		"version: "+version.GetVersionString(),
		"component", programName,
	)
	return logger
}

// newNode builds a node from the loaded configuration. Metrics are only
// registered when promRegistry is not nil.
func newNode(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*dao.Node, error) {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	broadcastTimeout, err := cfg.BroadcastTimeoutDuration()
	if err != nil {
		return nil, err
	}
	return dao.New(
		dao.NewConfig(
			dao.WithLogger(logger),
			dao.WithPrometheusRegistry(promRegistry),
			dao.WithDatabasePath(cfg.DatabasePath),
			dao.WithSchedule(
				cfg.GenesisHeight,
				period.Durations{
					Proposal:   cfg.ProposalBlocks,
					BlindVote:  cfg.BlindVoteBlocks,
					VoteReveal: cfg.VoteRevealBlocks,
					Result:     cfg.ResultBlocks,
				},
			),
			dao.WithRepublishMinPeers(cfg.RepublishMinPeers),
			dao.WithDevMode(cfg.DevMode),
			dao.WithTracing(cfg.TracingExporter != config.TracingExporterNone),
			dao.WithTracingExporter(string(cfg.TracingExporter)),
			dao.WithShutdownTimeout(shutdownTimeout),
			dao.WithBroadcastTimeout(broadcastTimeout),
		),
	)
}

func configFromCmd(cmd *cobra.Command) *config.Config {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		slog.Error("no config found in context")
		os.Exit(1)
	}
	return cfg
}

func main() {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "DAO voting node",
		Run: func(cmd *cobra.Command, args []string) {
			serveRun(cmd, args, configFromCmd(cmd))
		},
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	// Subcommands
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(votesCommand())
	rootCmd.AddCommand(proposalCommand())
	rootCmd.AddCommand(issuanceCommand())
	rootCmd.AddCommand(versionCommand())

	// Execute cobra command
	if err := rootCmd.Execute(); err != nil {
		// NOTE: we purposely don't display the error, since cobra will have already displayed it
		os.Exit(1)
	}
}
