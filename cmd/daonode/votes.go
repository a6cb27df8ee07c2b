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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aejontargaryen/bisq-core/blindvote"
	"github.com/aejontargaryen/bisq-core/internal/config"
)

func votesRun(cmd *cobra.Command, cfg *config.Config, showBallots bool) {
	logger := commonRun()
	n, err := newNode(cfg, logger, nil)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	if err := n.Start(); err != nil {
		slog.Error(errors.Join(err, n.Stop()).Error())
		os.Exit(1)
	}
	votes, err := n.MyVotes()
	if err == nil {
		err = writeVotes(cmd.OutOrStdout(), votes, showBallots)
	}
	if stopErr := n.Stop(); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func writeVotes(w io.Writer, votes []blindvote.MyVote, showBallots bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TX ID\tSTAKE\tHEIGHT\tBROADCAST\tREVEAL TX ID")
	for _, v := range votes {
		revealTxID := v.RevealTxID
		if revealTxID == "" {
			revealTxID = "-"
		}
		fmt.Fprintf(
			tw,
			"%s\t%d\t%d\t%s\t%s\n",
			v.BlindVote.TxID,
			v.BlindVote.Stake,
			v.CreationHeight,
			v.BroadcastState,
			revealTxID,
		)
		if !showBallots {
			continue
		}
		for _, b := range v.Ballots {
			fmt.Fprintf(tw, "  %s\t%s\t\t\t\n", b.ProposalTxID, b.Vote)
		}
	}
	return tw.Flush()
}

func votesCommand() *cobra.Command {
	var showBallots bool
	cmd := &cobra.Command{
		Use:   "votes",
		Short: "List own blind votes",
		Run: func(cmd *cobra.Command, args []string) {
			votesRun(cmd, configFromCmd(cmd), showBallots)
		},
	}
	cmd.Flags().BoolVar(&showBallots, "ballots", false, "show the ballots of each vote")
	return cmd
}
