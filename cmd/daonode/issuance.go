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

	"github.com/spf13/cobra"

	dao "github.com/aejontargaryen/bisq-core"
	"github.com/aejontargaryen/bisq-core/internal/config"
	"github.com/aejontargaryen/bisq-core/issuance"
	"github.com/aejontargaryen/bisq-core/proposal"
)

var errNotCompensation = errors.New("proposal is not a compensation request")

type issuanceCheckFlags struct {
	chainHeight int
	apply       bool
}

func issuanceCheckRun(
	cmd *cobra.Command,
	cfg *config.Config,
	path string,
	flags issuanceCheckFlags,
) {
	logger := commonRun()
	p, err := loadProposalFile(path)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	comp, ok := p.(*proposal.CompensationProposal)
	if !ok {
		slog.Error(errNotCompensation.Error())
		os.Exit(1)
	}
	n, err := newNode(cfg, logger, nil)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	if err := n.Start(); err != nil {
		slog.Error(errors.Join(err, n.Stop()).Error())
		os.Exit(1)
	}
	n.Periods().SetChainHeight(flags.chainHeight)
	err = checkIssuance(cmd.OutOrStdout(), n, comp, flags)
	if stopErr := n.Stop(); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// checkIssuance lists the issuance candidates that match comp at the
// node's chain height and records the issuance when apply is set
func checkIssuance(
	w io.Writer,
	n *dao.Node,
	comp *proposal.CompensationProposal,
	flags issuanceCheckFlags,
) error {
	candidates, err := n.ChainState().IssuanceCandidates()
	if err != nil {
		return err
	}
	matched := 0
	for _, out := range candidates {
		if !issuance.IsEligible(out, comp, n.Periods(), flags.chainHeight) {
			continue
		}
		matched++
		fmt.Fprintf(w, "eligible: %s amount=%d address=%s\n", out.Key(), out.Value, out.Address)
	}
	if matched == 0 {
		fmt.Fprintf(w, "no eligible output for %s at height %d\n", comp.TxID, flags.chainHeight)
		return nil
	}
	if !flags.apply {
		return nil
	}
	issued, err := n.Issue(comp)
	if err != nil {
		return err
	}
	if issued != nil {
		fmt.Fprintf(w, "issued: %s amount=%d height=%d\n", issued.TxID, issued.Amount, issued.ChainHeight)
	}
	return nil
}

func issuanceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issuance",
		Short: "Issuance tools",
	}
	var flags issuanceCheckFlags
	checkCmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Run the issuance rule for a YAML compensation proposal against the chain state snapshot",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			issuanceCheckRun(cmd, configFromCmd(cmd), args[0], flags)
		},
	}
	checkCmd.Flags().IntVar(&flags.chainHeight, "height", 0, "chain height to evaluate at")
	checkCmd.Flags().BoolVar(&flags.apply, "apply", false, "record the issuance when an output matches")
	_ = checkCmd.MarkFlagRequired("height")
	cmd.AddCommand(checkCmd)
	return cmd
}
