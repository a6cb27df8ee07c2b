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
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aejontargaryen/bisq-core/proposal"
)

var errUnknownProposalKind = errors.New("unknown proposal kind")

// proposalFile is the YAML form of a proposal. UID and creation date are
// part of the commitment hash and must be given to reproduce it.
type proposalFile struct {
	CreationDate    time.Time         `yaml:"creationDate"`
	ExtraData       map[string]string `yaml:"extraData"`
	Kind            string            `yaml:"kind"`
	UID             string            `yaml:"uid"`
	Name            string            `yaml:"name"`
	Title           string            `yaml:"title"`
	Description     string            `yaml:"description"`
	Link            string            `yaml:"link"`
	OwnerPubKey     string            `yaml:"ownerPubKey"`
	TxID            string            `yaml:"txId"`
	PayoutAddress   string            `yaml:"payoutAddress"`
	RequestedAmount int64             `yaml:"requestedAmount"`
}

func loadProposalFile(path string) (proposal.Proposal, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading proposal file: %w", err)
	}
	var pf proposalFile
	if err := yaml.Unmarshal(buf, &pf); err != nil {
		return nil, fmt.Errorf("error parsing proposal file: %w", err)
	}
	return pf.toProposal()
}

func (pf proposalFile) toProposal() (proposal.Proposal, error) {
	ownerPubKey, err := hex.DecodeString(pf.OwnerPubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid ownerPubKey: %w", err)
	}
	var p proposal.Proposal
	switch pf.Kind {
	case "", "generic":
		p = proposal.NewGenericProposal(
			pf.Name,
			pf.Title,
			pf.Description,
			pf.Link,
			ownerPubKey,
		)
	case "compensation":
		p, err = proposal.NewCompensationProposal(
			pf.Name,
			pf.Title,
			pf.Description,
			pf.Link,
			ownerPubKey,
			pf.RequestedAmount,
			pf.PayoutAddress,
		)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownProposalKind, pf.Kind)
	}
	base := p.Common()
	if pf.UID != "" {
		base.UID = pf.UID
	}
	if !pf.CreationDate.IsZero() {
		base.CreationDate = pf.CreationDate.UTC().Truncate(time.Millisecond)
	}
	base.ExtraData = pf.ExtraData
	base.TxID = pf.TxID
	return p, nil
}

func writeProposalHash(w io.Writer, p proposal.Proposal) error {
	hash, err := proposal.CommitmentHash(p)
	if err != nil {
		return err
	}
	marker, err := proposal.OpReturnData(p)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(
		w,
		"uid: %s\nkind: %s\nhash: %x\nopReturn: %x\n",
		p.Common().UID,
		p.Kind(),
		hash,
		marker,
	)
	return err
}

func proposalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposal",
		Short: "Proposal payload tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "hash <file>",
		Short: "Print the commitment hash and marker of a YAML proposal",
		Args:  cobra.ExactArgs(1),
		// Needs no config
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			p, err := loadProposalFile(args[0])
			if err == nil {
				err = proposal.ValidateDataFields(p)
			}
			if err == nil {
				err = writeProposalHash(cmd.OutOrStdout(), p)
			}
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	})
	return cmd
}
