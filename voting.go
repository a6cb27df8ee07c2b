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

package dao

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aejontargaryen/bisq-core/blindvote"
	"github.com/aejontargaryen/bisq-core/period"
	"github.com/aejontargaryen/bisq-core/proposal"
	"github.com/aejontargaryen/bisq-core/state"
	"github.com/aejontargaryen/bisq-core/votereveal"
)

// requireCollaborators returns an error naming the first missing
// collaborator
func (n *Node) requireCollaborators(names ...string) error {
	if err := n.checkStarted(); err != nil {
		return err
	}
	for _, name := range names {
		var missing bool
		switch name {
		case "wallet":
			missing = n.config.wallet == nil
		case "tx network":
			missing = n.broadcaster == nil
		case "p2p network":
			missing = n.config.p2pNetwork == nil
		case "key ring":
			missing = n.config.keyRing == nil
		case "ballots":
			missing = n.config.ballots == nil
		case "proposal owner":
			missing = n.config.proposals == nil
		case "merit oracle":
			missing = n.config.meritOracle == nil
		}
		if missing {
			return fmt.Errorf("%w: %s", ErrMissingCollaborator, name)
		}
	}
	return nil
}

// ValidateProposal checks p against its confirmed anchoring tx
func (n *Node) ValidateProposal(p proposal.Proposal) error {
	if err := n.checkStarted(); err != nil {
		return err
	}
	tx, err := n.chainState.Tx(p.Common().TxID)
	if err != nil && !errors.Is(err, state.ErrTxNotFound) {
		return err
	}
	return proposal.Validate(p, tx, n.periods)
}

// IsValidBlindVote reports whether bv counts for the current cycle
func (n *Node) IsValidBlindVote(bv *blindvote.BlindVote, allowUnconfirmed bool) bool {
	if n.checkStarted() != nil {
		return false
	}
	return n.blindVote.Validator().IsValid(bv, allowUnconfirmed)
}

// PublishBlindVote seals the voter's ballots and merit and publishes the
// blind vote with stake locked
func (n *Node) PublishBlindVote(
	ctx context.Context,
	stake int64,
) (*blindvote.PublishResult, error) {
	if err := n.requireCollaborators(
		"wallet",
		"tx network",
		"p2p network",
		"key ring",
		"ballots",
		"proposal owner",
	); err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "PublishBlindVote")
	defer span.End()
	span.SetAttributes(attribute.Int64("stake", stake))
	res, err := n.blindVote.PublishBlindVote(ctx, stake)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("tx_id", res.BlindVote.TxID))
	return res, nil
}

// CurrentlyAvailableMerit returns the voter's merit weight at the current
// chain height
func (n *Node) CurrentlyAvailableMerit() (int64, error) {
	if err := n.requireCollaborators(
		"key ring",
		"proposal owner",
		"merit oracle",
	); err != nil {
		return 0, err
	}
	return n.blindVote.CurrentlyAvailableMerit()
}

// MiningFeeAndTxSize reports the mining fee and size of a blind vote tx for
// stake without publishing it
func (n *Node) MiningFeeAndTxSize(stake int64) (int64, int, error) {
	if err := n.requireCollaborators("wallet"); err != nil {
		return 0, 0, err
	}
	return n.blindVote.MiningFeeAndTxSize(stake)
}

// RevealVotes publishes reveal txs for the own blind votes of the current
// cycle. The engine also does this on its own when the VOTE_REVEAL phase
// starts.
func (n *Node) RevealVotes(ctx context.Context) ([]votereveal.Reveal, error) {
	if err := n.requireCollaborators("wallet", "tx network"); err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "RevealVotes")
	defer span.End()
	chainHeight := n.periods.ChainHeight()
	span.SetAttributes(attribute.Int("chain_height", chainHeight))
	reveals, err := n.voteReveal.RevealVotes(ctx, chainHeight)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return reveals, err
}

// CollectRevealedVotes returns the tally input of the current cycle: the
// valid confirmed blind votes matched with the reveal txs confirmed in the
// VOTE_REVEAL phase
func (n *Node) CollectRevealedVotes() (votereveal.Collection, error) {
	if err := n.checkStarted(); err != nil {
		return votereveal.Collection{}, err
	}
	source := n.config.blindVotes
	if source == nil {
		source = ownBlindVotes{list: n.myBlindVotes}
	}
	blindVotes, err := source.BlindVotes()
	if err != nil {
		return votereveal.Collection{}, fmt.Errorf("load blind votes: %w", err)
	}
	validator := n.blindVote.Validator()
	valid := make([]blindvote.BlindVote, 0, len(blindVotes))
	for i := range blindVotes {
		if validator.IsValidAndConfirmed(&blindVotes[i]) {
			valid = append(valid, blindVotes[i])
		}
	}
	revealTxs, err := n.chainState.TxsByType(state.TxTypeVoteReveal)
	if err != nil {
		return votereveal.Collection{}, fmt.Errorf("load reveal txs: %w", err)
	}
	chainHeight := n.periods.ChainHeight()
	cycleReveals := make([]*state.Tx, 0, len(revealTxs))
	for _, tx := range revealTxs {
		if period.IsTxInPhaseAndCycle(
			n.chainState,
			n.periods,
			tx.ID,
			state.PhaseVoteReveal,
			chainHeight,
		) {
			cycleReveals = append(cycleReveals, tx)
		}
	}
	return votereveal.CollectRevealedVotes(valid, cycleReveals, n.config.logger), nil
}

// Issue credits an accepted compensation proposal. It returns nil when no
// issuance candidate matches.
func (n *Node) Issue(p *proposal.CompensationProposal) (*state.Issuance, error) {
	if err := n.checkStarted(); err != nil {
		return nil, err
	}
	return n.issuance.Issue(p, n.periods.ChainHeight())
}
