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

package votereveal

import (
	"cmp"
	"io"
	"log/slog"
	"slices"

	"github.com/aejontargaryen/bisq-core/blindvote"
	"github.com/aejontargaryen/bisq-core/merit"
	"github.com/aejontargaryen/bisq-core/state"
)

// RevealedVote is a blind vote whose ballots were unveiled by a reveal tx
type RevealedVote struct {
	BlindVote           blindvote.BlindVote
	Ballots             blindvote.BallotList
	Merits              merit.MeritList
	RevealTxID          string
	HashOfBlindVoteList []byte
}

// Collection is the tally input of one cycle
type Collection struct {
	// Revealed is ordered by blind vote tx id
	Revealed []RevealedVote
	// Unrevealed holds the tx ids of blind votes without a usable reveal,
	// in ascending order
	Unrevealed []string
}

// CollectRevealedVotes matches confirmed reveal txs to the blind votes of a
// cycle and decrypts them. Blind votes without a reveal, and reveals that do
// not parse or decrypt, are excluded. When a blind vote is revealed more than
// once the reveal with the lowest tx id wins.
func CollectRevealedVotes(
	blindVotes []blindvote.BlindVote,
	revealTxs []*state.Tx,
	logger *slog.Logger,
) Collection {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	byTxID := make(map[string]blindvote.BlindVote, len(blindVotes))
	for _, bv := range blindVotes {
		byTxID[bv.TxID] = bv
	}
	sortedReveals := slices.Clone(revealTxs)
	sortedReveals = slices.DeleteFunc(sortedReveals, func(tx *state.Tx) bool {
		return tx == nil
	})
	slices.SortFunc(sortedReveals, func(a, b *state.Tx) int {
		return cmp.Compare(a.ID, b.ID)
	})
	revealed := make(map[string]RevealedVote)
	for _, tx := range sortedReveals {
		vote, ok := openReveal(tx, byTxID, logger)
		if !ok {
			continue
		}
		if _, exists := revealed[vote.BlindVote.TxID]; exists {
			logger.Debug(
				"ignoring repeated reveal",
				"component", "votereveal",
				"blind_vote_tx_id", vote.BlindVote.TxID,
				"reveal_tx_id", tx.ID,
			)
			continue
		}
		revealed[vote.BlindVote.TxID] = vote
	}
	ret := Collection{
		Revealed:   make([]RevealedVote, 0, len(revealed)),
		Unrevealed: []string{},
	}
	sorted := blindvote.SortByTxID(blindVotes)
	for i, bv := range sorted {
		if i > 0 && sorted[i-1].TxID == bv.TxID {
			continue
		}
		vote, ok := revealed[bv.TxID]
		if !ok {
			ret.Unrevealed = append(ret.Unrevealed, bv.TxID)
			continue
		}
		ret.Revealed = append(ret.Revealed, vote)
	}
	return ret
}

func openReveal(
	tx *state.Tx,
	blindVotes map[string]blindvote.BlindVote,
	logger *slog.Logger,
) (RevealedVote, bool) {
	skip := func(reason string, err error) (RevealedVote, bool) {
		logger.Debug(
			"skipping vote reveal: "+reason,
			"component", "votereveal",
			"reveal_tx_id", tx.ID,
			"error", err,
		)
		return RevealedVote{}, false
	}
	if tx.Type != state.TxTypeVoteReveal {
		return skip("wrong tx type", ErrNotRevealTx)
	}
	if len(tx.Inputs) == 0 {
		return skip("no stake input", ErrStakeNotSpent)
	}
	bv, ok := blindVotes[tx.Inputs[0].ConnectedTxID]
	if !ok {
		return skip("unknown blind vote", ErrStakeNotSpent)
	}
	last, ok := tx.LastOutput()
	if !ok {
		return skip("no marker output", ErrInvalidMarker)
	}
	hash, key, err := ParseOpReturnData(last.OpReturnData)
	if err != nil {
		return skip("bad marker", err)
	}
	ballots, err := blindvote.DecryptBallots(bv.EncryptedVotes, key)
	if err != nil {
		return skip("ballots do not decrypt", err)
	}
	merits, err := blindvote.DecryptMerits(bv.EncryptedMeritList, key)
	if err != nil {
		return skip("merits do not decrypt", err)
	}
	return RevealedVote{
		BlindVote:           bv,
		Ballots:             ballots,
		Merits:              merits,
		RevealTxID:          tx.ID,
		HashOfBlindVoteList: hash,
	}, true
}
