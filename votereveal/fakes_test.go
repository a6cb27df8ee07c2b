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

package votereveal_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aejontargaryen/bisq-core/blindvote"
	"github.com/aejontargaryen/bisq-core/encryption"
	"github.com/aejontargaryen/bisq-core/merit"
	"github.com/aejontargaryen/bisq-core/period"
	"github.com/aejontargaryen/bisq-core/state"
	"github.com/aejontargaryen/bisq-core/txbroadcast"
	"github.com/aejontargaryen/bisq-core/votereveal"
	"github.com/aejontargaryen/bisq-core/wallet"
)

const (
	testBlindVoteTx1 = "b100000000000000000000000000000000000000000000000000000000000001"
	testBlindVoteTx2 = "b200000000000000000000000000000000000000000000000000000000000002"
	testRevealTx1    = "e100000000000000000000000000000000000000000000000000000000000001"
	testRevealTx2    = "e200000000000000000000000000000000000000000000000000000000000002"
	testProposalTx   = "aaaa000000000000000000000000000000000000000000000000000000000000"
)

var errBuild = errors.New("build failed")

type fakeChainState struct {
	txs map[string]*state.Tx
	sync.Mutex
}

func newFakeChainState() *fakeChainState {
	return &fakeChainState{txs: make(map[string]*state.Tx)}
}

func (c *fakeChainState) addTx(tx *state.Tx) {
	c.Lock()
	defer c.Unlock()
	c.txs[tx.ID] = tx
}

func (c *fakeChainState) Tx(txID string) (*state.Tx, error) {
	c.Lock()
	defer c.Unlock()
	tx, ok := c.txs[txID]
	if !ok {
		return nil, state.ErrTxNotFound
	}
	return tx, nil
}

func (c *fakeChainState) IssuanceCandidates() ([]state.TxOutput, error) {
	return nil, nil
}

func (c *fakeChainState) Issuances() ([]state.Issuance, error) {
	return nil, nil
}

func (c *fakeChainState) Issuance(txID string) (*state.Issuance, error) {
	return nil, state.ErrIssuanceNotFound
}

func (c *fakeChainState) AddIssuance(issuance state.Issuance) error {
	return nil
}

type outputUpdate struct {
	txID       string
	index      int
	outputType state.TxOutputType
}

type fakeOutputWriter struct {
	updates []outputUpdate
}

func (w *fakeOutputWriter) SetOutputType(txID string, index int, outputType state.TxOutputType) error {
	w.updates = append(w.updates, outputUpdate{txID, index, outputType})
	return nil
}

type revealRequest struct {
	stake        state.TxOutput
	opReturnData []byte
}

type fakeWallet struct {
	err      error
	requests []revealRequest
	sync.Mutex
}

func (w *fakeWallet) BuildBlindVoteTx(stake int64, fee int64, opReturnData []byte) (*wallet.Tx, error) {
	return nil, errors.New("not implemented")
}

func (w *fakeWallet) BuildVoteRevealTx(stakeOutput state.TxOutput, opReturnData []byte) (*wallet.Tx, error) {
	w.Lock()
	defer w.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	w.requests = append(w.requests, revealRequest{stakeOutput, slices.Clone(opReturnData)})
	// Reveal ids mirror the blind vote ids with an "e" prefix
	return &wallet.Tx{ID: "e" + stakeOutput.TxID[1:]}, nil
}

func (w *fakeWallet) count() int {
	w.Lock()
	defer w.Unlock()
	return len(w.requests)
}

type fakeBroadcaster struct {
	outcome txbroadcast.Outcome
	txIDs   []string
	sync.Mutex
}

func (b *fakeBroadcaster) Broadcast(ctx context.Context, tx *wallet.Tx) <-chan txbroadcast.Result {
	b.Lock()
	defer b.Unlock()
	b.txIDs = append(b.txIDs, tx.ID)
	ch := make(chan txbroadcast.Result, 1)
	res := txbroadcast.Result{TxID: tx.ID, Outcome: b.outcome}
	if b.outcome != txbroadcast.OutcomeSuccess {
		res.Err = txbroadcast.ErrTimeout
	}
	ch <- res
	close(ch)
	return ch
}

type staticBlindVotes []blindvote.BlindVote

func (s staticBlindVotes) BlindVotes() ([]blindvote.BlindVote, error) {
	return s, nil
}

// testSchedule has 10 block phases starting at height 0: PROPOSAL 0-9,
// BLIND_VOTE 10-19, VOTE_REVEAL 20-29, RESULT 30-39
func testSchedule(t *testing.T, chainHeight int) *period.Schedule {
	t.Helper()
	schedule, err := period.NewSchedule(0, period.Durations{
		Proposal:   10,
		BlindVote:  10,
		VoteReveal: 10,
		Result:     10,
	})
	require.NoError(t, err)
	schedule.SetChainHeight(chainHeight)
	return schedule
}

// sealedVote is a blind vote together with the key that opens it
type sealedVote struct {
	blindVote blindvote.BlindVote
	key       encryption.SecretKey
	ballots   blindvote.BallotList
}

func newSealedVote(t *testing.T, txID string, vote blindvote.Vote) sealedVote {
	t.Helper()
	key, err := encryption.GenerateSecretKey()
	require.NoError(t, err)
	ballots := blindvote.BallotList{{ProposalTxID: testProposalTx, Vote: vote}}
	encryptedVotes, err := blindvote.EncryptBallots(ballots, key)
	require.NoError(t, err)
	encryptedMerits, err := blindvote.EncryptMerits(merit.MeritList{}, key)
	require.NoError(t, err)
	return sealedVote{
		blindVote: blindvote.BlindVote{
			TxID:               txID,
			EncryptedVotes:     encryptedVotes,
			EncryptedMeritList: encryptedMerits,
			Stake:              10000,
			Date:               time.UnixMilli(1700000000000).UTC(),
		},
		key:     key,
		ballots: ballots,
	}
}

func blindVoteTx(txID string, height int) *state.Tx {
	return &state.Tx{
		ID:          txID,
		BlockHeight: height,
		Type:        state.TxTypeBlindVote,
		Outputs: []state.TxOutput{
			{TxID: txID, Index: 0, Value: 10000, BlockHeight: height, Type: state.TxOutputTypeBlindVoteLockStake},
			{TxID: txID, Index: 1, BlockHeight: height, Type: state.TxOutputTypeBlindVoteOpReturn},
		},
	}
}

func revealTx(t *testing.T, txID string, blindVoteTxID string, key encryption.SecretKey) *state.Tx {
	t.Helper()
	marker, err := votereveal.OpReturnData(make([]byte, state.HashSize), key)
	require.NoError(t, err)
	return &state.Tx{
		ID:          txID,
		BlockHeight: 22,
		Type:        state.TxTypeVoteReveal,
		Inputs:      []state.TxInput{{ConnectedTxID: blindVoteTxID}},
		Outputs: []state.TxOutput{
			{TxID: txID, Index: 0, Value: 10000, Type: state.TxOutputTypeBsq},
			{TxID: txID, Index: 1, OpReturnData: marker, Type: state.TxOutputTypeVoteRevealOpReturn},
		},
	}
}
