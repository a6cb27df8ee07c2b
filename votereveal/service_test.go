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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aejontargaryen/bisq-core/blindvote"
	"github.com/aejontargaryen/bisq-core/database"
	"github.com/aejontargaryen/bisq-core/event"
	"github.com/aejontargaryen/bisq-core/period"
	"github.com/aejontargaryen/bisq-core/state"
	"github.com/aejontargaryen/bisq-core/txbroadcast"
	"github.com/aejontargaryen/bisq-core/votereveal"
)

type testEnv struct {
	chainState  *fakeChainState
	periods     *period.Schedule
	wallet      *fakeWallet
	broadcaster *fakeBroadcaster
	myVotes     *blindvote.MyVoteList
	eventBus    *event.EventBus
	own         sealedVote
	foreign     sealedVote
	svc         *votereveal.Service
}

// newTestEnv has one own vote and one foreign vote, both confirmed in the
// BLIND_VOTE phase of the first cycle
func newTestEnv(t *testing.T, chainHeight int) *testEnv {
	t.Helper()
	db, err := database.New(database.Config{})
	require.NoError(t, err)
	env := &testEnv{
		chainState:  newFakeChainState(),
		periods:     testSchedule(t, chainHeight),
		wallet:      &fakeWallet{},
		broadcaster: &fakeBroadcaster{},
		myVotes:     blindvote.NewMyVoteList(db),
		eventBus:    event.NewEventBus(nil, nil),
		own:         newSealedVote(t, testBlindVoteTx1, blindvote.VoteAccept),
		foreign:     newSealedVote(t, testBlindVoteTx2, blindvote.VoteReject),
	}
	env.chainState.addTx(blindVoteTx(testBlindVoteTx1, 12))
	env.chainState.addTx(blindVoteTx(testBlindVoteTx2, 15))
	require.NoError(t, env.myVotes.Add(blindvote.MyVote{
		BlindVote:      env.own.blindVote,
		SecretKey:      env.own.key,
		Ballots:        env.own.ballots,
		CreationHeight: 12,
		BroadcastState: blindvote.BroadcastDone,
	}))
	env.svc = votereveal.NewService(votereveal.ServiceConfig{
		PromRegistry: prometheus.NewRegistry(),
		EventBus:     env.eventBus,
		ChainState:   env.chainState,
		Periods:      env.periods,
		Wallet:       env.wallet,
		Broadcaster:  env.broadcaster,
		BlindVotes:   staticBlindVotes{env.foreign.blindVote, env.own.blindVote},
		MyVotes:      env.myVotes,
	})
	t.Cleanup(func() {
		require.NoError(t, env.svc.Stop(context.Background()))
		env.eventBus.Stop()
		require.NoError(t, db.Close())
	})
	return env
}

func TestRevealVotes(t *testing.T) {
	env := newTestEnv(t, 22)
	reveals, err := env.svc.RevealVotes(context.Background(), 22)
	require.NoError(t, err)
	require.Len(t, reveals, 1)
	assert.Equal(t, testBlindVoteTx1, reveals[0].BlindVoteTxID)
	assert.Equal(t, testRevealTx1, reveals[0].RevealTxID)

	// Spends the locked stake and commits to both confirmed votes
	require.Equal(t, 1, env.wallet.count())
	request := env.wallet.requests[0]
	assert.Equal(t, testBlindVoteTx1, request.stake.TxID)
	assert.Equal(t, state.TxOutputTypeBlindVoteLockStake, request.stake.Type)
	expectedHash, err := votereveal.HashOfBlindVoteList(
		[]blindvote.BlindVote{env.own.blindVote, env.foreign.blindVote},
	)
	require.NoError(t, err)
	hash, key, err := votereveal.ParseOpReturnData(request.opReturnData)
	require.NoError(t, err)
	assert.Equal(t, expectedHash, hash)
	assert.Equal(t, env.own.key, key)

	select {
	case res := <-reveals[0].Broadcast:
		assert.Equal(t, txbroadcast.OutcomeSuccess, res.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for broadcast result")
	}
	myVote, ok := env.myVotes.Get(testBlindVoteTx1)
	require.True(t, ok)
	assert.Equal(t, testRevealTx1, myVote.RevealTxID)

	// A second run has nothing left to reveal
	reveals, err = env.svc.RevealVotes(context.Background(), 23)
	require.NoError(t, err)
	assert.Empty(t, reveals)
	assert.Equal(t, 1, env.wallet.count())
}

func TestRevealVotesOnlyInRevealPhase(t *testing.T) {
	env := newTestEnv(t, 15)
	_, err := env.svc.RevealVotes(context.Background(), 15)
	require.ErrorIs(t, err, votereveal.ErrNotInRevealPhase)
	_, err = env.svc.RevealVotes(context.Background(), 31)
	require.ErrorIs(t, err, votereveal.ErrNotInRevealPhase)
	assert.Equal(t, 0, env.wallet.count())
}

func TestRevealVotesSkipsUnconfirmed(t *testing.T) {
	env := newTestEnv(t, 22)
	env.chainState.Lock()
	delete(env.chainState.txs, testBlindVoteTx1)
	env.chainState.Unlock()
	reveals, err := env.svc.RevealVotes(context.Background(), 22)
	require.NoError(t, err)
	assert.Empty(t, reveals)
	assert.Equal(t, 0, env.wallet.count())
}

func TestRevealVotesWalletFailure(t *testing.T) {
	env := newTestEnv(t, 22)
	env.wallet.err = errBuild
	reveals, err := env.svc.RevealVotes(context.Background(), 22)
	require.ErrorIs(t, err, errBuild)
	assert.Empty(t, reveals)
	myVote, ok := env.myVotes.Get(testBlindVoteTx1)
	require.True(t, ok)
	assert.Empty(t, myVote.RevealTxID)

	// Retried on the next attempt
	env.wallet.err = nil
	reveals, err = env.svc.RevealVotes(context.Background(), 23)
	require.NoError(t, err)
	assert.Len(t, reveals, 1)
}

func TestRevealOnChainHeightEvent(t *testing.T) {
	env := newTestEnv(t, 19)
	require.NoError(t, env.svc.Start())
	_, revealedCh := env.eventBus.Subscribe(votereveal.RevealedEventType)

	env.eventBus.Publish(
		state.ChainHeightEventType,
		event.NewEvent(state.ChainHeightEventType, state.ChainHeightEvent{Height: 19}),
	)
	assert.Never(t, func() bool { return env.wallet.count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	env.periods.SetChainHeight(20)
	env.eventBus.Publish(
		state.ChainHeightEventType,
		event.NewEvent(state.ChainHeightEventType, state.ChainHeightEvent{Height: 20}),
	)
	select {
	case evt := <-revealedCh:
		assert.Equal(
			t,
			votereveal.RevealedEvent{BlindVoteTxID: testBlindVoteTx1, RevealTxID: testRevealTx1},
			evt.Data,
		)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for revealed event")
	}
	assert.Equal(t, 1, env.wallet.count())
}

func TestRevealAfterStop(t *testing.T) {
	env := newTestEnv(t, 22)
	require.NoError(t, env.svc.Stop(context.Background()))
	_, err := env.svc.RevealVotes(context.Background(), 22)
	assert.ErrorIs(t, err, votereveal.ErrServiceStopped)
}
