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

package blindvote_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/aejontargaryen/bisq-core/blindvote"
	"github.com/aejontargaryen/bisq-core/database"
	"github.com/aejontargaryen/bisq-core/encryption"
	"github.com/aejontargaryen/bisq-core/event"
	"github.com/aejontargaryen/bisq-core/p2p"
	"github.com/aejontargaryen/bisq-core/period"
	"github.com/aejontargaryen/bisq-core/state"
	"github.com/aejontargaryen/bisq-core/txbroadcast"
	"github.com/aejontargaryen/bisq-core/wallet"
)

const (
	testBlindVoteTxID = "b1d0000000000000000000000000000000000000000000000000000000000001"
	testCompTxID      = "c0a0000000000000000000000000000000000000000000000000000000000001"
	testProposalTxA   = "aaaa000000000000000000000000000000000000000000000000000000000000"
	testProposalTxB   = "bbbb000000000000000000000000000000000000000000000000000000000000"
	testProposalTxC   = "cccc000000000000000000000000000000000000000000000000000000000000"
	testFee           = 200
)

var errLookup = errors.New("lookup failed")

type fakeChainState struct {
	txs       map[string]*state.Tx
	err       error
	issuances []state.Issuance
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
	if c.err != nil {
		return nil, c.err
	}
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
	c.Lock()
	defer c.Unlock()
	return slices.Clone(c.issuances), nil
}

func (c *fakeChainState) Issuance(txID string) (*state.Issuance, error) {
	return nil, state.ErrIssuanceNotFound
}

func (c *fakeChainState) AddIssuance(issuance state.Issuance) error {
	c.Lock()
	defer c.Unlock()
	c.issuances = append(c.issuances, issuance)
	return nil
}

type fakeParams struct {
	err     error
	heights []int
	fee     int64
	sync.Mutex
}

func (p *fakeParams) ParamValue(param state.Param, height int) (int64, error) {
	p.Lock()
	defer p.Unlock()
	p.heights = append(p.heights, height)
	if p.err != nil {
		return 0, p.err
	}
	if param != state.ParamBlindVoteFee {
		return 0, errors.New("unexpected param")
	}
	return p.fee, nil
}

type fakeWallet struct {
	err          error
	txID         string
	opReturnData [][]byte
	stakes       []int64
	fees         []int64
	sync.Mutex
}

func (w *fakeWallet) BuildBlindVoteTx(stake int64, fee int64, opReturnData []byte) (*wallet.Tx, error) {
	w.Lock()
	defer w.Unlock()
	w.stakes = append(w.stakes, stake)
	w.fees = append(w.fees, fee)
	w.opReturnData = append(w.opReturnData, slices.Clone(opReturnData))
	if w.err != nil {
		return nil, w.err
	}
	return &wallet.Tx{ID: w.txID, MiningFee: 1234, Size: 250}, nil
}

func (w *fakeWallet) BuildVoteRevealTx(stakeOutput state.TxOutput, opReturnData []byte) (*wallet.Tx, error) {
	return nil, errors.New("not implemented")
}

// fakeBroadcaster reports outcome once release is closed, or at once if
// release is nil
type fakeBroadcaster struct {
	release chan struct{}
	txIDs   []string
	outcome txbroadcast.Outcome
	sync.Mutex
}

func (b *fakeBroadcaster) Broadcast(ctx context.Context, tx *wallet.Tx) <-chan txbroadcast.Result {
	b.Lock()
	b.txIDs = append(b.txIDs, tx.ID)
	release := b.release
	outcome := b.outcome
	b.Unlock()
	ch := make(chan txbroadcast.Result, 1)
	go func() {
		if release != nil {
			<-release
		}
		res := txbroadcast.Result{TxID: tx.ID, Outcome: outcome}
		if outcome != txbroadcast.OutcomeSuccess {
			res.Err = txbroadcast.ErrTimeout
		}
		ch <- res
		close(ch)
	}()
	return ch
}

func (b *fakeBroadcaster) count() int {
	b.Lock()
	defer b.Unlock()
	return len(b.txIDs)
}

type fakeNetwork struct {
	payloads []p2p.Payload
	reject   bool
	sync.Mutex
}

func (n *fakeNetwork) AddPayload(payload p2p.Payload) bool {
	n.Lock()
	defer n.Unlock()
	if n.reject {
		return false
	}
	n.payloads = append(n.payloads, payload)
	return true
}

func (n *fakeNetwork) count() int {
	n.Lock()
	defer n.Unlock()
	return len(n.payloads)
}

type testKeyRing map[string]*btcec.PrivateKey

func (k testKeyRing) PrivateKey(pubKeyHex string) (*btcec.PrivateKey, bool) {
	key, ok := k[pubKeyHex]
	return key, ok
}

type staticBallots struct {
	ballots blindvote.BallotList
}

func (s staticBallots) Ballots() (blindvote.BallotList, error) {
	return s.ballots, nil
}

type staticProposals []string

func (s staticProposals) OwnCompensationTxIDs() ([]string, error) {
	return s, nil
}

type fullMeritOracle struct{}

func (fullMeritOracle) MeritValue(issuance state.Issuance, chainHeight int) int64 {
	return issuance.Amount
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

func testBallots() blindvote.BallotList {
	return blindvote.BallotList{
		{ProposalTxID: testProposalTxC, Vote: blindvote.VoteReject},
		{ProposalTxID: testProposalTxA, Vote: blindvote.VoteAccept},
		{ProposalTxID: testProposalTxB, Vote: blindvote.VoteNeutral},
	}
}

type testEnv struct {
	chainState   *fakeChainState
	periods      *period.Schedule
	params       *fakeParams
	wallet       *fakeWallet
	broadcaster  *fakeBroadcaster
	network      *fakeNetwork
	db           *database.Database
	myBlindVotes *blindvote.MyBlindVoteList
	myVotes      *blindvote.MyVoteList
	eventBus     *event.EventBus
	reg          *prometheus.Registry
	pubKeyHex    string
	svc          *blindvote.Service
}

func newTestEnv(t *testing.T, chainHeight int) *testEnv {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	db, err := database.New(database.Config{})
	require.NoError(t, err)
	env := &testEnv{
		chainState:   newFakeChainState(),
		periods:      testSchedule(t, chainHeight),
		params:       &fakeParams{fee: testFee},
		wallet:       &fakeWallet{txID: testBlindVoteTxID},
		broadcaster:  &fakeBroadcaster{},
		network:      &fakeNetwork{},
		db:           db,
		myBlindVotes: blindvote.NewMyBlindVoteList(db),
		myVotes:      blindvote.NewMyVoteList(db),
		eventBus:     event.NewEventBus(nil, nil),
		reg:          prometheus.NewRegistry(),
		pubKeyHex:    encryption.PubKeyHex(key.PubKey()),
	}
	env.chainState.issuances = []state.Issuance{
		{TxID: testCompTxID, Amount: 500, GranteePubKey: env.pubKeyHex, ChainHeight: 5},
	}
	env.svc = blindvote.NewService(blindvote.ServiceConfig{
		PromRegistry: env.reg,
		EventBus:     env.eventBus,
		ChainState:   env.chainState,
		Periods:      env.periods,
		Params:       env.params,
		MeritOracle:  fullMeritOracle{},
		Wallet:       env.wallet,
		Broadcaster:  env.broadcaster,
		Network:      env.network,
		KeyRing:      testKeyRing{env.pubKeyHex: key},
		Ballots:      staticBallots{ballots: testBallots()},
		Proposals:    staticProposals{testCompTxID},
		MyBlindVotes: env.myBlindVotes,
		MyVotes:      env.myVotes,
	})
	t.Cleanup(func() {
		require.NoError(t, env.svc.Stop(context.Background()))
		env.eventBus.Stop()
		require.NoError(t, env.db.Close())
	})
	return env
}
