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

package issuance_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aejontargaryen/bisq-core/database/sqlite"
	"github.com/aejontargaryen/bisq-core/event"
	"github.com/aejontargaryen/bisq-core/issuance"
	"github.com/aejontargaryen/bisq-core/period"
	"github.com/aejontargaryen/bisq-core/proposal"
	"github.com/aejontargaryen/bisq-core/state"
)

const (
	testCompTxID  = "c0a0000000000000000000000000000000000000000000000000000000000001"
	testOtherTxID = "0e0e000000000000000000000000000000000000000000000000000000000002"
)

var testAddress = base58.CheckEncode(bytes.Repeat([]byte{0x42}, 20), 0x00)

type testEnv struct {
	store    *sqlite.Store
	periods  *period.Schedule
	eventBus *event.EventBus
	reg      *prometheus.Registry
	svc      *issuance.Service
}

// newTestEnv uses 10 block phases starting at height 0: PROPOSAL 0-9,
// BLIND_VOTE 10-19, VOTE_REVEAL 20-29, RESULT 30-39
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(sqlite.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	periods, err := period.NewSchedule(0, period.Durations{
		Proposal:   10,
		BlindVote:  10,
		VoteReveal: 10,
		Result:     10,
	})
	require.NoError(t, err)
	env := &testEnv{
		store:    store,
		periods:  periods,
		eventBus: event.NewEventBus(nil, nil),
		reg:      prometheus.NewRegistry(),
	}
	env.svc = issuance.NewService(issuance.ServiceConfig{
		PromRegistry: env.reg,
		EventBus:     env.eventBus,
		ChainState:   store,
		Periods:      periods,
	})
	t.Cleanup(func() {
		env.eventBus.Stop()
		require.NoError(t, store.Close())
	})
	return env
}

func (e *testEnv) addCompensationTx(t *testing.T, txID string, height int, value int64, address string) {
	t.Helper()
	require.NoError(t, e.store.AddTx(&state.Tx{
		ID:          txID,
		BlockHeight: height,
		Type:        state.TxTypeCompensationRequest,
		Outputs: []state.TxOutput{
			{TxID: txID, Index: 0, Value: 500, BlockHeight: height, Type: state.TxOutputTypeBsq},
			{
				TxID:        txID,
				Index:       1,
				Value:       value,
				Address:     address,
				BlockHeight: height,
				Type:        state.TxOutputTypeIssuanceCandidate,
			},
			{TxID: txID, Index: 2, BlockHeight: height, Type: state.TxOutputTypeProposalOpReturn},
		},
	}))
}

func testProposal(t *testing.T, amount int64) *proposal.CompensationProposal {
	t.Helper()
	p, err := proposal.NewCompensationProposal(
		"alice",
		"Dev work",
		"Compensation for dev work",
		"https://example.com/1",
		[]byte{0x02, 0x01},
		amount,
		proposal.AddressPrefix+testAddress,
	)
	require.NoError(t, err)
	anchored, ok := proposal.WithTxID(p, testCompTxID).(*proposal.CompensationProposal)
	require.True(t, ok)
	return anchored
}

func TestIssue(t *testing.T) {
	env := newTestEnv(t)
	env.addCompensationTx(t, testCompTxID, 5, 1000, testAddress)
	_, issuedCh := env.eventBus.Subscribe(issuance.IssuanceEventType)
	p := testProposal(t, 1000)

	got, err := env.svc.Issue(p, 35)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testCompTxID, got.TxID)
	assert.Equal(t, int64(1000), got.Amount)
	assert.Equal(t, testAddress, got.RecipientAddress)
	// Recorded at the height of the issuance output, not the height Issue
	// was called at
	assert.Equal(t, 5, got.ChainHeight)

	recorded, err := env.store.Issuances()
	require.NoError(t, err)
	assert.Equal(t, []state.Issuance{*got}, recorded)
	evt := <-issuedCh
	assert.Equal(t, issuance.IssuanceEvent{Issuance: *got, ProposalUID: p.UID}, evt.Data)
	expected := `
# HELP dao_issuances_total total issuances recorded
# TYPE dao_issuances_total counter
dao_issuances_total 1
# HELP dao_issued_amount_total total BSQ amount issued
# TYPE dao_issued_amount_total counter
dao_issued_amount_total 1000
`
	require.NoError(t, testutil.GatherAndCompare(
		env.reg,
		strings.NewReader(expected),
		"dao_issuances_total",
		"dao_issued_amount_total",
	))

	// Issuing again keeps the first record
	again, err := env.svc.Issue(p, 36)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	recorded, err = env.store.Issuances()
	require.NoError(t, err)
	assert.Len(t, recorded, 1)
}

func TestIssueRules(t *testing.T) {
	testDefs := []struct {
		name        string
		txID        string
		height      int
		value       int64
		address     string
		chainHeight int
	}{
		{"amount off by one", testCompTxID, 5, 999, testAddress, 35},
		{"over issuance", testCompTxID, 5, 1001, testAddress, 35},
		{"other tx", testOtherTxID, 5, 1000, testAddress, 35},
		{"address with prefix", testCompTxID, 5, 1000, proposal.AddressPrefix + testAddress, 35},
		{"other address", testCompTxID, 5, 1000, "1OtherAddress", 35},
		{"anchored outside proposal phase", testCompTxID, 12, 1000, testAddress, 35},
		{"previous cycle", testCompTxID, 5, 1000, testAddress, 45},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.addCompensationTx(t, testDef.txID, testDef.height, testDef.value, testDef.address)
			got, err := env.svc.Issue(testProposal(t, 1000), testDef.chainHeight)
			require.NoError(t, err)
			assert.Nil(t, got)
			recorded, err := env.store.Issuances()
			require.NoError(t, err)
			assert.Empty(t, recorded)
		})
	}
}

func TestIssueRejectsUnanchoredProposal(t *testing.T) {
	env := newTestEnv(t)
	p := testProposal(t, 1000)
	p.TxID = ""
	_, err := env.svc.Issue(p, 35)
	assert.ErrorIs(t, err, issuance.ErrUnanchoredProposal)
	_, err = env.svc.Issue(nil, 35)
	assert.ErrorIs(t, err, issuance.ErrUnanchoredProposal)
}
