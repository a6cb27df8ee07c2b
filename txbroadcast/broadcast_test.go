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

package txbroadcast

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aejontargaryen/bisq-core/event"
	"github.com/aejontargaryen/bisq-core/wallet"
)

// mockNetwork returns the configured error, or blocks until the context is
// done when block is set
type mockNetwork struct {
	err   error
	block bool
}

func (n *mockNetwork) SubmitTx(ctx context.Context, tx *wallet.Tx) error {
	if n.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return n.err
}

func newTestBroadcaster(t *testing.T, network Network, timeout time.Duration) (*Broadcaster, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewBroadcaster(BroadcasterConfig{
		PromRegistry: reg,
		Network:      network,
		Timeout:      timeout,
	}), reg
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res, ok := <-ch:
		require.True(t, ok, "result channel closed without result")
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for broadcast result")
	}
	return Result{}
}

func TestBroadcastOutcomes(t *testing.T) {
	defer goleak.VerifyNone(t)
	testDefs := []struct {
		name    string
		network *mockNetwork
		outcome Outcome
		errIs   error
	}{
		{"success", &mockNetwork{}, OutcomeSuccess, nil},
		{"malleability", &mockNetwork{err: fmt.Errorf("peer: %w", ErrMalleability)}, OutcomeMalleability, ErrMalleability},
		{"timeout", &mockNetwork{block: true}, OutcomeTimeout, ErrTimeout},
		{"failure", &mockNetwork{err: errors.New("connection refused")}, OutcomeFailure, nil},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			b, reg := newTestBroadcaster(t, testDef.network, 50*time.Millisecond)
			res := waitResult(t, b.Broadcast(context.Background(), &wallet.Tx{ID: "tx1"}))
			assert.Equal(t, testDef.outcome, res.Outcome)
			assert.Equal(t, "tx1", res.TxID)
			if testDef.outcome == OutcomeSuccess {
				assert.NoError(t, res.Err)
			} else {
				assert.Error(t, res.Err)
			}
			if testDef.errIs != nil {
				assert.ErrorIs(t, res.Err, testDef.errIs)
			}
			assert.Equal(t, 0, b.Pending())
			assert.InDelta(
				t,
				1,
				testutil.ToFloat64(b.metrics.broadcasts.WithLabelValues(testDef.outcome.String())),
				0,
			)
			count, err := testutil.GatherAndCount(reg, "dao_tx_broadcasts_total")
			require.NoError(t, err)
			assert.Equal(t, 1, count)
			require.NoError(t, b.Stop(context.Background()))
		})
	}
}

func TestBroadcastCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	b, _ := newTestBroadcaster(t, &mockNetwork{block: true}, time.Minute)
	ch := b.Broadcast(context.Background(), &wallet.Tx{ID: "tx1"})
	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, b.Cancel("tx1"))
	res := waitResult(t, ch)
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, b.Cancel("tx1"))
	require.NoError(t, b.Stop(context.Background()))
}

func TestBroadcastAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	b, _ := newTestBroadcaster(t, &mockNetwork{}, time.Second)
	require.NoError(t, b.Stop(context.Background()))
	res := waitResult(t, b.Broadcast(context.Background(), &wallet.Tx{ID: "tx1"}))
	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrStopped)
}

func TestBroadcastPublishesEvent(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, evtCh := eb.Subscribe(BroadcastEventType)
	b := NewBroadcaster(BroadcasterConfig{
		Network:  &mockNetwork{},
		EventBus: eb,
	})
	waitResult(t, b.Broadcast(context.Background(), &wallet.Tx{ID: "tx9"}))
	select {
	case evt := <-evtCh:
		data, ok := evt.Data.(BroadcastEvent)
		require.True(t, ok, "unexpected event data type %T", evt.Data)
		assert.Equal(t, "tx9", data.TxID)
		assert.Equal(t, OutcomeSuccess, data.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for broadcast event")
	}
	require.NoError(t, b.Stop(context.Background()))
}
