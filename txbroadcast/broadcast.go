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
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aejontargaryen/bisq-core/event"
	"github.com/aejontargaryen/bisq-core/wallet"
)

const (
	BroadcastEventType event.EventType = "txbroadcast.result"

	DefaultTimeout = 30 * time.Second
)

var (
	ErrMalleability = errors.New("transaction malleability detected")
	ErrTimeout      = errors.New("broadcast timed out")
	ErrStopped      = errors.New("broadcaster stopped")
)

// Outcome is the final state of a broadcast
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeMalleability
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeMalleability:
		return "malleability"
	default:
		return "failure"
	}
}

// Result is delivered exactly once per broadcast
type Result struct {
	Err     error
	TxID    string
	Outcome Outcome
}

// BroadcastEvent is published for every finished broadcast
type BroadcastEvent struct {
	TxID    string
	Outcome Outcome
	Err     error
}

// Network submits a signed transaction to the blockchain network. It must
// return an error wrapping ErrMalleability when the transaction was mutated
// in flight.
type Network interface {
	SubmitTx(ctx context.Context, tx *wallet.Tx) error
}

type BroadcasterConfig struct {
	PromRegistry prometheus.Registerer
	Network      Network
	Logger       *slog.Logger
	EventBus     *event.EventBus
	Timeout      time.Duration
}

type pendingBroadcast struct {
	cancel context.CancelFunc
}

// Broadcaster runs each broadcast in its own goroutine so callers never
// block on the network
type Broadcaster struct {
	config  BroadcasterConfig
	metrics struct {
		broadcasts *prometheus.CounterVec
		pending    prometheus.Gauge
	}
	logger   *slog.Logger
	eventBus *event.EventBus
	network  Network
	pending  map[string]*pendingBroadcast
	wg       sync.WaitGroup
	stopped  bool
	sync.Mutex
}

func NewBroadcaster(config BroadcasterConfig) *Broadcaster {
	b := &Broadcaster{
		config:   config,
		eventBus: config.EventBus,
		network:  config.Network,
		pending:  make(map[string]*pendingBroadcast),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		b.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		b.logger = config.Logger
	}
	if b.config.Timeout <= 0 {
		b.config.Timeout = DefaultTimeout
	}
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	b.metrics.broadcasts = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dao_tx_broadcasts_total",
			Help: "total transaction broadcasts by outcome",
		},
		[]string{"outcome"},
	)
	b.metrics.pending = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "dao_tx_broadcasts_pending",
		Help: "current count of in-flight transaction broadcasts",
	})
	return b
}

// Broadcast submits tx in the background. The returned channel receives a
// single Result and is then closed.
func (b *Broadcaster) Broadcast(ctx context.Context, tx *wallet.Tx) <-chan Result {
	resultCh := make(chan Result, 1)
	b.Lock()
	if b.stopped {
		b.Unlock()
		resultCh <- Result{TxID: tx.ID, Outcome: OutcomeFailure, Err: ErrStopped}
		close(resultCh)
		return resultCh
	}
	bctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	if prev, ok := b.pending[tx.ID]; ok {
		// A rebroadcast supersedes the previous attempt
		prev.cancel()
	}
	entry := &pendingBroadcast{cancel: cancel}
	b.pending[tx.ID] = entry
	b.wg.Add(1)
	b.Unlock()
	b.metrics.pending.Inc()
	go func() {
		defer b.wg.Done()
		defer b.metrics.pending.Dec()
		defer cancel()
		err := b.network.SubmitTx(bctx, tx)
		result := classify(bctx, tx.ID, err)
		b.Lock()
		if b.pending[tx.ID] == entry {
			delete(b.pending, tx.ID)
		}
		b.Unlock()
		b.finish(result)
		resultCh <- result
		close(resultCh)
	}()
	return resultCh
}

func classify(ctx context.Context, txID string, err error) Result {
	result := Result{TxID: txID, Err: err}
	switch {
	case err == nil:
		result.Outcome = OutcomeSuccess
	case errors.Is(err, ErrMalleability):
		result.Outcome = OutcomeMalleability
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Outcome = OutcomeTimeout
		result.Err = fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		result.Outcome = OutcomeFailure
	}
	return result
}

func (b *Broadcaster) finish(result Result) {
	b.metrics.broadcasts.WithLabelValues(result.Outcome.String()).Inc()
	if result.Outcome == OutcomeSuccess {
		b.logger.Debug(
			"broadcast transaction",
			"component", "txbroadcast",
			"tx_id", result.TxID,
		)
	} else {
		b.logger.Warn(
			"transaction broadcast failed",
			"component", "txbroadcast",
			"tx_id", result.TxID,
			"outcome", result.Outcome.String(),
			"error", result.Err,
		)
	}
	if b.eventBus != nil {
		b.eventBus.PublishAsync(
			BroadcastEventType,
			event.NewEvent(
				BroadcastEventType,
				BroadcastEvent{
					TxID:    result.TxID,
					Outcome: result.Outcome,
					Err:     result.Err,
				},
			),
		)
	}
}

// Cancel aborts the in-flight broadcast of txID. The broadcast still
// delivers a failure result.
func (b *Broadcaster) Cancel(txID string) bool {
	b.Lock()
	defer b.Unlock()
	entry, ok := b.pending[txID]
	if ok {
		entry.cancel()
	}
	return ok
}

// Pending returns the number of in-flight broadcasts
func (b *Broadcaster) Pending() int {
	b.Lock()
	defer b.Unlock()
	return len(b.pending)
}

// Stop cancels all in-flight broadcasts and waits for them to report
func (b *Broadcaster) Stop(ctx context.Context) error {
	b.Lock()
	b.stopped = true
	for _, entry := range b.pending {
		entry.cancel()
	}
	b.Unlock()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for broadcasts: %w", ctx.Err())
	}
}
