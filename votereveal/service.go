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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aejontargaryen/bisq-core/blindvote"
	"github.com/aejontargaryen/bisq-core/event"
	"github.com/aejontargaryen/bisq-core/state"
	"github.com/aejontargaryen/bisq-core/txbroadcast"
	"github.com/aejontargaryen/bisq-core/wallet"
)

const RevealedEventType event.EventType = "votereveal.revealed"

// RevealedEvent is emitted after a vote reveal tx was handed to the
// broadcaster
type RevealedEvent struct {
	BlindVoteTxID string
	RevealTxID    string
}

// BlindVoteSource returns the blind votes received from the network
type BlindVoteSource interface {
	BlindVotes() ([]blindvote.BlindVote, error)
}

type ServiceConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	ChainState   state.ChainState
	Periods      state.PeriodService
	Wallet       wallet.Builder
	Broadcaster  blindvote.Broadcaster
	Validator    *blindvote.Validator
	BlindVotes   BlindVoteSource
	MyVotes      *blindvote.MyVoteList
}

// Reveal describes one vote reveal tx handed to the broadcaster. Broadcast
// delivers the outcome and is then closed.
type Reveal struct {
	BlindVoteTxID string
	RevealTxID    string
	Broadcast     <-chan txbroadcast.Result
}

// Service reveals own blind votes once the VOTE_REVEAL phase starts
type Service struct {
	config  ServiceConfig
	logger  *slog.Logger
	metrics struct {
		revealed prometheus.Counter
		failures prometheus.Counter
	}
	subId    event.EventSubscriberId
	wg       sync.WaitGroup
	revealMu sync.Mutex
	stopped  bool
	started  bool
	sync.Mutex
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		config: cfg,
		logger: cfg.Logger,
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if s.config.Validator == nil {
		s.config.Validator = blindvote.NewValidator(blindvote.ValidatorConfig{
			ChainState: cfg.ChainState,
			Periods:    cfg.Periods,
			Logger:     s.logger,
		})
	}
	// Init metrics
	promautoFactory := promauto.With(cfg.PromRegistry)
	s.metrics.revealed = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "dao_votes_revealed_total",
		Help: "total own vote reveal transactions published",
	})
	s.metrics.failures = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "dao_vote_reveal_failures_total",
		Help: "total own vote reveals that could not be built or broadcast",
	})
	return s
}

func (s *Service) track() bool {
	s.Lock()
	defer s.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

// HashOfConfirmedBlindVotes hashes the valid and confirmed blind votes of the
// current cycle
func (s *Service) HashOfConfirmedBlindVotes() ([]byte, error) {
	votes, err := s.config.BlindVotes.BlindVotes()
	if err != nil {
		return nil, fmt.Errorf("load blind votes: %w", err)
	}
	confirmed := make([]blindvote.BlindVote, 0, len(votes))
	for i := range votes {
		if s.config.Validator.IsValidAndConfirmed(&votes[i]) {
			confirmed = append(confirmed, votes[i])
		}
	}
	return HashOfBlindVoteList(confirmed)
}

// RevealVotes publishes a reveal tx for every own blind vote of the current
// cycle that is confirmed and not yet revealed. Votes that cannot be
// revealed are skipped and their errors joined into the returned error.
func (s *Service) RevealVotes(ctx context.Context, chainHeight int) ([]Reveal, error) {
	if !s.track() {
		return nil, ErrServiceStopped
	}
	defer s.wg.Done()
	if !s.config.Periods.IsInPhase(chainHeight, state.PhaseVoteReveal) {
		return nil, fmt.Errorf("%w: %d", ErrNotInRevealPhase, chainHeight)
	}
	s.revealMu.Lock()
	defer s.revealMu.Unlock()
	var pending []blindvote.MyVote
	for _, myVote := range s.config.MyVotes.List() {
		if myVote.RevealTxID != "" {
			continue
		}
		if !s.config.Validator.IsValidAndConfirmed(&myVote.BlindVote) {
			s.logger.Debug(
				"own blind vote not eligible for reveal",
				"component", "votereveal",
				"tx_id", myVote.BlindVote.TxID,
			)
			continue
		}
		pending = append(pending, myVote)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	hash, err := s.HashOfConfirmedBlindVotes()
	if err != nil {
		return nil, err
	}
	var reveals []Reveal
	var errs []error
	for _, myVote := range pending {
		reveal, err := s.reveal(ctx, myVote, hash)
		if err != nil {
			s.metrics.failures.Inc()
			s.logger.Warn(
				"failed to reveal own vote",
				"component", "votereveal",
				"tx_id", myVote.BlindVote.TxID,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		reveals = append(reveals, reveal)
	}
	return reveals, errors.Join(errs...)
}

func (s *Service) reveal(
	ctx context.Context,
	myVote blindvote.MyVote,
	hash []byte,
) (Reveal, error) {
	txID := myVote.BlindVote.TxID
	blindVoteTx, err := s.config.ChainState.Tx(txID)
	if err != nil {
		return Reveal{}, fmt.Errorf("lookup blind vote tx %s: %w", txID, err)
	}
	stake, err := StakeOutput(blindVoteTx)
	if err != nil {
		return Reveal{}, err
	}
	opReturnData, err := OpReturnData(hash, myVote.SecretKey)
	if err != nil {
		return Reveal{}, fmt.Errorf("build reveal marker for %s: %w", txID, err)
	}
	tx, err := s.config.Wallet.BuildVoteRevealTx(stake, opReturnData)
	if err != nil {
		return Reveal{}, fmt.Errorf("build reveal tx for %s: %w", txID, err)
	}
	// Recorded before the broadcast so a restart does not reveal twice
	if err := s.config.MyVotes.SetRevealTxID(txID, tx.ID); err != nil {
		return Reveal{}, fmt.Errorf("record reveal tx for %s: %w", txID, err)
	}
	broadcastCh := s.config.Broadcaster.Broadcast(context.WithoutCancel(ctx), tx)
	resultCh := make(chan txbroadcast.Result, 1)
	s.wg.Add(1)
	go s.watchBroadcast(txID, tx.ID, broadcastCh, resultCh)
	s.metrics.revealed.Inc()
	s.logger.Info(
		"revealed own vote",
		"component", "votereveal",
		"tx_id", txID,
		"reveal_tx_id", tx.ID,
		"stake", stake.Value,
	)
	if s.config.EventBus != nil {
		s.config.EventBus.PublishAsync(
			RevealedEventType,
			event.NewEvent(
				RevealedEventType,
				RevealedEvent{BlindVoteTxID: txID, RevealTxID: tx.ID},
			),
		)
	}
	return Reveal{
		BlindVoteTxID: txID,
		RevealTxID:    tx.ID,
		Broadcast:     resultCh,
	}, nil
}

func (s *Service) watchBroadcast(
	blindVoteTxID string,
	revealTxID string,
	in <-chan txbroadcast.Result,
	out chan<- txbroadcast.Result,
) {
	defer s.wg.Done()
	defer close(out)
	result, ok := <-in
	if !ok {
		result = txbroadcast.Result{
			TxID:    revealTxID,
			Outcome: txbroadcast.OutcomeFailure,
			Err:     errors.New("broadcast ended without result"),
		}
	}
	if result.Outcome != txbroadcast.OutcomeSuccess {
		s.metrics.failures.Inc()
		s.logger.Error(
			"vote reveal tx broadcast failed, stake stays locked until resolved",
			"component", "votereveal",
			"tx_id", blindVoteTxID,
			"reveal_tx_id", revealTxID,
			"outcome", result.Outcome.String(),
			"error", result.Err,
		)
	}
	out <- result
}

// Start subscribes to chain height updates and reveals own votes when the
// VOTE_REVEAL phase is reached
func (s *Service) Start() error {
	s.Lock()
	defer s.Unlock()
	if s.stopped {
		return ErrServiceStopped
	}
	if s.config.EventBus == nil || s.started {
		return nil
	}
	s.subId = s.config.EventBus.SubscribeFunc(
		state.ChainHeightEventType,
		s.handleChainHeightEvent,
	)
	s.started = true
	return nil
}

func (s *Service) handleChainHeightEvent(evt event.Event) {
	data, ok := evt.Data.(state.ChainHeightEvent)
	if !ok {
		return
	}
	if !s.config.Periods.IsInPhase(data.Height, state.PhaseVoteReveal) {
		return
	}
	if _, err := s.RevealVotes(context.Background(), data.Height); err != nil &&
		!errors.Is(err, ErrServiceStopped) {
		s.logger.Warn(
			"vote reveal incomplete",
			"component", "votereveal",
			"chain_height", data.Height,
			"error", err,
		)
	}
}

// Stop drops the chain height subscription and waits for in-flight reveals
// and broadcast watchers
func (s *Service) Stop(ctx context.Context) error {
	s.Lock()
	s.stopped = true
	started := s.started
	s.started = false
	s.Unlock()
	if started {
		s.config.EventBus.Unsubscribe(state.ChainHeightEventType, s.subId)
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for vote reveal service: %w", ctx.Err())
	}
}
