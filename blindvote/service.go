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

package blindvote

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
	"golang.org/x/sync/singleflight"

	"github.com/aejontargaryen/bisq-core/encryption"
	"github.com/aejontargaryen/bisq-core/event"
	"github.com/aejontargaryen/bisq-core/merit"
	"github.com/aejontargaryen/bisq-core/p2p"
	"github.com/aejontargaryen/bisq-core/state"
	"github.com/aejontargaryen/bisq-core/txbroadcast"
	"github.com/aejontargaryen/bisq-core/wallet"
)

const (
	PublishedEventType   event.EventType = "blindvote.published"
	RepublishedEventType event.EventType = "blindvote.republished"

	DefaultRepublishMinPeers = 4
)

// PublishedEvent is emitted after an own blind vote was persisted and
// handed to the broadcaster
type PublishedEvent struct {
	DisseminationErr error
	TxID             string
	Stake            int64
}

// RepublishedEvent is emitted after own blind votes were re-disseminated
type RepublishedEvent struct {
	Count int
}

// BallotSource returns the voter's current ballots
type BallotSource interface {
	Ballots() (BallotList, error)
}

// ProposalOwner returns the anchoring tx ids of the voter's own
// compensation proposals
type ProposalOwner interface {
	OwnCompensationTxIDs() ([]string, error)
}

// Broadcaster submits a signed transaction asynchronously
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *wallet.Tx) <-chan txbroadcast.Result
}

type ServiceConfig struct {
	PromRegistry      prometheus.Registerer
	Logger            *slog.Logger
	EventBus          *event.EventBus
	ChainState        state.ChainState
	Periods           state.PeriodService
	Params            state.ParamService
	MeritOracle       state.MeritOracle
	Wallet            wallet.Builder
	Broadcaster       Broadcaster
	Network           p2p.Network
	KeyRing           merit.KeyRing
	Ballots           BallotSource
	Proposals         ProposalOwner
	MyBlindVotes      *MyBlindVoteList
	MyVotes           *MyVoteList
	RepublishMinPeers int
	DevMode           bool
}

// PublishResult is returned once the blind vote is persisted. Broadcast
// delivers the outcome of the anchoring tx broadcast and is then closed.
type PublishResult struct {
	DisseminationErr error
	BlindVote        *BlindVote
	Broadcast        <-chan txbroadcast.Result
}

type subscription struct {
	eventType event.EventType
	id        event.EventSubscriberId
}

// Service publishes own blind votes and republishes them when the node
// regains connectivity
type Service struct {
	config    ServiceConfig
	logger    *slog.Logger
	validator *Validator
	metrics   struct {
		published             prometheus.Counter
		republished           prometheus.Counter
		disseminationFailures prometheus.Counter
		broadcastFailures     prometheus.Counter
	}
	republishGroup singleflight.Group
	subs           []subscription
	wg             sync.WaitGroup
	conn           struct {
		peers         int
		bootstrapped  bool
		parseComplete bool
		armed         bool
	}
	stopped bool
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
	if s.config.RepublishMinPeers <= 0 {
		s.config.RepublishMinPeers = DefaultRepublishMinPeers
	}
	s.validator = NewValidator(ValidatorConfig{
		ChainState: cfg.ChainState,
		Periods:    cfg.Periods,
		Logger:     s.logger,
	})
	s.conn.armed = true
	// Init metrics
	promautoFactory := promauto.With(cfg.PromRegistry)
	s.metrics.published = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "dao_blind_votes_published_total",
		Help: "total own blind votes published",
	})
	s.metrics.republished = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "dao_blind_votes_republished_total",
		Help: "total own blind votes re-disseminated",
	})
	s.metrics.disseminationFailures = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "dao_blind_vote_dissemination_failures_total",
		Help: "total blind votes rejected by the p2p network",
	})
	s.metrics.broadcastFailures = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "dao_blind_vote_broadcast_failures_total",
		Help: "total blind vote transactions that failed to broadcast",
	})
	return s
}

// Validator returns the validator bound to the service's chain state
func (s *Service) Validator() *Validator {
	return s.validator
}

// track registers an in-flight operation unless the service is stopped
func (s *Service) track() bool {
	s.Lock()
	defer s.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

// PublishBlindVote encrypts the current ballots, builds the anchoring tx
// and persists the vote before the broadcast outcome is known. Errors
// returned are fatal to the attempt and nothing is broadcast.
func (s *Service) PublishBlindVote(ctx context.Context, stake int64) (*PublishResult, error) {
	if !s.track() {
		return nil, ErrServiceStopped
	}
	defer s.wg.Done()
	if stake <= 0 {
		return nil, ErrInvalidStake
	}
	ballots, err := s.config.Ballots.Ballots()
	if err != nil {
		return nil, fmt.Errorf("load ballots: %w", err)
	}
	sorted := SortBallots(ballots)
	key, err := encryption.GenerateSecretKey()
	if err != nil {
		return nil, NewPublishError(StageKeyGeneration, err)
	}
	encryptedVotes, err := EncryptBallots(sorted, key)
	if err != nil {
		return nil, NewPublishError(StageEncryption, err)
	}
	opReturnData, err := OpReturnData(CommitmentHash(encryptedVotes))
	if err != nil {
		return nil, NewPublishError(StageEncryption, err)
	}
	chainHeight := s.config.Periods.ChainHeight()
	fee, err := RequiredFee(s.config.Params, chainHeight)
	if err != nil {
		return nil, NewPublishError(StageFee, err)
	}
	tx, err := s.config.Wallet.BuildBlindVoteTx(stake, fee, opReturnData)
	if err != nil {
		return nil, NewPublishError(StageTxConstruction, err)
	}
	// Merits sign the tx id, so they can only be built now
	merits, err := s.buildMeritList(tx.ID)
	if err != nil {
		return nil, NewPublishError(StageMerit, err)
	}
	encryptedMerits, err := EncryptMerits(merits, key)
	if err != nil {
		return nil, NewPublishError(StageEncryption, err)
	}
	bv := BlindVote{
		TxID:               tx.ID,
		EncryptedVotes:     encryptedVotes,
		EncryptedMeritList: encryptedMerits,
		Stake:              stake,
		Date:               time.Now().UTC().Truncate(time.Millisecond),
	}
	// A listed blind vote always has its secrets stored
	_, known := s.config.MyVotes.Get(bv.TxID)
	if err := s.config.MyVotes.Add(MyVote{
		BlindVote:      bv,
		SecretKey:      key,
		Ballots:        sorted,
		CreationHeight: chainHeight,
		BroadcastState: BroadcastPending,
	}); err != nil {
		return nil, NewPublishError(StagePersist, err)
	}
	if _, err := s.config.MyBlindVotes.Add(bv); err != nil {
		if !known {
			if rmErr := s.config.MyVotes.Remove(bv.TxID); rmErr != nil {
				err = errors.Join(err, rmErr)
			}
		}
		return nil, NewPublishError(StagePersist, err)
	}
	// The broadcast outlives the caller's request
	broadcastCh := s.config.Broadcaster.Broadcast(context.WithoutCancel(ctx), tx)
	resultCh := make(chan txbroadcast.Result, 1)
	s.wg.Add(1)
	go s.watchBroadcast(tx.ID, broadcastCh, resultCh)
	disseminationErr := s.disseminate(&bv)
	if disseminationErr != nil {
		s.metrics.disseminationFailures.Inc()
		s.logger.Warn(
			"failed to disseminate blind vote",
			"component", "blindvote",
			"tx_id", bv.TxID,
			"error", disseminationErr,
		)
	}
	s.metrics.published.Inc()
	s.logger.Info(
		"published blind vote",
		"component", "blindvote",
		"tx_id", bv.TxID,
		"stake", stake,
		"fee", fee,
		"ballots", len(sorted),
		"merits", len(merits),
	)
	s.publishEvent(
		PublishedEventType,
		PublishedEvent{
			TxID:             bv.TxID,
			Stake:            stake,
			DisseminationErr: disseminationErr,
		},
	)
	return &PublishResult{
		BlindVote:        &bv,
		Broadcast:        resultCh,
		DisseminationErr: disseminationErr,
	}, nil
}

func (s *Service) watchBroadcast(
	txID string,
	in <-chan txbroadcast.Result,
	out chan<- txbroadcast.Result,
) {
	defer s.wg.Done()
	defer close(out)
	result, ok := <-in
	if !ok {
		result = txbroadcast.Result{
			TxID:    txID,
			Outcome: txbroadcast.OutcomeFailure,
			Err:     errors.New("broadcast ended without result"),
		}
	}
	broadcastState := BroadcastDone
	if result.Outcome != txbroadcast.OutcomeSuccess {
		broadcastState = BroadcastFailed
		s.metrics.broadcastFailures.Inc()
		s.logger.Error(
			"blind vote tx broadcast failed, stake stays locked until resolved",
			"component", "blindvote",
			"tx_id", txID,
			"outcome", result.Outcome.String(),
			"error", result.Err,
		)
	}
	if err := s.config.MyVotes.SetBroadcastState(txID, broadcastState); err != nil {
		s.logger.Error(
			"failed to record broadcast state",
			"component", "blindvote",
			"tx_id", txID,
			"error", err,
		)
	}
	out <- result
}

func (s *Service) disseminate(bv *BlindVote) error {
	payload, err := bv.Payload()
	if err != nil {
		return err
	}
	if !s.config.Network.AddPayload(payload) {
		return ErrDisseminationFailed
	}
	return nil
}

func (s *Service) buildMeritList(blindVoteTxID string) (merit.MeritList, error) {
	own, err := s.config.Proposals.OwnCompensationTxIDs()
	if err != nil {
		return nil, fmt.Errorf("load own proposals: %w", err)
	}
	issuances, err := s.config.ChainState.Issuances()
	if err != nil {
		return nil, fmt.Errorf("load issuances: %w", err)
	}
	return merit.BuildMeritList(
		own,
		issuances,
		s.config.KeyRing,
		blindVoteTxID,
		s.logger,
	)
}

// CurrentlyAvailableMerit returns the voter's merit weight at the current
// chain height
func (s *Service) CurrentlyAvailableMerit() (int64, error) {
	if s.config.MeritOracle == nil {
		return 0, ErrNoMeritOracle
	}
	merits, err := s.buildMeritList("")
	if err != nil {
		return 0, err
	}
	return merit.CurrentlyAvailableMerit(
		merits,
		s.config.Periods.ChainHeight(),
		s.config.MeritOracle,
	), nil
}

// MiningFeeAndTxSize builds a blind vote tx for stake with a placeholder
// marker and reports its mining fee and size. Nothing is broadcast.
func (s *Service) MiningFeeAndTxSize(stake int64) (int64, int, error) {
	if stake <= 0 {
		return 0, 0, ErrInvalidStake
	}
	fee, err := RequiredFee(s.config.Params, s.config.Periods.ChainHeight())
	if err != nil {
		return 0, 0, err
	}
	tx, err := s.config.Wallet.BuildBlindVoteTx(
		stake,
		fee,
		make([]byte, state.BlindVoteMarkerSize),
	)
	if err != nil {
		return 0, 0, err
	}
	return tx.MiningFee, tx.Size, nil
}

// Start subscribes to the connectivity and chain parser events that
// trigger republishing
func (s *Service) Start() error {
	s.Lock()
	defer s.Unlock()
	if s.stopped {
		return ErrServiceStopped
	}
	if s.config.EventBus == nil {
		return nil
	}
	s.subs = append(
		s.subs,
		subscription{
			eventType: p2p.ConnectivityEventType,
			id: s.config.EventBus.SubscribeFunc(
				p2p.ConnectivityEventType,
				s.handleConnectivityEvent,
			),
		},
		subscription{
			eventType: state.ParseCompleteEventType,
			id: s.config.EventBus.SubscribeFunc(
				state.ParseCompleteEventType,
				s.handleParseCompleteEvent,
			),
		},
	)
	return nil
}

func (s *Service) handleConnectivityEvent(evt event.Event) {
	data, ok := evt.Data.(p2p.ConnectivityEvent)
	if !ok {
		return
	}
	s.Lock()
	s.conn.peers = data.NumConnectedPeers
	s.conn.bootstrapped = data.Bootstrapped
	s.Unlock()
	s.maybeRepublish()
}

func (s *Service) handleParseCompleteEvent(evt event.Event) {
	s.Lock()
	s.conn.parseComplete = true
	s.Unlock()
	s.maybeRepublish()
}

// wellConnected must be called with the lock held
func (s *Service) wellConnected() bool {
	return s.config.DevMode ||
		(s.conn.peers > s.config.RepublishMinPeers && s.conn.bootstrapped)
}

// maybeRepublish starts one background republish each time the node
// becomes well connected after having lost connectivity
func (s *Service) maybeRepublish() {
	s.Lock()
	defer s.Unlock()
	if s.stopped {
		return
	}
	if !s.wellConnected() {
		s.conn.armed = true
		return
	}
	if !s.conn.armed || !s.conn.parseComplete {
		return
	}
	s.conn.armed = false
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Republish()
	}()
}

// Republish re-disseminates the own blind votes that still count for the
// current cycle and returns how many were accepted by the network.
// Concurrent calls share a single run.
func (s *Service) Republish() int {
	ret, _, _ := s.republishGroup.Do("republish", func() (any, error) {
		return s.republish(), nil
	})
	count, _ := ret.(int)
	return count
}

func (s *Service) republish() int {
	chainHeight := s.config.Periods.ChainHeight()
	count := 0
	for _, bv := range s.config.MyBlindVotes.List() {
		if !s.inCurrentBlindVotePhase(&bv, chainHeight) {
			continue
		}
		if err := s.disseminate(&bv); err != nil {
			s.metrics.disseminationFailures.Inc()
			s.logger.Warn(
				"failed to republish blind vote",
				"component", "blindvote",
				"tx_id", bv.TxID,
				"error", err,
			)
			continue
		}
		count++
	}
	s.metrics.republished.Add(float64(count))
	s.logger.Info(
		"republished own blind votes",
		"component", "blindvote",
		"count", count,
		"chain_height", chainHeight,
	)
	s.publishEvent(RepublishedEventType, RepublishedEvent{Count: count})
	return count
}

// inCurrentBlindVotePhase accepts confirmed votes anchored in the BLIND_VOTE
// phase of the current cycle, and unconfirmed votes created in the current
// cycle while it is still in the BLIND_VOTE phase
func (s *Service) inCurrentBlindVotePhase(bv *BlindVote, chainHeight int) bool {
	if !s.validator.IsValidOrUnconfirmed(bv) {
		return false
	}
	if _, err := s.config.ChainState.Tx(bv.TxID); err == nil {
		return true
	}
	myVote, ok := s.config.MyVotes.Get(bv.TxID)
	return ok && s.config.Periods.IsTxInCorrectCycle(myVote.CreationHeight, chainHeight)
}

func (s *Service) publishEvent(eventType event.EventType, data any) {
	if s.config.EventBus == nil {
		return
	}
	s.config.EventBus.PublishAsync(eventType, event.NewEvent(eventType, data))
}

// Stop drops the event subscriptions and waits for in-flight publishes,
// broadcast watchers and republish runs
func (s *Service) Stop(ctx context.Context) error {
	s.Lock()
	s.stopped = true
	subs := s.subs
	s.subs = nil
	s.Unlock()
	for _, sub := range subs {
		s.config.EventBus.Unsubscribe(sub.eventType, sub.id)
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
		return fmt.Errorf("waiting for blind vote service: %w", ctx.Err())
	}
}
