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

// Package dao wires the DAO voting engines into a node. The chain parser,
// wallet and p2p network are supplied by the embedding application.
package dao

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aejontargaryen/bisq-core/blindvote"
	"github.com/aejontargaryen/bisq-core/database"
	"github.com/aejontargaryen/bisq-core/database/sqlite"
	"github.com/aejontargaryen/bisq-core/event"
	"github.com/aejontargaryen/bisq-core/issuance"
	"github.com/aejontargaryen/bisq-core/p2p"
	"github.com/aejontargaryen/bisq-core/period"
	"github.com/aejontargaryen/bisq-core/state"
	"github.com/aejontargaryen/bisq-core/txbroadcast"
	"github.com/aejontargaryen/bisq-core/votereveal"
)

var (
	ErrNotStarted          = errors.New("node not started")
	ErrAlreadyStarted      = errors.New("node already started")
	ErrMissingCollaborator = errors.New("missing collaborator")
)

type Node struct {
	config        Config
	eventBus      *event.EventBus
	periods       *period.Schedule
	db            *database.Database
	chainState    *sqlite.Store
	myBlindVotes  *blindvote.MyBlindVoteList
	myVotes       *blindvote.MyVoteList
	broadcaster   *txbroadcast.Broadcaster
	blindVote     *blindvote.Service
	voteReveal    *votereveal.Service
	issuance      *issuance.Service
	shutdownFuncs []func(context.Context) error
	done          chan struct{}
	shutdownOnce  sync.Once
	started       bool
	sync.Mutex
}

func New(cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	periods, err := period.NewSchedule(cfg.genesisHeight, cfg.durations)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	n := &Node{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		periods:  periods,
		done:     make(chan struct{}),
	}
	return n, nil
}

// Run starts the node and blocks until Stop is called
func (n *Node) Run() error {
	if err := n.Start(); err != nil {
		return err
	}
	// Wait for shutdown signal
	<-n.done
	return nil
}

// Start opens the local stores and starts the engines
func (n *Node) Start() error {
	n.Lock()
	defer n.Unlock()
	if n.started {
		return ErrAlreadyStarted
	}
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load own vote store
	db, err := database.New(database.Config{
		DataDir:      n.config.dataDir,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	n.myBlindVotes = blindvote.NewMyBlindVoteList(db)
	if err := n.myBlindVotes.Load(); err != nil {
		return fmt.Errorf("failed to load own blind votes: %w", err)
	}
	n.myVotes = blindvote.NewMyVoteList(db)
	if err := n.myVotes.Load(); err != nil {
		return fmt.Errorf("failed to load own votes: %w", err)
	}
	// Load chain state snapshot
	chainState, err := sqlite.New(sqlite.Config{
		DataDir: n.config.dataDir,
		Logger:  n.config.logger,
		Tracing: n.config.tracing,
	})
	if err != nil {
		return fmt.Errorf("failed to open chain state: %w", err)
	}
	n.chainState = chainState
	// Configure broadcaster
	if n.config.txNetwork != nil {
		n.broadcaster = txbroadcast.NewBroadcaster(txbroadcast.BroadcasterConfig{
			PromRegistry: n.config.promRegistry,
			Network:      n.config.txNetwork,
			Logger:       n.config.logger,
			EventBus:     n.eventBus,
			Timeout:      n.config.broadcastTimeout,
		})
	}
	var broadcaster blindvote.Broadcaster
	if n.broadcaster != nil {
		broadcaster = n.broadcaster
	}
	// Configure engines
	n.blindVote = blindvote.NewService(blindvote.ServiceConfig{
		PromRegistry:      n.config.promRegistry,
		Logger:            n.config.logger,
		EventBus:          n.eventBus,
		ChainState:        n.chainState,
		Periods:           n.periods,
		Params:            n.chainState,
		MeritOracle:       n.config.meritOracle,
		Wallet:            n.config.wallet,
		Broadcaster:       broadcaster,
		Network:           n.config.p2pNetwork,
		KeyRing:           n.config.keyRing,
		Ballots:           n.config.ballots,
		Proposals:         n.config.proposals,
		MyBlindVotes:      n.myBlindVotes,
		MyVotes:           n.myVotes,
		RepublishMinPeers: n.config.republishMinPeers,
		DevMode:           n.config.devMode,
	})
	blindVotes := n.config.blindVotes
	if blindVotes == nil {
		blindVotes = ownBlindVotes{list: n.myBlindVotes}
	}
	n.voteReveal = votereveal.NewService(votereveal.ServiceConfig{
		PromRegistry: n.config.promRegistry,
		Logger:       n.config.logger,
		EventBus:     n.eventBus,
		ChainState:   n.chainState,
		Periods:      n.periods,
		Wallet:       n.config.wallet,
		Broadcaster:  broadcaster,
		Validator:    n.blindVote.Validator(),
		BlindVotes:   blindVotes,
		MyVotes:      n.myVotes,
	})
	n.issuance = issuance.NewService(issuance.ServiceConfig{
		PromRegistry: n.config.promRegistry,
		Logger:       n.config.logger,
		EventBus:     n.eventBus,
		ChainState:   n.chainState,
		Periods:      n.periods,
	})
	// Republishing needs the p2p network, revealing needs a wallet and a
	// broadcaster
	if n.config.p2pNetwork != nil {
		if err := n.blindVote.Start(); err != nil {
			return err
		}
	}
	if n.config.wallet != nil && broadcaster != nil {
		if err := n.voteReveal.Start(); err != nil {
			return err
		}
	}
	n.started = true
	n.config.logger.Info(
		"started DAO node",
		"component", "node",
		"own_blind_votes", n.myBlindVotes.Len(),
		"genesis_height", n.config.genesisHeight,
		"cycle_length", n.config.durations.CycleLength(),
	)
	return nil
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	ctx, cancel := context.WithTimeout(
		context.Background(),
		n.config.shutdownTimeout,
	)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown", "component", "node")

	// Phase 1: Cancel in-flight broadcasts so their watchers can record the
	// outcome while the stores are still open
	if n.broadcaster != nil {
		if stopErr := n.broadcaster.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("broadcaster shutdown: %w", stopErr))
		}
	}

	// Phase 2: Stop the engines and wait for their in-flight work
	if n.blindVote != nil {
		if stopErr := n.blindVote.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("blind vote shutdown: %w", stopErr))
		}
	}
	if n.voteReveal != nil {
		if stopErr := n.voteReveal.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("vote reveal shutdown: %w", stopErr))
		}
	}

	// Phase 3: Close databases
	if n.chainState != nil {
		if closeErr := n.chainState.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("chain state close: %w", closeErr))
		}
	}
	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: Cleanup resources
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	n.eventBus.Stop()

	n.config.logger.Debug("graceful shutdown complete", "component", "node")
	close(n.done)
	return err
}

// EventBus returns the bus the engines publish on
func (n *Node) EventBus() *event.EventBus {
	return n.eventBus
}

// Periods returns the cycle schedule
func (n *Node) Periods() *period.Schedule {
	return n.periods
}

// ChainState returns the chain state snapshot. It is nil before Start
func (n *Node) ChainState() *sqlite.Store {
	return n.chainState
}

func (n *Node) checkStarted() error {
	n.Lock()
	defer n.Unlock()
	if !n.started {
		return ErrNotStarted
	}
	return nil
}

// ownBlindVotes serves the node's own blind votes when no network source is
// configured
type ownBlindVotes struct {
	list *blindvote.MyBlindVoteList
}

func (o ownBlindVotes) BlindVotes() ([]blindvote.BlindVote, error) {
	return o.list.List(), nil
}

// SetChainHeight advances the schedule and notifies the engines of a new
// block
func (n *Node) SetChainHeight(height int) {
	n.periods.SetChainHeight(height)
	n.eventBus.Publish(
		state.ChainHeightEventType,
		event.NewEvent(
			state.ChainHeightEventType,
			state.ChainHeightEvent{Height: height},
		),
	)
}

// SetParseComplete signals that the chain parser caught up with the tip
func (n *Node) SetParseComplete(height int) {
	n.periods.SetChainHeight(height)
	n.eventBus.Publish(
		state.ParseCompleteEventType,
		event.NewEvent(
			state.ParseCompleteEventType,
			state.ParseCompleteEvent{Height: height},
		),
	)
}

// SetConnectivity reports the p2p connection state
func (n *Node) SetConnectivity(peers int, bootstrapped bool) {
	n.eventBus.Publish(
		p2p.ConnectivityEventType,
		event.NewEvent(
			p2p.ConnectivityEventType,
			p2p.ConnectivityEvent{
				NumConnectedPeers: peers,
				Bootstrapped:      bootstrapped,
			},
		),
	)
}

// AddTx stores a parsed DAO transaction. A vote reveal tx also unlocks the
// stake of the blind vote it spends.
func (n *Node) AddTx(tx *state.Tx) error {
	if err := n.checkStarted(); err != nil {
		return err
	}
	if err := n.chainState.AddTx(tx); err != nil {
		return fmt.Errorf("add tx %s: %w", tx.ID, err)
	}
	if tx.Type != state.TxTypeVoteReveal {
		return nil
	}
	unlocked, err := votereveal.ApplyRevealTx(n.chainState, n.chainState, tx)
	if err != nil {
		n.config.logger.Warn(
			"failed to unlock blind vote stake",
			"component", "node",
			"tx_id", tx.ID,
			"error", err,
		)
		return err
	}
	n.config.logger.Debug(
		"unlocked blind vote stake",
		"component", "node",
		"tx_id", tx.ID,
		"output", unlocked.Key(),
		"amount", unlocked.Value,
	)
	return nil
}

// SetParam records a DAO parameter value effective from height
func (n *Node) SetParam(param state.Param, height int, value int64) error {
	if err := n.checkStarted(); err != nil {
		return err
	}
	return n.chainState.SetParam(param, height, value)
}

// MyVotes returns the own vote secrets in creation order
func (n *Node) MyVotes() ([]blindvote.MyVote, error) {
	if err := n.checkStarted(); err != nil {
		return nil, err
	}
	return n.myVotes.List(), nil
}
