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
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aejontargaryen/bisq-core/canonical"
	"github.com/aejontargaryen/bisq-core/database"
	"github.com/aejontargaryen/bisq-core/encryption"
)

// BroadcastState tracks the anchoring tx of an own vote. A failed broadcast
// leaves the stake locked until the operator resolves it.
type BroadcastState uint8

const (
	BroadcastPending BroadcastState = iota
	BroadcastDone
	BroadcastFailed
)

func (s BroadcastState) String() string {
	switch s {
	case BroadcastPending:
		return "pending"
	case BroadcastDone:
		return "broadcast"
	case BroadcastFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MyVote keeps what this node needs to reveal one of its blind votes
type MyVote struct {
	SecretKey      encryption.SecretKey
	RevealTxID     string
	Ballots        BallotList
	BlindVote      BlindVote
	CreationHeight int
	BroadcastState BroadcastState
}

type myVoteWire struct {
	_              struct{} `cbor:",toarray"`
	BlindVote      blindVoteWire
	SecretKey      []byte
	Ballots        []ballotWire
	CreationHeight int
	BroadcastState uint8
	RevealTxID     string
}

func (v *MyVote) toWire() myVoteWire {
	ballots := make([]ballotWire, 0, len(v.Ballots))
	for _, b := range v.Ballots {
		ballots = append(ballots, ballotWire{ProposalTxID: b.ProposalTxID, Vote: uint8(b.Vote)})
	}
	return myVoteWire{
		BlindVote:      v.BlindVote.toWire(),
		SecretKey:      nonNil(v.SecretKey),
		Ballots:        ballots,
		CreationHeight: v.CreationHeight,
		BroadcastState: uint8(v.BroadcastState),
		RevealTxID:     v.RevealTxID,
	}
}

func myVoteFromWire(w myVoteWire) MyVote {
	ballots := make(BallotList, 0, len(w.Ballots))
	for _, b := range w.Ballots {
		ballots = append(ballots, Ballot{ProposalTxID: b.ProposalTxID, Vote: Vote(b.Vote)})
	}
	return MyVote{
		BlindVote:      fromWire(w.BlindVote),
		SecretKey:      w.SecretKey,
		Ballots:        ballots,
		CreationHeight: w.CreationHeight,
		BroadcastState: BroadcastState(w.BroadcastState),
		RevealTxID:     w.RevealTxID,
	}
}

// MyVoteList holds the secrets of own votes keyed by blind vote tx id
type MyVoteList struct {
	store Store
	votes []MyVote
	sync.RWMutex
}

func NewMyVoteList(store Store) *MyVoteList {
	return &MyVoteList{store: store}
}

// Load replaces the in-memory list with the persisted one
func (l *MyVoteList) Load() error {
	l.Lock()
	defer l.Unlock()
	data, err := l.store.Get([]byte(myVotesKey))
	if err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			l.votes = nil
			return nil
		}
		return fmt.Errorf("load own votes: %w", err)
	}
	var wire []myVoteWire
	if err := canonical.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode own votes: %w", err)
	}
	votes := make([]MyVote, 0, len(wire))
	for _, w := range wire {
		votes = append(votes, myVoteFromWire(w))
	}
	l.votes = votes
	return nil
}

// persist must be called with the lock held
func (l *MyVoteList) persist(votes []MyVote) error {
	wire := make([]myVoteWire, 0, len(votes))
	for i := range votes {
		wire = append(wire, votes[i].toWire())
	}
	data, err := canonical.Marshal(wire)
	if err != nil {
		return err
	}
	if err := l.store.Set([]byte(myVotesKey), data); err != nil {
		return fmt.Errorf("persist own votes: %w", err)
	}
	l.votes = votes
	return nil
}

// Add records a new own vote. A vote for an already known tx id is ignored.
func (l *MyVoteList) Add(v MyVote) error {
	l.Lock()
	defer l.Unlock()
	for i := range l.votes {
		if l.votes[i].BlindVote.TxID == v.BlindVote.TxID {
			return nil
		}
	}
	return l.persist(append(slices.Clone(l.votes), v))
}

func (l *MyVoteList) update(txID string, fn func(*MyVote)) error {
	l.Lock()
	defer l.Unlock()
	idx := slices.IndexFunc(l.votes, func(v MyVote) bool {
		return v.BlindVote.TxID == txID
	})
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrVoteNotFound, txID)
	}
	updated := slices.Clone(l.votes)
	fn(&updated[idx])
	return l.persist(updated)
}

// Remove drops the own vote anchored by txID
func (l *MyVoteList) Remove(txID string) error {
	l.Lock()
	defer l.Unlock()
	updated := slices.DeleteFunc(slices.Clone(l.votes), func(v MyVote) bool {
		return v.BlindVote.TxID == txID
	})
	if len(updated) == len(l.votes) {
		return fmt.Errorf("%w: %s", ErrVoteNotFound, txID)
	}
	return l.persist(updated)
}

// SetBroadcastState records the broadcast outcome of the vote anchored by
// txID
func (l *MyVoteList) SetBroadcastState(txID string, state BroadcastState) error {
	return l.update(txID, func(v *MyVote) {
		v.BroadcastState = state
	})
}

// SetRevealTxID records the reveal tx of the vote anchored by txID
func (l *MyVoteList) SetRevealTxID(txID string, revealTxID string) error {
	return l.update(txID, func(v *MyVote) {
		v.RevealTxID = revealTxID
	})
}

// Get returns the own vote anchored by txID
func (l *MyVoteList) Get(txID string) (MyVote, bool) {
	l.RLock()
	defer l.RUnlock()
	for _, v := range l.votes {
		if v.BlindVote.TxID == txID {
			return v, true
		}
	}
	return MyVote{}, false
}

// List returns a snapshot of all own votes
func (l *MyVoteList) List() []MyVote {
	l.RLock()
	defer l.RUnlock()
	return slices.Clone(l.votes)
}
