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

	"github.com/aejontargaryen/bisq-core/database"
)

const (
	myBlindVotesKey = "my_blind_votes"
	myVotesKey      = "my_votes"
)

// Store is the local durable key-value storage for own votes
type Store interface {
	Get(key []byte) ([]byte, error)
	Set(key, val []byte) error
}

// MyBlindVoteList holds the blind votes this node published, in creation
// order. Reads return snapshots so republishing never races an append.
type MyBlindVoteList struct {
	store Store
	votes []BlindVote
	sync.RWMutex
}

func NewMyBlindVoteList(store Store) *MyBlindVoteList {
	return &MyBlindVoteList{store: store}
}

// Load replaces the in-memory list with the persisted one
func (l *MyBlindVoteList) Load() error {
	l.Lock()
	defer l.Unlock()
	data, err := l.store.Get([]byte(myBlindVotesKey))
	if err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			l.votes = nil
			return nil
		}
		return fmt.Errorf("load blind votes: %w", err)
	}
	votes, err := DecodeList(data)
	if err != nil {
		return err
	}
	l.votes = votes
	return nil
}

// Add appends bv unless an equal vote is already present and persists the
// list. It reports whether the list changed.
func (l *MyBlindVoteList) Add(bv BlindVote) (bool, error) {
	l.Lock()
	defer l.Unlock()
	for i := range l.votes {
		if l.votes[i].Equal(&bv) {
			return false, nil
		}
	}
	updated := append(slices.Clone(l.votes), bv)
	data, err := EncodeList(updated)
	if err != nil {
		return false, err
	}
	if err := l.store.Set([]byte(myBlindVotesKey), data); err != nil {
		return false, fmt.Errorf("persist blind votes: %w", err)
	}
	l.votes = updated
	return true, nil
}

// List returns a snapshot of the list
func (l *MyBlindVoteList) List() []BlindVote {
	l.RLock()
	defer l.RUnlock()
	return slices.Clone(l.votes)
}

func (l *MyBlindVoteList) Len() int {
	l.RLock()
	defer l.RUnlock()
	return len(l.votes)
}
