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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aejontargaryen/bisq-core/blindvote"
	"github.com/aejontargaryen/bisq-core/database"
)

type failingStore struct{}

func (failingStore) Get(key []byte) ([]byte, error) {
	return nil, database.ErrKeyNotFound
}

func (failingStore) Set(key, val []byte) error {
	return errors.New("disk full")
}

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestMyBlindVoteListDeduplicates(t *testing.T) {
	db := newTestDatabase(t)
	list := blindvote.NewMyBlindVoteList(db)
	require.NoError(t, list.Load())
	assert.Equal(t, 0, list.Len())

	bv := *validBlindVote()
	bv.Date = time.UnixMilli(1700000000000).UTC()
	added, err := list.Add(bv)
	require.NoError(t, err)
	assert.True(t, added)
	// Same value again, as a republish would deliver it
	added, err = list.Add(bv)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, list.Len())

	other := bv
	other.Stake = 20000
	added, err = list.Add(other)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 2, list.Len())
}

func TestMyBlindVoteListPersists(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(database.Config{DataDir: dir})
	require.NoError(t, err)
	bv := *validBlindVote()
	bv.Date = time.UnixMilli(1700000000000).UTC()
	_, err = blindvote.NewMyBlindVoteList(db).Add(bv)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = database.New(database.Config{DataDir: dir})
	require.NoError(t, err)
	defer db.Close()
	list := blindvote.NewMyBlindVoteList(db)
	require.NoError(t, list.Load())
	votes := list.List()
	require.Len(t, votes, 1)
	assert.True(t, bv.Equal(&votes[0]))
}

func TestMyBlindVoteListPersistFailureKeepsList(t *testing.T) {
	list := blindvote.NewMyBlindVoteList(failingStore{})
	_, err := list.Add(*validBlindVote())
	require.Error(t, err)
	assert.Equal(t, 0, list.Len())
}

func TestMyBlindVoteListConcurrentReadDuringAppend(t *testing.T) {
	list := blindvote.NewMyBlindVoteList(newTestDatabase(t))
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bv := *validBlindVote()
			bv.Stake = int64(i + 1)
			_, err := list.Add(bv)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			snapshot := list.List()
			for j := range snapshot {
				assert.NotEmpty(t, snapshot[j].TxID)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, list.Len())
}

func TestMyVoteList(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(database.Config{DataDir: dir})
	require.NoError(t, err)
	list := blindvote.NewMyVoteList(db)
	myVote := blindvote.MyVote{
		BlindVote:      *validBlindVote(),
		SecretKey:      make([]byte, 16),
		Ballots:        blindvote.SortBallots(testBallots()),
		CreationHeight: 12,
	}
	myVote.BlindVote.Date = time.UnixMilli(1700000000000).UTC()
	require.NoError(t, list.Add(myVote))
	require.NoError(t, list.Add(myVote))
	assert.Len(t, list.List(), 1)

	require.NoError(t, list.SetBroadcastState(testBlindVoteTxID, blindvote.BroadcastFailed))
	require.NoError(t, list.SetRevealTxID(testBlindVoteTxID, testProposalTxA))
	err = list.SetBroadcastState(testProposalTxB, blindvote.BroadcastDone)
	require.ErrorIs(t, err, blindvote.ErrVoteNotFound)
	require.NoError(t, db.Close())

	db, err = database.New(database.Config{DataDir: dir})
	require.NoError(t, err)
	defer db.Close()
	list = blindvote.NewMyVoteList(db)
	require.NoError(t, list.Load())
	got, ok := list.Get(testBlindVoteTxID)
	require.True(t, ok)
	assert.Equal(t, blindvote.BroadcastFailed, got.BroadcastState)
	assert.Equal(t, testProposalTxA, got.RevealTxID)
	assert.Equal(t, myVote.Ballots, got.Ballots)
	assert.Equal(t, myVote.SecretKey, got.SecretKey)
	assert.Equal(t, 12, got.CreationHeight)
	assert.True(t, myVote.BlindVote.Equal(&got.BlindVote))
	_, ok = list.Get(testProposalTxB)
	assert.False(t, ok)

	require.ErrorIs(t, list.Remove(testProposalTxB), blindvote.ErrVoteNotFound)
	require.NoError(t, list.Remove(testBlindVoteTxID))
	assert.Empty(t, list.List())
	require.NoError(t, list.Load())
	assert.Empty(t, list.List())
}
