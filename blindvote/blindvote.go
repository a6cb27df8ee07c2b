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

// Package blindvote implements the commit phase of DAO voting: building,
// encrypting, anchoring and validating blind votes, and keeping the node's
// own blind votes available for republishing.
package blindvote

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aejontargaryen/bisq-core/canonical"
	"github.com/aejontargaryen/bisq-core/encryption"
	"github.com/aejontargaryen/bisq-core/p2p"
)

// BlindVote is the replicated commitment of a voter. Its hash commitment is
// anchored by the transaction TxID.
type BlindVote struct {
	TxID               string
	EncryptedVotes     []byte
	EncryptedMeritList []byte
	Date               time.Time
	Stake              int64
}

type blindVoteWire struct {
	_                  struct{} `cbor:",toarray"`
	TxID               string
	EncryptedVotes     []byte
	Stake              int64
	EncryptedMeritList []byte
	Date               int64
}

func (b *BlindVote) toWire() blindVoteWire {
	return blindVoteWire{
		TxID:               b.TxID,
		EncryptedVotes:     nonNil(b.EncryptedVotes),
		Stake:              b.Stake,
		EncryptedMeritList: nonNil(b.EncryptedMeritList),
		Date:               b.Date.UnixMilli(),
	}
}

func fromWire(w blindVoteWire) BlindVote {
	return BlindVote{
		TxID:               w.TxID,
		EncryptedVotes:     w.EncryptedVotes,
		Stake:              w.Stake,
		EncryptedMeritList: w.EncryptedMeritList,
		Date:               time.UnixMilli(w.Date).UTC(),
	}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// Equal reports value equality
func (b *BlindVote) Equal(other *BlindVote) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.TxID == other.TxID &&
		b.Stake == other.Stake &&
		b.Date.Equal(other.Date) &&
		bytes.Equal(b.EncryptedVotes, other.EncryptedVotes) &&
		bytes.Equal(b.EncryptedMeritList, other.EncryptedMeritList)
}

// Encode returns the canonical serialized form
func (b *BlindVote) Encode() ([]byte, error) {
	return canonical.Marshal(b.toWire())
}

// Decode parses a blind vote produced by Encode
func Decode(data []byte) (*BlindVote, error) {
	var w blindVoteWire
	if err := canonical.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode blind vote: %w", err)
	}
	ret := fromWire(w)
	return &ret, nil
}

// Payload wraps the blind vote for replication
func (b *BlindVote) Payload() (p2p.Payload, error) {
	data, err := b.Encode()
	if err != nil {
		return p2p.Payload{}, err
	}
	return p2p.Payload{
		Kind: p2p.PayloadKindBlindVote,
		Hash: encryption.Hash160(data),
		Data: data,
	}, nil
}

// EncodeList serializes blind votes in the given order
func EncodeList(votes []BlindVote) ([]byte, error) {
	wire := make([]blindVoteWire, 0, len(votes))
	for i := range votes {
		wire = append(wire, votes[i].toWire())
	}
	return canonical.Marshal(wire)
}

// DecodeList parses a list produced by EncodeList
func DecodeList(data []byte) ([]BlindVote, error) {
	var wire []blindVoteWire
	if err := canonical.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode blind vote list: %w", err)
	}
	ret := make([]BlindVote, 0, len(wire))
	for _, w := range wire {
		ret = append(ret, fromWire(w))
	}
	return ret, nil
}

// SortByTxID returns a copy of votes in ascending order of tx id
func SortByTxID(votes []BlindVote) []BlindVote {
	ret := slices.Clone(votes)
	slices.SortStableFunc(ret, func(a, b BlindVote) int {
		return strings.Compare(a.TxID, b.TxID)
	})
	return ret
}
