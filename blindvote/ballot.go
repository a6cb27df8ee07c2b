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
	"fmt"
	"slices"
	"strings"

	"github.com/aejontargaryen/bisq-core/canonical"
)

// Vote is the holder's decision on a proposal
type Vote uint8

const (
	VoteAbsent Vote = iota
	VoteAccept
	VoteReject
	VoteNeutral
)

func (v Vote) String() string {
	switch v {
	case VoteAbsent:
		return "absent"
	case VoteAccept:
		return "accept"
	case VoteReject:
		return "reject"
	case VoteNeutral:
		return "neutral"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(v))
	}
}

func (v Vote) valid() bool {
	return v <= VoteNeutral
}

// Ballot references a proposal by its anchoring tx id. The proposal body is
// never part of the encrypted ballot.
type Ballot struct {
	ProposalTxID string
	Vote         Vote
}

// BallotList is ordered by ascending proposal tx id once sorted
type BallotList []Ballot

type ballotWire struct {
	_            struct{} `cbor:",toarray"`
	ProposalTxID string
	Vote         uint8
}

// SortBallots returns a copy of ballots in ascending lexicographic order of
// the proposal tx id. The order is part of the encrypted payload and
// therefore consensus critical.
func SortBallots(ballots BallotList) BallotList {
	ret := slices.Clone(ballots)
	if ret == nil {
		ret = BallotList{}
	}
	slices.SortStableFunc(ret, func(a, b Ballot) int {
		return strings.Compare(a.ProposalTxID, b.ProposalTxID)
	})
	return ret
}

// Encode returns the canonical serialized form of the list in its current
// order
func (l BallotList) Encode() ([]byte, error) {
	wire := make([]ballotWire, 0, len(l))
	for _, b := range l {
		wire = append(wire, ballotWire{
			ProposalTxID: b.ProposalTxID,
			Vote:         uint8(b.Vote),
		})
	}
	return canonical.Marshal(wire)
}

// DecodeBallotList parses a list produced by BallotList.Encode
func DecodeBallotList(data []byte) (BallotList, error) {
	var wire []ballotWire
	if err := canonical.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode ballot list: %w", err)
	}
	ret := make(BallotList, 0, len(wire))
	for _, w := range wire {
		vote := Vote(w.Vote)
		if !vote.valid() {
			return nil, fmt.Errorf("decode ballot list: %w: %d", ErrInvalidVote, w.Vote)
		}
		if w.ProposalTxID == "" {
			return nil, fmt.Errorf("decode ballot list: %w", ErrEmptyProposalTxID)
		}
		ret = append(ret, Ballot{ProposalTxID: w.ProposalTxID, Vote: vote})
	}
	return ret, nil
}
