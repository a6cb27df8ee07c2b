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

// Package votereveal publishes the keys of own blind votes during the
// VOTE_REVEAL phase and collects the revealed ballots for tallying.
package votereveal

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/aejontargaryen/bisq-core/blindvote"
	"github.com/aejontargaryen/bisq-core/encryption"
	"github.com/aejontargaryen/bisq-core/state"
)

var (
	ErrInvalidHashSize  = errors.New("invalid blind vote list hash size")
	ErrInvalidKeySize   = errors.New("invalid secret key size")
	ErrInvalidMarker    = errors.New("invalid vote reveal marker")
	ErrNotLockedStake   = errors.New("output is not a locked blind vote stake")
	ErrNotRevealTx      = errors.New("transaction is not a vote reveal")
	ErrStakeNotSpent    = errors.New("vote reveal does not spend a blind vote stake")
	ErrServiceStopped   = errors.New("vote reveal service stopped")
	ErrNotInRevealPhase = errors.New("chain height is not in the vote reveal phase")
)

// HashOfBlindVoteList commits to the set of blind votes the revealer saw.
// The votes are ordered by tx id before hashing.
func HashOfBlindVoteList(votes []blindvote.BlindVote) ([]byte, error) {
	data, err := blindvote.EncodeList(blindvote.SortByTxID(votes))
	if err != nil {
		return nil, fmt.Errorf("encode blind vote list: %w", err)
	}
	return encryption.Hash160(data), nil
}

// OpReturnData returns the 54 byte vote reveal marker. The 32 byte key field
// carries the 16 byte AES key followed by zero padding.
func OpReturnData(hashOfBlindVoteList []byte, key encryption.SecretKey) ([]byte, error) {
	if len(hashOfBlindVoteList) != state.HashSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHashSize, len(hashOfBlindVoteList))
	}
	if len(key) != encryption.SecretKeySize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeySize, len(key))
	}
	ret := make([]byte, 0, state.VoteRevealMarkerSize)
	ret = append(
		ret,
		byte(state.OpReturnTypeVoteReveal),
		state.VoteRevealVersion,
	)
	ret = append(ret, hashOfBlindVoteList...)
	ret = append(ret, key...)
	ret = append(ret, make([]byte, state.RevealKeyFieldSize-len(key))...)
	return ret, nil
}

// ParseOpReturnData splits a vote reveal marker into the blind vote list
// hash and the secret key
func ParseOpReturnData(data []byte) ([]byte, encryption.SecretKey, error) {
	if len(data) != state.VoteRevealMarkerSize {
		return nil, nil, fmt.Errorf("%w: length %d", ErrInvalidMarker, len(data))
	}
	if state.OpReturnType(data[0]) != state.OpReturnTypeVoteReveal {
		return nil, nil, fmt.Errorf("%w: type 0x%02x", ErrInvalidMarker, data[0])
	}
	if data[1] != state.VoteRevealVersion {
		return nil, nil, fmt.Errorf("%w: version %d", ErrInvalidMarker, data[1])
	}
	keyField := data[state.MarkerHashEnd:]
	padding := keyField[encryption.SecretKeySize:]
	if !bytes.Equal(padding, make([]byte, len(padding))) {
		return nil, nil, fmt.Errorf("%w: non-zero key padding", ErrInvalidMarker)
	}
	hash := bytes.Clone(data[state.MarkerHashOffset:state.MarkerHashEnd])
	key := encryption.SecretKey(bytes.Clone(keyField[:encryption.SecretKeySize]))
	return hash, key, nil
}

// UnlockStake reclassifies a locked blind vote stake output as a spendable
// BSQ output
func UnlockStake(out *state.TxOutput) error {
	if out == nil || out.Type != state.TxOutputTypeBlindVoteLockStake {
		return ErrNotLockedStake
	}
	out.Type = state.TxOutputTypeBsq
	return nil
}

// StakeOutput returns the stake locked by a confirmed blind vote tx
func StakeOutput(blindVoteTx *state.Tx) (state.TxOutput, error) {
	if blindVoteTx == nil || len(blindVoteTx.Outputs) == 0 {
		return state.TxOutput{}, ErrNotLockedStake
	}
	out := blindVoteTx.Outputs[0]
	if out.Type != state.TxOutputTypeBlindVoteLockStake {
		return state.TxOutput{}, fmt.Errorf(
			"%w: %s:%d is %s",
			ErrNotLockedStake,
			out.TxID,
			out.Index,
			out.Type,
		)
	}
	return out, nil
}

// OutputWriter persists a reclassified output
type OutputWriter interface {
	SetOutputType(txID string, index int, outputType state.TxOutputType) error
}

// ApplyRevealTx unlocks the stake spent by the first input of a confirmed
// vote reveal tx and returns the unlocked output
func ApplyRevealTx(
	chainState state.ChainState,
	writer OutputWriter,
	revealTx *state.Tx,
) (*state.TxOutput, error) {
	if revealTx == nil || revealTx.Type != state.TxTypeVoteReveal {
		return nil, ErrNotRevealTx
	}
	if len(revealTx.Inputs) == 0 {
		return nil, ErrStakeNotSpent
	}
	in := revealTx.Inputs[0]
	blindVoteTx, err := chainState.Tx(in.ConnectedTxID)
	if err != nil {
		return nil, fmt.Errorf("lookup blind vote tx %s: %w", in.ConnectedTxID, err)
	}
	if in.ConnectedOutputIndex < 0 || in.ConnectedOutputIndex >= len(blindVoteTx.Outputs) {
		return nil, ErrStakeNotSpent
	}
	out := blindVoteTx.Outputs[in.ConnectedOutputIndex]
	if err := UnlockStake(&out); err != nil {
		return nil, err
	}
	if err := writer.SetOutputType(out.TxID, out.Index, out.Type); err != nil {
		return nil, fmt.Errorf("persist unlocked stake %s: %w", out.Key(), err)
	}
	return &out, nil
}
