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

// Package state holds the chain-state types shared by the DAO engines and
// the narrow interfaces through which the engines query the chain parser and
// the phase oracle.
package state

import (
	"errors"

	"github.com/aejontargaryen/bisq-core/event"
)

const (
	ChainHeightEventType   event.EventType = "state.chain_height"
	ParseCompleteEventType event.EventType = "state.parse_complete"
)

// ChainHeightEvent is published by the chain parser after each new block
type ChainHeightEvent struct {
	Height int
}

// ParseCompleteEvent is published once the chain parser has caught up with
// the chain tip
type ParseCompleteEvent struct {
	Height int
}

var (
	ErrTxNotFound       = errors.New("transaction not found")
	ErrIssuanceNotFound = errors.New("issuance not found")
)

// Phase is a named sub-range of a voting cycle
type Phase uint8

const (
	PhaseUndefined Phase = iota
	PhaseProposal
	PhaseBlindVote
	PhaseVoteReveal
	PhaseResult
)

// Phases lists the phases of a cycle in order
var Phases = []Phase{
	PhaseProposal,
	PhaseBlindVote,
	PhaseVoteReveal,
	PhaseResult,
}

func (p Phase) String() string {
	switch p {
	case PhaseProposal:
		return "PROPOSAL"
	case PhaseBlindVote:
		return "BLIND_VOTE"
	case PhaseVoteReveal:
		return "VOTE_REVEAL"
	case PhaseResult:
		return "RESULT"
	default:
		return "UNDEFINED"
	}
}

// Param identifies a DAO parameter whose value may change between cycles
type Param string

const (
	ParamProposalFee  Param = "PROPOSAL_FEE"
	ParamBlindVoteFee Param = "BLIND_VOTE_FEE"
	ParamQuorum       Param = "QUORUM"
	ParamThreshold    Param = "THRESHOLD"
)

// ChainState answers transaction and issuance queries against the parsed
// chain
type ChainState interface {
	// Tx returns the confirmed transaction with the given id or
	// ErrTxNotFound
	Tx(txID string) (*Tx, error)
	// IssuanceCandidates returns all outputs flagged as issuance candidates
	IssuanceCandidates() ([]TxOutput, error)
	// Issuances returns all recorded issuances
	Issuances() ([]Issuance, error)
	// Issuance returns the issuance recorded for txID or
	// ErrIssuanceNotFound
	Issuance(txID string) (*Issuance, error)
	// AddIssuance records a new issuance
	AddIssuance(issuance Issuance) error
}

// ParamService returns parameter values effective at a block height
type ParamService interface {
	ParamValue(param Param, height int) (int64, error)
}

// PeriodService is the phase and cycle oracle
type PeriodService interface {
	ChainHeight() int
	IsInPhase(height int, phase Phase) bool
	IsTxInCorrectCycle(txHeight int, chainHeight int) bool
}

// MeritOracle returns the decayed merit weight of an issuance at a chain
// height. The decay function is owned by the implementation.
type MeritOracle interface {
	MeritValue(issuance Issuance, chainHeight int) int64
}
