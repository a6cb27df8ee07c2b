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

// Package period provides a fixed-length cycle schedule that answers the
// phase and cycle questions the DAO engines ask of the chain
package period

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/aejontargaryen/bisq-core/state"
)

var ErrInvalidSchedule = errors.New("invalid cycle schedule")

// Durations holds the number of blocks of each phase in a cycle
type Durations struct {
	Proposal   int `yaml:"proposal"   envconfig:"PROPOSAL"`
	BlindVote  int `yaml:"blindVote"  envconfig:"BLIND_VOTE"`
	VoteReveal int `yaml:"voteReveal" envconfig:"VOTE_REVEAL"`
	Result     int `yaml:"result"     envconfig:"RESULT"`
}

func (d Durations) of(phase state.Phase) int {
	switch phase {
	case state.PhaseProposal:
		return d.Proposal
	case state.PhaseBlindVote:
		return d.BlindVote
	case state.PhaseVoteReveal:
		return d.VoteReveal
	case state.PhaseResult:
		return d.Result
	default:
		return 0
	}
}

// CycleLength returns the number of blocks in one cycle
func (d Durations) CycleLength() int {
	return d.Proposal + d.BlindVote + d.VoteReveal + d.Result
}

// Schedule is a state.PeriodService where every cycle has the same layout
// and the first cycle starts at the genesis height. The current chain height
// is advanced by the chain parser.
type Schedule struct {
	durations     Durations
	genesisHeight int
	chainHeight   atomic.Int64
}

// NewSchedule creates a schedule. Every phase must span at least one block.
func NewSchedule(genesisHeight int, durations Durations) (*Schedule, error) {
	if genesisHeight < 0 {
		return nil, fmt.Errorf("%w: negative genesis height", ErrInvalidSchedule)
	}
	for _, phase := range state.Phases {
		if durations.of(phase) <= 0 {
			return nil, fmt.Errorf(
				"%w: phase %s has no blocks",
				ErrInvalidSchedule,
				phase,
			)
		}
	}
	s := &Schedule{
		durations:     durations,
		genesisHeight: genesisHeight,
	}
	s.chainHeight.Store(int64(genesisHeight))
	return s, nil
}

// SetChainHeight records the current chain tip height
func (s *Schedule) SetChainHeight(height int) {
	s.chainHeight.Store(int64(height))
}

// ChainHeight returns the current chain tip height
func (s *Schedule) ChainHeight() int {
	return int(s.chainHeight.Load())
}

// CycleIndex returns the zero-based cycle containing height, or -1 before
// genesis
func (s *Schedule) CycleIndex(height int) int {
	if height < s.genesisHeight {
		return -1
	}
	return (height - s.genesisHeight) / s.durations.CycleLength()
}

// CycleStart returns the first height of the cycle containing height
func (s *Schedule) CycleStart(height int) int {
	idx := s.CycleIndex(height)
	if idx < 0 {
		return -1
	}
	return s.genesisHeight + idx*s.durations.CycleLength()
}

// Phase returns the phase containing height
func (s *Schedule) Phase(height int) state.Phase {
	start := s.CycleStart(height)
	if start < 0 {
		return state.PhaseUndefined
	}
	offset := height - start
	for _, phase := range state.Phases {
		d := s.durations.of(phase)
		if offset < d {
			return phase
		}
		offset -= d
	}
	return state.PhaseUndefined
}

// FirstBlockOfPhase returns the first height of phase in the cycle
// containing height
func (s *Schedule) FirstBlockOfPhase(height int, phase state.Phase) int {
	start := s.CycleStart(height)
	if start < 0 {
		return -1
	}
	for _, p := range state.Phases {
		if p == phase {
			return start
		}
		start += s.durations.of(p)
	}
	return -1
}

// IsInPhase reports whether height falls into phase
func (s *Schedule) IsInPhase(height int, phase state.Phase) bool {
	return s.Phase(height) == phase
}

// IsTxInCorrectCycle reports whether txHeight is in the same cycle as
// chainHeight
func (s *Schedule) IsTxInCorrectCycle(txHeight int, chainHeight int) bool {
	idx := s.CycleIndex(txHeight)
	return idx >= 0 && idx == s.CycleIndex(chainHeight)
}

// IsTxInPhaseAndCycle looks up txID and reports whether it was confirmed in
// phase of the cycle containing chainHeight
func IsTxInPhaseAndCycle(
	chainState state.ChainState,
	periods state.PeriodService,
	txID string,
	phase state.Phase,
	chainHeight int,
) bool {
	tx, err := chainState.Tx(txID)
	if err != nil || tx == nil {
		return false
	}
	return periods.IsInPhase(tx.BlockHeight, phase) &&
		periods.IsTxInCorrectCycle(tx.BlockHeight, chainHeight)
}
