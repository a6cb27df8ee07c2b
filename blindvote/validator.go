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
	"io"
	"log/slog"

	"github.com/aejontargaryen/bisq-core/state"
)

type ValidatorConfig struct {
	ChainState state.ChainState
	Periods    state.PeriodService
	Logger     *slog.Logger
}

// Validator decides whether a blind vote counts for the current cycle
type Validator struct {
	chainState state.ChainState
	periods    state.PeriodService
	logger     *slog.Logger
}

func NewValidator(cfg ValidatorConfig) *Validator {
	v := &Validator{
		chainState: cfg.ChainState,
		periods:    cfg.Periods,
		logger:     cfg.Logger,
	}
	if v.logger == nil {
		v.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return v
}

// FieldsValid runs the checks that need no chain state
func (v *Validator) FieldsValid(bv *BlindVote) error {
	switch {
	case bv == nil, bv.TxID == "":
		return ErrEmptyTxID
	case len(bv.EncryptedVotes) == 0:
		return ErrEmptyEncryptedVotes
	case bv.Stake <= 0:
		return ErrInvalidStake
	}
	return nil
}

// IsValid reports whether bv counts for the current cycle. A confirmed
// anchoring tx must lie in the BLIND_VOTE phase of the current cycle. An
// unconfirmed one is only accepted with allowUnconfirmed while the chain is
// in the BLIND_VOTE phase. Tally code always passes false.
func (v *Validator) IsValid(bv *BlindVote, allowUnconfirmed bool) bool {
	if err := v.FieldsValid(bv); err != nil {
		v.logger.Debug(
			"blind vote fields invalid",
			"component", "blindvote",
			"error", err,
		)
		return false
	}
	chainHeight := v.periods.ChainHeight()
	tx, err := v.chainState.Tx(bv.TxID)
	if err != nil && !errors.Is(err, state.ErrTxNotFound) {
		v.logger.Warn(
			"failed to look up blind vote tx",
			"component", "blindvote",
			"tx_id", bv.TxID,
			"error", err,
		)
		return false
	}
	if tx == nil {
		if !allowUnconfirmed {
			v.logger.Debug(
				"blind vote tx not confirmed",
				"component", "blindvote",
				"tx_id", bv.TxID,
			)
			return false
		}
		return v.periods.IsInPhase(chainHeight, state.PhaseBlindVote)
	}
	if !v.periods.IsTxInCorrectCycle(tx.BlockHeight, chainHeight) {
		v.logger.Debug(
			"blind vote tx not in current cycle",
			"component", "blindvote",
			"tx_id", bv.TxID,
			"tx_height", tx.BlockHeight,
			"chain_height", chainHeight,
		)
		return false
	}
	if !v.periods.IsInPhase(tx.BlockHeight, state.PhaseBlindVote) {
		v.logger.Debug(
			"blind vote tx not in blind vote phase",
			"component", "blindvote",
			"tx_id", bv.TxID,
			"tx_height", tx.BlockHeight,
		)
		return false
	}
	return true
}

func (v *Validator) IsValidAndConfirmed(bv *BlindVote) bool {
	return v.IsValid(bv, false)
}

func (v *Validator) IsValidOrUnconfirmed(bv *BlindVote) bool {
	return v.IsValid(bv, true)
}
