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

package proposal

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/aejontargaryen/bisq-core/state"
)

// Validate checks p against its anchoring transaction. The checks run in a
// fixed order and the first failure is returned as a *ValidationError.
func Validate(p Proposal, tx *state.Tx, periods state.PeriodService) error {
	if tx == nil {
		return NewValidationError(StageTx, "", p.Common().TxID, ErrMissingTx)
	}
	if err := validateTxType(tx); err != nil {
		return err
	}
	if err := validateOutputType(tx); err != nil {
		return err
	}
	if err := validatePhase(tx, periods); err != nil {
		return err
	}
	if err := ValidateDataFields(p); err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			vErr.TxID = tx.ID
		}
		return err
	}
	return validateOpReturnHash(p, tx)
}

func validateTxType(tx *state.Tx) error {
	if tx.Type != state.TxTypeProposal {
		return NewValidationError(
			StageTxType,
			"",
			tx.ID,
			fmt.Errorf("%w: %s", ErrInvalidTxType, tx.Type),
		)
	}
	return nil
}

func validateOutputType(tx *state.Tx) error {
	out, ok := tx.LastOutput()
	if !ok {
		return NewValidationError(
			StageOutputType,
			"",
			tx.ID,
			fmt.Errorf("%w: transaction has no outputs", ErrInvalidOutputType),
		)
	}
	if out.Type != state.TxOutputTypeProposalOpReturn {
		return NewValidationError(
			StageOutputType,
			"",
			tx.ID,
			fmt.Errorf("%w: %s", ErrInvalidOutputType, out.Type),
		)
	}
	return nil
}

func validatePhase(tx *state.Tx, periods state.PeriodService) error {
	if !periods.IsInPhase(tx.BlockHeight, state.PhaseProposal) {
		return NewValidationError(
			StagePhase,
			"",
			tx.ID,
			fmt.Errorf("%w: height %d", ErrWrongPhase, tx.BlockHeight),
		)
	}
	if !periods.IsTxInCorrectCycle(tx.BlockHeight, periods.ChainHeight()) {
		return NewValidationError(
			StagePhase,
			"",
			tx.ID,
			fmt.Errorf(
				"%w: height %d, chain height %d",
				ErrWrongCycle,
				tx.BlockHeight,
				periods.ChainHeight(),
			),
		)
	}
	return nil
}

// ValidateDataFields checks the required text fields and the description
// length cap
func ValidateDataFields(p Proposal) error {
	b := p.Common()
	fields := []struct {
		name  string
		value string
	}{
		{"name", b.Name},
		{"title", b.Title},
		{"description", b.Description},
		{"link", b.Link},
	}
	for _, f := range fields {
		if f.value == "" {
			return NewValidationError(StageDataFields, f.name, b.TxID, ErrEmptyField)
		}
	}
	if utf8.RuneCountInString(b.Description) > MaxDescriptionLength {
		return NewValidationError(
			StageDataFields,
			"description",
			b.TxID,
			ErrDescriptionTooLong,
		)
	}
	return nil
}

// Type and version bytes are not checked here, the parser has already
// classified the output.
func validateOpReturnHash(p Proposal, tx *state.Tx) error {
	out, _ := tx.LastOutput()
	data := out.OpReturnData
	if len(data) < state.MarkerHashEnd {
		return NewValidationError(
			StageOpReturn,
			"",
			tx.ID,
			fmt.Errorf("%w: marker data has %d bytes", ErrHashMismatch, len(data)),
		)
	}
	hash, err := CommitmentHash(p)
	if err != nil {
		return NewValidationError(StageOpReturn, "", tx.ID, err)
	}
	if !bytes.Equal(data[state.MarkerHashOffset:state.MarkerHashEnd], hash) {
		return NewValidationError(
			StageOpReturn,
			"",
			tx.ID,
			fmt.Errorf(
				"%w: marker=%x payload=%x",
				ErrHashMismatch,
				data[state.MarkerHashOffset:state.MarkerHashEnd],
				hash,
			),
		)
	}
	return nil
}
