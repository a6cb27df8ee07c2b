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
	"errors"
	"fmt"
)

var (
	ErrMissingTx          = errors.New("anchoring transaction missing")
	ErrInvalidTxType      = errors.New("invalid transaction type")
	ErrInvalidOutputType  = errors.New("invalid marker output type")
	ErrWrongPhase         = errors.New("transaction not in proposal phase")
	ErrWrongCycle         = errors.New("transaction not in current cycle")
	ErrEmptyField         = errors.New("field must not be empty")
	ErrDescriptionTooLong = errors.New("description is too long")
	ErrHashMismatch       = errors.New("marker hash does not match payload")
	ErrInvalidAmount      = errors.New("invalid requested amount")
	ErrInvalidAddress     = errors.New("invalid payout address")
)

// Stage identifies the validation step that rejected a proposal
type Stage string

const (
	StageTx         Stage = "tx"
	StageTxType     Stage = "tx_type"
	StageOutputType Stage = "output_type"
	StagePhase      Stage = "phase"
	StageDataFields Stage = "data_fields"
	StageOpReturn   Stage = "op_return"
)

// ValidationError reports the stage and, where applicable, the field that
// caused a proposal to be rejected
type ValidationError struct {
	Err   error
	Stage Stage
	Field string
	TxID  string
}

func NewValidationError(stage Stage, field string, txID string, err error) *ValidationError {
	return &ValidationError{
		Stage: stage,
		Field: field,
		TxID:  txID,
		Err:   err,
	}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf(
			"proposal validation failed at %s (field %s, tx %s): %s",
			e.Stage,
			e.Field,
			e.TxID,
			e.Err,
		)
	}
	return fmt.Sprintf(
		"proposal validation failed at %s (tx %s): %s",
		e.Stage,
		e.TxID,
		e.Err,
	)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// UnknownKindError is returned when decoding a proposal with an unrecognized
// kind tag
type UnknownKindError struct {
	Kind Kind
}

func NewUnknownKindError(kind Kind) *UnknownKindError {
	return &UnknownKindError{Kind: kind}
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown proposal kind: %d", uint8(e.Kind))
}
