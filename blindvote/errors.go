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
)

var (
	ErrInvalidVote         = errors.New("invalid vote value")
	ErrEmptyProposalTxID   = errors.New("empty proposal tx id")
	ErrInvalidHashSize     = errors.New("invalid commitment hash size")
	ErrInvalidStake        = errors.New("stake must be positive")
	ErrEmptyTxID           = errors.New("empty tx id")
	ErrEmptyEncryptedVotes = errors.New("empty encrypted votes")
	ErrDisseminationFailed = errors.New("blind vote rejected by p2p network")
	ErrVoteNotFound        = errors.New("own vote not found")
	ErrServiceStopped      = errors.New("blind vote service stopped")
	ErrNoMeritOracle       = errors.New("no merit oracle configured")
)

// PublishStage names the step of the publish flow that failed
type PublishStage string

const (
	StageKeyGeneration  PublishStage = "key_generation"
	StageEncryption     PublishStage = "encryption"
	StageFee            PublishStage = "fee"
	StageTxConstruction PublishStage = "tx_construction"
	StageMerit          PublishStage = "merit"
	StagePersist        PublishStage = "persist"
)

// PublishError is returned when a publish attempt fails before its
// transaction is handed to the broadcaster
type PublishError struct {
	Err   error
	Stage PublishStage
}

func NewPublishError(stage PublishStage, err error) *PublishError {
	return &PublishError{
		Stage: stage,
		Err:   err,
	}
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish blind vote: %s: %v", e.Stage, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
