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

// Package wallet defines the transaction construction capability the DAO
// engines consume. Key management and coin selection live in the wallet
// implementation.
package wallet

import (
	"errors"

	"github.com/aejontargaryen/bisq-core/state"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTxVerification    = errors.New("transaction verification failed")
	ErrWalletLocked      = errors.New("wallet locked")
)

// Tx is a signed transaction ready for broadcast
type Tx struct {
	ID        string
	Raw       []byte
	MiningFee int64
	Size      int
}

// Builder constructs and signs DAO anchoring transactions
type Builder interface {
	// BuildBlindVoteTx returns a transaction that locks stake in its first
	// output, pays fee to the DAO and carries opReturnData in its last
	// output
	BuildBlindVoteTx(stake int64, fee int64, opReturnData []byte) (*Tx, error)
	// BuildVoteRevealTx returns a transaction spending the stake output and
	// carrying opReturnData in its last output
	BuildVoteRevealTx(stakeOutput state.TxOutput, opReturnData []byte) (*Tx, error)
}
