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

package state

import "fmt"

// TxType is the DAO classification the chain parser assigns to a transaction
type TxType uint8

const (
	TxTypeUndefined TxType = iota
	TxTypeGenesis
	TxTypeTransferBsq
	TxTypePayTradeFee
	TxTypeProposal
	TxTypeCompensationRequest
	TxTypeBlindVote
	TxTypeVoteReveal
	TxTypeIssuance
)

func (t TxType) String() string {
	switch t {
	case TxTypeGenesis:
		return "GENESIS"
	case TxTypeTransferBsq:
		return "TRANSFER_BSQ"
	case TxTypePayTradeFee:
		return "PAY_TRADE_FEE"
	case TxTypeProposal:
		return "PROPOSAL"
	case TxTypeCompensationRequest:
		return "COMPENSATION_REQUEST"
	case TxTypeBlindVote:
		return "BLIND_VOTE"
	case TxTypeVoteReveal:
		return "VOTE_REVEAL"
	case TxTypeIssuance:
		return "ISSUANCE"
	default:
		return "UNDEFINED"
	}
}

// TxOutputType is the DAO classification of a single transaction output
type TxOutputType uint8

const (
	TxOutputTypeUndefined TxOutputType = iota
	TxOutputTypeGenesis
	TxOutputTypeBsq
	TxOutputTypeBtc
	TxOutputTypeProposalOpReturn
	TxOutputTypeIssuanceCandidate
	TxOutputTypeBlindVoteLockStake
	TxOutputTypeBlindVoteOpReturn
	TxOutputTypeVoteRevealUnlockStake
	TxOutputTypeVoteRevealOpReturn
)

func (t TxOutputType) String() string {
	switch t {
	case TxOutputTypeGenesis:
		return "GENESIS_OUTPUT"
	case TxOutputTypeBsq:
		return "BSQ_OUTPUT"
	case TxOutputTypeBtc:
		return "BTC_OUTPUT"
	case TxOutputTypeProposalOpReturn:
		return "PROPOSAL_OP_RETURN_OUTPUT"
	case TxOutputTypeIssuanceCandidate:
		return "ISSUANCE_CANDIDATE_OUTPUT"
	case TxOutputTypeBlindVoteLockStake:
		return "BLIND_VOTE_LOCK_STAKE_OUTPUT"
	case TxOutputTypeBlindVoteOpReturn:
		return "BLIND_VOTE_OP_RETURN_OUTPUT"
	case TxOutputTypeVoteRevealUnlockStake:
		return "VOTE_REVEAL_UNLOCK_STAKE_OUTPUT"
	case TxOutputTypeVoteRevealOpReturn:
		return "VOTE_REVEAL_OP_RETURN_OUTPUT"
	default:
		return "UNDEFINED_OUTPUT"
	}
}

// TxInput references the output a transaction input spends
type TxInput struct {
	ConnectedTxID        string
	ConnectedOutputIndex int
}

// TxOutput is a parsed transaction output. OpReturnData is only set on
// marker outputs. GranteePubKey is the hex encoded public key that controls
// the output, when the parser could recover it.
type TxOutput struct {
	TxID          string
	Address       string
	GranteePubKey string
	OpReturnData  []byte
	Value         int64
	Index         int
	BlockHeight   int
	Type          TxOutputType
}

// Key returns the outpoint string for the output
func (o TxOutput) Key() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

// Tx is a confirmed transaction as seen by the chain parser
type Tx struct {
	ID          string
	Inputs      []TxInput
	Outputs     []TxOutput
	BlockHeight int
	Type        TxType
}

// LastOutput returns the final output of the transaction, which carries the
// marker data for DAO transactions
func (t *Tx) LastOutput() (TxOutput, bool) {
	if t == nil || len(t.Outputs) == 0 {
		return TxOutput{}, false
	}
	return t.Outputs[len(t.Outputs)-1], true
}

// Issuance records tokens granted to a compensation request output
type Issuance struct {
	TxID             string
	RecipientAddress string
	GranteePubKey    string
	Amount           int64
	ChainHeight      int
}
