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

// OpReturnType is the first byte of every DAO marker output
type OpReturnType byte

const (
	OpReturnTypeUndefined           OpReturnType = 0x00
	OpReturnTypeProposal            OpReturnType = 0x10
	OpReturnTypeCompensationRequest OpReturnType = 0x11
	OpReturnTypeBlindVote           OpReturnType = 0x12
	OpReturnTypeVoteReveal          OpReturnType = 0x13
)

// Marker versions, written as the second byte of the marker output
const (
	ProposalVersion            byte = 0x01
	CompensationRequestVersion byte = 0x01
	BlindVoteVersion           byte = 0x01
	VoteRevealVersion          byte = 0x01
)

// Marker layout
const (
	HashSize              = 20
	MarkerHeaderSize      = 2
	BlindVoteMarkerSize   = MarkerHeaderSize + HashSize
	ProposalMarkerSize    = MarkerHeaderSize + HashSize
	RevealKeyFieldSize    = 32
	VoteRevealMarkerSize  = MarkerHeaderSize + HashSize + RevealKeyFieldSize
	MarkerHashOffset      = MarkerHeaderSize
	MarkerHashEnd         = MarkerHeaderSize + HashSize
	MaxOpReturnDataLength = 80
)
