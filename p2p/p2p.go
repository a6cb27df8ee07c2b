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

// Package p2p defines the payload replication capability and the
// connectivity signal produced by the peer-to-peer layer
package p2p

import (
	"github.com/aejontargaryen/bisq-core/event"
)

const ConnectivityEventType event.EventType = "p2p.connectivity"

// ConnectivityEvent is published by the peer-to-peer layer whenever the
// number of connected peers or the bootstrap state changes
type ConnectivityEvent struct {
	NumConnectedPeers int
	Bootstrapped      bool
}

// PayloadKind identifies the type of a replicated payload
type PayloadKind string

const PayloadKindBlindVote PayloadKind = "blind_vote"

// Payload is an encoded record for replication. Hash identifies the payload
// for duplicate suppression.
type Payload struct {
	Kind PayloadKind
	Hash []byte
	Data []byte
}

// Network disseminates payloads on a best-effort basis
type Network interface {
	// AddPayload stores the payload locally and floods it to peers. It
	// returns false if the payload was rejected.
	AddPayload(payload Payload) bool
}
