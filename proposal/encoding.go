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
	"fmt"
	"time"

	"github.com/aejontargaryen/bisq-core/canonical"
	"github.com/aejontargaryen/bisq-core/encryption"
	"github.com/aejontargaryen/bisq-core/state"
)

type envelope struct {
	_    struct{} `cbor:",toarray"`
	Kind Kind
	Body canonical.RawMessage
}

type baseWire struct {
	_            struct{} `cbor:",toarray"`
	UID          string
	Name         string
	Title        string
	Description  string
	Link         string
	OwnerPubKey  []byte
	Version      uint8
	CreationDate int64
	TxID         string
	ExtraData    map[string]string
}

type compensationWire struct {
	_               struct{} `cbor:",toarray"`
	Base            baseWire
	RequestedAmount int64
	PayoutAddress   string
}

func toBaseWire(b *Base) baseWire {
	ret := baseWire{
		UID:          b.UID,
		Name:         b.Name,
		Title:        b.Title,
		Description:  b.Description,
		Link:         b.Link,
		OwnerPubKey:  b.OwnerPubKey,
		Version:      b.Version,
		CreationDate: b.CreationDate.UnixMilli(),
		TxID:         b.TxID,
	}
	// Absent and empty extra data must hash identically
	if len(b.ExtraData) > 0 {
		ret.ExtraData = b.ExtraData
	}
	if ret.OwnerPubKey == nil {
		ret.OwnerPubKey = []byte{}
	}
	return ret
}

func fromBaseWire(w baseWire) Base {
	ret := Base{
		UID:          w.UID,
		Name:         w.Name,
		Title:        w.Title,
		Description:  w.Description,
		Link:         w.Link,
		OwnerPubKey:  w.OwnerPubKey,
		Version:      w.Version,
		CreationDate: time.UnixMilli(w.CreationDate).UTC(),
		TxID:         w.TxID,
	}
	if len(w.ExtraData) > 0 {
		ret.ExtraData = w.ExtraData
	}
	return ret
}

// Encode returns the canonical serialized form of p
func Encode(p Proposal) ([]byte, error) {
	var body any
	switch v := p.(type) {
	case *GenericProposal:
		body = toBaseWire(&v.Base)
	case *CompensationProposal:
		body = compensationWire{
			Base:            toBaseWire(&v.Base),
			RequestedAmount: v.RequestedAmount,
			PayoutAddress:   v.PayoutAddress,
		}
	default:
		return nil, fmt.Errorf("unsupported proposal type %T", p)
	}
	bodyBytes, err := canonical.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode proposal body: %w", err)
	}
	return canonical.Marshal(envelope{Kind: p.Kind(), Body: bodyBytes})
}

// Decode parses a proposal produced by Encode. Unrecognized kind tags fail
// with *UnknownKindError.
func Decode(data []byte) (Proposal, error) {
	var env envelope
	if err := canonical.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode proposal envelope: %w", err)
	}
	switch env.Kind {
	case KindGeneric:
		var w baseWire
		if err := canonical.Unmarshal(env.Body, &w); err != nil {
			return nil, fmt.Errorf("decode generic proposal: %w", err)
		}
		return &GenericProposal{Base: fromBaseWire(w)}, nil
	case KindCompensation:
		var w compensationWire
		if err := canonical.Unmarshal(env.Body, &w); err != nil {
			return nil, fmt.Errorf("decode compensation proposal: %w", err)
		}
		return &CompensationProposal{
			Base:            fromBaseWire(w.Base),
			RequestedAmount: w.RequestedAmount,
			PayoutAddress:   w.PayoutAddress,
		}, nil
	default:
		return nil, NewUnknownKindError(env.Kind)
	}
}

// CommitmentHash returns the 20 byte hash committed to by the anchoring
// transaction. The tx id is cleared before hashing.
func CommitmentHash(p Proposal) ([]byte, error) {
	data, err := Encode(WithTxID(p, ""))
	if err != nil {
		return nil, err
	}
	return encryption.Hash160(data), nil
}

// OpReturnData returns the marker output data for the anchoring transaction
func OpReturnData(p Proposal) ([]byte, error) {
	hash, err := CommitmentHash(p)
	if err != nil {
		return nil, err
	}
	ret := make([]byte, 0, state.ProposalMarkerSize)
	ret = append(ret, byte(p.OpReturnType()), p.Common().Version)
	ret = append(ret, hash...)
	return ret, nil
}
