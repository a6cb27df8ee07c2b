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

// Package proposal implements the DAO proposal payloads and the rules that
// bind a payload to the marker output of its anchoring transaction.
package proposal

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/google/uuid"

	"github.com/aejontargaryen/bisq-core/state"
)

// Kind tags the proposal variant in the serialized form
type Kind uint8

const (
	KindGeneric      Kind = 1
	KindCompensation Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "GENERIC"
	case KindCompensation:
		return "COMPENSATION_REQUEST"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// AddressPrefix is the leading character of every BSQ payout address
const AddressPrefix = "B"

// MaxDescriptionLength is the maximum number of characters in a proposal
// description
const MaxDescriptionLength = 100

// Proposal is one of *GenericProposal or *CompensationProposal
type Proposal interface {
	Kind() Kind
	// Common returns the fields shared by all proposal kinds
	Common() *Base
	// OpReturnType is the marker type tag of the anchoring transaction
	OpReturnType() state.OpReturnType
	clone() Proposal
}

// Base holds the fields common to every proposal kind
type Base struct {
	ExtraData    map[string]string
	UID          string
	Name         string
	Title        string
	Description  string
	Link         string
	TxID         string
	OwnerPubKey  []byte
	CreationDate time.Time
	Version      byte
}

func (b *Base) Common() *Base {
	return b
}

func (b Base) copy() Base {
	ret := b
	ret.OwnerPubKey = append([]byte(nil), b.OwnerPubKey...)
	if len(b.ExtraData) > 0 {
		ret.ExtraData = maps.Clone(b.ExtraData)
	} else {
		ret.ExtraData = nil
	}
	return ret
}

// GenericProposal is a proposal without kind specific fields
type GenericProposal struct {
	Base
}

func (p *GenericProposal) Kind() Kind {
	return KindGeneric
}

func (p *GenericProposal) OpReturnType() state.OpReturnType {
	return state.OpReturnTypeProposal
}

func (p *GenericProposal) clone() Proposal {
	return &GenericProposal{Base: p.copy()}
}

// CompensationProposal requests an issuance of RequestedAmount to
// PayoutAddress
type CompensationProposal struct {
	PayoutAddress   string
	Base
	RequestedAmount int64
}

func (p *CompensationProposal) Kind() Kind {
	return KindCompensation
}

func (p *CompensationProposal) OpReturnType() state.OpReturnType {
	return state.OpReturnTypeCompensationRequest
}

func (p *CompensationProposal) clone() Proposal {
	return &CompensationProposal{
		Base:            p.copy(),
		RequestedAmount: p.RequestedAmount,
		PayoutAddress:   p.PayoutAddress,
	}
}

// UnderlyingAddress returns the payout address without its first
// character, the BSQ prefix. The first character is dropped whatever it is.
func (p *CompensationProposal) UnderlyingAddress() string {
	if p.PayoutAddress == "" {
		return ""
	}
	return p.PayoutAddress[1:]
}

// NewUID returns a fresh proposal uid
func NewUID() string {
	return uuid.NewString()
}

// NewGenericProposal creates an unanchored generic proposal
func NewGenericProposal(
	name, title, description, link string,
	ownerPubKey []byte,
) *GenericProposal {
	return &GenericProposal{
		Base: Base{
			UID:          NewUID(),
			Name:         name,
			Title:        title,
			Description:  description,
			Link:         link,
			OwnerPubKey:  ownerPubKey,
			Version:      state.ProposalVersion,
			CreationDate: time.Now().UTC().Truncate(time.Millisecond),
		},
	}
}

// NewCompensationProposal creates an unanchored compensation proposal. The
// payout address must be a base58check address carrying the BSQ prefix.
func NewCompensationProposal(
	name, title, description, link string,
	ownerPubKey []byte,
	requestedAmount int64,
	payoutAddress string,
) (*CompensationProposal, error) {
	if requestedAmount <= 0 {
		return nil, fmt.Errorf(
			"%w: requested amount must be positive",
			ErrInvalidAmount,
		)
	}
	if err := ValidatePayoutAddress(payoutAddress); err != nil {
		return nil, err
	}
	return &CompensationProposal{
		Base: Base{
			UID:          NewUID(),
			Name:         name,
			Title:        title,
			Description:  description,
			Link:         link,
			OwnerPubKey:  ownerPubKey,
			Version:      state.CompensationRequestVersion,
			CreationDate: time.Now().UTC().Truncate(time.Millisecond),
		},
		RequestedAmount: requestedAmount,
		PayoutAddress:   payoutAddress,
	}, nil
}

// ValidatePayoutAddress checks the BSQ prefix and the base58check encoding
// of the underlying address
func ValidatePayoutAddress(addr string) error {
	if !strings.HasPrefix(addr, AddressPrefix) {
		return fmt.Errorf("%w: missing %q prefix", ErrInvalidAddress, AddressPrefix)
	}
	if _, _, err := base58.CheckDecode(strings.TrimPrefix(addr, AddressPrefix)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return nil
}

// WithTxID returns a copy of p anchored to txID
func WithTxID(p Proposal, txID string) Proposal {
	ret := p.clone()
	ret.Common().TxID = txID
	return ret
}

// ShortID returns the first 8 characters of the proposal uid
func ShortID(p Proposal) string {
	uid := p.Common().UID
	if len(uid) > 8 {
		return uid[:8]
	}
	return uid
}
