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

package merit

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/aejontargaryen/bisq-core/canonical"
	"github.com/aejontargaryen/bisq-core/encryption"
	"github.com/aejontargaryen/bisq-core/state"
)

// KeyRing resolves the wallet private key controlling a public key
type KeyRing interface {
	// PrivateKey returns the private key for the hex encoded public key
	PrivateKey(pubKeyHex string) (*btcec.PrivateKey, bool)
}

// Merit proves that the voter controls the key which received an issuance.
// Signature is empty when the merit was built without a blind vote tx id.
type Merit struct {
	Issuance  state.Issuance
	Signature []byte
}

// MeritList is an ordered list of merits, in creation order
type MeritList []Merit

type issuanceWire struct {
	_                struct{} `cbor:",toarray"`
	TxID             string
	Amount           int64
	RecipientAddress string
	GranteePubKey    string
	ChainHeight      int
}

type meritWire struct {
	_         struct{} `cbor:",toarray"`
	Issuance  issuanceWire
	Signature []byte
}

// Encode returns the canonical serialized form of the list
func (l MeritList) Encode() ([]byte, error) {
	wire := make([]meritWire, 0, len(l))
	for _, m := range l {
		sig := m.Signature
		if sig == nil {
			sig = []byte{}
		}
		wire = append(wire, meritWire{
			Issuance: issuanceWire{
				TxID:             m.Issuance.TxID,
				Amount:           m.Issuance.Amount,
				RecipientAddress: m.Issuance.RecipientAddress,
				GranteePubKey:    m.Issuance.GranteePubKey,
				ChainHeight:      m.Issuance.ChainHeight,
			},
			Signature: sig,
		})
	}
	return canonical.Marshal(wire)
}

// Decode parses a list produced by Encode
func Decode(data []byte) (MeritList, error) {
	var wire []meritWire
	if err := canonical.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode merit list: %w", err)
	}
	ret := make(MeritList, 0, len(wire))
	for _, w := range wire {
		ret = append(ret, Merit{
			Issuance: state.Issuance{
				TxID:             w.Issuance.TxID,
				Amount:           w.Issuance.Amount,
				RecipientAddress: w.Issuance.RecipientAddress,
				GranteePubKey:    w.Issuance.GranteePubKey,
				ChainHeight:      w.Issuance.ChainHeight,
			},
			Signature: w.Signature,
		})
	}
	return ret, nil
}

// BuildMeritList creates a merit for every issuance granted to one of the
// voter's own compensation proposals. Issuances without a public key, or
// whose key is not in the key ring, are skipped. An empty blindVoteTxID
// produces merits with empty signatures.
func BuildMeritList(
	ownCompensationTxIDs []string,
	issuances []state.Issuance,
	keys KeyRing,
	blindVoteTxID string,
	logger *slog.Logger,
) (MeritList, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	ret := MeritList{}
	for _, issuance := range issuances {
		if !slices.Contains(ownCompensationTxIDs, issuance.TxID) {
			continue
		}
		if issuance.GranteePubKey == "" {
			logger.Debug(
				"skipping issuance without public key",
				"component", "merit",
				"tx_id", issuance.TxID,
			)
			continue
		}
		key, ok := keys.PrivateKey(issuance.GranteePubKey)
		if !ok || key == nil {
			logger.Debug(
				"skipping issuance without matching wallet key",
				"component", "merit",
				"tx_id", issuance.TxID,
				"pub_key", issuance.GranteePubKey,
			)
			continue
		}
		var sig []byte
		if blindVoteTxID != "" {
			var err error
			sig, err = encryption.SignTxID(key, blindVoteTxID)
			if err != nil {
				return nil, fmt.Errorf(
					"sign merit for issuance %s: %w",
					issuance.TxID,
					err,
				)
			}
		}
		ret = append(ret, Merit{Issuance: issuance, Signature: sig})
	}
	return ret, nil
}

// CurrentlyAvailableMerit sums the decayed merit value of every entry as
// reported by the oracle
func CurrentlyAvailableMerit(
	list MeritList,
	chainHeight int,
	oracle state.MeritOracle,
) int64 {
	var total int64
	for _, m := range list {
		total += oracle.MeritValue(m.Issuance, chainHeight)
	}
	return total
}

// Verify checks that the merit signature was made over blindVoteTxID by the
// key that received the issuance
func Verify(m Merit, blindVoteTxID string) error {
	if m.Issuance.GranteePubKey == "" {
		return fmt.Errorf("%w: issuance has no public key", encryption.ErrInvalidPubKey)
	}
	return encryption.VerifyTxIDSignature(
		m.Issuance.GranteePubKey,
		blindVoteTxID,
		m.Signature,
	)
}
