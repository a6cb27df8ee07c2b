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

package encryption

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// TxIDSize is the size of a raw transaction id
const TxIDSize = 32

var (
	ErrInvalidTxID      = errors.New("invalid transaction id")
	ErrInvalidPubKey    = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// TxIDBytes decodes a hex transaction id into its 32 raw bytes
func TxIDBytes(txID string) ([]byte, error) {
	raw, err := hex.DecodeString(txID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTxID, err)
	}
	if len(raw) != TxIDSize {
		return nil, fmt.Errorf(
			"%w: expected %d bytes, got %d",
			ErrInvalidTxID,
			TxIDSize,
			len(raw),
		)
	}
	return raw, nil
}

// SignTxID returns the DER encoded low-S ECDSA signature of the raw bytes of
// txID. The signature is deterministic (RFC6979) for a given key and id.
func SignTxID(key *btcec.PrivateKey, txID string) ([]byte, error) {
	msg, err := TxIDBytes(txID)
	if err != nil {
		return nil, err
	}
	return ecdsa.Sign(key, msg).Serialize(), nil
}

// VerifyTxIDSignature checks sig against the hex encoded public key and the
// raw bytes of txID
func VerifyTxIDSignature(pubKeyHex string, txID string, sig []byte) error {
	msg, err := TxIDBytes(txID)
	if err != nil {
		return err
	}
	pubKey, err := ParsePubKey(pubKeyHex)
	if err != nil {
		return err
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if !parsed.Verify(msg, pubKey) {
		return ErrInvalidSignature
	}
	return nil
}

// ParsePubKey decodes a hex encoded compressed or uncompressed secp256k1
// public key
func ParsePubKey(pubKeyHex string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}
	pubKey, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPubKey, err)
	}
	return pubKey, nil
}

// PubKeyHex returns the hex encoded compressed public key
func PubKeyHex(pubKey *btcec.PublicKey) string {
	return hex.EncodeToString(pubKey.SerializeCompressed())
}
