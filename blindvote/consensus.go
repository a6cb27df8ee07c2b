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
	"fmt"

	"github.com/aejontargaryen/bisq-core/encryption"
	"github.com/aejontargaryen/bisq-core/merit"
	"github.com/aejontargaryen/bisq-core/state"
)

// EncryptBallots serializes the list in its current order and encrypts it
// with key
func EncryptBallots(ballots BallotList, key encryption.SecretKey) ([]byte, error) {
	data, err := ballots.Encode()
	if err != nil {
		return nil, err
	}
	return encryption.Encrypt(data, key)
}

// DecryptBallots reverses EncryptBallots
func DecryptBallots(ciphertext []byte, key encryption.SecretKey) (BallotList, error) {
	data, err := encryption.Decrypt(ciphertext, key)
	if err != nil {
		return nil, err
	}
	return DecodeBallotList(data)
}

// EncryptMerits serializes the merit list and encrypts it with key
func EncryptMerits(merits merit.MeritList, key encryption.SecretKey) ([]byte, error) {
	data, err := merits.Encode()
	if err != nil {
		return nil, err
	}
	return encryption.Encrypt(data, key)
}

// DecryptMerits reverses EncryptMerits
func DecryptMerits(ciphertext []byte, key encryption.SecretKey) (merit.MeritList, error) {
	data, err := encryption.Decrypt(ciphertext, key)
	if err != nil {
		return nil, err
	}
	return merit.Decode(data)
}

// CommitmentHash is the hash of the encrypted ballots committed to in the
// blind vote marker
func CommitmentHash(encryptedBallots []byte) []byte {
	return encryption.Hash160(encryptedBallots)
}

// OpReturnData builds the blind vote marker [type][version][hash]
func OpReturnData(hash []byte) ([]byte, error) {
	if len(hash) != state.HashSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHashSize, len(hash))
	}
	ret := make([]byte, 0, state.BlindVoteMarkerSize)
	ret = append(ret, byte(state.OpReturnTypeBlindVote), state.BlindVoteVersion)
	ret = append(ret, hash...)
	return ret, nil
}

// RequiredFee returns the blind vote fee in effect at chainHeight. Callers
// pass the current chain height, not the future anchoring height.
func RequiredFee(params state.ParamService, chainHeight int) (int64, error) {
	fee, err := params.ParamValue(state.ParamBlindVoteFee, chainHeight)
	if err != nil {
		return 0, fmt.Errorf("read blind vote fee: %w", err)
	}
	return fee, nil
}
