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

package models

import (
	"github.com/aejontargaryen/bisq-core/state"
)

type Issuance struct {
	TxID             string `gorm:"uniqueIndex;size:64"`
	RecipientAddress string
	GranteePubKey    string
	ID               uint `gorm:"primarykey"`
	Amount           int64
	ChainHeight      int `gorm:"index"`
}

func (Issuance) TableName() string {
	return "issuance"
}

func (i *Issuance) ToState() state.Issuance {
	return state.Issuance{
		TxID:             i.TxID,
		RecipientAddress: i.RecipientAddress,
		GranteePubKey:    i.GranteePubKey,
		Amount:           i.Amount,
		ChainHeight:      i.ChainHeight,
	}
}

func IssuanceFromState(i state.Issuance) Issuance {
	return Issuance{
		TxID:             i.TxID,
		RecipientAddress: i.RecipientAddress,
		GranteePubKey:    i.GranteePubKey,
		Amount:           i.Amount,
		ChainHeight:      i.ChainHeight,
	}
}

// Param records a parameter value taking effect at Height
type Param struct {
	Name   string `gorm:"uniqueIndex:idx_param_name_height"`
	ID     uint   `gorm:"primarykey"`
	Height int    `gorm:"uniqueIndex:idx_param_name_height"`
	Value  int64
}

func (Param) TableName() string {
	return "param"
}
