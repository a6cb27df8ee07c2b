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

type Tx struct {
	TxID        string     `gorm:"uniqueIndex;size:64"`
	Inputs      []TxInput  `gorm:"foreignKey:TxRef"`
	Outputs     []TxOutput `gorm:"foreignKey:TxRef"`
	ID          uint       `gorm:"primarykey"`
	BlockHeight int        `gorm:"index"`
	Type        uint8
}

func (Tx) TableName() string {
	return "tx"
}

// ToState converts the row, including preloaded inputs and outputs
func (t *Tx) ToState() *state.Tx {
	ret := &state.Tx{
		ID:          t.TxID,
		BlockHeight: t.BlockHeight,
		Type:        state.TxType(t.Type),
		Inputs:      make([]state.TxInput, 0, len(t.Inputs)),
		Outputs:     make([]state.TxOutput, 0, len(t.Outputs)),
	}
	for _, in := range t.Inputs {
		ret.Inputs = append(ret.Inputs, state.TxInput{
			ConnectedTxID:        in.ConnectedTxID,
			ConnectedOutputIndex: in.ConnectedOutputIndex,
		})
	}
	for i := range t.Outputs {
		ret.Outputs = append(ret.Outputs, t.Outputs[i].ToState())
	}
	return ret
}

// TxFromState builds a row tree for tx
func TxFromState(tx *state.Tx) *Tx {
	ret := &Tx{
		TxID:        tx.ID,
		BlockHeight: tx.BlockHeight,
		Type:        uint8(tx.Type),
	}
	for i, in := range tx.Inputs {
		ret.Inputs = append(ret.Inputs, TxInput{
			Position:             i,
			ConnectedTxID:        in.ConnectedTxID,
			ConnectedOutputIndex: in.ConnectedOutputIndex,
		})
	}
	for _, out := range tx.Outputs {
		ret.Outputs = append(ret.Outputs, TxOutputFromState(out))
	}
	return ret
}

type TxInput struct {
	ConnectedTxID        string `gorm:"index;size:64"`
	ID                   uint   `gorm:"primarykey"`
	TxRef                uint   `gorm:"index"`
	Position             int
	ConnectedOutputIndex int
}

func (TxInput) TableName() string {
	return "tx_input"
}

type TxOutput struct {
	TxID          string `gorm:"uniqueIndex:idx_tx_output_tx_id_index;size:64"`
	Address       string
	GranteePubKey string
	OpReturnData  []byte
	ID            uint  `gorm:"primarykey"`
	TxRef         uint  `gorm:"index"`
	Value         int64
	Index         int `gorm:"uniqueIndex:idx_tx_output_tx_id_index"`
	BlockHeight   int
	Type          uint8 `gorm:"index"`
}

func (TxOutput) TableName() string {
	return "tx_output"
}

func (o *TxOutput) ToState() state.TxOutput {
	return state.TxOutput{
		TxID:          o.TxID,
		Address:       o.Address,
		GranteePubKey: o.GranteePubKey,
		OpReturnData:  o.OpReturnData,
		Value:         o.Value,
		Index:         o.Index,
		BlockHeight:   o.BlockHeight,
		Type:          state.TxOutputType(o.Type),
	}
}

func TxOutputFromState(out state.TxOutput) TxOutput {
	return TxOutput{
		TxID:          out.TxID,
		Address:       out.Address,
		GranteePubKey: out.GranteePubKey,
		OpReturnData:  out.OpReturnData,
		Value:         out.Value,
		Index:         out.Index,
		BlockHeight:   out.BlockHeight,
		Type:          uint8(out.Type),
	}
}
