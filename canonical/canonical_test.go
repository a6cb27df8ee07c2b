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

package canonical_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aejontargaryen/bisq-core/canonical"
)

func TestMapEncodingIsOrderIndependent(t *testing.T) {
	a := map[string]string{"b": "2", "a": "1", "c": "3"}
	b := map[string]string{"c": "3", "a": "1", "b": "2"}
	encA, err := canonical.Marshal(a)
	require.NoError(t, err)
	encB, err := canonical.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, encA, encB)
}

func TestUnmarshalRejectsUnknownFields(t *testing.T) {
	type wide struct {
		A string `cbor:"a"`
		B string `cbor:"b"`
	}
	type narrow struct {
		A string `cbor:"a"`
	}
	data, err := canonical.Marshal(wide{A: "x", B: "y"})
	require.NoError(t, err)
	var out narrow
	require.Error(t, canonical.Unmarshal(data, &out))
}
