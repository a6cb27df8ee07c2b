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

package database_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aejontargaryen/bisq-core/database"
)

func TestInMemorySetGetDelete(t *testing.T) {
	db, err := database.New(database.Config{})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Get([]byte("missing"))
	require.ErrorIs(t, err, database.ErrKeyNotFound)

	require.NoError(t, db.Set([]byte("k"), []byte("v1")))
	val, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)

	require.NoError(t, db.Set([]byte("k"), []byte("v2")))
	val, err = db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), val)

	require.NoError(t, db.Delete([]byte("k")))
	_, err = db.Get([]byte("k"))
	require.ErrorIs(t, err, database.ErrKeyNotFound)
	require.NoError(t, db.Delete([]byte("k")))
}

func TestKeysByPrefix(t *testing.T) {
	db, err := database.New(database.Config{})
	require.NoError(t, err)
	defer db.Close()
	for _, k := range []string{"vote_b", "vote_a", "other"} {
		require.NoError(t, db.Set([]byte(k), []byte{1}))
	}
	keys, err := db.Keys([]byte("vote_"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("vote_a"), []byte("vote_b")}, keys)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(database.Config{DataDir: dir})
	require.NoError(t, err)
	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	require.NoError(t, db.Close())

	db, err = database.New(database.Config{DataDir: dir})
	require.NoError(t, err)
	val, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
	require.NoError(t, db.Close())
}

func TestClosedDatabase(t *testing.T) {
	db, err := database.New(database.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	_, err = db.Get([]byte("k"))
	assert.ErrorIs(t, err, database.ErrClosed)
	assert.ErrorIs(t, db.Set([]byte("k"), nil), database.ErrClosed)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	db, err := database.New(database.Config{PromRegistry: reg})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Set([]byte("k"), []byte("v")))
	_, err = db.Get([]byte("k"))
	require.NoError(t, err)
	expected := `
# HELP dao_database_ops_total total local database operations
# TYPE dao_database_ops_total counter
dao_database_ops_total{op="get"} 1
dao_database_ops_total{op="set"} 1
`
	require.NoError(
		t,
		testutil.GatherAndCompare(
			reg,
			strings.NewReader(expected),
			"dao_database_ops_total",
		),
	)
}
