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

// Package database is the node's local durable key-value storage, used for
// records only this node owns such as its own blind votes and vote secrets.
package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultBlockCacheSize = 64 << 20
	DefaultIndexCacheSize = 16 << 20

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("database closed")
)

type Config struct {
	PromRegistry   prometheus.Registerer
	Logger         *slog.Logger
	DataDir        string
	BlockCacheSize int64
	IndexCacheSize int64
	// DisableGc turns off the periodic value log GC of disk backed stores
	DisableGc bool
}

// Database stores all data in badger. Data is only persisted when a data
// directory is configured.
type Database struct {
	config   Config
	db       *badger.DB
	logger   *slog.Logger
	metrics  *dbMetrics
	gcTicker *time.Ticker
	gcStopCh chan struct{}
	gcWg     sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
}

// New opens the database, using an in-memory store when no data directory
// is configured
func New(cfg Config) (*Database, error) {
	d := &Database{
		config: cfg,
		logger: cfg.Logger,
	}
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if d.config.BlockCacheSize <= 0 {
		d.config.BlockCacheSize = DefaultBlockCacheSize
	}
	if d.config.IndexCacheSize <= 0 {
		d.config.IndexCacheSize = DefaultIndexCacheSize
	}
	var badgerOpts badger.Options
	if cfg.DataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(cfg.DataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(cfg.DataDir, "votes")).
			WithBlockCacheSize(d.config.BlockCacheSize).
			WithIndexCacheSize(d.config.IndexCacheSize).
			WithCompression(options.Snappy)
	}
	badgerOpts = badgerOpts.
		WithLogger(NewBadgerLogger(d.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	d.db = db
	if cfg.PromRegistry != nil {
		d.metrics = newDbMetrics(cfg.PromRegistry, d)
	}
	if cfg.DataDir != "" && !cfg.DisableGc {
		d.gcTicker = time.NewTicker(gcInterval)
		d.gcStopCh = make(chan struct{})
		d.gcWg.Add(1)
		go d.valueLogGc(d.gcTicker, d.gcStopCh)
	}
	return d, nil
}

func (d *Database) valueLogGc(t *time.Ticker, stop <-chan struct{}) {
	defer d.gcWg.Done()
	for {
		select {
		case <-t.C:
			for {
				err := d.db.RunValueLogGC(gcDiscardRatio)
				if err == nil {
					// Run it again if it just ran successfully
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					d.logger.Warn(
						fmt.Sprintf("GC failure: %s", err),
						"component", "database",
					)
				}
				break
			}
		case <-stop:
			return
		}
	}
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.config.DataDir
}

// Get returns a copy of the value stored under key or ErrKeyNotFound
func (d *Database) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	var ret []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		ret, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		d.countError("get")
		return nil, err
	}
	d.countOp("get")
	return ret, nil
}

// Set stores val under key
func (d *Database) Set(key, val []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
	if err != nil {
		d.countError("set")
		return err
	}
	d.countOp("set")
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (d *Database) Delete(key []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		d.countError("delete")
		return err
	}
	d.countOp("delete")
	return nil
}

// Keys returns all keys with the given prefix in ascending order
func (d *Database) Keys(prefix []byte) ([][]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	var ret [][]byte
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix: prefix,
		})
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			ret = append(ret, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (d *Database) countOp(op string) {
	if d.metrics != nil {
		d.metrics.ops.WithLabelValues(op).Inc()
	}
}

func (d *Database) countError(op string) {
	if d.metrics != nil {
		d.metrics.errors.WithLabelValues(op).Inc()
	}
}

// Close stops the GC loop and closes badger
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.gcTicker != nil {
		d.gcTicker.Stop()
		close(d.gcStopCh)
		d.gcWg.Wait()
		d.gcTicker = nil
	}
	return d.db.Close()
}
