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

// Package sqlite stores a snapshot of the parsed DAO chain state. It
// implements state.ChainState and state.ParamService for the engines and
// exposes writers for the chain parser.
package sqlite

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/aejontargaryen/bisq-core/database/models"
	"github.com/aejontargaryen/bisq-core/state"
)

var ErrParamNotFound = errors.New("parameter value not found")

type Config struct {
	Logger  *slog.Logger
	DataDir string
	// Tracing enables the OpenTelemetry gorm plugin
	Tracing bool
}

// Store is a SQLite backed chain-state snapshot
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New opens the snapshot database. An in-memory database is used if no data
// directory is configured.
func New(cfg Config) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	}
	var db *gorm.DB
	var err error
	if cfg.DataDir == "" {
		// cache=shared allows multiple connections to share the same in-memory database
		db, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			gormConfig,
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(cfg.DataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(cfg.DataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dbPath := filepath.Join(cfg.DataDir, "chainstate.sqlite")
		// WAL journal mode, increase cache size to 50MB (from 2MB)
		connOpts := "_pragma=journal_mode(WAL)&_pragma=cache_size(-50000)"
		db, err = gorm.Open(
			sqlite.Open(fmt.Sprintf("file:%s?%s", dbPath, connOpts)),
			gormConfig,
		)
		if err != nil {
			return nil, err
		}
	}
	s := &Store{
		db:     db,
		logger: cfg.Logger,
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Tracing {
		if err := s.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("configure tracing: %w", err)
		}
	}
	for _, model := range models.MigrateModels {
		s.logger.Debug(
			fmt.Sprintf("creating table: %T", model),
			"component", "database",
		)
		if err := s.db.AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DB returns the underlying gorm handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}

// Tx implements state.ChainState
func (s *Store) Tx(txID string) (*state.Tx, error) {
	var tmpTx models.Tx
	result := s.db.
		Preload("Inputs", func(db *gorm.DB) *gorm.DB {
			return db.Order("position")
		}).
		Preload("Outputs", func(db *gorm.DB) *gorm.DB {
			return db.Order("`index`")
		}).
		Where("tx_id = ?", txID).
		First(&tmpTx)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, state.ErrTxNotFound
		}
		return nil, result.Error
	}
	return tmpTx.ToState(), nil
}

// AddTx records a parsed transaction with its inputs and outputs
func (s *Store) AddTx(tx *state.Tx) error {
	tmpTx := models.TxFromState(tx)
	if result := s.db.Create(tmpTx); result.Error != nil {
		return fmt.Errorf("add tx %s: %w", tx.ID, result.Error)
	}
	return nil
}

// TxsByType returns the transactions of the given type ordered by height
// and tx id
func (s *Store) TxsByType(txType state.TxType) ([]*state.Tx, error) {
	var tmpTxs []models.Tx
	result := s.db.
		Preload("Inputs", func(db *gorm.DB) *gorm.DB {
			return db.Order("position")
		}).
		Preload("Outputs", func(db *gorm.DB) *gorm.DB {
			return db.Order("`index`")
		}).
		Where("type = ?", uint8(txType)).
		Order("block_height, tx_id").
		Find(&tmpTxs)
	if result.Error != nil {
		return nil, result.Error
	}
	ret := make([]*state.Tx, 0, len(tmpTxs))
	for i := range tmpTxs {
		ret = append(ret, tmpTxs[i].ToState())
	}
	return ret, nil
}

// SetOutputType reclassifies a recorded output
func (s *Store) SetOutputType(txID string, index int, outputType state.TxOutputType) error {
	result := s.db.
		Model(&models.TxOutput{}).
		Where("tx_id = ? AND `index` = ?", txID, index).
		Update("type", uint8(outputType))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: output %s:%d", state.ErrTxNotFound, txID, index)
	}
	return nil
}

// IssuanceCandidates implements state.ChainState
func (s *Store) IssuanceCandidates() ([]state.TxOutput, error) {
	var tmpOutputs []models.TxOutput
	result := s.db.
		Where("type = ?", uint8(state.TxOutputTypeIssuanceCandidate)).
		Order("block_height, tx_id, `index`").
		Find(&tmpOutputs)
	if result.Error != nil {
		return nil, result.Error
	}
	ret := make([]state.TxOutput, 0, len(tmpOutputs))
	for i := range tmpOutputs {
		ret = append(ret, tmpOutputs[i].ToState())
	}
	return ret, nil
}

// Issuances implements state.ChainState
func (s *Store) Issuances() ([]state.Issuance, error) {
	var tmpIssuances []models.Issuance
	if result := s.db.Order("id").Find(&tmpIssuances); result.Error != nil {
		return nil, result.Error
	}
	ret := make([]state.Issuance, 0, len(tmpIssuances))
	for i := range tmpIssuances {
		ret = append(ret, tmpIssuances[i].ToState())
	}
	return ret, nil
}

// Issuance implements state.ChainState
func (s *Store) Issuance(txID string) (*state.Issuance, error) {
	var tmpIssuance models.Issuance
	result := s.db.Where("tx_id = ?", txID).First(&tmpIssuance)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, state.ErrIssuanceNotFound
		}
		return nil, result.Error
	}
	ret := tmpIssuance.ToState()
	return &ret, nil
}

// AddIssuance implements state.ChainState. Recording the same tx id twice
// keeps the first record.
func (s *Store) AddIssuance(issuance state.Issuance) error {
	tmpIssuance := models.IssuanceFromState(issuance)
	result := s.db.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&tmpIssuance)
	if result.Error != nil {
		return fmt.Errorf("add issuance %s: %w", issuance.TxID, result.Error)
	}
	return nil
}

// SetParam records value for param taking effect at height
func (s *Store) SetParam(param state.Param, height int, value int64) error {
	tmpParam := models.Param{
		Name:   string(param),
		Height: height,
		Value:  value,
	}
	result := s.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}, {Name: "height"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&tmpParam)
	return result.Error
}

// ParamValue implements state.ParamService. The value in effect is the one
// set at the greatest height not above the requested height.
func (s *Store) ParamValue(param state.Param, height int) (int64, error) {
	var tmpParam models.Param
	result := s.db.
		Where("name = ? AND height <= ?", string(param), height).
		Order("height DESC").
		First(&tmpParam)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: %s at %d", ErrParamNotFound, param, height)
		}
		return 0, result.Error
	}
	return tmpParam.Value, nil
}
