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

package dao

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aejontargaryen/bisq-core/blindvote"
	"github.com/aejontargaryen/bisq-core/merit"
	"github.com/aejontargaryen/bisq-core/p2p"
	"github.com/aejontargaryen/bisq-core/period"
	"github.com/aejontargaryen/bisq-core/state"
	"github.com/aejontargaryen/bisq-core/txbroadcast"
	"github.com/aejontargaryen/bisq-core/votereveal"
	"github.com/aejontargaryen/bisq-core/wallet"
)

const (
	DefaultGenesisHeight    = 571747
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultBroadcastTimeout = 30 * time.Second
)

// DefaultDurations is the mainnet phase layout of a voting cycle
var DefaultDurations = period.Durations{
	Proposal:   3600,
	BlindVote:  600,
	VoteReveal: 300,
	Result:     10,
}

// TracingExporter values accepted by WithTracingExporter
const (
	TracingExporterOtlp   = "otlp"
	TracingExporterStdout = "stdout"
)

type Config struct {
	promRegistry      prometheus.Registerer
	logger            *slog.Logger
	wallet            wallet.Builder
	txNetwork         txbroadcast.Network
	p2pNetwork        p2p.Network
	keyRing           merit.KeyRing
	meritOracle       state.MeritOracle
	ballots           blindvote.BallotSource
	proposals         blindvote.ProposalOwner
	blindVotes        votereveal.BlindVoteSource
	dataDir           string
	tracingExporter   string
	durations         period.Durations
	genesisHeight     int
	republishMinPeers int
	tracing           bool
	devMode           bool
	shutdownTimeout   time.Duration
	broadcastTimeout  time.Duration
}

// ConfigOptionFunc is a type that represents functions that modify the Config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new Config with the given options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:           slog.New(slog.NewJSONHandler(io.Discard, nil)),
		genesisHeight:    DefaultGenesisHeight,
		durations:        DefaultDurations,
		shutdownTimeout:  DefaultShutdownTimeout,
		broadcastTimeout: DefaultBroadcastTimeout,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *Config) validate() error {
	if c.logger == nil {
		return errors.New("logger must not be nil")
	}
	if c.durations.CycleLength() <= 0 {
		return fmt.Errorf("%w: empty cycle", period.ErrInvalidSchedule)
	}
	switch c.tracingExporter {
	case "", TracingExporterOtlp, TracingExporterStdout:
	default:
		return fmt.Errorf("unknown tracing exporter: %s", c.tracingExporter)
	}
	return nil
}

// WithLogger specifies the logger to use. The default throws logs away
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithSchedule specifies the first block of the first voting cycle and the length of each phase
func WithSchedule(genesisHeight int, durations period.Durations) ConfigOptionFunc {
	return func(c *Config) {
		c.genesisHeight = genesisHeight
		c.durations = durations
	}
}

// WithRepublishMinPeers specifies how many peers must be connected before own blind votes are republished
func WithRepublishMinPeers(peers int) ConfigOptionFunc {
	return func(c *Config) {
		c.republishMinPeers = peers
	}
}

// WithDevMode skips the phase check when publishing blind votes
func WithDevMode(devMode bool) ConfigOptionFunc {
	return func(c *Config) {
		c.devMode = devMode
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingExporter selects the span exporter, either "otlp" or "stdout". This also requires tracing to be enabled separately
func WithTracingExporter(exporter string) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingExporter = exporter
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithBroadcastTimeout specifies how long a transaction broadcast may take before it is reported as timed out
func WithBroadcastTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.broadcastTimeout = timeout
	}
}

// WithWallet specifies the wallet used to build blind vote and vote reveal transactions
func WithWallet(builder wallet.Builder) ConfigOptionFunc {
	return func(c *Config) {
		c.wallet = builder
	}
}

// WithTxNetwork specifies the network transactions are submitted to
func WithTxNetwork(network txbroadcast.Network) ConfigOptionFunc {
	return func(c *Config) {
		c.txNetwork = network
	}
}

// WithP2PNetwork specifies the payload replication network blind votes are disseminated on
func WithP2PNetwork(network p2p.Network) ConfigOptionFunc {
	return func(c *Config) {
		c.p2pNetwork = network
	}
}

// WithKeyRing specifies the wallet keys used to sign merits
func WithKeyRing(keyRing merit.KeyRing) ConfigOptionFunc {
	return func(c *Config) {
		c.keyRing = keyRing
	}
}

// WithMeritOracle specifies the chain state service that reports the decayed merit value of an issuance
func WithMeritOracle(oracle state.MeritOracle) ConfigOptionFunc {
	return func(c *Config) {
		c.meritOracle = oracle
	}
}

// WithBallots specifies where the voter's current ballots come from
func WithBallots(ballots blindvote.BallotSource) ConfigOptionFunc {
	return func(c *Config) {
		c.ballots = ballots
	}
}

// WithProposalOwner specifies the source of the voter's own compensation proposals
func WithProposalOwner(proposals blindvote.ProposalOwner) ConfigOptionFunc {
	return func(c *Config) {
		c.proposals = proposals
	}
}

// WithBlindVoteSource specifies the source of blind votes received from the network
func WithBlindVoteSource(blindVotes votereveal.BlindVoteSource) ConfigOptionFunc {
	return func(c *Config) {
		c.blindVotes = blindVotes
	}
}
