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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "daonode.config"

const (
	DefaultShutdownTimeout  = "30s"
	DefaultBroadcastTimeout = "30s"
)

var ErrInvalidPhaseDuration = errors.New("phase duration must be positive")

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// TracingExporter selects where OpenTelemetry spans are sent
type TracingExporter string

const (
	TracingExporterNone   TracingExporter = ""
	TracingExporterOtlp   TracingExporter = "otlp"
	TracingExporterStdout TracingExporter = "stdout"
)

func (e TracingExporter) Valid() bool {
	switch e {
	case TracingExporterNone, TracingExporterOtlp, TracingExporterStdout:
		return true
	default:
		return false
	}
}

// tempConfig allows the settings to live under a top-level "config" key
type tempConfig struct {
	Config *Config `yaml:"config,omitempty"`
}

type Config struct {
	DatabasePath     string          `yaml:"databasePath"     split_words:"true"`
	BindAddr         string          `yaml:"bindAddr"         split_words:"true"`
	ShutdownTimeout  string          `yaml:"shutdownTimeout"  split_words:"true"`
	BroadcastTimeout string          `yaml:"broadcastTimeout" split_words:"true"`
	Network          string          `yaml:"network"`
	TracingExporter  TracingExporter `yaml:"tracingExporter"  split_words:"true"`
	MetricsPort      uint            `yaml:"metricsPort"      split_words:"true"`
	// Republish own blind votes once more than this many peers are connected
	RepublishMinPeers int `yaml:"republishMinPeers" split_words:"true"`
	// Voting cycle schedule
	GenesisHeight    int  `yaml:"genesisHeight"    split_words:"true"`
	ProposalBlocks   int  `yaml:"proposalBlocks"   split_words:"true"`
	BlindVoteBlocks  int  `yaml:"blindVoteBlocks"  split_words:"true"`
	VoteRevealBlocks int  `yaml:"voteRevealBlocks" split_words:"true"`
	ResultBlocks     int  `yaml:"resultBlocks"     split_words:"true"`
	DevMode          bool `yaml:"devMode"          split_words:"true"`
}

func defaultConfig() *Config {
	return &Config{
		DatabasePath:      ".daonode",
		BindAddr:          "0.0.0.0",
		ShutdownTimeout:   DefaultShutdownTimeout,
		BroadcastTimeout:  DefaultBroadcastTimeout,
		Network:           "mainnet",
		MetricsPort:       12799,
		RepublishMinPeers: 4,
		GenesisHeight:     571747,
		ProposalBlocks:    3600,
		BlindVoteBlocks:   600,
		VoteRevealBlocks:  300,
		ResultBlocks:      10,
	}
}

var globalConfig = defaultConfig()

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.daonode/daonode.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".daonode", "daonode.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/daonode/daonode.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/daonode/daonode.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		var tempCfg tempConfig
		if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		if tempCfg.Config != nil {
			// Overlay config values onto existing defaults
			configBytes, err := yaml.Marshal(tempCfg.Config)
			if err != nil {
				return nil, fmt.Errorf("error re-marshalling config: %w", err)
			}
			if err := yaml.Unmarshal(configBytes, globalConfig); err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(buf, globalConfig); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}
	// Process environment variables
	if err := envconfig.Process("daonode", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	if !c.TracingExporter.Valid() {
		return fmt.Errorf(
			"invalid tracingExporter: %q (must be 'otlp' or 'stdout')",
			c.TracingExporter,
		)
	}
	for name, blocks := range map[string]int{
		"proposalBlocks":   c.ProposalBlocks,
		"blindVoteBlocks":  c.BlindVoteBlocks,
		"voteRevealBlocks": c.VoteRevealBlocks,
		"resultBlocks":     c.ResultBlocks,
	} {
		if blocks <= 0 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidPhaseDuration, name, blocks)
		}
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.BroadcastTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout %q: %w", c.ShutdownTimeout, err)
	}
	return d, nil
}

func (c *Config) BroadcastTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.BroadcastTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid broadcastTimeout %q: %w", c.BroadcastTimeout, err)
	}
	return d, nil
}

func GetConfig() *Config {
	return globalConfig
}
