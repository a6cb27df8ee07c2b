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
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func resetGlobalConfig() {
	globalConfig = defaultConfig()
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "test-daonode.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return tmpFile
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	tmpFile := writeConfigFile(t, `
databasePath: "/var/lib/daonode"
bindAddr: "127.0.0.1"
shutdownTimeout: "10s"
broadcastTimeout: "45s"
network: "regtest"
tracingExporter: "stdout"
metricsPort: 8088
republishMinPeers: 2
genesisHeight: 100
proposalBlocks: 20
blindVoteBlocks: 10
voteRevealBlocks: 10
resultBlocks: 2
devMode: true
`)

	expected := &Config{
		DatabasePath:      "/var/lib/daonode",
		BindAddr:          "127.0.0.1",
		ShutdownTimeout:   "10s",
		BroadcastTimeout:  "45s",
		Network:           "regtest",
		TracingExporter:   TracingExporterStdout,
		MetricsPort:       8088,
		RepublishMinPeers: 2,
		GenesisHeight:     100,
		ProposalBlocks:    20,
		BlindVoteBlocks:   10,
		VoteRevealBlocks:  10,
		ResultBlocks:      2,
		DevMode:           true,
	}

	actual, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(cfg, defaultConfig()) {
		t.Errorf(
			"config mismatch without file:\nExpected: %+v\nGot:      %+v",
			defaultConfig(),
			cfg,
		)
	}
}

func TestLoad_ConfigSection(t *testing.T) {
	resetGlobalConfig()
	tmpFile := writeConfigFile(t, `
config:
  network: "testnet"
  metricsPort: 9999
`)
	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Network != "testnet" || cfg.MetricsPort != 9999 {
		t.Errorf("config section not applied: %+v", cfg)
	}
	// Untouched values keep their defaults
	if cfg.ProposalBlocks != 3600 {
		t.Errorf("expected default ProposalBlocks, got: %d", cfg.ProposalBlocks)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	resetGlobalConfig()
	tmpFile := writeConfigFile(t, `
republishMinPeers: 2
devMode: false
`)
	t.Setenv("DAONODE_REPUBLISH_MIN_PEERS", "7")
	t.Setenv("DAONODE_DEV_MODE", "true")

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.RepublishMinPeers != 7 {
		t.Errorf("expected RepublishMinPeers to be 7, got: %d", cfg.RepublishMinPeers)
	}
	if !cfg.DevMode {
		t.Errorf("expected DevMode to be true, got: %v", cfg.DevMode)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	testDefs := []struct {
		name    string
		content string
	}{
		{"tracing exporter", `tracingExporter: "jaeger"`},
		{"phase duration", `blindVoteBlocks: 0`},
		{"shutdown timeout", `shutdownTimeout: "soon"`},
		{"broadcast timeout", `broadcastTimeout: "-"`},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			resetGlobalConfig()
			if _, err := LoadConfig(writeConfigFile(t, testDef.content)); err == nil {
				t.Fatalf("expected error for %s", testDef.name)
			}
		})
	}
	resetGlobalConfig()
	_, err := LoadConfig(writeConfigFile(t, `resultBlocks: -1`))
	if !errors.Is(err, ErrInvalidPhaseDuration) {
		t.Errorf("expected ErrInvalidPhaseDuration, got: %v", err)
	}
}

func TestTimeoutDurations(t *testing.T) {
	cfg := defaultConfig()
	shutdown, err := cfg.ShutdownTimeoutDuration()
	if err != nil || shutdown != 30*time.Second {
		t.Errorf("unexpected shutdown timeout: %v, %v", shutdown, err)
	}
	broadcast, err := cfg.BroadcastTimeoutDuration()
	if err != nil || broadcast != 30*time.Second {
		t.Errorf("unexpected broadcast timeout: %v, %v", broadcast, err)
	}
}

func TestContext(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Fatalf("expected no config in empty context")
	}
	cfg := defaultConfig()
	if got := FromContext(WithContext(context.Background(), cfg)); got != cfg {
		t.Errorf("expected config from context, got: %+v", got)
	}
}
