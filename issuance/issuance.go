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

// Package issuance credits accepted compensation proposals with newly
// issued BSQ
package issuance

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aejontargaryen/bisq-core/event"
	"github.com/aejontargaryen/bisq-core/proposal"
	"github.com/aejontargaryen/bisq-core/state"
)

const IssuanceEventType event.EventType = "issuance.issued"

var ErrUnanchoredProposal = errors.New("compensation proposal has no tx id")

// IssuanceEvent is emitted once per recorded issuance
type IssuanceEvent struct {
	Issuance    state.Issuance
	ProposalUID string
}

type ServiceConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	ChainState   state.ChainState
	Periods      state.PeriodService
}

// Service applies the issuance rule to compensation proposals that won the
// vote
type Service struct {
	config  ServiceConfig
	logger  *slog.Logger
	metrics struct {
		issuances prometheus.Counter
		amount    prometheus.Counter
	}
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		config: cfg,
		logger: cfg.Logger,
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Init metrics
	promautoFactory := promauto.With(cfg.PromRegistry)
	s.metrics.issuances = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "dao_issuances_total",
		Help: "total issuances recorded",
	})
	s.metrics.amount = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "dao_issued_amount_total",
		Help: "total BSQ amount issued",
	})
	return s
}

// IsEligible reports whether out is the payout output of p under the
// issuance rule evaluated at chainHeight
func IsEligible(
	out state.TxOutput,
	p *proposal.CompensationProposal,
	periods state.PeriodService,
	chainHeight int,
) bool {
	return out.TxID == p.TxID &&
		out.Value == p.RequestedAmount &&
		out.Address == p.UnderlyingAddress() &&
		periods.IsTxInCorrectCycle(out.BlockHeight, chainHeight) &&
		periods.IsInPhase(out.BlockHeight, state.PhaseProposal)
}

// Issue records an issuance for the issuance candidate output matching p.
// It returns nil without error when no output matches. A proposal that was
// already credited keeps its first record, which is returned.
func (s *Service) Issue(
	p *proposal.CompensationProposal,
	chainHeight int,
) (*state.Issuance, error) {
	if p == nil || p.TxID == "" {
		return nil, ErrUnanchoredProposal
	}
	existing, err := s.config.ChainState.Issuance(p.TxID)
	if err == nil {
		s.logger.Debug(
			"compensation proposal already issued",
			"component", "issuance",
			"tx_id", p.TxID,
			"uid", p.UID,
		)
		return existing, nil
	}
	if !errors.Is(err, state.ErrIssuanceNotFound) {
		return nil, fmt.Errorf("lookup issuance %s: %w", p.TxID, err)
	}
	candidates, err := s.config.ChainState.IssuanceCandidates()
	if err != nil {
		return nil, fmt.Errorf("load issuance candidates: %w", err)
	}
	for _, out := range candidates {
		if !IsEligible(out, p, s.config.Periods, chainHeight) {
			continue
		}
		issuance := state.Issuance{
			TxID:             out.TxID,
			RecipientAddress: out.Address,
			GranteePubKey:    out.GranteePubKey,
			Amount:           out.Value,
			ChainHeight:      out.BlockHeight,
		}
		if err := s.config.ChainState.AddIssuance(issuance); err != nil {
			return nil, err
		}
		s.metrics.issuances.Inc()
		s.metrics.amount.Add(float64(issuance.Amount))
		s.logger.Info(
			fmt.Sprintf(
				"issued new BSQ to tx %s for compensation proposal %s",
				issuance.TxID,
				p.UID,
			),
			"component", "issuance",
			"amount", issuance.Amount,
			"address", issuance.RecipientAddress,
			"chain_height", chainHeight,
		)
		if s.config.EventBus != nil {
			s.config.EventBus.Publish(
				IssuanceEventType,
				event.NewEvent(
					IssuanceEventType,
					IssuanceEvent{Issuance: issuance, ProposalUID: p.UID},
				),
			)
		}
		return &issuance, nil
	}
	s.logger.Debug(
		"no issuance candidate matches compensation proposal",
		"component", "issuance",
		"tx_id", p.TxID,
		"uid", p.UID,
	)
	return nil, nil
}
