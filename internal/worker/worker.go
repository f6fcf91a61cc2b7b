// Package worker serves analysis requests arriving on the bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/walletscope/internal/bus"
	"github.com/nexus-trading/walletscope/internal/coordinator"
)

// Analyzer runs one wallet analysis.
type Analyzer interface {
	AnalyzeWallet(ctx context.Context, wallet string) (*coordinator.Report, error)
}

// Worker consumes bus.AnalysisRequest messages and runs each through the
// analyzer. Results leave through the coordinator's sinks.
type Worker struct {
	consumer bus.Consumer
	analyzer Analyzer
}

// New creates a worker reading from consumer.
func New(consumer bus.Consumer, analyzer Analyzer) *Worker {
	return &Worker{consumer: consumer, analyzer: analyzer}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Str("topic", bus.TopicAnalysisRequests).Msg("worker: started")
	err := w.consumer.Consume(ctx, w.Handle)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info().Msg("worker: stopped")
	return err
}

// Handle processes one message. Invalid wallets and malformed payloads
// are reported and skipped.
func (w *Worker) Handle(ctx context.Context, msg bus.Message) error {
	var req bus.AnalysisRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("worker: decode request: %w", err)
	}
	if req.Wallet == "" {
		req.Wallet = msg.Key
	}

	report, err := w.analyzer.AnalyzeWallet(ctx, req.Wallet)
	if err != nil {
		return fmt.Errorf("worker: request %s: %w", req.RequestID, err)
	}

	log.Info().
		Str("request_id", req.RequestID).
		Str("wallet", report.Wallet).
		Int("trust_score", report.TrustScore).
		Str("risk_rating", string(report.RiskRating)).
		Msg("worker: request served")
	return nil
}
