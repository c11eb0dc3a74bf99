package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/durinhq/durin/internal/engine"
	"github.com/durinhq/durin/internal/idgen"
	"github.com/durinhq/durin/internal/logging"
	"github.com/durinhq/durin/internal/metrics"
	"github.com/durinhq/durin/internal/traces"
)

// Broadcaster pushes analysis lifecycle events to realtime subscribers.
type Broadcaster interface {
	BroadcastAnalysisStarted(analysisID string)
	BroadcastAnalysisCompleted(analysisID string, summary map[string]interface{})
	BroadcastHighRisk(analysisID, accountID string, score float64)
}

// Service runs analyses and persists their results.
type Service struct {
	store Store
	hub   Broadcaster
}

// NewService creates a new analysis service. hub may be nil when realtime
// streaming is disabled.
func NewService(store Store, hub Broadcaster) *Service {
	return &Service{store: store, hub: hub}
}

// Run executes one analysis over the given records, stores the result, and
// returns the stored record.
func (s *Service) Run(ctx context.Context, accounts []engine.Account, transactions []engine.Transaction) (*Record, error) {
	ctx, span := traces.StartSpan(ctx, "analysis.run",
		traces.AccountCount(len(accounts)),
		traces.TransactionCount(len(transactions)),
	)
	defer span.End()

	id := idgen.WithPrefix("an_")
	span.SetAttributes(traces.AnalysisID(id))
	if s.hub != nil {
		s.hub.BroadcastAnalysisStarted(id)
	}

	start := time.Now()
	result, err := engine.Analyze(ctx, accounts, transactions)
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	status := StatusCompleted
	outcome := "completed"
	if result.Degraded {
		status = StatusDegraded
		outcome = "degraded"
		metrics.CycleCapHitsTotal.Inc()
	}
	metrics.AnalysesTotal.WithLabelValues(outcome).Inc()
	metrics.HighRiskAccounts.Set(float64(result.Summary.HighRiskCount))
	for _, node := range result.Nodes {
		for _, sig := range node.Signals {
			metrics.SignalsDetectedTotal.WithLabelValues(string(sig.Kind)).Inc()
		}
	}

	rec := &Record{
		ID:               id,
		Status:           status,
		AccountCount:     result.Summary.TotalAccounts,
		TransactionCount: result.Summary.TotalTransactions,
		Result:           result,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store analysis: %w", err)
	}

	logging.L(ctx).Info("analysis completed",
		"analysis_id", rec.ID,
		"status", rec.Status,
		"accounts", rec.AccountCount,
		"transactions", rec.TransactionCount,
		"signals", result.Summary.TotalSignals,
		"high_risk", result.Summary.HighRiskCount,
	)

	if s.hub != nil {
		s.hub.BroadcastAnalysisCompleted(rec.ID, map[string]interface{}{
			"totalAccounts":     result.Summary.TotalAccounts,
			"totalTransactions": result.Summary.TotalTransactions,
			"totalSignals":      result.Summary.TotalSignals,
			"highRiskCount":     result.Summary.HighRiskCount,
		})
		for _, hr := range result.HighRisk {
			s.hub.BroadcastHighRisk(rec.ID, hr.ID, hr.Score)
		}
	}

	return rec, nil
}

// Get returns a stored analysis by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// Latest returns the most recent analysis.
func (s *Service) Latest(ctx context.Context) (*Record, error) {
	return s.store.Latest(ctx)
}

// List returns recent analyses, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.List(ctx, limit)
}

// Delete removes a stored analysis.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// AccountContext is the per-account view of one analysis: the scored node
// plus every edge that touches it.
type AccountContext struct {
	AnalysisID string        `json:"analysisId"`
	Account    engine.Node   `json:"account"`
	Edges      []engine.Edge `json:"edges"`
}

// AccountContext extracts one account's view from a stored analysis.
func (s *Service) AccountContext(ctx context.Context, analysisID, accountID string) (*AccountContext, error) {
	rec, err := s.store.Get(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	return extractAccountContext(rec, accountID)
}

func extractAccountContext(rec *Record, accountID string) (*AccountContext, error) {
	var node *engine.Node
	for i := range rec.Result.Nodes {
		if rec.Result.Nodes[i].ID == accountID {
			node = &rec.Result.Nodes[i]
			break
		}
	}
	if node == nil {
		return nil, ErrNotFound
	}

	var edges []engine.Edge
	for _, e := range rec.Result.Edges {
		if e.Source == accountID || e.Target == accountID {
			edges = append(edges, e)
		}
	}

	return &AccountContext{
		AnalysisID: rec.ID,
		Account:    *node,
		Edges:      edges,
	}, nil
}
