// Package engine implements graph-based fraud-signal detection and risk
// scoring.
//
// One call to Analyze builds a relationship graph from account and
// transaction records, runs four independent pattern detectors plus a
// centrality scorer over it, aggregates their signals into a capped
// per-account risk score, and assembles a ranked, explainable result. The
// engine is a pure function of its inputs: no state survives between runs,
// and identical inputs always produce byte-identical results.
package engine

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/durinhq/durin/internal/traces"
)

// ErrInvalidRecord marks a malformed account or transaction record. It is
// fatal for the whole run: no partial graph or partial scores are ever
// exposed.
var ErrInvalidRecord = errors.New("engine: invalid record")

// Analyze runs one complete analysis over the given records.
//
// The detectors and the centrality scorer have no data dependency on each
// other: they all read the same immutable graph and write disjoint signal
// sets, so they run as parallel goroutines with a plain join before
// aggregation. Exceeding the cycle-enumeration cap does not fail the run;
// the result comes back with Degraded set and circular_flow marked partial.
func Analyze(ctx context.Context, accounts []Account, transactions []Transaction) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "engine.analyze",
		attribute.Int("accounts", len(accounts)),
		attribute.Int("transactions", len(transactions)),
	)
	defer span.End()

	g, err := BuildGraph(accounts, transactions)
	if err != nil {
		return nil, err
	}

	_, detectSpan := traces.StartSpan(ctx, "engine.detect")
	results := make([][]Signal, 5)
	var truncated bool

	var wg sync.WaitGroup
	run := func(i int, fn func(*Graph) []Signal) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = fn(g)
		}()
	}
	run(0, detectSharedDevices)
	run(1, detectSharedIPs)
	run(2, detectStructuring)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[3], truncated = detectCircularFlow(g)
	}()
	run(4, detectCentrality)
	wg.Wait()
	detectSpan.End()

	var signals []Signal
	for _, rs := range results {
		signals = append(signals, rs...)
	}

	byAccount, scores := aggregate(g, signals)
	result := assemble(g, byAccount, scores, truncated)

	span.SetAttributes(
		attribute.Int("signals", result.Summary.TotalSignals),
		attribute.Int("high_risk", result.Summary.HighRiskCount),
		attribute.Bool("degraded", result.Degraded),
	)
	return result, nil
}
