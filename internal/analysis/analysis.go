// Package analysis runs fraud-signal analyses over uploaded record sets and
// persists their results.
//
// Each run is immutable once stored: the full graph result (nodes, edges,
// signals, scores) is kept as a single document so an analysis can be
// re-examined later exactly as it was produced.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/durinhq/durin/internal/engine"
)

// Status of a stored analysis run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusDegraded  Status = "degraded"
)

var (
	ErrNotFound   = errors.New("analysis: not found")
	ErrNoAnalyses = errors.New("analysis: no analyses stored")
)

// Record is one stored analysis run.
type Record struct {
	ID               string         `json:"id"`
	Status           Status         `json:"status"`
	AccountCount     int            `json:"accountCount"`
	TransactionCount int            `json:"transactionCount"`
	Result           *engine.Result `json:"result"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// Summary is the listing view of a record, without the full graph payload.
type Summary struct {
	ID               string    `json:"id"`
	Status           Status    `json:"status"`
	AccountCount     int       `json:"accountCount"`
	TransactionCount int       `json:"transactionCount"`
	SignalCount      int       `json:"signalCount"`
	HighRiskCount    int       `json:"highRiskCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Summarize projects a record into its listing view.
func (r *Record) Summarize() Summary {
	s := Summary{
		ID:               r.ID,
		Status:           r.Status,
		AccountCount:     r.AccountCount,
		TransactionCount: r.TransactionCount,
		CreatedAt:        r.CreatedAt,
	}
	if r.Result != nil {
		s.SignalCount = r.Result.Summary.TotalSignals
		s.HighRiskCount = r.Result.Summary.HighRiskCount
	}
	return s
}

// Store persists analysis records.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Latest(ctx context.Context) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	Delete(ctx context.Context, id string) error
}
