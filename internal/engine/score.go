package engine

import "math"

// Bucket is the coarse severity classification of a risk score.
type Bucket string

const (
	BucketLow    Bucket = "low"
	BucketMedium Bucket = "medium"
	BucketHigh   Bucket = "high"
)

// Score bounds and bucket thresholds.
const (
	MaxScore        = 10.0
	mediumThreshold = 4.0
	highThreshold   = 7.0
)

// RiskScore is the aggregated risk of one account for one run.
type RiskScore struct {
	AccountID string  `json:"accountId"`
	Raw       float64 `json:"raw"`
	Score     float64 `json:"score"`
	Bucket    Bucket  `json:"bucket"`
}

func bucketFor(score float64) Bucket {
	switch {
	case score >= highThreshold:
		return BucketHigh
	case score >= mediumThreshold:
		return BucketMedium
	default:
		return BucketLow
	}
}

// aggregate merges all detector output into one RiskScore per account.
// Duplicate signals of the same kind for the same account are dropped (first
// one wins; detectors emit at most one per kind so this is a guard, not a
// policy). The raw sum is clamped to [0, MaxScore].
func aggregate(g *Graph, signals []Signal) (map[string][]Signal, map[string]RiskScore) {
	byAccount := make(map[string][]Signal)
	seen := make(map[string]map[Kind]bool)
	for _, s := range signals {
		kinds := seen[s.AccountID]
		if kinds == nil {
			kinds = make(map[Kind]bool)
			seen[s.AccountID] = kinds
		}
		if kinds[s.Kind] {
			continue
		}
		kinds[s.Kind] = true
		byAccount[s.AccountID] = append(byAccount[s.AccountID], s)
	}

	scores := make(map[string]RiskScore, len(g.AccountIDs()))
	for _, id := range g.AccountIDs() {
		var raw float64
		for _, s := range byAccount[id] {
			raw += s.Weight
		}
		score := math.Min(raw, MaxScore)
		scores[id] = RiskScore{
			AccountID: id,
			Raw:       round2(raw),
			Score:     round2(score),
			Bucket:    bucketFor(score),
		}
	}
	return byAccount, scores
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
