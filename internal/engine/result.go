package engine

import "sort"

// EdgeKind distinguishes visualization edge types.
type EdgeKind string

const (
	EdgeTransaction  EdgeKind = "transaction"
	EdgeSharedDevice EdgeKind = "shared_device"
	EdgeSharedIP     EdgeKind = "shared_ip"
)

// Node is one account with its aggregated risk for visualization and
// explanation.
type Node struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Country string   `json:"country,omitempty"`
	Score   float64  `json:"score"`
	Raw     float64  `json:"raw"`
	Bucket  Bucket   `json:"bucket"`
	Signals []Signal `json:"signals"`
}

// Edge is one visualization edge. Transaction edges carry count and total
// amount; shared-attribute edges carry the shared key.
type Edge struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Kind        EdgeKind `json:"kind"`
	Count       int      `json:"count,omitempty"`
	TotalAmount float64  `json:"totalAmount,omitempty"`
	SharedKey   string   `json:"sharedKey,omitempty"`
}

// Summary holds derived run counts.
type Summary struct {
	TotalAccounts     int `json:"totalAccounts"`
	TotalTransactions int `json:"totalTransactions"`
	TotalSignals      int `json:"totalSignals"`
	HighRiskCount     int `json:"highRiskCount"`
}

// Result is the complete output of one analysis run. It is immutable and
// owned by the caller; the engine holds no state between runs.
type Result struct {
	Nodes            []Node   `json:"nodes"`
	Edges            []Edge   `json:"edges"`
	HighRisk         []Node   `json:"highRiskAccounts"`
	Summary          Summary  `json:"summary"`
	Degraded         bool     `json:"degraded"`
	PartialDetectors []string `json:"partialDetectors,omitempty"`
}

// assemble merges per-account scores and signals with the graph's edges into
// the final result. All orderings are deterministic: nodes by account id,
// transaction edges by (source, target), shared edges by (kind, key, pair),
// high-risk accounts by score descending then id ascending.
func assemble(g *Graph, byAccount map[string][]Signal, scores map[string]RiskScore, truncated bool) *Result {
	r := &Result{Degraded: truncated}
	if truncated {
		r.PartialDetectors = []string{string(KindCircularFlow)}
	}

	totalSignals := 0
	for _, id := range g.AccountIDs() {
		signals := byAccount[id]
		sort.Slice(signals, func(a, b int) bool {
			return kindOrder[signals[a].Kind] < kindOrder[signals[b].Kind]
		})
		if signals == nil {
			signals = []Signal{}
		}
		totalSignals += len(signals)

		acct, _ := g.Account(id)
		score := scores[id]
		r.Nodes = append(r.Nodes, Node{
			ID:      id,
			Name:    acct.Name,
			Country: acct.Country,
			Score:   score.Score,
			Raw:     score.Raw,
			Bucket:  score.Bucket,
			Signals: signals,
		})
	}

	for _, e := range g.TxEdges() {
		r.Edges = append(r.Edges, Edge{
			Source:      e.From,
			Target:      e.To,
			Kind:        EdgeTransaction,
			Count:       e.Count,
			TotalAmount: round2(e.TotalAmount),
		})
	}
	for _, device := range g.DeviceGroups() {
		r.Edges = append(r.Edges, pairEdges(EdgeSharedDevice, device, g.DeviceMembers(device))...)
	}
	for _, ip := range g.IPGroups() {
		r.Edges = append(r.Edges, pairEdges(EdgeSharedIP, ip, g.IPMembers(ip))...)
	}

	for _, n := range r.Nodes {
		if n.Bucket == BucketHigh {
			r.HighRisk = append(r.HighRisk, n)
		}
	}
	sort.SliceStable(r.HighRisk, func(a, b int) bool {
		if r.HighRisk[a].Score != r.HighRisk[b].Score {
			return r.HighRisk[a].Score > r.HighRisk[b].Score
		}
		return r.HighRisk[a].ID < r.HighRisk[b].ID
	})

	r.Summary = Summary{
		TotalAccounts:     len(r.Nodes),
		TotalTransactions: g.TransactionCount(),
		TotalSignals:      totalSignals,
		HighRiskCount:     len(r.HighRisk),
	}
	return r
}

// pairEdges expands an n-member sharing group into its C(n,2) pairwise edges.
func pairEdges(kind EdgeKind, key string, members []string) []Edge {
	var edges []Edge
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			edges = append(edges, Edge{
				Source:    members[i],
				Target:    members[j],
				Kind:      kind,
				SharedKey: key,
			})
		}
	}
	return edges
}
