package engine

// Kind identifies a fraud-signal detector.
type Kind string

const (
	KindSharedDevice    Kind = "shared_device"
	KindSharedIP        Kind = "shared_ip"
	KindStructuring     Kind = "structuring"
	KindCircularFlow    Kind = "circular_flow"
	KindCentralityBonus Kind = "centrality_bonus"
)

// Signal weights. Each detector emits at most one signal per kind per
// account, so the worst possible raw score is the sum of all five.
const (
	WeightSharedDevice    = 3.0
	WeightSharedIP        = 1.5
	WeightStructuring     = 3.5
	WeightCircularFlow    = 2.5
	WeightCentralityBonus = 1.0
)

// kindOrder fixes signal ordering inside a node for deterministic output.
var kindOrder = map[Kind]int{
	KindSharedDevice:    0,
	KindSharedIP:        1,
	KindStructuring:     2,
	KindCircularFlow:    3,
	KindCentralityBonus: 4,
}

// Severity is the coarse label derived from a signal's weight.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func severityFor(weight float64) Severity {
	switch {
	case weight >= 2.5:
		return SeverityHigh
	case weight >= 1.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// maxEvidence bounds evidence lists so result payloads stay small even for
// large sharing clusters. Evidence is sorted before capping, so the retained
// subset is deterministic.
const maxEvidence = 10

// Signal is one discrete piece of evidence contributing to an account's risk
// score. Signals are immutable once emitted.
type Signal struct {
	AccountID string   `json:"accountId"`
	Kind      Kind     `json:"kind"`
	Weight    float64  `json:"weight"`
	Evidence  []string `json:"evidence"`
	Severity  Severity `json:"severity"`
}

func newSignal(accountID string, kind Kind, weight float64, evidence []string) Signal {
	if len(evidence) > maxEvidence {
		evidence = evidence[:maxEvidence]
	}
	return Signal{
		AccountID: accountID,
		Kind:      kind,
		Weight:    weight,
		Evidence:  evidence,
		Severity:  severityFor(weight),
	}
}
