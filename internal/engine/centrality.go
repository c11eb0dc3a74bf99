package engine

// centralityDegree is the connectivity bar for the centrality bonus: an
// account touching more than this many distinct counterparties (via
// transactions in either direction or shared attributes) earns the bonus.
const centralityDegree = 5

// detectCentrality emits a centrality_bonus signal for unusually connected
// accounts. Evidence is a capped, sorted subset of the neighbor set.
func detectCentrality(g *Graph) []Signal {
	var signals []Signal
	for _, id := range g.AccountIDs() {
		neighbors := g.Neighbors(id)
		if len(neighbors) > centralityDegree {
			signals = append(signals, newSignal(id, KindCentralityBonus, WeightCentralityBonus, neighbors))
		}
	}
	return signals
}
