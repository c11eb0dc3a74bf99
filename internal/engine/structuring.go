package engine

import "time"

// Structuring parameters. Amounts are compared in the run's single currency;
// multi-currency inputs must be rejected or normalized upstream.
const (
	structuringWindow    = 24 * time.Hour
	structuringThreshold = 1000.0
	structuringMinCount  = 3
)

// detectStructuring looks for accounts splitting outflows into several
// sub-threshold transactions inside a 24h window. One signal per account per
// run, evidence fixed to the first qualifying window by earliest start time,
// so a single underlying pattern detected at multiple window starts is not
// double-counted.
func detectStructuring(g *Graph) []Signal {
	var signals []Signal
	for _, id := range g.AccountIDs() {
		var small []Transaction
		for _, t := range g.Outgoing(id) {
			if t.Amount < structuringThreshold {
				small = append(small, t)
			}
		}
		if len(small) < structuringMinCount {
			continue
		}

		// small is sorted by (timestamp, id); each window is a
		// contiguous slice anchored at one sub-threshold transaction.
		for i := range small {
			end := small[i].Timestamp.Add(structuringWindow)
			j := i
			for j < len(small) && small[j].Timestamp.Before(end) {
				j++
			}
			if j-i >= structuringMinCount {
				ids := make([]string, 0, j-i)
				for _, t := range small[i:j] {
					ids = append(ids, t.ID)
				}
				signals = append(signals, newSignal(id, KindStructuring, WeightStructuring, ids))
				break
			}
		}
	}
	return signals
}
