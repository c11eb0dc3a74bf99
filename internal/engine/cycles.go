package engine

// Cycle enumeration bounds. Cycles shorter than 3 are ordinary back-and-forth
// payments; cycles longer than 6 are too diffuse to indicate layering. The
// enumeration cap keeps the one combinatorial detector from hanging a run on
// pathologically dense graphs: when it trips, the run completes with the
// circular_flow output flagged partial instead of blocking.
const (
	minCycleLen = 3
	maxCycleLen = 6
	maxCycles   = 10000
)

// detectCircularFlow enumerates simple directed cycles over the
// transaction-only subgraph and emits one circular_flow signal per
// participating account. Evidence is the shortest qualifying cycle the
// account belongs to, ties broken by lexicographically smallest sequence.
// truncated reports whether the enumeration cap was reached.
func detectCircularFlow(g *Graph) (signals []Signal, truncated bool) {
	// Directed adjacency over distinct ordered pairs, self-loops excluded.
	adj := make(map[string][]string)
	for _, e := range g.TxEdges() {
		if e.From != e.To {
			adj[e.From] = append(adj[e.From], e.To)
		}
	}

	best := make(map[string][]string) // account -> shortest cycle it joins
	enumerated := 0

	record := func(cycle []string) {
		c := make([]string, len(cycle))
		copy(c, cycle)
		for _, member := range c {
			cur, ok := best[member]
			if !ok || len(c) < len(cur) || (len(c) == len(cur) && lessSeq(c, cur)) {
				best[member] = c
			}
		}
	}

	// DFS from every node in ascending order, only descending into nodes
	// greater than the start. Each simple cycle is then found exactly once,
	// rooted at its smallest member, which doubles as the canonical form.
	var path []string
	onPath := make(map[string]bool)

	var walk func(start, node string) bool
	walk = func(start, node string) bool {
		for _, next := range adj[node] {
			if next == start {
				if len(path) >= minCycleLen {
					if enumerated >= maxCycles {
						return false
					}
					enumerated++
					record(path)
				}
				continue
			}
			if next < start || onPath[next] || len(path) == maxCycleLen {
				continue
			}
			path = append(path, next)
			onPath[next] = true
			ok := walk(start, next)
			onPath[next] = false
			path = path[:len(path)-1]
			if !ok {
				return false
			}
		}
		return true
	}

	for _, start := range g.AccountIDs() {
		path = append(path[:0], start)
		onPath[start] = true
		ok := walk(start, start)
		onPath[start] = false
		if !ok {
			truncated = true
			break
		}
	}

	for _, id := range g.AccountIDs() {
		if cycle, ok := best[id]; ok {
			signals = append(signals, newSignal(id, KindCircularFlow, WeightCircularFlow, cycle))
		}
	}
	return signals, truncated
}

func lessSeq(a, b []string) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
