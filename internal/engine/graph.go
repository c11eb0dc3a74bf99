package engine

import (
	"fmt"
	"sort"
	"time"
)

// Account is one KYC record. Device and IP are grouping keys only; they are
// never nodes of the graph.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	DeviceID string `json:"deviceId,omitempty"`
	IP       string `json:"ip,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Transaction is one money movement between two accounts. Immutable once
// ingested.
type Transaction struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"deviceId,omitempty"`
	IP        string    `json:"ip,omitempty"`
}

// TxEdge is the accumulated transaction edge between an ordered account pair.
type TxEdge struct {
	From        string  `json:"source"`
	To          string  `json:"target"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"totalAmount"`
}

// Graph is the relationship graph for one analysis run. It is built once and
// read-only thereafter; detectors share it without locking.
type Graph struct {
	accounts map[string]Account
	order    []string // account ids, ascending

	txEdges  map[string]map[string]*TxEdge
	outgoing map[string][]Transaction // per source, self-loops excluded, sorted by (timestamp, id)

	deviceGroups map[string][]string // device id -> member account ids (sorted), groups of >=2 only
	ipGroups     map[string][]string

	neighbors map[string]map[string]bool // distinct counterparties via any edge type

	txCount int
}

// BuildGraph constructs the relationship graph from validated records.
// Accounts referenced only by transactions are synthesized with unknown
// attributes; transactions are authoritative over account existence.
func BuildGraph(accounts []Account, transactions []Transaction) (*Graph, error) {
	g := &Graph{
		accounts:     make(map[string]Account, len(accounts)),
		txEdges:      make(map[string]map[string]*TxEdge),
		outgoing:     make(map[string][]Transaction),
		deviceGroups: make(map[string][]string),
		ipGroups:     make(map[string][]string),
		neighbors:    make(map[string]map[string]bool),
		txCount:      len(transactions),
	}

	for i, a := range accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: account record %d has empty id", ErrInvalidRecord, i)
		}
		g.accounts[a.ID] = a
	}

	for i, t := range transactions {
		if t.From == "" {
			return nil, fmt.Errorf("%w: transaction %d has empty source account", ErrInvalidRecord, i)
		}
		if t.To == "" {
			return nil, fmt.Errorf("%w: transaction %d has empty destination account", ErrInvalidRecord, i)
		}
		if t.Amount < 0 {
			return nil, fmt.Errorf("%w: transaction %d has negative amount %v", ErrInvalidRecord, i, t.Amount)
		}
		if t.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: transaction %d has no timestamp", ErrInvalidRecord, i)
		}
		if t.ID == "" {
			t.ID = fmt.Sprintf("txn-%06d", i+1)
		}

		for _, id := range []string{t.From, t.To} {
			if _, ok := g.accounts[id]; !ok {
				g.accounts[id] = Account{ID: id}
			}
		}

		edges, ok := g.txEdges[t.From]
		if !ok {
			edges = make(map[string]*TxEdge)
			g.txEdges[t.From] = edges
		}
		e, ok := edges[t.To]
		if !ok {
			e = &TxEdge{From: t.From, To: t.To}
			edges[t.To] = e
		}
		e.Count++
		e.TotalAmount += t.Amount

		// Self-loops stay visible as edges but never feed the detectors:
		// a single account cannot exhibit multi-party fraud with itself.
		if t.From != t.To {
			g.outgoing[t.From] = append(g.outgoing[t.From], t)
			g.link(t.From, t.To)
		}
	}

	g.order = make([]string, 0, len(g.accounts))
	for id := range g.accounts {
		g.order = append(g.order, id)
	}
	sort.Strings(g.order)

	for id := range g.outgoing {
		out := g.outgoing[id]
		sort.SliceStable(out, func(a, b int) bool {
			if !out[a].Timestamp.Equal(out[b].Timestamp) {
				return out[a].Timestamp.Before(out[b].Timestamp)
			}
			return out[a].ID < out[b].ID
		})
	}

	// Sharing groups come from KYC records only, never from transaction
	// metadata, so payment-rail routing noise cannot masquerade as
	// identity sharing.
	byDevice := make(map[string][]string)
	byIP := make(map[string][]string)
	for _, id := range g.order {
		a := g.accounts[id]
		if a.DeviceID != "" {
			byDevice[a.DeviceID] = append(byDevice[a.DeviceID], id)
		}
		if a.IP != "" {
			byIP[a.IP] = append(byIP[a.IP], id)
		}
	}
	for device, members := range byDevice {
		if len(members) < 2 {
			continue
		}
		g.deviceGroups[device] = members
		g.linkGroup(members)
	}
	for ip, members := range byIP {
		if len(members) < 2 {
			continue
		}
		g.ipGroups[ip] = members
		g.linkGroup(members)
	}

	return g, nil
}

func (g *Graph) link(a, b string) {
	if g.neighbors[a] == nil {
		g.neighbors[a] = make(map[string]bool)
	}
	if g.neighbors[b] == nil {
		g.neighbors[b] = make(map[string]bool)
	}
	g.neighbors[a][b] = true
	g.neighbors[b][a] = true
}

func (g *Graph) linkGroup(members []string) {
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			g.link(members[i], members[j])
		}
	}
}

// AccountIDs returns every node id in ascending order.
func (g *Graph) AccountIDs() []string { return g.order }

// Account returns the account record for a node.
func (g *Graph) Account(id string) (Account, bool) {
	a, ok := g.accounts[id]
	return a, ok
}

// Outgoing returns the account's outgoing transactions, self-loops excluded,
// sorted by timestamp then transaction id.
func (g *Graph) Outgoing(id string) []Transaction { return g.outgoing[id] }

// TxEdges returns all accumulated transaction edges sorted by (source, target).
func (g *Graph) TxEdges() []TxEdge {
	var edges []TxEdge
	for _, from := range g.order {
		targets := g.txEdges[from]
		if len(targets) == 0 {
			continue
		}
		tos := make([]string, 0, len(targets))
		for to := range targets {
			tos = append(tos, to)
		}
		sort.Strings(tos)
		for _, to := range tos {
			edges = append(edges, *targets[to])
		}
	}
	return edges
}

// DeviceGroups returns device ids that at least two accounts share, ascending.
func (g *Graph) DeviceGroups() []string { return sortedKeys(g.deviceGroups) }

// IPGroups returns IP addresses that at least two accounts share, ascending.
func (g *Graph) IPGroups() []string { return sortedKeys(g.ipGroups) }

// DeviceMembers returns the accounts sharing the given device.
func (g *Graph) DeviceMembers(device string) []string { return g.deviceGroups[device] }

// IPMembers returns the accounts sharing the given IP address.
func (g *Graph) IPMembers(ip string) []string { return g.ipGroups[ip] }

// Neighbors returns the distinct accounts connected to id via any edge type,
// ascending.
func (g *Graph) Neighbors(id string) []string {
	set := g.neighbors[id]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// TransactionCount returns the number of ingested transactions, self-loops
// included.
func (g *Graph) TransactionCount() int { return g.txCount }

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
