package engine

// detectSharedDevices emits one shared_device signal per member of every
// device group with at least two accounts. The signal is per member, not per
// pair: each account's score reflects its own exposure regardless of group
// size, while the evidence keeps the full cluster for explainability.
func detectSharedDevices(g *Graph) []Signal {
	var signals []Signal
	for _, device := range g.DeviceGroups() {
		members := g.DeviceMembers(device)
		for _, member := range members {
			signals = append(signals, newSignal(member, KindSharedDevice, WeightSharedDevice, others(members, member)))
		}
	}
	return signals
}

// detectSharedIPs mirrors detectSharedDevices for IP address groups, at a
// lower weight: shared IPs are weaker identity evidence than shared devices.
func detectSharedIPs(g *Graph) []Signal {
	var signals []Signal
	for _, ip := range g.IPGroups() {
		members := g.IPMembers(ip)
		for _, member := range members {
			signals = append(signals, newSignal(member, KindSharedIP, WeightSharedIP, others(members, member)))
		}
	}
	return signals
}

// others returns members excluding self. Members are already sorted.
func others(members []string, self string) []string {
	out := make([]string, 0, len(members)-1)
	for _, m := range members {
		if m != self {
			out = append(out, m)
		}
	}
	return out
}
