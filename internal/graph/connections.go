package graph

import "sort"

// Clone returns a deep copy of the connection map.
func (c Connections) Clone() Connections {
	if c == nil {
		return Connections{}
	}
	out := make(Connections, len(c))
	for src, ports := range c {
		outPorts := make(map[string][][]Target, len(ports))
		for port, groups := range ports {
			outGroups := make([][]Target, len(groups))
			for i, g := range groups {
				outGroups[i] = append([]Target(nil), g...)
			}
			outPorts[port] = outGroups
		}
		out[src] = outPorts
	}
	return out
}

// AddGroup appends a fan-out group to source's port.
func (c Connections) AddGroup(source, port string, targets ...Target) {
	ports, ok := c[source]
	if !ok {
		ports = map[string][][]Target{}
		c[source] = ports
	}
	ports[port] = append(ports[port], append([]Target(nil), targets...))
}

// RemoveTargets deletes every target matching drop. Groups, ports and sources
// left empty are removed. It returns the number of targets deleted.
func (c Connections) RemoveTargets(drop func(source, port string, t Target) bool) int {
	removed := 0
	for src, ports := range c {
		for port, groups := range ports {
			keptGroups := groups[:0]
			for _, g := range groups {
				kept := g[:0]
				for _, t := range g {
					if drop(src, port, t) {
						removed++
						continue
					}
					kept = append(kept, t)
				}
				if len(kept) > 0 {
					keptGroups = append(keptGroups, kept)
				}
			}
			if len(keptGroups) == 0 {
				delete(ports, port)
			} else {
				ports[port] = keptGroups
			}
		}
		if len(ports) == 0 {
			delete(c, src)
		}
	}
	return removed
}

// HasEdge reports whether source's port reaches target on targetPort.
func (c Connections) HasEdge(source, port, target, targetPort string) bool {
	for _, g := range c[source][port] {
		for _, t := range g {
			if t.Node == target && t.Port == targetPort {
				return true
			}
		}
	}
	return false
}

// Edge is a flattened connection used for reporting.
type Edge struct {
	Source string
	Port   string
	Target Target
}

// Edges flattens the map in a deterministic order.
func (c Connections) Edges() []Edge {
	sources := make([]string, 0, len(c))
	for src := range c {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	var edges []Edge
	for _, src := range sources {
		ports := make([]string, 0, len(c[src]))
		for port := range c[src] {
			ports = append(ports, port)
		}
		sort.Strings(ports)
		for _, port := range ports {
			for _, g := range c[src][port] {
				for _, t := range g {
					edges = append(edges, Edge{Source: src, Port: port, Target: t})
				}
			}
		}
	}
	return edges
}

// Dangling returns every edge whose source or target names no node.
func (w *Workflow) Dangling() []Edge {
	names := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		names[n.Name] = true
	}
	var out []Edge
	for _, e := range w.Connections.Edges() {
		if !names[e.Source] || !names[e.Target.Node] {
			out = append(out, e)
		}
	}
	return out
}

// NormalizeReferences rewrites connection sources and targets that name no
// node but match a node id into that node's name. References matching
// neither are left untouched. It returns the number of rewrites.
func (w *Workflow) NormalizeReferences() int {
	names := make(map[string]bool, len(w.Nodes))
	byID := make(map[string]string, len(w.Nodes))
	for _, n := range w.Nodes {
		names[n.Name] = true
		if n.ID != "" {
			byID[n.ID] = n.Name
		}
	}
	resolve := func(ref string) (string, bool) {
		if names[ref] {
			return ref, false
		}
		name, ok := byID[ref]
		return name, ok
	}

	rewrites := 0
	for src, ports := range w.Connections {
		name, ok := resolve(src)
		if !ok {
			continue
		}
		delete(w.Connections, src)
		for port, groups := range ports {
			for _, g := range groups {
				w.Connections.AddGroup(name, port, g...)
			}
		}
		rewrites++
	}
	for _, ports := range w.Connections {
		for _, groups := range ports {
			for _, g := range groups {
				for i := range g {
					if name, ok := resolve(g[i].Node); ok {
						g[i].Node = name
						rewrites++
					}
				}
			}
		}
	}
	return rewrites
}
