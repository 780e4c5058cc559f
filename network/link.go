package network

import (
	"fmt"
	"sort"

	"github.com/Readm/commit_sim/core"
)

// Link models the channel between two processes.
type Link struct {
	Key     core.LinkKey
	Up      bool
	Latency float64 // simulated ms
}

// LinkInfo describes a link for visualization.
type LinkInfo struct {
	A       core.NodeID `json:"a"`
	B       core.NodeID `json:"b"`
	Label   string      `json:"label"`
	Up      bool        `json:"up"`
	Latency float64     `json:"latency"`
}

// Topology is the set of links between all nodes of one transaction setup.
type Topology struct {
	nodes int
	links map[core.LinkKey]*Link
}

// NewCompleteMesh creates a complete graph over nodes 0..nodeCount-1, all
// links up with the same latency.
func NewCompleteMesh(nodeCount int, latency float64) (*Topology, error) {
	if nodeCount < 2 {
		return nil, fmt.Errorf("complete mesh needs at least 2 nodes, got %d", nodeCount)
	}
	if latency < 0 {
		return nil, fmt.Errorf("link latency must be non-negative, got %.1f", latency)
	}
	t := &Topology{
		nodes: nodeCount,
		links: make(map[core.LinkKey]*Link, nodeCount*(nodeCount-1)/2),
	}
	for i := 0; i < nodeCount; i++ {
		for j := i + 1; j < nodeCount; j++ {
			key := core.NewLinkKey(core.NodeID(i), core.NodeID(j))
			t.links[key] = &Link{Key: key, Up: true, Latency: latency}
		}
	}
	return t, nil
}

// NodeCount returns the number of nodes the topology spans.
func (t *Topology) NodeCount() int {
	if t == nil {
		return 0
	}
	return t.nodes
}

// Link returns the link between a and b, or ErrInvalidTopology.
func (t *Topology) Link(a, b core.NodeID) (*Link, error) {
	if t == nil || a == b {
		return nil, core.ErrInvalidTopology
	}
	l, ok := t.links[core.NewLinkKey(a, b)]
	if !ok {
		return nil, core.ErrInvalidTopology
	}
	return l, nil
}

// IsUp reports whether the link identified by key exists and is up.
func (t *Topology) IsUp(key core.LinkKey) bool {
	if t == nil {
		return false
	}
	l, ok := t.links[key]
	return ok && l.Up
}

// Toggle inverts the up flag of the link between a and b and returns the new value.
func (t *Topology) Toggle(a, b core.NodeID) (bool, error) {
	l, err := t.Link(a, b)
	if err != nil {
		return false, err
	}
	l.Up = !l.Up
	return l.Up, nil
}

// Links returns link snapshots ordered by key.
func (t *Topology) Links() []LinkInfo {
	if t == nil {
		return nil
	}
	out := make([]LinkInfo, 0, len(t.links))
	for _, l := range t.links {
		out = append(out, LinkInfo{
			A:       l.Key.A,
			B:       l.Key.B,
			Label:   l.Key.String(),
			Up:      l.Up,
			Latency: l.Latency,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}
