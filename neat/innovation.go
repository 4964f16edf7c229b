package neat

import (
	"fmt"
	"sort"
)

type linkKey struct {
	in, out   int
	recurrent bool
}

// NodeSplit records one node insertion on a link: the new node and the
// innovation numbers of the node and its two replacement links.
type NodeSplit struct {
	NodeID            int `yaml:"node_id"`
	NodeInnovation    int `yaml:"node_innovation"`
	InLinkInnovation  int `yaml:"in_link_innovation"`
	OutLinkInnovation int `yaml:"out_link_innovation"`
}

// InnovationLedger hands out node ids and innovation numbers so that
// identical structural mutations within one generation get identical numbers.
// It is not safe for concurrent use; the population mutates it from a single goroutine.
type InnovationLedger struct {
	nextNodeID     int
	nextInnovation int
	links          map[linkKey]int
	// splits keeps every node inserted on a given link this generation, so that
	// several independent insertions at the same point stay distinguishable.
	splits map[int][]NodeSplit
}

// NewInnovationLedger returns an empty ledger whose counters start at 1.
func NewInnovationLedger() *InnovationLedger {
	return &InnovationLedger{
		nextNodeID:     1,
		nextInnovation: 1,
		links:          make(map[linkKey]int),
		splits:         make(map[int][]NodeSplit),
	}
}

// Observe reserves every node id and innovation number already used by g.
func (l *InnovationLedger) Observe(g *Genome) {
	if id := g.LastNodeID() + 1; id > l.nextNodeID {
		l.nextNodeID = id
	}
	if innov := g.LastInnovation() + 1; innov > l.nextInnovation {
		l.nextInnovation = innov
	}
}

// NextNodeID returns the id the next new node will receive.
func (l *InnovationLedger) NextNodeID() int { return l.nextNodeID }

// NextInnovation returns the next unused innovation number.
func (l *InnovationLedger) NextInnovation() int { return l.nextInnovation }

func (l *InnovationLedger) mintInnovation() int {
	innov := l.nextInnovation
	l.nextInnovation++
	return innov
}

// LinkInnovation returns the innovation number for a link between in and out,
// minting one the first time the triple is seen in the current generation.
func (l *InnovationLedger) LinkInnovation(in, out int, recurrent bool) int {
	key := linkKey{in, out, recurrent}
	if innov, ok := l.links[key]; ok {
		return innov
	}
	innov := l.mintInnovation()
	l.links[key] = innov
	return innov
}

// SplitInnovation returns the node insertion to use when splitting link in g.
// An insertion already recorded for that link this generation is reused unless
// g already contains its node, in which case the next recorded insertion is
// tried and, failing that, a new one is minted and appended.
func (l *InnovationLedger) SplitInnovation(g *Genome, link LinkGene) NodeSplit {
	s, recorded := l.nextSplit(g, link)
	if recorded {
		return s
	}
	l.nextNodeID++
	l.nextInnovation += 3
	l.splits[link.Innovation] = append(l.splits[link.Innovation], s)
	l.links[linkKey{link.InNode, s.NodeID, link.Recurrent}] = s.InLinkInnovation
	l.links[linkKey{s.NodeID, link.OutNode, false}] = s.OutLinkInnovation
	return s
}

// nextSplit returns the insertion SplitInnovation would hand out for link in
// g without minting anything, and whether it was already recorded.
func (l *InnovationLedger) nextSplit(g *Genome, link LinkGene) (NodeSplit, bool) {
	for _, rec := range l.splits[link.Innovation] {
		if !g.HasNode(rec.NodeID) {
			return rec, true
		}
	}
	return NodeSplit{
		NodeID:            l.nextNodeID,
		NodeInnovation:    l.nextInnovation,
		InLinkInnovation:  l.nextInnovation + 1,
		OutLinkInnovation: l.nextInnovation + 2,
	}, false
}

// NextGeneration forgets this generation's structural events. Counters survive.
func (l *InnovationLedger) NextGeneration() {
	l.links = make(map[linkKey]int)
	l.splits = make(map[int][]NodeSplit)
}

// LinkInnovationRecord is the persisted form of one link table entry.
type LinkInnovationRecord struct {
	In         int  `yaml:"in"`
	Out        int  `yaml:"out"`
	Recurrent  bool `yaml:"recurrent"`
	Innovation int  `yaml:"innovation"`
}

// SplitRecord is the persisted form of the insertions made on one link.
type SplitRecord struct {
	LinkInnovation int         `yaml:"link_innovation"`
	Nodes          []NodeSplit `yaml:"nodes"`
}

// LedgerState is a snapshot of the ledger, suitable for persisting across runs.
type LedgerState struct {
	NextNodeID     int                    `yaml:"next_node_id"`
	NextInnovation int                    `yaml:"next_innovation"`
	Links          []LinkInnovationRecord `yaml:"links,omitempty"`
	Splits         []SplitRecord          `yaml:"splits,omitempty"`
}

// State returns a snapshot of the ledger with tables in a stable order.
func (l *InnovationLedger) State() LedgerState {
	st := LedgerState{NextNodeID: l.nextNodeID, NextInnovation: l.nextInnovation}
	for k, innov := range l.links {
		st.Links = append(st.Links, LinkInnovationRecord{In: k.in, Out: k.out, Recurrent: k.recurrent, Innovation: innov})
	}
	sort.Slice(st.Links, func(i, j int) bool { return st.Links[i].Innovation < st.Links[j].Innovation })
	for innov, nodes := range l.splits {
		st.Splits = append(st.Splits, SplitRecord{LinkInnovation: innov, Nodes: append([]NodeSplit(nil), nodes...)})
	}
	sort.Slice(st.Splits, func(i, j int) bool { return st.Splits[i].LinkInnovation < st.Splits[j].LinkInnovation })
	return st
}

// Restore replaces the ledger contents with a snapshot. The ledger is left
// untouched when the snapshot is inconsistent.
func (l *InnovationLedger) Restore(st LedgerState) error {
	if st.NextNodeID < 1 || st.NextInnovation < 1 {
		return fmt.Errorf("ledger counters must be positive (node %d, innovation %d)", st.NextNodeID, st.NextInnovation)
	}
	links := make(map[linkKey]int, len(st.Links))
	for _, r := range st.Links {
		if r.Innovation >= st.NextInnovation {
			return fmt.Errorf("link innovation %d not below next innovation %d", r.Innovation, st.NextInnovation)
		}
		links[linkKey{r.In, r.Out, r.Recurrent}] = r.Innovation
	}
	splits := make(map[int][]NodeSplit, len(st.Splits))
	for _, r := range st.Splits {
		for _, s := range r.Nodes {
			if s.NodeID >= st.NextNodeID {
				return fmt.Errorf("split node %d not below next node id %d", s.NodeID, st.NextNodeID)
			}
			if s.OutLinkInnovation >= st.NextInnovation {
				return fmt.Errorf("split innovation %d not below next innovation %d", s.OutLinkInnovation, st.NextInnovation)
			}
		}
		splits[r.LinkInnovation] = append([]NodeSplit(nil), r.Nodes...)
	}
	l.nextNodeID = st.NextNodeID
	l.nextInnovation = st.NextInnovation
	l.links = links
	l.splits = splits
	return nil
}
