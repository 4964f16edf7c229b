package neat

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// Genome is the genetic encoding of a network. Nodes and links live in flat
// slices and reference each other by node id only, so copying a genome is a
// plain slice copy.
//
// Nodes are kept ordered bias -> sensor -> output -> hidden (ids ascending
// within each role); the activation engine relies on that order. Links are
// kept sorted by innovation number.
type Genome struct {
	ID     int
	Nodes  []NodeGene
	Links  []LinkGene
	Traits []Trait
}

// NewSeedGenome builds the minimal starting genome described by the config:
// one bias node, the sensors, the outputs and any configured hidden nodes,
// connected according to InitialConnection. Node ids start at 1 (the bias) and
// all seed genomes share the same ids and innovation numbers; only weights and
// trait values differ between calls.
func NewSeedGenome(id int, config *GenomeConfig, rng *rand.Rand) *Genome {
	g := &Genome{ID: id}

	for i := 1; i <= config.NumTraits; i++ {
		g.Traits = append(g.Traits, NewTrait(i, rng))
	}

	nextID, nextInnov := 1, 1
	newNode := func(t NodeType) int {
		n := NodeGene{ID: nextID, Type: t, TraitID: g.randomTraitID(rng), Innovation: nextInnov, Origin: NoOrigin}
		g.Nodes = append(g.Nodes, n)
		nextID++
		nextInnov++
		return n.ID
	}

	bias := newNode(Bias)
	sensors := make([]int, config.NumInputs)
	for i := range sensors {
		sensors[i] = newNode(Sensor)
	}
	outputs := make([]int, config.NumOutputs)
	for i := range outputs {
		outputs[i] = newNode(Output)
	}
	hidden := make([]int, config.NumHidden)
	for i := range hidden {
		hidden[i] = newNode(Hidden)
	}

	connect := func(in, out int) {
		g.Links = append(g.Links, LinkGene{
			InNode:     in,
			OutNode:    out,
			Weight:     initFloatAttribute(rng, 0, config.WeightInitStdev, config.WeightMinValue, config.WeightMaxValue),
			Enabled:    true,
			Innovation: nextInnov,
			TraitID:    g.randomTraitID(rng),
			Origin:     NoOrigin,
		})
		nextInnov++
	}

	inputs := append([]int{bias}, sensors...)
	switch strings.ToLower(config.InitialConnection) {
	case "full":
		if len(hidden) == 0 {
			for _, in := range inputs {
				for _, out := range outputs {
					connect(in, out)
				}
			}
			break
		}
		for _, in := range inputs {
			for _, h := range hidden {
				connect(in, h)
			}
		}
		for _, h := range hidden {
			for _, out := range outputs {
				connect(h, out)
			}
		}
	case "single":
		if len(sensors) > 0 && len(outputs) > 0 {
			connect(sensors[0], outputs[0])
		}
	case "none":
		// No connections are made.
	}
	return g
}

// randomTraitID picks one of the genome's traits, or 0 when it has none.
func (g *Genome) randomTraitID(rng *rand.Rand) int {
	if len(g.Traits) == 0 {
		return 0
	}
	return g.Traits[rng.Intn(len(g.Traits))].ID
}

// Duplicate returns a deep copy of the genome carrying newID.
// Node ids and innovation numbers are preserved.
func (g *Genome) Duplicate(newID int) *Genome {
	return &Genome{
		ID:     newID,
		Nodes:  append([]NodeGene(nil), g.Nodes...),
		Links:  append([]LinkGene(nil), g.Links...),
		Traits: append([]Trait(nil), g.Traits...),
	}
}

// nodeLess orders nodes by role first and id second.
func nodeLess(a, b NodeGene) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return a.ID < b.ID
}

// AddNode inserts a node keeping the role/id order.
func (g *Genome) AddNode(n NodeGene) {
	i := sort.Search(len(g.Nodes), func(i int) bool { return nodeLess(n, g.Nodes[i]) })
	g.Nodes = append(g.Nodes, NodeGene{})
	copy(g.Nodes[i+1:], g.Nodes[i:])
	g.Nodes[i] = n
}

// AddLink inserts a link keeping innovation order.
func (g *Genome) AddLink(l LinkGene) {
	i := sort.Search(len(g.Links), func(i int) bool { return g.Links[i].Innovation > l.Innovation })
	g.Links = append(g.Links, LinkGene{})
	copy(g.Links[i+1:], g.Links[i:])
	g.Links[i] = l
}

// removeLinkAt deletes the link at index i.
func (g *Genome) removeLinkAt(i int) {
	g.Links = append(g.Links[:i], g.Links[i+1:]...)
}

// NodeIndex returns the position of the node with the given id, or -1.
func (g *Genome) NodeIndex(id int) int {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// HasNode reports whether a node with the given id exists.
func (g *Genome) HasNode(id int) bool { return g.NodeIndex(id) >= 0 }

// FindLink returns the index of the link with the given triple, or -1.
func (g *Genome) FindLink(in, out int, recurrent bool) int {
	for i := range g.Links {
		l := &g.Links[i]
		if l.InNode == in && l.OutNode == out && l.Recurrent == recurrent {
			return i
		}
	}
	return -1
}

// TraitIndex returns the position of the trait with the given id, or -1.
func (g *Genome) TraitIndex(id int) int {
	for i := range g.Traits {
		if g.Traits[i].ID == id {
			return i
		}
	}
	return -1
}

// CountNodes returns the number of nodes of the given role.
func (g *Genome) CountNodes(t NodeType) int {
	n := 0
	for i := range g.Nodes {
		if g.Nodes[i].Type == t {
			n++
		}
	}
	return n
}

// LastNodeID returns the highest node id in the genome.
func (g *Genome) LastNodeID() int {
	last := 0
	for i := range g.Nodes {
		if g.Nodes[i].ID > last {
			last = g.Nodes[i].ID
		}
	}
	return last
}

// LastInnovation returns the highest innovation number used by any node or link.
func (g *Genome) LastInnovation() int {
	last := 0
	for i := range g.Nodes {
		if g.Nodes[i].Innovation > last {
			last = g.Nodes[i].Innovation
		}
	}
	for i := range g.Links {
		if g.Links[i].Innovation > last {
			last = g.Links[i].Innovation
		}
	}
	return last
}

// enabledIncoming counts enabled links ending at the node.
func (g *Genome) enabledIncoming(id int) int {
	n := 0
	for i := range g.Links {
		if g.Links[i].Enabled && g.Links[i].OutNode == id {
			n++
		}
	}
	return n
}

// IsValid checks the structural invariants and returns the first violation.
func (g *Genome) IsValid() error {
	ids := make(map[int]NodeType, len(g.Nodes))
	nodeInnovs := make(map[int]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("genome %d: duplicate node id %d", g.ID, n.ID)
		}
		ids[n.ID] = n.Type
		if i > 0 && !nodeLess(g.Nodes[i-1], n) {
			return fmt.Errorf("genome %d: node %d out of order", g.ID, n.ID)
		}
		if n.Innovation != 0 {
			if nodeInnovs[n.Innovation] {
				return fmt.Errorf("genome %d: duplicate node innovation %d", g.ID, n.Innovation)
			}
			nodeInnovs[n.Innovation] = true
		}
		if n.TraitID != 0 && g.TraitIndex(n.TraitID) < 0 {
			return fmt.Errorf("genome %d: node %d references missing trait %d", g.ID, n.ID, n.TraitID)
		}
	}

	type triple struct {
		in, out   int
		recurrent bool
	}
	seen := make(map[triple]bool, len(g.Links))
	linkInnovs := make(map[int]bool, len(g.Links))
	for i, l := range g.Links {
		if _, ok := ids[l.InNode]; !ok {
			return fmt.Errorf("genome %d: link %d has missing source node %d", g.ID, l.Innovation, l.InNode)
		}
		outType, ok := ids[l.OutNode]
		if !ok {
			return fmt.Errorf("genome %d: link %d has missing destination node %d", g.ID, l.Innovation, l.OutNode)
		}
		if outType.IsInput() {
			return fmt.Errorf("genome %d: link %d ends at %s node %d", g.ID, l.Innovation, outType, l.OutNode)
		}
		if linkInnovs[l.Innovation] {
			return fmt.Errorf("genome %d: duplicate link innovation %d", g.ID, l.Innovation)
		}
		linkInnovs[l.Innovation] = true
		if i > 0 && g.Links[i-1].Innovation > l.Innovation {
			return fmt.Errorf("genome %d: link %d out of innovation order", g.ID, l.Innovation)
		}
		key := triple{l.InNode, l.OutNode, l.Recurrent}
		if seen[key] {
			return fmt.Errorf("genome %d: duplicate link %d->%d (recurrent=%t)", g.ID, l.InNode, l.OutNode, l.Recurrent)
		}
		seen[key] = true
		if l.TraitID != 0 && g.TraitIndex(l.TraitID) < 0 {
			return fmt.Errorf("genome %d: link %d references missing trait %d", g.ID, l.Innovation, l.TraitID)
		}
	}

	traitIDs := make(map[int]bool, len(g.Traits))
	for _, t := range g.Traits {
		if traitIDs[t.ID] {
			return fmt.Errorf("genome %d: duplicate trait id %d", g.ID, t.ID)
		}
		traitIDs[t.ID] = true
		for _, p := range t.Params {
			if p < 0 || p > 1 {
				return fmt.Errorf("genome %d: trait %d parameter %g outside [0,1]", g.ID, t.ID, p)
			}
		}
	}
	return nil
}

// String returns a compact summary of the genome.
func (g *Genome) String() string {
	enabled := 0
	for i := range g.Links {
		if g.Links[i].Enabled {
			enabled++
		}
	}
	return fmt.Sprintf("Genome(ID: %d, Nodes: %d, Hidden: %d, Links: %d/%d enabled)",
		g.ID, len(g.Nodes), g.CountNodes(Hidden), enabled, len(g.Links))
}
