package neat

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Mutator applies parametric and structural mutations to genomes, minting
// innovation numbers through a shared ledger.
//
// Structural mutations return false when no legal site was found; the genome is
// then left exactly as it was. That is an expected outcome, not an error.
type Mutator struct {
	config *GenomeConfig
	ledger *InnovationLedger
	rng    *rand.Rand
}

// NewMutator creates a mutator drawing randomness from rng.
func NewMutator(config *GenomeConfig, ledger *InnovationLedger, rng *rand.Rand) *Mutator {
	return &Mutator{config: config, ledger: ledger, rng: rng}
}

func checkProbabilityAndSigma(probability, sigma float64) error {
	if err := checkRange("probability", probability, 0, 1); err != nil {
		return err
	}
	return checkRange("sigma", sigma, 0, math.MaxFloat64)
}

// MutateWeights perturbs each enabled link weight with the given probability,
// or replaces it with a fresh draw with probability WeightReplaceProb.
// Weights stay within [WeightMinValue, WeightMaxValue].
func (m *Mutator) MutateWeights(g *Genome, probability, sigma float64) error {
	if err := checkProbabilityAndSigma(probability, sigma); err != nil {
		return err
	}
	c := m.config
	if err := checkRange("weight_replace_prob", c.WeightReplaceProb, 0, 1); err != nil {
		return err
	}
	for i := range g.Links {
		l := &g.Links[i]
		if !l.Enabled {
			continue
		}
		l.Weight = mutateFloatAttribute(m.rng, l.Weight, probability, c.WeightReplaceProb, sigma,
			c.WeightInitStdev, c.WeightMinValue, c.WeightMaxValue)
	}
	return nil
}

// MutateNeuronParams perturbs every trait parameter with the given probability.
// Parameters are clamped to [0,1].
func (m *Mutator) MutateNeuronParams(g *Genome, probability, sigma float64) error {
	if err := checkProbabilityAndSigma(probability, sigma); err != nil {
		return err
	}
	for i := range g.Traits {
		g.Traits[i].Mutate(m.rng, probability, sigma)
	}
	return nil
}

// MutateTrait perturbs every parameter of one randomly chosen trait.
func (m *Mutator) MutateTrait(g *Genome, sigma float64) error {
	if err := checkRange("sigma", sigma, 0, math.MaxFloat64); err != nil {
		return err
	}
	if len(g.Traits) == 0 {
		return nil
	}
	g.Traits[m.rng.Intn(len(g.Traits))].Mutate(m.rng, 1, sigma)
	return nil
}

// MutateLinkTrait points randomly chosen links at randomly chosen traits.
func (m *Mutator) MutateLinkTrait(g *Genome, times int) {
	if len(g.Traits) == 0 || len(g.Links) == 0 {
		return
	}
	for ; times > 0; times-- {
		g.Links[m.rng.Intn(len(g.Links))].TraitID = g.randomTraitID(m.rng)
	}
}

// MutateNodeTrait points randomly chosen nodes at randomly chosen traits.
func (m *Mutator) MutateNodeTrait(g *Genome, times int) {
	if len(g.Traits) == 0 || len(g.Nodes) == 0 {
		return
	}
	for ; times > 0; times-- {
		g.Nodes[m.rng.Intn(len(g.Nodes))].TraitID = g.randomTraitID(m.rng)
	}
}

// pathExists reports whether out can already reach in through enabled links,
// meaning a new link in->out would close a cycle.
func pathExists(g *Genome, from, to int) bool {
	dg := simple.NewDirectedGraph()
	for i := range g.Nodes {
		dg.AddNode(simple.Node(g.Nodes[i].ID))
	}
	for i := range g.Links {
		l := &g.Links[i]
		if !l.Enabled || l.InNode == l.OutNode {
			continue
		}
		dg.SetEdge(simple.Edge{F: simple.Node(l.InNode), T: simple.Node(l.OutNode)})
	}
	return topo.PathExistsIn(dg, simple.Node(from), simple.Node(to))
}

// MutateAddLink tries up to maxAttempts random (source, destination) pairs and
// adds the first legal one. Destinations are never bias or sensor nodes and an
// existing (in, out, recurrent) triple is never duplicated.
func (m *Mutator) MutateAddLink(g *Genome, maxAttempts int) bool {
	var dests []int
	for i := range g.Nodes {
		if !g.Nodes[i].Type.IsInput() {
			dests = append(dests, i)
		}
	}
	if len(dests) == 0 {
		return false
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		in := g.Nodes[m.rng.Intn(len(g.Nodes))].ID
		out := g.Nodes[dests[m.rng.Intn(len(dests))]].ID

		recurrent := in == out || pathExists(g, out, in)
		if recurrent && !m.config.AllowRecurrent {
			continue
		}
		if g.FindLink(in, out, recurrent) >= 0 {
			continue
		}

		g.AddLink(LinkGene{
			InNode:     in,
			OutNode:    out,
			Weight:     initFloatAttribute(m.rng, 0, m.config.WeightInitStdev, m.config.WeightMinValue, m.config.WeightMaxValue),
			Enabled:    true,
			Recurrent:  recurrent,
			Innovation: m.ledger.LinkInnovation(in, out, recurrent),
			TraitID:    g.randomTraitID(m.rng),
			Origin:     NoOrigin,
		})
		return true
	}
	return false
}

// MutateAddNode splits an enabled link through a new hidden node. When
// splitLink is nil a random enabled link is chosen. The incoming replacement
// link gets weight 1 and the outgoing one keeps the old weight; the split link
// is disabled, or removed when deleteSplitLink is set.
func (m *Mutator) MutateAddNode(g *Genome, splitLink *LinkGene, deleteSplitLink bool) bool {
	idx := -1
	if splitLink != nil {
		idx = g.FindLink(splitLink.InNode, splitLink.OutNode, splitLink.Recurrent)
		if idx >= 0 && !g.Links[idx].Enabled {
			idx = -1
		}
	} else {
		var enabled []int
		for i := range g.Links {
			if g.Links[i].Enabled {
				enabled = append(enabled, i)
			}
		}
		if len(enabled) > 0 {
			idx = enabled[m.rng.Intn(len(enabled))]
		}
	}
	if idx < 0 {
		return false
	}

	old := g.Links[idx]
	split, _ := m.ledger.nextSplit(g, old)
	// A genome holding either replacement triple already cannot take this split.
	if g.FindLink(old.InNode, split.NodeID, old.Recurrent) >= 0 || g.FindLink(split.NodeID, old.OutNode, false) >= 0 {
		return false
	}
	split = m.ledger.SplitInnovation(g, old)

	if deleteSplitLink {
		g.removeLinkAt(idx)
	} else {
		g.Links[idx].Enabled = false
	}

	traitID := old.TraitID
	g.AddNode(NodeGene{ID: split.NodeID, Type: Hidden, TraitID: traitID, Innovation: split.NodeInnovation, Origin: NoOrigin})
	g.AddLink(LinkGene{
		InNode:     old.InNode,
		OutNode:    split.NodeID,
		Weight:     1.0,
		Enabled:    true,
		Recurrent:  old.Recurrent,
		Innovation: split.InLinkInnovation,
		TraitID:    traitID,
		Origin:     NoOrigin,
	})
	g.AddLink(LinkGene{
		InNode:     split.NodeID,
		OutNode:    old.OutNode,
		Weight:     old.Weight,
		Enabled:    true,
		Innovation: split.OutLinkInnovation,
		TraitID:    traitID,
		Origin:     NoOrigin,
	})
	return true
}

// removableLink reports whether removing or disabling link i keeps every
// output node with at least one enabled incoming link.
func (g *Genome) removableLink(i int) bool {
	l := &g.Links[i]
	if !l.Enabled {
		return true
	}
	j := g.NodeIndex(l.OutNode)
	if j < 0 || g.Nodes[j].Type != Output {
		return true
	}
	return g.enabledIncoming(l.OutNode) > 1
}

// MutateRemoveLink deletes a random link. Links that are the last enabled
// input of an output node are never removed.
func (m *Mutator) MutateRemoveLink(g *Genome) bool {
	var candidates []int
	for i := range g.Links {
		if g.removableLink(i) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return false
	}
	g.removeLinkAt(candidates[m.rng.Intn(len(candidates))])
	return true
}

// MutateRemoveNode deletes a random hidden node together with its incident
// links. Bias, sensor and output nodes are never removed.
func (m *Mutator) MutateRemoveNode(g *Genome) bool {
	var candidates []int
	for i := range g.Nodes {
		if g.Nodes[i].Type == Hidden {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return false
	}
	idx := candidates[m.rng.Intn(len(candidates))]
	id := g.Nodes[idx].ID

	// The removal must not strand an output node.
	lost := make(map[int]int)
	for i := range g.Links {
		l := &g.Links[i]
		if l.Enabled && l.InNode == id && l.OutNode != id {
			lost[l.OutNode]++
		}
	}
	for out, n := range lost {
		if j := g.NodeIndex(out); j >= 0 && g.Nodes[j].Type == Output && g.enabledIncoming(out) <= n {
			return false
		}
	}

	kept := g.Links[:0]
	for _, l := range g.Links {
		if l.InNode != id && l.OutNode != id {
			kept = append(kept, l)
		}
	}
	g.Links = kept
	g.Nodes = append(g.Nodes[:idx], g.Nodes[idx+1:]...)
	return true
}

// MutateToggleEnable flips the enabled flag of random links. A link is only
// disabled when its source keeps another enabled outgoing link and its
// destination is not left without input. It reports whether anything changed.
func (m *Mutator) MutateToggleEnable(g *Genome, times int) bool {
	if len(g.Links) == 0 {
		return false
	}
	changed := false
	for ; times > 0; times-- {
		i := m.rng.Intn(len(g.Links))
		l := &g.Links[i]
		if !l.Enabled {
			l.Enabled = true
			changed = true
			continue
		}
		otherOut := false
		for j := range g.Links {
			if j != i && g.Links[j].Enabled && g.Links[j].InNode == l.InNode {
				otherOut = true
				break
			}
		}
		if otherOut && g.removableLink(i) {
			l.Enabled = false
			changed = true
		}
	}
	return changed
}

// MutateReenable enables the first disabled link, if any.
func (m *Mutator) MutateReenable(g *Genome) bool {
	for i := range g.Links {
		if !g.Links[i].Enabled {
			g.Links[i].Enabled = true
			return true
		}
	}
	return false
}

// MutateStructure, with the given probability, attempts one augmenting
// mutation: add-node or add-link with equal odds, falling back to the other
// when the first choice finds no legal site.
func (m *Mutator) MutateStructure(g *Genome, probability float64) (bool, error) {
	if err := checkRange("structural_augmentation_prob", probability, 0, 1); err != nil {
		return false, err
	}
	if m.rng.Float64() >= probability {
		return false, nil
	}
	if m.rng.Float64() < 0.5 {
		if m.MutateAddNode(g, nil, m.config.DeleteSplitLink) {
			return true, nil
		}
		return m.MutateAddLink(g, m.config.AddLinkAttempts), nil
	}
	if m.MutateAddLink(g, m.config.AddLinkAttempts) {
		return true, nil
	}
	return m.MutateAddNode(g, nil, m.config.DeleteSplitLink), nil
}

// MutateRemoveStructure, with the given probability, attempts remove-link or
// remove-node with equal odds.
func (m *Mutator) MutateRemoveStructure(g *Genome, probability float64) (bool, error) {
	if err := checkRange("structural_removal_prob", probability, 0, 1); err != nil {
		return false, err
	}
	if m.rng.Float64() >= probability {
		return false, nil
	}
	if m.rng.Float64() < 0.5 {
		return m.MutateRemoveLink(g), nil
	}
	return m.MutateRemoveNode(g), nil
}
