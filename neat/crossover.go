package neat

// Crossover mates two parents. With probability MateAverageProb matching
// genes are blended (CrossoverAverage), otherwise one parent's gene is picked
// per innovation (CrossoverMultipoint).
func (m *Mutator) Crossover(a, b *Genome, fitnessA, fitnessB float64, interspecies bool, childID int) *Genome {
	average := m.rng.Float64() < m.config.MateAverageProb
	return m.crossover(a, b, fitnessA, fitnessB, interspecies, average, childID)
}

// CrossoverMultipoint inherits each matching gene from a uniformly chosen parent.
func (m *Mutator) CrossoverMultipoint(a, b *Genome, fitnessA, fitnessB float64, interspecies bool, childID int) *Genome {
	return m.crossover(a, b, fitnessA, fitnessB, interspecies, false, childID)
}

// CrossoverAverage gives matching genes the mean weight of both parents.
func (m *Mutator) CrossoverAverage(a, b *Genome, fitnessA, fitnessB float64, interspecies bool, childID int) *Genome {
	return m.crossover(a, b, fitnessA, fitnessB, interspecies, true, childID)
}

// fitterParent reports whether a counts as the fitter parent. On equal fitness
// the smaller genome wins, and a wins a complete tie.
func fitterParent(a, b *Genome, fitnessA, fitnessB float64) bool {
	if fitnessA != fitnessB {
		return fitnessA > fitnessB
	}
	return len(a.Links) <= len(b.Links)
}

// inheritedEnabled decides the enabled flag of a gene from the flags it has in
// the parents carrying it. A gene disabled in every parent stays disabled; one
// disabled in some parent is disabled with DisableInheritedProb.
func (m *Mutator) inheritedEnabled(enabled ...bool) bool {
	disabled := 0
	for _, e := range enabled {
		if !e {
			disabled++
		}
	}
	switch {
	case disabled == 0:
		return true
	case disabled == len(enabled) && len(enabled) > 1:
		return false
	default:
		return m.rng.Float64() >= m.config.DisableInheritedProb
	}
}

func (m *Mutator) crossover(a, b *Genome, fitnessA, fitnessB float64, interspecies, average bool, childID int) *Genome {
	aFitter := fitterParent(a, b, fitnessA, fitnessB)
	child := &Genome{ID: childID}

	// Nodes come from the fitter parent when both carry them.
	primary, secondary := a, b
	if !aFitter {
		primary, secondary = b, a
	}
	addNode := func(id int) {
		if child.HasNode(id) {
			return
		}
		if i := primary.NodeIndex(id); i >= 0 {
			child.AddNode(primary.Nodes[i])
		} else if i := secondary.NodeIndex(id); i >= 0 {
			child.AddNode(secondary.Nodes[i])
		}
	}
	for _, parent := range []*Genome{primary, secondary} {
		for _, n := range parent.Nodes {
			if n.Type != Hidden {
				addNode(n.ID)
			}
		}
	}

	inherit := func(l LinkGene) {
		// Links from different lineages can share a triple under different
		// innovation numbers; the first one wins.
		if child.FindLink(l.InNode, l.OutNode, l.Recurrent) >= 0 {
			return
		}
		addNode(l.InNode)
		addNode(l.OutNode)
		child.AddLink(l)
	}

	i, j := 0, 0
	for i < len(a.Links) || j < len(b.Links) {
		switch {
		case j >= len(b.Links) || (i < len(a.Links) && a.Links[i].Innovation < b.Links[j].Innovation):
			if aFitter || interspecies {
				l := a.Links[i]
				l.Enabled = m.inheritedEnabled(l.Enabled)
				inherit(l)
			}
			i++
		case i >= len(a.Links) || b.Links[j].Innovation < a.Links[i].Innovation:
			if !aFitter || interspecies {
				l := b.Links[j]
				l.Enabled = m.inheritedEnabled(l.Enabled)
				inherit(l)
			}
			j++
		default:
			la, lb := a.Links[i], b.Links[j]
			l := la
			if m.rng.Float64() < 0.5 {
				l = lb
			}
			if average {
				l.Weight = (la.Weight + lb.Weight) / 2
			}
			l.Enabled = m.inheritedEnabled(la.Enabled, lb.Enabled)
			inherit(l)
			i++
			j++
		}
	}

	child.Traits = m.crossTraits(a, b, average)
	return child
}

// crossTraits merges the trait sets by id: shared traits are picked from a
// random parent (or averaged), the rest are copied over.
func (m *Mutator) crossTraits(a, b *Genome, average bool) []Trait {
	var traits []Trait
	for _, ta := range a.Traits {
		t := ta
		if k := b.TraitIndex(ta.ID); k >= 0 {
			tb := b.Traits[k]
			switch {
			case average:
				for p := range t.Params {
					t.Params[p] = (ta.Params[p] + tb.Params[p]) / 2
				}
			case m.rng.Float64() < 0.5:
				t = tb
			}
		}
		traits = append(traits, t)
	}
	for _, tb := range b.Traits {
		if a.TraitIndex(tb.ID) < 0 {
			traits = append(traits, tb)
		}
	}
	return traits
}
