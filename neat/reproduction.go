package neat

import (
	"fmt"
	"math"
)

// Reproduction handles offspring allocation and the creation of new genomes
// through cloning, crossover and mutation.
type Reproduction struct {
	Config  *ReproductionConfig
	Genome  *GenomeConfig
	Mutator *Mutator
}

// NewReproduction creates a new reproduction manager.
func NewReproduction(config *ReproductionConfig, genome *GenomeConfig, mutator *Mutator) *Reproduction {
	return &Reproduction{Config: config, Genome: genome, Mutator: mutator}
}

// child is an offspring together with the species that produced it.
type child struct {
	id     int
	parent *Species
}

// AllocateOffspring computes the expected offspring of every organism and
// species so that the species totals add up to exactly popSize.
//
// Each organism expects adjusted/average offspring. Species sum the integer
// parts and carry the fractional parts forward ("skim") in species order.
// The remaining shortfall or excess is settled on the species expecting the
// most offspring, the first one in creation order on ties. When the overall
// average is zero the population is split evenly in species order.
func (r *Reproduction) AllocateOffspring(species []*Species, orgs map[int]*Organism, popSize int) {
	if len(species) == 0 {
		return
	}
	total := 0.0
	for _, sp := range species {
		for _, id := range sp.Members {
			total += orgs[id].AdjustedFitness
		}
	}
	average := total / float64(popSize)

	if average <= 0 || math.IsNaN(average) || math.IsInf(average, 0) {
		base, rem := popSize/len(species), popSize%len(species)
		for i, sp := range species {
			sp.ExpectedOffspring = base
			if i < rem {
				sp.ExpectedOffspring++
			}
			for _, id := range sp.Members {
				orgs[id].ExpectedOffspring = float64(sp.ExpectedOffspring) / float64(sp.Size())
			}
		}
		return
	}

	skim := 0.0
	totalExpected := 0
	for _, sp := range species {
		sp.ExpectedOffspring = 0
		for _, id := range sp.Members {
			o := orgs[id]
			o.ExpectedOffspring = o.AdjustedFitness / average
			intPart, fracPart := math.Modf(o.ExpectedOffspring)
			sp.ExpectedOffspring += int(intPart)
			skim += fracPart
			if skim >= 1.0 {
				whole := math.Floor(skim)
				sp.ExpectedOffspring += int(whole)
				skim -= whole
			}
		}
		totalExpected += sp.ExpectedOffspring
	}

	if diff := popSize - totalExpected; diff != 0 {
		best := species[0]
		for _, sp := range species[1:] {
			if sp.ExpectedOffspring > best.ExpectedOffspring {
				best = sp
			}
		}
		best.ExpectedOffspring += diff
		if best.ExpectedOffspring < 0 {
			best.ExpectedOffspring = 0
		}
	}
}

// Reproduce creates the index-th offspring of species sp. all is the full
// species list used to pick interspecies mates. The new genome gets childID.
func (r *Reproduction) Reproduce(p *Population, sp *Species, index int, all []*Species, childID int) (*Genome, error) {
	parents := sp.parents(p.organisms)
	if len(parents) == 0 {
		return nil, fmt.Errorf("species %d has no surviving parents", sp.ID)
	}
	champ := p.organisms[parents[0]]
	m := r.Mutator

	// Super champions clone themselves; all but the last clone are mutated.
	if champ.SuperChampOffspring > 0 {
		g := champ.Genome.Duplicate(childID)
		if champ.SuperChampOffspring > 1 {
			if m.rng.Float64() < 0.8 || r.Genome.WeightMutatePower == 0 {
				if err := m.MutateWeights(g, r.Genome.WeightMutateProb, r.Genome.WeightMutatePower); err != nil {
					return nil, err
				}
			} else {
				m.MutateAddLink(g, r.Genome.AddLinkAttempts)
			}
		}
		champ.SuperChampOffspring--
		return g, nil
	}

	// The champion of a large species survives unchanged.
	if index == 0 && sp.ExpectedOffspring > r.Config.ChampionCloneMinSize {
		return champ.Genome.Duplicate(childID), nil
	}

	var g *Genome
	switch {
	case r.Config.Asexual:
		mom, _ := r.tournament(p, parents)
		g = p.organisms[mom].Genome.Duplicate(childID)
	case len(parents) == 1 || m.rng.Float64() < r.Config.InterspeciesMateProb:
		if mate := r.interspeciesMate(p, sp, all); mate != nil {
			g = m.Crossover(champ.Genome, mate.Genome, champ.Fitness, mate.Fitness, true, childID)
			break
		}
		if len(parents) == 1 {
			g = champ.Genome.Duplicate(childID)
			break
		}
		fallthrough
	default:
		mom, dad := r.tournament(p, parents)
		if mom == dad {
			g = p.organisms[mom].Genome.Duplicate(childID)
		} else {
			a, b := p.organisms[mom], p.organisms[dad]
			g = m.Crossover(a.Genome, b.Genome, a.Fitness, b.Fitness, false, childID)
		}
	}

	if err := r.mutate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// mutate applies the parametric and structural mutations to a new offspring.
func (r *Reproduction) mutate(g *Genome) error {
	m, c := r.Mutator, r.Genome
	if err := m.MutateWeights(g, c.WeightMutateProb, c.WeightMutatePower); err != nil {
		return err
	}
	if err := m.MutateNeuronParams(g, c.TraitMutateProb, c.TraitMutatePower); err != nil {
		return err
	}
	if m.rng.Float64() < c.LinkTraitProb {
		m.MutateLinkTrait(g, 1)
	}
	if m.rng.Float64() < c.NodeTraitProb {
		m.MutateNodeTrait(g, 1)
	}
	if m.rng.Float64() < c.ToggleEnableProb {
		m.MutateToggleEnable(g, 1)
	}
	if m.rng.Float64() < c.ReenableProb {
		m.MutateReenable(g)
	}
	if _, err := m.MutateStructure(g, r.Config.StructuralAugmentationProb); err != nil {
		return err
	}
	if _, err := m.MutateRemoveStructure(g, r.Config.StructuralRemovalProb); err != nil {
		return err
	}
	return nil
}

// tournament samples up to TournamentSize distinct parents and returns the
// two fittest. With a single parent both results are that parent.
func (r *Reproduction) tournament(p *Population, parents []int) (int, int) {
	if len(parents) == 1 {
		return parents[0], parents[0]
	}
	k := r.Config.TournamentSize
	if k > len(parents) {
		k = len(parents)
	}
	perm := r.Mutator.rng.Perm(len(parents))[:k]
	best, second := -1, -1
	for _, i := range perm {
		id := parents[i]
		f := p.organisms[id].Fitness
		switch {
		case best < 0 || f > p.organisms[best].Fitness:
			best, second = id, best
		case second < 0 || f > p.organisms[second].Fitness:
			second = id
		}
	}
	if second < 0 {
		second = best
	}
	return best, second
}

// interspeciesMate picks a species other than sp uniformly at random and
// returns its best surviving member, or nil when no other species can mate.
func (r *Reproduction) interspeciesMate(p *Population, sp *Species, all []*Species) *Organism {
	var others []*Species
	for _, s := range all {
		if s != sp && len(s.parents(p.organisms)) > 0 {
			others = append(others, s)
		}
	}
	if len(others) == 0 {
		return nil
	}
	s := others[r.Mutator.rng.Intn(len(others))]
	return p.organisms[s.parents(p.organisms)[0]]
}
