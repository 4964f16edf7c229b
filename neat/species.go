package neat

import (
	"sort"
)

// Species represents a group of genetically similar genomes. Members are
// genome ids into the population's arena; the first member is the
// representative used for compatibility checks.
type Species struct {
	ID                   int
	Members              []int
	Age                  int
	AgeOfLastImprovement int
	MaxFitnessEver       float64
	Obliterate           bool // stagnant, penalized heavily at the next fitness adjustment
	Novel                bool // created this generation, not aged at turnover
	AverageFitness       float64
	MaxFitness           float64
	ExpectedOffspring    int
}

// NewSpecies creates an empty species of age 1.
func NewSpecies(id int, novel bool) *Species {
	return &Species{ID: id, Age: 1, Novel: novel}
}

// Size returns the number of members.
func (s *Species) Size() int { return len(s.Members) }

// Representative returns the genome id of the first member, or 0 when empty.
func (s *Species) Representative() int {
	if len(s.Members) == 0 {
		return 0
	}
	return s.Members[0]
}

// computeStats sets AverageFitness and MaxFitness from the members' original fitness.
func (s *Species) computeStats(orgs map[int]*Organism) {
	fitnesses := s.fitnesses(orgs)
	s.AverageFitness = Mean(fitnesses)
	s.MaxFitness = 0
	if len(fitnesses) > 0 {
		s.MaxFitness = MaxFloat(fitnesses)
	}
}

// fitnesses returns the original fitness of every member, in member order.
func (s *Species) fitnesses(orgs map[int]*Organism) []float64 {
	out := make([]float64, 0, len(s.Members))
	for _, id := range s.Members {
		out = append(out, orgs[id].Fitness)
	}
	return out
}

// sortMembers orders members by original fitness, best first. Ties keep
// their previous order, so the champion becomes the representative.
func (s *Species) sortMembers(orgs map[int]*Organism) {
	sort.SliceStable(s.Members, func(i, j int) bool {
		return orgs[s.Members[i]].Fitness > orgs[s.Members[j]].Fitness
	})
}

// parents returns the members that survived culling, best first.
func (s *Species) parents(orgs map[int]*Organism) []int {
	var out []int
	for _, id := range s.Members {
		if !orgs[id].Eliminate {
			out = append(out, id)
		}
	}
	return out
}

// sortSpeciesByMaxFitness returns a copy of the species list ordered by max
// original fitness, best first; equal species keep creation order.
func sortSpeciesByMaxFitness(species []*Species) []*Species {
	sorted := append([]*Species(nil), species...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MaxFitness > sorted[j].MaxFitness
	})
	return sorted
}

// speciateInto assigns each genome greedily to the first species in list
// whose representative is compatible, creating a new species otherwise.
// It is used for the initial population; later generations go through
// Population.respeciate which prefers the parent species.
func (p *Population) speciateInto(ids []int, cache *GenomeDistanceCache) {
	for _, id := range ids {
		g := p.organisms[id].Genome
		var target *Species
		for _, s := range p.species {
			if cache.Compatible(g, p.organisms[s.Representative()].Genome) {
				target = s
				break
			}
		}
		if target == nil {
			target = p.newSpecies(false)
		}
		target.Members = append(target.Members, id)
		p.organisms[id].SpeciesID = target.ID
	}
}

func (p *Population) newSpecies(novel bool) *Species {
	p.nextSpeciesID++
	s := NewSpecies(p.nextSpeciesID, novel)
	p.species = append(p.species, s)
	return s
}

// respeciate places the offspring of this generation. Each child is tested
// against its parent species' representative, then against every other
// existing species in order, then against species created during this pass,
// and finally founds a new species. Representatives of existing species are
// their champions from the previous generation.
func (p *Population) respeciate(children []child, cache *GenomeDistanceCache) map[*Species][]int {
	existing := len(p.species)
	next := make(map[*Species][]int, existing)
	rep := func(s *Species) *Genome {
		if i := p.speciesIndex(s); i >= existing {
			return p.organisms[next[s][0]].Genome
		}
		return p.organisms[s.Representative()].Genome
	}

	placed := make([]*Species, len(children))
	for i, c := range children {
		g := p.organisms[c.id].Genome
		if c.parent != nil && c.parent.Size() > 0 && cache.Compatible(g, rep(c.parent)) {
			placed[i] = c.parent
			continue
		}
		for _, s := range p.species[:existing] {
			if s == c.parent || s.Size() == 0 {
				continue
			}
			if cache.Compatible(g, rep(s)) {
				placed[i] = s
				break
			}
		}
	}

	for i, c := range children {
		if placed[i] == nil {
			g := p.organisms[c.id].Genome
			for _, s := range p.species[existing:] {
				if cache.Compatible(g, rep(s)) {
					placed[i] = s
					break
				}
			}
			if placed[i] == nil {
				placed[i] = p.newSpecies(true)
			}
		}
		next[placed[i]] = append(next[placed[i]], c.id)
		p.organisms[c.id].SpeciesID = placed[i].ID
	}
	return next
}

// turnover installs the new member lists, drops species left empty and ages
// the rest. Species founded during this pass keep age 1.
func (p *Population) turnover(next map[*Species][]int) {
	kept := p.species[:0]
	for _, sp := range p.species {
		sp.Members = next[sp]
		if len(sp.Members) == 0 {
			continue
		}
		if sp.Novel {
			sp.Novel = false
		} else {
			sp.Age++
		}
		kept = append(kept, sp)
	}
	p.species = kept
}

func (p *Population) speciesIndex(s *Species) int {
	for i, other := range p.species {
		if other == s {
			return i
		}
	}
	return -1
}
