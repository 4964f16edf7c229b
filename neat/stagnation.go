package neat

// Stagnation applies the age based fitness adjustments to species and tracks
// population-wide progress for delta coding.
type Stagnation struct {
	Config *StagnationConfig
}

// NewStagnation creates a new stagnation manager.
func NewStagnation(config *StagnationConfig) *Stagnation {
	return &Stagnation{Config: config}
}

// FlagObliterate marks the lowest ranked species aged at least ObliterateAge
// every ObliterateInterval generations. sorted must be ordered best first.
// It returns the flagged species, or nil.
func (s *Stagnation) FlagObliterate(sorted []*Species, generation int) *Species {
	if s.Config.ObliterateInterval <= 0 || generation%s.Config.ObliterateInterval != 0 {
		return nil
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Age >= s.Config.ObliterateAge {
			sorted[i].Obliterate = true
			return sorted[i]
		}
	}
	return nil
}

// AdjustFitness shares fitness within a species and applies the age debt:
// species stagnant past DropoffAge (or flagged for obliteration) keep 1% of
// their fitness, young species are scaled by AgeSignificance. Members are
// sorted best first, the champion flagged, and members whose fitness is below
// survivalThreshold times the species average are marked for elimination.
func (s *Stagnation) AdjustFitness(sp *Species, orgs map[int]*Organism, survivalThreshold float64) {
	ageDebt := (sp.Age - sp.AgeOfLastImprovement + 1) - s.Config.DropoffAge
	if ageDebt == 0 {
		ageDebt = 1
	}

	size := float64(sp.Size())
	for _, id := range sp.Members {
		o := orgs[id]
		f := o.Fitness
		if ageDebt >= 1 || sp.Obliterate {
			f *= 0.01
		}
		if sp.Age <= s.Config.YoungAge {
			f *= s.Config.AgeSignificance
		}
		if f < 0 {
			f = 0.0001
		}
		o.AdjustedFitness = f / size
		o.Champion = false
		o.Eliminate = false
	}

	sp.sortMembers(orgs)
	if sp.Size() == 0 {
		return
	}
	champ := orgs[sp.Members[0]]
	champ.Champion = true
	if champ.Fitness > sp.MaxFitnessEver {
		sp.AgeOfLastImprovement = sp.Age
		sp.MaxFitnessEver = champ.Fitness
	}

	cutoff := survivalThreshold * sp.AverageFitness
	for _, id := range sp.Members[1:] {
		if orgs[id].Fitness < cutoff {
			orgs[id].Eliminate = true
		}
	}
}

// UpdateHighest records the best fitness of the generation. It reports whether
// a new population record was set.
func (s *Stagnation) UpdateHighest(p *Population, best float64) bool {
	if best > p.HighestFitness {
		p.HighestFitness = best
		p.HighestLastChanged = 0
		return true
	}
	p.HighestLastChanged++
	return false
}

// DeltaCode redistributes the whole next generation to the top species when
// the population has not improved for DropoffAge+5 generations: the best
// species gets half, the second best the rest and every other species none.
// The champions of those species produce the offspring as super champions.
// It reports whether delta coding was applied.
func (s *Stagnation) DeltaCode(p *Population, sorted []*Species, popSize int) bool {
	if p.HighestLastChanged < s.Config.DropoffAge+5 || len(sorted) == 0 {
		return false
	}
	p.HighestLastChanged = 0
	half := popSize / 2

	first := sorted[0]
	first.ExpectedOffspring = half
	first.AgeOfLastImprovement = first.Age
	p.organisms[first.Members[0]].SuperChampOffspring = half

	if len(sorted) > 1 {
		second := sorted[1]
		second.ExpectedOffspring = popSize - half
		second.AgeOfLastImprovement = second.Age
		p.organisms[second.Members[0]].SuperChampOffspring = popSize - half
		for _, sp := range sorted[2:] {
			sp.ExpectedOffspring = 0
		}
	} else {
		first.ExpectedOffspring += popSize - half
		p.organisms[first.Members[0]].SuperChampOffspring += popSize - half
	}
	return true
}
