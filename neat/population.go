package neat

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// State is the phase of the generation cycle a population is in.
type State int

const (
	Evaluating State = iota
	Speciating
	SharingFitness
	AllocatingOffspring
	Reproducing
)

func (s State) String() string {
	switch s {
	case Evaluating:
		return "evaluating"
	case Speciating:
		return "speciating"
	case SharingFitness:
		return "sharing-fitness"
	case AllocatingOffspring:
		return "allocating-offspring"
	case Reproducing:
		return "reproducing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Organism is the population's record for one genome of the current generation.
type Organism struct {
	Genome              *Genome
	Fitness             float64 // as reported by the evaluator
	AdjustedFitness     float64 // after age debt and sharing
	ExpectedOffspring   float64
	Eliminate           bool
	Champion            bool
	SuperChampOffspring int
	SpeciesID           int
	Evaluated           bool
	Generation          int // generation the genome was born in
}

// Population holds the state of the NEAT evolutionary process. It is driven
// from a single goroutine: genomes are pulled from the evaluation queue, their
// fitness reported back, and NextGeneration called once all are scored.
type Population struct {
	config *Config
	logger *zap.Logger
	rng    *rand.Rand
	seed   *Genome

	ledger       *InnovationLedger
	mutator      *Mutator
	stagnation   *Stagnation
	reproduction *Reproduction

	organisms map[int]*Organism // arena keyed by genome id
	order     []int             // arena order of the current generation
	queue     []int             // genomes not yet handed out for evaluation
	species   []*Species        // creation order

	generation    int
	nextGenomeID  int
	nextSpeciesID int
	state         State

	// HighestFitness is the best fitness ever reported, HighestLastChanged the
	// number of generations since it last improved.
	HighestFitness     float64
	HighestLastChanged int
}

// Option configures a Population.
type Option func(*Population)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Population) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRand sets the random source used for every stochastic decision.
func WithRand(rng *rand.Rand) Option {
	return func(p *Population) {
		if rng != nil {
			p.rng = rng
		}
	}
}

// WithLedger continues numbering from an existing innovation ledger, e.g. one
// loaded from a previous run.
func WithLedger(ledger *InnovationLedger) Option {
	return func(p *Population) {
		if ledger != nil {
			p.ledger = ledger
		}
	}
}

// WithSeedGenome starts the population from copies of g instead of the minimal
// topology described by the genome config.
func WithSeedGenome(g *Genome) Option {
	return func(p *Population) { p.seed = g }
}

// NewPopulation creates a population of Neat.PopSize genomes and speciates it.
func NewPopulation(config *Config, opts ...Option) (*Population, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	p, err := newPopulationShell(config, opts...)
	if err != nil {
		return nil, err
	}
	if err := p.seedPopulation(); err != nil {
		return nil, err
	}
	p.logger.Info("population created",
		zap.Int("size", len(p.order)),
		zap.Int("species", len(p.species)),
		zap.Int("next_innovation", p.ledger.NextInnovation()))
	return p, nil
}

// newPopulationShell applies the options and wires the collaborators of an
// empty population.
func newPopulationShell(config *Config, opts ...Option) (*Population, error) {
	p := &Population{
		config:       config,
		logger:       zap.NewNop(),
		organisms:    make(map[int]*Organism, config.Neat.PopSize),
		nextGenomeID: 1,
		state:        Evaluating,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		seed := config.Neat.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		p.rng = rand.New(rand.NewSource(seed))
	}
	if p.ledger == nil {
		p.ledger = NewInnovationLedger()
	}
	p.mutator = NewMutator(&config.Genome, p.ledger, p.rng)
	p.stagnation = NewStagnation(&config.Stagnation)
	p.reproduction = NewReproduction(&config.Reproduction, &config.Genome, p.mutator)
	return p, nil
}

func (p *Population) seedPopulation() error {
	gc := &p.config.Genome
	seed := p.seed
	if seed != nil {
		if err := seed.IsValid(); err != nil {
			return fmt.Errorf("invalid seed genome: %w", err)
		}
		if seed.CountNodes(Sensor) != gc.NumInputs || seed.CountNodes(Output) != gc.NumOutputs {
			return fmt.Errorf("seed genome has %d sensors and %d outputs, config wants %d and %d",
				seed.CountNodes(Sensor), seed.CountNodes(Output), gc.NumInputs, gc.NumOutputs)
		}
	} else {
		seed = NewSeedGenome(0, gc, p.rng)
	}
	p.ledger.Observe(seed)

	for i := 0; i < p.config.Neat.PopSize; i++ {
		id := p.nextGenomeID
		p.nextGenomeID++

		var g *Genome
		if p.seed != nil {
			g = p.seed.Duplicate(id)
			if i > 0 {
				if err := p.mutator.MutateWeights(g, 1.0, gc.WeightMutatePower); err != nil {
					return err
				}
			}
		} else {
			g = NewSeedGenome(id, gc, p.rng)
		}
		for k := 0; k < p.config.Reproduction.InitialStructuralMutations; k++ {
			if _, err := p.mutator.MutateStructure(g, 1.0); err != nil {
				return err
			}
		}
		p.organisms[id] = &Organism{Genome: g}
		p.order = append(p.order, id)
	}

	p.speciateInto(p.order, NewGenomeDistanceCache(&p.config.SpeciesSet))
	p.queue = append([]int(nil), p.order...)
	return nil
}

// Config returns the configuration the population was created with.
func (p *Population) Config() *Config { return p.config }

// Generation returns the number of completed generation transitions.
func (p *Population) Generation() int { return p.generation }

// State returns the current phase.
func (p *Population) State() State { return p.state }

// Ledger returns the innovation ledger shared by all genomes of the run.
func (p *Population) Ledger() *InnovationLedger { return p.ledger }

// Species returns the species in creation order. Callers must not modify them.
func (p *Population) Species() []*Species { return p.species }

// Organism returns the record of a genome of the current generation.
func (p *Population) Organism(id int) (*Organism, bool) {
	o, ok := p.organisms[id]
	return o, ok
}

// Organisms returns the current generation in arena order.
func (p *Population) Organisms() []*Organism {
	out := make([]*Organism, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.organisms[id])
	}
	return out
}

// PopPending hands out the next genome waiting for evaluation.
func (p *Population) PopPending() (*Genome, bool) {
	for len(p.queue) > 0 {
		id := p.queue[0]
		p.queue = p.queue[1:]
		if o := p.organisms[id]; o != nil && !o.Evaluated {
			return o.Genome, true
		}
	}
	return nil, false
}

// Pending returns the number of genomes not yet handed out.
func (p *Population) Pending() int { return len(p.queue) }

// ReportFitness records the fitness of a genome of the current generation.
func (p *Population) ReportFitness(genomeID int, fitness float64) error {
	if fitness < 0 || math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return fmt.Errorf("genome %d fitness %g: %w", genomeID, fitness, ErrInvalidFitness)
	}
	o, ok := p.organisms[genomeID]
	if !ok {
		return fmt.Errorf("genome %d: %w", genomeID, ErrUnknownGenome)
	}
	o.Fitness = fitness
	o.Evaluated = true
	return nil
}

// Evaluated reports whether every genome of the generation has a fitness.
func (p *Population) Evaluated() bool {
	for _, id := range p.order {
		if !p.organisms[id].Evaluated {
			return false
		}
	}
	return true
}

// Champion returns the evaluated organism with the highest fitness, or nil.
func (p *Population) Champion() *Organism {
	var best *Organism
	for _, id := range p.order {
		o := p.organisms[id]
		if o.Evaluated && (best == nil || o.Fitness > best.Fitness) {
			best = o
		}
	}
	return best
}

// NextGeneration replaces the evaluated generation with its offspring. It
// fails with ErrEvaluationPending while any genome lacks a fitness, leaving
// the population untouched.
func (p *Population) NextGeneration() error {
	for _, id := range p.order {
		if !p.organisms[id].Evaluated {
			return fmt.Errorf("genome %d: %w", id, ErrEvaluationPending)
		}
	}
	start := time.Now()
	summary := p.FitnessSummary()
	p.generation++
	popSize := len(p.order)

	p.state = Speciating
	for _, sp := range p.species {
		sp.computeStats(p.organisms)
	}
	sorted := sortSpeciesByMaxFitness(p.species)
	if sp := p.stagnation.FlagObliterate(sorted, p.generation); sp != nil {
		p.logger.Info("species flagged for obliteration", zap.Int("species", sp.ID), zap.Int("age", sp.Age))
	}

	p.state = SharingFitness
	for _, sp := range p.species {
		p.stagnation.AdjustFitness(sp, p.organisms, p.config.Reproduction.SurvivalThreshold)
	}

	p.state = AllocatingOffspring
	p.reproduction.AllocateOffspring(p.species, p.organisms, popSize)
	best := p.organisms[sorted[0].Members[0]]
	if p.stagnation.UpdateHighest(p, best.Fitness) {
		p.logger.Info("new population record", zap.Int("generation", p.generation), zap.Float64("fitness", best.Fitness))
	}
	if p.stagnation.DeltaCode(p, sorted, popSize) {
		p.logger.Info("population stagnant, delta coding applied", zap.Int("generation", p.generation))
	}

	p.state = Reproducing
	children := make([]child, 0, popSize)
	for _, sp := range p.species {
		for j := 0; j < sp.ExpectedOffspring; j++ {
			id := p.nextGenomeID
			p.nextGenomeID++
			g, err := p.reproduction.Reproduce(p, sp, j, p.species, id)
			if err != nil {
				return fmt.Errorf("generation %d: reproducing species %d: %w", p.generation, sp.ID, err)
			}
			p.organisms[id] = &Organism{Genome: g, Generation: p.generation}
			children = append(children, child{id: id, parent: sp})
		}
	}

	cache := NewGenomeDistanceCache(&p.config.SpeciesSet)
	next := p.respeciate(children, cache)

	for _, id := range p.order {
		delete(p.organisms, id)
	}
	p.turnover(next)

	p.order = p.order[:0]
	for _, c := range children {
		p.order = append(p.order, c.id)
	}
	p.queue = append([]int(nil), p.order...)
	p.ledger.NextGeneration()
	p.state = Evaluating

	meanDist, stdevDist := cache.MeanDistance()
	p.logger.Info("generation complete",
		zap.Int("generation", p.generation),
		zap.Int("population", len(p.order)),
		zap.Int("species", len(p.species)),
		zap.Float64("best_fitness", best.Fitness),
		zap.Float64("mean_fitness", summary.Mean),
		zap.Float64("stdev_fitness", summary.Stdev),
		zap.Float64("median_fitness", summary.Median),
		zap.Float64("highest_fitness", p.HighestFitness),
		zap.Float64("mean_distance", meanDist),
		zap.Float64("stdev_distance", stdevDist),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
