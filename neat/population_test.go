package neat

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Neat.PopSize = 30
	cfg.Neat.Seed = 1
	cfg.Genome.NumInputs = 2
	cfg.Genome.NumOutputs = 1
	cfg.Reproduction.StructuralAugmentationProb = 0.3
	return cfg
}

// structureFitness rewards larger genomes with stronger weights, which keeps
// the search moving without an external task.
func structureFitness(g *Genome) float64 {
	f := float64(len(g.Links))
	for _, l := range g.Links {
		if l.Enabled {
			f += math.Abs(l.Weight) / 10
		}
	}
	return f
}

func evaluateAll(t *testing.T, p *Population) {
	t.Helper()
	for {
		g, ok := p.PopPending()
		if !ok {
			break
		}
		require.NoError(t, p.ReportFitness(g.ID, structureFitness(g)))
	}
	require.True(t, p.Evaluated())
}

func checkPopulation(t *testing.T, p *Population) {
	t.Helper()
	orgs := p.Organisms()
	require.Len(t, orgs, p.Config().Neat.PopSize)

	inSpecies := make(map[int]int)
	for _, sp := range p.Species() {
		require.NotEmpty(t, sp.Members, "species %d is empty", sp.ID)
		assert.False(t, sp.Novel, "species %d still novel", sp.ID)
		for _, id := range sp.Members {
			inSpecies[id]++
			o, ok := p.Organism(id)
			require.True(t, ok)
			assert.Equal(t, sp.ID, o.SpeciesID)
		}
	}
	for _, o := range orgs {
		require.NoError(t, o.Genome.IsValid())
		assert.Equal(t, 1, inSpecies[o.Genome.ID], "genome %d species membership", o.Genome.ID)
		assert.Less(t, o.Genome.LastInnovation(), p.Ledger().NextInnovation())
		assert.Less(t, o.Genome.LastNodeID(), p.Ledger().NextNodeID())
	}
}

func TestNewPopulation(t *testing.T) {
	p, err := NewPopulation(testConfig())
	require.NoError(t, err)
	checkPopulation(t, p)
	assert.Equal(t, 0, p.Generation())
	assert.Equal(t, Evaluating, p.State())
	assert.Equal(t, 30, p.Pending())
	assert.Nil(t, p.Champion())

	err = p.NextGeneration()
	require.ErrorIs(t, err, ErrEvaluationPending)
	assert.Equal(t, 0, p.Generation())
}

func TestNewPopulationRejectsMismatchedSeed(t *testing.T) {
	cfg := testConfig()
	gc := cfg.Genome
	gc.NumInputs = 3
	seed := NewSeedGenome(0, &gc, newTestRand(1))
	_, err := NewPopulation(cfg, WithSeedGenome(seed))
	require.Error(t, err)
}

func TestNewPopulationFromSeedGenome(t *testing.T) {
	cfg := testConfig()
	seed := NewSeedGenome(0, &cfg.Genome, newTestRand(1))
	seed.AddNode(NodeGene{ID: 10, Type: Hidden, Innovation: 20})
	seed.AddLink(LinkGene{InNode: 2, OutNode: 10, Weight: 1, Enabled: true, Innovation: 21})
	seed.AddLink(LinkGene{InNode: 10, OutNode: 4, Weight: 1, Enabled: true, Innovation: 22})

	p, err := NewPopulation(cfg, WithSeedGenome(seed))
	require.NoError(t, err)
	checkPopulation(t, p)
	assert.Equal(t, 23, p.Ledger().NextInnovation())
	assert.Equal(t, 11, p.Ledger().NextNodeID())

	orgs := p.Organisms()
	if diff := cmp.Diff(seed, orgs[0].Genome, cmpopts.IgnoreFields(Genome{}, "ID")); diff != "" {
		t.Errorf("first genome is not an exact copy (-seed +got):\n%s", diff)
	}
	assert.Equal(t, linkInnovations(seed), linkInnovations(orgs[1].Genome))
}

func TestReportFitness(t *testing.T) {
	p, err := NewPopulation(testConfig())
	require.NoError(t, err)
	g, ok := p.PopPending()
	require.True(t, ok)

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		err := p.ReportFitness(g.ID, bad)
		assert.ErrorIs(t, err, ErrInvalidFitness, "fitness %v", bad)
	}
	assert.ErrorIs(t, p.ReportFitness(9999, 1), ErrUnknownGenome)

	require.NoError(t, p.ReportFitness(g.ID, 3))
	champ := p.Champion()
	require.NotNil(t, champ)
	assert.Equal(t, g.ID, champ.Genome.ID)
	assert.False(t, p.Evaluated())
}

func TestPopPendingHandsOutEachGenomeOnce(t *testing.T) {
	p, err := NewPopulation(testConfig())
	require.NoError(t, err)
	seen := make(map[int]bool)
	for {
		g, ok := p.PopPending()
		if !ok {
			break
		}
		require.False(t, seen[g.ID], "genome %d handed out twice", g.ID)
		seen[g.ID] = true
	}
	assert.Len(t, seen, 30)
	assert.Zero(t, p.Pending())
}

func TestGenerationsKeepPopulationSize(t *testing.T) {
	p, err := NewPopulation(testConfig())
	require.NoError(t, err)

	var ids []int
	for gen := 1; gen <= 15; gen++ {
		evaluateAll(t, p)
		best := p.Champion().Fitness
		require.NoError(t, p.NextGeneration())
		assert.Equal(t, gen, p.Generation())
		assert.Equal(t, Evaluating, p.State())
		assert.GreaterOrEqual(t, p.HighestFitness, best)
		checkPopulation(t, p)
		for _, o := range p.Organisms() {
			ids = append(ids, o.Genome.ID)
			assert.Equal(t, gen, o.Generation)
			assert.False(t, o.Evaluated)
		}
	}
	// Genome ids are never reused.
	unique := make(map[int]bool)
	for _, id := range ids {
		unique[id] = true
	}
	assert.Len(t, unique, len(ids))
}

func TestPopulationIsDeterministicForSeed(t *testing.T) {
	run := func() []*Genome {
		p, err := NewPopulation(testConfig())
		require.NoError(t, err)
		for gen := 0; gen < 5; gen++ {
			evaluateAll(t, p)
			require.NoError(t, p.NextGeneration())
		}
		var out []*Genome
		for _, o := range p.Organisms() {
			out = append(out, o.Genome)
		}
		return out
	}
	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("runs with the same seed differ:\n%s", diff)
	}
}

func TestLargeSpeciesChampionIsCloned(t *testing.T) {
	cfg := testConfig()
	// A single species holding everyone.
	cfg.SpeciesSet.CompatibilityThreshold = 1000
	p, err := NewPopulation(cfg)
	require.NoError(t, err)
	require.Len(t, p.Species(), 1)

	evaluateAll(t, p)
	champ := p.Champion().Genome
	require.NoError(t, p.NextGeneration())

	first := p.Organisms()[0].Genome
	if diff := cmp.Diff(champ, first, cmpopts.IgnoreFields(Genome{}, "ID")); diff != "" {
		t.Errorf("champion was not carried over unchanged:\n%s", diff)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	p, err := NewPopulation(testConfig())
	require.NoError(t, err)
	for gen := 0; gen < 2; gen++ {
		evaluateAll(t, p)
		require.NoError(t, p.NextGeneration())
	}
	// Score part of the generation and hand out one more genome that is
	// never scored.
	for i := 0; i < 10; i++ {
		g, ok := p.PopPending()
		require.True(t, ok)
		require.NoError(t, p.ReportFitness(g.ID, structureFitness(g)))
	}
	_, ok := p.PopPending()
	require.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, p.WriteCheckpoint(&buf))
	restored, err := ReadCheckpoint(&buf, testConfig())
	require.NoError(t, err)

	opts := cmp.Options{cmpopts.EquateEmpty()}
	if diff := cmp.Diff(p.Organisms(), restored.Organisms(), opts); diff != "" {
		t.Errorf("organisms differ (-saved +restored):\n%s", diff)
	}
	if diff := cmp.Diff(p.Species(), restored.Species(), opts); diff != "" {
		t.Errorf("species differ (-saved +restored):\n%s", diff)
	}
	if diff := cmp.Diff(p.Ledger().State(), restored.Ledger().State(), opts); diff != "" {
		t.Errorf("ledger differs (-saved +restored):\n%s", diff)
	}
	assert.Equal(t, p.Generation(), restored.Generation())
	assert.Equal(t, p.HighestFitness, restored.HighestFitness)
	assert.Equal(t, 20, restored.Pending(), "the handed out genome is queued again")

	evaluateAll(t, restored)
	require.NoError(t, restored.NextGeneration())
	checkPopulation(t, restored)
	assert.Equal(t, 3, restored.Generation())
}

func TestReadCheckpointRejectsGarbage(t *testing.T) {
	_, err := ReadCheckpoint(bytes.NewReader([]byte("not a checkpoint")), testConfig())
	require.Error(t, err)

	_, err = LoadCheckpoint(t.TempDir()+"/missing.gz", testConfig())
	require.Error(t, err)
}

func TestSaveAndLoadCheckpointFile(t *testing.T) {
	p, err := NewPopulation(testConfig())
	require.NoError(t, err)
	evaluateAll(t, p)
	require.NoError(t, p.NextGeneration())

	path := t.TempDir() + "/pop.gz"
	require.NoError(t, p.SaveCheckpoint(path))
	restored, err := LoadCheckpoint(path, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, restored.Generation())
	assert.Equal(t, 30, restored.Pending())
}

func TestAllocateOffspring(t *testing.T) {
	r := NewReproduction(&DefaultConfig().Reproduction, testGenomeConfig(), nil)
	orgsWith := func(adjusted ...float64) map[int]*Organism {
		orgs := make(map[int]*Organism)
		for i, a := range adjusted {
			orgs[i+1] = &Organism{AdjustedFitness: a}
		}
		return orgs
	}
	total := func(species []*Species) int {
		n := 0
		for _, sp := range species {
			n += sp.ExpectedOffspring
		}
		return n
	}

	t.Run("proportional", func(t *testing.T) {
		a, b := &Species{ID: 1, Members: []int{1, 2}}, &Species{ID: 2, Members: []int{3}}
		orgs := orgsWith(0.5, 0.25, 0.25)
		r.AllocateOffspring([]*Species{a, b}, orgs, 8)
		assert.Equal(t, 6, a.ExpectedOffspring)
		assert.Equal(t, 2, b.ExpectedOffspring)
		assert.InDelta(t, 4.0, orgs[1].ExpectedOffspring, 1e-12)
	})

	t.Run("fractions", func(t *testing.T) {
		a, b := &Species{ID: 1, Members: []int{1, 2}}, &Species{ID: 2, Members: []int{3}}
		r.AllocateOffspring([]*Species{a, b}, orgsWith(1, 1, 1), 10)
		assert.Equal(t, 10, total([]*Species{a, b}))
		assert.GreaterOrEqual(t, a.ExpectedOffspring, 6)
	})

	t.Run("zero fitness", func(t *testing.T) {
		a, b := &Species{ID: 1, Members: []int{1, 2}}, &Species{ID: 2, Members: []int{3}}
		r.AllocateOffspring([]*Species{a, b}, orgsWith(0, 0, 0), 5)
		assert.Equal(t, 3, a.ExpectedOffspring)
		assert.Equal(t, 2, b.ExpectedOffspring)
	})
}

func TestGenerationLogReportsFitnessSummary(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p, err := NewPopulation(testConfig(), WithLogger(zap.New(core)))
	require.NoError(t, err)

	// Fitness values 1, 2 and 3, ten of each.
	for i := 0; ; i++ {
		g, ok := p.PopPending()
		if !ok {
			break
		}
		require.NoError(t, p.ReportFitness(g.ID, float64(i%3+1)))
	}
	assert.Equal(t, FitnessSummary{Mean: 2, Stdev: math.Sqrt(20.0 / 29), Median: 2, Min: 1, Max: 3}, p.FitnessSummary())
	require.NoError(t, p.NextGeneration())

	entries := logs.FilterMessage("generation complete").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, 2.0, fields["mean_fitness"])
	assert.Equal(t, 2.0, fields["median_fitness"])
	assert.InDelta(t, math.Sqrt(20.0/29), fields["stdev_fitness"], 1e-12)
	assert.Equal(t, 3.0, fields["best_fitness"])
}
