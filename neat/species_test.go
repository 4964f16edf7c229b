package neat

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// speciesShell returns a population whose compatibility distance between
// single-link genomes is their absolute weight difference, threshold 1.
func speciesShell(t *testing.T) *Population {
	t.Helper()
	cfg := testConfig()
	cfg.SpeciesSet.WeightCoefficient = 1
	cfg.SpeciesSet.CompatibilityThreshold = 1
	p, err := newPopulationShell(cfg)
	require.NoError(t, err)
	return p
}

func addWeighted(p *Population, id int, w float64) {
	p.organisms[id] = &Organism{Genome: linksWith(id, map[int]float64{1: w})}
}

func TestRespeciatePlacementOrder(t *testing.T) {
	p := speciesShell(t)
	addWeighted(p, 1, 0)
	addWeighted(p, 2, 1.5)
	a := &Species{ID: 1, Age: 2, Members: []int{1}}
	b := &Species{ID: 2, Age: 2, Members: []int{2}}
	empty := &Species{ID: 3, Age: 2}
	p.species = []*Species{a, b, empty}
	p.nextSpeciesID = 3

	children := []child{
		{id: 11, parent: b},     // 0.8: fits a and b, the parent wins
		{id: 12, parent: b},     // 0.1: too far from b, falls to a
		{id: 13, parent: empty}, // 0.2: parent has no representative
		{id: 14, parent: a},     // 3.0: founds a species
		{id: 15},                // 2.2: fits b and the new species, b wins
		{id: 16, parent: a},     // 3.5: joins the species founded by 14
		{id: 17, parent: b},     // 20: founds another species
	}
	weights := map[int]float64{11: 0.8, 12: 0.1, 13: 0.2, 14: 3, 15: 2.2, 16: 3.5, 17: 20}
	for id, w := range weights {
		addWeighted(p, id, w)
	}

	next := p.respeciate(children, NewGenomeDistanceCache(&p.config.SpeciesSet))

	require.Len(t, p.species, 5)
	founded, second := p.species[3], p.species[4]
	assert.Equal(t, 4, founded.ID)
	assert.Equal(t, 5, second.ID)
	assert.True(t, founded.Novel)
	assert.True(t, second.Novel)

	got := make(map[int][]int)
	for sp, members := range next {
		got[sp.ID] = members
	}
	want := map[int][]int{1: {12, 13}, 2: {11, 15}, 4: {14, 16}, 5: {17}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("placement mismatch (-want +got):\n%s", diff)
	}
	for speciesID, members := range want {
		for _, id := range members {
			assert.Equal(t, speciesID, p.organisms[id].SpeciesID, "genome %d", id)
		}
	}
}

func TestTurnoverAgesAndDropsSpecies(t *testing.T) {
	p := speciesShell(t)
	old := &Species{ID: 1, Age: 3, Members: []int{1}}
	gone := &Species{ID: 2, Age: 5, Members: []int{2}}
	novel := &Species{ID: 3, Age: 1, Novel: true}
	p.species = []*Species{old, gone, novel}

	p.turnover(map[*Species][]int{old: {10, 11}, novel: {12}})

	require.Len(t, p.species, 2)
	assert.Same(t, old, p.species[0])
	assert.Same(t, novel, p.species[1])
	assert.Equal(t, 4, old.Age)
	assert.Equal(t, []int{10, 11}, old.Members)
	assert.Equal(t, 1, novel.Age)
	assert.False(t, novel.Novel)
	assert.Equal(t, []int{12}, novel.Members)
}

func TestSpeciesSurviveGenerationsNonEmpty(t *testing.T) {
	p, err := NewPopulation(testConfig())
	require.NoError(t, err)
	for gen := 0; gen < 5; gen++ {
		ages := make(map[int]int)
		for _, sp := range p.Species() {
			ages[sp.ID] = sp.Age
		}
		evaluateAll(t, p)
		require.NoError(t, p.NextGeneration())
		checkPopulation(t, p)
		for _, sp := range p.Species() {
			if before, ok := ages[sp.ID]; ok {
				assert.Equal(t, before+1, sp.Age, "species %d", sp.ID)
			} else {
				assert.Equal(t, 1, sp.Age, "species %d", sp.ID)
			}
		}
	}
}
