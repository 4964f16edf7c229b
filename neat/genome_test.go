package neat

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// testGenomeConfig is the default genome config for two inputs and one output.
func testGenomeConfig() *GenomeConfig {
	gc := DefaultConfig().Genome
	gc.NumInputs = 2
	gc.NumOutputs = 1
	return &gc
}

func TestSeedGenomeLayout(t *testing.T) {
	gc := testGenomeConfig()
	gc.NumHidden = 2
	g := NewSeedGenome(1, gc, newTestRand(1))
	require.NoError(t, g.IsValid())

	var types []NodeType
	var ids []int
	for _, n := range g.Nodes {
		types = append(types, n.Type)
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []NodeType{Bias, Sensor, Sensor, Output, Hidden, Hidden}, types)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, ids)
	// (bias + 2 sensors) x 2 hidden, then 2 hidden x 1 output.
	assert.Len(t, g.Links, 8)
	assert.Len(t, g.Traits, gc.NumTraits)
	assert.Equal(t, 6, g.LastNodeID())
	assert.Equal(t, 14, g.LastInnovation())
}

func TestSeedGenomesShareInnovations(t *testing.T) {
	gc := testGenomeConfig()
	a := NewSeedGenome(1, gc, newTestRand(1))
	b := NewSeedGenome(2, gc, newTestRand(2))
	require.Len(t, b.Links, len(a.Links))
	for i := range a.Links {
		assert.Equal(t, a.Links[i].Innovation, b.Links[i].Innovation)
		assert.Equal(t, a.Links[i].InNode, b.Links[i].InNode)
		assert.Equal(t, a.Links[i].OutNode, b.Links[i].OutNode)
	}
}

func TestSeedGenomeConnectionModes(t *testing.T) {
	gc := testGenomeConfig()
	gc.InitialConnection = "single"
	g := NewSeedGenome(1, gc, newTestRand(1))
	require.Len(t, g.Links, 1)
	assert.Equal(t, 2, g.Links[0].InNode)
	assert.Equal(t, 4, g.Links[0].OutNode)

	gc.InitialConnection = "none"
	g = NewSeedGenome(1, gc, newTestRand(1))
	assert.Empty(t, g.Links)
	require.NoError(t, g.IsValid())
}

func TestDuplicateIsDeepAndValid(t *testing.T) {
	gc := testGenomeConfig()
	g := NewSeedGenome(1, gc, newTestRand(4))
	m := newTestMutator(gc, 4, g)
	split := g.Links[0]
	require.True(t, m.MutateAddNode(g, &split, false))

	d := g.Duplicate(9)
	require.NoError(t, d.IsValid())
	assert.Equal(t, 9, d.ID)
	if diff := cmp.Diff(g.Nodes, d.Nodes); diff != "" {
		t.Errorf("nodes differ (-orig +dup):\n%s", diff)
	}
	if diff := cmp.Diff(g.Links, d.Links); diff != "" {
		t.Errorf("links differ (-orig +dup):\n%s", diff)
	}
	if diff := cmp.Diff(g.Traits, d.Traits); diff != "" {
		t.Errorf("traits differ (-orig +dup):\n%s", diff)
	}

	d.Links[0].Weight = 123
	d.Nodes[0].TraitID = 99
	d.Traits[0].Params[0] = 0.123
	assert.NotEqual(t, 123.0, g.Links[0].Weight)
	assert.NotEqual(t, 99, g.Nodes[0].TraitID)
	assert.NotEqual(t, 0.123, g.Traits[0].Params[0])
}

func TestAddNodeKeepsRoleOrder(t *testing.T) {
	g := NewSeedGenome(1, testGenomeConfig(), newTestRand(1))
	g.AddNode(NodeGene{ID: 10, Type: Hidden, Innovation: 50})
	g.AddNode(NodeGene{ID: 7, Type: Hidden, Innovation: 51})
	require.NoError(t, g.IsValid())
	assert.Equal(t, 7, g.Nodes[len(g.Nodes)-2].ID)
	assert.Equal(t, 10, g.Nodes[len(g.Nodes)-1].ID)
	assert.Equal(t, 2, g.CountNodes(Hidden))
}

func TestIsValidReportsViolations(t *testing.T) {
	base := func() *Genome { return NewSeedGenome(1, testGenomeConfig(), newTestRand(1)) }

	tests := []struct {
		name   string
		mutate func(g *Genome)
		want   string
	}{
		{"duplicate node", func(g *Genome) { g.Nodes = append(g.Nodes, g.Nodes[len(g.Nodes)-1]) }, "duplicate node id"},
		{"missing endpoint", func(g *Genome) { g.Links[0].OutNode = 99 }, "missing destination"},
		{"link into sensor", func(g *Genome) { g.Links[0].OutNode = 2 }, "ends at sensor"},
		{"duplicate triple", func(g *Genome) {
			l := g.Links[0]
			l.Innovation = 100
			g.Links = append(g.Links, l)
		}, "duplicate link"},
		{"duplicate innovation", func(g *Genome) { g.Links[1].Innovation = g.Links[0].Innovation }, "duplicate link innovation"},
		{"missing trait", func(g *Genome) { g.Links[0].TraitID = 42 }, "missing trait"},
		{"trait out of range", func(g *Genome) { g.Traits[0].Params[3] = 1.5 }, "outside [0,1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := base()
			tt.mutate(g)
			err := g.IsValid()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseNodeType(t *testing.T) {
	for _, typ := range []NodeType{Bias, Sensor, Output, Hidden} {
		got, err := ParseNodeType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	got, err := ParseNodeType(" Input ")
	require.NoError(t, err)
	assert.Equal(t, Sensor, got)

	_, err = ParseNodeType("oscillator")
	require.Error(t, err)
}
