package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baldhumanity/policy-neat/neat"
)

// chain builds bias(1), sensor(2), output(3) and hidden(4) with the links
// sensor->hidden and hidden->output.
func chain(w1, w2 float64) *neat.Genome {
	g := &neat.Genome{ID: 1}
	g.AddNode(neat.NodeGene{ID: 1, Type: neat.Bias, Innovation: 1})
	g.AddNode(neat.NodeGene{ID: 2, Type: neat.Sensor, Innovation: 2})
	g.AddNode(neat.NodeGene{ID: 3, Type: neat.Output, Innovation: 3})
	g.AddNode(neat.NodeGene{ID: 4, Type: neat.Hidden, Innovation: 4})
	g.AddLink(neat.LinkGene{InNode: 2, OutNode: 4, Weight: w1, Enabled: true, Innovation: 5})
	g.AddLink(neat.LinkGene{InNode: 4, OutNode: 3, Weight: w2, Enabled: true, Innovation: 6})
	return g
}

func TestNetworkLayout(t *testing.T) {
	g := chain(1, 1)
	g.AddLink(neat.LinkGene{InNode: 1, OutNode: 3, Weight: 1, Enabled: false, Innovation: 7})
	require.NoError(t, g.IsValid())

	n := New(g)
	assert.Equal(t, 1, n.NumSensors())
	assert.Equal(t, 1, n.NumOutputs())
	assert.Equal(t, 4, n.NumNodes())
	assert.Equal(t, 2, n.NumLinks(), "disabled links are left out")
	assert.Equal(t, []int{1, 2, 3, 4}, n.NodeIDs())
	assert.Equal(t, []float64{1, 0, 0, 0}, n.Activations())
}

func TestHiddenLayerAddsOneStepDelay(t *testing.T) {
	n := New(chain(1, 1))
	out := n.Run([]float64{0.5}, 1)
	assert.Equal(t, []float64{0.5}, out, "hidden unit was still zero")

	n.Reset()
	out = n.Run([]float64{0.5}, 2)
	assert.InDelta(t, neat.Sigmoid(neat.Sigmoid(0.5)), out[0], 1e-12)
}

func TestBiasAndWeightedSum(t *testing.T) {
	g := &neat.Genome{ID: 1}
	g.AddNode(neat.NodeGene{ID: 1, Type: neat.Bias, Innovation: 1})
	g.AddNode(neat.NodeGene{ID: 2, Type: neat.Sensor, Innovation: 2})
	g.AddNode(neat.NodeGene{ID: 3, Type: neat.Sensor, Innovation: 3})
	g.AddNode(neat.NodeGene{ID: 4, Type: neat.Output, Innovation: 4})
	g.AddLink(neat.LinkGene{InNode: 1, OutNode: 4, Weight: -0.5, Enabled: true, Innovation: 5})
	g.AddLink(neat.LinkGene{InNode: 2, OutNode: 4, Weight: 2, Enabled: true, Innovation: 6})
	g.AddLink(neat.LinkGene{InNode: 3, OutNode: 4, Weight: -1, Enabled: true, Innovation: 7})

	out := New(g).Run([]float64{0.25, 0.75}, 1)
	assert.InDelta(t, neat.Sigmoid(-0.5+0.5-0.75), out[0], 1e-12)
}

func TestRecurrentSelfLoop(t *testing.T) {
	g := chain(0, 0)
	g.AddLink(neat.LinkGene{InNode: 3, OutNode: 3, Weight: 1, Enabled: true, Recurrent: true, Innovation: 7})
	n := New(g)

	n.LoadSensors([]float64{1})
	n.Activate(1)
	assert.Equal(t, []float64{0.5}, n.Outputs())
	n.Activate(1)
	// Output reads its own previous value; hidden contributes 0.5 * 0.
	assert.InDelta(t, neat.Sigmoid(0.5), n.Outputs()[0], 1e-12)
}

func TestNetworksAreDeterministic(t *testing.T) {
	gc := neat.DefaultConfig().Genome
	gc.NumInputs = 3
	gc.NumOutputs = 2
	gc.NumHidden = 2
	ledger := neat.NewInnovationLedger()
	g := neat.NewSeedGenome(1, &gc, newRand())
	ledger.Observe(g)
	m := neat.NewMutator(&gc, ledger, newRand())
	for i := 0; i < 20; i++ {
		_, err := m.MutateStructure(g, 1)
		require.NoError(t, err)
	}
	require.NoError(t, g.IsValid())

	in := []float64{0.1, -0.4, 0.9}
	a := New(g).Run(in, 7)
	b := New(g).Run(in, 7)
	assert.Equal(t, a, b)
	for _, v := range a {
		assert.True(t, v >= 0 && v <= 1)
	}
}

func TestDuplicateActivatesIdentically(t *testing.T) {
	gc := neat.DefaultConfig().Genome
	gc.NumInputs = 2
	gc.NumOutputs = 2
	ledger := neat.NewInnovationLedger()
	g := neat.NewSeedGenome(1, &gc, newRand())
	ledger.Observe(g)
	m := neat.NewMutator(&gc, ledger, newRand())
	for i := 0; i < 15; i++ {
		_, err := m.MutateStructure(g, 1)
		require.NoError(t, err)
	}
	d := g.Duplicate(2)

	tests := []struct {
		name   string
		inputs []float64
		cycles int
	}{
		{"zeros", []float64{0, 0}, 1},
		{"mixed", []float64{0.7, -0.3}, 4},
		{"large", []float64{5, 5}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := New(g).Run(tt.inputs, tt.cycles)
			got := New(d).Run(tt.inputs, tt.cycles)
			assert.Equal(t, want, got)
		})
	}
}

func TestResetAndClear(t *testing.T) {
	n := New(chain(1, 1))
	n.Run([]float64{0.3}, 3)

	n.ClearNonInput()
	assert.Equal(t, []float64{1, 0.3, 0, 0}, n.Activations())

	n.Reset()
	assert.Equal(t, []float64{1, 0, 0, 0}, n.Activations())
}

func TestSetActivationsRestoresState(t *testing.T) {
	n := New(chain(2, -3))
	n.Run([]float64{0.7}, 2)
	snapshot := n.Activations()
	want := n.Run([]float64{0.7}, 3)

	n.SetActivations(snapshot)
	got := n.Run([]float64{0.7}, 3)
	assert.Equal(t, want, got)

	assert.Panics(t, func() { n.SetActivations([]float64{1}) })
}

func TestSensorBoundsPanic(t *testing.T) {
	n := New(chain(1, 1))
	assert.Panics(t, func() { n.LoadSensors([]float64{1, 2}) })
	assert.Panics(t, func() { n.LoadSensor(1, 0) })
	assert.Panics(t, func() { n.LoadSensor(-1, 0) })
	assert.NotPanics(t, func() { n.LoadSensor(0, 0) })
}

func newRand() *rand.Rand { return rand.New(rand.NewSource(3)) }
