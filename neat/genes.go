package neat

import (
	"fmt"
	"math/rand"
	"strings"
)

// NumTraitParams is the number of real-valued parameters carried by every trait.
const NumTraitParams = 8

// NodeType is the role of a node gene. Bias and sensor nodes never change role.
type NodeType int

const (
	Bias NodeType = iota
	Sensor
	Output
	Hidden
)

func (t NodeType) String() string {
	switch t {
	case Bias:
		return "bias"
	case Sensor:
		return "sensor"
	case Output:
		return "output"
	case Hidden:
		return "hidden"
	default:
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
}

// ParseNodeType converts the textual node role used in persisted genomes.
func ParseNodeType(s string) (NodeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bias":
		return Bias, nil
	case "sensor", "input":
		return Sensor, nil
	case "output":
		return Output, nil
	case "hidden":
		return Hidden, nil
	}
	return 0, fmt.Errorf("unknown node type %q", s)
}

// IsInput reports whether nodes of this type are held constant during activation.
func (t NodeType) IsInput() bool { return t == Bias || t == Sensor }

// Origin records which parent genome a gene was inherited from.
// Index is -1 when the gene has no recorded parent.
type Origin struct {
	Name  string
	Index int
}

// NoOrigin is the provenance of genes created from scratch.
var NoOrigin = Origin{Index: -1}

// --------------------------- NodeGene ---------------------------

// NodeGene represents a node (neuron) in the genome. Nodes reference their
// trait by id (0 means no trait).
type NodeGene struct {
	ID         int
	Type       NodeType
	TraitID    int
	Innovation int
	Origin     Origin
}

// String returns a string representation of the NodeGene.
func (ng NodeGene) String() string {
	return fmt.Sprintf("NodeGene(ID: %d, Type: %s, Trait: %d, Innov: %d)", ng.ID, ng.Type, ng.TraitID, ng.Innovation)
}

// --------------------------- LinkGene ---------------------------

// LinkGene represents a weighted connection between two node ids.
// The (InNode, OutNode, Recurrent) triple is unique within a genome.
type LinkGene struct {
	InNode     int
	OutNode    int
	Weight     float64
	Enabled    bool
	Recurrent  bool
	Innovation int
	TraitID    int
	Origin     Origin
}

// String returns a string representation of the LinkGene.
func (lg LinkGene) String() string {
	return fmt.Sprintf("LinkGene(%d->%d, Weight: %.3f, Enabled: %t, Recurrent: %t, Innov: %d)",
		lg.InNode, lg.OutNode, lg.Weight, lg.Enabled, lg.Recurrent, lg.Innovation)
}

// sameEndpoints reports whether two links share the (in, out, recurrent) triple.
func (lg LinkGene) sameEndpoints(other LinkGene) bool {
	return lg.InNode == other.InNode && lg.OutNode == other.OutNode && lg.Recurrent == other.Recurrent
}

// --------------------------- Trait ---------------------------

// Trait is a small bundle of parameters in [0,1] shared by id across genes.
type Trait struct {
	ID     int
	Params [NumTraitParams]float64
}

// NewTrait creates a trait with uniformly drawn parameters.
func NewTrait(id int, rng *rand.Rand) Trait {
	t := Trait{ID: id}
	for i := range t.Params {
		t.Params[i] = rng.Float64()
	}
	return t
}

// Mutate perturbs each parameter with the given probability, keeping it in [0,1].
func (t *Trait) Mutate(rng *rand.Rand, probability, power float64) {
	for i := range t.Params {
		if rng.Float64() < probability {
			t.Params[i] = clamp(t.Params[i]+rng.NormFloat64()*power, 0, 1)
		}
	}
}

// --------------------------- Attribute Helpers ---------------------------

// initFloatAttribute draws a gaussian value and clamps it to the allowed range.
func initFloatAttribute(rng *rand.Rand, mean, stdev, minVal, maxVal float64) float64 {
	return clamp(rng.NormFloat64()*stdev+mean, minVal, maxVal)
}

// mutateFloatAttribute perturbs a value with probability mutateRate, otherwise
// replaces it with a fresh draw with probability replaceRate.
func mutateFloatAttribute(rng *rand.Rand, value, mutateRate, replaceRate, mutatePower, initStdev, minVal, maxVal float64) float64 {
	r := rng.Float64()
	if r < mutateRate {
		// Perturb value
		return clamp(value+rng.NormFloat64()*mutatePower, minVal, maxVal)
	}
	if r < mutateRate+replaceRate {
		// Replace value with a new one
		return initFloatAttribute(rng, 0, initStdev, minVal, maxVal)
	}
	return value
}
