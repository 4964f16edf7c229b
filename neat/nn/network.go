package nn

import (
	"fmt"
	"sort"

	"github.com/baldhumanity/policy-neat/neat"
)

// neuralNode is a unit of the phenotype. Its incoming links occupy the
// contiguous range [start, end) of Network.links.
type neuralNode struct {
	id         int
	start, end int
}

// neuralLink is an enabled link, stored by source node index.
type neuralLink struct {
	src    int
	weight float64
}

// Network is the runnable phenotype of a genome. Nodes are laid out
// [bias][sensor][output][hidden] and every step updates all non-input nodes
// from the same snapshot of activations, so recurrent links take effect one
// step later and cycles need no special handling.
//
// A Network is not safe for concurrent use; build one per evaluation.
type Network struct {
	nodes    []neuralNode
	links    []neuralLink
	nBias    int
	nSensors int
	nOutputs int

	act  []float64 // current activations
	next []float64 // written during a step, swapped with act afterwards
}

// New builds the phenotype of g. Disabled links are left out. The genome must
// be valid (see neat.Genome.IsValid).
func New(g *neat.Genome) *Network {
	n := &Network{nodes: make([]neuralNode, len(g.Nodes))}
	index := make(map[int]int, len(g.Nodes))
	for i, gn := range g.Nodes {
		n.nodes[i] = neuralNode{id: gn.ID}
		index[gn.ID] = i
		switch gn.Type {
		case neat.Bias:
			n.nBias++
		case neat.Sensor:
			n.nSensors++
		case neat.Output:
			n.nOutputs++
		}
	}

	// Group enabled links by destination. Links keep innovation order within
	// a destination, which fixes the summation order.
	type pending struct {
		dst int
		neuralLink
	}
	var incoming []pending
	for _, l := range g.Links {
		if !l.Enabled {
			continue
		}
		src, okSrc := index[l.InNode]
		dst, okDst := index[l.OutNode]
		if !okSrc || !okDst {
			continue
		}
		incoming = append(incoming, pending{dst: dst, neuralLink: neuralLink{src: src, weight: l.Weight}})
	}
	sort.SliceStable(incoming, func(i, j int) bool { return incoming[i].dst < incoming[j].dst })

	n.links = make([]neuralLink, len(incoming))
	for i, p := range incoming {
		n.links[i] = p.neuralLink
	}
	for i, k := 0, 0; i < len(n.nodes); i++ {
		n.nodes[i].start = k
		for k < len(incoming) && incoming[k].dst == i {
			k++
		}
		n.nodes[i].end = k
	}

	n.act = make([]float64, len(n.nodes))
	n.next = make([]float64, len(n.nodes))
	n.Reset()
	return n
}

// NumSensors returns the number of sensor inputs.
func (n *Network) NumSensors() int { return n.nSensors }

// NumOutputs returns the number of outputs.
func (n *Network) NumOutputs() int { return n.nOutputs }

// NumNodes returns the total number of units.
func (n *Network) NumNodes() int { return len(n.nodes) }

// NumLinks returns the number of enabled links.
func (n *Network) NumLinks() int { return len(n.links) }

// LoadSensor sets sensor i. It panics when i is out of range.
func (n *Network) LoadSensor(i int, v float64) {
	if i < 0 || i >= n.nSensors {
		panic(fmt.Sprintf("nn: sensor index %d out of range [0, %d)", i, n.nSensors))
	}
	n.act[n.nBias+i] = v
	n.next[n.nBias+i] = v
}

// LoadSensors sets every sensor. It panics unless len(vs) equals NumSensors.
func (n *Network) LoadSensors(vs []float64) {
	if len(vs) != n.nSensors {
		panic(fmt.Sprintf("nn: got %d sensor values, network has %d sensors", len(vs), n.nSensors))
	}
	for i, v := range vs {
		n.LoadSensor(i, v)
	}
}

// Activate runs ncycles propagation steps. Each non-input node takes the
// sigmoid of the weighted sum of the previous step's activations.
func (n *Network) Activate(ncycles int) {
	inputs := n.nBias + n.nSensors
	for c := 0; c < ncycles; c++ {
		for i := inputs; i < len(n.nodes); i++ {
			node := &n.nodes[i]
			sum := 0.0
			for _, l := range n.links[node.start:node.end] {
				sum += n.act[l.src] * l.weight
			}
			n.next[i] = neat.Sigmoid(sum)
		}
		n.act, n.next = n.next, n.act
		// Input units are held constant across steps.
		copy(n.next[:inputs], n.act[:inputs])
	}
}

// Outputs returns a copy of the output activations.
func (n *Network) Outputs() []float64 {
	start := n.nBias + n.nSensors
	return append([]float64(nil), n.act[start:start+n.nOutputs]...)
}

// Run loads the sensors, activates for ncycles and returns the outputs.
func (n *Network) Run(inputs []float64, ncycles int) []float64 {
	n.LoadSensors(inputs)
	n.Activate(ncycles)
	return n.Outputs()
}

// ClearNonInput zeroes every output and hidden activation. Sensor values are kept.
func (n *Network) ClearNonInput() {
	for i := n.nBias + n.nSensors; i < len(n.nodes); i++ {
		n.act[i] = 0
		n.next[i] = 0
	}
}

// Reset zeroes all activations, including sensors. Bias units read 1.
func (n *Network) Reset() {
	for i := range n.act {
		n.act[i] = 0
		n.next[i] = 0
	}
	for i := 0; i < n.nBias; i++ {
		n.act[i] = 1
		n.next[i] = 1
	}
}

// Activations returns a copy of the current activation of every unit, in
// [bias][sensor][output][hidden] order.
func (n *Network) Activations() []float64 {
	return append([]float64(nil), n.act...)
}

// SetActivations restores a snapshot taken with Activations. It panics when
// the length does not match NumNodes.
func (n *Network) SetActivations(vs []float64) {
	if len(vs) != len(n.nodes) {
		panic(fmt.Sprintf("nn: got %d activations, network has %d nodes", len(vs), len(n.nodes)))
	}
	copy(n.act, vs)
	copy(n.next, vs)
}

// NodeIDs returns the genome node id of every unit in activation order.
func (n *Network) NodeIDs() []int {
	ids := make([]int, len(n.nodes))
	for i, node := range n.nodes {
		ids[i] = node.id
	}
	return ids
}
