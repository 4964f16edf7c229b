// Package persist reads and writes evolved policies as YAML records and keeps
// them in a file or SQLite store.
package persist

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/baldhumanity/policy-neat/neat"
)

// Layer positions inside Brain.Layers.
const (
	InputLayer = iota
	OutputLayer
	HiddenLayer
	numLayers
)

// Record is one evaluated policy as appended to a .policy or .best file.
type Record struct {
	Evaluation *int     `yaml:"evaluation"`
	Fitness    *float64 `yaml:"fitness,omitempty"`
	Brain      *Brain   `yaml:"brain"`
}

// Brain is the persisted genome: links, nodes grouped by layer, and traits.
type Brain struct {
	ConnectionGenes []ConnectionRecord `yaml:"connection_genes"`
	Layers          [][]NodeRecord     `yaml:"layers"`
	Traits          []TraitRecord      `yaml:"traits,omitempty"`
}

// ConnectionRecord is a persisted link gene.
type ConnectionRecord struct {
	Innovation  *int     `yaml:"innovation_number"`
	From        *int     `yaml:"from"`
	To          *int     `yaml:"to"`
	Weight      *float64 `yaml:"weight"`
	Enabled     *bool    `yaml:"enabled"`
	Recurrent   bool     `yaml:"recurrent,omitempty"`
	TraitID     int      `yaml:"trait_id,omitempty"`
	ParentName  string   `yaml:"parent_name"`
	ParentIndex int      `yaml:"parent_index"`
}

// NodeRecord is a persisted node gene.
type NodeRecord struct {
	ID          *int       `yaml:"id"`
	Type        *string    `yaml:"type"`
	Layer       int        `yaml:"layer"`
	Innovation  *int       `yaml:"innovation_number"`
	ParentName  string     `yaml:"parent_name"`
	ParentIndex int        `yaml:"parent_index"`
	Params      NodeParams `yaml:"params"`
}

// NodeParams carries the node's trait reference and, for readability, a copy
// of the referenced trait's parameters.
type NodeParams struct {
	TraitID int       `yaml:"trait_id"`
	Values  []float64 `yaml:"values,flow,omitempty"`
}

// TraitRecord is a persisted trait.
type TraitRecord struct {
	ID     *int      `yaml:"id"`
	Params []float64 `yaml:"params,flow"`
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }
func stringPtr(v string) *string  { return &v }

// FromGenome converts g into a record for the given evaluation number.
func FromGenome(g *neat.Genome, evaluation int, fitness float64) Record {
	b := &Brain{Layers: make([][]NodeRecord, numLayers)}
	for _, l := range g.Links {
		b.ConnectionGenes = append(b.ConnectionGenes, ConnectionRecord{
			Innovation:  intPtr(l.Innovation),
			From:        intPtr(l.InNode),
			To:          intPtr(l.OutNode),
			Weight:      floatPtr(l.Weight),
			Enabled:     boolPtr(l.Enabled),
			Recurrent:   l.Recurrent,
			TraitID:     l.TraitID,
			ParentName:  l.Origin.Name,
			ParentIndex: l.Origin.Index,
		})
	}
	for _, n := range g.Nodes {
		layer := layerOf(n.Type)
		nr := NodeRecord{
			ID:          intPtr(n.ID),
			Type:        stringPtr(n.Type.String()),
			Layer:       layer,
			Innovation:  intPtr(n.Innovation),
			ParentName:  n.Origin.Name,
			ParentIndex: n.Origin.Index,
			Params:      NodeParams{TraitID: n.TraitID},
		}
		if i := g.TraitIndex(n.TraitID); i >= 0 {
			nr.Params.Values = append([]float64(nil), g.Traits[i].Params[:]...)
		}
		b.Layers[layer] = append(b.Layers[layer], nr)
	}
	for _, t := range g.Traits {
		b.Traits = append(b.Traits, TraitRecord{ID: intPtr(t.ID), Params: append([]float64(nil), t.Params[:]...)})
	}
	return Record{Evaluation: intPtr(evaluation), Fitness: floatPtr(fitness), Brain: b}
}

func layerOf(t neat.NodeType) int {
	switch t {
	case neat.Output:
		return OutputLayer
	case neat.Hidden:
		return HiddenLayer
	default:
		return InputLayer
	}
}

// Encode renders records as a YAML sequence that can be appended to an
// existing record file.
func Encode(records ...Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRecords parses a record file. An empty document yields no records.
func DecodeRecords(data []byte) ([]Record, error) {
	var records []Record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}
	return records, nil
}

// Remap renumbers loaded genomes into a running innovation space. Sensor,
// bias and output nodes keep their ids and innovations; hidden node ids and
// all other innovation numbers are reassigned in order of first appearance,
// starting at the offsets. The same old number always maps to the same new
// number across every Decode call sharing the Remap.
type Remap struct {
	nextInnovation int
	nextNodeID     int
	innovations    map[int]int
	nodeIDs        map[int]int
}

// NewRemap starts renumbering at the given offsets.
func NewRemap(innovationOffset, nodeIDOffset int) *Remap {
	return &Remap{
		nextInnovation: innovationOffset,
		nextNodeID:     nodeIDOffset,
		innovations:    make(map[int]int),
		nodeIDs:        make(map[int]int),
	}
}

// NextInnovation returns the first innovation number not yet handed out.
func (r *Remap) NextInnovation() int { return r.nextInnovation }

// NextNodeID returns the first hidden node id not yet handed out.
func (r *Remap) NextNodeID() int { return r.nextNodeID }

func (r *Remap) clone() *Remap {
	c := &Remap{
		nextInnovation: r.nextInnovation,
		nextNodeID:     r.nextNodeID,
		innovations:    make(map[int]int, len(r.innovations)),
		nodeIDs:        make(map[int]int, len(r.nodeIDs)),
	}
	for k, v := range r.innovations {
		c.innovations[k] = v
	}
	for k, v := range r.nodeIDs {
		c.nodeIDs[k] = v
	}
	return c
}

func (r *Remap) innovation(old int) int {
	if n, ok := r.innovations[old]; ok {
		return n
	}
	n := r.nextInnovation
	r.nextInnovation++
	r.innovations[old] = n
	return n
}

func (r *Remap) nodeID(old int) int {
	if n, ok := r.nodeIDs[old]; ok {
		return n
	}
	n := r.nextNodeID
	r.nextNodeID++
	r.nodeIDs[old] = n
	return n
}

// DecodeOptions controls how records become genomes.
type DecodeOptions struct {
	// Remap renumbers genes; nil loads them verbatim.
	Remap *Remap
	// SourceName is recorded as the origin of verbatim genes, usually the
	// path the records were read from.
	SourceName string
	// FirstGenomeID is the id of the first decoded genome; later genomes
	// count up from it.
	FirstGenomeID int
}

// Policy is a decoded record.
type Policy struct {
	Evaluation int
	Genome     *neat.Genome
}

// Decode parses records and converts every one into a valid genome. Any
// missing required field, malformed trait or invalid genome fails the whole
// load; opts.Remap is only advanced when every record decodes.
func Decode(data []byte, opts DecodeOptions) ([]Policy, error) {
	records, err := DecodeRecords(data)
	if err != nil {
		return nil, err
	}
	var remap *Remap
	if opts.Remap != nil {
		remap = opts.Remap.clone()
	}
	out := make([]Policy, 0, len(records))
	for i, rec := range records {
		g, err := toGenome(rec, i, opts.SourceName, remap)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		g.ID = opts.FirstGenomeID + i
		if err := g.IsValid(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, Policy{Evaluation: *rec.Evaluation, Genome: g})
	}
	if remap != nil {
		*opts.Remap = *remap
	}
	return out, nil
}

func toGenome(rec Record, index int, source string, remap *Remap) (*neat.Genome, error) {
	if rec.Evaluation == nil {
		return nil, errors.New("missing evaluation")
	}
	if rec.Brain == nil {
		return nil, errors.New("missing brain")
	}
	origin := neat.Origin{Name: source, Index: index}
	if remap != nil {
		origin = neat.NoOrigin
	}

	g := &neat.Genome{}
	for j, tr := range rec.Brain.Traits {
		if tr.ID == nil {
			return nil, fmt.Errorf("trait %d: missing id", j)
		}
		if len(tr.Params) != neat.NumTraitParams {
			return nil, fmt.Errorf("trait %d: has %d params, want %d", *tr.ID, len(tr.Params), neat.NumTraitParams)
		}
		t := neat.Trait{ID: *tr.ID}
		copy(t.Params[:], tr.Params)
		g.Traits = append(g.Traits, t)
	}

	nodeIDs := make(map[int]int)
	for layer, nodes := range rec.Brain.Layers {
		for j, nr := range nodes {
			if nr.ID == nil || nr.Type == nil || nr.Innovation == nil {
				return nil, fmt.Errorf("layer %d node %d: missing id, type or innovation_number", layer, j)
			}
			typ, err := neat.ParseNodeType(*nr.Type)
			if err != nil {
				return nil, fmt.Errorf("layer %d node %d: %w", layer, j, err)
			}
			if n := len(nr.Params.Values); n != 0 && n != neat.NumTraitParams {
				return nil, fmt.Errorf("node %d: has %d trait params, want %d", *nr.ID, n, neat.NumTraitParams)
			}
			n := neat.NodeGene{
				ID:         *nr.ID,
				Type:       typ,
				TraitID:    nr.Params.TraitID,
				Innovation: *nr.Innovation,
				Origin:     origin,
			}
			if remap != nil && typ == neat.Hidden {
				n.ID = remap.nodeID(*nr.ID)
				if n.Innovation != 0 {
					n.Innovation = remap.innovation(n.Innovation)
				}
			}
			nodeIDs[*nr.ID] = n.ID
			g.AddNode(n)
		}
	}

	for j, cr := range rec.Brain.ConnectionGenes {
		if cr.Innovation == nil || cr.From == nil || cr.To == nil || cr.Weight == nil || cr.Enabled == nil {
			return nil, fmt.Errorf("connection %d: missing innovation_number, from, to, weight or enabled", j)
		}
		in, okIn := nodeIDs[*cr.From]
		out, okOut := nodeIDs[*cr.To]
		if !okIn || !okOut {
			return nil, fmt.Errorf("connection %d: references unknown node (%d -> %d)", j, *cr.From, *cr.To)
		}
		l := neat.LinkGene{
			InNode:     in,
			OutNode:    out,
			Weight:     *cr.Weight,
			Enabled:    *cr.Enabled,
			Recurrent:  cr.Recurrent,
			Innovation: *cr.Innovation,
			TraitID:    cr.TraitID,
			Origin:     origin,
		}
		if remap != nil {
			l.Innovation = remap.innovation(l.Innovation)
		}
		g.AddLink(l)
	}
	return g, nil
}
